package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"photogen/internal/domain"
	"photogen/internal/infra"
	"photogen/internal/middleware"
	"photogen/internal/workflow"
)

// Store is the part of the asset store the handlers use.
type Store interface {
	MaxBytes() int64
	Save(ctx context.Context, ext string, data []byte) (*domain.UploadHandle, error)
	ResolveGenerated(ctx context.Context, assetID string) (*domain.GeneratedAsset, error)
	GeneratedPath(name string) (string, error)
}

// Generator runs the remote generation workflow.
type Generator interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

// Converter re-encodes generated assets.
type Converter interface {
	Convert(ctx context.Context, assetID string, target domain.Encoding) ([]byte, domain.Encoding, error)
}

// Credentials reports whether the provider can be called at all.
type Credentials interface {
	HasCredentials() bool
}

type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Store     Store
	Generator Generator
	Converter Converter
	Provider  Credentials
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
	State   string `json:"state,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}

// fail maps err onto an HTTP response. Provider diagnostics are already
// bounded by the provider client.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, state workflow.State) {
	if errors.Is(err, context.Canceled) {
		a.Logger.Info().Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("client went away")
		return
	}
	status, code := statusFor(err)
	resp := errorResponse{Error: messageFor(err, status), Code: code, State: string(state)}
	var derr *domain.Error
	if errors.As(err, &derr) && status != http.StatusInternalServerError {
		resp.Details = derr.Detail
	}
	ev := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = a.Logger.Error()
	}
	ev.Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Int("status", status).Msg("request failed")
	a.json(w, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, domain.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timed_out"
	case errors.Is(err, domain.ErrUnsupportedSourceFormat):
		return http.StatusUnprocessableEntity, "unsupported_source"
	case errors.Is(err, domain.ErrUploadRejected):
		return http.StatusBadGateway, "upload_rejected"
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func messageFor(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	if kind := domain.KindOf(err); kind != nil {
		return kind.Error()
	}
	return err.Error()
}
