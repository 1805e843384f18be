package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"photogen/internal/domain"
	"photogen/internal/workflow"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the image size limit.
const multipartOverhead = 1 << 20

type downloadLinks struct {
	PNG string `json:"png"`
	JPG string `json:"jpg"`
}

type generateResponse struct {
	ImageURL     string        `json:"image_url"`
	SourceURL    string        `json:"source_url"`
	AssetID      string        `json:"asset_id"`
	GenerationID string        `json:"generation_id"`
	Polls        int           `json:"polls"`
	Downloads    downloadLinks `json:"downloads"`
}

// Generate accepts a multipart upload (field "image") and runs the full
// workflow synchronously. The request context bounds the run.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	if a.Provider == nil || !a.Provider.HasCredentials() {
		a.fail(w, r, domain.NewError(domain.ErrNotConfigured, "generate", 0, "", nil), "")
		return
	}

	maxBytes := a.Store.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		a.fail(w, r, multipartError(err), "")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", "no image uploaded")
		return
	}
	defer file.Close()
	if strings.TrimSpace(header.Filename) == "" {
		a.error(w, http.StatusBadRequest, "invalid_input", "empty filename")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		a.fail(w, r, multipartError(err), "")
		return
	}

	req, err := parseOverrides(r)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}

	handle, err := a.Store.Save(r.Context(), uploadExt(header), data)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}
	req.HandleID = handle.ID

	res, err := a.Generator.Run(r.Context(), req)
	if err != nil {
		var state workflow.State
		if res != nil {
			state = res.State
		}
		a.fail(w, r, err, state)
		return
	}

	asset := res.Asset
	a.json(w, http.StatusOK, generateResponse{
		ImageURL:     "/generated/" + asset.Filename(),
		SourceURL:    asset.SourceURL,
		AssetID:      asset.ID,
		GenerationID: asset.GenerationID,
		Polls:        res.Polls,
		Downloads: downloadLinks{
			PNG: fmt.Sprintf("/api/assets/%s/convert?format=png", asset.ID),
			JPG: fmt.Sprintf("/api/assets/%s/convert?format=jpg", asset.ID),
		},
	})
}

// uploadExt prefers the filename extension and falls back to the part's
// declared content type.
func uploadExt(header *multipart.FileHeader) string {
	if ext := strings.TrimPrefix(filepath.Ext(header.Filename), "."); ext != "" {
		return ext
	}
	if enc, ok := domain.ParseEncoding(header.Header.Get("Content-Type")); ok {
		return enc.Ext()
	}
	return ""
}

func parseOverrides(r *http.Request) (workflow.Request, error) {
	req := workflow.Request{
		Prompt:   r.FormValue("prompt"),
		Strength: r.FormValue("strength"),
	}
	var err error
	if req.Width, err = formInt(r, "width"); err != nil {
		return req, err
	}
	if req.Height, err = formInt(r, "height"); err != nil {
		return req, err
	}
	if req.Seed, err = formInt(r, "seed"); err != nil {
		return req, err
	}
	switch strings.ToUpper(strings.TrimSpace(req.Strength)) {
	case "", "LOW", "MID", "HIGH":
	default:
		return req, domain.NewError(domain.ErrInvalidInput, "generate", 0, "strength must be LOW, MID or HIGH", nil)
	}
	return req, nil
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewError(domain.ErrInvalidInput, "generate", 0, fmt.Sprintf("%s must be a non-negative integer", key), nil)
	}
	return n, nil
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewError(domain.ErrTooLarge, "generate", 0, fmt.Sprintf("limit %d bytes", tooLarge.Limit), nil)
	}
	return domain.NewError(domain.ErrInvalidInput, "generate", 0, "malformed multipart body", err)
}
