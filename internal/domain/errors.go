package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidFormat           = fmt.Errorf("%w: unsupported file format", ErrInvalidInput)
	ErrTooLarge                = fmt.Errorf("%w: file too large", ErrInvalidInput)
	ErrNotFound                = errors.New("not found")
	ErrNotConfigured           = errors.New("provider api key not configured")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrMalformedResponse       = errors.New("malformed provider response")
	ErrUploadRejected          = errors.New("upload rejected")
	ErrTimedOut                = errors.New("generation timed out")
	ErrUnsupportedSourceFormat = errors.New("unsupported source format")
	ErrTicketConsumed          = errors.New("upload ticket already consumed")
)

// MaxDetailBytes bounds how much of a remote response body travels with an error.
const MaxDetailBytes = 512

// Error carries a taxonomy kind together with the failing operation and a
// bounded excerpt of whatever the remote side said.
type Error struct {
	Kind   error
	Op     string
	Status int
	Detail string
	Err    error
}

// NewError builds an Error, truncating detail to MaxDetailBytes.
func NewError(kind error, op string, status int, detail string, cause error) *Error {
	return &Error{
		Kind:   kind,
		Op:     op,
		Status: status,
		Detail: Excerpt(detail, MaxDetailBytes),
		Err:    cause,
	}
}

func (e *Error) Error() string {
	sb := &strings.Builder{}
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Kind != nil {
		sb.WriteString(e.Kind.Error())
	} else {
		sb.WriteString("error")
	}
	if e.Status != 0 {
		fmt.Fprintf(sb, " (status %d)", e.Status)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Excerpt trims s to at most limit bytes on a rune boundary, marking the cut.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// KindOf returns the first taxonomy sentinel matched by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrTooLarge,
		ErrInvalidFormat,
		ErrInvalidInput,
		ErrNotFound,
		ErrNotConfigured,
		ErrTimedOut,
		ErrMalformedResponse,
		ErrUploadRejected,
		ErrProviderUnavailable,
		ErrUnsupportedSourceFormat,
		ErrTicketConsumed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
