package workflow

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"photogen/internal/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 140 * time.Second
)

// PollPolicy controls the polling state. The provider never reports a job as
// permanently failed, so Timeout is the only way a stuck job ends.
type PollPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
	// Tolerate decides whether a failed poll is absorbed (the loop keeps
	// going) or fails the run. Nil means IsTransient.
	Tolerate func(error) bool
}

// DefaultPollPolicy polls every 2s for up to 140s, absorbing transient errors.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval, Timeout: DefaultPollTimeout, Tolerate: IsTransient}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPollTimeout
	}
	if p.Tolerate == nil {
		p.Tolerate = IsTransient
	}
	return p
}

// IsTransient reports whether a single poll failure is worth riding out:
// transport errors, per-call timeouts, throttling, 5xx replies and garbled
// bodies. Credential problems and other 4xx replies are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrNotConfigured) || errors.Is(err, domain.ErrInvalidInput) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrMalformedResponse) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var derr *domain.Error
	if errors.As(err, &derr) && errors.Is(derr.Kind, domain.ErrProviderUnavailable) {
		switch {
		case derr.Status == 0:
			return true
		case derr.Status == http.StatusRequestTimeout,
			derr.Status == http.StatusTooEarly,
			derr.Status == http.StatusTooManyRequests,
			derr.Status >= http.StatusInternalServerError:
			return true
		}
	}
	return false
}
