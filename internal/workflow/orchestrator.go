package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"photogen/internal/domain"
	"photogen/internal/infra"
	"photogen/internal/storage"
)

// Provider is the remote image API as seen by the orchestrator.
type Provider interface {
	HasCredentials() bool
	InitUpload(ctx context.Context, ext string) (*domain.UploadTicket, error)
	PushBytes(ctx context.Context, ticket *domain.UploadTicket, filename string, data []byte) error
	RequestGeneration(ctx context.Context, req domain.GenerationRequest, imageID string) (string, error)
	GetStatus(ctx context.Context, generationID string) (*domain.GenerationJob, error)
	Download(ctx context.Context, url string) ([]byte, domain.Encoding, error)
}

// AssetStore is the subset of the local store the orchestrator needs.
type AssetStore interface {
	Resolve(ctx context.Context, handleID string) (*domain.UploadHandle, []byte, error)
	SaveGenerated(ctx context.Context, data []byte, encoding domain.Encoding, meta storage.GeneratedMeta) (*domain.GeneratedAsset, error)
}

// Options configures an Orchestrator.
type Options struct {
	Poll        PollPolicy
	CallTimeout time.Duration
	// Defaults seeds every GenerationRequest; per-run values override it.
	Defaults      domain.GenerationRequest
	DefaultPrompt string
	Logger        *infra.Logger
	Metrics       *Metrics
}

// Request is the input to a single workflow run.
type Request struct {
	HandleID string
	Prompt   string
	Width    int
	Height   int
	Strength string
	Seed     int
}

// Transition records one state change of a run.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Result describes how a run ended. It is returned for every run, including
// failed ones.
type Result struct {
	State  State
	Trace  []Transition
	Handle *domain.UploadHandle
	Job    domain.GenerationJob
	Polls  int
	Asset  *domain.GeneratedAsset
	Err    error
}

// Orchestrator drives the upload, generate, poll and download workflow.
// It holds no per-run state, so one instance serves any number of
// concurrent runs.
type Orchestrator struct {
	provider Provider
	store    AssetStore
	opts     Options
	logger   *infra.Logger
}

// New builds an Orchestrator.
func New(provider Provider, store AssetStore, opts Options) *Orchestrator {
	opts.Poll = opts.Poll.normalized()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{provider: provider, store: store, opts: opts, logger: logger}
}

// PollPolicy returns the effective polling policy.
func (o *Orchestrator) PollPolicy() PollPolicy {
	return o.opts.Poll
}

// Run executes the whole workflow for one uploaded image. The returned error
// is nil only when the final state is StateDone.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	e := &execution{
		o:      o,
		result: &Result{State: StateUploading},
		log:    o.logger.With().Str("handle_id", req.HandleID).Logger(),
		start:  time.Now(),
	}
	e.result.Trace = append(e.result.Trace, Transition{To: StateUploading, At: e.start})
	err := e.run(ctx, req)
	o.opts.Metrics.observeRun(e.result.State, time.Since(e.start))
	return e.result, err
}

type execution struct {
	o      *Orchestrator
	result *Result
	log    zerolog.Logger
	start  time.Time
}

func (e *execution) run(ctx context.Context, req Request) error {
	o := e.o
	if o.provider == nil || !o.provider.HasCredentials() {
		return e.fail(domain.NewError(domain.ErrNotConfigured, "workflow", 0, "", nil))
	}

	handle, data, err := o.store.Resolve(ctx, req.HandleID)
	if err != nil {
		return e.fail(err)
	}
	e.result.Handle = handle
	e.to(StateAwaitingTicket)

	var ticket *domain.UploadTicket
	err = e.call(ctx, func(cctx context.Context) error {
		var err error
		ticket, err = o.provider.InitUpload(cctx, handle.Ext)
		return err
	})
	if err != nil {
		return e.fail(err)
	}
	e.log = e.log.With().Str("image_id", ticket.ImageID).Logger()
	e.to(StatePushingBytes)

	err = e.call(ctx, func(cctx context.Context) error {
		return o.provider.PushBytes(cctx, ticket, handle.Filename(), data)
	})
	if err != nil {
		return e.fail(err)
	}
	e.to(StateRequestingGeneration)

	genReq := e.buildRequest(req)
	var generationID string
	err = e.call(ctx, func(cctx context.Context) error {
		var err error
		generationID, err = o.provider.RequestGeneration(cctx, genReq, ticket.ImageID)
		return err
	})
	if err != nil {
		return e.fail(err)
	}
	e.result.Job = domain.GenerationJob{GenerationID: generationID, Status: domain.JobStatusPending}
	e.log = e.log.With().Str("generation_id", generationID).Logger()
	e.to(StatePolling)

	imageURL, err := e.poll(ctx, generationID)
	if err != nil {
		if errors.Is(err, domain.ErrTimedOut) {
			e.result.Job.Status = domain.JobStatusTimedOut
			e.result.Err = err
			e.to(StateTimedOut)
			e.log.Warn().Int("polls", e.result.Polls).Msg("workflow: generation timed out")
			return err
		}
		return e.fail(err)
	}
	e.result.Job.Status = domain.JobStatusReady
	e.to(StateDownloading)

	var (
		payload  []byte
		encoding domain.Encoding
	)
	err = e.call(ctx, func(cctx context.Context) error {
		var err error
		payload, encoding, err = o.provider.Download(cctx, imageURL)
		return err
	})
	if err != nil {
		return e.fail(err)
	}
	asset, err := o.store.SaveGenerated(ctx, payload, encoding, storage.GeneratedMeta{
		SourceURL:    imageURL,
		GenerationID: generationID,
	})
	if err != nil {
		return e.fail(err)
	}
	e.result.Asset = asset
	e.to(StateDone)
	e.log.Info().Str("asset_id", asset.ID).Int("polls", e.result.Polls).Dur("elapsed", time.Since(e.start)).Msg("workflow: done")
	return nil
}

// poll asks for the job status every Interval until a result URL shows up or
// the cumulative Timeout elapses. Waits are clamped to the deadline so the
// last poll happens at the deadline, never after an extra full interval.
func (e *execution) poll(ctx context.Context, generationID string) (string, error) {
	policy := e.o.opts.Poll
	deadline := time.Now().Add(policy.Timeout)
	for {
		wait := policy.Interval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		e.result.Polls++
		var job *domain.GenerationJob
		err := e.callFor(ctx, e.pollCallTimeout(deadline), func(cctx context.Context) error {
			var err error
			job, err = e.o.provider.GetStatus(cctx, generationID)
			return err
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil && errors.Is(err, context.DeadlineExceeded) && !time.Now().Before(deadline):
			e.o.opts.Metrics.observePoll(pollTolerated)
			e.log.Warn().Err(err).Int("poll", e.result.Polls).Msg("workflow: poll cut off at deadline")
		case err != nil && policy.Tolerate(err):
			e.o.opts.Metrics.observePoll(pollTolerated)
			e.log.Warn().Err(err).Int("poll", e.result.Polls).Msg("workflow: poll failed, continuing")
		case err != nil:
			e.o.opts.Metrics.observePoll(pollFailed)
			return "", err
		default:
			e.result.Job.RemoteStatus = job.RemoteStatus
			if url := job.FirstImageURL(); url != "" {
				e.result.Job.ImageURLs = job.ImageURLs
				e.o.opts.Metrics.observePoll(pollReady)
				return url, nil
			}
			e.o.opts.Metrics.observePoll(pollPending)
			e.log.Debug().Int("poll", e.result.Polls).Str("remote_status", job.RemoteStatus).Msg("workflow: result not ready")
		}

		if !time.Now().Before(deadline) {
			return "", domain.NewError(domain.ErrTimedOut, "workflow: poll", 0,
				fmt.Sprintf("no result after %s (%d polls)", policy.Timeout, e.result.Polls), nil)
		}
	}
}

// call runs fn with the per-call timeout applied.
func (e *execution) call(ctx context.Context, fn func(context.Context) error) error {
	return e.callFor(ctx, e.o.opts.CallTimeout, fn)
}

func (e *execution) callFor(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

// pollCallTimeout bounds a status call by the remaining poll budget. The
// poll at the deadline gets one Interval, so a hung call can delay the
// timeout by at most that much.
func (e *execution) pollCallTimeout(deadline time.Time) time.Duration {
	limit := time.Until(deadline)
	if limit < e.o.opts.Poll.Interval {
		limit = e.o.opts.Poll.Interval
	}
	if limit > e.o.opts.CallTimeout {
		limit = e.o.opts.CallTimeout
	}
	return limit
}

func (e *execution) buildRequest(req Request) domain.GenerationRequest {
	out := e.o.opts.Defaults
	out.References = append([]domain.ImageReference(nil), out.References...)
	out.Prompt = domain.NormalizePrompt(req.Prompt, e.o.opts.DefaultPrompt)
	if req.Width > 0 {
		out.Width = req.Width
	}
	if req.Height > 0 {
		out.Height = req.Height
	}
	if s := strings.ToUpper(strings.TrimSpace(req.Strength)); s != "" {
		out.Strength = s
	}
	if req.Seed > 0 {
		out.Seed = req.Seed
	}
	return out
}

func (e *execution) to(next State) {
	prev := e.result.State
	e.result.State = next
	e.result.Trace = append(e.result.Trace, Transition{From: prev, To: next, At: time.Now()})
	e.o.opts.Metrics.observeTransition(prev, next)
	e.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("workflow: transition")
}

func (e *execution) fail(err error) error {
	if e.result.Job.GenerationID != "" {
		e.result.Job.Status = domain.JobStatusFailed
	}
	e.result.Err = err
	e.log.Error().Err(err).Str("state", string(e.result.State)).Msg("workflow: failed")
	e.to(StateFailed)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
