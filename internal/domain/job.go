package domain

// JobStatus enumerates the inferred lifecycle of a remote generation.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusReady    JobStatus = "ready"
	JobStatusFailed   JobStatus = "failed"
	JobStatusTimedOut JobStatus = "timed_out"
)

// Terminal reports whether no further polling can change the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed || s == JobStatusTimedOut
}

// UploadTicket is the provider's one-time write target for raw bytes.
type UploadTicket struct {
	URL      string
	Fields   map[string]string
	ImageID  string
	consumed bool
}

// Consume marks the ticket used. Only the first call succeeds.
func (t *UploadTicket) Consume() error {
	if t == nil {
		return ErrInvalidInput
	}
	if t.consumed {
		return ErrTicketConsumed
	}
	t.consumed = true
	return nil
}

// Consumed reports whether the push step already used the ticket.
func (t *UploadTicket) Consumed() bool {
	return t != nil && t.consumed
}

// ImageReference points at a provider-side image used to steer generation.
type ImageReference struct {
	ImageID string
	Type    string
}

// GenerationRequest holds the parameters of a single generation job.
type GenerationRequest struct {
	Prompt        string
	Model         string
	Width         int
	Height        int
	References    []ImageReference
	Strength      string
	Mode          string
	Seed          int
	PromptEnhance bool
	Quantity      int
	Public        bool
}

// GenerationJob is one snapshot of a remote job.
type GenerationJob struct {
	GenerationID string
	Status       JobStatus
	RemoteStatus string
	ImageURLs    []string
}

// FirstImageURL returns the first discovered result URL, if any.
func (j GenerationJob) FirstImageURL() string {
	if len(j.ImageURLs) == 0 {
		return ""
	}
	return j.ImageURLs[0]
}
