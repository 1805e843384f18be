package workflow

// State is a step of the generation workflow.
type State string

const (
	StateUploading            State = "uploading"
	StateAwaitingTicket       State = "awaiting_ticket"
	StatePushingBytes         State = "pushing_bytes"
	StateRequestingGeneration State = "requesting_generation"
	StatePolling              State = "polling"
	StateDownloading          State = "downloading"
	StateDone                 State = "done"
	StateFailed               State = "failed"
	StateTimedOut             State = "timed_out"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateTimedOut
}
