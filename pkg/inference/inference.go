package inference

import (
	"context"

	"github.com/rhuss/strom/pkg/api"
)

// Request is the backend-facing generation request, stripped of transport
// and tool-dialect concerns. Prompt is already rendered by the driver's
// caller; this package does not own chat templating.
type Request struct {
	Model      string
	Prompt     string
	NumChoices int
	MaxTokens  int
	Stop       []string
}

// StepOutput is the cumulative state for one choice as of this decode
// step, not just the incremental piece; the driver derives the per-step
// deltas from it.
type StepOutput struct {
	Index        int
	Text         string
	TokenIDs     []int
	FinishReason string // empty until this choice finishes
	StopReason   any
}

// Result is one decode step across every choice of a request, plus
// prompt-side token accounting needed for usage reporting.
type Result struct {
	PromptTokenIDs []int
	Outputs        []StepOutput
}

// Engine abstracts a generation backend. Implementations must be safe for
// the single streaming goroutine the driver runs per request; concurrent
// calls across requests must not share Result slices.
type Engine interface {
	// Name identifies the backend for logging/observability labels.
	Name() string

	// Generate streams decode steps until the backend closes the channel.
	// Each value carries the cumulative state of every still-active choice;
	// a choice is omitted from future Results once its FinishReason is set.
	Generate(ctx context.Context, req *Request) (<-chan Result, error)

	// TokenID resolves a literal string to its vocabulary id, used by
	// dialect-specific tool parsers that key on control-token ids. ok is
	// false if the backend's vocabulary has no such token.
	TokenID(s string) (int, bool)

	// Abort cancels an in-flight generation by request id, typically on
	// client disconnect.
	Abort(requestID string)
}

// Error wraps a backend failure surfaced mid-stream: the driver converts
// this to a choiceless error event rather than a panic.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}
func (e *Error) Unwrap() error { return e.Cause }

// AsAPIError renders an Error into the structured server_error shape the
// wire protocol uses for backend failures.
func (e *Error) AsAPIError() *api.APIError {
	return api.NewServerError(e.Error())
}
