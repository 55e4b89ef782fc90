// Package driver consumes one inference.Engine generation, feeds each
// decode step through the configured tool-call parser (or bypasses it for
// a named tool_choice), shapes the result into StreamChunks via
// pkg/chunkshaper, and writes them out through a ChunkWriter until the
// engine's output channel closes or the caller's context is cancelled.
//
// Parser state is per request, per choice: the driver owns one
// toolparser.Parser per choice index and never shares it.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/chunkshaper"
	"github.com/rhuss/strom/pkg/debug"
	"github.com/rhuss/strom/pkg/inference"
	"github.com/rhuss/strom/pkg/observability"
	"github.com/rhuss/strom/pkg/toolparser"
)

func nowUnix() int64 { return time.Now().Unix() }

// ChunkWriter is the Stream Driver's only side effect: emitting one
// StreamChunk at a time on the wire. Implementations (e.g. the SSE
// emitter in pkg/transport/http) must preserve call order; the driver
// never writes concurrently.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, chunk *api.StreamChunk) error
	// WriteError emits the choiceless error-chunk shape for a mid-stream
	// engine failure, followed by the [DONE] sentinel.
	WriteError(ctx context.Context, apiErr *api.APIError) error
}

// ParserFactory builds a fresh, per-choice toolparser.Parser. The dialect
// selection is made once at server startup; the factory closes over it,
// and what varies per call is only the fresh per-choice State.
type ParserFactory func() (toolparser.Parser, error)

// Config carries the tool-dispatch configuration plus the echo and
// generation-prompt knobs.
type Config struct {
	// AutoToolChoice gates whether NewParser is ever consulted.
	AutoToolChoice bool
	// NewParser is nil when no dialect is configured. It is consulted only
	// when AutoToolChoice is set and the request declares tools with
	// tool_choice absent or "auto"; otherwise a step is plain content.
	NewParser ParserFactory
	// ResponseRole is the default role for generated turns.
	ResponseRole string
	// AddGenerationPrompt selects ResponseRole over the last message's role
	// for the preamble chunk.
	AddGenerationPrompt bool
}

// Driver drives one streaming Chat Completions request end to end.
type Driver struct {
	Engine inference.Engine
	Config Config
	Logger *slog.Logger
}

// New returns a Driver bound to an engine and configuration.
func New(engine inference.Engine, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Engine: engine, Config: cfg, Logger: logger}
}

// namedBypass holds the per-choice state needed to bypass the parser when
// tool_choice pins a specific function: the name and id are shipped once,
// then every further step streams delta_text verbatim as the arguments
// tail.
type namedBypass struct {
	id        string
	name      string
	announced bool
}

type choiceState struct {
	prevText     string
	prevTokenIDs []int
	finished     bool
	parser       toolparser.Parser
	bypass       *namedBypass
}

// Run drives req to completion, writing every chunk (role preambles,
// content/tool-call deltas, terminal chunks, optional usage chunk) through
// w, then returns. It returns nil for a recovered mid-stream condition (a
// ParseError), for Generate failing outright once the error chunk has been
// written, and for ctx cancellation (client disconnect), in which case no
// error chunk is written and Engine.Abort is invoked exactly once. It
// returns a non-nil error for a pre-stream failure (an APIErrorer) or when
// writing to w fails.
func (d *Driver) Run(ctx context.Context, requestID string, req *api.ChatCompletionRequest, w ChunkWriter) error {
	n := req.N
	if n <= 0 {
		n = 1
	}

	mode, namedChoice, apiErr := api.ParseToolChoice(req.ToolChoice)
	if apiErr != nil {
		return &validationFailure{apiErr: apiErr}
	}

	shaper := chunkshaper.New(api.NewChatCompletionID(), req.Model, nowUnix())
	policy := usagePolicy(req)

	autoDispatch := mode == "auto" && namedChoice == nil && len(req.Tools) > 0 && d.Config.AutoToolChoice && d.Config.NewParser != nil

	// Validate parser construction for the whole request up front, before
	// any preamble is written, so a configuration failure never leaves a
	// partially-started stream behind.
	if autoDispatch {
		if _, err := d.Config.NewParser(); err != nil {
			return &configFailure{apiErr: api.NewConfigurationError("failed to construct tool-call parser: " + err.Error())}
		}
	}

	states := make([]*choiceState, n)
	for i := 0; i < n; i++ {
		cs := &choiceState{}
		if namedChoice != nil {
			cs.bypass = &namedBypass{id: api.NewChatCompletionID(), name: namedChoice.Function.Name}
		} else if autoDispatch {
			p, err := d.Config.NewParser()
			if err != nil {
				return &configFailure{apiErr: api.NewConfigurationError("failed to construct tool-call parser: " + err.Error())}
			}
			cs.parser = p
		}
		states[i] = cs

		role := d.Config.ResponseRole
		if !d.Config.AddGenerationPrompt && len(req.Messages) > 0 {
			role = req.Messages[len(req.Messages)-1].Role
		}
		promptTokens, completionTokens := 0, 0
		if err := w.WriteChunk(ctx, shaper.RolePreamble(i, role, policy, promptTokens, completionTokens)); err != nil {
			return err
		}
		if req.Echo && len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Role == role {
			if text, ok := req.Messages[len(req.Messages)-1].Content.(string); ok && text != "" {
				echo := &api.DeltaMessage{Content: &text}
				if err := w.WriteChunk(ctx, shaper.Delta(i, echo, policy, promptTokens, completionTokens)); err != nil {
					return err
				}
			}
		}
	}

	results, err := d.Engine.Generate(ctx, &inference.Request{Model: req.Model, NumChoices: n})
	if err != nil {
		return d.writeEngineError(ctx, w, &inference.Error{Message: "engine failed to start generation", Cause: err})
	}

	generateStart := time.Now()
	var lastPromptTokens int
	completionTokens := make([]int, n)
	defer func() {
		observability.EngineGenerateDuration.WithLabelValues(req.Model).Observe(time.Since(generateStart).Seconds())
		total := 0
		for _, c := range completionTokens {
			total += c
		}
		observability.EngineTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(lastPromptTokens))
		observability.EngineTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(total))
	}()

	for result := range results {
		if ctx.Err() != nil {
			d.Engine.Abort(requestID)
			return nil
		}

		lastPromptTokens = len(result.PromptTokenIDs)

		for _, out := range result.Outputs {
			idx := out.Index
			if idx < 0 || idx >= n || states[idx].finished {
				continue
			}
			cs := states[idx]

			deltaText := out.Text[len(cs.prevText):]
			deltaTokenIDs := out.TokenIDs[len(cs.prevTokenIDs):]
			step := toolparser.Step{
				PreviousText:     cs.prevText,
				CurrentText:      out.Text,
				DeltaText:        deltaText,
				PreviousTokenIDs: cs.prevTokenIDs,
				CurrentTokenIDs:  out.TokenIDs,
				DeltaTokenIDs:    deltaTokenIDs,
			}
			cs.prevText = out.Text
			cs.prevTokenIDs = out.TokenIDs
			completionTokens[idx] = len(out.TokenIDs)

			delta := d.deltaFor(cs, step)

			if out.FinishReason != "" {
				cs.finished = true
				var state *toolparser.State
				if cs.parser != nil {
					state = cs.parser.State()
					delta = appendArgumentsTail(cs.parser, out.Text, delta)
				}
				if delta == nil {
					delta = &api.DeltaMessage{}
				}
				final := shaper.Final(idx, delta, out.FinishReason, out.StopReason, state, policy, lastPromptTokens, completionTokens[idx])
				if err := w.WriteChunk(ctx, final); err != nil {
					return err
				}
				continue
			}

			if delta == nil {
				continue
			}
			if err := w.WriteChunk(ctx, shaper.Delta(idx, delta, policy, lastPromptTokens, completionTokens[idx])); err != nil {
				return err
			}
		}
	}

	// On cancellation the engine may close its channel without delivering
	// another result, so the disconnect check also runs after the loop.
	if ctx.Err() != nil {
		d.Engine.Abort(requestID)
		return nil
	}

	if policy != nil && policy.IncludeUsage && !policy.Continuous {
		total := 0
		for _, c := range completionTokens {
			total += c
		}
		if err := w.WriteChunk(ctx, shaper.FinalUsage(lastPromptTokens, total)); err != nil {
			return err
		}
	}
	return nil
}

// deltaFor dispatches one step to the named-tool bypass, the configured
// parser, or plain content passthrough.
func (d *Driver) deltaFor(cs *choiceState, step toolparser.Step) *api.DeltaMessage {
	switch {
	case cs.bypass != nil:
		first := !cs.bypass.announced
		delta := cs.bypass.next(step.DeltaText)
		if first && delta != nil {
			observability.ToolCallsExtractedTotal.WithLabelValues("named").Inc()
		}
		return delta
	case cs.parser != nil:
		debug.Log("driver", "dispatching step to tool-call parser", "delta_len", len(step.DeltaText))
		delta, err := cs.parser.ExtractStreaming(step)
		if err != nil {
			observability.ParseErrorsRecoveredTotal.WithLabelValues(cs.parser.Dialect()).Inc()
			var pe *toolparser.ParseError
			if errors.As(err, &pe) {
				d.Logger.Debug("recovered tool-call parse error", "dialect", pe.Dialect, "error", pe.Cause)
				debug.Log("parser", "recovered parse error", "dialect", pe.Dialect, "error", pe.Cause)
			} else {
				d.Logger.Debug("recovered tool-call parser error", "error", err)
				debug.Log("parser", "recovered parser error", "error", err)
			}
			return nil
		}
		// An initial stub (tool_calls entry with no function fields yet)
		// marks one new tool call committed to the wire.
		if delta != nil && len(delta.ToolCalls) > 0 && delta.ToolCalls[0].Function == nil {
			observability.ToolCallsExtractedTotal.WithLabelValues(cs.parser.Dialect()).Inc()
		}
		return delta
	default:
		if step.DeltaText == "" {
			return nil
		}
		text := step.DeltaText
		return &api.DeltaMessage{Content: &text}
	}
}

// next implements the named tool_choice bypass: the id/type/name
// preamble is shipped exactly once, on the first step that
// carries text, then every subsequent step streams delta_text verbatim as
// the arguments tail.
func (b *namedBypass) next(deltaText string) *api.DeltaMessage {
	if !b.announced {
		b.announced = true
		return &api.DeltaMessage{ToolCalls: []api.DeltaToolCall{{
			Index: 0,
			ID:    b.id,
			Type:  "function",
			Function: &api.DeltaFunctionCall{
				Name:      b.name,
				Arguments: deltaText,
			},
		}}}
	}
	if deltaText == "" {
		return nil
	}
	return &api.DeltaMessage{ToolCalls: []api.DeltaToolCall{{
		Index:    0,
		Function: &api.DeltaFunctionCall{Arguments: deltaText},
	}}}
}

// appendArgumentsTail flushes whatever tail of the last tool call's
// arguments the incremental diffing never got to stream, so the
// concatenated argument deltas always equal the canonical serialization of
// the final parsed arguments. The expected text comes from a complete
// re-extraction of the finished output, not from the parser's incremental
// state, which can lag behind when the first-chunk search never anchored.
func appendArgumentsTail(p toolparser.Parser, finalText string, delta *api.DeltaMessage) *api.DeltaMessage {
	st := p.State()
	if st.PrevToolCallArr.Len() == 0 {
		return delta
	}
	complete := p.ExtractComplete(finalText)
	if !complete.ToolsCalled || len(complete.ToolCalls) == 0 {
		return delta
	}

	idx := len(complete.ToolCalls) - 1
	expected := complete.ToolCalls[idx].Function.Arguments
	streamed := ""
	if idx < len(st.StreamedArgsForTool) {
		streamed = st.StreamedArgsForTool[idx]
	}
	if !strings.HasPrefix(expected, streamed) {
		return delta
	}
	remaining := expected[len(streamed):]
	if remaining == "" {
		return delta
	}
	if idx < len(st.StreamedArgsForTool) {
		st.StreamedArgsForTool[idx] += remaining
	}

	if delta == nil {
		delta = &api.DeltaMessage{}
	}
	for i := range delta.ToolCalls {
		tc := &delta.ToolCalls[i]
		if tc.Index == idx && tc.Function != nil {
			tc.Function.Arguments += remaining
			return delta
		}
	}
	delta.ToolCalls = append(delta.ToolCalls, api.DeltaToolCall{
		Index:    idx,
		Function: &api.DeltaFunctionCall{Arguments: remaining},
	})
	return delta
}

// writeEngineError recovers an engine failure mid-stream: it emits the
// choiceless error chunk (via the same ChunkWriter every other chunk goes
// through, since the preamble for each choice has already been
// written by the time generation can fail) and reports completion — the
// driver has fully handled the failure, so Run returns nil afterward.
func (d *Driver) writeEngineError(ctx context.Context, w ChunkWriter, engErr *inference.Error) error {
	d.Logger.Error("engine error", "error", engErr.Error())
	return w.WriteError(ctx, engErr.AsAPIError())
}

// APIErrorer is implemented by every pre-stream failure Run can return
// (configFailure, validationFailure), letting the HTTP adapter render
// them as a plain error response via errors.As before any chunk is sent.
type APIErrorer interface {
	error
	APIError() *api.APIError
}

// configFailure is returned when the tool-call parser could not be
// constructed at request setup: no chunk has been written yet, so the HTTP
// adapter surfaces this as a plain HTTP 400 response rather than a
// streamed error chunk.
type configFailure struct{ apiErr *api.APIError }

func (e *configFailure) Error() string           { return e.apiErr.Error() }
func (e *configFailure) APIError() *api.APIError { return e.apiErr }

// validationFailure is returned when tool_choice cannot be honored at
// all: the HTTP adapter must surface this as an HTTP error response before
// any chunk is written, never as a wire error chunk, since streaming has
// not started yet.
type validationFailure struct{ apiErr *api.APIError }

func (e *validationFailure) Error() string           { return e.apiErr.Error() }
func (e *validationFailure) APIError() *api.APIError { return e.apiErr }

func usagePolicy(req *api.ChatCompletionRequest) *chunkshaper.UsagePolicy {
	if req.StreamOptions == nil {
		return nil
	}
	return &chunkshaper.UsagePolicy{
		IncludeUsage: req.StreamOptions.IncludeUsage,
		Continuous:   req.StreamOptions.ContinuousUsageStats,
	}
}
