package chunkshaper

import (
	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/debug"
	"github.com/rhuss/strom/pkg/toolparser"
)

// UsagePolicy mirrors request.stream_options: whether usage is reported
// at all, and whether it rides every chunk (continuous) or only the
// terminal choiceless one.
type UsagePolicy struct {
	IncludeUsage bool
	Continuous   bool
}

// Shaper builds every StreamChunk for one request, sharing the id, object
// type, creation time and model name that stay identical across a
// stream.
type Shaper struct {
	ID      string
	Model   string
	Created int64
}

const chunkObjectType = "chat.completion.chunk"

// New returns a Shaper bound to one request. created is a unix timestamp
// supplied by the caller, recorded once so every chunk in a stream
// reports the same value.
func New(id, model string, created int64) *Shaper {
	return &Shaper{ID: id, Model: model, Created: created}
}

func (s *Shaper) chunk(choices []api.StreamChoice, usage *api.Usage) *api.StreamChunk {
	return &api.StreamChunk{
		ID:      s.ID,
		Object:  chunkObjectType,
		Created: s.Created,
		Model:   s.Model,
		Choices: choices,
		Usage:   usage,
	}
}

func continuousUsage(policy *UsagePolicy, promptTokens, completionTokens int) *api.Usage {
	if policy == nil || !policy.IncludeUsage || !policy.Continuous {
		return nil
	}
	return &api.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// RolePreamble builds the first chunk of a choice: a role-only delta with
// no content, emitted once before any token deltas.
func (s *Shaper) RolePreamble(index int, role string, policy *UsagePolicy, promptTokens, completionTokens int) *api.StreamChunk {
	choice := api.StreamChoice{
		Index: index,
		Delta: api.DeltaMessage{Role: role},
	}
	return s.chunk([]api.StreamChoice{choice}, continuousUsage(policy, promptTokens, completionTokens))
}

// Delta builds a non-terminal chunk carrying one token step's delta
// (content or tool-call arguments), finish_reason always nil.
func (s *Shaper) Delta(index int, delta *api.DeltaMessage, policy *UsagePolicy, promptTokens, completionTokens int) *api.StreamChunk {
	choice := api.StreamChoice{Index: index, Delta: *delta}
	return s.chunk([]api.StreamChoice{choice}, continuousUsage(policy, promptTokens, completionTokens))
}

// Final builds the terminal per-choice chunk, applying the finish-reason
// override: tool_calls iff the parser ever emitted a tool call. Any
// end-of-stream argument flush has already been merged into delta by the
// driver.
func (s *Shaper) Final(
	index int,
	delta *api.DeltaMessage,
	finishReason string,
	stopReason any,
	state *toolparser.State,
	policy *UsagePolicy,
	promptTokens, completionTokens int,
) *api.StreamChunk {
	reason := overrideFinishReason(finishReason, state)
	choice := api.StreamChoice{
		Index:        index,
		Delta:        *delta,
		FinishReason: &reason,
		StopReason:   stopReason,
	}
	return s.chunk([]api.StreamChoice{choice}, continuousUsage(policy, promptTokens, completionTokens))
}

// FinalUsage builds the choiceless chunk sent after every choice has
// finished, when stream_options.include_usage is set.
func (s *Shaper) FinalUsage(promptTokens, completionTokens int) *api.StreamChunk {
	usage := &api.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	return s.chunk(nil, usage)
}

// overrideFinishReason: once the parser has ever produced a tool call
// (prev_tool_call_arr non-empty), the reported finish_reason is always
// "tool_calls", regardless of what the backend itself reported (e.g.
// "stop"). This holds even for an opening tag that was never closed.
func overrideFinishReason(finishReason string, state *toolparser.State) string {
	if state != nil && state.PrevToolCallArr != nil && state.PrevToolCallArr.Len() > 0 {
		debug.Log("chunkshaper", "overriding finish_reason", "original", finishReason, "override", "tool_calls")
		return "tool_calls"
	}
	return finishReason
}
