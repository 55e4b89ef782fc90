package fakeengine

import (
	"context"

	"github.com/rhuss/strom/pkg/inference"
)

// Script scripts one choice's decode as an ordered list of text chunks,
// one emitted per step, with a finish reason attached to the last chunk.
type Script struct {
	Index        int
	Chunks       []string
	FinishReason string
	StopReason   any
}

// Engine is a deterministic inference.Engine double. It also implements
// tokenizer.Tokenizer (TokenID + Decode) so it can back a HermesParser or
// MistralParser directly in tests without a second fake.
type Engine struct {
	Vocab          map[string]int
	Choices        []Script
	PromptTokenIDs []int

	tokens map[int]string
	next   int

	aborted []string
}

// New returns an Engine with the given control-token vocabulary (e.g.
// "[TOOL_CALLS]" or "<tool_call>"/"</tool_call>" mapped to fixed ids).
// Plain-text chunks not present in vocab are assigned synthetic ids
// starting at 1000, deterministically, in first-seen order.
func New(vocab map[string]int, promptTokenIDs []int, choices ...Script) *Engine {
	tokens := make(map[int]string, len(vocab))
	for tok, id := range vocab {
		tokens[id] = tok
	}
	return &Engine{
		Vocab:          vocab,
		Choices:        choices,
		PromptTokenIDs: promptTokenIDs,
		tokens:         tokens,
		next:           1000,
	}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) TokenID(s string) (int, bool) {
	id, ok := e.Vocab[s]
	return id, ok
}

// Abort records the request id for test assertions; Generate's goroutine
// already watches ctx.Done() for real cancellation.
func (e *Engine) Abort(requestID string) {
	e.aborted = append(e.aborted, requestID)
}

// Aborted reports every request id Abort has been called with, in order.
func (e *Engine) Aborted() []string { return e.aborted }

func (e *Engine) Decode(ids []int) string {
	out := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		out = append(out, e.tokens[id]...)
	}
	return string(out)
}

func (e *Engine) idFor(chunk string) int {
	if id, ok := e.Vocab[chunk]; ok {
		return id
	}
	id := e.next
	e.next++
	e.tokens[id] = chunk
	return id
}

// Generate replays the scripted choices, one chunk per decode step across
// all still-active choices, closing the channel once every choice has
// emitted its final chunk. A choice shorter than the longest one simply
// stops appearing in subsequent Results, the way a real engine omits
// finished sequences from its step outputs.
func (e *Engine) Generate(ctx context.Context, _ *inference.Request) (<-chan inference.Result, error) {
	ch := make(chan inference.Result)

	maxSteps := 0
	for _, c := range e.Choices {
		if len(c.Chunks) > maxSteps {
			maxSteps = len(c.Chunks)
		}
	}

	cumText := make([]string, len(e.Choices))
	cumIDs := make([][]int, len(e.Choices))
	done := make([]bool, len(e.Choices))

	go func() {
		defer close(ch)
		for step := 0; step < maxSteps; step++ {
			var outs []inference.StepOutput
			for i, c := range e.Choices {
				if done[i] {
					continue
				}
				if step >= len(c.Chunks) {
					continue
				}
				chunk := c.Chunks[step]
				cumText[i] += chunk
				cumIDs[i] = append(cumIDs[i], e.idFor(chunk))

				out := inference.StepOutput{
					Index:    c.Index,
					Text:     cumText[i],
					TokenIDs: append([]int(nil), cumIDs[i]...),
				}
				if step == len(c.Chunks)-1 {
					out.FinishReason = c.FinishReason
					out.StopReason = c.StopReason
					done[i] = true
				}
				outs = append(outs, out)
			}
			if len(outs) == 0 {
				continue
			}
			select {
			case ch <- inference.Result{PromptTokenIDs: e.PromptTokenIDs, Outputs: outs}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
