package ssereplay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rhuss/strom/pkg/api"
)

// ToolCallAccumulator folds every DeltaToolCall seen for one tool-call
// index into its materialized per-choice shape:
// Arguments grows as a strict concatenation of every arguments delta
// emitted for that index, in emission order.
type ToolCallAccumulator struct {
	ID        string
	Type      string
	Name      string
	Arguments strings.Builder
}

// ChoiceAccumulator folds every chunk seen for one choice index.
type ChoiceAccumulator struct {
	Role         string
	Content      strings.Builder
	toolCalls    map[int]*ToolCallAccumulator
	FinishReason string
	StopReason   any
	RoleChunks   int // count of chunks that carried a non-empty Delta.Role
}

// ToolCalls returns the accumulated tool calls ordered by index, in the
// api.ToolCall shape a non-streaming extraction would have produced.
func (c *ChoiceAccumulator) ToolCalls() []api.ToolCall {
	indices := make([]int, 0, len(c.toolCalls))
	for idx := range c.toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	out := make([]api.ToolCall, 0, len(indices))
	for _, idx := range indices {
		tc := c.toolCalls[idx]
		out = append(out, api.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: api.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments.String(),
			},
		})
	}
	return out
}

// Result is the fully decoded stream: one ChoiceAccumulator per choice
// index seen, plus the final usage chunk if one was sent, plus any error
// chunk the server emitted.
type Result struct {
	Choices map[int]*ChoiceAccumulator
	Usage   *api.Usage
	Error   *api.APIError
}

func (r *Result) choice(index int) *ChoiceAccumulator {
	c, ok := r.Choices[index]
	if !ok {
		c = &ChoiceAccumulator{toolCalls: make(map[int]*ToolCallAccumulator)}
		r.Choices[index] = c
	}
	return c
}

// Decode reads an SSE byte stream produced by this server's emitter
// (`data: <json>\n\n` lines terminated by `data: [DONE]\n\n`)
// and folds every chunk into a Result. It stops at the first [DONE] line
// or at EOF, whichever comes first; a stream with no [DONE] (a truncated
// capture) is not an error.
func Decode(r io.Reader) (*Result, error) {
	result := &Result{Choices: make(map[int]*ChoiceAccumulator)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return result, nil
		}

		// An error chunk is `{"error": {...}}`, not a StreamChunk; try it
		// first since a StreamChunk never has a top-level "error" key.
		var errEnvelope api.ErrorResponse
		if err := json.Unmarshal([]byte(payload), &errEnvelope); err == nil && errEnvelope.Error != nil {
			result.Error = errEnvelope.Error
			continue
		}

		var chunk api.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("ssereplay: malformed chunk: %w", err)
		}
		foldChunk(result, &chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func foldChunk(result *Result, chunk *api.StreamChunk) {
	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			result.Usage = chunk.Usage
		}
		return
	}

	for _, sc := range chunk.Choices {
		acc := result.choice(sc.Index)

		if sc.Delta.Role != "" {
			acc.Role = sc.Delta.Role
			acc.RoleChunks++
		}
		if sc.Delta.Content != nil {
			acc.Content.WriteString(*sc.Delta.Content)
		}
		for _, tc := range sc.Delta.ToolCalls {
			tcAcc, ok := acc.toolCalls[tc.Index]
			if !ok {
				tcAcc = &ToolCallAccumulator{}
				acc.toolCalls[tc.Index] = tcAcc
			}
			if tc.ID != "" {
				tcAcc.ID = tc.ID
			}
			if tc.Type != "" {
				tcAcc.Type = tc.Type
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					tcAcc.Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					tcAcc.Arguments.WriteString(tc.Function.Arguments)
				}
			}
		}
		if sc.FinishReason != nil {
			acc.FinishReason = *sc.FinishReason
			acc.StopReason = sc.StopReason
		}
		if chunk.Usage != nil {
			result.Usage = chunk.Usage
		}
	}
}
