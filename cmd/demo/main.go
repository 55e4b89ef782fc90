// Command demo drives pkg/driver end to end against pkg/inference/fakeengine
// and prints every StreamChunk it emits, one scenario at a time. It exists
// to make the streaming tool-call extraction core observable without
// standing up an HTTP server or a real model backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/driver"
	"github.com/rhuss/strom/pkg/inference/fakeengine"
	"github.com/rhuss/strom/pkg/toolparser"
)

// printWriter is a driver.ChunkWriter that prints each chunk as one line
// of compact JSON, so a reader can watch the incremental deltas arrive.
type printWriter struct{}

func (w *printWriter) WriteChunk(_ context.Context, chunk *api.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	fmt.Printf("  data: %s\n", data)
	return nil
}

func (w *printWriter) WriteError(_ context.Context, apiErr *api.APIError) error {
	fmt.Printf("  error: %s\n", apiErr.Message)
	return nil
}

func main() {
	fmt.Println("=== strom streaming tool-call extraction demo ===")

	runPlainText()
	runMistralToolCall()
	runHermesTwoToolCalls()

	fmt.Println("\n=== demo complete ===")
}

// runPlainText replays a plain completion: no tool-call region at all,
// three content deltas followed by a "stop" terminal.
func runPlainText() {
	fmt.Println("\n[1] Plain text, no tools")

	eng := fakeengine.New(nil, nil, fakeengine.Script{
		Index:        0,
		Chunks:       []string{"Hel", "lo ", "world"},
		FinishReason: "stop",
	})
	drv := driver.New(eng, driver.Config{ResponseRole: "assistant"}, nil)

	req := &api.ChatCompletionRequest{Model: "demo-model", Stream: true}
	if err := drv.Run(context.Background(), "req-1", req, &printWriter{}); err != nil {
		fmt.Println("  driver error:", err)
	}
}

// runMistralToolCall replays a single Mistral-style
// tool call, with the function name and argument value each split mid-token
// to exercise the partial-JSON parser's incremental emission.
func runMistralToolCall() {
	fmt.Println("\n[2] Mistral dialect, single tool call")

	vocab := map[string]int{"[TOOL_CALLS]": 5}
	eng := fakeengine.New(vocab, []int{1, 2, 3}, fakeengine.Script{
		Index: 0,
		Chunks: []string{
			"[TOOL_CALLS]", "[{'name': '", "get_we", "ather', 'arguments': {'city': '",
			"Par", "is'}}]",
		},
		FinishReason: "stop",
	})

	cfg := driver.Config{
		ResponseRole:   "assistant",
		AutoToolChoice: true,
		NewParser: func() (toolparser.Parser, error) {
			botTokenID, _ := eng.TokenID("[TOOL_CALLS]")
			return toolparser.NewMistralParser(botTokenID), nil
		},
	}
	drv := driver.New(eng, cfg, nil)

	req := &api.ChatCompletionRequest{
		Model:  "demo-model",
		Stream: true,
		Tools: []api.Tool{{
			Type:     "function",
			Function: api.FunctionDef{Name: "get_weather"},
		}},
	}
	if err := drv.Run(context.Background(), "req-2", req, &printWriter{}); err != nil {
		fmt.Println("  driver error:", err)
	}
}

// runHermesTwoToolCalls replays two sequential
// Hermes-2-Pro tool calls in one response, exercising the per-tool index
// cursor advancing from 0 to 1.
func runHermesTwoToolCalls() {
	fmt.Println("\n[3] Hermes dialect, two sequential tool calls")

	vocab := map[string]int{"<tool_call>": 10, "</tool_call>": 11}
	eng := fakeengine.New(vocab, []int{1}, fakeengine.Script{
		Index: 0,
		Chunks: []string{
			"<tool_call>", `{"name":"a",`, `"arguments":{"x":`, `1`, `}}`, "</tool_call>",
			"<tool_call>", `{"name":"b",`, `"arguments":{"y":`, `2`, `}}`, "</tool_call>",
		},
		FinishReason: "stop",
	})

	cfg := driver.Config{
		ResponseRole:   "assistant",
		AutoToolChoice: true,
		NewParser: func() (toolparser.Parser, error) {
			return toolparser.NewHermesParser(eng)
		},
	}
	drv := driver.New(eng, cfg, nil)

	req := &api.ChatCompletionRequest{
		Model:  "demo-model",
		Stream: true,
		Tools: []api.Tool{
			{Type: "function", Function: api.FunctionDef{Name: "a"}},
			{Type: "function", Function: api.FunctionDef{Name: "b"}},
		},
	}
	if err := drv.Run(context.Background(), "req-3", req, &printWriter{}); err != nil {
		fmt.Println("  driver error:", err)
	}
}
