package ssereplay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/driver"
	"github.com/rhuss/strom/pkg/inference/fakeengine"
	"github.com/rhuss/strom/pkg/ssereplay"
	"github.com/rhuss/strom/pkg/toolparser"
	"github.com/rhuss/strom/pkg/transport"
	transporthttp "github.com/rhuss/strom/pkg/transport/http"
)

func postStream(t *testing.T, srv *httptest.Server, req api.ChatCompletionRequest) *ssereplay.Result {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result, err := ssereplay.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return result
}

// TestMistralToolCallRoundTripsOverTheWire exercises the monotone-streaming
// and round-trip guarantees against the actual bytes an HTTP client
// receives, not just the in-process api.StreamChunk values pkg/driver's
// own tests assert against.
func TestMistralToolCallRoundTripsOverTheWire(t *testing.T) {
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

	handler := transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
		return drv.Run(ctx, "req-replay-1", req, w)
	})
	adapter := transporthttp.NewAdapter(handler, transporthttp.DefaultConfig())
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	req := api.ChatCompletionRequest{
		Model:  "demo-model",
		Stream: true,
		Tools: []api.Tool{{
			Type:     "function",
			Function: api.FunctionDef{Name: "get_weather"},
		}},
	}
	result := postStream(t, srv, req)

	choice, ok := result.Choices[0]
	if !ok {
		t.Fatal("no choice 0 in decoded stream")
	}
	if choice.Role != "assistant" {
		t.Errorf("role = %q, want assistant", choice.Role)
	}
	if choice.RoleChunks != 1 {
		t.Errorf("role chunks = %d, want exactly 1", choice.RoleChunks)
	}
	// finish_reason must be overridden to tool_calls.
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", choice.FinishReason)
	}

	calls := choice.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	if calls[0].Function.Name != "get_weather" {
		t.Errorf("function name = %q, want get_weather", calls[0].Function.Name)
	}

	// The streamed arguments, parsed as JSON, round-trip to the
	// structurally equivalent value the model emitted.
	var args struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal([]byte(calls[0].Function.Arguments), &args); err != nil {
		t.Fatalf("arguments %q did not parse as JSON: %v", calls[0].Function.Arguments, err)
	}
	if args.City != "Paris" {
		t.Errorf("city = %q, want Paris", args.City)
	}
}

// TestPlainTextNoToolsRoundTrips exercises the plain-text scenario over the
// wire: three content deltas concatenate to the full text and
// finish_reason is left untouched (no tool calls were ever emitted).
func TestPlainTextNoToolsRoundTrips(t *testing.T) {
	eng := fakeengine.New(nil, nil, fakeengine.Script{
		Index:        0,
		Chunks:       []string{"Hel", "lo ", "world"},
		FinishReason: "stop",
	})
	drv := driver.New(eng, driver.Config{ResponseRole: "assistant"}, nil)

	handler := transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
		return drv.Run(ctx, "req-replay-2", req, w)
	})
	adapter := transporthttp.NewAdapter(handler, transporthttp.DefaultConfig())
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	result := postStream(t, srv, api.ChatCompletionRequest{Model: "demo-model", Stream: true})

	choice := result.Choices[0]
	if got := choice.Content.String(); got != "Hello world" {
		t.Errorf("content = %q, want %q", got, "Hello world")
	}
	if choice.FinishReason != "stop" {
		t.Errorf("finish_reason = %q, want stop (no tool calls emitted)", choice.FinishReason)
	}
	if len(choice.ToolCalls()) != 0 {
		t.Errorf("unexpected tool calls: %+v", choice.ToolCalls())
	}
}

func TestDecodeStopsAtDoneSentinel(t *testing.T) {
	stream := "data: {\"id\":\"chatcmpl-x\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"id\":\"should-not-be-read\"}\n\n"

	result, err := ssereplay.Decode(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(result.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(result.Choices))
	}
	if got := result.Choices[0].Content.String(); got != "hi" {
		t.Errorf("content = %q, want hi", got)
	}
}
