package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/strom/pkg/api"
)

func finishReason(s string) *string { return &s }

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	resp := &api.ChatCompletionResponse{
		ID:     "chatcmpl-abc123",
		Object: "chat.completion",
		Model:  "test-model",
	}

	if err := rw.WriteResponse(context.Background(), resp); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var got api.ChatCompletionResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "chatcmpl-abc123" {
		t.Errorf("ID = %q, want %q", got.ID, "chatcmpl-abc123")
	}
}

func TestWriteChunkSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	text := "Hello"
	chunk := &api.StreamChunk{
		ID:     "chatcmpl-1",
		Object: "chat.completion.chunk",
		Model:  "test-model",
		Choices: []api.StreamChoice{
			{Index: 0, Delta: api.DeltaMessage{Content: &text}},
		},
	}

	if err := rw.WriteChunk(context.Background(), chunk); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("missing data prefix in:\n%s", body)
	}
	if strings.Contains(body, "event:") {
		t.Errorf("Chat Completions SSE frames must not carry a named event: line, got:\n%s", body)
	}

	jsonStr := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	var got api.StreamChunk
	if err := json.Unmarshal([]byte(jsonStr), &got); err != nil {
		t.Fatalf("failed to parse chunk JSON: %v", err)
	}
	if *got.Choices[0].Delta.Content != "Hello" {
		t.Errorf("content = %q, want %q", *got.Choices[0].Delta.Content, "Hello")
	}
}

func TestWriteChunkSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), &api.StreamChunk{ID: "chatcmpl-1"})

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Connection = %q, want %q", conn, "keep-alive")
	}
}

func TestDoneSendsSentinelAfterChunks(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	chunk := &api.StreamChunk{
		ID: "chatcmpl-1",
		Choices: []api.StreamChoice{
			{Index: 0, FinishReason: finishReason("stop")},
		},
	}
	if err := rw.WriteChunk(context.Background(), chunk); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := rw.Done(context.Background()); err != nil {
		t.Fatalf("Done error: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "data: [DONE]\n\n") {
		t.Errorf("missing [DONE] sentinel in:\n%s", body)
	}
}

func TestDoneIsNoopOnIdleWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.Done(context.Background()); err != nil {
		t.Fatalf("Done error: %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected no output for Done on an idle writer, got:\n%s", rec.Body.String())
	}
}

func TestWriteErrorSendsErrorThenDone(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	apiErr := api.NewServerError("engine failed")
	if err := rw.WriteError(context.Background(), apiErr); err != nil {
		t.Fatalf("WriteError error: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"message":"engine failed"`) {
		t.Errorf("missing error message in:\n%s", body)
	}
	if !strings.Contains(body, "data: [DONE]\n\n") {
		t.Errorf("missing [DONE] sentinel in:\n%s", body)
	}
}

func TestWriteChunkAfterTerminalReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteError(context.Background(), api.NewServerError("boom"))

	err := rw.WriteChunk(context.Background(), &api.StreamChunk{ID: "chatcmpl-1"})
	if err == nil {
		t.Error("expected error after terminal write, got nil")
	}
}

func TestWriteResponseAfterWriteChunkReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), &api.StreamChunk{ID: "chatcmpl-1"})

	err := rw.WriteResponse(context.Background(), &api.ChatCompletionResponse{})
	if err == nil {
		t.Error("expected error for WriteResponse after WriteChunk, got nil")
	}
}

func TestWriteChunkAfterWriteResponseReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteResponse(context.Background(), &api.ChatCompletionResponse{})

	err := rw.WriteChunk(context.Background(), &api.StreamChunk{ID: "chatcmpl-1"})
	if err == nil {
		t.Error("expected error for WriteChunk after WriteResponse, got nil")
	}
}

func TestHasStartedStreaming(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if rw.hasStartedStreaming() {
		t.Error("expected hasStartedStreaming == false before any write")
	}
	rw.WriteChunk(context.Background(), &api.StreamChunk{ID: "chatcmpl-1"})
	if !rw.hasStartedStreaming() {
		t.Error("expected hasStartedStreaming == true after WriteChunk")
	}
}
