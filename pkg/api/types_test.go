package api

import (
	"encoding/json"
	"testing"
)

func TestStreamChunkElidesAbsentFields(t *testing.T) {
	chunk := StreamChunk{
		ID:      "chat-abc",
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   "mock-model",
		Choices: []StreamChoice{
			{Index: 0, Delta: DeltaMessage{Content: strPtr("hi")}},
		},
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["usage"]; ok {
		t.Fatal("usage should be elided when nil")
	}
	choices := raw["choices"].([]any)
	choice := choices[0].(map[string]any)
	if _, ok := choice["finish_reason"]; ok {
		t.Fatal("finish_reason should be elided when nil")
	}
}

func TestDeltaToolCallOmitsEmptyFunction(t *testing.T) {
	d := DeltaToolCall{Index: 0}
	b, _ := json.Marshal(d)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if _, ok := raw["function"]; ok {
		t.Fatal("function should be omitted when nil")
	}
}

func strPtr(s string) *string { return &s }
