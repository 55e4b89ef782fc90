package transport

import (
	"context"
	"testing"

	"github.com/rhuss/strom/pkg/api"
)

func TestChatHandlerFuncAdapter(t *testing.T) {
	called := false
	var receivedReq *api.ChatCompletionRequest

	fn := ChatHandlerFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		called = true
		receivedReq = req
		return nil
	})

	// Verify it satisfies the interface.
	var _ ChatHandler = fn

	req := &api.ChatCompletionRequest{Model: "test-model"}
	err := fn.HandleChatCompletion(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
	if receivedReq.Model != "test-model" {
		t.Errorf("expected model %q, got %q", "test-model", receivedReq.Model)
	}
}

func TestChatHandlerFuncReturnsError(t *testing.T) {
	fn := ChatHandlerFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		return api.NewServerError("test error")
	})

	err := fn.HandleChatCompletion(context.Background(), &api.ChatCompletionRequest{}, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	apiErr, ok := err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("expected error type %q, got %q", api.ErrorTypeServerError, apiErr.Type)
	}
}

func TestInterfaceSatisfaction(t *testing.T) {
	// Compile-time interface checks.
	var _ ChatHandler = ChatHandlerFunc(nil)
	var _ ChatHandler = (*mockHandler)(nil)
	var _ ResponseWriter = (*mockResponseWriter)(nil)
}

// Mock implementations for compile-time verification.
type mockHandler struct{}

func (m *mockHandler) HandleChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return nil
}

type mockResponseWriter struct{}

func (m *mockResponseWriter) WriteChunk(_ context.Context, _ *api.StreamChunk) error  { return nil }
func (m *mockResponseWriter) WriteError(_ context.Context, _ *api.APIError) error     { return nil }
func (m *mockResponseWriter) WriteResponse(_ context.Context, _ *api.ChatCompletionResponse) error {
	return nil
}
func (m *mockResponseWriter) Flush() error { return nil }
