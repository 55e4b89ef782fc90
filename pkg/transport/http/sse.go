package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/transport"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteChunk/WriteError has been called at least once
	writerCompleted                    // [DONE] sent or WriteResponse called
)

// sseResponseWriter implements transport.ResponseWriter for HTTP/SSE
// responses. It handles both streaming (SSE chunk) and non-streaming (plain
// JSON) output, as required by pkg/driver.ChunkWriter plus
// transport.ResponseWriter.
//
// Chat Completions streaming frames carry no event names: every frame is
// an unlabeled
//
//	data: {json}\n\n
//
// and the stream ends with a literal
//
//	data: [DONE]\n\n
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

// newSSEResponseWriter creates a new ResponseWriter wrapping an http.ResponseWriter.
func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteChunk sends a single `chat.completion.chunk` object as an SSE frame.
func (s *sseResponseWriter) WriteChunk(ctx context.Context, chunk *api.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeChunkLocked(chunk)
}

func (s *sseResponseWriter) writeChunkLocked(chunk *api.StreamChunk) error {
	if s.state == writerCompleted {
		return errors.New("cannot write chunk: writer is completed")
	}

	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return s.rc.Flush()
}

// WriteError sends a wire error as a single SSE data frame followed by
// [DONE], matching the mid-stream EngineError contract from pkg/driver.
func (s *sseResponseWriter) WriteError(ctx context.Context, apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write error: writer is completed")
	}
	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(api.ErrorResponse{Error: apiErr})
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write error: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return s.writeDoneLocked()
}

// Done sends the terminal `data: [DONE]\n\n` sentinel. The HTTP adapter
// calls this once after driver.Driver.Run returns nil (a clean completion,
// including a recovered mid-stream ParseError and a cancellation); it is a
// no-op if the writer is still idle or already completed on its own
// (WriteError already terminates the stream). After a client disconnect
// the call still happens and its write fails; the adapter ignores that
// error.
func (s *sseResponseWriter) Done(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == writerCompleted {
		return nil
	}
	if s.state == writerIdle {
		return nil
	}
	return s.writeDoneLocked()
}

func (s *sseResponseWriter) writeDoneLocked() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush [DONE]: %w", err)
	}
	s.state = writerCompleted
	return nil
}

// WriteResponse sends a complete non-streaming JSON response. Mutually
// exclusive with WriteChunk/WriteError.
func (s *sseResponseWriter) WriteResponse(ctx context.Context, resp *api.ChatCompletionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write response: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write response: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming returns true if at least one SSE frame has been written.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerStreaming || (s.state == writerCompleted && s.w.Header().Get("Content-Type") == "text/event-stream")
}
