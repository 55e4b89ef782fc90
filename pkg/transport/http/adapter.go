package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/driver"
	"github.com/rhuss/strom/pkg/transport"
)

// Adapter serves the Chat Completions API over HTTP. It routes requests to
// the configured ChatHandler and serializes responses, either as a single
// JSON body or as an SSE stream.
type Adapter struct {
	handler  transport.ChatHandler
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter with the given ChatHandler and options.
// Middleware is applied to the handler in the given order.
func NewAdapter(handler transport.ChatHandler, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}

	a := &Adapter{
		handler:  handler,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletions)
	a.mux.HandleFunc("DELETE /v1/chat/completions/{request_id}", a.handleCancelCompletion)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is stored in the
// request context and echoed on the response before the first write. An
// id generated later by the transport-level RequestID middleware lives
// only in the handler's context, so it is not echoed.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If client sent X-Request-ID, propagate it into context.
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		// Use a response writer wrapper to capture and set the request ID
		// header before the first write.
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChatCompletions handles POST /v1/chat/completions, dispatching to
// streaming or non-streaming handling based on req.Stream.
func (a *Adapter) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if req.Stream {
		a.handleStreaming(w, r, &req)
		return
	}

	rw := newSSEResponseWriter(w)
	if err := a.handler.HandleChatCompletion(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleStreaming handles streaming POST requests (stream: true). It
// registers the request's cancel func in the in-flight registry (so a
// DELETE on the request id can abort it), dispatches to the handler, and
// sends the terminal [DONE] sentinel once Run completes cleanly.
func (a *Adapter) handleStreaming(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requestID := transport.RequestIDFromContext(ctx)
	if requestID != "" {
		a.inflight.Register(requestID, cancel)
		defer a.inflight.Remove(requestID)
	}

	rw := newSSEResponseWriter(w)
	err := a.handler.HandleChatCompletion(ctx, req, rw)
	if err != nil {
		a.writeHandlerError(w, rw, err)
		return
	}

	// A nil error with no chunks ever written means the client disconnected
	// before the first chunk; nothing to finalize in that case either way,
	// since Done() is a no-op on an idle writer.
	rw.Done(ctx)
}

// handleCancelCompletion handles DELETE /v1/chat/completions/{request_id}:
// it aborts an in-flight streaming completion from a second connection.
// The id is the client-supplied X-Request-ID of the stream's POST; a
// stream sent without that header is not registered and cannot be
// cancelled here. Cancelling fires the stream's context, which makes the
// driver invoke Engine.Abort and stop emitting chunks; the aborted
// stream's own connection then receives the [DONE] sentinel.
func (a *Adapter) handleCancelCompletion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("request_id")
	if id == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("request_id", "missing request id"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	transport.WriteAPIError(w, api.NewNotFoundError("no in-flight completion with request id "+id))
}

// writeHandlerError writes an error response from the handler. Pre-stream
// failures (driver.APIErrorer: configFailure/validationFailure) are
// reported as a plain HTTP error response, since nothing has been written
// to the wire yet. Once streaming has started, any other error is reported
// as a wire error chunk so the client sees a well-formed terminated stream.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	var apiErrer driver.APIErrorer
	if errors.As(err, &apiErrer) {
		transport.WriteAPIError(w, apiErrer.APIError())
		return
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		rw.WriteError(context.Background(), apiErr)
		return
	}

	transport.WriteAPIError(w, apiErr)
}
