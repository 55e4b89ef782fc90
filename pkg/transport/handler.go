package transport

import (
	"context"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/driver"
)

// ChatHandler handles one /v1/chat/completions request end to end,
// streaming or not. It is the primary handler contract the HTTP adapter
// dispatches into, one layer up from pkg/driver.Driver.Run.
type ChatHandler interface {
	HandleChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function as a
// ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// HandleChatCompletion calls f(ctx, req, w).
func (f ChatHandlerFunc) HandleChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler. The HTTP adapter constructs one per request and passes it down
// through the middleware chain to the handler.
//
// WriteChunk/WriteError and WriteResponse are mutually exclusive on a
// single writer instance: a streaming request (req.Stream == true) only
// ever calls WriteChunk/WriteError (it satisfies driver.ChunkWriter
// directly so a ChatHandler can hand it straight to driver.Driver.Run); a
// non-streaming request only ever calls WriteResponse once.
type ResponseWriter interface {
	driver.ChunkWriter

	// WriteResponse sends a complete non-streaming ChatCompletionResponse.
	WriteResponse(ctx context.Context, resp *api.ChatCompletionResponse) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
