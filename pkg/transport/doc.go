// Package transport defines the handler interfaces and middleware chain for
// the streaming tool-call extraction server's HTTP/SSE transport layer.
//
// The transport layer bridges external clients and the Stream Driver
// (pkg/driver). It deserializes incoming requests into the core protocol
// types defined in pkg/api, dispatches them for processing, and serializes
// responses back to the client in either synchronous (JSON) or streaming
// (SSE) format.
//
// # Handler Interface
//
// ChatHandler handles the core /v1/chat/completions operation: given a
// request and a ResponseWriter, it either calls pkg/driver.Driver.Run
// directly (req.Stream == true, since ResponseWriter embeds
// driver.ChunkWriter) or builds one complete response via the parser's
// ExtractComplete path (req.Stream == false).
//
// # Middleware
//
// The middleware chain wraps ChatHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Custom middleware
// can be added for application-specific concerns.
//
// # Zero Dependencies
//
// This package uses only Go standard library packages. HTTP serving uses
// net/http with Go 1.22+ ServeMux routing patterns. SSE flushing uses
// http.NewResponseController. Structured logging uses log/slog.
package transport
