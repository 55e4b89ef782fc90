// Package ssereplay decodes this server's own Chat Completions SSE byte
// stream back into accumulated per-choice content, tool calls, and usage.
// It exists so tests can assert against the actual bytes an HTTP client
// would receive — accumulated arguments, finish reasons, usage — rather
// than against the in-process api.StreamChunk values pkg/driver's tests
// already cover.
//
// This package is test-only: nothing in the server imports it; only
// _test.go files across the module do.
package ssereplay
