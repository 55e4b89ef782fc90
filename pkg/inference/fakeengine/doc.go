// Package fakeengine is a deterministic inference.Engine double: each
// choice is scripted as an ordered list of text chunks emitted one per
// decode step, with a synthetic vocabulary for tool-call control tokens.
// It lives in its own package rather than a _test.go file because the
// driver, transport, and demo command all need the same double.
package fakeengine
