// Package partialjson parses a (possibly truncated) JSON text into an
// order-preserving jsonvalue.Value, tolerating premature end-of-input the
// way a streaming tool-call parser needs to: a trailing incomplete atom is
// either spliced in as a "best effort so far" value or dropped entirely,
// depending on a per-type permissiveness bitmask (Allow).
//
// This is the Go analogue of the `partial_json_parser` Python package the
// reference implementation uses; no Go package in the example pack offers
// both partial parsing and ordered-key preservation, so it is built here
// directly on jsonvalue with its own rune-level scanner; encoding/json is
// not used.
package partialjson
