// Package chunkshaper builds the OpenAI-compatible StreamChunk wire
// objects the driver emits, given a dialect-neutral DeltaMessage from
// pkg/toolparser. It carries no parsing state of its own beyond the id,
// model, and creation timestamp fixed at request start; the tool-call
// finish-reason override reads the toolparser.State the driver already
// holds. The end-of-stream argument flush is done by the driver before the
// terminal chunk is built.
package chunkshaper
