// Package inference declares the external collaborator this server talks
// to for generation: an Engine that turns a request into a stream of
// cumulative per-choice decode steps. The shape is cumulative rather than
// delta-based because pkg/toolparser needs the full text and token ids so
// far at every step, not just the increment.
package inference
