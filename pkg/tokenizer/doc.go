// Package tokenizer abstracts the model vocabulary lookups the Hermes-2-Pro
// tool parser needs: resolving the <tool_call>/</tool_call> tag strings to
// their token ids. The engine that actually runs inference
// owns the real tokenizer; this package only defines the narrow interface
// pkg/toolparser depends on, plus a static double for tests.
package tokenizer
