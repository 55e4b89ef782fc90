// Package toolparser recovers structured function invocations from a
// linear model token stream, incrementally. Two dialects share one
// contract: Mistral ([TOOL_CALLS] marker plus a single-quoted JSON array)
// and Hermes-2-Pro (<tool_call>...</tool_call> tagged objects).
package toolparser
