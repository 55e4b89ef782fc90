package api

import (
	"encoding/json"
	"strings"
)

// ParseToolChoice classifies a request's raw tool_choice field. An absent
// field or the literal "auto" dispatch to the configured parser; "none"
// suppresses tool calls entirely; a named-function object bypasses the
// parser; "required" is rejected, since there is no model-side mechanism
// to force the model to always emit some tool call.
func ParseToolChoice(raw json.RawMessage) (mode string, named *NamedToolChoice, err *APIError) {
	if len(raw) == 0 {
		return "auto", nil, nil
	}

	var literal string
	if jsonErr := json.Unmarshal(raw, &literal); jsonErr == nil {
		switch strings.ToLower(literal) {
		case "", "auto":
			return "auto", nil, nil
		case "none":
			return "none", nil, nil
		case "required":
			return "", nil, NewInvalidRequestError("tool_choice", `tool_choice="required" is not supported`)
		default:
			return "", nil, NewInvalidRequestError("tool_choice", "unrecognized tool_choice value: "+literal)
		}
	}

	var nt NamedToolChoice
	if jsonErr := json.Unmarshal(raw, &nt); jsonErr != nil {
		return "", nil, NewInvalidRequestError("tool_choice", "tool_choice must be a string or a named-function object")
	}
	if nt.Type != "function" || nt.Function.Name == "" {
		return "", nil, NewInvalidRequestError("tool_choice", "named tool_choice must have type \"function\" and a function name")
	}
	return "function", &nt, nil
}
