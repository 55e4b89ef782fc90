package toolparser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/jsonvalue"
	"github.com/rhuss/strom/pkg/partialjson"
	"github.com/rhuss/strom/pkg/tokenizer"
)

var hermesToolCallRegex = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>|<tool_call>(.*)`)

const (
	hermesStartTag = "<tool_call>"
	hermesEndTag   = "</tool_call>"
)

// errTagCounts reports a start/end tag count combination that none of the
// streaming branches can explain (e.g. more end tags than start tags).
var errTagCounts = errors.New("toolparser: inconsistent tool_call tag counts")

// HermesParser implements the Hermes-2-Pro tool-call dialect: zero or more
// <tool_call>{...}</tool_call> blocks interleaved with free-form text. A
// stray opening tag without a close may appear at end of stream.
type HermesParser struct {
	state *State

	StartTagID int
	EndTagID   int
}

// NewHermesParser constructs a parser after resolving the tag token ids
// from tok. Returns a ConfigurationError if either tag is absent from the
// vocabulary.
func NewHermesParser(tok tokenizer.Tokenizer) (*HermesParser, error) {
	startID, ok := tok.TokenID(hermesStartTag)
	if !ok {
		return nil, &ConfigurationError{Message: "tokenizer vocabulary is missing the <tool_call> start tag"}
	}
	endID, ok := tok.TokenID(hermesEndTag)
	if !ok {
		return nil, &ConfigurationError{Message: "tokenizer vocabulary is missing the </tool_call> end tag"}
	}
	return &HermesParser{state: NewState(), StartTagID: startID, EndTagID: endID}, nil
}

// ConfigurationError surfaces as an HTTP 400 before streaming begins.
type ConfigurationError struct{ Message string }

func (e *ConfigurationError) Error() string { return e.Message }

func (p *HermesParser) Dialect() string { return "hermes" }

func (p *HermesParser) ExtractComplete(modelOutput string) api.ExtractedToolCallInformation {
	if !strings.Contains(modelOutput, hermesStartTag) {
		return api.ExtractedToolCallInformation{ToolsCalled: false, Content: &modelOutput}
	}

	matches := hermesToolCallRegex.FindAllStringSubmatch(modelOutput, -1)
	toolCalls := make([]api.ToolCall, 0, len(matches))
	for _, m := range matches {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		tc, ok := parseHermesObject(strings.TrimSpace(raw))
		if !ok {
			return api.ExtractedToolCallInformation{ToolsCalled: false, Content: &modelOutput}
		}
		toolCalls = append(toolCalls, tc)
	}

	content := modelOutput[:strings.Index(modelOutput, hermesStartTag)]
	return finishHermesComplete(content, toolCalls)
}

// parseHermesObject parses one `{...}` captured between tool_call tags into
// an api.ToolCall, using the complete (non-streaming) parse mode.
func parseHermesObject(raw string) (api.ToolCall, bool) {
	obj, err := partialjson.Parse(raw, partialjson.All)
	if err != nil {
		return api.ToolCall{}, false
	}
	name, _ := obj.GetString("name")
	argsJSON := "{}"
	if args, ok := obj.Get("arguments"); ok {
		argsJSON = args.Serialize()
	}
	return api.ToolCall{
		Type:     "function",
		Function: api.FunctionCall{Name: name, Arguments: argsJSON},
	}, true
}

func finishHermesComplete(content string, toolCalls []api.ToolCall) api.ExtractedToolCallInformation {
	var contentPtr *string
	if content != "" {
		contentPtr = &content
	}
	return api.ExtractedToolCallInformation{ToolsCalled: true, ToolCalls: toolCalls, Content: contentPtr}
}

func (p *HermesParser) ExtractStreaming(step Step) (*api.DeltaMessage, error) {
	s := p.state

	if !contains(step.CurrentTokenIDs, p.StartTagID) {
		return contentDelta(step.DeltaText), nil
	}

	prevStart := count(step.PreviousTokenIDs, p.StartTagID)
	prevEnd := count(step.PreviousTokenIDs, p.EndTagID)
	curStart := count(step.CurrentTokenIDs, p.StartTagID)
	curEnd := count(step.CurrentTokenIDs, p.EndTagID)

	if curStart == curEnd && prevEnd == curEnd {
		return contentDelta(step.DeltaText), nil
	}

	var toolCallPortion string
	switch {
	case curStart > curEnd && curStart > prevStart:
		s.CurrentToolID++
		s.CurrentToolNameSent = false
		s.CurrentToolInitialSent = false
		s.StreamedArgsForTool = append(s.StreamedArgsForTool, "")
		// When the start tag is the only thing arriving this step there is
		// no JSON to parse yet, but the initial id/type stub for the new
		// tool still goes out now, on the same step the tag landed.
		if len(step.DeltaTokenIDs) <= 1 {
			s.CurrentToolInitialSent = true
			return initialDelta(s.CurrentToolID), nil
		}
		toolCallPortion = lastSplit(step.CurrentText, hermesStartTag)

	case curStart > curEnd && curStart == prevStart:
		toolCallPortion = lastSplit(step.CurrentText, hermesStartTag)

	case curStart == curEnd && curEnd > prevEnd:
		return p.closeCurrentTool(), nil

	default:
		return nil, &ParseError{Dialect: p.Dialect(), Cause: errTagCounts}
	}

	// toolCallPortion is always a single object since Hermes reparses only
	// the currently-open <tool_call>...</tool_call> region, not a shared
	// array across tool calls the way Mistral does.
	single, err := parseToolCallRegion(s, toolCallPortion)
	if errors.Is(err, partialjson.ErrIncomplete) {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{Dialect: p.Dialect(), Cause: err}
	}
	if single.Kind != jsonvalue.Object {
		return nil, nil
	}

	// prev_tool_call_arr is updated one slot at a time here: replace the
	// slot in place if it already held this tool call, else append a new
	// one.
	return sameToolGrowing(s, single, step.DeltaText, func(current *jsonvalue.Value) {
		if s.CurrentToolID == len(s.PrevToolCallArr.ArrayV)-1 {
			s.PrevToolCallArr.ArrayV[s.CurrentToolID] = current
		} else {
			s.PrevToolCallArr.ArrayV = append(s.PrevToolCallArr.ArrayV, current)
		}
	}), nil
}

// closeCurrentTool handles the end tag landing: flush any argument tail not
// yet streamed. prev_tool_call_arr is deliberately left as-is here; the
// next tool call starts a fresh cursor and appends its own slot.
func (p *HermesParser) closeCurrentTool() *api.DeltaMessage {
	s := p.state
	prev := s.PrevToolCallArr.At(s.CurrentToolID)
	argsVal, ok := prev.Get("arguments")
	if !argsPresent(argsVal, ok) {
		return nil
	}
	full := argsVal.Serialize()
	diff := strings.Replace(full, s.StreamedArgsForTool[s.CurrentToolID], "", 1)
	if diff == "" {
		return nil
	}
	s.StreamedArgsForTool[s.CurrentToolID] += diff
	return argumentsDelta(s.CurrentToolID, diff)
}

func lastSplit(s, sep string) string {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s
	}
	return s[idx+len(sep):]
}

// State exposes the parser's state for the chunk shaper.
func (p *HermesParser) State() *State { return p.state }
