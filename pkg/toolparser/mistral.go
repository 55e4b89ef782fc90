package toolparser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/jsonvalue"
	"github.com/rhuss/strom/pkg/partialjson"
)

// Mistral's tool call format uses single quotes, which are not valid JSON.
// The dialect naively substitutes them for double quotes; embedded
// apostrophes inside argument string values will corrupt the parse. Known
// caveat of the format itself.
var mistralToolCallRegex = regexp.MustCompile(`(?s)\[{.*?}\]`)

// MistralParser implements the Mistral 7B Instruct v0.3 tool-call dialect:
// free-form text optionally followed by a [TOOL_CALLS] marker and a
// single-quoted JSON array of {name, arguments} objects.
type MistralParser struct {
	state *State

	// BotToken is the literal marker preceding the tool-call array.
	BotToken string
	// BotTokenID is the marker's single token id in the model's vocabulary.
	BotTokenID int
}

// NewMistralParser returns a parser bound to one streaming request/choice.
// botTokenID defaults to 5 (the reference tokenizer's id) when zero.
func NewMistralParser(botTokenID int) *MistralParser {
	if botTokenID == 0 {
		botTokenID = 5
	}
	return &MistralParser{
		state:      NewState(),
		BotToken:   "[TOOL_CALLS]",
		BotTokenID: botTokenID,
	}
}

func (p *MistralParser) Dialect() string { return "mistral" }

func (p *MistralParser) ExtractComplete(modelOutput string) api.ExtractedToolCallInformation {
	if !strings.Contains(modelOutput, p.BotToken) {
		return api.ExtractedToolCallInformation{ToolsCalled: false, Content: &modelOutput}
	}

	stripped := strings.Replace(modelOutput, p.BotToken, "", 1)
	substituted := strings.ReplaceAll(stripped, "'", `"`)
	match := mistralToolCallRegex.FindString(substituted)
	if match == "" {
		return api.ExtractedToolCallInformation{ToolsCalled: false, Content: &modelOutput}
	}

	arr, err := partialjson.Parse(match, partialjson.All)
	if err != nil {
		return api.ExtractedToolCallInformation{ToolsCalled: false, Content: &modelOutput}
	}

	toolCalls := make([]api.ToolCall, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		entry := arr.At(i)
		name, _ := entry.GetString("name")
		args, ok := entry.Get("arguments")
		argsJSON := "{}"
		if ok {
			argsJSON = args.Serialize()
		}
		toolCalls = append(toolCalls, api.ToolCall{
			Type:     "function",
			Function: api.FunctionCall{Name: name, Arguments: argsJSON},
		})
	}

	content := modelOutput
	if idx := strings.Index(modelOutput, p.BotToken); idx >= 0 {
		content = modelOutput[:idx]
	}
	var contentPtr *string
	if content != "" {
		contentPtr = &content
	}
	return api.ExtractedToolCallInformation{ToolsCalled: true, ToolCalls: toolCalls, Content: contentPtr}
}

func (p *MistralParser) ExtractStreaming(step Step) (*api.DeltaMessage, error) {
	s := p.state

	if !contains(step.CurrentTokenIDs, p.BotTokenID) {
		return contentDelta(step.DeltaText), nil
	}

	if contains(step.DeltaTokenIDs, p.BotTokenID) && len(step.DeltaTokenIDs) == 1 {
		return nil, nil
	}

	parts := strings.SplitN(step.CurrentText, p.BotToken, 2)
	if len(parts) < 2 {
		return nil, nil
	}
	parsable := strings.ReplaceAll(parts[1], "'", `"`)

	toolCallArr, err := parseToolCallRegion(s, parsable)
	if errors.Is(err, partialjson.ErrIncomplete) {
		return nil, nil // mid-token JSON, wait for more text
	}
	if err != nil {
		return nil, &ParseError{Dialect: p.Dialect(), Cause: err}
	}

	n := toolCallArr.Len()
	switch {
	case n > 0 && n > s.CurrentToolID+1:
		return advanceToNewTool(s, toolCallArr), nil
	case n-1 == s.CurrentToolID && s.CurrentToolID >= 0:
		needle := strings.ReplaceAll(step.DeltaText, "'", `"`)
		current := toolCallArr.At(s.CurrentToolID)
		return sameToolGrowing(s, current, needle, func(*jsonvalue.Value) { s.PrevToolCallArr = toolCallArr }), nil
	default:
		return nil, nil
	}
}

// State exposes the parser's state for the chunk shaper.
func (p *MistralParser) State() *State { return p.state }
