package toolparser

import (
	"fmt"
	"strings"

	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/diffutil"
	"github.com/rhuss/strom/pkg/jsonvalue"
	"github.com/rhuss/strom/pkg/partialjson"
)

// Step is one increment of decoded model output: the cumulative text and
// token ids before and after this decode step, plus the newly-arrived
// slices.
type Step struct {
	PreviousText      string
	CurrentText       string
	DeltaText         string
	PreviousTokenIDs  []int
	CurrentTokenIDs   []int
	DeltaTokenIDs     []int
}

// ParseError reports that the tool-call region had started but the partial
// JSON was structurally invalid in a way the partial parser could not
// tolerate. The driver recovers it locally: the step produces no delta and
// the stream moves on.
type ParseError struct {
	Dialect string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("toolparser: %s: %v", e.Dialect, e.Cause)
}
func (e *ParseError) Unwrap() error { return e.Cause }

// Parser is the contract every dialect implements. An instance is stateful
// and bound to one streaming request and one choice.
type Parser interface {
	// Dialect names the tool-call format this parser understands, for
	// logging and metric labels.
	Dialect() string
	// ExtractComplete is a pure function over the full response text; it
	// must not mutate parser state.
	ExtractComplete(modelOutput string) api.ExtractedToolCallInformation
	// ExtractStreaming consumes one token step and returns either a delta
	// to ship, or nil to emit nothing this step.
	ExtractStreaming(step Step) (*api.DeltaMessage, error)
	// State exposes the parser's mutable per-choice state so the driver and
	// chunk shaper can read prev_tool_call_arr / streamed_args_for_tool
	// when building the terminal chunk (argument-tail flush and
	// finish-reason override).
	State() *State
}

// State is the per-request, per-choice parser state. StreamedArgsForTool[i]
// is the exact concatenation of every argument-character delta already
// emitted for tool i; CurrentToolID is -1 until a tool call starts.
type State struct {
	PrevToolCallArr        *jsonvalue.Value // Array of Object{name?, arguments?}
	CurrentToolID          int
	CurrentToolInitialSent bool
	CurrentToolNameSent    bool
	StreamedArgsForTool    []string
}

// NewState returns a fresh State with no tool call started yet.
func NewState() *State {
	return &State{
		PrevToolCallArr: jsonvalue.NewArray(),
		CurrentToolID:   -1,
	}
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func count(ids []int, id int) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}

func contentDelta(text string) *api.DeltaMessage {
	return &api.DeltaMessage{Content: &text}
}

func initialDelta(index int) *api.DeltaMessage {
	return &api.DeltaMessage{ToolCalls: []api.DeltaToolCall{{Index: index}}}
}

func nameDelta(index int, name string) *api.DeltaMessage {
	return &api.DeltaMessage{ToolCalls: []api.DeltaToolCall{
		{Index: index, Function: &api.DeltaFunctionCall{Name: name}},
	}}
}

func argumentsDelta(index int, args string) *api.DeltaMessage {
	if args == "" {
		return nil
	}
	return &api.DeltaMessage{ToolCalls: []api.DeltaToolCall{
		{Index: index, Function: &api.DeltaFunctionCall{Arguments: args}},
	}}
}

// argsPresent treats an empty {} arguments object the same as a missing
// key: the first real character of the value must be streamed, not
// absorbed into prefix-stripping. Arguments are always an object when
// present, so that is the only empty case worth distinguishing.
func argsPresent(v *jsonvalue.Value, ok bool) bool {
	if !ok || v == nil {
		return false
	}
	return v.Kind != jsonvalue.Object || len(v.ObjectV) > 0
}

// parseToolCallRegion runs the partial parser over region under the
// dialect-appropriate permissiveness mask: a name not yet sent forbids
// speculative string closure, which would otherwise surface a truncated
// name value. region is the whole array for Mistral, a single object for
// Hermes.
func parseToolCallRegion(state *State, region string) (*jsonvalue.Value, error) {
	flags := partialjson.All
	if !state.CurrentToolNameSent {
		flags = partialjson.All &^ partialjson.Str
	}
	return partialjson.Parse(region, flags)
}

// advanceToNewTool handles a new tool call appearing in the array, shared
// by both dialects: flush any un-streamed tail of the tool call being left
// behind, then reset cursors onto the newly-appeared array slot.
func advanceToNewTool(state *State, toolCallArr *jsonvalue.Value) *api.DeltaMessage {
	var delta *api.DeltaMessage
	if state.CurrentToolID >= 0 {
		prev := toolCallArr.At(state.CurrentToolID)
		if argsVal, ok := prev.Get("arguments"); argsPresent(argsVal, ok) {
			full := argsVal.Serialize()
			diff := strings.Replace(full, state.StreamedArgsForTool[state.CurrentToolID], "", 1)
			if diff != "" {
				delta = argumentsDelta(state.CurrentToolID, diff)
				state.StreamedArgsForTool[state.CurrentToolID] += diff
			}
		}
	}
	state.CurrentToolID = toolCallArr.Len() - 1
	state.CurrentToolNameSent = false
	state.CurrentToolInitialSent = false
	state.StreamedArgsForTool = append(state.StreamedArgsForTool, "")
	return delta
}

// sameToolGrowing drives the initial/name/arguments emission sequence for
// the tool call currently being streamed; both dialects share it. needle
// is the text to search for inside the canonical serialization of the
// first-seen arguments object;
// dialects differ only in whether it is quote-substituted (Mistral) or raw
// (Hermes). persist records current as the new prev-call state once the
// step completes — the two dialects disagree on how prev_tool_call_arr is
// shaped (Mistral reparses the whole array every step; Hermes accumulates
// one object per tool index) so the caller supplies the write-back.
func sameToolGrowing(state *State, current *jsonvalue.Value, needle string, persist func(*jsonvalue.Value)) *api.DeltaMessage {
	var delta *api.DeltaMessage
	switch {
	case !state.CurrentToolInitialSent:
		state.CurrentToolInitialSent = true
		delta = initialDelta(state.CurrentToolID)

	case !state.CurrentToolNameSent:
		if name, ok := current.GetString("name"); ok {
			state.CurrentToolNameSent = true
			delta = nameDelta(state.CurrentToolID, name)
		}

	default:
		prevArgsRaw, prevRawOK := state.PrevToolCallArr.At(state.CurrentToolID).Get("arguments")
		curArgsRaw, curRawOK := current.Get("arguments")
		prevArgs, prevOK := prevArgsRaw, argsPresent(prevArgsRaw, prevRawOK)
		curArgs, curOK := curArgsRaw, argsPresent(curArgsRaw, curRawOK)

		switch {
		case !curOK && !prevOK:
			// no arguments yet
		case !curOK && prevOK:
			// invariant violation: arguments cannot disappear mid-stream.
		case curOK && !prevOK:
			curJSON := curArgs.Serialize()
			idx := strings.Index(curJSON, needle)
			if idx < 0 {
				// The raw delta text is not present in the canonical
				// serialization (the model's whitespace differs, or the
				// delta spans closing tokens outside the arguments
				// object). Leave prev untouched so the next step retries
				// this search with a longer serialization; anything still
				// un-streamed at stream end is flushed by the driver.
				return nil
			}
			prefix := curJSON[:idx+len(needle)]
			delta = argumentsDelta(state.CurrentToolID, prefix)
			state.StreamedArgsForTool[state.CurrentToolID] += prefix
		default:
			diff := intermediateArgsDiff(curArgs, prevArgs)
			if diff != "" {
				delta = argumentsDelta(state.CurrentToolID, diff)
				state.StreamedArgsForTool[state.CurrentToolID] += diff
			}
		}
	}

	persist(current)
	return delta
}

func intermediateArgsDiff(cur, prev *jsonvalue.Value) string {
	return diffutil.IntermediateDiff(cur.Serialize(), prev.Serialize())
}
