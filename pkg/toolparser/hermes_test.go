package toolparser

import (
	"strings"
	"testing"

	"github.com/rhuss/strom/pkg/tokenizer"
)

func newHermesTokenizer() tokenizer.Tokenizer {
	return tokenizer.NewStaticTokenizer(map[string]int{
		hermesStartTag: 100,
		hermesEndTag:   101,
	})
}

func TestNewHermesParser_MissingTag(t *testing.T) {
	empty := tokenizer.NewStaticTokenizer(nil)
	if _, err := NewHermesParser(empty); err == nil {
		t.Fatal("expected a ConfigurationError when the vocabulary lacks the tool_call tags")
	}
}

func TestHermesExtractComplete_NoTag(t *testing.T) {
	p, err := NewHermesParser(newHermesTokenizer())
	if err != nil {
		t.Fatal(err)
	}
	out := p.ExtractComplete("just a plain answer")
	if out.ToolsCalled {
		t.Fatal("expected no tool calls without a <tool_call> tag")
	}
}

func TestHermesExtractComplete_TwoToolCalls(t *testing.T) {
	p, err := NewHermesParser(newHermesTokenizer())
	if err != nil {
		t.Fatal(err)
	}
	out := p.ExtractComplete(`<tool_call>{"name":"a","arguments":{"x":1}}</tool_call><tool_call>{"name":"b","arguments":{"y":2}}</tool_call>`)
	if !out.ToolsCalled {
		t.Fatal("expected tool calls")
	}
	if len(out.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(out.ToolCalls))
	}
	if out.ToolCalls[0].Function.Name != "a" || out.ToolCalls[1].Function.Name != "b" {
		t.Fatalf("unexpected function names: %+v", out.ToolCalls)
	}
}

func TestHermesExtractStreaming_ContentPassthrough(t *testing.T) {
	p, err := NewHermesParser(newHermesTokenizer())
	if err != nil {
		t.Fatal(err)
	}
	d, err := p.ExtractStreaming(Step{DeltaText: "hello", CurrentTokenIDs: []int{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Content == nil || *d.Content != "hello" {
		t.Fatalf("expected plain content passthrough, got %+v", d)
	}
}

// TestHermesExtractStreaming_InitialStubOnTagOnlyStep pins down that the
// id/type stub is emitted on the very step the start tag arrives, even
// when the tag is the step's only token and there is no JSON to parse yet.
func TestHermesExtractStreaming_InitialStubOnTagOnlyStep(t *testing.T) {
	p, err := NewHermesParser(newHermesTokenizer())
	if err != nil {
		t.Fatal(err)
	}
	d, err := p.ExtractStreaming(Step{
		CurrentText:     hermesStartTag,
		DeltaText:       hermesStartTag,
		CurrentTokenIDs: []int{100},
		DeltaTokenIDs:   []int{100},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || len(d.ToolCalls) != 1 {
		t.Fatalf("expected exactly one tool-call delta, got %+v", d)
	}
	if d.ToolCalls[0].Index != 0 || d.ToolCalls[0].Function != nil {
		t.Fatalf("expected a bare initial stub at index 0, got %+v", d.ToolCalls[0])
	}
	if !p.State().CurrentToolInitialSent {
		t.Fatal("expected the initial-sent flag to be set")
	}
}

// streamAllHermes feeds steps one at a time and collects every non-nil
// delta, as the driver would across a real decode loop.
func streamAllHermes(t *testing.T, p *HermesParser, steps []Step) []string {
	t.Helper()
	var argChunks []string
	for _, s := range steps {
		d, err := p.ExtractStreaming(s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d == nil || len(d.ToolCalls) == 0 || d.ToolCalls[0].Function == nil {
			continue
		}
		argChunks = append(argChunks, d.ToolCalls[0].Function.Arguments)
	}
	return argChunks
}

func TestHermesExtractStreaming_SingleToolCallArgumentsAreAPrefix(t *testing.T) {
	p, err := NewHermesParser(newHermesTokenizer())
	if err != nil {
		t.Fatal(err)
	}

	chunks := []string{
		"<tool_call>",
		`{"name":"`,
		`get_weather",`,
		`"arguments":{"`,
		`city":"`,
		`Rome"}}`,
	}

	var steps []Step
	prefix := ""
	var prevIDs []int
	for i, chunk := range chunks {
		cur := prefix + chunk
		// The start tag token (100) is seen exactly once, in step 0; every
		// later step's cumulative CurrentTokenIDs still contains it.
		deltaIDs := []int{2}
		if i == 0 {
			deltaIDs = []int{100}
		}
		curIDs := []int{100}
		steps = append(steps, Step{
			PreviousText:     prefix,
			CurrentText:      cur,
			DeltaText:        chunk,
			PreviousTokenIDs: prevIDs,
			CurrentTokenIDs:  curIDs,
			DeltaTokenIDs:    deltaIDs,
		})
		prefix = cur
		prevIDs = curIDs
	}

	argChunks := streamAllHermes(t, p, steps)
	var args string
	for _, c := range argChunks {
		args += c
	}

	const canonical = `{"city":"Rome"}`
	if args == "" || !strings.HasPrefix(canonical, args) {
		t.Fatalf("expected streamed arguments %q to be a prefix of %q", args, canonical)
	}
}
