package partialjson

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/rhuss/strom/pkg/jsonvalue"
)

// Allow is a bitmask of independent permissions controlling whether the
// parser may speculatively treat an incomplete atom of a given kind as
// present. Only Str, Num, Arr and Obj are consulted; Bool, Null and Outer
// have no effect: an incomplete true/false/null literal is never reported
// as present, and the outermost value follows the rule for its own kind.
type Allow uint

const (
	Str Allow = 1 << iota
	Num
	Arr
	Obj
	Bool
	Null
	Outer

	All = Str | Num | Arr | Obj | Bool | Null | Outer
)

// ErrIncomplete signals that no value (of any kind) could yet be produced
// from the input under the given Allow mask. Callers performing streaming
// extraction should treat this as "not yet, try again on the next token"
// rather than a hard failure.
var ErrIncomplete = errors.New("partialjson: incomplete value")

// errMalformed wraps a structural error (unexpected token, bad escape,
// mismatched literal) that the partial parser cannot reconcile by waiting
// for more input.
type errMalformed struct{ msg string }

func (e *errMalformed) Error() string { return "partialjson: " + e.msg }

func malformed(format string, args ...any) error {
	return &errMalformed{msg: fmt.Sprintf(format, args...)}
}

// Parse parses s as a (possibly truncated) JSON value under the given
// permissiveness mask.
func Parse(s string, allow Allow) (*jsonvalue.Value, error) {
	p := &parser{runes: []rune(s), allow: allow}
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if !p.eof() {
		return nil, malformed("trailing data after value at position %d", p.pos)
	}
	return val, nil
}

type parser struct {
	runes []rune
	pos   int
	allow Allow
}

func (p *parser) eof() bool      { return p.pos >= len(p.runes) }
func (p *parser) peek() rune     { return p.runes[p.pos] }
func (p *parser) advance() rune  { r := p.runes[p.pos]; p.pos++; return r }
func (p *parser) skipWS() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseValue() (*jsonvalue.Value, error) {
	p.skipWS()
	if p.eof() {
		return nil, ErrIncomplete
	}
	switch c := p.peek(); {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		return p.parseString()
	case c == 't' || c == 'f':
		return p.parseBool()
	case c == 'n':
		return p.parseNull()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, malformed("unexpected character %q at position %d", c, p.pos)
	}
}

func (p *parser) parseObject() (*jsonvalue.Value, error) {
	p.advance() // '{'
	obj := jsonvalue.NewObject()

	p.skipWS()
	if p.eof() {
		return p.truncatedObject(obj)
	}
	if p.peek() == '}' {
		p.advance()
		return obj, nil
	}

	for {
		p.skipWS()
		if p.eof() {
			return p.truncatedObject(obj)
		}
		if p.peek() != '"' {
			return nil, malformed("expected object key at position %d", p.pos)
		}
		keyVal, err := p.parseStringStrict()
		if err != nil {
			if err == ErrIncomplete {
				return p.truncatedObject(obj)
			}
			return nil, err
		}
		p.skipWS()
		if p.eof() {
			return p.truncatedObject(obj)
		}
		if p.peek() != ':' {
			return nil, malformed("expected ':' at position %d", p.pos)
		}
		p.advance()
		p.skipWS()
		val, err := p.parseValue()
		if err != nil {
			if err == ErrIncomplete {
				return p.truncatedObject(obj)
			}
			return nil, err
		}
		obj.Set(keyVal, val)

		p.skipWS()
		if p.eof() {
			return p.truncatedObject(obj)
		}
		switch p.peek() {
		case ',':
			p.advance()
			continue
		case '}':
			p.advance()
			return obj, nil
		default:
			return nil, malformed("expected ',' or '}' at position %d", p.pos)
		}
	}
}

func (p *parser) truncatedObject(obj *jsonvalue.Value) (*jsonvalue.Value, error) {
	if p.allow&Obj != 0 {
		return obj, nil
	}
	return nil, ErrIncomplete
}

func (p *parser) parseArray() (*jsonvalue.Value, error) {
	p.advance() // '['
	arr := jsonvalue.NewArray()

	p.skipWS()
	if p.eof() {
		return p.truncatedArray(arr)
	}
	if p.peek() == ']' {
		p.advance()
		return arr, nil
	}

	for {
		p.skipWS()
		val, err := p.parseValue()
		if err != nil {
			if err == ErrIncomplete {
				return p.truncatedArray(arr)
			}
			return nil, err
		}
		arr.ArrayV = append(arr.ArrayV, val)

		p.skipWS()
		if p.eof() {
			return p.truncatedArray(arr)
		}
		switch p.peek() {
		case ',':
			p.advance()
			continue
		case ']':
			p.advance()
			return arr, nil
		default:
			return nil, malformed("expected ',' or ']' at position %d", p.pos)
		}
	}
}

func (p *parser) truncatedArray(arr *jsonvalue.Value) (*jsonvalue.Value, error) {
	if p.allow&Arr != 0 {
		return arr, nil
	}
	return nil, ErrIncomplete
}

// parseString parses a string value honoring the Str permission: if the
// closing quote never arrives, the partial content is returned only when
// Str is allowed.
func (p *parser) parseString() (*jsonvalue.Value, error) {
	s, complete, err := p.scanString()
	if err != nil {
		return nil, err
	}
	if !complete && p.allow&Str == 0 {
		return nil, ErrIncomplete
	}
	return jsonvalue.NewString(s), nil
}

// parseStringStrict is used for object keys, which are never spliced in
// partially — a key without its value is useless regardless of Str.
func (p *parser) parseStringStrict() (string, error) {
	s, complete, err := p.scanString()
	if err != nil {
		return "", err
	}
	if !complete {
		return "", ErrIncomplete
	}
	return s, nil
}

// scanString consumes a leading '"' plus body, reporting whether a closing
// '"' was found before EOF.
func (p *parser) scanString() (string, bool, error) {
	p.advance() // opening quote
	var b strings.Builder
	for {
		if p.eof() {
			return b.String(), false, nil
		}
		c := p.advance()
		if c == '"' {
			return b.String(), true, nil
		}
		if c != '\\' {
			b.WriteRune(c)
			continue
		}
		// escape sequence
		if p.eof() {
			return b.String(), false, nil
		}
		esc := p.advance()
		switch esc {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r, ok := p.scanUnicodeEscape()
			if !ok {
				return b.String(), false, nil
			}
			b.WriteRune(r)
		default:
			return "", false, malformed("invalid escape \\%c at position %d", esc, p.pos)
		}
	}
}

// scanUnicodeEscape consumes a \uXXXX escape (and, if it is a high
// surrogate, a following \uXXXX low surrogate) already past the 'u'.
func (p *parser) scanUnicodeEscape() (rune, bool) {
	hi, ok := p.scanHex4()
	if !ok {
		return 0, false
	}
	if utf16.IsSurrogate(rune(hi)) {
		if p.pos+1 < len(p.runes) && p.runes[p.pos] == '\\' && p.runes[p.pos+1] == 'u' {
			save := p.pos
			p.pos += 2
			lo, ok := p.scanHex4()
			if !ok {
				p.pos = save
				return rune(hi), true
			}
			dec := utf16.DecodeRune(rune(hi), rune(lo))
			if dec != '�' {
				return dec, true
			}
		}
	}
	return rune(hi), true
}

func (p *parser) scanHex4() (uint32, bool) {
	if p.pos+4 > len(p.runes) {
		return 0, false
	}
	var v uint32
	for i := 0; i < 4; i++ {
		c := p.runes[p.pos+i]
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	p.pos += 4
	return v, true
}

func (p *parser) parseBool() (*jsonvalue.Value, error) {
	start := p.pos
	lit := "true"
	want := true
	if p.peek() == 'f' {
		lit = "false"
		want = false
	}
	for i := 0; i < len(lit); i++ {
		if p.eof() {
			// No partial boolean exists to speculate on, regardless of
			// the Bool flag: "tru" is not a "true" any more than a "false".
			return nil, ErrIncomplete
		}
		if p.peek() != rune(lit[i]) {
			return nil, malformed("invalid literal at position %d", start)
		}
		p.advance()
	}
	return jsonvalue.NewBool(want), nil
}

func (p *parser) parseNull() (*jsonvalue.Value, error) {
	const lit = "null"
	start := p.pos
	for i := 0; i < len(lit); i++ {
		if p.eof() {
			return nil, ErrIncomplete
		}
		if p.peek() != rune(lit[i]) {
			return nil, malformed("invalid literal at position %d", start)
		}
		p.advance()
	}
	return jsonvalue.NewNull(), nil
}

func (p *parser) parseNumber() (*jsonvalue.Value, error) {
	start := p.pos
	if p.peek() == '-' {
		p.advance()
	}
	if p.eof() {
		return p.truncatedNumber(start)
	}
	intStart := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.advance()
	}
	if p.pos == intStart {
		return nil, malformed("invalid number at position %d", start)
	}
	lastValid := p.pos

	if !p.eof() && p.peek() == '.' {
		dotPos := p.pos
		p.advance()
		fracStart := p.pos
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.advance()
		}
		if p.pos > fracStart {
			lastValid = p.pos
		} else {
			p.pos = dotPos
		}
	}

	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		expPos := p.pos
		p.advance()
		if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
			p.advance()
		}
		digStart := p.pos
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.advance()
		}
		if p.pos > digStart {
			lastValid = p.pos
		} else {
			p.pos = expPos
		}
	}

	if p.eof() {
		// Could not tell whether more digits were coming; only the
		// validated prefix is safe to use.
		p.pos = lastValid
		return p.truncatedNumber(start)
	}
	return jsonvalue.NewNumber(string(p.runes[start:p.pos])), nil
}

func (p *parser) truncatedNumber(start int) (*jsonvalue.Value, error) {
	if p.allow&Num != 0 && p.pos > start {
		text := string(p.runes[start:p.pos])
		if text != "" && text != "-" {
			return jsonvalue.NewNumber(text), nil
		}
	}
	return nil, ErrIncomplete
}
