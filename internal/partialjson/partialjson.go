// Package partialjson turns an arbitrary prefix of a JSON document into the
// closest valid JSON value that can be built from it.
//
// The completion policy is fixed so the same prefix always yields the same
// value:
//
//   - unclosed arrays and objects are closed and keep their complete members;
//   - an unterminated string value keeps the characters received so far;
//   - an unterminated key, or a key still waiting for its value, drops the pair;
//   - a string cut inside an escape sequence (including a UTF-16 surrogate
//     pair) or inside a multi-byte UTF-8 character is truncated before it;
//   - a trailing number or literal that could still grow is dropped, except a
//     complete number that is the whole document;
//   - a dangling comma is dropped;
//   - empty input, or a top-level container with no member yet, is no value.
//
// Input that is not a prefix of any valid JSON document yields no value.
package partialjson

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// maxDepth bounds container nesting.
const maxDepth = 512

type state int

const (
	// stateFull means the value was read in full.
	stateFull state = iota
	// statePartial means input ended inside the value but a usable
	// completion was produced.
	statePartial
	// stateEmpty means input ended before anything usable was read.
	stateEmpty
	// stateInvalid means the input is not a valid JSON prefix.
	stateInvalid
)

// Repair returns a valid JSON document completing text, or false when no
// value can be built from it yet.
func Repair(text string) (string, bool) {
	p := &parser{s: text}
	p.skipSpace()
	if p.eof() {
		return "", false
	}

	out, st, members := p.value(true)
	switch st {
	case stateInvalid, stateEmpty:
		return "", false
	case statePartial:
		if members == 0 && (out == "[]" || out == "{}") {
			return "", false
		}
	case stateFull:
		p.skipSpace()
		if !p.eof() {
			return "", false
		}
	}
	return out, true
}

// Parse returns the best-effort value of text, decoded the way encoding/json
// decodes into an empty interface.
func Parse(text string) (any, bool) {
	var v any
	if !Decode(text, &v) {
		return nil, false
	}
	return v, true
}

// Decode unmarshals the best-effort completion of text into dst. It reports
// false, leaving dst untouched or partially filled, when text has no value
// yet or the completion does not fit dst.
func Decode(text string, dst any) bool {
	repaired, ok := Repair(text)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(repaired), dst) == nil
}

type parser struct {
	s     string
	pos   int
	depth int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	return p.s[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value reads the value starting at p.pos. members is the number of
// elements or pairs kept when the value is a container.
func (p *parser) value(top bool) (out string, st state, members int) {
	if p.eof() {
		return "", stateEmpty, 0
	}
	switch c := p.peek(); {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		out, st = p.str()
		return out, st, 0
	case c == 't':
		out, st = p.literal("true")
		return out, st, 0
	case c == 'f':
		out, st = p.literal("false")
		return out, st, 0
	case c == 'n':
		out, st = p.literal("null")
		return out, st, 0
	case c == '-' || (c >= '0' && c <= '9'):
		out, st = p.number(top)
		return out, st, 0
	default:
		return "", stateInvalid, 0
	}
}

func (p *parser) array() (string, state, int) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return "", stateInvalid, 0
	}

	p.pos++
	var b strings.Builder
	b.WriteByte('[')
	closeWith := func(st state, n int) (string, state, int) {
		b.WriteByte(']')
		return b.String(), st, n
	}

	p.skipSpace()
	if p.eof() {
		return closeWith(statePartial, 0)
	}
	if p.peek() == ']' {
		p.pos++
		return closeWith(stateFull, 0)
	}

	n := 0
	for {
		v, st, _ := p.value(false)
		switch st {
		case stateInvalid:
			return "", stateInvalid, 0
		case stateEmpty:
			return closeWith(statePartial, n)
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.WriteString(v)
		n++
		if st == statePartial {
			return closeWith(statePartial, n)
		}

		p.skipSpace()
		if p.eof() {
			return closeWith(statePartial, n)
		}
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if p.eof() {
				return closeWith(statePartial, n)
			}
			if p.peek() == ']' {
				return "", stateInvalid, 0
			}
		case ']':
			p.pos++
			return closeWith(stateFull, n)
		default:
			return "", stateInvalid, 0
		}
	}
}

func (p *parser) object() (string, state, int) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return "", stateInvalid, 0
	}

	p.pos++
	var b strings.Builder
	b.WriteByte('{')
	closeWith := func(st state, n int) (string, state, int) {
		b.WriteByte('}')
		return b.String(), st, n
	}

	p.skipSpace()
	if p.eof() {
		return closeWith(statePartial, 0)
	}
	if p.peek() == '}' {
		p.pos++
		return closeWith(stateFull, 0)
	}

	n := 0
	for {
		if p.peek() != '"' {
			return "", stateInvalid, 0
		}
		key, kst := p.str()
		switch kst {
		case stateInvalid:
			return "", stateInvalid, 0
		case statePartial:
			return closeWith(statePartial, n)
		}

		p.skipSpace()
		if p.eof() {
			return closeWith(statePartial, n)
		}
		if p.peek() != ':' {
			return "", stateInvalid, 0
		}
		p.pos++
		p.skipSpace()
		if p.eof() {
			return closeWith(statePartial, n)
		}

		v, st, _ := p.value(false)
		switch st {
		case stateInvalid:
			return "", stateInvalid, 0
		case stateEmpty:
			return closeWith(statePartial, n)
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(v)
		n++
		if st == statePartial {
			return closeWith(statePartial, n)
		}

		p.skipSpace()
		if p.eof() {
			return closeWith(statePartial, n)
		}
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if p.eof() {
				return closeWith(statePartial, n)
			}
		case '}':
			p.pos++
			return closeWith(stateFull, n)
		default:
			return "", stateInvalid, 0
		}
	}
}

// str reads a quoted string and returns its raw JSON text. When input ends
// inside the string the text received so far is closed with a quote, cut
// before any incomplete escape sequence.
func (p *parser) str() (string, state) {
	start := p.pos
	p.pos++
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '"':
			p.pos++
			return p.s[start:p.pos], stateFull
		case c == '\\':
			n, st := p.escape(p.pos)
			switch st {
			case stateInvalid:
				return "", stateInvalid
			case stateEmpty:
				return p.cut(start, p.pos)
			}
			p.pos += n
		case c < 0x20:
			return "", stateInvalid
		default:
			p.pos++
		}
	}
	return p.cut(start, p.pos)
}

func (p *parser) cut(start, end int) (string, state) {
	out := trimPartialRune(p.s[start:end]) + `"`
	p.pos = len(p.s)
	return out, statePartial
}

// trimPartialRune drops a UTF-8 sequence cut off by the end of s. Invalid
// bytes are left for encoding/json to replace.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if !utf8.FullRuneInString(s[i:]) {
			return s[:i]
		}
		break
	}
	return s
}

// escape measures the escape sequence at i. It reports stateEmpty when the
// input ends before the sequence is complete. A high surrogate is only
// complete together with the low surrogate that follows it.
func (p *parser) escape(i int) (int, state) {
	if i+1 >= len(p.s) {
		return 0, stateEmpty
	}
	switch p.s[i+1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2, stateFull
	case 'u':
	default:
		return 0, stateInvalid
	}

	r, st := p.hex4(i + 2)
	if st != stateFull {
		return 0, st
	}
	if r < 0xd800 || r > 0xdbff {
		return 6, stateFull
	}

	// High surrogate: wait for the low half if one is coming.
	j := i + 6
	if j >= len(p.s) {
		return 0, stateEmpty
	}
	if p.s[j] != '\\' {
		return 6, stateFull
	}
	if j+1 >= len(p.s) {
		return 0, stateEmpty
	}
	if p.s[j+1] != 'u' {
		return 6, stateFull
	}
	if _, st := p.hex4(j + 2); st != stateFull {
		return 0, st
	}
	return 6, stateFull
}

func (p *parser) hex4(i int) (rune, state) {
	var r rune
	for k := 0; k < 4; k++ {
		if i+k >= len(p.s) {
			return 0, stateEmpty
		}
		c := p.s[i+k]
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, stateInvalid
		}
		r = r<<4 | rune(v)
	}
	return r, stateFull
}

func (p *parser) literal(lit string) (string, state) {
	rest := p.s[p.pos:]
	if strings.HasPrefix(rest, lit) {
		p.pos += len(lit)
		return lit, stateFull
	}
	if len(rest) < len(lit) && strings.HasPrefix(lit, rest) {
		p.pos = len(p.s)
		return "", stateEmpty
	}
	return "", stateInvalid
}

// number reads a number. A number running to the end of input may still be
// growing, so it is only kept when it is the whole document.
func (p *parser) number(top bool) (string, state) {
	start := p.pos
	for p.pos < len(p.s) && strings.IndexByte("+-0123456789.eE", p.s[p.pos]) >= 0 {
		p.pos++
	}
	num := p.s[start:p.pos]
	valid := json.Valid([]byte(num))
	if p.eof() {
		if top && valid {
			return num, stateFull
		}
		return "", stateEmpty
	}
	if !valid {
		return "", stateInvalid
	}
	return num, stateFull
}
