// Package mi implements GDB Machine Interface line parsing: the
// structured-value tree that MI result bodies decode into, the line parser
// that produces tagged records, and the stop-reason normalization table.
//
// Nothing in this package performs I/O. ParseLine is a pure function: one
// line in, one Record out, never a panic.
package mi

import (
	"fmt"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindString Kind = iota
	KindTuple
	KindList
)

// Value is a JSON-like recursive tree: a string leaf, a tuple (ordered
// name->Value mapping), or a list (ordered Value sequence). MI's
// var=val,var=val ordering is semantically meaningful for some result
// classes (frame info, register lists), so Tuple preserves insertion order
// rather than using a plain map.
type Value struct {
	kind   Kind
	str    string
	tuple  []member
	list   []Value
}

type member struct {
	name  string
	value Value
}

// String builds a string-leaf Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// NewTuple builds an empty tuple Value ready for Set.
func NewTuple() Value { return Value{kind: KindTuple} }

// NewList builds an empty list Value ready for Append.
func NewList() Value { return Value{kind: KindList} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsString reports whether v is a string leaf.
func (v Value) IsString() bool { return v.kind == KindString }

// IsTuple reports whether v is a tuple.
func (v Value) IsTuple() bool { return v.kind == KindTuple }

// IsList reports whether v is a list.
func (v Value) IsList() bool { return v.kind == KindList }

// Str returns the leaf string and true if v is a string leaf.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Set adds or replaces a named member on a tuple. Set is a no-op if v is
// not a tuple. Existing names are replaced in place, preserving their
// original position; new names are appended.
func (v *Value) Set(name string, val Value) {
	if v.kind != KindTuple {
		return
	}
	for i := range v.tuple {
		if v.tuple[i].name == name {
			v.tuple[i].value = val
			return
		}
	}
	v.tuple = append(v.tuple, member{name: name, value: val})
}

// Get looks up a named member of a tuple. ok is false if v is not a tuple
// or the name is absent.
func (v Value) Get(name string) (Value, bool) {
	if v.kind != KindTuple {
		return Value{}, false
	}
	for _, m := range v.tuple {
		if m.name == name {
			return m.value, true
		}
	}
	return Value{}, false
}

// Names returns a tuple's member names in insertion order. Empty for
// non-tuples.
func (v Value) Names() []string {
	if v.kind != KindTuple {
		return nil
	}
	names := make([]string, len(v.tuple))
	for i, m := range v.tuple {
		names[i] = m.name
	}
	return names
}

// Append adds an element to a list. No-op if v is not a list.
func (v *Value) Append(val Value) {
	if v.kind != KindList {
		return
	}
	v.list = append(v.list, val)
}

// Items returns a list's elements in order. Empty for non-lists.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Len reports the number of members (tuple) or elements (list); 0 for a
// string leaf.
func (v Value) Len() int {
	switch v.kind {
	case KindTuple:
		return len(v.tuple)
	case KindList:
		return len(v.list)
	default:
		return 0
	}
}

// Equal reports whether v and other are structurally identical: same kind,
// same leaf string, same tuple members in the same order, or same list
// elements in the same order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if v.tuple[i].name != other.tuple[i].name {
				return false
			}
			if !v.tuple[i].value.Equal(other.tuple[i].value) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// JSON renders v as a JSON-equivalent text form, used by observability and
// by the tool-call boundary to carry results through the MCP transport.
// String leaves are JSON-string-escaped; tuples become JSON objects; lists
// become JSON arrays. A list whose elements are all single-member tuples
// (the name=value-within-a-list shape the MI grammar allows, see
// ParseLine's list disambiguation) still renders as a JSON array of
// objects — JSON has no native analogue for that ambiguity, so round-tripping
// through JSON is for observability only, not for ParseLine's own
// round-trip law (which operates on the Value tree directly).
func (v Value) JSON() string {
	var b strings.Builder
	v.writeJSON(&b)
	return b.String()
}

func (v Value) writeJSON(b *strings.Builder) {
	switch v.kind {
	case KindString:
		b.WriteString(jsonQuote(v.str))
	case KindTuple:
		b.WriteByte('{')
		for i, m := range v.tuple {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(jsonQuote(m.name))
			b.WriteByte(':')
			m.value.writeJSON(b)
		}
		b.WriteByte('}')
	case KindList:
		b.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			e.writeJSON(b)
		}
		b.WriteByte(']')
	}
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// GoString is used by tests and debug logging for a compact repr.
func (v Value) GoString() string {
	return v.JSON()
}
