package message

import (
	"iter"
	"slices"
	"strings"
)

// Field is a single serialized header line. Value holds all values of the
// header joined with a comma.
type Field struct {
	Name  string
	Value string
}

// entry is one header name with its ordered values.
type entry struct {
	name   string
	values []string
}

// Header is an ordered, case-insensitive multi-map of header names to
// values. The zero value is an empty header.
//
// Header is immutable: With, Add and Without return a new Header and leave
// the receiver untouched. Value slices are shared between headers only
// while neither side changes them, and accessors return copies.
type Header struct {
	entries []entry
}

// index returns the position of name in h, or -1.
func (h Header) index(name string) int {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return i
		}
	}
	return -1
}

// Len returns the number of distinct header names.
func (h Header) Len() int {
	return len(h.entries)
}

// Has reports whether a header with the given name is present.
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Get returns the first value for name, or an empty string.
func (h Header) Get(name string) string {
	i := h.index(name)
	if i < 0 || len(h.entries[i].values) == 0 {
		return ""
	}
	return h.entries[i].values[0]
}

// Values returns a copy of all values for name in insertion order.
func (h Header) Values(name string) []string {
	i := h.index(name)
	if i < 0 {
		return nil
	}
	return append([]string(nil), h.entries[i].values...)
}

// Line returns the values for name joined with a comma, the standard
// serialization of a multi-value header.
func (h Header) Line(name string) string {
	i := h.index(name)
	if i < 0 {
		return ""
	}
	return strings.Join(h.entries[i].values, ",")
}

// Names returns the header names in first-seen order, with the casing of
// their first occurrence.
func (h Header) Names() []string {
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.name
	}
	return names
}

// All iterates over header names and copies of their values in order.
func (h Header) All() iter.Seq2[string, []string] {
	return func(yield func(string, []string) bool) {
		for _, e := range h.entries {
			if !yield(e.name, append([]string(nil), e.values...)) {
				return
			}
		}
	}
}

// Fields serializes the header into wire lines in order. Each name
// produces exactly one Field whose value is the comma-joined value list.
func (h Header) Fields() []Field {
	fields := make([]Field, 0, len(h.entries))
	for _, e := range h.entries {
		fields = append(fields, Field{Name: e.name, Value: strings.Join(e.values, ",")})
	}
	return fields
}

// With returns a copy of h where name holds exactly the given values. An
// existing header keeps its position and original casing; a new one is
// appended. Calling With without values removes the header.
func (h Header) With(name string, values ...string) Header {
	if len(values) == 0 {
		return h.Without(name)
	}
	vals := append([]string(nil), values...)
	out := h.copyEntries(len(h.entries) + 1)
	if i := h.index(name); i >= 0 {
		out[i] = entry{name: out[i].name, values: vals}
		return Header{entries: out}
	}
	return Header{entries: append(out, entry{name: name, values: vals})}
}

// Add returns a copy of h with value appended to the values of name.
// Duplicates are kept. Each call copies the entry list, so building a header
// of n fields with Add costs O(n²); use AddPairs for bulk input.
func (h Header) Add(name, value string) Header {
	out := h.copyEntries(len(h.entries) + 1)
	if i := h.index(name); i >= 0 {
		old := out[i].values
		vals := make([]string, len(old), len(old)+1)
		copy(vals, old)
		out[i] = entry{name: out[i].name, values: append(vals, value)}
		return Header{entries: out}
	}
	return Header{entries: append(out, entry{name: name, values: []string{value}})}
}

// AddPairs returns a copy of h with each name/value pair appended as Add
// would, in a single pass. A trailing name without a value is ignored.
func (h Header) AddPairs(pairs ...string) Header {
	n := len(pairs) / 2
	if n == 0 {
		return h
	}
	out := h.copyEntries(len(h.entries) + n)
	owned := make([]bool, len(out), cap(out))
	pos := make(map[string]int, cap(out))
	for i := len(out) - 1; i >= 0; i-- {
		pos[strings.ToLower(out[i].name)] = i
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := strings.ToLower(pairs[i])
		j, ok := pos[key]
		if !ok {
			pos[key] = len(out)
			out = append(out, entry{name: pairs[i], values: []string{pairs[i+1]}})
			owned = append(owned, true)
			continue
		}
		if !owned[j] {
			out[j].values = slices.Clone(out[j].values)
			owned[j] = true
		}
		out[j].values = append(out[j].values, pairs[i+1])
	}
	return Header{entries: out}
}

// Without returns a copy of h with name removed.
func (h Header) Without(name string) Header {
	i := h.index(name)
	if i < 0 {
		return h
	}
	out := make([]entry, 0, len(h.entries)-1)
	out = append(out, h.entries[:i]...)
	out = append(out, h.entries[i+1:]...)
	return Header{entries: out}
}

// copyEntries returns a fresh slice holding h's entries. Value slices are
// shared; callers must replace, never modify, an entry's values.
func (h Header) copyEntries(capacity int) []entry {
	out := make([]entry, len(h.entries), capacity)
	copy(out, h.entries)
	return out
}
