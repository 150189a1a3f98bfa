// Package params holds the ordered, multi-valued parameter table used to build
// outgoing WMS query strings.
package params

import (
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MergeMode selects how Merge applies the other table's entries.
type MergeMode int

const (
	// Replace drops existing values for a key before storing the merged one.
	Replace MergeMode = iota
	// Append keeps existing values; a colliding key ends up with several values.
	Append
)

func (m MergeMode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

type entry struct {
	key   string
	value string
}

// Table is an ordered list of key/value entries. Keys are case-sensitive and
// may repeat; values under a repeated key keep insertion order.
//
// A Table is not safe for concurrent mutation. Tables stored on a source are
// only ever read, and each request works on its own Clone.
type Table struct {
	entries []entry
}

func New() *Table {
	return &Table{}
}

// FromPairs builds a table by calling Add for each key/value pair.
func FromPairs(kv ...string) *Table {
	t := &Table{entries: make([]entry, 0, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		t.Add(kv[i], kv[i+1])
	}
	return t
}

// Set stores exactly one value for key. The first existing entry is
// overwritten in place and any further entries for key are removed.
func (t *Table) Set(key, value string) {
	idx := -1
	out := t.entries[:0]
	for _, e := range t.entries {
		if e.key == key {
			if idx >= 0 {
				continue
			}
			idx = len(out)
			e.value = value
		}
		out = append(out, e)
	}
	t.entries = out
	if idx < 0 {
		t.entries = append(t.entries, entry{key: key, value: value})
	}
}

// Add appends value under key without touching existing values.
func (t *Table) Add(key, value string) {
	t.entries = append(t.entries, entry{key: key, value: value})
}

// Merge applies every entry of other in order, using Set for Replace and Add
// for Append.
func (t *Table) Merge(other *Table, mode MergeMode) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if mode == Append {
			t.Add(e.key, e.value)
		} else {
			t.Set(e.key, e.value)
		}
	}
}

// Clone returns a deep copy. A nil table clones to an empty one.
func (t *Table) Clone() *Table {
	if t == nil {
		return New()
	}
	cp := make([]entry, len(t.entries))
	copy(cp, t.entries)
	return &Table{entries: cp}
}

// Get returns the first value stored for key.
func (t *Table) Get(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	for _, e := range t.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

func (t *Table) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Values returns every value stored for key in insertion order.
func (t *Table) Values(key string) []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, e := range t.entries {
		if e.key == key {
			out = append(out, e.value)
		}
	}
	return out
}

// Keys returns distinct keys in order of first appearance.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.entries))
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		if _, ok := seen[e.key]; ok {
			continue
		}
		seen[e.key] = struct{}{}
		out = append(out, e.key)
	}
	return out
}

// Len is the number of entries, counting repeated keys.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *Table) IsEmpty() bool { return t.Len() == 0 }

// Each calls fn for every entry in order until fn returns false.
func (t *Table) Each(fn func(key, value string) bool) {
	if t == nil {
		return
	}
	for _, e := range t.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Equal reports whether both tables hold the same entries in the same order.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := 0; i < t.Len(); i++ {
		if t.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// Encode serializes the table as a URL query string. Entries are emitted in
// insertion order, so a repeated key becomes repeated key=value pairs.
// Unlike url.Values.Encode, keys are not sorted.
func (t *Table) Encode() string {
	if t.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(e.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(e.value))
	}
	return b.String()
}

// Fingerprint is a stable 64-bit hash of the encoded table, used to correlate
// outgoing requests in logs.
func (t *Table) Fingerprint() uint64 {
	return xxhash.Sum64String(t.Encode())
}
