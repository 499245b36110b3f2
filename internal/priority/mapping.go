// Package priority holds the priority value <-> label mapping and the
// last-write-wins resolver that decides which side of a linked pair wins.
package priority

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMapping is returned when a mapping is not a bijection.
var ErrInvalidMapping = errors.New("invalid priority mapping")

// Entry pairs a task-database priority value with its issue label.
type Entry struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// DefaultEntries is the mapping used when none is configured.
func DefaultEntries() []Entry {
	return []Entry{
		{Value: "High", Label: "High-Priority"},
		{Value: "Medium", Label: "Medium-Priority"},
		{Value: "Low", Label: "Low-Priority"},
	}
}

// Mapping is a fixed, ordered, invertible mapping between priority values
// and label names. Declaration order is kept for deterministic output.
type Mapping struct {
	entries []Entry
	byValue map[string]string
	byLabel map[string]string
	order   map[string]int // label -> declaration index
}

// NewMapping validates entries and builds a Mapping. Values and labels must
// be non-empty and unique.
func NewMapping(entries []Entry) (*Mapping, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidMapping)
	}

	m := &Mapping{
		entries: make([]Entry, 0, len(entries)),
		byValue: make(map[string]string, len(entries)),
		byLabel: make(map[string]string, len(entries)),
		order:   make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		value := strings.TrimSpace(e.Value)
		label := strings.TrimSpace(e.Label)
		if value == "" || label == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty value or label", ErrInvalidMapping, i)
		}
		if _, dup := m.byValue[value]; dup {
			return nil, fmt.Errorf("%w: duplicate value %q", ErrInvalidMapping, value)
		}
		if _, dup := m.byLabel[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidMapping, label)
		}
		m.byValue[value] = label
		m.byLabel[label] = value
		m.order[label] = i
		m.entries = append(m.entries, Entry{Value: value, Label: label})
	}

	return m, nil
}

// MustMapping is NewMapping that panics on error. Intended for tests and
// package-level defaults.
func MustMapping(entries []Entry) *Mapping {
	m, err := NewMapping(entries)
	if err != nil {
		panic(err)
	}
	return m
}

// Label returns the label for a priority value.
func (m *Mapping) Label(value string) (string, bool) {
	l, ok := m.byValue[value]
	return l, ok
}

// Value returns the priority value for a label.
func (m *Mapping) Value(label string) (string, bool) {
	v, ok := m.byLabel[label]
	return v, ok
}

// IsLabel reports whether label belongs to the priority family.
func (m *Mapping) IsLabel(label string) bool {
	_, ok := m.byLabel[label]
	return ok
}

// Labels returns all priority labels in declaration order.
func (m *Mapping) Labels() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Label
	}
	return out
}

// Entries returns a copy of the entries in declaration order.
func (m *Mapping) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Present returns the priority labels found in labels, in declaration order.
func (m *Mapping) Present(labels []string) []string {
	var found []string
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if m.IsLabel(l) {
			seen[l] = true
		}
	}
	for _, e := range m.entries {
		if seen[e.Label] {
			found = append(found, e.Label)
		}
	}
	return found
}
