// Package history implements the per-key timeline of a context map: an
// append-only sequence of live values and tombstones ordered by context,
// answering point-in-time (floor) queries.
package history

import (
	"cmp"

	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/storage/skiplist"
)

// State describes what a history says about a key at some context
type State int

const (
	// StateUnrecorded means no entry exists at or before the context
	StateUnrecorded State = iota
	// StateRetracted means the effective entry is a tombstone
	StateRetracted
	// StateLive means the effective entry binds a value
	StateLive
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateRetracted:
		return "retracted"
	default:
		return "unrecorded"
	}
}

// Entry is one committed point of a history. Entries are immutable once
// appended.
type Entry[C, V any] struct {
	Context     C
	Value       V
	IsTombstone bool // True if this entry retracts the key's value
}

// slot is what the skip list stores per context
type slot[V any] struct {
	value     V
	tombstone bool
}

// History is the timeline of a single key. Contexts are strictly increasing
// in insertion order. History is not safe for concurrent use.
type History[C, V any] struct {
	entries *skiplist.SkipList[C, slot[V]]
	compare func(a, b C) int
}

// New creates an empty history over a naturally ordered context type
func New[C cmp.Ordered, V any]() *History[C, V] {
	return NewWithCompare[C, V](cmp.Compare[C])
}

// NewWithCompare creates an empty history ordered by compare, which must be
// a total order.
func NewWithCompare[C, V any](compare func(a, b C) int) *History[C, V] {
	return &History[C, V]{
		entries: skiplist.New[C, slot[V]](compare),
		compare: compare,
	}
}

// Get returns the value effective at context: the entry with the greatest
// context not exceeding it. Absent if there is no such entry or it is a
// tombstone.
func (h *History[C, V]) Get(context C) (V, bool) {
	v, state := h.Lookup(context)
	return v, state == StateLive
}

// Lookup is Get that also distinguishes a retracted key from one that had
// nothing recorded yet.
func (h *History[C, V]) Lookup(context C) (V, State) {
	var zero V

	node := h.entries.Floor(context)
	if node == nil {
		return zero, StateUnrecorded
	}
	if node.Value.tombstone {
		return zero, StateRetracted
	}
	return node.Value.value, StateLive
}

// Update appends a live binding at context
func (h *History[C, V]) Update(context C, value V) error {
	return h.append(context, slot[V]{value: value})
}

// Retract appends a tombstone at context
func (h *History[C, V]) Retract(context C) error {
	return h.append(context, slot[V]{tombstone: true})
}

// CheckAppend reports whether an entry at context would be accepted, without
// changing the history.
func (h *History[C, V]) CheckAppend(context C) error {
	last := h.entries.Last()
	if last != nil && h.compare(last.Key, context) >= 0 {
		return errors.NonMonotonicContext(last.Key, context)
	}
	return nil
}

func (h *History[C, V]) append(context C, s slot[V]) error {
	if err := h.CheckAppend(context); err != nil {
		return err
	}
	h.entries.Insert(context, s)
	return nil
}

// Latest returns the most recent entry
func (h *History[C, V]) Latest() (Entry[C, V], bool) {
	last := h.entries.Last()
	if last == nil {
		return Entry[C, V]{}, false
	}
	return Entry[C, V]{Context: last.Key, Value: last.Value.value, IsTombstone: last.Value.tombstone}, true
}

// Live returns the value bound by the most recent entry, if that entry is
// not a tombstone.
func (h *History[C, V]) Live() (V, bool) {
	latest, ok := h.Latest()
	if !ok || latest.IsTombstone {
		var zero V
		return zero, false
	}
	return latest.Value, true
}

// Len returns the number of entries
func (h *History[C, V]) Len() int {
	return h.entries.Len()
}

// Entries returns a copy of all entries in context order
func (h *History[C, V]) Entries() []Entry[C, V] {
	out := make([]Entry[C, V], 0, h.entries.Len())
	iter := h.entries.Iterator()
	for iter.Next() {
		s := iter.Value()
		out = append(out, Entry[C, V]{Context: iter.Key(), Value: s.value, IsTombstone: s.tombstone})
	}
	return out
}
