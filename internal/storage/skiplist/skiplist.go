package skiplist

import (
	"math/rand"
)

const (
	MaxLevel    = 16
	Probability = 0.5
)

// Node represents a node in the skip list
type Node[K, V any] struct {
	Key     K
	Value   V
	Forward []*Node[K, V]
}

// SkipList is a probabilistic ordered map with expected O(log n) insert,
// search and floor lookups. It is not safe for concurrent use.
type SkipList[K, V any] struct {
	head    *Node[K, V]
	tail    *Node[K, V]
	level   int
	size    int
	compare func(a, b K) int
}

// New creates a new skip list ordered by compare
func New[K, V any](compare func(a, b K) int) *SkipList[K, V] {
	return &SkipList[K, V]{
		head: &Node[K, V]{
			Forward: make([]*Node[K, V], MaxLevel),
		},
		compare: compare,
	}
}

// randomLevel generates a random level for a new node
func (sl *SkipList[K, V]) randomLevel() int {
	level := 0
	for rand.Float64() < Probability && level < MaxLevel-1 {
		level++
	}
	return level
}

// Insert adds a key-value pair, replacing the value if the key already exists
func (sl *SkipList[K, V]) Insert(key K, value V) {
	update := make([]*Node[K, V], MaxLevel)
	current := sl.head

	// Find position to insert
	for i := sl.level; i >= 0; i-- {
		for current.Forward[i] != nil && sl.compare(current.Forward[i].Key, key) < 0 {
			current = current.Forward[i]
		}
		update[i] = current
	}

	next := current.Forward[0]
	if next != nil && sl.compare(next.Key, key) == 0 {
		next.Value = value
		return
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level + 1; i <= newLevel; i++ {
			update[i] = sl.head
		}
		sl.level = newLevel
	}

	node := &Node[K, V]{
		Key:     key,
		Value:   value,
		Forward: make([]*Node[K, V], newLevel+1),
	}

	for i := 0; i <= newLevel; i++ {
		node.Forward[i] = update[i].Forward[i]
		update[i].Forward[i] = node
	}

	if node.Forward[0] == nil {
		sl.tail = node
	}
	sl.size++
}

// Floor returns the node with the greatest key less than or equal to key,
// or nil if every key is greater.
func (sl *SkipList[K, V]) Floor(key K) *Node[K, V] {
	current := sl.head

	for i := sl.level; i >= 0; i-- {
		for current.Forward[i] != nil && sl.compare(current.Forward[i].Key, key) <= 0 {
			current = current.Forward[i]
		}
	}

	if current == sl.head {
		return nil
	}
	return current
}

// Last returns the node with the greatest key, or nil if the list is empty
func (sl *SkipList[K, V]) Last() *Node[K, V] {
	return sl.tail
}

// Len returns the number of elements in the skip list
func (sl *SkipList[K, V]) Len() int {
	return sl.size
}

// Iterator returns a new skip list iterator positioned before the first node
func (sl *SkipList[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{
		current: sl.head,
	}
}

// Iterator iterates over skip list entries in ascending key order
type Iterator[K, V any] struct {
	current *Node[K, V]
}

// Next moves to the next element
func (it *Iterator[K, V]) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.Forward[0]
	return it.current != nil
}

// Key returns the current key
func (it *Iterator[K, V]) Key() K {
	if it.current == nil {
		var zero K
		return zero
	}
	return it.current.Key
}

// Value returns the current value
func (it *Iterator[K, V]) Value() V {
	if it.current == nil {
		var zero V
		return zero
	}
	return it.current.Value
}
