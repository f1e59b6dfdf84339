package contextmap

import (
	"cmp"
	"fmt"
	"sync"
	"time"

	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/history"
	"github.com/devrev/pairdb/contextmap/internal/metrics"
	"go.uber.org/zap"
)

// Policy selects how a write treats a value that already has a live owner
type Policy int

const (
	// PolicyOverwrite retracts the previous owner and rebinds the value
	PolicyOverwrite Policy = iota
	// PolicyNoOverwrite rejects the write with ValueAlreadyOwned
	PolicyNoOverwrite
)

func (p Policy) String() string {
	switch p {
	case PolicyOverwrite:
		return metrics.PolicyOverwrite
	case PolicyNoOverwrite:
		return metrics.PolicyNoOverwrite
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "overwrite" or "no_overwrite"
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case metrics.PolicyOverwrite:
		return PolicyOverwrite, nil
	case metrics.PolicyNoOverwrite:
		return PolicyNoOverwrite, nil
	default:
		return 0, errors.InvalidArgument(fmt.Sprintf("unknown policy %q", s), nil)
	}
}

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a ContextMap
type Option func(*options)

// WithLogger sets the logger used for write diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// ContextMap binds keys to values over time. Each key has a history queried
// by floor lookup, and a reverse index guarantees that a value is live under
// at most one key.
//
// Writers hold an exclusive lock over the whole map and readers share it, so
// a failed write is never observed half-applied.
type ContextMap[K comparable, C any, V comparable] struct {
	mu sync.RWMutex

	compare         func(a, b C) int
	keysToHistories map[K]*history.History[C, V]
	valuesToKeys    map[V]K
	entries         int

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an empty map over a naturally ordered context type
func New[K comparable, C cmp.Ordered, V comparable](opts ...Option) *ContextMap[K, C, V] {
	return NewWithCompare[K, C, V](cmp.Compare[C], opts...)
}

// NewWithCompare creates an empty map whose contexts are ordered by compare
func NewWithCompare[K comparable, C any, V comparable](compare func(a, b C) int, opts ...Option) *ContextMap[K, C, V] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &ContextMap[K, C, V]{
		compare:         compare,
		keysToHistories: make(map[K]*history.History[C, V]),
		valuesToKeys:    make(map[V]K),
		logger:          o.logger,
		metrics:         o.metrics,
	}
}

// Get returns the value bound to key as of context
func (m *ContextMap[K, C, V]) Get(key K, context C) (V, bool) {
	v, state := m.Lookup(key, context)
	return v, state == history.StateLive
}

// Lookup is Get that also tells a retracted key apart from one with nothing
// recorded at or before context. Unknown keys are unrecorded.
func (m *ContextMap[K, C, V]) Lookup(key K, context C) (V, history.State) {
	start := time.Now()

	m.mu.RLock()
	var (
		v     V
		state = history.StateUnrecorded
	)
	if h, ok := m.keysToHistories[key]; ok {
		v, state = h.Lookup(context)
	}
	m.mu.RUnlock()

	if m.metrics != nil {
		m.metrics.RecordRead(state.String(), time.Since(start).Seconds())
	}
	return v, state
}

// Update dispatches to UpdateOverwrite or UpdateNoOverwrite
func (m *ContextMap[K, C, V]) Update(policy Policy, key K, context C, value V) error {
	switch policy {
	case PolicyOverwrite:
		return m.UpdateOverwrite(key, context, value)
	case PolicyNoOverwrite:
		return m.UpdateNoOverwrite(key, context, value)
	default:
		return errors.InvalidArgument(fmt.Sprintf("unknown policy %v", policy), nil)
	}
}

// UpdateOverwrite binds value to key at context. If another key owns value,
// that key is retracted at the same context first. Fails with
// NonMonotonicContext if context is not after the latest context of either
// history involved, in which case nothing changes.
func (m *ContextMap[K, C, V]) UpdateOverwrite(key K, context C, value V) error {
	start := time.Now()

	m.mu.Lock()
	err := m.updateOverwrite(key, context, value)
	m.observeWrite(metrics.PolicyOverwrite, key, value, err, start)
	m.mu.Unlock()

	return err
}

func (m *ContextMap[K, C, V]) updateOverwrite(key K, context C, value V) error {
	target := m.keysToHistories[key]
	owner, owned := m.valuesToKeys[value]
	transfer := owned && owner != key

	if transfer {
		if err := m.keysToHistories[owner].CheckAppend(context); err != nil {
			return err
		}
	}
	if target != nil {
		if err := target.CheckAppend(context); err != nil {
			return err
		}
	}

	if transfer {
		if err := m.keysToHistories[owner].Retract(context); err != nil {
			return errors.InternalError("retract previous owner", err)
		}
		delete(m.valuesToKeys, value)
		m.entries++
		if m.metrics != nil {
			m.metrics.RecordTombstone(metrics.ReasonTransfer)
		}
		m.logger.Debug("Retracted previous owner",
			zap.Any("owner", owner),
			zap.Any("value", value),
			zap.Any("context", context))
	}

	return m.bind(key, target, context, value)
}

// UpdateNoOverwrite binds value to key at context, failing with
// ValueAlreadyOwned if any key, key itself included, currently owns value.
func (m *ContextMap[K, C, V]) UpdateNoOverwrite(key K, context C, value V) error {
	start := time.Now()

	m.mu.Lock()
	err := m.updateNoOverwrite(key, context, value)
	m.observeWrite(metrics.PolicyNoOverwrite, key, value, err, start)
	m.mu.Unlock()

	return err
}

func (m *ContextMap[K, C, V]) updateNoOverwrite(key K, context C, value V) error {
	if owner, owned := m.valuesToKeys[value]; owned {
		return errors.ValueAlreadyOwned(value, owner)
	}

	target := m.keysToHistories[key]
	if target != nil {
		if err := target.CheckAppend(context); err != nil {
			return err
		}
	}

	return m.bind(key, target, context, value)
}

// bind appends (context, value) to key's history, creating it when h is nil,
// and points the reverse index at key. The caller has already checked that
// the append is accepted.
func (m *ContextMap[K, C, V]) bind(key K, h *history.History[C, V], context C, value V) error {
	if h == nil {
		h = history.NewWithCompare[C, V](m.compare)
		m.keysToHistories[key] = h
	}

	// key is moving to a new value, so its previous one loses its owner
	if prev, ok := h.Live(); ok && prev != value {
		m.release(key, prev)
	}

	if err := h.Update(context, value); err != nil {
		return errors.InternalError("append checked entry", err)
	}
	m.valuesToKeys[value] = key
	m.entries++
	return nil
}

func (m *ContextMap[K, C, V]) release(key K, value V) {
	if owner, ok := m.valuesToKeys[value]; ok && owner == key {
		delete(m.valuesToKeys, value)
		if m.metrics != nil {
			m.metrics.ReleasesTotal.Inc()
		}
	}
}

// Retract appends a tombstone to key's history at context, freeing the value
// key owned. A history is created for an unknown key so the retraction is
// still recorded.
func (m *ContextMap[K, C, V]) Retract(key K, context C) error {
	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.keysToHistories[key]
	if h != nil {
		if err := h.CheckAppend(context); err != nil {
			m.observeRetract(key, err, start)
			return err
		}
	} else {
		h = history.NewWithCompare[C, V](m.compare)
		m.keysToHistories[key] = h
	}

	if prev, ok := h.Live(); ok {
		m.release(key, prev)
	}
	if err := h.Retract(context); err != nil {
		err = errors.InternalError("append checked tombstone", err)
		m.observeRetract(key, err, start)
		return err
	}
	m.entries++
	if m.metrics != nil {
		m.metrics.RecordTombstone(metrics.ReasonExplicit)
	}

	m.observeRetract(key, nil, start)
	return nil
}

// observeWrite logs and records the outcome of an update. Called with the
// write lock held.
func (m *ContextMap[K, C, V]) observeWrite(policy string, key K, value V, err error, start time.Time) {
	if err != nil {
		m.logger.Debug("Update rejected",
			zap.String("policy", policy),
			zap.Any("key", key),
			zap.Any("value", value),
			zap.Error(err))
	} else {
		m.logger.Debug("Update applied",
			zap.String("policy", policy),
			zap.Any("key", key),
			zap.Any("value", value))
	}

	if m.metrics != nil {
		m.metrics.RecordUpdate(policy, errors.GetCode(err).String(), time.Since(start).Seconds())
		m.metrics.UpdateIndexStats(len(m.keysToHistories), len(m.valuesToKeys), m.entries)
	}
}

func (m *ContextMap[K, C, V]) observeRetract(key K, err error, start time.Time) {
	if err != nil {
		m.logger.Debug("Retract rejected", zap.Any("key", key), zap.Error(err))
	} else {
		m.logger.Debug("Retract applied", zap.Any("key", key))
	}

	if m.metrics != nil {
		m.metrics.RecordUpdate(metrics.PolicyRetract, errors.GetCode(err).String(), time.Since(start).Seconds())
		m.metrics.UpdateIndexStats(len(m.keysToHistories), len(m.valuesToKeys), m.entries)
	}
}

// Owner returns the key that currently owns value
func (m *ContextMap[K, C, V]) Owner(value V) (K, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.valuesToKeys[value]
	return k, ok
}

// Keys returns the number of keys that have a history
func (m *ContextMap[K, C, V]) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keysToHistories)
}

// OwnedValues returns the number of values with a live owner
func (m *ContextMap[K, C, V]) OwnedValues() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.valuesToKeys)
}

// History returns a copy of key's entries in context order, or nil if key
// was never written.
func (m *ContextMap[K, C, V]) History(key K) []history.Entry[C, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.keysToHistories[key]
	if !ok {
		return nil
	}
	return h.Entries()
}
