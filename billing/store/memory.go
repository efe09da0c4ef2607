// Package store provides in-process billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/subtrack/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	subscriptions map[billing.SubscriptionID]billing.Subscription
	runs          []billing.RenewalRun
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[billing.SubscriptionID]billing.Subscription),
		now:           time.Now,
	}
}

func (m *Memory) Create(_ context.Context, sub billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(sub)
}

func (m *Memory) Get(_ context.Context, id billing.SubscriptionID) (*billing.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) List(_ context.Context, filter billing.Filter) ([]billing.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *Memory) Update(_ context.Context, sub billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(sub)
}

func (m *Memory) Delete(_ context.Context, id billing.SubscriptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Memory) createLocked(sub billing.Subscription) error {
	if _, exists := m.subscriptions[sub.ID]; exists {
		return billing.ErrDuplicateSubscription
	}
	now := m.now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *Memory) getLocked(id billing.SubscriptionID) (*billing.Subscription, error) {
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	c := sub.Clone()
	return &c, nil
}

func (m *Memory) listLocked(filter billing.Filter) []billing.Subscription {
	result := make([]billing.Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if filter.Matches(sub) {
			result = append(result, sub.Clone())
		}
	}
	// Same order the SQL store returns
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.NextPaymentDate.Equal(b.NextPaymentDate) {
			return a.NextPaymentDate.Before(b.NextPaymentDate)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return result
}

func (m *Memory) updateLocked(sub billing.Subscription) error {
	existing, ok := m.subscriptions[sub.ID]
	if !ok {
		return billing.ErrSubscriptionNotFound
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = m.now().UTC()
	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *Memory) deleteLocked(id billing.SubscriptionID) error {
	if _, ok := m.subscriptions[id]; !ok {
		return billing.ErrSubscriptionNotFound
	}
	delete(m.subscriptions, id)
	return nil
}

// =============================================================================
// RENEWAL RUNS
// =============================================================================

// SaveRenewalRun inserts a run or replaces the one with the same ID.
func (m *Memory) SaveRenewalRun(_ context.Context, run billing.RenewalRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRenewalRuns returns the newest runs first. limit <= 0 means all.
func (m *Memory) ListRenewalRuns(_ context.Context, limit int) ([]billing.RenewalRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Reverse insertion order first so runs started at the same instant
	// still come out newest first.
	result := make([]billing.RenewalRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		result = append(result, m.runs[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (tm *TxMemory) snapshot() map[billing.SubscriptionID]billing.Subscription {
	subsCopy := make(map[billing.SubscriptionID]billing.Subscription, len(tm.subscriptions))
	for k, v := range tm.subscriptions {
		subsCopy[k] = v.Clone()
	}
	return subsCopy
}

func (tm *TxMemory) restore(s map[billing.SubscriptionID]billing.Subscription) {
	tm.subscriptions = s
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Create(_ context.Context, sub billing.Subscription) error {
	return tv.parent.createLocked(sub)
}

func (tv *txMemoryView) Get(_ context.Context, id billing.SubscriptionID) (*billing.Subscription, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) List(_ context.Context, filter billing.Filter) ([]billing.Subscription, error) {
	return tv.parent.listLocked(filter), nil
}

func (tv *txMemoryView) Update(_ context.Context, sub billing.Subscription) error {
	return tv.parent.updateLocked(sub)
}

func (tv *txMemoryView) Delete(_ context.Context, id billing.SubscriptionID) error {
	return tv.parent.deleteLocked(id)
}

var (
	_ billing.TxStore  = (*TxMemory)(nil)
	_ billing.RunStore = (*Memory)(nil)
)
