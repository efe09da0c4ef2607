/*
store.go - Persistence interface for subscriptions

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:    Subscription CRUD
  TxStore:  Atomic multi-record writes (import, seed)
  RunStore: Renewal advancement run records

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - billing/store/memory.go: In-memory for testing

SEE ALSO:
  - catalog/catalog.go: write-through cache in front of a Store
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for subscription persistence
// =============================================================================

// Filter narrows List results. The zero value matches everything.
type Filter struct {
	ActiveOnly bool
	Category   string
}

// Matches reports whether s passes the filter.
func (f Filter) Matches(s Subscription) bool {
	if f.ActiveOnly && !s.Active {
		return false
	}
	if f.Category != "" && f.Category != s.Category {
		return false
	}
	return true
}

// Store handles persistence of subscriptions.
type Store interface {
	// Create persists a new subscription. Returns ErrDuplicateSubscription if the ID exists.
	Create(ctx context.Context, sub Subscription) error

	// Get returns ErrSubscriptionNotFound when no record has the ID.
	Get(ctx context.Context, id SubscriptionID) (*Subscription, error)

	// List returns matching subscriptions ordered by next payment date, then name.
	List(ctx context.Context, filter Filter) ([]Subscription, error)

	// Update replaces a stored subscription. Returns ErrSubscriptionNotFound if missing.
	Update(ctx context.Context, sub Subscription) error

	// Delete removes a subscription. Returns ErrSubscriptionNotFound if missing.
	Delete(ctx context.Context, id SubscriptionID) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// RENEWAL RUNS - Audit of scheduled advancement
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RenewalRun records one pass of the renewal advancer.
type RenewalRun struct {
	ID          string
	AsOf        Date
	Status      RunStatus
	Checked     int
	Advanced    int
	Charges     int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// RunStore keeps renewal run records, newest first.
type RunStore interface {
	SaveRenewalRun(ctx context.Context, run RenewalRun) error
	ListRenewalRuns(ctx context.Context, limit int) ([]RenewalRun, error)
}
