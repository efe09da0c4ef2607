/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements billing.TxStore and billing.RunStore using SQLite. The same
  schema ports to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  billing.Store:    Subscription CRUD
  billing.TxStore:  Atomic import and seed
  billing.RunStore: Renewal advancement runs

KEY TABLES:
  subscriptions: One row per subscription. Histories are JSON columns,
                 prices are decimal strings, dates are YYYY-MM-DD.
  renewal_runs:  One row per advancement run, upserted as it progresses.

INDEXES:
  - idx_subscriptions_next_payment: list ordering (hot path)
  - idx_subscriptions_category:     category filter
  - idx_renewal_runs_started:       newest-first run listing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/subtrack.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  cat := catalog.New(store, catalog.Options{})

MIGRATION:
  Schema is auto-migrated on New(). NewFromDB skips migration so tests can
  drive the store through go-sqlmock.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/subtrack/billing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an already-open database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		logo TEXT,
		price TEXT NOT NULL,
		currency TEXT NOT NULL,
		billing_cycle TEXT NOT NULL,
		billing_cycle_quantity INTEGER NOT NULL DEFAULT 1,
		next_payment_date TEXT NOT NULL,
		category TEXT,
		subscribed_date TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		billing_history_json TEXT,
		price_history_json TEXT,
		notification TEXT,
		payment_method TEXT,
		free_trial INTEGER NOT NULL DEFAULT 0,
		list TEXT,
		url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_next_payment
		ON subscriptions(next_payment_date, name);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_category
		ON subscriptions(category) WHERE category IS NOT NULL;

	-- Renewal advancement runs (scheduled and manual)
	CREATE TABLE IF NOT EXISTS renewal_runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		checked INTEGER DEFAULT 0,
		advanced INTEGER DEFAULT 0,
		charges INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_renewal_runs_started
		ON renewal_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const subscriptionColumns = `id, name, logo, price, currency, billing_cycle, billing_cycle_quantity,
	next_payment_date, category, subscribed_date, is_active, billing_history_json,
	price_history_json, notification, payment_method, free_trial, list, url,
	created_at, updated_at`

// =============================================================================
// SUBSCRIPTION STORE (billing.Store interface)
// =============================================================================

// Create inserts a subscription.
func (s *Store) Create(ctx context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(ctx, s.db, sub)
}

// Get loads one subscription by ID.
func (s *Store) Get(ctx context.Context, id billing.SubscriptionID) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, id)
}

// List returns matching subscriptions ordered by next payment date, then name.
func (s *Store) List(ctx context.Context, filter billing.Filter) ([]billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, s.db, filter)
}

// Update replaces every column of an existing subscription except created_at.
func (s *Store) Update(ctx context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, s.db, sub)
}

// Delete removes a subscription.
func (s *Store) Delete(ctx context.Context, id billing.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(ctx, s.db, id)
}

func (s *Store) create(ctx context.Context, db querier, sub billing.Subscription) error {
	now := s.now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	row, err := toRow(sub)
	if err != nil {
		return err
	}

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := db.ExecContext(ctx, query, row.args()...); err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateSubscription
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, db querier, id billing.SubscriptionID) (*billing.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`

	sub, err := scanSubscription(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) list(ctx context.Context, db querier, filter billing.Filter) ([]billing.Subscription, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY next_payment_date ASC, name ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []billing.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) update(ctx context.Context, db querier, sub billing.Subscription) error {
	sub.UpdatedAt = s.now().UTC()
	row, err := toRow(sub)
	if err != nil {
		return err
	}

	query := `
		UPDATE subscriptions SET
			name = ?, logo = ?, price = ?, currency = ?, billing_cycle = ?,
			billing_cycle_quantity = ?, next_payment_date = ?, category = ?,
			subscribed_date = ?, is_active = ?, billing_history_json = ?,
			price_history_json = ?, notification = ?, payment_method = ?,
			free_trial = ?, list = ?, url = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		row.Name, row.Logo, row.Price, row.Currency, row.Cycle,
		row.CycleQuantity, row.NextPaymentDate, row.Category,
		row.SubscribedDate, row.Active, row.BillingHistory,
		row.PriceHistory, row.Notification, row.PaymentMethod,
		row.FreeTrial, row.List, row.URL, row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) delete(ctx context.Context, db querier, id billing.SubscriptionID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

// subscriptionRow is a subscription in column form.
type subscriptionRow struct {
	ID              string
	Name            string
	Logo            sql.NullString
	Price           string
	Currency        string
	Cycle           string
	CycleQuantity   int
	NextPaymentDate string
	Category        sql.NullString
	SubscribedDate  sql.NullString
	Active          bool
	BillingHistory  sql.NullString
	PriceHistory    sql.NullString
	Notification    sql.NullString
	PaymentMethod   sql.NullString
	FreeTrial       bool
	List            sql.NullString
	URL             sql.NullString
	CreatedAt       string
	UpdatedAt       string
}

func (r subscriptionRow) args() []any {
	return []any{
		r.ID, r.Name, r.Logo, r.Price, r.Currency, r.Cycle, r.CycleQuantity,
		r.NextPaymentDate, r.Category, r.SubscribedDate, r.Active, r.BillingHistory,
		r.PriceHistory, r.Notification, r.PaymentMethod, r.FreeTrial, r.List, r.URL,
		r.CreatedAt, r.UpdatedAt,
	}
}

func toRow(sub billing.Subscription) (subscriptionRow, error) {
	billingJSON, err := marshalHistory(sub.BillingHistory)
	if err != nil {
		return subscriptionRow{}, fmt.Errorf("failed to encode billing history: %w", err)
	}
	priceJSON, err := marshalHistory(sub.PriceHistory)
	if err != nil {
		return subscriptionRow{}, fmt.Errorf("failed to encode price history: %w", err)
	}

	row := subscriptionRow{
		ID:              string(sub.ID),
		Name:            sub.Name,
		Logo:            nullString(sub.Logo),
		Price:           sub.Price.Amount.String(),
		Currency:        sub.Price.Currency,
		Cycle:           string(sub.Cycle),
		CycleQuantity:   sub.CycleQuantity,
		NextPaymentDate: sub.NextPaymentDate.String(),
		Category:        nullString(sub.Category),
		Active:          sub.Active,
		BillingHistory:  billingJSON,
		PriceHistory:    priceJSON,
		Notification:    nullString(string(sub.Notification)),
		PaymentMethod:   nullString(sub.PaymentMethod),
		FreeTrial:       sub.FreeTrial,
		List:            nullString(string(sub.List)),
		URL:             nullString(sub.URL),
		CreatedAt:       sub.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       sub.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !sub.SubscribedDate.IsZero() {
		row.SubscribedDate = nullString(sub.SubscribedDate.String())
	}
	return row, nil
}

func marshalHistory[T any](records []T) (sql.NullString, error) {
	if len(records) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(sc scanner) (billing.Subscription, error) {
	var r subscriptionRow
	err := sc.Scan(
		&r.ID, &r.Name, &r.Logo, &r.Price, &r.Currency, &r.Cycle, &r.CycleQuantity,
		&r.NextPaymentDate, &r.Category, &r.SubscribedDate, &r.Active, &r.BillingHistory,
		&r.PriceHistory, &r.Notification, &r.PaymentMethod, &r.FreeTrial, &r.List, &r.URL,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return billing.Subscription{}, err
		}
		return billing.Subscription{}, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return fromRow(r)
}

func fromRow(r subscriptionRow) (billing.Subscription, error) {
	price, err := billing.ParseMoney(r.Price, r.Currency)
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("subscription %s: bad price %q: %w", r.ID, r.Price, err)
	}
	next, err := billing.ParseDate(r.NextPaymentDate)
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("subscription %s: %w", r.ID, err)
	}

	sub := billing.Subscription{
		ID:              billing.SubscriptionID(r.ID),
		Name:            r.Name,
		Logo:            r.Logo.String,
		Price:           price,
		Cycle:           billing.Unit(r.Cycle),
		CycleQuantity:   r.CycleQuantity,
		NextPaymentDate: next,
		Category:        r.Category.String,
		Active:          r.Active,
		Notification:    billing.Notification(r.Notification.String),
		PaymentMethod:   r.PaymentMethod.String,
		FreeTrial:       r.FreeTrial,
		List:            billing.List(r.List.String),
		URL:             r.URL.String,
	}
	if r.SubscribedDate.Valid {
		sub.SubscribedDate, _ = billing.ParseDate(r.SubscribedDate.String)
	}
	if r.BillingHistory.Valid {
		if err := json.Unmarshal([]byte(r.BillingHistory.String), &sub.BillingHistory); err != nil {
			return billing.Subscription{}, fmt.Errorf("subscription %s: bad billing history: %w", r.ID, err)
		}
	}
	if r.PriceHistory.Valid {
		if err := json.Unmarshal([]byte(r.PriceHistory.String), &sub.PriceHistory); err != nil {
			return billing.Subscription{}, fmt.Errorf("subscription %s: bad price history: %w", r.ID, err)
		}
	}
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return sub, nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open transaction. The parent lock is
// already held by WithTx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Create(ctx context.Context, sub billing.Subscription) error {
	return ts.parent.create(ctx, ts.tx, sub)
}

func (ts *txStore) Get(ctx context.Context, id billing.SubscriptionID) (*billing.Subscription, error) {
	return ts.parent.get(ctx, ts.tx, id)
}

func (ts *txStore) List(ctx context.Context, filter billing.Filter) ([]billing.Subscription, error) {
	return ts.parent.list(ctx, ts.tx, filter)
}

func (ts *txStore) Update(ctx context.Context, sub billing.Subscription) error {
	return ts.parent.update(ctx, ts.tx, sub)
}

func (ts *txStore) Delete(ctx context.Context, id billing.SubscriptionID) error {
	return ts.parent.delete(ctx, ts.tx, id)
}

// =============================================================================
// RENEWAL RUNS STORE (billing.RunStore interface)
// =============================================================================

// SaveRenewalRun inserts a run or updates the one with the same ID.
func (s *Store) SaveRenewalRun(ctx context.Context, r billing.RenewalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO renewal_runs (id, as_of, status, checked, advanced, charges, error,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			checked = excluded.checked,
			advanced = excluded.advanced,
			charges = excluded.charges,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		v := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &v
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.AsOf.String(), string(r.Status), r.Checked, r.Advanced, r.Charges,
		nullString(r.Error), r.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save renewal run: %w", err)
	}
	return nil
}

// ListRenewalRuns returns the newest runs first. limit <= 0 means all.
func (s *Store) ListRenewalRuns(ctx context.Context, limit int) ([]billing.RenewalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, as_of, status, checked, advanced, charges, error, started_at, completed_at
		FROM renewal_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query renewal runs: %w", err)
	}
	defer rows.Close()

	runs := []billing.RenewalRun{}
	for rows.Next() {
		var (
			r                   billing.RenewalRun
			asOf, status        string
			startedAt           string
			runErr, completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &asOf, &status, &r.Checked, &r.Advanced, &r.Charges,
			&runErr, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan renewal run: %w", err)
		}

		r.AsOf, _ = billing.ParseDate(asOf)
		r.Status = billing.RunStatus(status)
		r.Error = runErr.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"subscriptions", "renewal_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ billing.TxStore  = (*Store)(nil)
	_ billing.RunStore = (*Store)(nil)
)
