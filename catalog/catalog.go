/*
Package catalog keeps the working set of subscriptions in memory in front of
a billing.Store.

PURPOSE:
  Handlers and commands read subscriptions far more often than they change
  them, and every calendar or summary needs the whole list. The catalog
  caches records by ID and serves reads from memory.

CACHE RULES:
  - Load replaces the cache with the store's contents (read-through).
  - Get falls through to the store on a miss and caches the result.
  - Every mutation calls the store first. The cache changes only after the
    store confirms success, and it takes the record as the store returned
    it. A failed write leaves the cache exactly as it was.

  There are no optimistic updates: a reader never sees a record the store
  has not accepted.

CONCURRENCY:
  A sync.RWMutex guards the cache. Writes hold the write lock across the
  store call so two writers cannot interleave their cache updates.

SEE ALSO:
  - billing/store.go: Store / TxStore / RunStore
  - billing/summary.go: Projector used by Calendar, Summary, Reminders
*/
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/subtrack/billing"
)

// Options configures a Catalog. The zero value is usable.
type Options struct {
	// MonthEnd is applied to every projection and advancement.
	MonthEnd billing.MonthEndPolicy

	// Concurrency caps parallel projections. Zero means unlimited.
	Concurrency int

	// MaxCharges caps billing records written per subscription per advancement.
	MaxCharges int

	Logger *zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Catalog is a write-through cache of subscriptions.
type Catalog struct {
	store     billing.Store
	projector billing.Projector
	opts      Options
	logger    zerolog.Logger

	mu     sync.RWMutex
	cache  map[billing.SubscriptionID]billing.Subscription
	loaded bool
}

func New(store billing.Store, opts Options) *Catalog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.MonthEnd == "" {
		opts.MonthEnd = billing.MonthEndClamp
	}
	logger := log.With().Str("component", "catalog").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Catalog{
		store:     store,
		projector: billing.Projector{MonthEnd: opts.MonthEnd, Concurrency: opts.Concurrency},
		opts:      opts,
		logger:    logger,
		cache:     make(map[billing.SubscriptionID]billing.Subscription),
	}
}

// Store exposes the backing store (run records, health checks).
func (c *Catalog) Store() billing.Store { return c.store }

// Projector returns the projector configured with the catalog's month-end policy.
func (c *Catalog) Projector() billing.Projector { return c.projector }

// Today is the current date according to the catalog's clock.
func (c *Catalog) Today() billing.Date { return billing.DateOf(c.opts.Now()) }

// =============================================================================
// READS
// =============================================================================

// Load replaces the cache with everything in the store.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Catalog) loadLocked(ctx context.Context) error {
	subs, err := c.store.List(ctx, billing.Filter{})
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	cache := make(map[billing.SubscriptionID]billing.Subscription, len(subs))
	for _, s := range subs {
		cache[s.ID] = s
	}
	c.cache = cache
	c.loaded = true
	c.logger.Debug().Int("count", len(subs)).Msg("Catalog loaded")
	return nil
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// Get returns one subscription, reading through to the store on a miss.
func (c *Catalog) Get(ctx context.Context, id billing.SubscriptionID) (billing.Subscription, error) {
	c.mu.RLock()
	sub, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return sub.Clone(), nil
	}

	stored, err := c.store.Get(ctx, id)
	if err != nil {
		return billing.Subscription{}, err
	}

	c.mu.Lock()
	c.cache[id] = *stored
	c.mu.Unlock()
	return stored.Clone(), nil
}

// List returns the cached subscriptions matching filter in the requested order.
func (c *Catalog) List(ctx context.Context, filter billing.Filter, by billing.SortOption) ([]billing.Subscription, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	out := make([]billing.Subscription, 0, len(c.cache))
	for _, s := range c.cache {
		if filter.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	c.mu.RUnlock()

	billing.Sort(out, by)
	return out, nil
}

// =============================================================================
// WRITES - store first, cache on success
// =============================================================================

// Create validates and stores a new subscription. An empty ID gets a UUID.
func (c *Catalog) Create(ctx context.Context, sub billing.Subscription) (billing.Subscription, error) {
	if sub.ID == "" {
		sub.ID = billing.SubscriptionID(c.opts.NewID())
	}
	if sub.CycleQuantity == 0 {
		sub.CycleQuantity = 1
	}
	if err := sub.Validate(); err != nil {
		return billing.Subscription{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Create(ctx, sub); err != nil {
		return billing.Subscription{}, err
	}
	stored, err := c.refreshLocked(ctx, sub.ID)
	if err != nil {
		return billing.Subscription{}, err
	}

	c.logger.Info().Str("id", string(sub.ID)).Str("name", sub.Name).Msg("Subscription created")
	return stored, nil
}

// Update applies a partial update. A price change is recorded in the price history.
func (c *Catalog) Update(ctx context.Context, id billing.SubscriptionID, patch billing.SubscriptionPatch) (billing.Subscription, error) {
	updated, _, err := c.modify(ctx, id, func(current billing.Subscription) (billing.Subscription, bool, error) {
		next := patch.Apply(current, c.Today())
		if err := next.Validate(); err != nil {
			return billing.Subscription{}, false, err
		}
		return next, true, nil
	})
	return updated, err
}

// Cancel marks a subscription inactive. It stays in the list, drops out of
// projections and totals.
func (c *Catalog) Cancel(ctx context.Context, id billing.SubscriptionID) (billing.Subscription, error) {
	inactive := false
	return c.Update(ctx, id, billing.SubscriptionPatch{Active: &inactive})
}

// modify reads the current record, applies change and stores the result while
// holding the write lock, so two writers never start from the same copy.
// When change reports false nothing is written.
func (c *Catalog) modify(ctx context.Context, id billing.SubscriptionID,
	change func(billing.Subscription) (billing.Subscription, bool, error),
) (billing.Subscription, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.cache[id]
	if !ok {
		stored, err := c.store.Get(ctx, id)
		if err != nil {
			return billing.Subscription{}, false, err
		}
		current = *stored
	}

	updated, changed, err := change(current.Clone())
	if err != nil {
		return billing.Subscription{}, false, err
	}
	if !changed {
		return current.Clone(), false, nil
	}

	if err := c.store.Update(ctx, updated); err != nil {
		if billing.IsNotFound(err) {
			delete(c.cache, id)
		}
		return billing.Subscription{}, false, err
	}
	stored, err := c.refreshLocked(ctx, id)
	if err != nil {
		return billing.Subscription{}, false, err
	}

	c.logger.Info().Str("id", string(id)).Msg("Subscription updated")
	return stored, true, nil
}

// Delete removes a subscription.
func (c *Catalog) Delete(ctx context.Context, id billing.SubscriptionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		if billing.IsNotFound(err) {
			delete(c.cache, id)
		}
		return err
	}
	delete(c.cache, id)

	c.logger.Info().Str("id", string(id)).Msg("Subscription deleted")
	return nil
}

// refreshLocked caches the record as the store now has it.
func (c *Catalog) refreshLocked(ctx context.Context, id billing.SubscriptionID) (billing.Subscription, error) {
	stored, err := c.store.Get(ctx, id)
	if err != nil {
		// The write went through; the next Load will pick it up.
		delete(c.cache, id)
		return billing.Subscription{}, fmt.Errorf("re-read %s: %w", id, err)
	}
	c.cache[id] = *stored
	return stored.Clone(), nil
}

// =============================================================================
// BULK WRITES - atomic, require a TxStore
// =============================================================================

// Import stores subs in one transaction. With replace, existing records are
// removed first. Every record is validated before anything is written.
func (c *Catalog) Import(ctx context.Context, subs []billing.Subscription, replace bool) (int, error) {
	txs, ok := c.store.(billing.TxStore)
	if !ok {
		return 0, billing.ErrStoreRequired
	}

	prepared := make([]billing.Subscription, len(subs))
	for i, sub := range subs {
		if sub.ID == "" {
			sub.ID = billing.SubscriptionID(c.opts.NewID())
		}
		if err := sub.Validate(); err != nil {
			return 0, fmt.Errorf("record %d (%s): %w", i, sub.Name, err)
		}
		prepared[i] = sub
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := txs.WithTx(ctx, func(tx billing.Store) error {
		if replace {
			if err := deleteAll(ctx, tx); err != nil {
				return err
			}
		}
		for _, sub := range prepared {
			if err := tx.Create(ctx, sub); err != nil {
				return fmt.Errorf("create %s: %w", sub.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := c.loadLocked(ctx); err != nil {
		return 0, err
	}
	c.logger.Info().Int("count", len(prepared)).Bool("replace", replace).Msg("Subscriptions imported")
	return len(prepared), nil
}

// Seed replaces everything with the given sample records.
func (c *Catalog) Seed(ctx context.Context, samples []billing.Subscription) (int, error) {
	return c.Import(ctx, samples, true)
}

// Reset removes every subscription.
func (c *Catalog) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if r, ok := c.store.(interface{ Reset(context.Context) error }); ok {
		err = r.Reset(ctx)
	} else if txs, ok := c.store.(billing.TxStore); ok {
		err = txs.WithTx(ctx, func(tx billing.Store) error { return deleteAll(ctx, tx) })
	} else {
		err = deleteAll(ctx, c.store)
	}
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	c.cache = make(map[billing.SubscriptionID]billing.Subscription)
	c.loaded = true
	c.logger.Warn().Msg("All subscriptions removed")
	return nil
}

func deleteAll(ctx context.Context, s billing.Store) error {
	existing, err := s.List(ctx, billing.Filter{})
	if err != nil {
		return err
	}
	for _, sub := range existing {
		if err := s.Delete(ctx, sub.ID); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// RENEWAL ADVANCEMENT
// =============================================================================

// AdvanceReport summarizes one AdvanceDue pass.
type AdvanceReport struct {
	Checked  int
	Advanced int
	Charges  int
}

// AdvanceDue moves every active subscription whose next payment date has
// passed forward to its next renewal on or after today, recording the
// passed charges. Records already stored stay stored if a later one fails.
func (c *Catalog) AdvanceDue(ctx context.Context, today billing.Date) (AdvanceReport, error) {
	var report AdvanceReport

	active, err := c.List(ctx, billing.Filter{ActiveOnly: true}, billing.SortNext)
	if err != nil {
		return report, err
	}

	for _, sub := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		// Advance the record as stored now, not the listed copy: an update
		// may have landed since the list was taken.
		var res billing.AdvanceResult
		_, advanced, err := c.modify(ctx, sub.ID, func(current billing.Subscription) (billing.Subscription, bool, error) {
			var err error
			res, err = billing.Advance(current, today, c.opts.MonthEnd, c.opts.MaxCharges)
			return res.Subscription, res.Advanced, err
		})
		if billing.IsNotFound(err) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("advance %s: %w", sub.ID, err)
		}
		if !advanced {
			continue
		}
		report.Advanced++
		report.Charges += len(res.Charges)

		c.logger.Debug().
			Str("id", string(sub.ID)).
			Str("next", res.Subscription.NextPaymentDate.String()).
			Int("charges", len(res.Charges)).
			Msg("Renewal advanced")
	}
	return report, nil
}

// =============================================================================
// PROJECTIONS over the cached set
// =============================================================================

// Renewals projects one subscription over w.
func (c *Catalog) Renewals(ctx context.Context, id billing.SubscriptionID, w billing.Window) ([]billing.Date, error) {
	sub, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.projector.Renewals(sub, w)
}

// Calendar builds the month view for year/month.
func (c *Catalog) Calendar(ctx context.Context, year int, month time.Month) (billing.MonthCalendar, error) {
	subs, err := c.List(ctx, billing.Filter{ActiveOnly: true}, billing.SortNext)
	if err != nil {
		return billing.MonthCalendar{}, err
	}
	return c.projector.Calendar(ctx, subs, year, month, c.Today())
}

// Summary counts subscriptions and totals their normalized cost.
func (c *Catalog) Summary(ctx context.Context) (billing.Summary, error) {
	subs, err := c.List(ctx, billing.Filter{}, billing.SortNext)
	if err != nil {
		return billing.Summary{}, err
	}
	return billing.Summarize(subs), nil
}

// Reminders lists reminder dates inside w.
func (c *Catalog) Reminders(ctx context.Context, w billing.Window) ([]billing.Reminder, error) {
	subs, err := c.List(ctx, billing.Filter{ActiveOnly: true}, billing.SortNext)
	if err != nil {
		return nil, err
	}
	return c.projector.Reminders(ctx, subs, w)
}
