/*
Package billing provides the subscription tracking engine.

PURPOSE:
  This package contains the domain types and pure algorithms behind the
  tracker: subscriptions and their cadences, renewal date projection,
  spending summaries and renewal advancement. It performs no I/O; storage
  sits behind the Store interface.

KEY CONCEPTS IN THIS FILE (subscription.go):
  - Subscription: a recurring payment the user tracks
  - BillingRecord / PriceRecord: history of charges and price changes
  - Notification: how long before a renewal the user wants a reminder
  - SubscriptionPatch: partial update with "only set what changed" semantics

DESIGN PRINCIPLES:
  1. Precision: prices are decimal.Decimal, never float64
  2. Pure functions: projection and summaries depend only on their inputs
  3. Fail fast: malformed records are rejected at the boundary with
     ErrInvalidSubscription, not carried into projections

SEE ALSO:
  - cadence.go: Cadence, Unit, MonthEndPolicy
  - projection.go: Project
  - summary.go: Projector, month totals, calendar
*/
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SubscriptionID string

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// List separates personal from business subscriptions.
type List string

const (
	ListPersonal List = "Personal"
	ListBusiness List = "Business"
)

// DefaultCategories are offered when adding a subscription.
var DefaultCategories = []string{
	"Entertainment",
	"Newsletter",
	"Other",
	"Phone",
	"Photography",
	"Podcast",
	"Productivity",
	"Rent",
	"Shopping",
	"Smart Home",
	"Social",
	"Sports",
}

// BillingRecord is one charge that happened.
type BillingRecord struct {
	Date   Date            `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// PriceRecord is a price change, effective from Date.
type PriceRecord struct {
	Date  Date            `json:"date"`
	Price decimal.Decimal `json:"price"`
}

type Subscription struct {
	ID              SubscriptionID
	Name            string
	Logo            string
	Price           Money
	Cycle           Unit
	CycleQuantity   int
	NextPaymentDate Date
	Category        string
	SubscribedDate  Date
	Active          bool
	BillingHistory  []BillingRecord
	PriceHistory    []PriceRecord
	Notification    Notification
	PaymentMethod   string
	FreeTrial       bool
	List            List
	URL             string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cadence returns the renewal cadence anchored at the next payment date.
func (s Subscription) Cadence(policy MonthEndPolicy) Cadence {
	return Cadence{
		Unit:     s.Cycle,
		Quantity: s.CycleQuantity,
		Anchor:   s.NextPaymentDate,
		MonthEnd: policy,
	}
}

// Validate checks the fields every projection and summary relies on.
func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if s.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	if strings.TrimSpace(s.Price.Currency) == "" {
		return &ValidationError{Field: "currency", Message: "is required"}
	}
	if !s.Cycle.valid() {
		return &ValidationError{Field: "billing_cycle", Message: "must be one of daily, weekly, monthly, yearly"}
	}
	if s.CycleQuantity <= 0 {
		return &ValidationError{Field: "billing_cycle_quantity", Message: "must be a positive integer"}
	}
	if s.CycleQuantity > s.Cycle.MaxQuantity() {
		return &ValidationError{Field: "billing_cycle_quantity", Message: fmt.Sprintf("must be at most %d", s.Cycle.MaxQuantity())}
	}
	if s.NextPaymentDate.IsZero() {
		return &ValidationError{Field: "next_payment_date", Message: "is required"}
	}
	if !s.Notification.valid() {
		return &ValidationError{Field: "notification", Message: "is not a supported reminder"}
	}
	switch s.List {
	case "", ListPersonal, ListBusiness:
	default:
		return &ValidationError{Field: "list", Message: "must be Personal or Business"}
	}
	return nil
}

// Clone returns a copy whose history slices can be modified independently.
func (s Subscription) Clone() Subscription {
	c := s
	c.BillingHistory = append([]BillingRecord(nil), s.BillingHistory...)
	c.PriceHistory = append([]PriceRecord(nil), s.PriceHistory...)
	return c
}

// =============================================================================
// NOTIFICATION - Reminder lead time
// =============================================================================

type Notification string

const (
	NotifyNone        Notification = "none"
	NotifyOneDay      Notification = "1 day before"
	NotifyThreeDays   Notification = "3 days before"
	NotifyOneWeek     Notification = "1 week before"
	NotifyOneMonth    Notification = "1 month before"
	NotifyThreeMonths Notification = "3 months before"
)

// Notifications lists the supported reminders in picker order.
var Notifications = []Notification{
	NotifyNone, NotifyOneDay, NotifyThreeDays, NotifyOneWeek, NotifyOneMonth, NotifyThreeMonths,
}

func (n Notification) valid() bool {
	if n == "" {
		return true
	}
	for _, known := range Notifications {
		if n == known {
			return true
		}
	}
	return false
}

// Enabled reports whether a reminder should be produced at all.
func (n Notification) Enabled() bool {
	return n != "" && n != NotifyNone
}

// RemindAt returns the reminder date for a renewal on d.
func (n Notification) RemindAt(d Date) (Date, bool) {
	switch n {
	case NotifyOneDay:
		return d.AddDays(-1), true
	case NotifyThreeDays:
		return d.AddDays(-3), true
	case NotifyOneWeek:
		return d.AddDays(-7), true
	case NotifyOneMonth:
		return d.AddMonthsClamped(-1), true
	case NotifyThreeMonths:
		return d.AddMonthsClamped(-3), true
	}
	return Date{}, false
}

// =============================================================================
// PATCH - Partial update
// =============================================================================

// SubscriptionPatch carries only the fields to change; nil means "leave as is".
type SubscriptionPatch struct {
	Name            *string
	Logo            *string
	Price           *decimal.Decimal
	Currency        *string
	Cycle           *Unit
	CycleQuantity   *int
	NextPaymentDate *Date
	Category        *string
	SubscribedDate  *Date
	Active          *bool
	Notification    *Notification
	PaymentMethod   *string
	FreeTrial       *bool
	List            *List
	URL             *string
}

// Apply returns s with the patch applied. A price change appends a PriceRecord
// dated on the given day.
func (p SubscriptionPatch) Apply(s Subscription, on Date) Subscription {
	out := s.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Logo != nil {
		out.Logo = *p.Logo
	}
	if p.Price != nil && !p.Price.Equal(out.Price.Amount) {
		out.Price.Amount = *p.Price
		out.PriceHistory = append(out.PriceHistory, PriceRecord{Date: on, Price: *p.Price})
	}
	if p.Currency != nil {
		out.Price.Currency = *p.Currency
	}
	if p.Cycle != nil {
		out.Cycle = *p.Cycle
	}
	if p.CycleQuantity != nil {
		out.CycleQuantity = *p.CycleQuantity
	}
	if p.NextPaymentDate != nil {
		out.NextPaymentDate = *p.NextPaymentDate
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.SubscribedDate != nil {
		out.SubscribedDate = *p.SubscribedDate
	}
	if p.Active != nil {
		out.Active = *p.Active
	}
	if p.Notification != nil {
		out.Notification = *p.Notification
	}
	if p.PaymentMethod != nil {
		out.PaymentMethod = *p.PaymentMethod
	}
	if p.FreeTrial != nil {
		out.FreeTrial = *p.FreeTrial
	}
	if p.List != nil {
		out.List = *p.List
	}
	if p.URL != nil {
		out.URL = *p.URL
	}
	return out
}
