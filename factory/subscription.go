/*
Package factory converts between JSON documents and billing.Subscription.

PURPOSE:
  Subscriptions enter the system as JSON: API request bodies, import files
  and exports from earlier versions of the app. The factory owns that wire
  format so the billing package stays free of encoding concerns.

JSON SCHEMA (camelCase, the mobile app's field names):
  {
    "id": "7d1c...",
    "name": "Netflix",
    "logo": "netflix",
    "price": 199,
    "currency": "₹",
    "billingCycle": "monthly",
    "billingCycleQuantity": 1,
    "nextPaymentDate": "2025-03-05",
    "category": "Entertainment",
    "subscribedDate": "2023-03-05",
    "isActive": true,
    "billingHistory": [{"date": "2025-02-05", "amount": 199}],
    "priceHistory": [{"date": "2024-06-01", "price": 199}],
    "notification": "3 days before",
    "paymentMethod": "UPI",
    "freeTrial": false,
    "list": "Personal",
    "url": "https://netflix.com"
  }

DEFAULTS:
  - billingCycleQuantity: 1
  - isActive: true
  - billingCycle accepts "month", "months", "annual" and similar spellings
  - dates accept YYYY-MM-DD or a full ISO timestamp

EXPORT FILE:
  {"version": 1, "exportedAt": "...", "subscriptions": [...]}
  ParseExport also accepts a bare array of subscriptions.

SEE ALSO:
  - billing/subscription.go: Subscription, Validate
  - api/handlers.go: request decoding
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/subtrack/billing"
)

// ExportVersion is written into every export file.
const ExportVersion = 1

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SubscriptionJSON is the JSON representation of a subscription.
type SubscriptionJSON struct {
	ID                   string              `json:"id,omitempty"`
	Name                 string              `json:"name"`
	Logo                 string              `json:"logo,omitempty"`
	Price                json.Number         `json:"price"`
	Currency             string              `json:"currency"`
	BillingCycle         string              `json:"billingCycle"`
	BillingCycleQuantity int                 `json:"billingCycleQuantity,omitempty"`
	NextPaymentDate      string              `json:"nextPaymentDate"`
	Category             string              `json:"category,omitempty"`
	SubscribedDate       string              `json:"subscribedDate,omitempty"`
	IsActive             *bool               `json:"isActive,omitempty"`
	BillingHistory       []BillingRecordJSON `json:"billingHistory,omitempty"`
	PriceHistory         []PriceRecordJSON   `json:"priceHistory,omitempty"`
	Notification         string              `json:"notification,omitempty"`
	PaymentMethod        string              `json:"paymentMethod,omitempty"`
	FreeTrial            bool                `json:"freeTrial,omitempty"`
	List                 string              `json:"list,omitempty"`
	URL                  string              `json:"url,omitempty"`
	CreatedAt            *time.Time          `json:"createdAt,omitempty"`
	UpdatedAt            *time.Time          `json:"updatedAt,omitempty"`
}

// BillingRecordJSON is one past charge.
type BillingRecordJSON struct {
	Date   string      `json:"date"`
	Amount json.Number `json:"amount"`
}

// PriceRecordJSON is one price change.
type PriceRecordJSON struct {
	Date  string      `json:"date"`
	Price json.Number `json:"price"`
}

// ExportFile is the import/export document.
type ExportFile struct {
	Version       int                `json:"version"`
	ExportedAt    time.Time          `json:"exportedAt"`
	Subscriptions []SubscriptionJSON `json:"subscriptions"`
}

// =============================================================================
// JSON -> DOMAIN
// =============================================================================

// ParseSubscription decodes and validates one subscription document.
func ParseSubscription(data []byte) (billing.Subscription, error) {
	var j SubscriptionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return billing.Subscription{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return j.ToSubscription()
}

// ToSubscription converts and validates.
func (j SubscriptionJSON) ToSubscription() (billing.Subscription, error) {
	price, err := parseAmount("price", j.Price)
	if err != nil {
		return billing.Subscription{}, err
	}

	unit, err := billing.ParseUnit(j.BillingCycle)
	if err != nil {
		return billing.Subscription{}, &billing.ValidationError{Field: "billingCycle", Message: "must be one of daily, weekly, monthly, yearly"}
	}

	next, err := parseDate("nextPaymentDate", j.NextPaymentDate)
	if err != nil {
		return billing.Subscription{}, err
	}

	sub := billing.Subscription{
		ID:              billing.SubscriptionID(j.ID),
		Name:            j.Name,
		Logo:            j.Logo,
		Price:           billing.Money{Amount: price, Currency: j.Currency},
		Cycle:           unit,
		CycleQuantity:   j.BillingCycleQuantity,
		NextPaymentDate: next,
		Category:        j.Category,
		Active:          true,
		Notification:    billing.Notification(j.Notification),
		PaymentMethod:   j.PaymentMethod,
		FreeTrial:       j.FreeTrial,
		List:            billing.List(j.List),
		URL:             j.URL,
	}
	if sub.CycleQuantity == 0 {
		sub.CycleQuantity = 1
	}
	if j.IsActive != nil {
		sub.Active = *j.IsActive
	}
	if j.SubscribedDate != "" {
		if sub.SubscribedDate, err = parseDate("subscribedDate", j.SubscribedDate); err != nil {
			return billing.Subscription{}, err
		}
	}
	if j.CreatedAt != nil {
		sub.CreatedAt = j.CreatedAt.UTC()
	}

	for i, r := range j.BillingHistory {
		d, err := parseDate(fmt.Sprintf("billingHistory[%d].date", i), r.Date)
		if err != nil {
			return billing.Subscription{}, err
		}
		amount, err := parseAmount(fmt.Sprintf("billingHistory[%d].amount", i), r.Amount)
		if err != nil {
			return billing.Subscription{}, err
		}
		sub.BillingHistory = append(sub.BillingHistory, billing.BillingRecord{Date: d, Amount: amount})
	}
	for i, r := range j.PriceHistory {
		d, err := parseDate(fmt.Sprintf("priceHistory[%d].date", i), r.Date)
		if err != nil {
			return billing.Subscription{}, err
		}
		p, err := parseAmount(fmt.Sprintf("priceHistory[%d].price", i), r.Price)
		if err != nil {
			return billing.Subscription{}, err
		}
		sub.PriceHistory = append(sub.PriceHistory, billing.PriceRecord{Date: d, Price: p})
	}

	if err := sub.Validate(); err != nil {
		return billing.Subscription{}, err
	}
	return sub, nil
}

func parseAmount(field string, n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Decimal{}, &billing.ValidationError{Field: field, Message: "is required"}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, &billing.ValidationError{Field: field, Message: "must be a number"}
	}
	return d, nil
}

func parseDate(field, s string) (billing.Date, error) {
	if s == "" {
		return billing.Date{}, &billing.ValidationError{Field: field, Message: "is required"}
	}
	d, err := billing.ParseDate(s)
	if err != nil {
		return billing.Date{}, &billing.ValidationError{Field: field, Message: "must be a date (YYYY-MM-DD)"}
	}
	return d, nil
}

// ParseExport reads an export file, or a bare array of subscriptions.
// Every record is validated; the first failure is reported with its index.
func ParseExport(data []byte) ([]billing.Subscription, error) {
	var docs []SubscriptionJSON
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		var file ExportFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		if file.Version > ExportVersion {
			return nil, fmt.Errorf("export version %d is newer than supported version %d", file.Version, ExportVersion)
		}
		docs = file.Subscriptions
	}

	subs := make([]billing.Subscription, 0, len(docs))
	for i, doc := range docs {
		sub, err := doc.ToSubscription()
		if err != nil {
			return nil, fmt.Errorf("subscription %d (%s): %w", i, doc.Name, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// =============================================================================
// DOMAIN -> JSON
// =============================================================================

// FromSubscription renders a subscription in the wire format.
func FromSubscription(s billing.Subscription) SubscriptionJSON {
	active := s.Active
	j := SubscriptionJSON{
		ID:                   string(s.ID),
		Name:                 s.Name,
		Logo:                 s.Logo,
		Price:                json.Number(s.Price.Amount.String()),
		Currency:             s.Price.Currency,
		BillingCycle:         string(s.Cycle),
		BillingCycleQuantity: s.CycleQuantity,
		NextPaymentDate:      s.NextPaymentDate.String(),
		Category:             s.Category,
		IsActive:             &active,
		Notification:         string(s.Notification),
		PaymentMethod:        s.PaymentMethod,
		FreeTrial:            s.FreeTrial,
		List:                 string(s.List),
		URL:                  s.URL,
	}
	if !s.SubscribedDate.IsZero() {
		j.SubscribedDate = s.SubscribedDate.String()
	}
	if !s.CreatedAt.IsZero() {
		t := s.CreatedAt.UTC()
		j.CreatedAt = &t
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt.UTC()
		j.UpdatedAt = &t
	}
	for _, r := range s.BillingHistory {
		j.BillingHistory = append(j.BillingHistory, BillingRecordJSON{Date: r.Date.String(), Amount: json.Number(r.Amount.String())})
	}
	for _, r := range s.PriceHistory {
		j.PriceHistory = append(j.PriceHistory, PriceRecordJSON{Date: r.Date.String(), Price: json.Number(r.Price.String())})
	}
	return j
}

// Export builds the export document for subs.
func Export(subs []billing.Subscription, at time.Time) ExportFile {
	file := ExportFile{
		Version:       ExportVersion,
		ExportedAt:    at.UTC(),
		Subscriptions: make([]SubscriptionJSON, 0, len(subs)),
	}
	for _, s := range subs {
		file.Subscriptions = append(file.Subscriptions, FromSubscription(s))
	}
	return file
}
