/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Subscriptions use the
  factory wire format (camelCase, the mobile app's field names) so that an
  export file and a GET response look the same.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are JSON numbers rounded to two places, always next to their
  currency. Totals are lists with one entry per currency.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/subscription.go: SubscriptionJSON
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/factory"
)

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MoneyDTO is an amount in one currency.
type MoneyDTO struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

func toMoneyDTO(m billing.Money) MoneyDTO {
	return MoneyDTO{Amount: json.Number(m.Amount.StringFixed(2)), Currency: m.Currency}
}

func toTotalsDTO(t billing.Totals) []MoneyDTO {
	out := make([]MoneyDTO, 0, len(t))
	for _, m := range t.Money() {
		out = append(out, toMoneyDTO(m))
	}
	return out
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// UpdateSubscriptionRequest is a partial update; absent fields are left alone.
type UpdateSubscriptionRequest struct {
	Name                 *string      `json:"name"`
	Logo                 *string      `json:"logo"`
	Price                *json.Number `json:"price"`
	Currency             *string      `json:"currency"`
	BillingCycle         *string      `json:"billingCycle"`
	BillingCycleQuantity *int         `json:"billingCycleQuantity"`
	NextPaymentDate      *string      `json:"nextPaymentDate"`
	Category             *string      `json:"category"`
	SubscribedDate       *string      `json:"subscribedDate"`
	IsActive             *bool        `json:"isActive"`
	Notification         *string      `json:"notification"`
	PaymentMethod        *string      `json:"paymentMethod"`
	FreeTrial            *bool        `json:"freeTrial"`
	List                 *string      `json:"list"`
	URL                  *string      `json:"url"`
}

// Patch converts the request. Malformed values come back as ValidationErrors.
func (r UpdateSubscriptionRequest) Patch() (billing.SubscriptionPatch, error) {
	p := billing.SubscriptionPatch{
		Name:          r.Name,
		Logo:          r.Logo,
		Currency:      r.Currency,
		CycleQuantity: r.BillingCycleQuantity,
		Category:      r.Category,
		Active:        r.IsActive,
		PaymentMethod: r.PaymentMethod,
		FreeTrial:     r.FreeTrial,
		URL:           r.URL,
	}
	if r.Price != nil {
		d, err := decimal.NewFromString(r.Price.String())
		if err != nil {
			return p, &billing.ValidationError{Field: "price", Message: "must be a number"}
		}
		p.Price = &d
	}
	if r.BillingCycle != nil {
		u, err := billing.ParseUnit(*r.BillingCycle)
		if err != nil {
			return p, &billing.ValidationError{Field: "billingCycle", Message: "must be one of daily, weekly, monthly, yearly"}
		}
		p.Cycle = &u
	}
	if r.NextPaymentDate != nil {
		d, err := billing.ParseDate(*r.NextPaymentDate)
		if err != nil {
			return p, &billing.ValidationError{Field: "nextPaymentDate", Message: "must be a date (YYYY-MM-DD)"}
		}
		p.NextPaymentDate = &d
	}
	if r.SubscribedDate != nil {
		d, err := billing.ParseDate(*r.SubscribedDate)
		if err != nil {
			return p, &billing.ValidationError{Field: "subscribedDate", Message: "must be a date (YYYY-MM-DD)"}
		}
		p.SubscribedDate = &d
	}
	if r.Notification != nil {
		n := billing.Notification(*r.Notification)
		p.Notification = &n
	}
	if r.List != nil {
		l := billing.List(*r.List)
		p.List = &l
	}
	return p, nil
}

// CategoryGroupDTO is one section of a grouped list (sort=group).
type CategoryGroupDTO struct {
	Category      string                     `json:"category"`
	Subscriptions []factory.SubscriptionJSON `json:"subscriptions"`
}

func toSubscriptionDTOs(subs []billing.Subscription) []factory.SubscriptionJSON {
	out := make([]factory.SubscriptionJSON, 0, len(subs))
	for _, s := range subs {
		out = append(out, factory.FromSubscription(s))
	}
	return out
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// RenewalsResponse lists one subscription's renewal dates inside a window.
type RenewalsResponse struct {
	SubscriptionID string   `json:"subscriptionId"`
	Cadence        string   `json:"cadence"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Dates          []string `json:"dates"`
	Total          MoneyDTO `json:"total"`
}

// RenewalDTO is one renewal occurrence.
type RenewalDTO struct {
	Date           string   `json:"date"`
	SubscriptionID string   `json:"subscriptionId"`
	Name           string   `json:"name"`
	Logo           string   `json:"logo,omitempty"`
	Category       string   `json:"category,omitempty"`
	Price          MoneyDTO `json:"price"`
}

func toRenewalDTO(r billing.Renewal) RenewalDTO {
	return RenewalDTO{
		Date:           r.Date.String(),
		SubscriptionID: string(r.Subscription.ID),
		Name:           r.Subscription.Name,
		Logo:           r.Subscription.Logo,
		Category:       r.Subscription.Category,
		Price:          toMoneyDTO(r.Subscription.Price),
	}
}

// CalendarDayDTO is one day that has at least one renewal.
type CalendarDayDTO struct {
	Day      int          `json:"day"`
	Date     string       `json:"date"`
	Renewals []RenewalDTO `json:"renewals"`
}

// CalendarResponse is the month view.
type CalendarResponse struct {
	Year     int              `json:"year"`
	Month    int              `json:"month"`
	Days     []CalendarDayDTO `json:"days"`
	Total    []MoneyDTO       `json:"total"`
	Upcoming []MoneyDTO       `json:"upcoming"`
}

func toCalendarResponse(cal billing.MonthCalendar) CalendarResponse {
	resp := CalendarResponse{
		Year:     cal.Year,
		Month:    int(cal.Month),
		Days:     []CalendarDayDTO{},
		Total:    toTotalsDTO(cal.Total),
		Upcoming: toTotalsDTO(cal.Upcoming),
	}
	var current *CalendarDayDTO
	for _, r := range cal.Renewals() {
		if current == nil || current.Day != r.Date.Day() {
			resp.Days = append(resp.Days, CalendarDayDTO{Day: r.Date.Day(), Date: r.Date.String()})
			current = &resp.Days[len(resp.Days)-1]
		}
		current.Renewals = append(current.Renewals, toRenewalDTO(r))
	}
	return resp
}

// SummaryResponse holds the overview numbers.
type SummaryResponse struct {
	Active     int                   `json:"active"`
	Cancelled  int                   `json:"cancelled"`
	Total      int                   `json:"total"`
	Monthly    []MoneyDTO            `json:"monthly"`
	Yearly     []MoneyDTO            `json:"yearly"`
	ByCategory map[string][]MoneyDTO `json:"byCategory"`
}

func toSummaryResponse(s billing.Summary) SummaryResponse {
	resp := SummaryResponse{
		Active:     s.Active,
		Cancelled:  s.Cancelled,
		Total:      s.Total,
		Monthly:    toTotalsDTO(s.Monthly),
		Yearly:     toTotalsDTO(s.Yearly),
		ByCategory: make(map[string][]MoneyDTO, len(s.ByCategory)),
	}
	for cat, t := range s.ByCategory {
		resp.ByCategory[cat] = toTotalsDTO(t)
	}
	return resp
}

// ReminderDTO is one upcoming reminder.
type ReminderDTO struct {
	RemindOn       string   `json:"remindOn"`
	RenewsOn       string   `json:"renewsOn"`
	SubscriptionID string   `json:"subscriptionId"`
	Name           string   `json:"name"`
	Notification   string   `json:"notification"`
	Price          MoneyDTO `json:"price"`
}

func toReminderDTO(r billing.Reminder) ReminderDTO {
	return ReminderDTO{
		RemindOn:       r.RemindOn.String(),
		RenewsOn:       r.RenewsOn.String(),
		SubscriptionID: string(r.Subscription.ID),
		Name:           r.Subscription.Name,
		Notification:   string(r.Subscription.Notification),
		Price:          toMoneyDTO(r.Subscription.Price),
	}
}

// =============================================================================
// DATA MANAGEMENT
// =============================================================================

// ImportResponse reports how many subscriptions an import or seed wrote.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// RenewalRunDTO is one renewal advancer run.
type RenewalRunDTO struct {
	ID          string  `json:"id"`
	AsOf        string  `json:"asOf"`
	Status      string  `json:"status"`
	Checked     int     `json:"checked"`
	Advanced    int     `json:"advanced"`
	Charges     int     `json:"charges"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"startedAt"`
	CompletedAt *string `json:"completedAt,omitempty"`
}

func toRenewalRunDTO(r billing.RenewalRun) RenewalRunDTO {
	dto := RenewalRunDTO{
		ID:        r.ID,
		AsOf:      r.AsOf.String(),
		Status:    string(r.Status),
		Checked:   r.Checked,
		Advanced:  r.Advanced,
		Charges:   r.Charges,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}
