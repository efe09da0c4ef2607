/*
summary.go - Spending summaries built on the projector

PURPOSE:
  Everything the overview and calendar screens show is derived here from a
  list of subscriptions: renewals per day of a month, the month's total and
  the part of it still to come, normalized monthly cost, reminders.

CONCURRENCY:
  Calendar projects each subscription independently and merges the results.
  Project is pure, so the per-subscription calls run in parallel with no
  coordination beyond the errgroup.

MONTH TOTALS:
  A subscription is charged once per occurrence. A weekly subscription with
  five renewals in a month contributes five times its price to that month.

SEE ALSO:
  - projection.go: Project
  - sort.go: list ordering
*/
package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Projector applies one month-end policy to every subscription it projects.
type Projector struct {
	MonthEnd MonthEndPolicy

	// Concurrency caps parallel projections in Calendar. Zero means unlimited.
	Concurrency int
}

// Renewals projects a single subscription over w.
func (p Projector) Renewals(sub Subscription, w Window) ([]Date, error) {
	return Project(sub.Cadence(p.MonthEnd), w)
}

// =============================================================================
// CALENDAR
// =============================================================================

// Renewal is one occurrence of one subscription.
type Renewal struct {
	Date         Date
	Subscription Subscription
}

// MonthCalendar is a month grid with the renewals falling on each day.
type MonthCalendar struct {
	Year     int
	Month    time.Month
	Days     map[int][]Renewal // day of month -> renewals, ordered by name
	Total    Totals
	Upcoming Totals // renewals on or after today
}

// Renewals lists the month's renewals in date order.
func (m MonthCalendar) Renewals() []Renewal {
	days := make([]int, 0, len(m.Days))
	for d := range m.Days {
		days = append(days, d)
	}
	sort.Ints(days)

	var out []Renewal
	for _, d := range days {
		out = append(out, m.Days[d]...)
	}
	return out
}

// Calendar projects the active subscriptions onto one month.
func (p Projector) Calendar(ctx context.Context, subs []Subscription, year int, month time.Month, today Date) (MonthCalendar, error) {
	cal := MonthCalendar{
		Year:     year,
		Month:    month,
		Days:     make(map[int][]Renewal),
		Total:    Totals{},
		Upcoming: Totals{},
	}
	w := MonthWindow(year, month)

	renewals, err := p.projectAll(ctx, activeOnly(subs), w)
	if err != nil {
		return cal, err
	}

	for _, r := range renewals {
		cal.Days[r.Date.Day()] = append(cal.Days[r.Date.Day()], r)
		cal.Total.Add(r.Subscription.Price)
		if r.Date.AfterOrEqual(today) {
			cal.Upcoming.Add(r.Subscription.Price)
		}
	}
	for day := range cal.Days {
		rs := cal.Days[day]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Subscription.Name < rs[j].Subscription.Name })
	}
	return cal, nil
}

// Upcoming lists renewals of active subscriptions in w, in date then name order.
func (p Projector) Upcoming(ctx context.Context, subs []Subscription, w Window) ([]Renewal, error) {
	renewals, err := p.projectAll(ctx, activeOnly(subs), w)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(renewals, func(i, j int) bool {
		if !renewals[i].Date.Equal(renewals[j].Date) {
			return renewals[i].Date.Before(renewals[j].Date)
		}
		return renewals[i].Subscription.Name < renewals[j].Subscription.Name
	})
	return renewals, nil
}

func (p Projector) projectAll(ctx context.Context, subs []Subscription, w Window) ([]Renewal, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []Renewal
	)
	g, ctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dates, err := p.Renewals(sub, w)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, d := range dates {
				out = append(out, Renewal{Date: d, Subscription: sub})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// NORMALIZED COST
// =============================================================================

var (
	twelve    = decimal.NewFromInt(12)
	daysYear  = decimal.NewFromInt(365)
	weeksYear = decimal.NewFromInt(52)
)

// MonthlyEquivalent is what the subscription costs per month on average.
func MonthlyEquivalent(sub Subscription) Money {
	q := decimal.NewFromInt(int64(max(sub.CycleQuantity, 1)))
	price := sub.Price
	switch sub.Cycle {
	case UnitDay:
		return price.Mul(daysYear).Div(twelve).Div(q)
	case UnitWeek:
		return price.Mul(weeksYear).Div(twelve).Div(q)
	case UnitYear:
		return price.Div(twelve).Div(q)
	}
	return price.Div(q)
}

// YearlyEquivalent is twelve times the monthly equivalent.
func YearlyEquivalent(sub Subscription) Money {
	return MonthlyEquivalent(sub).Mul(twelve)
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary holds the overview numbers.
type Summary struct {
	Active     int
	Cancelled  int
	Total      int
	Monthly    Totals
	Yearly     Totals
	ByCategory map[string]Totals // monthly equivalent per category
}

// Summarize counts subscriptions and totals the monthly cost of the active ones.
func Summarize(subs []Subscription) Summary {
	s := Summary{
		Total:      len(subs),
		Monthly:    Totals{},
		Yearly:     Totals{},
		ByCategory: make(map[string]Totals),
	}
	for _, sub := range subs {
		if !sub.Active {
			s.Cancelled++
			continue
		}
		s.Active++
		monthly := MonthlyEquivalent(sub)
		s.Monthly.Add(monthly)
		s.Yearly.Add(YearlyEquivalent(sub))

		cat := sub.Category
		if cat == "" {
			cat = "Other"
		}
		if s.ByCategory[cat] == nil {
			s.ByCategory[cat] = Totals{}
		}
		s.ByCategory[cat].Add(monthly)
	}
	return s
}

// =============================================================================
// REMINDERS
// =============================================================================

// Reminder is a computed "renewal coming up" date. Delivery is someone else's job.
type Reminder struct {
	RemindOn     Date
	RenewsOn     Date
	Subscription Subscription
}

// Reminders returns the reminders that fall inside w for active subscriptions
// with a notification set, ordered by reminder date.
func (p Projector) Reminders(ctx context.Context, subs []Subscription, w Window) ([]Reminder, error) {
	var withNotice []Subscription
	for _, s := range activeOnly(subs) {
		if s.Notification.Enabled() {
			withNotice = append(withNotice, s)
		}
	}

	// A renewal up to three months after the window can still have its reminder
	// inside it. Reminders clamp backward (May 31 -> Feb 28) while Feb 28 + 3
	// months clamps to May 28, hence the extra days.
	lookahead := Window{Start: w.Start, End: w.End.AddMonthsClamped(3).AddDays(3)}
	renewals, err := p.projectAll(ctx, withNotice, lookahead)
	if err != nil {
		return nil, err
	}

	var out []Reminder
	for _, r := range renewals {
		at, ok := r.Subscription.Notification.RemindAt(r.Date)
		if !ok || !w.Contains(at) {
			continue
		}
		out = append(out, Reminder{RemindOn: at, RenewsOn: r.Date, Subscription: r.Subscription})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RemindOn.Equal(out[j].RemindOn) {
			return out[i].RemindOn.Before(out[j].RemindOn)
		}
		return out[i].Subscription.Name < out[j].Subscription.Name
	})
	return out, nil
}

func activeOnly(subs []Subscription) []Subscription {
	out := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}
