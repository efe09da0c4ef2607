package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/subtrack/billing"
)

// =============================================================================
// DATE
// =============================================================================

func TestDate_AddMonths(t *testing.T) {
	jan31 := day(2025, time.January, 31)

	assert.Equal(t, day(2025, time.February, 28), jan31.AddMonthsClamped(1))
	assert.Equal(t, day(2024, time.February, 29), day(2024, time.January, 31).AddMonthsClamped(1))
	assert.Equal(t, day(2024, time.November, 30), jan31.AddMonthsClamped(-2))
	assert.Equal(t, day(2025, time.March, 3), jan31.AddMonths(1))
}

func TestDate_DaysBetween(t *testing.T) {
	assert.Equal(t, 365, billing.DaysBetween(day(2025, time.January, 1), day(2026, time.January, 1)))
	assert.Equal(t, -366, billing.DaysBetween(day(2025, time.January, 1), day(2024, time.January, 1)))
	assert.Equal(t, 0, billing.DaysBetween(day(2025, time.January, 1), day(2025, time.January, 1)))
}

func TestParseDate(t *testing.T) {
	d, err := billing.ParseDate("2025-09-08")
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 8), d)

	// Stored records carry full ISO timestamps
	d, err = billing.ParseDate("2025-09-08T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 8), d)

	_, err = billing.ParseDate("08/09/2025")
	assert.Error(t, err)
}

func TestDate_JSONEmptyIsZero(t *testing.T) {
	var v struct {
		D billing.Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":""}`), &v))
	assert.True(t, v.D.IsZero())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":""}`, string(out))
}

// =============================================================================
// CADENCE
// =============================================================================

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]billing.Unit{
		"monthly": billing.UnitMonth,
		"Month":   billing.UnitMonth,
		" days ":  billing.UnitDay,
		"annual":  billing.UnitYear,
		"weekly":  billing.UnitWeek,
	} {
		got, err := billing.ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := billing.ParseUnit("fortnightly")
	assert.ErrorIs(t, err, billing.ErrInvalidCadence)
}

func TestCadence_String(t *testing.T) {
	assert.Equal(t, "monthly", billing.Cadence{Unit: billing.UnitMonth, Quantity: 1}.String())
	assert.Equal(t, "every 2 months", billing.Cadence{Unit: billing.UnitMonth, Quantity: 2}.String())
	assert.Equal(t, "every 3 days", billing.Cadence{Unit: billing.UnitDay, Quantity: 3}.String())
}

func TestParseMonthEndPolicy(t *testing.T) {
	p, err := billing.ParseMonthEndPolicy("")
	require.NoError(t, err)
	assert.Equal(t, billing.MonthEndClamp, p)

	p, err = billing.ParseMonthEndPolicy("Rollover")
	require.NoError(t, err)
	assert.Equal(t, billing.MonthEndRollover, p)

	_, err = billing.ParseMonthEndPolicy("nearest")
	assert.Error(t, err)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSubscription_Validate(t *testing.T) {
	valid := sub("Netflix", "199", billing.UnitMonth, 1, day(2025, time.March, 5))
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		field string
		edit  func(*billing.Subscription)
	}{
		{"blank name", "name", func(s *billing.Subscription) { s.Name = "  " }},
		{"negative price", "price", func(s *billing.Subscription) { s.Price.Amount = decimal.NewFromInt(-1) }},
		{"no currency", "currency", func(s *billing.Subscription) { s.Price.Currency = "" }},
		{"unknown cycle", "billing_cycle", func(s *billing.Subscription) { s.Cycle = "hourly" }},
		{"zero quantity", "billing_cycle_quantity", func(s *billing.Subscription) { s.CycleQuantity = 0 }},
		{"huge quantity", "billing_cycle_quantity", func(s *billing.Subscription) { s.CycleQuantity = 1 << 62 }},
		{"no next date", "next_payment_date", func(s *billing.Subscription) { s.NextPaymentDate = billing.Date{} }},
		{"bad notification", "notification", func(s *billing.Subscription) { s.Notification = "2 days before" }},
		{"bad list", "list", func(s *billing.Subscription) { s.List = "Family" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid.Clone()
			tt.edit(&s)

			err := s.Validate()
			require.ErrorIs(t, err, billing.ErrInvalidSubscription)
			var verr *billing.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, billing.IsClientError(err))
		})
	}
}

// =============================================================================
// PATCH
// =============================================================================

func TestPatch_PriceChangeRecordsHistory(t *testing.T) {
	s := sub("Netflix", "199", billing.UnitMonth, 1, day(2025, time.March, 5))
	price := decimal.NewFromInt(249)
	name := "Netflix Premium"
	on := day(2025, time.March, 10)

	out := billing.SubscriptionPatch{Price: &price, Name: &name}.Apply(s, on)

	assert.Equal(t, "Netflix Premium", out.Name)
	assert.True(t, out.Price.Amount.Equal(price))
	require.Len(t, out.PriceHistory, 1)
	assert.Equal(t, on, out.PriceHistory[0].Date)
	assert.Empty(t, s.PriceHistory, "original must not be modified")
}

func TestPatch_SamePriceNoHistory(t *testing.T) {
	s := sub("Netflix", "199", billing.UnitMonth, 1, day(2025, time.March, 5))
	same := decimal.RequireFromString("199.00")

	out := billing.SubscriptionPatch{Price: &same}.Apply(s, day(2025, time.March, 10))

	assert.Empty(t, out.PriceHistory)
}

func TestPatch_EmptyLeavesEverything(t *testing.T) {
	s := sub("Netflix", "199", billing.UnitMonth, 1, day(2025, time.March, 5))
	s.Category = "Entertainment"

	out := billing.SubscriptionPatch{}.Apply(s, day(2025, time.March, 10))

	assert.Equal(t, s, out)
}

// =============================================================================
// ADVANCE
// =============================================================================

func TestAdvance_RecordsPassedCharges(t *testing.T) {
	// GIVEN: Monthly on the 15th, last advanced in January
	s := sub("Netflix", "199", billing.UnitMonth, 1, day(2025, time.January, 15))

	// WHEN: Advancing on Apr 10
	res, err := billing.Advance(s, day(2025, time.April, 10), billing.MonthEndClamp, 0)
	require.NoError(t, err)

	// THEN: Jan, Feb and Mar charged; next payment Apr 15
	assert.True(t, res.Advanced)
	assert.Equal(t, day(2025, time.April, 15), res.Subscription.NextPaymentDate)
	require.Len(t, res.Charges, 3)
	assert.Equal(t, day(2025, time.January, 15), res.Charges[0].Date)
	assert.Equal(t, day(2025, time.March, 15), res.Charges[2].Date)
	assert.Len(t, res.Subscription.BillingHistory, 3)
	assert.Empty(t, s.BillingHistory)
}

func TestAdvance_FreeTrialFirstChargeIsZero(t *testing.T) {
	s := sub("Trial", "99", billing.UnitWeek, 1, day(2025, time.April, 1))
	s.FreeTrial = true

	res, err := billing.Advance(s, day(2025, time.April, 10), billing.MonthEndClamp, 0)
	require.NoError(t, err)

	require.Len(t, res.Charges, 2)
	assert.True(t, res.Charges[0].Amount.IsZero())
	assert.Equal(t, "99", res.Charges[1].Amount.String())
	assert.False(t, res.Subscription.FreeTrial)
	assert.Equal(t, day(2025, time.April, 15), res.Subscription.NextPaymentDate)
}

func TestAdvance_NothingToDo(t *testing.T) {
	today := day(2025, time.April, 10)

	due := sub("Due", "1", billing.UnitMonth, 1, today)
	res, err := billing.Advance(due, today, billing.MonthEndClamp, 0)
	require.NoError(t, err)
	assert.False(t, res.Advanced)

	cancelled := sub("Cancelled", "1", billing.UnitMonth, 1, day(2024, time.January, 1))
	cancelled.Active = false
	res, err = billing.Advance(cancelled, today, billing.MonthEndClamp, 0)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Equal(t, cancelled.NextPaymentDate, res.Subscription.NextPaymentDate)
}

func TestAdvance_MaxChargesDropsTrialCharge(t *testing.T) {
	// GIVEN: A weekly free trial from Apr 1, five renewals behind
	s := sub("Trial", "99", billing.UnitWeek, 1, day(2025, time.April, 1))
	s.FreeTrial = true

	// WHEN: Advancing on Apr 30 keeping only two records
	res, err := billing.Advance(s, day(2025, time.April, 30), billing.MonthEndClamp, 2)
	require.NoError(t, err)

	// THEN: The kept Apr 22 and Apr 29 charges are paid; the trial is over
	require.Len(t, res.Charges, 2)
	assert.Equal(t, day(2025, time.April, 22), res.Charges[0].Date)
	for _, c := range res.Charges {
		assert.Equal(t, "99", c.Amount.String(), c.Date.String())
	}
	assert.False(t, res.Subscription.FreeTrial)
	assert.Equal(t, day(2025, time.May, 6), res.Subscription.NextPaymentDate)
}

func TestAdvance_MaxChargesKeepsLatest(t *testing.T) {
	s := sub("Daily", "1", billing.UnitDay, 1, day(2025, time.January, 1))

	res, err := billing.Advance(s, day(2025, time.January, 31), billing.MonthEndClamp, 5)
	require.NoError(t, err)

	require.Len(t, res.Charges, 5)
	assert.Equal(t, day(2025, time.January, 26), res.Charges[0].Date)
	assert.Equal(t, day(2025, time.January, 30), res.Charges[4].Date)
	assert.Equal(t, day(2025, time.January, 31), res.Subscription.NextPaymentDate)
}

// =============================================================================
// SORT
// =============================================================================

func TestSort(t *testing.T) {
	subs := func() []billing.Subscription {
		return []billing.Subscription{
			sub("netflix", "199", billing.UnitMonth, 1, day(2025, time.March, 20)),
			sub("Apple", "99", billing.UnitMonth, 1, day(2025, time.March, 5)),
			sub("Zoom", "199", billing.UnitMonth, 1, day(2025, time.March, 5)),
		}
	}
	names := func(ss []billing.Subscription) []string {
		out := make([]string, len(ss))
		for i, s := range ss {
			out[i] = s.Name
		}
		return out
	}

	tests := []struct {
		by   billing.SortOption
		want []string
	}{
		{billing.SortNext, []string{"Apple", "Zoom", "netflix"}},
		{billing.SortName, []string{"Apple", "netflix", "Zoom"}},
		{billing.SortPriceLow, []string{"Apple", "Zoom", "netflix"}},
		{billing.SortPriceHigh, []string{"Zoom", "netflix", "Apple"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			ss := subs()
			billing.Sort(ss, tt.by)
			assert.Equal(t, tt.want, names(ss))
		})
	}
}

func TestParseSortOption(t *testing.T) {
	got, err := billing.ParseSortOption("")
	require.NoError(t, err)
	assert.Equal(t, billing.SortNext, got)

	_, err = billing.ParseSortOption("random")
	assert.Error(t, err)
}

func TestGroupByCategory(t *testing.T) {
	a := sub("A", "1", billing.UnitMonth, 1, day(2025, time.March, 1))
	a.Category = "Social"
	b := sub("B", "1", billing.UnitMonth, 1, day(2025, time.March, 2))
	c := sub("C", "1", billing.UnitMonth, 1, day(2025, time.March, 3))
	c.Category = "Entertainment"
	d := sub("D", "1", billing.UnitMonth, 1, day(2025, time.March, 4))
	d.Category = "Social"

	groups := billing.GroupByCategory([]billing.Subscription{a, b, c, d})

	require.Len(t, groups, 3)
	assert.Equal(t, "Entertainment", groups[0].Category)
	assert.Equal(t, "Other", groups[1].Category)
	assert.Equal(t, "Social", groups[2].Category)
	require.Len(t, groups[2].Subscriptions, 2)
	assert.Equal(t, "A", groups[2].Subscriptions[0].Name)
}
