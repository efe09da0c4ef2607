/*
projection_test.go - Renewal projection behavior

Groups:
  1. Worked examples (month-end, yearly, bimonthly, invalid input)
  2. Alignment from anchors before, inside and after the window
  3. Properties checked against a brute-force enumeration
*/
package billing_test

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/subtrack/billing"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func day(y int, m time.Month, d int) billing.Date {
	return billing.NewDate(y, m, d)
}

func window(start, end billing.Date) billing.Window {
	return billing.Window{Start: start, End: end}
}

func dates(t *testing.T, ss ...string) []billing.Date {
	t.Helper()
	out := make([]billing.Date, 0, len(ss))
	for _, s := range ss {
		d, err := billing.ParseDate(s)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

// =============================================================================
// WORKED EXAMPLES
// =============================================================================

func TestProject_MonthEndAnchor_Clamp(t *testing.T) {
	// GIVEN: Monthly renewal anchored on Jan 31
	// WHEN: Projecting Jan 1 - Apr 30 with the clamp policy
	// THEN: Short months land on their last day, long months return to the 31st

	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2025, time.January, 31), MonthEnd: billing.MonthEndClamp,
	}, window(day(2025, time.January, 1), day(2025, time.April, 30)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30"), got)
}

func TestProject_MonthEndAnchor_DefaultPolicyIsClamp(t *testing.T) {
	c := billing.Cadence{Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2025, time.January, 31)}

	got, err := billing.Project(c, window(day(2025, time.February, 1), day(2025, time.February, 28)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-02-28"), got)
}

func TestProject_MonthEndAnchor_Rollover(t *testing.T) {
	// GIVEN: Same Jan 31 anchor, rollover policy
	// THEN: Feb 31 normalizes to Mar 3; Apr 31 would be May 1, outside the window

	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2025, time.January, 31), MonthEnd: billing.MonthEndRollover,
	}, window(day(2025, time.January, 1), day(2025, time.April, 30)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-01-31", "2025-03-03", "2025-03-31"), got)
}

func TestProject_Yearly_WindowSpansAnchor(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitYear, Quantity: 1, Anchor: day(2025, time.September, 8),
	}, window(day(2024, time.January, 1), day(2026, time.December, 31)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2024-09-08", "2025-09-08", "2026-09-08"), got)
}

func TestProject_Bimonthly_WalksBackwardFromAnchor(t *testing.T) {
	// GIVEN: Every 2 months, next payment Dec 9 2025
	// WHEN: Projecting calendar year 2025
	// THEN: Every other month back from December

	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 2, Anchor: day(2025, time.December, 9),
	}, billing.YearWindow(2025))

	require.NoError(t, err)
	assert.Equal(t, dates(t,
		"2025-02-09", "2025-04-09", "2025-06-09", "2025-08-09", "2025-10-09", "2025-12-09",
	), got)
}

func TestProject_StartAfterEnd_InvalidWindow(t *testing.T) {
	_, err := billing.Project(billing.Cadence{
		Unit: billing.UnitDay, Quantity: 1, Anchor: day(2025, time.June, 15),
	}, window(day(2025, time.June, 20), day(2025, time.June, 10)))

	require.ErrorIs(t, err, billing.ErrInvalidWindow)
	var werr *billing.WindowError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, day(2025, time.June, 20), werr.Start)
}

func TestProject_ZeroQuantity_InvalidCadence(t *testing.T) {
	for _, unit := range billing.Units {
		t.Run(string(unit), func(t *testing.T) {
			_, err := billing.Project(billing.Cadence{
				Unit: unit, Quantity: 0, Anchor: day(2025, time.June, 15),
			}, billing.YearWindow(2025))

			assert.ErrorIs(t, err, billing.ErrInvalidCadence)
			assert.True(t, billing.IsClientError(err))
		})
	}
}

func TestProject_HugeQuantity_InvalidCadence(t *testing.T) {
	// GIVEN: Quantities whose single step overflows date arithmetic
	// WHEN: Projecting a short window
	// THEN: The cadence is rejected instead of wrapping around into the window

	w := window(day(2025, time.February, 1), day(2025, time.March, 1))
	for _, unit := range billing.Units {
		for _, qty := range []int{math.MaxInt, 1 << 62, unit.MaxQuantity() + 1} {
			t.Run(fmt.Sprintf("%s/%d", unit, qty), func(t *testing.T) {
				got, err := billing.Project(billing.Cadence{
					Unit: unit, Quantity: qty, Anchor: day(2025, time.January, 1),
				}, w)

				assert.Nil(t, got)
				var cerr *billing.CadenceError
				require.ErrorAs(t, err, &cerr)
				assert.ErrorIs(t, err, billing.ErrInvalidCadence)
				assert.True(t, billing.IsClientError(err))
			})
		}
	}
}

func TestProject_MaxQuantity_StaysInWindow(t *testing.T) {
	w := window(day(2025, time.February, 1), day(2025, time.March, 1))
	for _, unit := range billing.Units {
		t.Run(string(unit), func(t *testing.T) {
			before, err := billing.Project(billing.Cadence{
				Unit: unit, Quantity: unit.MaxQuantity(), Anchor: day(2025, time.January, 1),
			}, w)
			require.NoError(t, err)
			assert.Empty(t, before)

			inside, err := billing.Project(billing.Cadence{
				Unit: unit, Quantity: unit.MaxQuantity(), Anchor: day(2025, time.February, 10),
			}, w)
			require.NoError(t, err)
			assert.Equal(t, dates(t, "2025-02-10"), inside)
		})
	}
}

func TestProject_InvalidCadence(t *testing.T) {
	w := billing.YearWindow(2025)
	tests := []struct {
		name    string
		cadence billing.Cadence
	}{
		{"negative quantity", billing.Cadence{Unit: billing.UnitMonth, Quantity: -1}},
		{"unknown unit", billing.Cadence{Unit: "fortnightly", Quantity: 1}},
		{"empty unit", billing.Cadence{Quantity: 1}},
		{"unknown month-end policy", billing.Cadence{Unit: billing.UnitMonth, Quantity: 1, MonthEnd: "nearest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := billing.Project(tt.cadence, w)
			assert.Nil(t, got)
			var cerr *billing.CadenceError
			assert.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, billing.ErrInvalidCadence)
		})
	}
}

func TestProject_CadenceCheckedBeforeWindow(t *testing.T) {
	// Both inputs are bad; the cadence error wins.
	_, err := billing.Project(billing.Cadence{Unit: billing.UnitDay},
		window(day(2025, time.June, 20), day(2025, time.June, 10)))

	assert.ErrorIs(t, err, billing.ErrInvalidCadence)
}

// =============================================================================
// ALIGNMENT
// =============================================================================

func TestProject_Daily_AnchorAfterWindow(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitDay, Quantity: 3, Anchor: day(2025, time.June, 15),
	}, window(day(2025, time.June, 1), day(2025, time.June, 10)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-06-03", "2025-06-06", "2025-06-09"), got)
}

func TestProject_Biweekly_AnchorBeforeWindow(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitWeek, Quantity: 2, Anchor: day(2025, time.January, 1),
	}, window(day(2025, time.January, 20), day(2025, time.February, 28)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-01-29", "2025-02-12", "2025-02-26"), got)
}

func TestProject_Monthly_AnchorYearsAfterWindow(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2030, time.January, 15),
	}, window(day(2025, time.March, 1), day(2025, time.May, 31)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-03-15", "2025-04-15", "2025-05-15"), got)
}

func TestProject_Monthly_AnchorYearsBeforeWindow_KeepsDayOfMonth(t *testing.T) {
	// A clamped February in 2020 must not pull later months off the 31st.
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2020, time.January, 31),
	}, window(day(2025, time.February, 1), day(2025, time.March, 31)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "2025-02-28", "2025-03-31"), got)
}

func TestProject_LeapDayAnchor(t *testing.T) {
	c := billing.Cadence{Unit: billing.UnitYear, Quantity: 1, Anchor: day(2024, time.February, 29)}
	w := window(day(2024, time.January, 1), day(2028, time.December, 31))

	clamped, err := billing.Project(c, w)
	require.NoError(t, err)
	assert.Equal(t, dates(t, "2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"), clamped)

	c.MonthEnd = billing.MonthEndRollover
	rolled, err := billing.Project(c, w)
	require.NoError(t, err)
	assert.Equal(t, dates(t, "2024-02-29", "2025-03-01", "2026-03-01", "2027-03-01", "2028-02-29"), rolled)
}

func TestProject_AnchorOnWindowBounds_Included(t *testing.T) {
	anchor := day(2025, time.March, 10)
	c := billing.Cadence{Unit: billing.UnitMonth, Quantity: 1, Anchor: anchor}

	atStart, err := billing.Project(c, window(anchor, day(2025, time.March, 31)))
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{anchor}, atStart)

	atEnd, err := billing.Project(c, window(day(2025, time.March, 1), anchor))
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{anchor}, atEnd)

	single, err := billing.Project(c, window(anchor, anchor))
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{anchor}, single)
}

func TestProject_NoOccurrenceInWindow_EmptyNotError(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitYear, Quantity: 1, Anchor: day(2025, time.September, 8),
	}, window(day(2025, time.January, 1), day(2025, time.June, 30)))

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestProject_FarAwayAnchor_Terminates(t *testing.T) {
	got, err := billing.Project(billing.Cadence{
		Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2500, time.July, 4),
	}, window(day(1990, time.July, 1), day(1990, time.July, 31)))

	require.NoError(t, err)
	assert.Equal(t, dates(t, "1990-07-04"), got)
}

func TestNextOnOrAfter(t *testing.T) {
	c := billing.Cadence{Unit: billing.UnitMonth, Quantity: 1, Anchor: day(2025, time.January, 15)}

	next, err := billing.NextOnOrAfter(c, day(2025, time.April, 10))
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.April, 15), next)

	same, err := billing.NextOnOrAfter(c, day(2025, time.April, 15))
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.April, 15), same)

	_, err = billing.NextOnOrAfter(billing.Cadence{Unit: billing.UnitMonth}, day(2025, time.April, 10))
	assert.ErrorIs(t, err, billing.ErrInvalidCadence)
}

// =============================================================================
// PROPERTIES
// =============================================================================

// bruteForce enumerates At(k) over a wide k range and keeps what falls inside w.
func bruteForce(c billing.Cadence, w billing.Window, span int) []billing.Date {
	out := []billing.Date{}
	for k := -span; k <= span; k++ {
		if d := c.At(k); w.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

func TestProject_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := day(2018, time.January, 1)
	policies := []billing.MonthEndPolicy{billing.MonthEndClamp, billing.MonthEndRollover}

	for i := 0; i < 300; i++ {
		c := billing.Cadence{
			Unit:     billing.Units[rng.Intn(len(billing.Units))],
			Quantity: 1 + rng.Intn(6),
			Anchor:   base.AddDays(rng.Intn(12 * 365)),
			MonthEnd: policies[rng.Intn(len(policies))],
		}
		start := base.AddDays(rng.Intn(12 * 365))
		w := window(start, start.AddDays(rng.Intn(3*365)))

		got, err := billing.Project(c, w)
		require.NoError(t, err)

		// Bounded, strictly increasing, anchored
		for j, d := range got {
			assert.True(t, w.Contains(d), "%v outside %v", d, w)
			if j > 0 {
				assert.True(t, d.After(got[j-1]), "not strictly increasing at %d: %v", j, got)
			}
		}
		assert.Equal(t, bruteForce(c, w, 6000), got, "cadence %+v window %v", c, w)

		// Idempotent
		again, err := billing.Project(c, w)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}
