/*
projection.go - Renewal date projection

PURPOSE:
  Given a subscription's cadence and an inclusive window, produce every date
  inside the window on which the subscription renews. The calendar view asks
  for multi-year windows; the month totals ask for a single month.

KEY INSIGHT:
  The anchor ("next payment date") may lie before, inside or after the window.
  Occurrences are an arithmetic progression in k around the anchor, so the
  job is to find the first k whose date is >= window start, then walk k forward
  until the date passes window end.

ALIGNMENT:
  Day and week steps have a fixed length in days, so the first k is computed
  directly with a ceiling division.

  Month and year steps do not (28..31 days, 365..366 days). For those the
  search moves k one step at a time, backward from the anchor when the anchor
  is after the window start, forward otherwise, testing each candidate against
  the bound. No closed-form jump is attempted.

TERMINATION:
  Every loop is capped by (distance in days / minimum step in days) + 2, so
  even a far-away anchor or an enormous window finishes in bounded time. An
  empty result is a valid answer, never an error.

EXAMPLE:
  dates, err := billing.Project(billing.Cadence{
      Unit:     billing.UnitMonth,
      Quantity: 2,
      Anchor:   billing.NewDate(2025, time.December, 9),
  }, billing.YearWindow(2025))
  // 2025-02-09, 2025-04-09, ... 2025-12-09

SEE ALSO:
  - cadence.go: Cadence.At and the month-end policy
  - summary.go: Calendar and month totals built on Project
  - renewal.go: NextOnOrAfter for advancing passed renewals
*/
package billing

// Project returns the occurrences of c inside w in strictly increasing order.
// It fails with ErrInvalidCadence or ErrInvalidWindow and never otherwise.
func Project(c Cadence, w Window) ([]Date, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	dates := []Date{}
	k, ok := c.firstOnOrAfter(w.Start)
	if !ok {
		return dates, nil
	}

	limit := w.Days()/c.minStepDays() + 2
	for i := 0; i < limit; i++ {
		d := c.At(k + i)
		if d.After(w.End) {
			break
		}
		// Strictly increasing and inside the window by construction; the
		// check keeps both true should a calendar edge ever break them.
		if w.Contains(d) && (len(dates) == 0 || d.After(dates[len(dates)-1])) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// NextOnOrAfter returns the first occurrence of c on or after d.
func NextOnOrAfter(c Cadence, d Date) (Date, error) {
	if err := c.Validate(); err != nil {
		return Date{}, err
	}
	k, ok := c.firstOnOrAfter(d)
	if !ok {
		return Date{}, &CadenceError{Unit: c.Unit, Quantity: c.Quantity, Reason: "no occurrence reachable from anchor"}
	}
	return c.At(k), nil
}

// firstOnOrAfter finds the smallest k with At(k) >= start.
func (c Cadence) firstOnOrAfter(start Date) (int, bool) {
	distance := DaysBetween(c.Anchor, start)

	if step := c.fixedStepDays(); step > 0 {
		return ceilDiv(distance, step), true
	}

	budget := abs(distance)/c.minStepDays() + 2
	k := 0
	if c.At(0).AfterOrEqual(start) {
		// Anchor is at or after start: walk backward while the previous
		// occurrence still lands inside.
		for ; budget > 0 && c.At(k-1).AfterOrEqual(start); budget-- {
			k--
		}
		return k, true
	}

	// Anchor is before start: walk forward until we reach it.
	for ; c.At(k).Before(start); budget-- {
		if budget == 0 {
			return 0, false
		}
		k++
	}
	return k, true
}

func ceilDiv(a, b int) int {
	if a >= 0 {
		return (a + b - 1) / b
	}
	return -(-a / b)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
