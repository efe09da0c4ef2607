package billing

import "time"

// =============================================================================
// WINDOW - Inclusive date range a projection is asked for
// =============================================================================

// Window is the inclusive range [Start, End] over which renewals are requested.
//
// Examples:
//   - A calendar month: Mar 1 - Mar 31
//   - A multi-year calendar view: Jan 1 2024 - Dec 31 2026
//   - The next 30 days: today - today+30
type Window struct {
	Start Date
	End   Date
}

// Validate rejects windows whose start is after their end.
func (w Window) Validate() error {
	if w.Start.After(w.End) {
		return &WindowError{Start: w.Start, End: w.End}
	}
	return nil
}

// Contains returns true if the date is within [Start, End].
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// Days returns the number of calendar days covered, counting both ends.
func (w Window) Days() int {
	return DaysBetween(w.Start, w.End) + 1
}

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// MonthWindow covers one calendar month.
func MonthWindow(year int, month time.Month) Window {
	return Window{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// YearWindow covers one calendar year.
func YearWindow(year int) Window {
	return Window{Start: NewDate(year, time.January, 1), End: NewDate(year, time.December, 31)}
}

// NextDays covers from through from+n days.
func NextDays(from Date, n int) Window {
	return Window{Start: from, End: from.AddDays(n)}
}
