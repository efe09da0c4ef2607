package billing

import (
	"fmt"
	"strings"
)

// =============================================================================
// CADENCE - How often a subscription renews
// =============================================================================

// Unit is the calendar unit one billing step is counted in.
type Unit string

const (
	UnitDay   Unit = "daily"
	UnitWeek  Unit = "weekly"
	UnitMonth Unit = "monthly"
	UnitYear  Unit = "yearly"
)

// Units lists the recognized units in picker order.
var Units = []Unit{UnitDay, UnitWeek, UnitMonth, UnitYear}

// ParseUnit accepts both the adverb ("monthly") and noun ("month") spellings.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "days":
		return UnitDay, nil
	case "weekly", "week", "weeks":
		return UnitWeek, nil
	case "monthly", "month", "months":
		return UnitMonth, nil
	case "yearly", "year", "years", "annual", "annually":
		return UnitYear, nil
	}
	return "", &CadenceError{Unit: Unit(s), Reason: "unrecognized unit"}
}

func (u Unit) valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// maxStepYears caps the length of a single billing step.
const maxStepYears = 10000

// MaxQuantity is the largest quantity accepted for u, one step of at most
// ten thousand years. Larger steps overflow the day and month arithmetic.
func (u Unit) MaxQuantity() int {
	switch u {
	case UnitDay:
		return 366 * maxStepYears
	case UnitWeek:
		return 53 * maxStepYears
	case UnitMonth:
		return 12 * maxStepYears
	case UnitYear:
		return maxStepYears
	}
	return 0
}

// MonthEndPolicy decides where a month or year step lands when the anchor's
// day does not exist in the target month (Jan 31 -> February).
type MonthEndPolicy string

const (
	// MonthEndClamp lands on the last day of the shorter month: Jan 31 -> Feb 28 -> Mar 31.
	MonthEndClamp MonthEndPolicy = "clamp"

	// MonthEndRollover carries the excess days into the next month: Jan 31 -> Mar 3 -> Mar 31.
	// Each step is still counted from the anchor, so the excess never accumulates.
	MonthEndRollover MonthEndPolicy = "rollover"
)

// ParseMonthEndPolicy maps a config value to a policy. Empty means clamp.
func ParseMonthEndPolicy(s string) (MonthEndPolicy, error) {
	switch MonthEndPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MonthEndClamp:
		return MonthEndClamp, nil
	case MonthEndRollover:
		return MonthEndRollover, nil
	}
	return "", fmt.Errorf("unknown month-end policy %q (use %q or %q)", s, MonthEndClamp, MonthEndRollover)
}

// Cadence is a recurrence anchored at a known renewal date. Every occurrence is
// Anchor + k*Quantity*Unit for some integer k, positive, negative or zero.
type Cadence struct {
	Unit     Unit
	Quantity int
	Anchor   Date
	MonthEnd MonthEndPolicy
}

// Validate checks the caller contract: a recognized unit and a positive,
// bounded quantity.
func (c Cadence) Validate() error {
	if c.Quantity <= 0 {
		return &CadenceError{Unit: c.Unit, Quantity: c.Quantity, Reason: "quantity must be a positive integer"}
	}
	if !c.Unit.valid() {
		return &CadenceError{Unit: c.Unit, Quantity: c.Quantity, Reason: "unrecognized unit"}
	}
	if c.Quantity > c.Unit.MaxQuantity() {
		return &CadenceError{Unit: c.Unit, Quantity: c.Quantity, Reason: fmt.Sprintf("quantity must be at most %d", c.Unit.MaxQuantity())}
	}
	switch c.MonthEnd {
	case "", MonthEndClamp, MonthEndRollover:
	default:
		return &CadenceError{Unit: c.Unit, Quantity: c.Quantity, Reason: fmt.Sprintf("unknown month-end policy %q", c.MonthEnd)}
	}
	return nil
}

// At returns the k-th occurrence counted from the anchor.
// Month and year steps are always taken from the anchor itself, so a clamped
// Feb 28 never drags later occurrences away from the 31st.
func (c Cadence) At(k int) Date {
	switch c.Unit {
	case UnitDay:
		return c.Anchor.AddDays(k * c.Quantity)
	case UnitWeek:
		return c.Anchor.AddDays(7 * k * c.Quantity)
	case UnitMonth:
		return c.shiftMonths(k * c.Quantity)
	case UnitYear:
		return c.shiftMonths(12 * k * c.Quantity)
	}
	return c.Anchor
}

func (c Cadence) shiftMonths(n int) Date {
	if c.MonthEnd == MonthEndRollover {
		return c.Anchor.AddMonths(n)
	}
	return c.Anchor.AddMonthsClamped(n)
}

// fixedStepDays is the step length for day and week units, 0 for calendar units.
func (c Cadence) fixedStepDays() int {
	switch c.Unit {
	case UnitDay:
		return c.Quantity
	case UnitWeek:
		return 7 * c.Quantity
	}
	return 0
}

// minStepDays is a lower bound on the distance between consecutive occurrences.
// Clamping can shorten a month step by up to 3 days (Jan 31 -> Feb 28) and a
// year step by one (Feb 29 -> Feb 28).
func (c Cadence) minStepDays() int {
	switch c.Unit {
	case UnitMonth:
		return 28*c.Quantity - 3
	case UnitYear:
		return 365*c.Quantity - 1
	}
	return c.fixedStepDays()
}

// String renders the cadence the way the billing cycle picker labels it.
func (c Cadence) String() string {
	if c.Quantity == 1 {
		return string(c.Unit)
	}
	noun := strings.TrimSuffix(string(c.Unit), "ly")
	if c.Unit == UnitDay {
		noun = "day"
	}
	return fmt.Sprintf("every %d %ss", c.Quantity, noun)
}
