package billing

import "github.com/shopspring/decimal"

// =============================================================================
// RENEWAL ADVANCEMENT - Move passed renewals forward
// =============================================================================

// AdvanceResult describes what Advance changed.
type AdvanceResult struct {
	Subscription Subscription
	Charges      []BillingRecord
	Advanced     bool
}

// Advance rolls an active subscription whose next payment date is before today
// forward to the first occurrence on or after today. Every passed occurrence
// becomes a BillingRecord at the current price; the first charge of a free
// trial is recorded as zero and ends the trial.
//
// maxCharges caps how many records a single call writes for very stale
// records, keeping the latest; the date still lands on today's side of the
// cadence. A free trial whose first charge falls among the dropped records
// ends without a zero record.
func Advance(sub Subscription, today Date, policy MonthEndPolicy, maxCharges int) (AdvanceResult, error) {
	result := AdvanceResult{Subscription: sub}
	if !sub.Active || !sub.NextPaymentDate.Before(today) {
		return result, nil
	}

	c := sub.Cadence(policy)
	next, err := NextOnOrAfter(c, today)
	if err != nil {
		return result, err
	}

	passed, err := Project(c, Window{Start: sub.NextPaymentDate, End: today.AddDays(-1)})
	if err != nil {
		return result, err
	}

	out := sub.Clone()
	if maxCharges > 0 && len(passed) > maxCharges {
		passed = passed[len(passed)-maxCharges:]
		// The occurrence the trial covered is not among the kept records.
		out.FreeTrial = false
	}

	for _, d := range passed {
		amount := out.Price.Amount
		if out.FreeTrial {
			amount = decimal.Zero
			out.FreeTrial = false
		}
		rec := BillingRecord{Date: d, Amount: amount}
		out.BillingHistory = append(out.BillingHistory, rec)
		result.Charges = append(result.Charges, rec)
	}
	out.NextPaymentDate = next

	result.Subscription = out
	result.Advanced = true
	return result, nil
}
