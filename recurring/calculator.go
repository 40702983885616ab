package recurring

import "time"

// =============================================================================
// RECURRENCE CALCULATOR - Pure next-due date arithmetic
// =============================================================================

// NextDue computes the next due date for a template given its anchor start
// date, its frequency, and a reference date. Pure, no I/O.
//
// Monthly cadence is a fixed 30-day interval counted from the anchor, NOT
// "same day each calendar month". Over a year this drifts relative to the
// calendar (Jan 1 -> Jan 31 -> Mar 2 in a leap year). That cadence is what
// existing ledger data was generated with, so it must not be "fixed" to
// calendar-month semantics.
//
// The result is always strictly after the reference date, which guards
// against same-day repeats and clock skew.
func NextDue(anchor Date, freq Frequency, reference Date) Date {
	switch freq {
	case FreqDaily:
		return reference.AddDays(1)
	case FreqWeekly:
		return reference.AddDays(7)
	case FreqYearly:
		return nextYearly(anchor, reference)
	default:
		return nextMonthly(anchor, reference)
	}
}

// nextMonthly walks 30-day periods from the anchor. Computing the period
// count from the anchor every time (rather than adding 30 to the previous
// run) keeps the chain exact across missed or delayed batch runs.
func nextMonthly(anchor Date, reference Date) Date {
	elapsed := DaysBetween(anchor, reference)
	candidate := anchor.AddDays((floorDiv(elapsed, 30) + 1) * 30)
	if candidate.BeforeOrEqual(reference) {
		candidate = candidate.AddDays(30)
	}
	return candidate
}

// floorDiv divides rounding toward negative infinity. A reference before
// the anchor yields a negative elapsed count, and the next due date must
// still land on the anchor chain, never before the anchor.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// nextYearly keeps the anchor's month and day. A Feb 29 anchor clamps to
// Feb 28 in non-leap years.
func nextYearly(anchor Date, reference Date) Date {
	candidate := yearlyOn(anchor, reference.Year())
	if candidate.BeforeOrEqual(reference) {
		candidate = yearlyOn(anchor, reference.Year()+1)
	}
	return candidate
}

func yearlyOn(anchor Date, year int) Date {
	if anchor.Month() == time.February && anchor.Day() == 29 && !isLeapYear(year) {
		return NewDate(year, time.February, 28)
	}
	return NewDate(year, anchor.Month(), anchor.Day())
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
