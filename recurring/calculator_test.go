package recurring_test

import (
	"testing"
	"time"

	"github.com/warp/recurrence-engine/recurring"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) recurring.Date {
	return recurring.NewDate(year, month, day)
}

// =============================================================================
// DAILY / WEEKLY
// =============================================================================

func TestNextDue_Daily_AdvancesOneDay(t *testing.T) {
	anchor := date(2024, time.January, 1)
	got := recurring.NextDue(anchor, recurring.FreqDaily, date(2024, time.March, 14))
	want := date(2024, time.March, 15)

	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNextDue_Weekly_AdvancesSevenDays(t *testing.T) {
	anchor := date(2024, time.January, 1)
	got := recurring.NextDue(anchor, recurring.FreqWeekly, date(2024, time.February, 26))
	want := date(2024, time.March, 4)

	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// =============================================================================
// MONTHLY - Fixed 30-day periods from the anchor, never calendar months
// =============================================================================

func TestNextDue_Monthly_AnchorChainNeverDrifts(t *testing.T) {
	// GIVEN: anchor 2024-01-01, monthly cadence
	// WHEN: walking the chain from each occurrence
	// THEN: every next date is exactly 30 days later, on the anchor grid

	anchor := date(2024, time.January, 1)
	want := []recurring.Date{
		date(2024, time.January, 31),
		date(2024, time.March, 1),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
		date(2024, time.May, 30),
	}

	ref := anchor
	for i, expected := range want {
		got := recurring.NextDue(anchor, recurring.FreqMonthly, ref)
		if !got.Equal(expected) {
			t.Fatalf("step %d: expected %s, got %s", i, expected, got)
		}
		if recurring.DaysBetween(anchor, got)%30 != 0 {
			t.Fatalf("step %d: %s is off the 30-day anchor grid", i, got)
		}
		ref = got
	}
}

func TestNextDue_Monthly_NeverSnapsToCalendarMonth(t *testing.T) {
	// The cadence is 30 fixed days. From Jan 31 the next occurrence is
	// Mar 1 (in a leap year), NOT Feb 29 or "Feb 31 clamped".
	anchor := date(2024, time.January, 1)
	got := recurring.NextDue(anchor, recurring.FreqMonthly, date(2024, time.January, 31))

	if got.Month() == time.February {
		t.Fatalf("snapped to calendar month: %s", got)
	}
	if want := date(2024, time.March, 1); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNextDue_Monthly_MidPeriodReference(t *testing.T) {
	// A reference between grid points lands on the next grid point.
	anchor := date(2024, time.January, 1)
	got := recurring.NextDue(anchor, recurring.FreqMonthly, date(2024, time.January, 15))

	if want := date(2024, time.January, 31); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNextDue_Monthly_SameDayReference_StrictlyAfter(t *testing.T) {
	anchor := date(2024, time.January, 1)
	got := recurring.NextDue(anchor, recurring.FreqMonthly, anchor)

	if !got.After(anchor) {
		t.Fatalf("next due %s not strictly after reference %s", got, anchor)
	}
	if want := date(2024, time.January, 31); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNextDue_Monthly_ReferenceBeforeAnchor_ClampsToAnchor(t *testing.T) {
	// Clock skew can put the reference before the anchor; the result
	// must still be on the anchor chain and never before the anchor.
	anchor := date(2024, time.June, 15)
	got := recurring.NextDue(anchor, recurring.FreqMonthly, date(2024, time.June, 1))

	if got.Before(anchor) {
		t.Fatalf("next due %s before anchor %s", got, anchor)
	}
	if !got.Equal(anchor) {
		t.Errorf("expected anchor %s, got %s", anchor, got)
	}
}

// =============================================================================
// YEARLY - Same month/day as the anchor
// =============================================================================

func TestNextDue_Yearly_SameDayNextYear(t *testing.T) {
	anchor := date(2020, time.July, 4)

	got := recurring.NextDue(anchor, recurring.FreqYearly, date(2024, time.March, 1))
	if want := date(2024, time.July, 4); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}

	// Already past this year's date: bump a year.
	got = recurring.NextDue(anchor, recurring.FreqYearly, date(2024, time.July, 4))
	if want := date(2025, time.July, 4); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNextDue_Yearly_LeapDayAnchor_ClampsToFeb28(t *testing.T) {
	// GIVEN: a Feb 29 anchor
	// THEN: non-leap years fall back to Feb 28, leap years keep Feb 29
	anchor := date(2024, time.February, 29)

	got := recurring.NextDue(anchor, recurring.FreqYearly, date(2024, time.March, 1))
	if want := date(2025, time.February, 28); !got.Equal(want) {
		t.Errorf("non-leap year: expected %s, got %s", want, got)
	}

	got = recurring.NextDue(anchor, recurring.FreqYearly, date(2027, time.December, 1))
	if want := date(2028, time.February, 29); !got.Equal(want) {
		t.Errorf("leap year: expected %s, got %s", want, got)
	}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestParseFrequency_UnknownDefaultsToMonthly(t *testing.T) {
	if got := recurring.ParseFrequency(""); got != recurring.FreqMonthly {
		t.Errorf("empty: expected monthly, got %s", got)
	}
	if got := recurring.ParseFrequency("fortnightly"); got != recurring.FreqMonthly {
		t.Errorf("unknown: expected monthly, got %s", got)
	}
	if got := recurring.ParseFrequency("weekly"); got != recurring.FreqWeekly {
		t.Errorf("weekly: expected weekly, got %s", got)
	}
}

func TestNormalizeStatus_LegacyBooleanFoldedIn(t *testing.T) {
	cases := []struct {
		status string
		legacy bool
		want   recurring.Status
	}{
		{"active", false, recurring.StatusActive},
		{"paused", true, recurring.StatusPaused},
		{"cancelled", true, recurring.StatusCancelled},
		{"", true, recurring.StatusActive},
		{"", false, recurring.StatusPaused},
		{"garbage", true, recurring.StatusActive},
	}
	for _, c := range cases {
		if got := recurring.NormalizeStatus(c.status, c.legacy); got != c.want {
			t.Errorf("NormalizeStatus(%q, %v): expected %s, got %s", c.status, c.legacy, c.want, got)
		}
	}
}

func TestParseDate_AcceptsLegacyTimestamps(t *testing.T) {
	plain, err := recurring.ParseDate("2024-01-31")
	if err != nil {
		t.Fatalf("plain date: %v", err)
	}
	legacy, err := recurring.ParseDate("2024-01-31T18:30:00Z")
	if err != nil {
		t.Fatalf("legacy timestamp: %v", err)
	}
	if !plain.Equal(legacy) {
		t.Errorf("expected %s == %s", plain, legacy)
	}

	if _, err := recurring.ParseDate("not-a-date"); err == nil {
		t.Error("expected error for garbage input")
	}
}
