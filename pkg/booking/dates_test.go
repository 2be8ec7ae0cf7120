package booking

import (
	"errors"
	"testing"
	"time"
)

func TestOccupiedNightsExcludesCheckout(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		checkIn  string
		checkOut string
		want     []string
	}{
		{name: "three nights", checkIn: "2025-06-10", checkOut: "2025-06-13", want: []string{"2025-06-10", "2025-06-11", "2025-06-12"}},
		{name: "single night", checkIn: "2025-06-10", checkOut: "2025-06-11", want: []string{"2025-06-10"}},
		{name: "month boundary", checkIn: "2025-06-30", checkOut: "2025-07-02", want: []string{"2025-06-30", "2025-07-01"}},
		{name: "leap day", checkIn: "2024-02-28", checkOut: "2024-03-01", want: []string{"2024-02-28", "2024-02-29"}},
		{name: "same day", checkIn: "2025-06-10", checkOut: "2025-06-10", want: nil},
		{name: "reversed", checkIn: "2025-06-12", checkOut: "2025-06-10", want: nil},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			nights := OccupiedNights(mustDate(test, testCase.checkIn), mustDate(test, testCase.checkOut))
			assertDates(test, nights, testCase.want...)
		})
	}
}

func TestNightsBetween(test *testing.T) {
	test.Parallel()
	if got := NightsBetween(mustDate(test, "2025-03-29"), mustDate(test, "2025-04-02")); got != 4 {
		test.Fatalf("expected 4 nights, got %d", got)
	}
	if got := NightsBetween(mustDate(test, "2025-06-12"), mustDate(test, "2025-06-10")); got != -2 {
		test.Fatalf("expected -2 nights, got %d", got)
	}
}

func TestIsPastDateUsesLocationCalendar(test *testing.T) {
	test.Parallel()
	bangkok := time.FixedZone("ICT", 7*60*60)
	now := time.Date(2025, time.June, 1, 20, 0, 0, 0, time.UTC)
	if !IsPastDate(mustDate(test, "2025-06-01"), now, bangkok) {
		test.Fatalf("expected 2025-06-01 to be past in ICT where it is already 2025-06-02")
	}
	if IsPastDate(mustDate(test, "2025-06-01"), now, time.UTC) {
		test.Fatalf("expected today not to be past")
	}
	if !IsPastDate(mustDate(test, "2025-05-31"), now, time.UTC) {
		test.Fatalf("expected yesterday to be past")
	}
}

func TestParseDateRejectsMalformedValues(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "2025-13-01", "2025-02-30", "06/10/2025", "2025-6-1"} {
		if _, err := ParseDate(raw); !errors.Is(err, ErrInvalidDate) || !errors.Is(err, ErrInvalidInput) {
			test.Fatalf("expected ErrInvalidDate for %q, got %v", raw, err)
		}
	}
	date := mustDate(test, " 2025-06-10 ")
	if date.String() != "2025-06-10" {
		test.Fatalf("unexpected date %s", date)
	}
	if date != NewDate(2025, time.June, 10) {
		test.Fatalf("expected parsed date to equal constructed date")
	}
}

func TestSortDatesDeduplicates(test *testing.T) {
	test.Parallel()
	sorted := SortDates(mustDates(test, "2025-06-12", "2025-06-10", "2025-06-12", "2025-06-11"))
	assertDates(test, sorted, "2025-06-10", "2025-06-11", "2025-06-12")
}
