package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a civil calendar date without time of day or zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate normalizes year, month, and day into a Date (overflowing days roll forward like time.Date).
func NewDate(year int, month time.Month, day int) Date {
	return dateFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Date{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, trimmed)
	}
	return dateFromTime(parsed), nil
}

// DateOf returns the calendar day of instant in location.
func DateOf(instant time.Time, location *time.Location) Date {
	if location == nil {
		location = time.UTC
	}
	return dateFromTime(instant.In(location))
}

func dateFromTime(value time.Time) Date {
	year, month, day := value.Date()
	return Date{year: year, month: month, day: day}
}

// String formats the date as YYYY-MM-DD.
func (date Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", date.year, int(date.month), date.day)
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date == Date{}
}

// Time returns midnight UTC of the date.
func (date Date) Time() time.Time {
	return time.Date(date.year, date.month, date.day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date shifted by days.
func (date Date) AddDays(days int) Date {
	return dateFromTime(date.Time().AddDate(0, 0, days))
}

// Before reports whether date is strictly earlier than other.
func (date Date) Before(other Date) bool {
	return date.Compare(other) < 0
}

// After reports whether date is strictly later than other.
func (date Date) After(other Date) bool {
	return date.Compare(other) > 0
}

// Compare returns -1, 0, or +1.
func (date Date) Compare(other Date) int {
	switch {
	case date.year != other.year:
		return compareInts(date.year, other.year)
	case date.month != other.month:
		return compareInts(int(date.month), int(other.month))
	default:
		return compareInts(date.day, other.day)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (date Date) MarshalText() ([]byte, error) {
	return []byte(date.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (date *Date) UnmarshalText(raw []byte) error {
	parsed, err := ParseDate(string(raw))
	if err != nil {
		return err
	}
	*date = parsed
	return nil
}

// NightsBetween returns the calendar-day difference checkOut - checkIn.
func NightsBetween(checkIn Date, checkOut Date) int {
	return int(checkOut.Time().Sub(checkIn.Time()).Hours() / 24)
}

// OccupiedNights lists every date in [checkIn, checkOut) in ascending order.
func OccupiedNights(checkIn Date, checkOut Date) []Date {
	nights := NightsBetween(checkIn, checkOut)
	if nights <= 0 {
		return []Date{}
	}
	result := make([]Date, 0, nights)
	for night := checkIn; night.Before(checkOut); night = night.AddDays(1) {
		result = append(result, night)
	}
	return result
}

// IsPastDate reports whether date is strictly before the calendar day of now in location.
func IsPastDate(date Date, now time.Time, location *time.Location) bool {
	return date.Before(DateOf(now, location))
}

// SortDates sorts dates ascending and removes duplicates.
func SortDates(dates []Date) []Date {
	if len(dates) == 0 {
		return []Date{}
	}
	sorted := make([]Date, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(left, right int) bool {
		return sorted[left].Before(sorted[right])
	})
	unique := sorted[:1]
	for _, date := range sorted[1:] {
		if date != unique[len(unique)-1] {
			unique = append(unique, date)
		}
	}
	return unique
}

func compareInts(left int, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}
