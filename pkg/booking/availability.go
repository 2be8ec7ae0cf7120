package booking

import "time"

// IsBlocking reports whether booking occupies its nights at instant at:
// paid bookings always do, unpaid bookings only while their hold has not expired.
func IsBlocking(booking Booking, at time.Time) bool {
	switch state := booking.Payment.(type) {
	case Paid:
		return true
	case Unpaid:
		return state.HoldExpiresAt != nil && state.HoldExpiresAt.After(at)
	default:
		return false
	}
}

// ComputeOccupiedDates derives the occupied dates per room from blocking bookings and blocks.
// Each room's dates are ascending and free of duplicates.
func ComputeOccupiedDates(bookings []Booking, blocks []RoomBlock, at time.Time) map[RoomNumber][]Date {
	collected := make(map[RoomNumber][]Date)
	for _, booking := range bookings {
		if !IsBlocking(booking, at) {
			continue
		}
		collected[booking.Room] = append(collected[booking.Room], OccupiedNights(booking.CheckIn, booking.CheckOut)...)
	}
	for _, block := range blocks {
		collected[block.Room] = append(collected[block.Room], block.Date)
	}
	occupied := make(map[RoomNumber][]Date, len(collected))
	for room, dates := range collected {
		occupied[room] = SortDates(dates)
	}
	return occupied
}

// AvailabilityQuery selects the occupied dates within [From, To), optionally for one room.
type AvailabilityQuery struct {
	Room *RoomNumber
	From Date
	To   Date
}

// Availability lists occupied dates per room; every room in scope has an entry.
type Availability struct {
	From     Date
	To       Date
	Occupied map[RoomNumber][]Date
}

func intersectDates(requested []Date, occupied []Date) []Date {
	taken := make(map[Date]struct{}, len(occupied))
	for _, date := range occupied {
		taken[date] = struct{}{}
	}
	conflicts := make([]Date, 0)
	for _, date := range requested {
		if _, ok := taken[date]; ok {
			conflicts = append(conflicts, date)
		}
	}
	return SortDates(conflicts)
}

func clipDates(dates []Date, from Date, to Date) []Date {
	clipped := make([]Date, 0, len(dates))
	for _, date := range dates {
		if date.Before(from) || !date.Before(to) {
			continue
		}
		clipped = append(clipped, date)
	}
	return clipped
}
