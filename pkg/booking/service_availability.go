package booking

import (
	"context"
	"fmt"
)

// Availability returns the occupied dates per room within [query.From, query.To), read fresh
// from the store. Every room in scope is present, possibly with no dates.
func (service *Service) Availability(ctx context.Context, query AvailabilityQuery) (Availability, error) {
	if query.From.IsZero() || query.To.IsZero() {
		return Availability{}, fmt.Errorf("%w: from and to are required", ErrInvalidDate)
	}
	span := NightsBetween(query.From, query.To)
	if span <= 0 {
		return Availability{}, fmt.Errorf("%w: to %s must be after from %s", ErrInvalidDate, query.To, query.From)
	}
	if span > maxAvailabilityDays {
		return Availability{}, fmt.Errorf("%w: range of %d days exceeds %d", ErrInvalidDate, span, maxAvailabilityDays)
	}
	rooms := service.catalog.Rooms()
	if query.Room != nil {
		room, err := service.catalog.Lookup(*query.Room)
		if err != nil {
			return Availability{}, err
		}
		rooms = []Room{room}
	}
	bookings, err := service.store.ListBookings(ctx, BookingQuery{Room: query.Room, From: query.From, To: query.To})
	if err != nil {
		return Availability{}, err
	}
	blocks, err := service.store.ListBlocks(ctx, BlockQuery{Room: query.Room, From: query.From, To: query.To})
	if err != nil {
		return Availability{}, err
	}
	occupied := ComputeOccupiedDates(bookings, blocks, service.nowFn())
	result := Availability{From: query.From, To: query.To, Occupied: make(map[RoomNumber][]Date, len(rooms))}
	for _, room := range rooms {
		result.Occupied[room.Number] = clipDates(occupied[room.Number], query.From, query.To)
	}
	return result, nil
}
