package booking

import "context"

// Store persists bookings, night claims, and room blocks.
//
// ClaimNights must fail with ErrNightTaken when any (room, night) pair is already claimed.
// InsertBooking must fail with ErrDuplicateBookingCode when the code is already used.
// GetBooking locks the row for the rest of the transaction where the backend supports it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
	GetBooking(ctx context.Context, code BookingCode) (Booking, error)
	InsertBooking(ctx context.Context, booking Booking) error
	UpdateBookingPayment(ctx context.Context, booking Booking) error
	ClaimNights(ctx context.Context, claims []NightClaim) error
	ReleaseNightClaims(ctx context.Context, codes []BookingCode) error
	ListBlocks(ctx context.Context, query BlockQuery) ([]RoomBlock, error)
	UpsertBlocks(ctx context.Context, blocks []RoomBlock) error
	DeleteBlocks(ctx context.Context, room RoomNumber, dates []Date) error
}
