package booking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateBookingHoldsRoomAndReportsConflicts(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)
	ctx := context.Background()

	created, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-13"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if created.Nights != 3 || created.TotalAmount != 4500 || created.RoomRate != 1500 {
		test.Fatalf("unexpected pricing: nights=%d total=%d rate=%d", created.Nights, created.TotalAmount, created.RoomRate)
	}
	state, unpaid := created.Payment.(Unpaid)
	if !unpaid || state.HoldExpiresAt == nil || !state.HoldExpiresAt.Equal(june1().Add(DefaultHoldDuration)) {
		test.Fatalf("expected unpaid booking with 30 minute hold, got %+v", created.Payment)
	}
	room := RoomNumber(2)
	availability, err := service.Availability(ctx, AvailabilityQuery{Room: &room, From: mustDate(test, "2025-06-01"), To: mustDate(test, "2025-07-01")})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	assertDates(test, availability.Occupied[2], "2025-06-10", "2025-06-11", "2025-06-12")

	_, err = service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-12", "2025-06-14"))
	if !errors.Is(err, ErrConflict) {
		test.Fatalf("expected conflict, got %v", err)
	}
	conflicts, ok := ConflictDates(err)
	if !ok {
		test.Fatalf("expected conflict dates in %v", err)
	}
	assertDates(test, conflicts, "2025-06-12")
}

func TestCreateBookingSucceedsAfterHoldExpires(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-13"))
	if err != nil {
		test.Fatalf("create first booking: %v", err)
	}
	clock.Advance(31 * time.Minute)
	second, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-12", "2025-06-14"))
	if err != nil {
		test.Fatalf("expected booking over expired hold to succeed, got %v", err)
	}
	code, claimed := store.claimedBy(2, mustDate(test, "2025-06-12"))
	if !claimed || code != second.Code {
		test.Fatalf("expected 2025-06-12 claimed by %s, got %s", second.Code, code)
	}
	if _, stillClaimed := store.claimedBy(2, mustDate(test, "2025-06-10")); stillClaimed {
		test.Fatalf("expected stale claims of %s to be pruned", first.Code)
	}
}

func TestConfirmPaidKeepsRoomBlockedPastHoldExpiry(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-13"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	clock.Advance(10 * time.Minute)
	paid, err := service.ConfirmPaid(ctx, first.Code, PaymentConfirmation{Method: PaymentMethodTransfer, Reference: "TX-991"})
	if err != nil {
		test.Fatalf("confirm paid: %v", err)
	}
	state, isPaid := paid.Payment.(Paid)
	if !isPaid || state.Method != PaymentMethodTransfer || state.Reference != "TX-991" || !state.PaidAt.Equal(clock.Now()) {
		test.Fatalf("unexpected payment state %+v", paid.Payment)
	}
	if !paid.UpdatedAt.Equal(clock.Now()) {
		test.Fatalf("expected updated_at refreshed, got %s", paid.UpdatedAt)
	}
	clock.Advance(time.Hour)
	_, err = service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-12", "2025-06-14"))
	if !errors.Is(err, ErrConflict) {
		test.Fatalf("expected conflict against paid booking, got %v", err)
	}
}

func TestBackToBackBookingsShareNoNight(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, newTestClock(june1()))
	ctx := context.Background()

	if _, err := service.CreateBooking(ctx, bookingRequest(test, 1, "2025-06-10", "2025-06-12")); err != nil {
		test.Fatalf("create first: %v", err)
	}
	if _, err := service.CreateBooking(ctx, bookingRequest(test, 1, "2025-06-12", "2025-06-14")); err != nil {
		test.Fatalf("expected back-to-back booking to succeed, got %v", err)
	}
}

func TestCreateBookingRejectsInvalidInputBeforeReading(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		request func(test *testing.T) BookingRequest
		wantErr error
	}{
		{
			name: "unknown room",
			request: func(test *testing.T) BookingRequest {
				return bookingRequest(test, 9, "2025-06-10", "2025-06-12")
			},
			wantErr: ErrUnknownRoom,
		},
		{
			name: "check-out equals check-in",
			request: func(test *testing.T) BookingRequest {
				return bookingRequest(test, 1, "2025-06-10", "2025-06-10")
			},
			wantErr: ErrInvalidStayRange,
		},
		{
			name: "check-out before check-in",
			request: func(test *testing.T) BookingRequest {
				return bookingRequest(test, 1, "2025-06-10", "2025-06-08")
			},
			wantErr: ErrInvalidStayRange,
		},
		{
			name: "check-in in the past",
			request: func(test *testing.T) BookingRequest {
				return bookingRequest(test, 1, "2025-05-31", "2025-06-02")
			},
			wantErr: ErrPastDate,
		},
		{
			name: "stay too long",
			request: func(test *testing.T) BookingRequest {
				return bookingRequest(test, 1, "2025-06-10", "2025-09-10")
			},
			wantErr: ErrInvalidStayRange,
		},
		{
			name: "missing guest name",
			request: func(test *testing.T) BookingRequest {
				request := bookingRequest(test, 1, "2025-06-10", "2025-06-12")
				request.Guest.Name = "  "
				return request
			},
			wantErr: ErrInvalidGuest,
		},
		{
			name: "malformed email",
			request: func(test *testing.T) BookingRequest {
				request := bookingRequest(test, 1, "2025-06-10", "2025-06-12")
				request.Guest.Email = "not-an-email"
				return request
			},
			wantErr: ErrInvalidGuest,
		},
		{
			name: "short phone",
			request: func(test *testing.T) BookingRequest {
				request := bookingRequest(test, 1, "2025-06-10", "2025-06-12")
				request.Guest.Phone = "12345"
				return request
			},
			wantErr: ErrInvalidGuest,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newMemoryStore(test)
			service := mustNewService(test, store, newTestClock(june1()))
			_, err := service.CreateBooking(context.Background(), testCase.request(test))
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			if !errors.Is(err, ErrInvalidInput) {
				test.Fatalf("expected invalid input classification, got %v", err)
			}
			if store.reads != 0 {
				test.Fatalf("expected no store reads, got %d", store.reads)
			}
		})
	}
}

func TestCreateBookingRegeneratesCollidingCode(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	generator := &sequenceCodes{codes: []string{"BK-20250601-AAAA", "BK-20250601-AAAA", "BK-20250601-BBBB"}}
	service := mustNewService(test, store, newTestClock(june1()), WithCodeGenerator(generator))
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, bookingRequest(test, 1, "2025-06-10", "2025-06-12"))
	if err != nil {
		test.Fatalf("create first: %v", err)
	}
	second, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-12"))
	if err != nil {
		test.Fatalf("create second: %v", err)
	}
	if first.Code.String() != "BK-20250601-AAAA" || second.Code.String() != "BK-20250601-BBBB" {
		test.Fatalf("unexpected codes %s and %s", first.Code, second.Code)
	}
	if code, _ := store.claimedBy(2, mustDate(test, "2025-06-10")); code != second.Code {
		test.Fatalf("expected room 2 claimed by %s, got %s", second.Code, code)
	}
}

func TestCreateBookingGivesUpAfterRepeatedCodeCollisions(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	fixed := CodeGeneratorFunc(func(time.Time) (BookingCode, error) {
		return ParseBookingCode("BK-20250601-CCCC")
	})
	service := mustNewService(test, store, newTestClock(june1()), WithCodeGenerator(fixed))
	ctx := context.Background()

	if _, err := service.CreateBooking(ctx, bookingRequest(test, 1, "2025-06-10", "2025-06-12")); err != nil {
		test.Fatalf("create first: %v", err)
	}
	_, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-12"))
	if !errors.Is(err, ErrPersistenceFailure) {
		test.Fatalf("expected persistence failure, got %v", err)
	}
	if _, claimed := store.claimedBy(2, mustDate(test, "2025-06-10")); claimed {
		test.Fatalf("expected failed attempts to leave no claims")
	}
}

func TestCreateBookingReportsLostRaceAsConflict(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, newTestClock(june1()))
	holdExpiresAt := june1().Add(time.Hour)
	store.commitConcurrently(Booking{
		Code:     mustCode(test, "BK-20250601-RACE"),
		Room:     2,
		CheckIn:  mustDate(test, "2025-06-11"),
		CheckOut: mustDate(test, "2025-06-12"),
		Nights:   1,
		Payment:  Unpaid{HoldExpiresAt: &holdExpiresAt},
	})

	_, err := service.CreateBooking(context.Background(), bookingRequest(test, 2, "2025-06-10", "2025-06-13"))
	if !errors.Is(err, ErrConflict) {
		test.Fatalf("expected conflict, got %v", err)
	}
	conflicts, _ := ConflictDates(err)
	assertDates(test, conflicts, "2025-06-11")
	if len(store.bookings) != 1 {
		test.Fatalf("expected only the concurrent booking to persist, got %d", len(store.bookings))
	}
}

func TestHoldExpiryBoundary(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)
	ctx := context.Background()

	created, err := service.CreateBooking(ctx, bookingRequest(test, 3, "2025-06-10", "2025-06-11"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	expiresAt := *created.Payment.(Unpaid).HoldExpiresAt
	if !IsBlocking(created, expiresAt.Add(-time.Second)) {
		test.Fatalf("expected booking to block one second before expiry")
	}
	if IsBlocking(created, expiresAt) {
		test.Fatalf("expected booking to stop blocking at expiry")
	}
	if IsBlocking(created, expiresAt.Add(time.Second)) {
		test.Fatalf("expected booking to stop blocking one second after expiry")
	}
	if remaining := service.HoldRemaining(created); remaining != DefaultHoldDuration {
		test.Fatalf("expected %s remaining, got %s", DefaultHoldDuration, remaining)
	}
}

func TestBookingAmountsSurviveRateChanges(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)
	ctx := context.Background()

	created, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-12"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	repriced, err := NewService(store, mustCatalog(test, Room{Number: 2, Name: "Deluxe", Rate: 9900}), clock.Now)
	if err != nil {
		test.Fatalf("repriced service: %v", err)
	}
	stored, err := repriced.GetBooking(ctx, created.Code)
	if err != nil {
		test.Fatalf("get booking: %v", err)
	}
	if stored.RoomRate != 1500 || stored.TotalAmount != Amount(int64(stored.Nights)*stored.RoomRate.Int64()) {
		test.Fatalf("expected snapshot rate 1500 and consistent total, got rate=%d total=%d", stored.RoomRate, stored.TotalAmount)
	}
}

func TestCreateStaffBookingMayStartPaid(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	clock := newTestClock(june1())
	service := mustNewService(test, store, clock)

	created, err := service.CreateStaffBooking(context.Background(), StaffBookingRequest{
		BookingRequest: bookingRequest(test, 1, "2025-05-30", "2025-06-02"),
		Paid:           &PaymentConfirmation{Method: PaymentMethodCard},
	})
	if err != nil {
		test.Fatalf("create staff booking: %v", err)
	}
	state, paid := created.Payment.(Paid)
	if !paid || state.Method != PaymentMethodCard || !state.PaidAt.Equal(clock.Now()) {
		test.Fatalf("expected paid booking, got %+v", created.Payment)
	}
	clock.Advance(24 * time.Hour)
	if !service.IsBlockingNow(created) {
		test.Fatalf("expected paid staff booking to keep blocking")
	}
}

func TestCreateStaffBookingRejectsUnknownPaymentMethod(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newMemoryStore(test), newTestClock(june1()))
	_, err := service.CreateStaffBooking(context.Background(), StaffBookingRequest{
		BookingRequest: bookingRequest(test, 1, "2025-06-10", "2025-06-12"),
		Paid:           &PaymentConfirmation{Method: PaymentMethod("cash")},
	})
	if !errors.Is(err, ErrInvalidPaymentMethod) {
		test.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	clock := newTestClock(june1())
	if _, err := NewService(nil, mustCatalog(test), clock.Now); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil store, got %v", err)
	}
	if _, err := NewService(newMemoryStore(test), mustCatalog(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil clock, got %v", err)
	}
	if _, err := NewService(newMemoryStore(test), RoomCatalog{}, clock.Now); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for empty catalog, got %v", err)
	}
}
