package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConfirmPaid marks an unpaid booking as paid. A booking whose hold already lapsed is
// re-validated against current availability before it is accepted.
func (service *Service) ConfirmPaid(ctx context.Context, code BookingCode, confirmation PaymentConfirmation) (Booking, error) {
	var updated Booking
	operationError := service.confirmPaid(ctx, code, confirmation, &updated)
	entry := lifecycleLog(operationConfirmPaid, code, updated, operationError)
	service.logOperation(ctx, entry)
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

func (service *Service) confirmPaid(ctx context.Context, code BookingCode, confirmation PaymentConfirmation, updated *Booking) error {
	if code.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidBookingCode)
	}
	method, err := ParsePaymentMethod(confirmation.Method.String())
	if err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetBooking(ctx, code)
		if err != nil {
			return err
		}
		if _, alreadyPaid := current.Payment.(Paid); alreadyPaid {
			return fmt.Errorf("%w: booking %s is already paid", ErrInvalidTransition, code)
		}
		now := service.nowFn()
		if !IsBlocking(current, now) {
			if err := service.secureNights(ctx, transactionStore, current, now); err != nil {
				return err
			}
		}
		current.Payment = Paid{Method: method, Reference: strings.TrimSpace(confirmation.Reference), PaidAt: now}
		current.UpdatedAt = now
		if err := transactionStore.UpdateBookingPayment(ctx, current); err != nil {
			return err
		}
		*updated = current
		return nil
	})
}

// ReleaseHold clears the hold of an unpaid booking so its nights become available immediately.
// Releasing an already-released hold succeeds without changes.
func (service *Service) ReleaseHold(ctx context.Context, code BookingCode) (Booking, error) {
	var updated Booking
	operationError := service.releaseHold(ctx, code, &updated)
	service.logOperation(ctx, lifecycleLog(operationReleaseHold, code, updated, operationError))
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

func (service *Service) releaseHold(ctx context.Context, code BookingCode, updated *Booking) error {
	if code.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidBookingCode)
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetBooking(ctx, code)
		if err != nil {
			return err
		}
		state, unpaid := current.Payment.(Unpaid)
		if !unpaid {
			return fmt.Errorf("%w: booking %s is paid", ErrInvalidTransition, code)
		}
		if state.HoldExpiresAt == nil {
			*updated = current
			return nil
		}
		current.Payment = Unpaid{}
		current.UpdatedAt = service.nowFn()
		if err := transactionStore.UpdateBookingPayment(ctx, current); err != nil {
			return err
		}
		if err := transactionStore.ReleaseNightClaims(ctx, []BookingCode{code}); err != nil {
			return err
		}
		*updated = current
		return nil
	})
}

// GetBooking returns the booking with code.
func (service *Service) GetBooking(ctx context.Context, code BookingCode) (Booking, error) {
	if code.IsZero() {
		return Booking{}, fmt.Errorf("%w: empty value", ErrInvalidBookingCode)
	}
	return service.store.GetBooking(ctx, code)
}

// ListBookings returns bookings whose stay overlaps the query range, ordered by check-in.
func (service *Service) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	if query.Room != nil {
		if _, err := service.catalog.Lookup(*query.Room); err != nil {
			return nil, err
		}
	}
	if !query.From.IsZero() && !query.To.IsZero() && !query.To.After(query.From) {
		return nil, fmt.Errorf("%w: to %s must be after from %s", ErrInvalidStayRange, query.To, query.From)
	}
	return service.store.ListBookings(ctx, query)
}

// IsBlockingNow reports whether booking currently occupies its nights.
func (service *Service) IsBlockingNow(booking Booking) bool {
	return IsBlocking(booking, service.nowFn())
}

// HoldRemaining returns how long an unpaid booking keeps blocking its room; zero when not held.
func (service *Service) HoldRemaining(booking Booking) time.Duration {
	state, unpaid := booking.Payment.(Unpaid)
	if !unpaid || state.HoldExpiresAt == nil {
		return 0
	}
	remaining := state.HoldExpiresAt.Sub(service.nowFn())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func lifecycleLog(operation string, code BookingCode, updated Booking, operationError error) OperationLog {
	entry := OperationLog{
		Operation:   operation,
		BookingCode: code,
		Room:        updated.Room,
		CheckIn:     updated.CheckIn,
		CheckOut:    updated.CheckOut,
		Error:       operationError,
	}
	if updated.Payment != nil {
		entry.Payment = updated.Payment.Status()
	}
	if dates, ok := ConflictDates(operationError); ok {
		entry.Dates = dates
	}
	return entry
}
