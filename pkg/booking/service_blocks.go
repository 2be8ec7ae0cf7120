package booking

import (
	"context"
	"fmt"
	"strings"
)

// BlockDates marks room unavailable on dates. Nothing is written when any date is in the past
// or occupied by a blocking booking. Re-blocking a date overwrites its reason.
func (service *Service) BlockDates(ctx context.Context, room RoomNumber, dates []Date, reason string) ([]RoomBlock, error) {
	normalized := SortDates(dates)
	blocks, operationError := service.blockDates(ctx, room, normalized, reason)
	entry := OperationLog{
		Operation: operationBlockDates,
		Room:      room,
		Dates:     normalized,
		Error:     operationError,
	}
	if conflicts, ok := ConflictDates(operationError); ok {
		entry.Dates = conflicts
	}
	service.logOperation(ctx, entry)
	return blocks, operationError
}

func (service *Service) blockDates(ctx context.Context, room RoomNumber, dates []Date, reason string) ([]RoomBlock, error) {
	if _, err := service.catalog.Lookup(room); err != nil {
		return nil, err
	}
	trimmedReason := strings.TrimSpace(reason)
	if trimmedReason == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no dates", ErrInvalidDate)
	}
	now := service.nowFn()
	for _, date := range dates {
		if date.IsZero() {
			return nil, fmt.Errorf("%w: empty value", ErrInvalidDate)
		}
		if IsPastDate(date, now, service.location) {
			return nil, fmt.Errorf("%w: %s", ErrPastDate, date)
		}
	}
	blocks := make([]RoomBlock, 0, len(dates))
	for _, date := range dates {
		blocks = append(blocks, RoomBlock{Room: room, Date: date, Reason: trimmedReason})
	}
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.ListBookings(ctx, BookingQuery{Room: &room, From: dates[0], To: dates[len(dates)-1].AddDays(1)})
		if err != nil {
			return err
		}
		conflicts := intersectDates(dates, ComputeOccupiedDates(existing, nil, now)[room])
		if len(conflicts) > 0 {
			return ConflictError{Room: room, Dates: conflicts}
		}
		return transactionStore.UpsertBlocks(ctx, blocks)
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// UnblockDates removes the blocks of room on dates. Dates without a block are ignored.
func (service *Service) UnblockDates(ctx context.Context, room RoomNumber, dates []Date) error {
	normalized := SortDates(dates)
	operationError := service.unblockDates(ctx, room, normalized)
	service.logOperation(ctx, OperationLog{
		Operation: operationUnblockDates,
		Room:      room,
		Dates:     normalized,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) unblockDates(ctx context.Context, room RoomNumber, dates []Date) error {
	if _, err := service.catalog.Lookup(room); err != nil {
		return err
	}
	if len(dates) == 0 {
		return fmt.Errorf("%w: no dates", ErrInvalidDate)
	}
	for _, date := range dates {
		if date.IsZero() {
			return fmt.Errorf("%w: empty value", ErrInvalidDate)
		}
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.DeleteBlocks(ctx, room, dates)
	})
}

// ListBlocks returns blocks dated within the query range, ordered by room then date.
func (service *Service) ListBlocks(ctx context.Context, query BlockQuery) ([]RoomBlock, error) {
	if query.Room != nil {
		if _, err := service.catalog.Lookup(*query.Room); err != nil {
			return nil, err
		}
	}
	if !query.From.IsZero() && !query.To.IsZero() && !query.To.After(query.From) {
		return nil, fmt.Errorf("%w: to %s must be after from %s", ErrInvalidDate, query.To, query.From)
	}
	return service.store.ListBlocks(ctx, query)
}
