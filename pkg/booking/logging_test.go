package booking

import (
	"context"
	"errors"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsBookingOperations(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	service := mustNewService(test, newMemoryStore(test), newTestClock(june1()), WithOperationLogger(logger))
	ctx := WithActor(context.Background(), "guest")

	created, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-10", "2025-06-13"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if _, err := service.CreateBooking(ctx, bookingRequest(test, 2, "2025-06-12", "2025-06-14")); !errors.Is(err, ErrConflict) {
		test.Fatalf("expected conflict, got %v", err)
	}
	if _, err := service.ConfirmPaid(WithActor(ctx, "staff-1"), created.Code, PaymentConfirmation{Method: PaymentMethodCard}); err != nil {
		test.Fatalf("confirm paid: %v", err)
	}

	if len(logger.entries) != 3 {
		test.Fatalf("expected three log entries, got %d", len(logger.entries))
	}
	first := logger.entries[0]
	if first.Operation != OperationCreateBooking || first.BookingCode != created.Code || first.Status != OperationStatusOK || first.Actor != "guest" || first.Payment != PaymentStatusUnpaid {
		test.Fatalf("unexpected create log %+v", first)
	}
	second := logger.entries[1]
	if second.Status != OperationStatusError || !errors.Is(second.Error, ErrConflict) {
		test.Fatalf("unexpected conflict log %+v", second)
	}
	assertDates(test, second.Dates, "2025-06-12")
	third := logger.entries[2]
	if third.Operation != OperationConfirmPaid || third.Actor != "staff-1" || third.Payment != PaymentStatusPaid || third.Room != 2 {
		test.Fatalf("unexpected confirm log %+v", third)
	}
}

func TestServiceLogsStoreFailures(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	failure := PersistenceError("store", "booking", "list", errors.New("boom"))
	store := &failingStore{memoryStore: newMemoryStore(test), err: failure}
	service := mustNewService(test, store, newTestClock(june1()), WithOperationLogger(logger))

	_, err := service.BlockDates(context.Background(), 1, mustDates(test, "2025-06-20"), "repairs")
	if !errors.Is(err, ErrPersistenceFailure) {
		test.Fatalf("expected persistence failure, got %v", err)
	}
	if len(logger.entries) != 1 || logger.entries[0].Status != OperationStatusError || logger.entries[0].Operation != OperationBlockDates {
		test.Fatalf("expected one error log entry, got %+v", logger.entries)
	}
}
