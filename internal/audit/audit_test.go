package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	entries []booking.OperationLog
}

func (recorder *recorder) LogOperation(_ context.Context, entry booking.OperationLog) {
	recorder.entries = append(recorder.entries, entry)
}

func TestZapLoggerWritesStructuredLine(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	auditLogger := NewZapLogger(zap.New(core))
	code, err := booking.ParseBookingCode("BK-20250601-AB2C")
	if err != nil {
		test.Fatalf("parse code: %v", err)
	}

	auditLogger.LogOperation(context.Background(), booking.OperationLog{
		Operation:   booking.OperationCreateBooking,
		Status:      booking.OperationStatusOK,
		Actor:       "guest",
		BookingCode: code,
		Room:        2,
		CheckIn:     booking.NewDate(2025, time.June, 6),
		CheckOut:    booking.NewDate(2025, time.June, 8),
		Payment:     booking.PaymentStatusUnpaid,
	})

	entries := logs.All()
	if len(entries) != 1 {
		test.Fatalf("expected one log line, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel || entry.LoggerName != "audit" {
		test.Fatalf("unexpected level or name: %s %s", entry.Level, entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["booking_code"] != "BK-20250601-AB2C" || fields["room"] != int64(2) || fields["check_in"] != "2025-06-06" {
		test.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["dates"]; ok {
		test.Fatalf("expected empty dates to be omitted")
	}
}

func TestZapLoggerWarnsOnFailure(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	auditLogger := NewZapLogger(zap.New(core))

	auditLogger.LogOperation(context.Background(), booking.OperationLog{
		Operation: booking.OperationBlockDates,
		Status:    booking.OperationStatusError,
		Room:      3,
		Dates:     []booking.Date{booking.NewDate(2025, time.June, 12)},
		Error:     booking.ErrConflict,
	})

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		test.Fatalf("expected one warn line, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["error"] != booking.ErrConflict.Error() {
		test.Fatalf("unexpected error field: %v", fields["error"])
	}
}

func TestMultiFansOutAndSkipsNil(test *testing.T) {
	test.Parallel()
	first := &recorder{}
	second := &recorder{}
	multi := NewMulti(first, nil, second)
	if len(multi) != 2 {
		test.Fatalf("expected nil logger to be dropped, got %d", len(multi))
	}

	multi.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationReleaseHold, Error: errors.New("boom")})

	if len(first.entries) != 1 || len(second.entries) != 1 {
		test.Fatalf("expected both loggers called, got %d and %d", len(first.entries), len(second.entries))
	}
}
