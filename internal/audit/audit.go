// Package audit records every state-changing booking operation.
package audit

import (
	"context"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"go.uber.org/zap"
)

const auditMessage = "booking operation"

// ZapLogger writes one structured line per operation.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger; nil discards output.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// LogOperation implements booking.OperationLogger. Failures log at warn level.
func (auditLogger *ZapLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := Fields(entry)
	if entry.Error != nil {
		auditLogger.logger.Warn(auditMessage, fields...)
		return
	}
	auditLogger.logger.Info(auditMessage, fields...)
}

// Fields renders entry as zap fields, omitting empty values.
func Fields(entry booking.OperationLog) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.Actor != "" {
		fields = append(fields, zap.String("actor", entry.Actor))
	}
	if !entry.BookingCode.IsZero() {
		fields = append(fields, zap.String("booking_code", entry.BookingCode.String()))
	}
	if entry.Room != 0 {
		fields = append(fields, zap.Int("room", entry.Room.Int()))
	}
	if !entry.CheckIn.IsZero() {
		fields = append(fields, zap.String("check_in", entry.CheckIn.String()))
	}
	if !entry.CheckOut.IsZero() {
		fields = append(fields, zap.String("check_out", entry.CheckOut.String()))
	}
	if len(entry.Dates) > 0 {
		dates := make([]string, 0, len(entry.Dates))
		for _, date := range entry.Dates {
			dates = append(dates, date.String())
		}
		fields = append(fields, zap.Strings("dates", dates))
	}
	if entry.Payment != "" {
		fields = append(fields, zap.String("payment_status", entry.Payment.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	return fields
}

// Multi fans an operation out to several loggers in order.
type Multi []booking.OperationLogger

// NewMulti drops nil loggers.
func NewMulti(loggers ...booking.OperationLogger) Multi {
	multi := make(Multi, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			multi = append(multi, logger)
		}
	}
	return multi
}

func (multi Multi) LogOperation(ctx context.Context, entry booking.OperationLog) {
	for _, logger := range multi {
		logger.LogOperation(ctx, entry)
	}
}
