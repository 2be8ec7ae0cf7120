package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Every error returned by Service matches exactly one of these with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Refined error values. Each wraps one taxonomy value.
var (
	ErrUnknownRoom          = fmt.Errorf("%w: unknown room", ErrInvalidInput)
	ErrInvalidDate          = fmt.Errorf("%w: invalid date", ErrInvalidInput)
	ErrInvalidStayRange     = fmt.Errorf("%w: invalid stay range", ErrInvalidInput)
	ErrPastDate             = fmt.Errorf("%w: date in the past", ErrInvalidInput)
	ErrInvalidGuest         = fmt.Errorf("%w: invalid guest details", ErrInvalidInput)
	ErrInvalidBookingCode   = fmt.Errorf("%w: invalid booking code", ErrInvalidInput)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: invalid payment method", ErrInvalidInput)
	ErrInvalidReason        = fmt.Errorf("%w: invalid block reason", ErrInvalidInput)
	ErrInvalidTransition    = fmt.Errorf("%w: invalid payment transition", ErrInvalidInput)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrInvalidRoomCatalog   = fmt.Errorf("%w: invalid room catalog", ErrInvalidInput)
	ErrBookingNotFound      = fmt.Errorf("%w: booking", ErrNotFound)
	ErrNightTaken           = fmt.Errorf("%w: night already claimed", ErrConflict)
	ErrDuplicateBookingCode = fmt.Errorf("%w: duplicate booking code", ErrPersistenceFailure)
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// ConflictError names the dates that prevented a reservation or block.
type ConflictError struct {
	Room  RoomNumber
	Dates []Date
}

// Error returns the formatted error message.
func (conflictError ConflictError) Error() string {
	formatted := make([]string, 0, len(conflictError.Dates))
	for _, date := range conflictError.Dates {
		formatted = append(formatted, date.String())
	}
	return fmt.Sprintf("%v: room %d unavailable on %s", ErrConflict, conflictError.Room, strings.Join(formatted, ", "))
}

// Unwrap returns ErrConflict.
func (conflictError ConflictError) Unwrap() error {
	return ErrConflict
}

// ConflictDates extracts the conflicting dates from err, if any.
func ConflictDates(err error) ([]Date, bool) {
	var conflictError ConflictError
	if !errors.As(err, &conflictError) {
		return nil, false
	}
	return conflictError.Dates, true
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// PersistenceError wraps a storage driver failure so that it matches ErrPersistenceFailure.
func PersistenceError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceFailure) {
		return WrapError(operation, subject, code, err)
	}
	return WrapError(operation, subject, code, fmt.Errorf("%w: %w", ErrPersistenceFailure, err))
}
