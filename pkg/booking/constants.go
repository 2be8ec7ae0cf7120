package booking

import "time"

const (
	operationCreateBooking      = "create_booking"
	operationCreateStaffBooking = "create_staff_booking"
	operationConfirmPaid        = "confirm_paid"
	operationReleaseHold        = "release_hold"
	operationBlockDates         = "block_dates"
	operationUnblockDates       = "unblock_dates"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationService = "service"
	errorSubjectBooking   = "booking"
	errorSubjectCode      = "code"
	errorCodeExhausted    = "exhausted"
	errorCodeGenerate     = "generate"

	// DefaultHoldDuration is how long a guest booking blocks its room while unpaid.
	DefaultHoldDuration = 30 * time.Minute

	maxCodeAttempts      = 5
	maxStayNights        = 60
	maxAvailabilityDays  = 366
	bookingCodeAlphabet  = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	bookingCodeSuffixLen = 4
	bookingCodePrefix    = "BK"
	bookingCodeDayLayout = "20060102"
)

// Operation names reported in OperationLog.Operation.
const (
	OperationCreateBooking      = operationCreateBooking
	OperationCreateStaffBooking = operationCreateStaffBooking
	OperationConfirmPaid        = operationConfirmPaid
	OperationReleaseHold        = operationReleaseHold
	OperationBlockDates         = operationBlockDates
	OperationUnblockDates       = operationUnblockDates
	OperationStatusOK           = operationStatusOK
	OperationStatusError        = operationStatusError
)
