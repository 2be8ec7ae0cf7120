package booking

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minimumPhoneDigits = 8
	phoneSymbols       = "+-() "
)

var (
	bookingCodePattern = regexp.MustCompile(`^BK-[0-9]{8}-[` + bookingCodeAlphabet + `]{4}$`)
	fieldValidator     = validator.New()
)

// RoomNumber identifies a configured room.
type RoomNumber int

// Int returns the numeric room number.
func (number RoomNumber) Int() int {
	return int(number)
}

// Amount is an integer currency amount.
type Amount int64

// NewAmount validates a strictly positive amount.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Int64 returns the raw amount.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// Room describes a bookable room.
type Room struct {
	Number RoomNumber
	Name   string
	Rate   Amount
}

// GuestInfo carries the guest contact details of a booking.
type GuestInfo struct {
	Name            string
	Phone           string
	Email           string
	SpecialRequests string
}

// NewGuestInfo validates and normalizes guest details.
func NewGuestInfo(name string, phone string, email string, specialRequests string) (GuestInfo, error) {
	guest := GuestInfo{
		Name:            strings.TrimSpace(name),
		Phone:           strings.TrimSpace(phone),
		Email:           strings.ToLower(strings.TrimSpace(email)),
		SpecialRequests: strings.TrimSpace(specialRequests),
	}
	if guest.Name == "" {
		return GuestInfo{}, fmt.Errorf("%w: name is required", ErrInvalidGuest)
	}
	if err := validatePhone(guest.Phone); err != nil {
		return GuestInfo{}, err
	}
	if err := fieldValidator.Var(guest.Email, "required,email"); err != nil {
		return GuestInfo{}, fmt.Errorf("%w: email %q is malformed", ErrInvalidGuest, guest.Email)
	}
	return guest, nil
}

func validatePhone(phone string) error {
	digits := 0
	for _, symbol := range phone {
		switch {
		case unicode.IsDigit(symbol):
			digits++
		case strings.ContainsRune(phoneSymbols, symbol):
		default:
			return fmt.Errorf("%w: phone contains %q", ErrInvalidGuest, symbol)
		}
	}
	if digits < minimumPhoneDigits {
		return fmt.Errorf("%w: phone needs at least %d digits", ErrInvalidGuest, minimumPhoneDigits)
	}
	return nil
}

// BookingCode is the human-facing booking identifier (BK-YYYYMMDD-XXXX).
type BookingCode struct {
	value string
}

// ParseBookingCode validates a booking code.
func ParseBookingCode(raw string) (BookingCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return BookingCode{}, fmt.Errorf("%w: empty value", ErrInvalidBookingCode)
	}
	if !bookingCodePattern.MatchString(normalized) {
		return BookingCode{}, fmt.Errorf("%w: %q", ErrInvalidBookingCode, raw)
	}
	return BookingCode{value: normalized}, nil
}

// String returns the code.
func (code BookingCode) String() string {
	return code.value
}

// IsZero reports whether the code is unset.
func (code BookingCode) IsZero() bool {
	return code.value == ""
}

// PaymentMethod records how a paid booking was settled.
type PaymentMethod string

const (
	PaymentMethodUnspecified PaymentMethod = ""
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodTransfer    PaymentMethod = "transfer"
)

// ParsePaymentMethod validates a payment method; the empty string is allowed.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentMethodUnspecified:
		return PaymentMethodUnspecified, nil
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodTransfer:
		return PaymentMethodTransfer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
	}
}

// String returns the method.
func (method PaymentMethod) String() string {
	return string(method)
}

// PaymentStatus names the variant of a PaymentState.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// String returns the status.
func (status PaymentStatus) String() string {
	return string(status)
}

// PaymentState is either Unpaid or Paid.
type PaymentState interface {
	Status() PaymentStatus
	paymentState()
}

// Unpaid is a booking awaiting payment. A nil HoldExpiresAt means the hold was released.
type Unpaid struct {
	HoldExpiresAt *time.Time
}

// Status returns PaymentStatusUnpaid.
func (Unpaid) Status() PaymentStatus { return PaymentStatusUnpaid }

func (Unpaid) paymentState() {}

// Paid is a settled booking.
type Paid struct {
	Method    PaymentMethod
	Reference string
	PaidAt    time.Time
}

// Status returns PaymentStatusPaid.
func (Paid) Status() PaymentStatus { return PaymentStatusPaid }

func (Paid) paymentState() {}

// PaymentAccount is the account guests transfer to, snapshotted on each booking.
type PaymentAccount struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// Booking is a stored reservation of one room for a stay.
type Booking struct {
	Code           BookingCode
	Room           RoomNumber
	CheckIn        Date
	CheckOut       Date
	Nights         int
	RoomRate       Amount
	TotalAmount    Amount
	Guest          GuestInfo
	Payment        PaymentState
	PaymentAccount PaymentAccount
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RoomBlock marks a room unavailable for one date.
type RoomBlock struct {
	Room   RoomNumber
	Date   Date
	Reason string
}

// BookingQuery selects bookings whose stay overlaps [From, To). Zero dates are unbounded.
type BookingQuery struct {
	Room *RoomNumber
	From Date
	To   Date
}

// BlockQuery selects blocks dated within [From, To). Zero dates are unbounded.
type BlockQuery struct {
	Room *RoomNumber
	From Date
	To   Date
}

// NightClaim reserves one night of one room for a booking.
type NightClaim struct {
	Room  RoomNumber
	Night Date
	Code  BookingCode
}
