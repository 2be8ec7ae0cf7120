package httpapi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
)

type guestPayload struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type bookingRequest struct {
	Room     int          `json:"room"`
	CheckIn  string       `json:"check_in"`
	CheckOut string       `json:"check_out"`
	Guest    guestPayload `json:"guest"`
}

type paymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type staffBookingRequest struct {
	bookingRequest
	Paid *paymentRequest `json:"paid"`
}

const (
	actionConfirmPaid = "confirm_paid"
	actionReleaseHold = "release_hold"
)

type updateBookingRequest struct {
	Action    string `json:"action" binding:"required,oneof=confirm_paid release_hold"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type blockRequest struct {
	Room   int      `json:"room" binding:"required"`
	Dates  []string `json:"dates" binding:"required,min=1"`
	Reason string   `json:"reason"`
}

type roomPayload struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Rate   int64  `json:"rate"`
}

type bookingPayload struct {
	Code                 string                 `json:"code"`
	Room                 int                    `json:"room"`
	CheckIn              string                 `json:"check_in"`
	CheckOut             string                 `json:"check_out"`
	Nights               int                    `json:"nights"`
	RoomRate             int64                  `json:"room_rate"`
	TotalAmount          int64                  `json:"total_amount"`
	Guest                guestPayload           `json:"guest"`
	PaymentStatus        string                 `json:"payment_status"`
	PaymentMethod        string                 `json:"payment_method,omitempty"`
	PaymentReference     string                 `json:"payment_reference,omitempty"`
	PaidAt               *time.Time             `json:"paid_at,omitempty"`
	HoldExpiresAt        *time.Time             `json:"hold_expires_at,omitempty"`
	HoldRemainingSeconds int64                  `json:"hold_remaining_seconds"`
	Blocking             bool                   `json:"blocking"`
	PaymentAccount       booking.PaymentAccount `json:"payment_account"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

type blockPayload struct {
	Room   int    `json:"room"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type availabilityPayload struct {
	From     string              `json:"from"`
	To       string              `json:"to"`
	Occupied map[string][]string `json:"occupied"`
}

func (request bookingRequest) toDomain() (booking.BookingRequest, error) {
	checkIn, err := booking.ParseDate(request.CheckIn)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	checkOut, err := booking.ParseDate(request.CheckOut)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	guest, err := booking.NewGuestInfo(request.Guest.Name, request.Guest.Phone, request.Guest.Email, request.Guest.SpecialRequests)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	return booking.BookingRequest{
		Room:     booking.RoomNumber(request.Room),
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guest:    guest,
	}, nil
}

func (request paymentRequest) toDomain() (booking.PaymentConfirmation, error) {
	method, err := booking.ParsePaymentMethod(request.Method)
	if err != nil {
		return booking.PaymentConfirmation{}, err
	}
	return booking.PaymentConfirmation{Method: method, Reference: strings.TrimSpace(request.Reference)}, nil
}

func (request blockRequest) toDomain() (booking.RoomNumber, []booking.Date, error) {
	dates := make([]booking.Date, 0, len(request.Dates))
	for _, raw := range request.Dates {
		date, err := booking.ParseDate(raw)
		if err != nil {
			return 0, nil, err
		}
		dates = append(dates, date)
	}
	return booking.RoomNumber(request.Room), dates, nil
}

func newRoomPayloads(rooms []booking.Room) []roomPayload {
	payloads := make([]roomPayload, 0, len(rooms))
	for _, room := range rooms {
		payloads = append(payloads, roomPayload{Number: room.Number.Int(), Name: room.Name, Rate: room.Rate.Int64()})
	}
	return payloads
}

func newBookingPayload(record booking.Booking, blocking bool, holdRemaining time.Duration) bookingPayload {
	payload := bookingPayload{
		Code:        record.Code.String(),
		Room:        record.Room.Int(),
		CheckIn:     record.CheckIn.String(),
		CheckOut:    record.CheckOut.String(),
		Nights:      record.Nights,
		RoomRate:    record.RoomRate.Int64(),
		TotalAmount: record.TotalAmount.Int64(),
		Guest: guestPayload{
			Name:            record.Guest.Name,
			Phone:           record.Guest.Phone,
			Email:           record.Guest.Email,
			SpecialRequests: record.Guest.SpecialRequests,
		},
		Blocking:             blocking,
		HoldRemainingSeconds: int64(holdRemaining / time.Second),
		PaymentAccount:       record.PaymentAccount,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
	switch state := record.Payment.(type) {
	case booking.Paid:
		payload.PaymentStatus = state.Status().String()
		payload.PaymentMethod = state.Method.String()
		payload.PaymentReference = state.Reference
		paidAt := state.PaidAt
		payload.PaidAt = &paidAt
	case booking.Unpaid:
		payload.PaymentStatus = state.Status().String()
		payload.HoldExpiresAt = state.HoldExpiresAt
	}
	return payload
}

func newBlockPayloads(blocks []booking.RoomBlock) []blockPayload {
	payloads := make([]blockPayload, 0, len(blocks))
	for _, block := range blocks {
		payloads = append(payloads, blockPayload{Room: block.Room.Int(), Date: block.Date.String(), Reason: block.Reason})
	}
	return payloads
}

func newAvailabilityPayload(availability booking.Availability) availabilityPayload {
	rooms := make([]booking.RoomNumber, 0, len(availability.Occupied))
	for room := range availability.Occupied {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(left, right int) bool { return rooms[left] < rooms[right] })
	payload := availabilityPayload{
		From:     availability.From.String(),
		To:       availability.To.String(),
		Occupied: make(map[string][]string, len(rooms)),
	}
	for _, room := range rooms {
		dates := make([]string, 0, len(availability.Occupied[room]))
		for _, date := range availability.Occupied[room] {
			dates = append(dates, date.String())
		}
		payload.Occupied[strconv.Itoa(room.Int())] = dates
	}
	return payload
}

func dateStrings(dates []booking.Date) []string {
	values := make([]string, 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	return values
}

func parseRoomParam(raw string) (*booking.RoomNumber, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	number, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: room %q", booking.ErrUnknownRoom, raw)
	}
	room := booking.RoomNumber(number)
	return &room, nil
}

func parseDateParam(raw string) (booking.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return booking.Date{}, nil
	}
	return booking.ParseDate(raw)
}
