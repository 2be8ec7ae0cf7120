package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the availability and booking-hold logic over a Store.
type Service struct {
	store          Store
	catalog        RoomCatalog
	nowFn          func() time.Time
	logger         OperationLogger
	codes          CodeGenerator
	holdDuration   time.Duration
	location       *time.Location
	paymentAccount PaymentAccount
}

// NewService wires a Service.
func NewService(store Store, catalog RoomCatalog, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if len(catalog.rooms) == 0 {
		return nil, fmt.Errorf("%w: room catalog is empty", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:        store,
		catalog:      catalog,
		nowFn:        now,
		codes:        RandomCodeGenerator{},
		holdDuration: DefaultHoldDuration,
		location:     time.Local,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// WithHoldDuration overrides how long new unpaid bookings block their room.
func WithHoldDuration(duration time.Duration) ServiceOption {
	return func(service *Service) {
		if duration > 0 {
			service.holdDuration = duration
		}
	}
}

// WithCodeGenerator replaces the crypto-random booking code generator.
func WithCodeGenerator(generator CodeGenerator) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.codes = generator
		}
	}
}

// WithLocation sets the zone whose calendar decides "today" and code dates.
func WithLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithPaymentAccount sets the account snapshotted onto new bookings.
func WithPaymentAccount(account PaymentAccount) ServiceOption {
	return func(service *Service) {
		service.paymentAccount = account
	}
}

// BookingRequest describes a stay to reserve.
type BookingRequest struct {
	Room     RoomNumber
	CheckIn  Date
	CheckOut Date
	Guest    GuestInfo
}

// PaymentConfirmation carries the optional details recorded when a booking is paid.
type PaymentConfirmation struct {
	Method    PaymentMethod
	Reference string
}

// StaffBookingRequest is a BookingRequest entered by staff; Paid marks it settled at creation.
type StaffBookingRequest struct {
	BookingRequest
	Paid *PaymentConfirmation
}

type creationPolicy struct {
	allowPastCheckIn bool
	paid             *PaymentConfirmation
}

// Rooms returns the configured rooms.
func (service *Service) Rooms() []Room {
	return service.catalog.Rooms()
}

// HoldDuration returns the hold applied to new unpaid bookings.
func (service *Service) HoldDuration() time.Duration {
	return service.holdDuration
}

// Now returns the service clock reading.
func (service *Service) Now() time.Time {
	return service.nowFn()
}

// Today returns the current calendar day in the hotel's location.
func (service *Service) Today() Date {
	return DateOf(service.nowFn(), service.location)
}

// CreateBooking reserves a room for a guest. The booking starts unpaid with a hold.
func (service *Service) CreateBooking(ctx context.Context, request BookingRequest) (Booking, error) {
	created, operationError := service.createBooking(ctx, request, creationPolicy{})
	service.logOperation(ctx, creationLog(operationCreateBooking, request, created, operationError))
	return created, operationError
}

// CreateStaffBooking reserves a room on behalf of a guest; it may be back-dated and may start paid.
func (service *Service) CreateStaffBooking(ctx context.Context, request StaffBookingRequest) (Booking, error) {
	created, operationError := service.createBooking(ctx, request.BookingRequest, creationPolicy{allowPastCheckIn: true, paid: request.Paid})
	service.logOperation(ctx, creationLog(operationCreateStaffBooking, request.BookingRequest, created, operationError))
	return created, operationError
}

func (service *Service) createBooking(ctx context.Context, request BookingRequest, policy creationPolicy) (Booking, error) {
	room, guest, err := service.validateBookingRequest(request, policy)
	if err != nil {
		return Booking{}, err
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		now := service.nowFn()
		candidate, err := service.newBooking(room, request, guest, policy.paid, now)
		if err != nil {
			return Booking{}, err
		}
		err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if err := service.secureNights(ctx, transactionStore, candidate, now); err != nil {
				return err
			}
			return transactionStore.InsertBooking(ctx, candidate)
		})
		switch {
		case err == nil:
			return candidate, nil
		case errors.Is(err, ErrDuplicateBookingCode):
			continue
		case errors.Is(err, ErrNightTaken):
			return Booking{}, service.describeLostRace(ctx, candidate)
		default:
			return Booking{}, err
		}
	}
	return Booking{}, WrapError(errorOperationService, errorSubjectCode, errorCodeExhausted, ErrDuplicateBookingCode)
}

func (service *Service) validateBookingRequest(request BookingRequest, policy creationPolicy) (Room, GuestInfo, error) {
	room, err := service.catalog.Lookup(request.Room)
	if err != nil {
		return Room{}, GuestInfo{}, err
	}
	if request.CheckIn.IsZero() || request.CheckOut.IsZero() {
		return Room{}, GuestInfo{}, fmt.Errorf("%w: check-in and check-out are required", ErrInvalidStayRange)
	}
	nights := NightsBetween(request.CheckIn, request.CheckOut)
	if nights <= 0 {
		return Room{}, GuestInfo{}, fmt.Errorf("%w: check-out %s must be after check-in %s", ErrInvalidStayRange, request.CheckOut, request.CheckIn)
	}
	if nights > maxStayNights {
		return Room{}, GuestInfo{}, fmt.Errorf("%w: stay of %d nights exceeds %d", ErrInvalidStayRange, nights, maxStayNights)
	}
	if !policy.allowPastCheckIn && IsPastDate(request.CheckIn, service.nowFn(), service.location) {
		return Room{}, GuestInfo{}, fmt.Errorf("%w: check-in %s", ErrPastDate, request.CheckIn)
	}
	guest, err := NewGuestInfo(request.Guest.Name, request.Guest.Phone, request.Guest.Email, request.Guest.SpecialRequests)
	if err != nil {
		return Room{}, GuestInfo{}, err
	}
	if policy.paid != nil {
		if _, err := ParsePaymentMethod(policy.paid.Method.String()); err != nil {
			return Room{}, GuestInfo{}, err
		}
	}
	return room, guest, nil
}

func (service *Service) newBooking(room Room, request BookingRequest, guest GuestInfo, paid *PaymentConfirmation, now time.Time) (Booking, error) {
	code, err := service.codes.NewBookingCode(now.In(service.location))
	if err != nil {
		return Booking{}, err
	}
	nights := NightsBetween(request.CheckIn, request.CheckOut)
	var payment PaymentState
	if paid != nil {
		payment = Paid{Method: paid.Method, Reference: paid.Reference, PaidAt: now}
	} else {
		holdExpiresAt := now.Add(service.holdDuration)
		payment = Unpaid{HoldExpiresAt: &holdExpiresAt}
	}
	return Booking{
		Code:           code,
		Room:           room.Number,
		CheckIn:        request.CheckIn,
		CheckOut:       request.CheckOut,
		Nights:         nights,
		RoomRate:       room.Rate,
		TotalAmount:    Amount(int64(nights) * room.Rate.Int64()),
		Guest:          guest,
		Payment:        payment,
		PaymentAccount: service.paymentAccount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// secureNights re-reads the room inside the transaction, rejects the stay if any night is
// occupied by another blocking booking or a block, prunes claims held by lapsed bookings, and
// claims the stay's nights for candidate.
func (service *Service) secureNights(ctx context.Context, transactionStore Store, candidate Booking, now time.Time) error {
	room := candidate.Room
	existing, err := transactionStore.ListBookings(ctx, BookingQuery{Room: &room, From: candidate.CheckIn, To: candidate.CheckOut})
	if err != nil {
		return err
	}
	blocks, err := transactionStore.ListBlocks(ctx, BlockQuery{Room: &room, From: candidate.CheckIn, To: candidate.CheckOut})
	if err != nil {
		return err
	}
	others := make([]Booking, 0, len(existing))
	stale := []BookingCode{candidate.Code}
	for _, booking := range existing {
		if booking.Code == candidate.Code {
			continue
		}
		others = append(others, booking)
		if !IsBlocking(booking, now) {
			stale = append(stale, booking.Code)
		}
	}
	nights := OccupiedNights(candidate.CheckIn, candidate.CheckOut)
	conflicts := intersectDates(nights, ComputeOccupiedDates(others, blocks, now)[room])
	if len(conflicts) > 0 {
		return ConflictError{Room: room, Dates: conflicts}
	}
	if err := transactionStore.ReleaseNightClaims(ctx, stale); err != nil {
		return err
	}
	claims := make([]NightClaim, 0, len(nights))
	for _, night := range nights {
		claims = append(claims, NightClaim{Room: room, Night: night, Code: candidate.Code})
	}
	return transactionStore.ClaimNights(ctx, claims)
}

// describeLostRace names the nights a concurrent writer took between our read and our claim.
func (service *Service) describeLostRace(ctx context.Context, candidate Booking) error {
	nights := OccupiedNights(candidate.CheckIn, candidate.CheckOut)
	room := candidate.Room
	conflicts := nights
	existing, listErr := service.store.ListBookings(ctx, BookingQuery{Room: &room, From: candidate.CheckIn, To: candidate.CheckOut})
	blocks, blockErr := service.store.ListBlocks(ctx, BlockQuery{Room: &room, From: candidate.CheckIn, To: candidate.CheckOut})
	if listErr == nil && blockErr == nil {
		if visible := intersectDates(nights, ComputeOccupiedDates(existing, blocks, service.nowFn())[room]); len(visible) > 0 {
			conflicts = visible
		}
	}
	return ConflictError{Room: room, Dates: conflicts}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Actor == "" {
		entry.Actor = ActorFrom(ctx)
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func creationLog(operation string, request BookingRequest, created Booking, operationError error) OperationLog {
	entry := OperationLog{
		Operation:   operation,
		BookingCode: created.Code,
		Room:        request.Room,
		CheckIn:     request.CheckIn,
		CheckOut:    request.CheckOut,
		Error:       operationError,
	}
	if created.Payment != nil {
		entry.Payment = created.Payment.Status()
	}
	if dates, ok := ConflictDates(operationError); ok {
		entry.Dates = dates
	}
	return entry
}
