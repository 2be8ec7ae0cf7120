package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
)

type nightKey struct {
	room RoomNumber
	date Date
}

// memoryStore is an in-memory Store that rolls back failed transactions.
type memoryStore struct {
	bookings    map[BookingCode]Booking
	claims      map[nightKey]BookingCode
	blocks      map[nightKey]RoomBlock
	reads       int
	beforeClaim func(store *memoryStore)
	lateCommits []func(store *memoryStore)
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		bookings: make(map[BookingCode]Booking),
		claims:   make(map[nightKey]BookingCode),
		blocks:   make(map[nightKey]RoomBlock),
	}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	bookings := make(map[BookingCode]Booking, len(store.bookings))
	for key, value := range store.bookings {
		bookings[key] = value
	}
	claims := make(map[nightKey]BookingCode, len(store.claims))
	for key, value := range store.claims {
		claims[key] = value
	}
	blocks := make(map[nightKey]RoomBlock, len(store.blocks))
	for key, value := range store.blocks {
		blocks[key] = value
	}
	err := fn(ctx, store)
	if err != nil {
		store.bookings, store.claims, store.blocks = bookings, claims, blocks
		for _, apply := range store.lateCommits {
			apply(store)
		}
	}
	store.lateCommits = nil
	return err
}

func (store *memoryStore) ListBookings(_ context.Context, query BookingQuery) ([]Booking, error) {
	store.reads++
	result := make([]Booking, 0)
	for _, booking := range store.bookings {
		if query.Room != nil && booking.Room != *query.Room {
			continue
		}
		if !query.To.IsZero() && !booking.CheckIn.Before(query.To) {
			continue
		}
		if !query.From.IsZero() && !booking.CheckOut.After(query.From) {
			continue
		}
		result = append(result, booking)
	}
	sort.Slice(result, func(left, right int) bool {
		if result[left].CheckIn != result[right].CheckIn {
			return result[left].CheckIn.Before(result[right].CheckIn)
		}
		return result[left].Code.String() < result[right].Code.String()
	})
	return result, nil
}

func (store *memoryStore) GetBooking(_ context.Context, code BookingCode) (Booking, error) {
	store.reads++
	booking, ok := store.bookings[code]
	if !ok {
		return Booking{}, fmt.Errorf("%w: %s", ErrBookingNotFound, code)
	}
	return booking, nil
}

func (store *memoryStore) InsertBooking(_ context.Context, booking Booking) error {
	if _, exists := store.bookings[booking.Code]; exists {
		return ErrDuplicateBookingCode
	}
	store.bookings[booking.Code] = booking
	return nil
}

func (store *memoryStore) UpdateBookingPayment(_ context.Context, booking Booking) error {
	if _, exists := store.bookings[booking.Code]; !exists {
		return ErrBookingNotFound
	}
	store.bookings[booking.Code] = booking
	return nil
}

func (store *memoryStore) ClaimNights(_ context.Context, claims []NightClaim) error {
	if store.beforeClaim != nil {
		hook := store.beforeClaim
		store.beforeClaim = nil
		hook(store)
	}
	for _, claim := range claims {
		if _, taken := store.claims[nightKey{room: claim.Room, date: claim.Night}]; taken {
			return ErrNightTaken
		}
	}
	for _, claim := range claims {
		store.claims[nightKey{room: claim.Room, date: claim.Night}] = claim.Code
	}
	return nil
}

func (store *memoryStore) ReleaseNightClaims(_ context.Context, codes []BookingCode) error {
	released := make(map[BookingCode]struct{}, len(codes))
	for _, code := range codes {
		released[code] = struct{}{}
	}
	for key, code := range store.claims {
		if _, ok := released[code]; ok {
			delete(store.claims, key)
		}
	}
	return nil
}

func (store *memoryStore) ListBlocks(_ context.Context, query BlockQuery) ([]RoomBlock, error) {
	store.reads++
	result := make([]RoomBlock, 0)
	for _, block := range store.blocks {
		if query.Room != nil && block.Room != *query.Room {
			continue
		}
		if !query.From.IsZero() && block.Date.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !block.Date.Before(query.To) {
			continue
		}
		result = append(result, block)
	}
	sort.Slice(result, func(left, right int) bool {
		if result[left].Room != result[right].Room {
			return result[left].Room < result[right].Room
		}
		return result[left].Date.Before(result[right].Date)
	})
	return result, nil
}

func (store *memoryStore) UpsertBlocks(_ context.Context, blocks []RoomBlock) error {
	for _, block := range blocks {
		store.blocks[nightKey{room: block.Room, date: block.Date}] = block
	}
	return nil
}

func (store *memoryStore) DeleteBlocks(_ context.Context, room RoomNumber, dates []Date) error {
	for _, date := range dates {
		delete(store.blocks, nightKey{room: room, date: date})
	}
	return nil
}

func (store *memoryStore) claimedBy(room RoomNumber, date Date) (BookingCode, bool) {
	code, ok := store.claims[nightKey{room: room, date: date}]
	return code, ok
}

// commitConcurrently simulates another writer committing booking between our read and our claim.
func (store *memoryStore) commitConcurrently(booking Booking) {
	apply := func(target *memoryStore) {
		target.bookings[booking.Code] = booking
		for _, night := range OccupiedNights(booking.CheckIn, booking.CheckOut) {
			target.claims[nightKey{room: booking.Room, date: night}] = booking.Code
		}
	}
	store.beforeClaim = func(target *memoryStore) {
		apply(target)
		target.lateCommits = append(target.lateCommits, apply)
	}
}

type failingStore struct {
	*memoryStore
	err error
}

func (store *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return store.err
}

func (store *failingStore) ListBookings(context.Context, BookingQuery) ([]Booking, error) {
	return nil, store.err
}

type testClock struct {
	current time.Time
}

func newTestClock(current time.Time) *testClock {
	return &testClock{current: current}
}

func (clock *testClock) Now() time.Time {
	return clock.current
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

type sequenceCodes struct {
	codes []string
	next  int
}

func (generator *sequenceCodes) NewBookingCode(time.Time) (BookingCode, error) {
	if generator.next >= len(generator.codes) {
		return BookingCode{}, errors.New("sequence exhausted")
	}
	raw := generator.codes[generator.next]
	generator.next++
	return ParseBookingCode(raw)
}

func mustDate(test *testing.T, raw string) Date {
	test.Helper()
	date, err := ParseDate(raw)
	if err != nil {
		test.Fatalf("parse date %q: %v", raw, err)
	}
	return date
}

func mustDates(test *testing.T, raws ...string) []Date {
	test.Helper()
	dates := make([]Date, 0, len(raws))
	for _, raw := range raws {
		dates = append(dates, mustDate(test, raw))
	}
	return dates
}

func mustCode(test *testing.T, raw string) BookingCode {
	test.Helper()
	code, err := ParseBookingCode(raw)
	if err != nil {
		test.Fatalf("parse code %q: %v", raw, err)
	}
	return code
}

func mustCatalog(test *testing.T, rooms ...Room) RoomCatalog {
	test.Helper()
	if len(rooms) == 0 {
		rooms = []Room{
			{Number: 1, Name: "Garden", Rate: 1200},
			{Number: 2, Name: "Deluxe", Rate: 1500},
			{Number: 3, Name: "Suite", Rate: 2500},
		}
	}
	catalog, err := NewRoomCatalog(rooms)
	if err != nil {
		test.Fatalf("room catalog: %v", err)
	}
	return catalog
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithLocation(time.UTC)}, options...)
	service, err := NewService(store, mustCatalog(test), clock.Now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func testGuest() GuestInfo {
	return GuestInfo{Name: "Ana Silva", Phone: "+66 81 234 5678", Email: "ana@example.com"}
}

func bookingRequest(test *testing.T, room RoomNumber, checkIn string, checkOut string) BookingRequest {
	test.Helper()
	return BookingRequest{
		Room:     room,
		CheckIn:  mustDate(test, checkIn),
		CheckOut: mustDate(test, checkOut),
		Guest:    testGuest(),
	}
}

func june1() time.Time {
	return time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
}

func assertDates(test *testing.T, got []Date, want ...string) {
	test.Helper()
	if len(got) != len(want) {
		test.Fatalf("expected dates %v, got %v", want, got)
	}
	for index, raw := range want {
		if got[index].String() != raw {
			test.Fatalf("expected dates %v, got %v", want, got)
		}
	}
}
