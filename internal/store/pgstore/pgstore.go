package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintBookingCode      = "uniq_bookings_code"
	constraintBookingNightsKey = "booking_nights_pkey"
	pgUniqueViolationCode      = "23505"
	pgSerializationFailure     = "40001"
	errorOperationStore        = "store"
	errorSubjectBlock          = "block"
	errorSubjectBooking        = "booking"
	errorSubjectNight          = "night"
	errorSubjectSchema         = "schema"
	errorSubjectTransaction    = "transaction"
	errorCodeBegin             = "begin"
	errorCodeClaim             = "claim"
	errorCodeCommit            = "commit"
	errorCodeCreate            = "create"
	errorCodeDelete            = "delete"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeRelease           = "release"
	errorCodeSerialization     = "serialization"
	errorCodeUpdatePayment     = "update_payment"
	errorCodeUpsert            = "upsert"

	// Schema matches the tables produced by gormstore.Migrate so both stores can share a database.
	Schema = `
		create table if not exists bookings (
			booking_id varchar(36) primary key,
			code varchar(16) not null,
			room_number bigint not null,
			check_in varchar(10) not null,
			check_out varchar(10) not null,
			nights bigint not null,
			room_rate bigint not null,
			total_amount bigint not null,
			guest_name varchar(200) not null,
			guest_phone varchar(40) not null,
			guest_email varchar(254) not null,
			special_requests text,
			payment_status varchar(16) not null,
			payment_method varchar(16),
			payment_reference varchar(200),
			paid_at timestamptz,
			hold_expires_at timestamptz,
			payment_account jsonb not null,
			created_at timestamptz not null,
			updated_at timestamptz not null
		);
		create unique index if not exists uniq_bookings_code on bookings (code);
		create index if not exists idx_bookings_room_stay on bookings (room_number, check_in);
		create table if not exists booking_nights (
			room_number bigint not null,
			night varchar(10) not null,
			booking_code varchar(16) not null,
			created_at timestamptz not null,
			primary key (room_number, night)
		);
		create index if not exists idx_booking_nights_code on booking_nights (booking_code);
		create table if not exists room_blocks (
			room_number bigint not null,
			block_date varchar(10) not null,
			reason varchar(500) not null,
			created_at timestamptz not null,
			updated_at timestamptz not null,
			primary key (room_number, block_date)
		);
	`

	bookingColumns = `
		code, room_number, check_in, check_out, nights, room_rate, total_amount,
		guest_name, guest_phone, guest_email, coalesce(special_requests, ''),
		payment_status, coalesce(payment_method, ''), coalesce(payment_reference, ''),
		paid_at, hold_expires_at, payment_account::text, created_at, updated_at
	`

	sqlListBookings = `
		select ` + bookingColumns + `
		from bookings
		where ($1::bigint is null or room_number = $1)
		and ($2::text = '' or check_out > $2)
		and ($3::text = '' or check_in < $3)
		order by check_in, room_number, code
	`

	sqlSelectBooking = `
		select ` + bookingColumns + `
		from bookings
		where code = $1
		for update
	`

	sqlInsertBooking = `
		insert into bookings(
			booking_id, code, room_number, check_in, check_out, nights, room_rate, total_amount,
			guest_name, guest_phone, guest_email, special_requests,
			payment_status, payment_method, payment_reference, paid_at, hold_expires_at,
			payment_account, created_at, updated_at
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, nullif($14, ''), nullif($15, ''), $16, $17, $18::jsonb, $19, $20)
	`

	sqlUpdateBookingPayment = `
		update bookings
		set payment_status = $2, payment_method = nullif($3, ''), payment_reference = nullif($4, ''),
			paid_at = $5, hold_expires_at = $6, updated_at = $7
		where code = $1
	`

	sqlInsertNight = `
		insert into booking_nights(room_number, night, booking_code, created_at)
		values($1, $2, $3, now())
	`

	sqlReleaseNights = `
		delete from booking_nights where booking_code = any($1)
	`

	sqlListBlocks = `
		select room_number, block_date, reason
		from room_blocks
		where ($1::bigint is null or room_number = $1)
		and ($2::text = '' or block_date >= $2)
		and ($3::text = '' or block_date < $3)
		order by room_number, block_date
	`

	sqlUpsertBlock = `
		insert into room_blocks(room_number, block_date, reason, created_at, updated_at)
		values($1, $2, $3, now(), now())
		on conflict (room_number, block_date) do update set reason = excluded.reason, updated_at = excluded.updated_at
	`

	sqlDeleteBlocks = `
		delete from room_blocks where room_number = $1 and block_date = any($2)
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements booking.Store using a pgx connection pool (autocommit).
// Transactions run at serializable isolation.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements booking.Store for an active transaction.
type TxStore struct {
	queries
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// EnsureSchema creates the tables when they do not exist.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, Schema); err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		if isSerializationFailure(err) {
			return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeSerialization, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeSerialization, err)
		}
		return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// WithTx runs fn inside the already open transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return fn(ctx, store)
}

func (queries queries) ListBookings(ctx context.Context, query booking.BookingQuery) ([]booking.Booking, error) {
	rows, err := queries.db.Query(ctx, sqlListBookings, optionalRoom(query.Room), optionalDate(query.From), optionalDate(query.To))
	if err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeList, err)
	}
	defer rows.Close()
	bookings := make([]booking.Booking, 0)
	for rows.Next() {
		record, err := scanBooking(rows)
		if err != nil {
			return nil, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, record)
	}
	if err := rows.Err(); err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeList, err)
	}
	return bookings, nil
}

func (queries queries) GetBooking(ctx context.Context, code booking.BookingCode) (booking.Booking, error) {
	record, err := scanBooking(queries.db.QueryRow(ctx, sqlSelectBooking, code.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Booking{}, booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeGet, booking.ErrBookingNotFound)
		}
		return booking.Booking{}, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeGet, err)
	}
	return record, nil
}

func (queries queries) InsertBooking(ctx context.Context, record booking.Booking) error {
	columns, err := newPaymentColumns(record.Payment)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	account, err := json.Marshal(record.PaymentAccount)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	_, err = queries.db.Exec(ctx, sqlInsertBooking,
		uuid.NewString(),
		record.Code.String(),
		record.Room.Int(),
		record.CheckIn.String(),
		record.CheckOut.String(),
		record.Nights,
		record.RoomRate.Int64(),
		record.TotalAmount.Int64(),
		record.Guest.Name,
		record.Guest.Phone,
		record.Guest.Email,
		record.Guest.SpecialRequests,
		columns.status,
		columns.method,
		columns.reference,
		columns.paidAt,
		columns.holdExpiresAt,
		string(account),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err, constraintBookingCode) {
		return booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateBookingCode)
	}
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInsert, err)
	}
	return nil
}

func (queries queries) UpdateBookingPayment(ctx context.Context, record booking.Booking) error {
	columns, err := newPaymentColumns(record.Payment)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	tag, err := queries.db.Exec(ctx, sqlUpdateBookingPayment,
		record.Code.String(),
		columns.status,
		columns.method,
		columns.reference,
		columns.paidAt,
		columns.holdExpiresAt,
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeUpdatePayment, err)
	}
	if tag.RowsAffected() == 0 {
		return booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeUpdatePayment, booking.ErrBookingNotFound)
	}
	return nil
}

func (queries queries) ClaimNights(ctx context.Context, claims []booking.NightClaim) error {
	for _, claim := range claims {
		_, err := queries.db.Exec(ctx, sqlInsertNight, claim.Room.Int(), claim.Night.String(), claim.Code.String())
		if isUniqueViolation(err, constraintBookingNightsKey) {
			return booking.WrapError(errorOperationStore, errorSubjectNight, errorCodeDuplicate, booking.ErrNightTaken)
		}
		if err != nil {
			return booking.PersistenceError(errorOperationStore, errorSubjectNight, errorCodeClaim, err)
		}
	}
	return nil
}

func (queries queries) ReleaseNightClaims(ctx context.Context, codes []booking.BookingCode) error {
	if len(codes) == 0 {
		return nil
	}
	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, code.String())
	}
	if _, err := queries.db.Exec(ctx, sqlReleaseNights, values); err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectNight, errorCodeRelease, err)
	}
	return nil
}

func (queries queries) ListBlocks(ctx context.Context, query booking.BlockQuery) ([]booking.RoomBlock, error) {
	rows, err := queries.db.Query(ctx, sqlListBlocks, optionalRoom(query.Room), optionalDate(query.From), optionalDate(query.To))
	if err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeList, err)
	}
	defer rows.Close()
	blocks := make([]booking.RoomBlock, 0)
	for rows.Next() {
		var (
			room   int64
			date   string
			reason string
		)
		if err := rows.Scan(&room, &date, &reason); err != nil {
			return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeList, err)
		}
		parsed, err := booking.ParseDate(date)
		if err != nil {
			return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeInvalid, err)
		}
		blocks = append(blocks, booking.RoomBlock{Room: booking.RoomNumber(room), Date: parsed, Reason: reason})
	}
	if err := rows.Err(); err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeList, err)
	}
	return blocks, nil
}

func (queries queries) UpsertBlocks(ctx context.Context, blocks []booking.RoomBlock) error {
	for _, block := range blocks {
		if _, err := queries.db.Exec(ctx, sqlUpsertBlock, block.Room.Int(), block.Date.String(), block.Reason); err != nil {
			return booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeUpsert, err)
		}
	}
	return nil
}

func (queries queries) DeleteBlocks(ctx context.Context, room booking.RoomNumber, dates []booking.Date) error {
	if len(dates) == 0 {
		return nil
	}
	values := make([]string, 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	if _, err := queries.db.Exec(ctx, sqlDeleteBlocks, room.Int(), values); err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeDelete, err)
	}
	return nil
}

type paymentColumns struct {
	status        string
	method        string
	reference     string
	paidAt        *time.Time
	holdExpiresAt *time.Time
}

func newPaymentColumns(state booking.PaymentState) (paymentColumns, error) {
	switch payment := state.(type) {
	case booking.Paid:
		paidAt := payment.PaidAt.UTC()
		return paymentColumns{
			status:    booking.PaymentStatusPaid.String(),
			method:    payment.Method.String(),
			reference: payment.Reference,
			paidAt:    &paidAt,
		}, nil
	case booking.Unpaid:
		columns := paymentColumns{status: booking.PaymentStatusUnpaid.String()}
		if payment.HoldExpiresAt != nil {
			holdExpiresAt := payment.HoldExpiresAt.UTC()
			columns.holdExpiresAt = &holdExpiresAt
		}
		return columns, nil
	default:
		return paymentColumns{}, errors.New("booking has no payment state")
	}
}

func (columns paymentColumns) state() (booking.PaymentState, error) {
	switch booking.PaymentStatus(columns.status) {
	case booking.PaymentStatusPaid:
		paid := booking.Paid{Method: booking.PaymentMethod(columns.method), Reference: columns.reference}
		if columns.paidAt != nil {
			paid.PaidAt = columns.paidAt.UTC()
		}
		return paid, nil
	case booking.PaymentStatusUnpaid:
		unpaid := booking.Unpaid{}
		if columns.holdExpiresAt != nil {
			holdExpiresAt := columns.holdExpiresAt.UTC()
			unpaid.HoldExpiresAt = &holdExpiresAt
		}
		return unpaid, nil
	default:
		return nil, fmt.Errorf("unknown payment status %q", columns.status)
	}
}

func scanBooking(row pgx.Row) (booking.Booking, error) {
	var (
		code, checkIn, checkOut string
		room, nights            int64
		rate, total             int64
		guest                   booking.GuestInfo
		columns                 paymentColumns
		account                 string
		createdAt, updatedAt    time.Time
	)
	err := row.Scan(
		&code, &room, &checkIn, &checkOut, &nights, &rate, &total,
		&guest.Name, &guest.Phone, &guest.Email, &guest.SpecialRequests,
		&columns.status, &columns.method, &columns.reference,
		&columns.paidAt, &columns.holdExpiresAt, &account, &createdAt, &updatedAt,
	)
	if err != nil {
		return booking.Booking{}, err
	}
	parsedCode, err := booking.ParseBookingCode(code)
	if err != nil {
		return booking.Booking{}, err
	}
	parsedCheckIn, err := booking.ParseDate(checkIn)
	if err != nil {
		return booking.Booking{}, err
	}
	parsedCheckOut, err := booking.ParseDate(checkOut)
	if err != nil {
		return booking.Booking{}, err
	}
	payment, err := columns.state()
	if err != nil {
		return booking.Booking{}, err
	}
	var paymentAccount booking.PaymentAccount
	if err := json.Unmarshal([]byte(account), &paymentAccount); err != nil {
		return booking.Booking{}, err
	}
	return booking.Booking{
		Code:           parsedCode,
		Room:           booking.RoomNumber(room),
		CheckIn:        parsedCheckIn,
		CheckOut:       parsedCheckOut,
		Nights:         int(nights),
		RoomRate:       booking.Amount(rate),
		TotalAmount:    booking.Amount(total),
		Guest:          guest,
		Payment:        payment,
		PaymentAccount: paymentAccount,
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}, nil
}

func optionalRoom(room *booking.RoomNumber) *int64 {
	if room == nil {
		return nil
	}
	value := int64(room.Int())
	return &value
}

func optionalDate(date booking.Date) string {
	if date.IsZero() {
		return ""
	}
	return date.String()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}
