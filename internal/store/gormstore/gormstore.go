package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode      = "23505"
	pgSerializationFailure     = "40001"
	mysqlDuplicateEntry        = 1062
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
	errorOperationStore        = "store"
	errorSubjectBlock          = "block"
	errorSubjectBooking        = "booking"
	errorSubjectNight          = "night"
	errorSubjectTransaction    = "transaction"
	errorCodeClaim             = "claim"
	errorCodeCommit            = "commit"
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
)

// Store implements booking.Store using GORM.
type Store struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

// Option configures a Store.
type Option func(*Store)

// WithIsolation runs every WithTx transaction at level (use sql.LevelSerializable on PostgreSQL).
func WithIsolation(level sql.IsolationLevel) Option {
	return func(store *Store) {
		store.txOptions = &sql.TxOptions{Isolation: level}
	}
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// Migrate creates or updates the tables used by the store.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	var options []*sql.TxOptions
	if store.txOptions != nil {
		options = append(options, store.txOptions)
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, txOptions: store.txOptions})
	}, options...)
	if err == nil {
		return nil
	}
	var operationError booking.OperationError
	if errors.As(err, &operationError) || errors.Is(err, booking.ErrInvalidInput) || errors.Is(err, booking.ErrConflict) || errors.Is(err, booking.ErrNotFound) {
		return err
	}
	if IsSerializationFailure(err) {
		return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeSerialization, err)
	}
	return booking.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeCommit, err)
}

func (store *Store) ListBookings(ctx context.Context, query booking.BookingQuery) ([]booking.Booking, error) {
	statement := store.db.WithContext(ctx).Model(&Booking{})
	if query.Room != nil {
		statement = statement.Where("room_number = ?", query.Room.Int())
	}
	if !query.To.IsZero() {
		statement = statement.Where("check_in < ?", query.To.String())
	}
	if !query.From.IsZero() {
		statement = statement.Where("check_out > ?", query.From.String())
	}
	var rows []Booking
	if err := statement.Order("check_in ASC").Order("room_number ASC").Order("code ASC").Find(&rows).Error; err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapBooking(row)
		if err != nil {
			return nil, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, mapped)
	}
	return bookings, nil
}

func (store *Store) GetBooking(ctx context.Context, code booking.BookingCode) (booking.Booking, error) {
	var row Booking
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Booking{}, booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeGet, booking.ErrBookingNotFound)
		}
		return booking.Booking{}, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeGet, err)
	}
	mapped, err := mapBooking(row)
	if err != nil {
		return booking.Booking{}, booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	return mapped, nil
}

func (store *Store) InsertBooking(ctx context.Context, record booking.Booking) error {
	row, err := bookingRow(record)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, bookingCodeKey) {
		return booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateBookingCode)
	}
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdateBookingPayment(ctx context.Context, record booking.Booking) error {
	row, err := bookingRow(record)
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeInvalid, err)
	}
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("code = ?", row.Code).
		Updates(map[string]any{
			"payment_status":    row.PaymentStatus,
			"payment_method":    row.PaymentMethod,
			"payment_reference": row.PaymentReference,
			"paid_at":           row.PaidAt,
			"hold_expires_at":   row.HoldExpiresAt,
			"updated_at":        row.UpdatedAt,
		})
	if result.Error != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBooking, errorCodeUpdatePayment, result.Error)
	}
	if result.RowsAffected == 0 {
		return booking.WrapError(errorOperationStore, errorSubjectBooking, errorCodeUpdatePayment, booking.ErrBookingNotFound)
	}
	return nil
}

func (store *Store) ClaimNights(ctx context.Context, claims []booking.NightClaim) error {
	if len(claims) == 0 {
		return nil
	}
	rows := make([]BookingNight, 0, len(claims))
	for _, claim := range claims {
		rows = append(rows, BookingNight{
			RoomNumber:  claim.Room.Int(),
			Night:       claim.Night.String(),
			BookingCode: claim.Code.String(),
		})
	}
	err := store.db.WithContext(ctx).Create(&rows).Error
	if isUniqueViolation(err, bookingNightKey) {
		return booking.WrapError(errorOperationStore, errorSubjectNight, errorCodeDuplicate, booking.ErrNightTaken)
	}
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectNight, errorCodeClaim, err)
	}
	return nil
}

func (store *Store) ReleaseNightClaims(ctx context.Context, codes []booking.BookingCode) error {
	if len(codes) == 0 {
		return nil
	}
	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, code.String())
	}
	if err := store.db.WithContext(ctx).Where("booking_code IN ?", values).Delete(&BookingNight{}).Error; err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectNight, errorCodeRelease, err)
	}
	return nil
}

func (store *Store) ListBlocks(ctx context.Context, query booking.BlockQuery) ([]booking.RoomBlock, error) {
	statement := store.db.WithContext(ctx).Model(&RoomBlock{})
	if query.Room != nil {
		statement = statement.Where("room_number = ?", query.Room.Int())
	}
	if !query.From.IsZero() {
		statement = statement.Where("block_date >= ?", query.From.String())
	}
	if !query.To.IsZero() {
		statement = statement.Where("block_date < ?", query.To.String())
	}
	var rows []RoomBlock
	if err := statement.Order("room_number ASC").Order("block_date ASC").Find(&rows).Error; err != nil {
		return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeList, err)
	}
	blocks := make([]booking.RoomBlock, 0, len(rows))
	for _, row := range rows {
		date, err := booking.ParseDate(row.BlockDate)
		if err != nil {
			return nil, booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeInvalid, err)
		}
		blocks = append(blocks, booking.RoomBlock{Room: booking.RoomNumber(row.RoomNumber), Date: date, Reason: row.Reason})
	}
	return blocks, nil
}

func (store *Store) UpsertBlocks(ctx context.Context, blocks []booking.RoomBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]RoomBlock, 0, len(blocks))
	for _, block := range blocks {
		rows = append(rows, RoomBlock{
			RoomNumber: block.Room.Int(),
			BlockDate:  block.Date.String(),
			Reason:     block.Reason,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_number"}, {Name: "block_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) DeleteBlocks(ctx context.Context, room booking.RoomNumber, dates []booking.Date) error {
	if len(dates) == 0 {
		return nil
	}
	values := make([]string, 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	err := store.db.WithContext(ctx).
		Where("room_number = ? AND block_date IN ?", room.Int(), values).
		Delete(&RoomBlock{}).Error
	if err != nil {
		return booking.PersistenceError(errorOperationStore, errorSubjectBlock, errorCodeDelete, err)
	}
	return nil
}

func bookingRow(record booking.Booking) (Booking, error) {
	account, err := json.Marshal(record.PaymentAccount)
	if err != nil {
		return Booking{}, err
	}
	row := Booking{
		Code:            record.Code.String(),
		RoomNumber:      record.Room.Int(),
		CheckIn:         record.CheckIn.String(),
		CheckOut:        record.CheckOut.String(),
		Nights:          record.Nights,
		RoomRate:        record.RoomRate.Int64(),
		TotalAmount:     record.TotalAmount.Int64(),
		GuestName:       record.Guest.Name,
		GuestPhone:      record.Guest.Phone,
		GuestEmail:      record.Guest.Email,
		SpecialRequests: record.Guest.SpecialRequests,
		PaymentAccount:  datatypes.JSON(account),
		CreatedAt:       record.CreatedAt.UTC(),
		UpdatedAt:       record.UpdatedAt.UTC(),
	}
	switch state := record.Payment.(type) {
	case booking.Paid:
		row.PaymentStatus = booking.PaymentStatusPaid.String()
		paidAt := state.PaidAt.UTC()
		row.PaidAt = &paidAt
		row.PaymentMethod = optionalString(state.Method.String())
		row.PaymentReference = optionalString(state.Reference)
	case booking.Unpaid:
		row.PaymentStatus = booking.PaymentStatusUnpaid.String()
		if state.HoldExpiresAt != nil {
			holdExpiresAt := state.HoldExpiresAt.UTC()
			row.HoldExpiresAt = &holdExpiresAt
		}
	default:
		return Booking{}, errors.New("booking has no payment state")
	}
	return row, nil
}

func mapBooking(row Booking) (booking.Booking, error) {
	code, err := booking.ParseBookingCode(row.Code)
	if err != nil {
		return booking.Booking{}, err
	}
	checkIn, err := booking.ParseDate(row.CheckIn)
	if err != nil {
		return booking.Booking{}, err
	}
	checkOut, err := booking.ParseDate(row.CheckOut)
	if err != nil {
		return booking.Booking{}, err
	}
	var account booking.PaymentAccount
	if len(row.PaymentAccount) > 0 {
		if err := json.Unmarshal(row.PaymentAccount, &account); err != nil {
			return booking.Booking{}, err
		}
	}
	payment, err := mapPayment(row)
	if err != nil {
		return booking.Booking{}, err
	}
	return booking.Booking{
		Code:        code,
		Room:        booking.RoomNumber(row.RoomNumber),
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Nights:      row.Nights,
		RoomRate:    booking.Amount(row.RoomRate),
		TotalAmount: booking.Amount(row.TotalAmount),
		Guest: booking.GuestInfo{
			Name:            row.GuestName,
			Phone:           row.GuestPhone,
			Email:           row.GuestEmail,
			SpecialRequests: row.SpecialRequests,
		},
		Payment:        payment,
		PaymentAccount: account,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

func mapPayment(row Booking) (booking.PaymentState, error) {
	switch booking.PaymentStatus(row.PaymentStatus) {
	case booking.PaymentStatusPaid:
		paid := booking.Paid{Method: booking.PaymentMethod(stringOrEmpty(row.PaymentMethod)), Reference: stringOrEmpty(row.PaymentReference)}
		if row.PaidAt != nil {
			paid.PaidAt = row.PaidAt.UTC()
		}
		return paid, nil
	case booking.PaymentStatusUnpaid:
		unpaid := booking.Unpaid{}
		if row.HoldExpiresAt != nil {
			holdExpiresAt := row.HoldExpiresAt.UTC()
			unpaid.HoldExpiresAt = &holdExpiresAt
		}
		return unpaid, nil
	default:
		return nil, errors.New("unknown payment status " + row.PaymentStatus)
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// uniqueKey names one uniqueness constraint the way each driver reports it.
type uniqueKey struct {
	postgres string
	mysql    string
	sqlite   string
}

var (
	bookingCodeKey = uniqueKey{
		postgres: "uniq_bookings_code",
		mysql:    "uniq_bookings_code",
		sqlite:   "bookings.code",
	}
	bookingNightKey = uniqueKey{
		postgres: "booking_nights_pkey",
		mysql:    "PRIMARY",
		sqlite:   "booking_nights.room_number, booking_nights.night",
	}
)

// isUniqueViolation reports whether err is a duplicate on key. NOT NULL, CHECK and other
// constraint failures are not duplicates.
func isUniqueViolation(err error, key uniqueKey) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == key.postgres
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// MySQL 8 qualifies the key with the table name: for key 'booking_nights.PRIMARY'.
		return mysqlErr.Number == mysqlDuplicateEntry &&
			(strings.HasSuffix(mysqlErr.Message, "'"+key.mysql+"'") || strings.HasSuffix(mysqlErr.Message, "."+key.mysql+"'"))
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return (code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey) &&
			strings.Contains(sqliteErr.Error(), "constraint failed: "+key.sqlite)
	}
	return false
}

// IsSerializationFailure reports whether err is a retryable PostgreSQL serialization conflict.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}
