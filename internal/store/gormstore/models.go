package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Booking mirrors the bookings table. Stay dates are stored as YYYY-MM-DD strings.
type Booking struct {
	BookingID        string         `gorm:"size:36;primaryKey"`
	Code             string         `gorm:"size:16;not null;uniqueIndex:uniq_bookings_code"`
	RoomNumber       int            `gorm:"not null;index:idx_bookings_room_stay,priority:1"`
	CheckIn          string         `gorm:"size:10;not null;index:idx_bookings_room_stay,priority:2"`
	CheckOut         string         `gorm:"size:10;not null"`
	Nights           int            `gorm:"not null"`
	RoomRate         int64          `gorm:"not null"`
	TotalAmount      int64          `gorm:"not null"`
	GuestName        string         `gorm:"size:200;not null"`
	GuestPhone       string         `gorm:"size:40;not null"`
	GuestEmail       string         `gorm:"size:254;not null"`
	SpecialRequests  string         `gorm:"type:text"`
	PaymentStatus    string         `gorm:"size:16;not null"`
	PaymentMethod    *string        `gorm:"size:16"`
	PaymentReference *string        `gorm:"size:200"`
	PaidAt           *time.Time     `gorm:""`
	HoldExpiresAt    *time.Time     `gorm:""`
	PaymentAccount   datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

func (booking *Booking) BeforeCreate(tx *gorm.DB) error {
	if booking.BookingID == "" {
		booking.BookingID = uuid.NewString()
	}
	return nil
}

// BookingNight mirrors the booking_nights table: one row per claimed (room, night).
type BookingNight struct {
	RoomNumber  int       `gorm:"primaryKey;autoIncrement:false"`
	Night       string    `gorm:"size:10;primaryKey"`
	BookingCode string    `gorm:"size:16;not null;index:idx_booking_nights_code"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (BookingNight) TableName() string { return "booking_nights" }

// RoomBlock mirrors the room_blocks table.
type RoomBlock struct {
	RoomNumber int       `gorm:"primaryKey;autoIncrement:false"`
	BlockDate  string    `gorm:"size:10;primaryKey"`
	Reason     string    `gorm:"size:500;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (RoomBlock) TableName() string { return "room_blocks" }

// Models lists every table the store needs, in migration order.
func Models() []any {
	return []any{&Booking{}, &BookingNight{}, &RoomBlock{}}
}
