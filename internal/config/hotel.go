// Package config decodes the hotel definition (rooms, payment account, hold policy)
// from viper so the server and the staff CLI build identical booking services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/spf13/viper"
)

// HotelKey is the viper key holding the hotel section.
const HotelKey = "hotel"

const defaultTimezone = "Local"

// RoomConfig is one configured room. Rate is in the smallest currency unit.
type RoomConfig struct {
	Number int    `mapstructure:"number"`
	Name   string `mapstructure:"name"`
	Rate   int64  `mapstructure:"rate"`
}

// AccountConfig is the payment-collection account shown to guests.
type AccountConfig struct {
	BankName      string `mapstructure:"bank_name"`
	AccountName   string `mapstructure:"account_name"`
	AccountNumber string `mapstructure:"account_number"`
}

// Hotel aggregates the static hotel definition.
type Hotel struct {
	Rooms          []RoomConfig  `mapstructure:"rooms"`
	PaymentAccount AccountConfig `mapstructure:"payment_account"`
	HoldDuration   time.Duration `mapstructure:"hold_duration"`
	Timezone       string        `mapstructure:"timezone"`
}

// DefaultRooms is the catalog used when none is configured.
func DefaultRooms() []RoomConfig {
	return []RoomConfig{
		{Number: 1, Name: "Standard Double", Rate: 18000},
		{Number: 2, Name: "Deluxe Double", Rate: 25000},
		{Number: 3, Name: "Garden Suite", Rate: 32000},
		{Number: 4, Name: "Family Room", Rate: 38000},
		{Number: 5, Name: "Penthouse Suite", Rate: 52000},
	}
}

// LoadHotel decodes the hotel section of v and validates it.
func LoadHotel(v *viper.Viper) (Hotel, error) {
	var hotel Hotel
	if v != nil {
		if err := v.UnmarshalKey(HotelKey, &hotel); err != nil {
			return Hotel{}, fmt.Errorf("decode hotel config: %w", err)
		}
	}
	if err := hotel.Validate(); err != nil {
		return Hotel{}, err
	}
	return hotel, nil
}

// Validate fills defaults and rejects unusable values.
func (hotel *Hotel) Validate() error {
	if len(hotel.Rooms) == 0 {
		hotel.Rooms = DefaultRooms()
	}
	if hotel.HoldDuration == 0 {
		hotel.HoldDuration = booking.DefaultHoldDuration
	}
	if hotel.HoldDuration < 0 {
		return fmt.Errorf("hold duration must be positive")
	}
	hotel.Timezone = strings.TrimSpace(hotel.Timezone)
	if hotel.Timezone == "" {
		hotel.Timezone = defaultTimezone
	}
	if _, err := hotel.Location(); err != nil {
		return err
	}
	if _, err := hotel.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog builds the room catalog.
func (hotel Hotel) Catalog() (booking.RoomCatalog, error) {
	rooms := make([]booking.Room, 0, len(hotel.Rooms))
	for _, room := range hotel.Rooms {
		rate, err := booking.NewAmount(room.Rate)
		if err != nil {
			return booking.RoomCatalog{}, fmt.Errorf("room %d: %w", room.Number, err)
		}
		rooms = append(rooms, booking.Room{
			Number: booking.RoomNumber(room.Number),
			Name:   room.Name,
			Rate:   rate,
		})
	}
	return booking.NewRoomCatalog(rooms)
}

// Location resolves the hotel timezone that defines "today".
func (hotel Hotel) Location() (*time.Location, error) {
	location, err := time.LoadLocation(hotel.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", hotel.Timezone, err)
	}
	return location, nil
}

// Account returns the payment account snapshotted onto new bookings.
func (hotel Hotel) Account() booking.PaymentAccount {
	return booking.PaymentAccount{
		BankName:      strings.TrimSpace(hotel.PaymentAccount.BankName),
		AccountName:   strings.TrimSpace(hotel.PaymentAccount.AccountName),
		AccountNumber: strings.TrimSpace(hotel.PaymentAccount.AccountNumber),
	}
}

// NewService builds the booking service for this hotel over store.
func (hotel Hotel) NewService(store booking.Store, now func() time.Time, options ...booking.ServiceOption) (*booking.Service, error) {
	catalog, err := hotel.Catalog()
	if err != nil {
		return nil, err
	}
	location, err := hotel.Location()
	if err != nil {
		return nil, err
	}
	base := []booking.ServiceOption{
		booking.WithHoldDuration(hotel.HoldDuration),
		booking.WithLocation(location),
		booking.WithPaymentAccount(hotel.Account()),
	}
	return booking.NewService(store, catalog, now, append(base, options...)...)
}
