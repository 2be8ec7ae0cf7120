package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/spf13/cobra"
)

func newMigrateCommand(application *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the booking tables",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationMigrate: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func newAvailabilityCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show occupied dates per room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomFlag(cmd)
			if err != nil {
				return err
			}
			from, to, err := windowFlags(cmd, application.service.Today())
			if err != nil {
				return err
			}
			ctx, stop := application.context(cmd)
			defer stop()
			availability, err := application.service.Availability(ctx, booking.AvailabilityQuery{Room: room, From: from, To: to})
			if err != nil {
				return err
			}
			occupied := make(map[string][]string, len(availability.Occupied))
			for number, dates := range availability.Occupied {
				occupied[strconv.Itoa(number.Int())] = dateStrings(dates)
			}
			return writeJSON(cmd, map[string]any{
				"from":     availability.From.String(),
				"to":       availability.To.String(),
				"occupied": occupied,
			})
		},
	}
	addRoomFlag(cmd)
	addWindowFlags(cmd)
	return cmd
}

func newBookingsCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List bookings overlapping a date window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomFlag(cmd)
			if err != nil {
				return err
			}
			from, to, err := windowFlags(cmd, application.service.Today())
			if err != nil {
				return err
			}
			ctx, stop := application.context(cmd)
			defer stop()
			records, err := application.service.ListBookings(ctx, booking.BookingQuery{Room: room, From: from, To: to})
			if err != nil {
				return err
			}
			lines := make([]bookingLine, 0, len(records))
			for _, record := range records {
				lines = append(lines, newBookingLine(record, application.service.IsBlockingNow(record)))
			}
			return writeJSON(cmd, lines)
		},
	}
	addRoomFlag(cmd)
	addWindowFlags(cmd)
	return cmd
}

func newBlockCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Block dates of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			room, dates, err := roomDatesFlags(cmd)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString(flagReason)
			ctx, stop := application.context(cmd)
			defer stop()
			blocks, err := application.service.BlockDates(ctx, room, dates, reason)
			if err != nil {
				return describeError(err)
			}
			lines := make([]blockLine, 0, len(blocks))
			for _, block := range blocks {
				lines = append(lines, blockLine{Room: block.Room.Int(), Date: block.Date.String(), Reason: block.Reason})
			}
			return writeJSON(cmd, lines)
		},
	}
	cmd.Flags().Int(flagRoom, 0, "room number")
	cmd.Flags().String(flagDates, "", "comma-separated YYYY-MM-DD dates")
	cmd.Flags().String(flagReason, "", "why the room is unavailable")
	return cmd
}

func newUnblockCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unblock",
		Short: "Remove blocks from dates of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			room, dates, err := roomDatesFlags(cmd)
			if err != nil {
				return err
			}
			ctx, stop := application.context(cmd)
			defer stop()
			if err := application.service.UnblockDates(ctx, room, dates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room %d unblocked on %s\n", room.Int(), strings.Join(dateStrings(dates), ", "))
			return nil
		},
	}
	cmd.Flags().Int(flagRoom, 0, "room number")
	cmd.Flags().String(flagDates, "", "comma-separated YYYY-MM-DD dates")
	return cmd
}

func newConfirmPaidCommand(application *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm-paid CODE",
		Short: "Mark a booking as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := booking.ParseBookingCode(args[0])
			if err != nil {
				return err
			}
			rawMethod, _ := cmd.Flags().GetString(flagMethod)
			method, err := booking.ParsePaymentMethod(rawMethod)
			if err != nil {
				return err
			}
			reference, _ := cmd.Flags().GetString(flagReference)
			ctx, stop := application.context(cmd)
			defer stop()
			updated, err := application.service.ConfirmPaid(ctx, code, booking.PaymentConfirmation{Method: method, Reference: strings.TrimSpace(reference)})
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd, newBookingLine(updated, application.service.IsBlockingNow(updated)))
		},
	}
	cmd.Flags().String(flagMethod, "", "card or transfer")
	cmd.Flags().String(flagReference, "", "payment reference")
	return cmd
}

func newReleaseHoldCommand(application *app) *cobra.Command {
	return &cobra.Command{
		Use:   "release-hold CODE",
		Short: "Release the hold of an unpaid booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := booking.ParseBookingCode(args[0])
			if err != nil {
				return err
			}
			ctx, stop := application.context(cmd)
			defer stop()
			updated, err := application.service.ReleaseHold(ctx, code)
			if err != nil {
				return err
			}
			return writeJSON(cmd, newBookingLine(updated, application.service.IsBlockingNow(updated)))
		},
	}
}

type bookingLine struct {
	Code          string     `json:"code"`
	Room          int        `json:"room"`
	CheckIn       string     `json:"check_in"`
	CheckOut      string     `json:"check_out"`
	Nights        int        `json:"nights"`
	TotalAmount   int64      `json:"total_amount"`
	Guest         string     `json:"guest"`
	PaymentStatus string     `json:"payment_status"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	Blocking      bool       `json:"blocking"`
}

type blockLine struct {
	Room   int    `json:"room"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func newBookingLine(record booking.Booking, blocking bool) bookingLine {
	line := bookingLine{
		Code:        record.Code.String(),
		Room:        record.Room.Int(),
		CheckIn:     record.CheckIn.String(),
		CheckOut:    record.CheckOut.String(),
		Nights:      record.Nights,
		TotalAmount: record.TotalAmount.Int64(),
		Guest:       record.Guest.Name,
		Blocking:    blocking,
	}
	if record.Payment != nil {
		line.PaymentStatus = record.Payment.Status().String()
	}
	if unpaid, ok := record.Payment.(booking.Unpaid); ok {
		line.HoldExpiresAt = unpaid.HoldExpiresAt
	}
	return line
}

// describeError spells out conflicting dates, which the error text alone only summarizes.
func describeError(err error) error {
	dates, ok := booking.ConflictDates(err)
	if !ok {
		return err
	}
	return fmt.Errorf("%w (conflicting dates: %s)", err, strings.Join(dateStrings(dates), ", "))
}

func addRoomFlag(cmd *cobra.Command) {
	cmd.Flags().Int(flagRoom, 0, "room number; 0 means every room")
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagFrom, "", "first date, YYYY-MM-DD (default today)")
	cmd.Flags().String(flagTo, "", fmt.Sprintf("end date, exclusive (default from + %d days)", defaultWindowDays))
}

func roomFlag(cmd *cobra.Command) (*booking.RoomNumber, error) {
	number, err := cmd.Flags().GetInt(flagRoom)
	if err != nil {
		return nil, err
	}
	if number == 0 {
		return nil, nil
	}
	room := booking.RoomNumber(number)
	return &room, nil
}

func windowFlags(cmd *cobra.Command, today booking.Date) (booking.Date, booking.Date, error) {
	rawFrom, _ := cmd.Flags().GetString(flagFrom)
	rawTo, _ := cmd.Flags().GetString(flagTo)
	from := today
	if strings.TrimSpace(rawFrom) != "" {
		parsed, err := booking.ParseDate(rawFrom)
		if err != nil {
			return booking.Date{}, booking.Date{}, err
		}
		from = parsed
	}
	to := from.AddDays(defaultWindowDays)
	if strings.TrimSpace(rawTo) != "" {
		parsed, err := booking.ParseDate(rawTo)
		if err != nil {
			return booking.Date{}, booking.Date{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func roomDatesFlags(cmd *cobra.Command) (booking.RoomNumber, []booking.Date, error) {
	number, err := cmd.Flags().GetInt(flagRoom)
	if err != nil {
		return 0, nil, err
	}
	rawDates, _ := cmd.Flags().GetString(flagDates)
	var dates []booking.Date
	for _, raw := range strings.Split(rawDates, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		date, err := booking.ParseDate(raw)
		if err != nil {
			return 0, nil, err
		}
		dates = append(dates, date)
	}
	return booking.RoomNumber(number), dates, nil
}

func dateStrings(dates []booking.Date) []string {
	values := make([]string, 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	return values
}
