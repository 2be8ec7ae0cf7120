package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/internal/audit"
	"github.com/MarkoPoloResearchLab/roomhold/internal/bootstrap"
	"github.com/MarkoPoloResearchLab/roomhold/internal/config"
	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "HOTELD"

	flagConfig      = "config"
	flagDatabaseURL = "database-url"
	flagStore       = "store"
	flagLogLevel    = "log-level"
	flagRoom        = "room"
	flagFrom        = "from"
	flagTo          = "to"
	flagDates       = "dates"
	flagReason      = "reason"
	flagMethod      = "method"
	flagReference   = "reference"

	defaultDatabaseURL   = "sqlite://roomhold.db"
	defaultWindowDays    = 30
	cliActorPrefix       = "cli:"
	unknownOperatingUser = "unknown"
	annotationMigrate    = "migrate"
)

type app struct {
	viper      *viper.Viper
	logger     *zap.Logger
	service    *booking.Service
	closeStore func()
}

func main() {
	cmd, application := newRootCommand()
	err := cmd.Execute()
	application.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hotelctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, *app) {
	application := &app{viper: viper.New()}
	cmd := &cobra.Command{
		Use:           "hotelctl",
		Short:         "Staff tooling for room bookings and blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return application.open(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "YAML file with the hotel section (rooms, payment account, hold policy)")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "postgres://, mysql://, sqlite:// URL or SQLite path")
	flags.String(flagStore, bootstrap.BackendGORM, "store backend: gorm or pgx")
	flags.String(flagLogLevel, "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newMigrateCommand(application),
		newAvailabilityCommand(application),
		newBookingsCommand(application),
		newBlockCommand(application),
		newUnblockCommand(application),
		newConfirmPaidCommand(application),
		newReleaseHoldCommand(application),
	)
	return cmd, application
}

func (application *app) open(cmd *cobra.Command) error {
	if err := bootstrap.LoadDotEnv(); err != nil {
		return err
	}
	v := application.viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := bootstrap.ReadConfigFile(v, v.GetString(flagConfig)); err != nil {
		return err
	}
	hotel, err := config.LoadHotel(v)
	if err != nil {
		return err
	}
	logger, err := bootstrap.NewLogger(v.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	application.logger = logger

	store, closeStore, err := bootstrap.OpenStore(cmd.Context(), bootstrap.StoreConfig{
		DatabaseURL: v.GetString(flagDatabaseURL),
		Backend:     v.GetString(flagStore),
		Migrate:     cmd.Annotations[annotationMigrate] == "true",
	}, logger)
	if err != nil {
		return err
	}
	application.closeStore = closeStore

	service, err := hotel.NewService(store, time.Now, booking.WithOperationLogger(audit.NewZapLogger(logger)))
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	application.service = service
	return nil
}

// close releases what open acquired; safe to call when open failed or never ran.
func (application *app) close() {
	if application.closeStore != nil {
		application.closeStore()
		application.closeStore = nil
	}
	if application.logger != nil {
		_ = application.logger.Sync()
	}
}

// context returns a cancellable context carrying the operating-system user as actor.
func (application *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	return booking.WithActor(ctx, cliActor()), stop
}

func cliActor() string {
	current, err := user.Current()
	if err != nil || current.Username == "" {
		return cliActorPrefix + unknownOperatingUser
	}
	return cliActorPrefix + current.Username
}

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
