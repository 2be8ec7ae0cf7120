// Package httpapi exposes the booking service over HTTP: public availability and guest
// booking routes, plus staff routes guarded by a tauth session with a staff role.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/internal/availcache"
	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	guestActor       = "guest"
	staffActorPrefix = "staff:"
	shutdownTimeout  = 5 * time.Second
)

// BookingService is the subset of booking.Service the API drives.
type BookingService interface {
	Rooms() []booking.Room
	HoldDuration() time.Duration
	Availability(ctx context.Context, query booking.AvailabilityQuery) (booking.Availability, error)
	CreateBooking(ctx context.Context, request booking.BookingRequest) (booking.Booking, error)
	CreateStaffBooking(ctx context.Context, request booking.StaffBookingRequest) (booking.Booking, error)
	GetBooking(ctx context.Context, code booking.BookingCode) (booking.Booking, error)
	ListBookings(ctx context.Context, query booking.BookingQuery) ([]booking.Booking, error)
	ConfirmPaid(ctx context.Context, code booking.BookingCode, confirmation booking.PaymentConfirmation) (booking.Booking, error)
	ReleaseHold(ctx context.Context, code booking.BookingCode) (booking.Booking, error)
	BlockDates(ctx context.Context, room booking.RoomNumber, dates []booking.Date, reason string) ([]booking.RoomBlock, error)
	UnblockDates(ctx context.Context, room booking.RoomNumber, dates []booking.Date) error
	ListBlocks(ctx context.Context, query booking.BlockQuery) ([]booking.RoomBlock, error)
	IsBlockingNow(record booking.Booking) bool
	HoldRemaining(record booking.Booking) time.Duration
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, service BookingService, cache availcache.Cache, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := newSessionValidator(cfg)
	if err != nil {
		return err
	}

	handler := newHTTPHandler(cfg, service, cache, logger)
	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booking api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newSessionValidator(cfg Config) (*sessionvalidator.Validator, error) {
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	return validator, nil
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(handler.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		ExposeHeaders:    []string{cacheHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(withActor(guestActor))
	api.GET("/rooms", handler.handleRooms)
	api.GET("/availability", handler.handleAvailability)
	api.POST("/bookings", handler.handleCreateBooking)
	api.GET("/bookings/:code", handler.handleGetBooking)

	staff := api.Group("")
	staff.Use(validator.GinMiddleware(claimsContextKey), requireStaff(cfg.StaffRoles))
	staff.GET("/bookings", handler.handleListBookings)
	staff.POST("/staff/bookings", handler.handleCreateStaffBooking)
	staff.PATCH("/bookings/:code", handler.handleUpdateBooking)
	staff.GET("/blocks", handler.handleListBlocks)
	staff.POST("/blocks", handler.handleBlockDates)
	staff.DELETE("/blocks", handler.handleUnblockDates)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", ctx.ClientIP()),
		}
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}

func withActor(actor string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Request = ctx.Request.WithContext(booking.WithActor(ctx.Request.Context(), actor))
		ctx.Next()
	}
}

// requireStaff admits sessions carrying one of roles and records the staff user as actor.
func requireStaff(roles []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		if !hasAnyRole(claims.GetUserRoles(), allowed) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "staff role required"))
			return
		}
		ctx.Request = ctx.Request.WithContext(booking.WithActor(ctx.Request.Context(), staffActorPrefix+claims.GetUserID()))
		ctx.Next()
	}
}

func hasAnyRole(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
