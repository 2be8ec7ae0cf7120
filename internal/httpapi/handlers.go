package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarkoPoloResearchLab/roomhold/internal/availcache"
	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	cacheHeader = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
	jsonContent = "application/json; charset=utf-8"
)

type httpHandler struct {
	logger  *zap.Logger
	service BookingService
	cache   availcache.Cache
	cfg     Config
}

func newHTTPHandler(cfg Config, service BookingService, cache availcache.Cache, logger *zap.Logger) *httpHandler {
	if cache == nil {
		cache = availcache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpHandler{logger: logger, service: service, cache: cache, cfg: cfg}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleRooms(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"rooms":                 newRoomPayloads(handler.service.Rooms()),
		"hold_duration_seconds": int64(handler.service.HoldDuration().Seconds()),
	})
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	room, err := parseRoomParam(ctx.Query("room"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	from, err := booking.ParseDate(ctx.Query("from"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	to, err := booking.ParseDate(ctx.Query("to"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	key := availabilityCacheKey(room, from, to)
	cached, generation, ok := handler.cache.Get(requestCtx, key)
	if ok {
		ctx.Header(cacheHeader, cacheHit)
		ctx.Data(http.StatusOK, jsonContent, cached)
		return
	}

	availability, err := handler.service.Availability(requestCtx, booking.AvailabilityQuery{Room: room, From: from, To: to})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	body, err := json.Marshal(newAvailabilityPayload(availability))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Set(requestCtx, key, generation, body)
	ctx.Header(cacheHeader, cacheMiss)
	ctx.Data(http.StatusOK, jsonContent, body)
}

func availabilityCacheKey(room *booking.RoomNumber, from booking.Date, to booking.Date) string {
	scope := "all"
	if room != nil {
		scope = fmt.Sprintf("%d", room.Int())
	}
	return fmt.Sprintf("room=%s&from=%s&to=%s", scope, from, to)
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	var request bookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	domainRequest, err := request.toDomain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	created, err := handler.service.CreateBooking(requestCtx, domainRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Invalidate(requestCtx)
	ctx.JSON(http.StatusCreated, gin.H{"booking": handler.bookingPayload(created)})
}

func (handler *httpHandler) handleCreateStaffBooking(ctx *gin.Context) {
	var request staffBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	domainRequest, err := request.bookingRequest.toDomain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	staffRequest := booking.StaffBookingRequest{BookingRequest: domainRequest}
	if request.Paid != nil {
		confirmation, err := request.Paid.toDomain()
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		staffRequest.Paid = &confirmation
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	created, err := handler.service.CreateStaffBooking(requestCtx, staffRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Invalidate(requestCtx)
	ctx.JSON(http.StatusCreated, gin.H{"booking": handler.bookingPayload(created)})
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	code, err := booking.ParseBookingCode(ctx.Param("code"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	record, err := handler.service.GetBooking(requestCtx, code)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": handler.bookingPayload(record)})
}

func (handler *httpHandler) handleListBookings(ctx *gin.Context) {
	room, err := parseRoomParam(ctx.Query("room"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	from, err := parseDateParam(ctx.Query("from"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	to, err := parseDateParam(ctx.Query("to"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	records, err := handler.service.ListBookings(requestCtx, booking.BookingQuery{Room: room, From: from, To: to})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]bookingPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, handler.bookingPayload(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": payloads})
}

func (handler *httpHandler) handleUpdateBooking(ctx *gin.Context) {
	code, err := booking.ParseBookingCode(ctx.Param("code"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request updateBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "action must be confirm_paid or release_hold"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	var updated booking.Booking
	switch request.Action {
	case actionConfirmPaid:
		confirmation, parseErr := paymentRequest{Method: request.Method, Reference: request.Reference}.toDomain()
		if parseErr != nil {
			handler.respondError(ctx, parseErr)
			return
		}
		updated, err = handler.service.ConfirmPaid(requestCtx, code, confirmation)
	case actionReleaseHold:
		updated, err = handler.service.ReleaseHold(requestCtx, code)
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Invalidate(requestCtx)
	ctx.JSON(http.StatusOK, gin.H{"booking": handler.bookingPayload(updated)})
}

func (handler *httpHandler) handleListBlocks(ctx *gin.Context) {
	room, err := parseRoomParam(ctx.Query("room"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	from, err := parseDateParam(ctx.Query("from"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	to, err := parseDateParam(ctx.Query("to"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	blocks, err := handler.service.ListBlocks(requestCtx, booking.BlockQuery{Room: room, From: from, To: to})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"blocks": newBlockPayloads(blocks)})
}

func (handler *httpHandler) handleBlockDates(ctx *gin.Context) {
	var request blockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected room, dates and reason"))
		return
	}
	room, dates, err := request.toDomain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	blocks, err := handler.service.BlockDates(requestCtx, room, dates, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Invalidate(requestCtx)
	ctx.JSON(http.StatusOK, gin.H{"blocks": newBlockPayloads(blocks)})
}

func (handler *httpHandler) handleUnblockDates(ctx *gin.Context) {
	var request blockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected room and dates"))
		return
	}
	room, dates, err := request.toDomain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.service.UnblockDates(requestCtx, room, dates); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.cache.Invalidate(requestCtx)
	ctx.JSON(http.StatusOK, gin.H{"room": room.Int(), "dates": dateStrings(dates)})
}

func (handler *httpHandler) bookingPayload(record booking.Booking) bookingPayload {
	return newBookingPayload(record, handler.service.IsBlockingNow(record), handler.service.HoldRemaining(record))
}

var refinedErrorCodes = []struct {
	target error
	code   string
}{
	{booking.ErrUnknownRoom, "unknown_room"},
	{booking.ErrInvalidDate, "invalid_date"},
	{booking.ErrInvalidStayRange, "invalid_stay"},
	{booking.ErrPastDate, "past_date"},
	{booking.ErrInvalidGuest, "invalid_guest"},
	{booking.ErrInvalidBookingCode, "invalid_booking_code"},
	{booking.ErrInvalidPaymentMethod, "invalid_payment_method"},
	{booking.ErrInvalidReason, "invalid_reason"},
	{booking.ErrInvalidTransition, "invalid_transition"},
	{booking.ErrBookingNotFound, "booking_not_found"},
}

func errorCode(err error, fallback string) string {
	for _, refined := range refinedErrorCodes {
		if errors.Is(err, refined.target) {
			return refined.code
		}
	}
	return fallback
}

// respondError maps the booking error taxonomy onto HTTP statuses.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCode(err, "invalid_input"), err.Error()))
	case errors.Is(err, booking.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse(errorCode(err, "not_found"), err.Error()))
	case errors.Is(err, booking.ErrConflict):
		response := errorResponse("conflict", err.Error())
		if dates, ok := booking.ConflictDates(err); ok {
			response["error"].(gin.H)["dates"] = dateStrings(dates)
		}
		ctx.JSON(http.StatusConflict, response)
	case errors.Is(err, booking.ErrPersistenceFailure):
		handler.logger.Error("booking store unavailable", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "booking store unavailable, retry"))
	default:
		handler.logger.Error("booking request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "unexpected error"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
