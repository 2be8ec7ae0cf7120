// Package events publishes booking domain events to RabbitMQ so downstream workers
// (confirmation e-mails, housekeeping) can react without the core knowing about them.
// Publishing is best effort: events are queued and sent by a background worker, a full queue
// drops the event, and failures are logged without failing the booking operation.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueue is the durable queue events are routed to.
	DefaultQueue = "hotel.bookings"

	EventBookingCreated      = "booking.created"
	EventBookingPaid         = "booking.paid"
	EventBookingHoldReleased = "booking.hold_released"
	EventRoomsBlocked        = "rooms.blocked"
	EventRoomsUnblocked      = "rooms.unblocked"

	// DefaultBufferSize bounds the events waiting for the broker.
	DefaultBufferSize = 256

	publishTimeout = 5 * time.Second
	dialTimeout    = 3 * time.Second
	heartbeat      = 10 * time.Second
	locale         = "en_US"
	contentType    = "application/json"
)

// Event is the JSON body of a published message.
type Event struct {
	Type        string    `json:"type"`
	BookingCode string    `json:"booking_code,omitempty"`
	Room        int       `json:"room"`
	CheckIn     string    `json:"check_in,omitempty"`
	CheckOut    string    `json:"check_out,omitempty"`
	Dates       []string  `json:"dates,omitempty"`
	Payment     string    `json:"payment_status,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventFromOperation converts a successful operation into an event.
// Failed operations and operations without a domain event report false.
func EventFromOperation(entry booking.OperationLog, occurredAt time.Time) (Event, bool) {
	if entry.Status != booking.OperationStatusOK || entry.Error != nil {
		return Event{}, false
	}
	var eventType string
	switch entry.Operation {
	case booking.OperationCreateBooking, booking.OperationCreateStaffBooking:
		eventType = EventBookingCreated
	case booking.OperationConfirmPaid:
		eventType = EventBookingPaid
	case booking.OperationReleaseHold:
		eventType = EventBookingHoldReleased
	case booking.OperationBlockDates:
		eventType = EventRoomsBlocked
	case booking.OperationUnblockDates:
		eventType = EventRoomsUnblocked
	default:
		return Event{}, false
	}
	event := Event{
		Type:       eventType,
		Room:       entry.Room.Int(),
		Payment:    string(entry.Payment),
		Actor:      entry.Actor,
		OccurredAt: occurredAt.UTC(),
	}
	if !entry.BookingCode.IsZero() {
		event.BookingCode = entry.BookingCode.String()
	}
	if !entry.CheckIn.IsZero() {
		event.CheckIn = entry.CheckIn.String()
	}
	if !entry.CheckOut.IsZero() {
		event.CheckOut = entry.CheckOut.String()
	}
	for _, date := range entry.Dates {
		event.Dates = append(event.Dates, date.String())
	}
	return event, true
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connectFunc func() (amqpChannel, func() error, error)

// Publisher implements booking.OperationLogger over one lazily dialed AMQP channel.
// LogOperation only enqueues; a single worker owns the channel.
type Publisher struct {
	queue   string
	connect connectFunc
	logger  *zap.Logger
	now     func() time.Time

	stateMu sync.RWMutex
	closed  bool
	pending chan Event
	done    chan struct{}

	mu      sync.Mutex
	channel amqpChannel
	closeFn func() error
}

// NewPublisher prepares a publisher for url. The broker is dialed on first use and
// redialed after a failed publish.
func NewPublisher(url string, queue string, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp url is required")
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	return newPublisher(queue, dialer(url, queue), logger, time.Now, DefaultBufferSize), nil
}

func newPublisher(queue string, connect connectFunc, logger *zap.Logger, now func() time.Time, bufferSize int) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	publisher := &Publisher{
		queue:   queue,
		connect: connect,
		logger:  logger,
		now:     now,
		pending: make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	go publisher.run()
	return publisher
}

func dialer(url string, queue string) connectFunc {
	return func() (amqpChannel, func() error, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: heartbeat,
			Locale:    locale,
			Dial:      amqp.DefaultDial(dialTimeout),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("amqp dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp channel: %w", err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp queue declare: %w", err)
		}
		return ch, conn.Close, nil
	}
}

// LogOperation queues the event for entry, if any. It never waits for the broker.
func (publisher *Publisher) LogOperation(_ context.Context, entry booking.OperationLog) {
	event, ok := EventFromOperation(entry, publisher.now())
	if !ok {
		return
	}
	publisher.stateMu.RLock()
	defer publisher.stateMu.RUnlock()
	if publisher.closed {
		publisher.logDropped(event, "publisher closed")
		return
	}
	select {
	case publisher.pending <- event:
	default:
		publisher.logDropped(event, "queue full")
	}
}

func (publisher *Publisher) run() {
	defer close(publisher.done)
	for event := range publisher.pending {
		err := publisher.Publish(context.Background(), event)
		if err == nil {
			continue
		}
		publisher.logger.Warn("booking event publish failed",
			zap.String("event", event.Type),
			zap.String("booking_code", event.BookingCode),
			zap.Error(err),
		)
		if publisher.isClosed() {
			for remaining := range publisher.pending {
				publisher.logDropped(remaining, "broker unavailable at shutdown")
			}
			return
		}
	}
}

func (publisher *Publisher) isClosed() bool {
	publisher.stateMu.RLock()
	defer publisher.stateMu.RUnlock()
	return publisher.closed
}

func (publisher *Publisher) logDropped(event Event, reason string) {
	publisher.logger.Warn("booking event dropped",
		zap.String("event", event.Type),
		zap.String("booking_code", event.BookingCode),
		zap.String("reason", reason),
	)
}

// Publish sends event as a persistent JSON message.
func (publisher *Publisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.channel == nil {
		channel, closeFn, err := publisher.connect()
		if err != nil {
			return err
		}
		publisher.channel = channel
		publisher.closeFn = closeFn
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := publisher.channel.PublishWithContext(publishCtx, "", publisher.queue, false, false, message); err != nil {
		publisher.resetLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close stops accepting events, flushes the queue, and releases the channel and connection.
// When the broker fails during the flush the remaining events are dropped.
func (publisher *Publisher) Close() error {
	publisher.stateMu.Lock()
	if !publisher.closed {
		publisher.closed = true
		close(publisher.pending)
	}
	publisher.stateMu.Unlock()
	<-publisher.done

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return publisher.resetLocked()
}

func (publisher *Publisher) resetLocked() error {
	if publisher.channel == nil {
		return nil
	}
	err := publisher.channel.Close()
	if publisher.closeFn != nil {
		if closeErr := publisher.closeFn(); err == nil {
			err = closeErr
		}
	}
	publisher.channel = nil
	publisher.closeFn = nil
	return err
}
