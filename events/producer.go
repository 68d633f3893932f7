/*
Package events publishes committed ledger events to RabbitMQ.

PURPOSE:
  Producer implements ledger.Publisher on a topic exchange. The routing key
  is the event type ("deposit.created", "transfer.deleted", ...), so
  consumers bind with patterns such as "transfer.*".

FALLBACK:
  When RABBITMQ_URL is empty or the broker is down at startup, Fallback is
  used instead. It logs and drops every event.

SEE ALSO:
  - ledger/ledger.go: Event types and the Publisher interface
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/warp/backoffice/ledger"
)

const DefaultExchange = "ledger_events"

// channel is the part of *amqp091.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Producer holds the RabbitMQ connection and channel for publishing.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       channel
	exchange string
	log      *slog.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials the broker and declares the exchange.
func NewProducer(amqpURL, exchange string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newProducer(ch, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newProducer(ch channel, exchange string, logger *slog.Logger) (*Producer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Producer{ch: ch, exchange: exchange, log: logger}, nil
}

// Publish sends ev as JSON with the event type as routing key.
// A failed publish reopens the channel once and retries.
func (p *Producer) Publish(ctx context.Context, ev ledger.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    ev.At,
		MessageId:    messageID(ev),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg)
	if err == nil || p.conn == nil {
		return err
	}

	p.log.Warn("publish failed; reopening channel", "component", "events",
		"exchange", p.exchange, "routing_key", ev.Type, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	p.ch = ch
	if exErr := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr != nil {
		return errors.Join(err, exErr)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg)
}

// messageID is unique per record and event type, so the created and
// deleted events of one record are never taken for duplicates.
func messageID(ev ledger.Event) string {
	return ev.RecordID + ":" + string(ev.Type)
}

// Close gracefully closes the channel and connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// FALLBACK
// =============================================================================

// Fallback is a no-op publisher used when RabbitMQ is not configured or unreachable.
type Fallback struct {
	Log *slog.Logger
}

func (f Fallback) Publish(_ context.Context, ev ledger.Event) error {
	if f.Log != nil {
		f.Log.Debug("publish skipped", "component", "events", "mode", "fallback",
			"routing_key", ev.Type, "record_id", ev.RecordID)
	}
	return nil
}

func (Fallback) Close() error { return nil }
