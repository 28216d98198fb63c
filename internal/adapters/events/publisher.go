// Package events publishes workflow events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// PatternOrderApproved is the routing key of approval events.
const PatternOrderApproved = "order.approved"

// OrderApproved is sent after the orders service accepts an approval.
type OrderApproved struct {
	ApprovalID int64           `json:"approval_id"`
	SessionID  string          `json:"session_id"`
	Partner    string          `json:"partner"`
	OrderID    string          `json:"order_id,omitempty"`
	Total      *float64        `json:"total"`
	Payload    json.RawMessage `json:"payload"`
	ApprovedAt time.Time       `json:"approved_at"`
}

// Publisher sends events.
type Publisher interface {
	PublishOrderApproved(ctx context.Context, ev OrderApproved) error
	Close() error
}

// Message is the envelope written to the exchange.
type Message struct {
	Pattern string `json:"pattern"`
	Data    any    `json:"data"`
	ID      string `json:"id,omitempty"`
}

// AMQPPublisher publishes to a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher connects to url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishOrderApproved publishes ev under PatternOrderApproved.
func (p *AMQPPublisher) PublishOrderApproved(ctx context.Context, ev OrderApproved) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Encode(PatternOrderApproved, fmt.Sprintf("approval-%d", ev.ApprovalID), ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(p.exchange, PatternOrderApproved, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.ApprovedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("published event",
		"pattern", PatternOrderApproved,
		"exchange", p.exchange,
		"approval_id", ev.ApprovalID)
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Encode builds the wire form of an event.
func Encode(pattern, id string, data any) ([]byte, error) {
	body, err := json.Marshal(Message{Pattern: pattern, Data: data, ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return body, nil
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishOrderApproved(context.Context, OrderApproved) error { return nil }
func (Noop) Close() error                                              { return nil }
