package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message — конверт события.
type Message struct {
	ID        string          `json:"id"`
	Type      RoutingKey      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProjectEvent — payload событий project.*.
type ProjectEvent struct {
	ProjectID string `json:"project_id"`
	Server    string `json:"server"`
	// Job и RunID заполнены, если событие произошло внутри задания.
	Job   string `json:"job,omitempty"`
	RunID string `json:"run_id,omitempty"`
	// Detail — файл операций, путь экспорта или имя нового проекта.
	Detail string `json:"detail,omitempty"`
}

// JobFinished — payload события job.finished.
type JobFinished struct {
	Job        string    `json:"job"`
	RunID      string    `json:"run_id"`
	ProjectID  string    `json:"project_id,omitempty"`
	Status     string    `json:"status"` // succeeded или failed
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewMessage упаковывает payload в конверт с новым ID.
func NewMessage(key RoutingKey, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      key,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// publishing собирает AMQP-сообщение из конверта.
func publishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}

// Publisher публикует события в exchange refinery.events.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует готовый конверт с routing key msg.Type.
func (p *Publisher) Publish(ctx context.Context, msg *Message) error {
	pub, err := publishing(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(ExchangeEvents), // exchange
			string(msg.Type),       // routing key
			false,                  // mandatory
			false,                  // immediate
			pub,
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", msg.Type, err)
		}

		p.logger.Debug("published event",
			"routing_key", msg.Type,
			"message_id", msg.ID,
		)
		return nil
	})
}

// PublishEvent упаковывает payload и публикует его с ключом key.
func (p *Publisher) PublishEvent(ctx context.Context, key RoutingKey, payload any) error {
	msg, err := NewMessage(key, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}
