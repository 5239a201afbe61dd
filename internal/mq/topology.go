package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// RoutingKey — ключ маршрутизации; совпадает с типом события.
type RoutingKey string

// ExchangeEvents — topic exchange для всех событий Refinery.
const ExchangeEvents Exchange = "refinery.events"

// Routing keys событий.
const (
	RoutingKeyProjectCreated    RoutingKey = "project.created"
	RoutingKeyOperationsApplied RoutingKey = "project.operations_applied"
	RoutingKeyProjectExported   RoutingKey = "project.exported"
	RoutingKeyJobFinished       RoutingKey = "job.finished"
)

// RoutingKeys возвращает все известные ключи.
func RoutingKeys() []RoutingKey {
	return []RoutingKey{
		RoutingKeyProjectCreated,
		RoutingKeyOperationsApplied,
		RoutingKeyProjectExported,
		RoutingKeyJobFinished,
	}
}

// SetupTopology объявляет exchange событий. Повторный вызов безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declareEvents)
}

func declareEvents(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		amqp.ExchangeTopic,     // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// DeclareSubscription создаёт очередь, привязанную к exchange событий по
// шаблонам patterns (синтаксис topic: "*" — одно слово, "#" — любое число).
//
// Пустое name — временная очередь: имя выдаёт брокер, очередь удаляется
// вместе с соединением. Возвращает имя очереди.
func DeclareSubscription(ctx context.Context, conn *Connection, name string, patterns ...string) (string, error) {
	if len(patterns) == 0 {
		patterns = []string{"#"}
	}

	var queue string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareEvents(ch); err != nil {
			return err
		}

		temporary := name == ""
		q, err := ch.QueueDeclare(
			name,       // name
			!temporary, // durable
			temporary,  // delete when unused
			temporary,  // exclusive
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %q: %w", name, err)
		}

		for _, p := range patterns {
			if err := ch.QueueBind(q.Name, p, string(ExchangeEvents), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.Name, p, err)
			}
		}

		queue = q.Name
		return nil
	})
	return queue, err
}

// MatchTopic проверяет, подходит ли ключ под шаблон topic exchange.
func MatchTopic(pattern string, key RoutingKey) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(string(key), "."))
}

func matchWords(pattern, words []string) bool {
	if len(pattern) == 0 {
		return len(words) == 0
	}

	switch pattern[0] {
	case "#":
		for i := 0; i <= len(words); i++ {
			if matchWords(pattern[1:], words[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(words) > 0 && matchWords(pattern[1:], words[1:])
	default:
		return len(words) > 0 && pattern[0] == words[0] && matchWords(pattern[1:], words[1:])
	}
}
