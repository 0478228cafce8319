package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const reconnectDelay = 5 * time.Second

// Subscriber читает конверты событий напрямую из очереди AMQP и передаёт их
// роутеру. Используется в окружениях без сайдкара; контракт доставки тот же:
// at-least-once, без порядка.
type Subscriber struct {
	url    string
	queue  string
	router *Router
	log    zerolog.Logger
}

// NewSubscriber создаёт подписчика очереди.
func NewSubscriber(url, queue string, router *Router, logger zerolog.Logger) *Subscriber {
	return &Subscriber{url: url, queue: queue, router: router, log: logger}
}

// Run обрабатывает очередь до отмены контекста, переподключаясь при обрывах.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Error().Err(err).Msg("amqp: соединение потеряно, переподключаемся")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	s.log.Info().Str("queue", s.queue).Msg("amqp: подписка запущена")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			s.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery транслирует исход роутера в подтверждение AMQP. Терминально
// сброшенные сообщения подтверждаются: возвращать в очередь их бессмысленно.
func (s *Subscriber) handleDelivery(ctx context.Context, d amqp.Delivery) {
	switch s.router.Dispatch(ctx, d.Body, "") {
	case OutcomeRetry:
		if err := d.Nack(false, true); err != nil {
			s.log.Error().Err(err).Msg("amqp: не удалось вернуть сообщение в очередь")
		}
		// пауза, чтобы не крутить сбойное сообщение вхолостую
		time.Sleep(time.Second)
	default:
		if err := d.Ack(false); err != nil {
			s.log.Error().Err(err).Msg("amqp: не удалось подтвердить сообщение")
		}
	}
}
