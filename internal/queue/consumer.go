package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// ErrRetryLater marks a handler failure worth another attempt. Other
// errors drop the message.
var ErrRetryLater = errors.New("retry later")

// ConsumeAMQP declares queue (durable) on the broker at url and feeds each
// delivery to h until ctx is cancelled. Broker failures are retried with
// exponential backoff capped at 30s.
func ConsumeAMQP(ctx context.Context, url, queue string, h Handler) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("%s-consumer: failed to dial broker: %v; retrying in %s", queue, err, backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, h)
		_ = conn.Close()
		if err != nil {
			log.Printf("%s-consumer: consume loop ended: %v; reconnecting", queue, err)
			if !sleep(ctx, 2*time.Second) {
				return nil
			}
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, h Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("%s-consumer: set QoS failed: %v", queue, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := h(ctx, d.Body); err != nil {
				requeue := errors.Is(err, ErrRetryLater)
				log.Printf("%s-consumer: handle message %s failed (requeue=%t): %v", queue, d.MessageId, requeue, err)
				if requeue {
					sleep(ctx, 2*time.Second)
				}
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// ConsumeKafka reads topic as part of group and commits each message after
// h succeeds or gives up. Retryable failures are attempted up to five
// times with growing delays.
func ConsumeKafka(ctx context.Context, brokers []string, topic, group string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("%s-consumer: fetch failed: %v", topic, err)
			if !sleep(ctx, 2*time.Second) {
				return nil
			}
			continue
		}
		delay := time.Second
		for attempt := 1; ; attempt++ {
			err = h(ctx, m.Value)
			if err == nil || !errors.Is(err, ErrRetryLater) || attempt >= 5 {
				break
			}
			if !sleep(ctx, delay) {
				return nil
			}
			delay *= 2
		}
		if err != nil {
			log.Printf("%s-consumer: dropping offset %d: %v", topic, m.Offset, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Printf("%s-consumer: commit failed: %v", topic, err)
		}
	}
}

// sleep waits for d or until ctx ends; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
