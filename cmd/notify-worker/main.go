package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/rabbit"
	"github.com/tropicbook/resort-reservations-and-payments/internal/config"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "notify", []string{
		outbox.EventReservationConfirmed,
		outbox.EventReservationCanceled,
	})
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	worker := NewNotifyWorker(consumer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("notify worker stopped: ", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notify worker")
}

type NotifyWorker struct {
	consumer *rabbit.Consumer
	logger   observability.Logger
	seen     map[string]struct{}
}

func NewNotifyWorker(consumer *rabbit.Consumer, logger observability.Logger) *NotifyWorker {
	return &NotifyWorker{consumer: consumer, logger: logger, seen: make(map[string]struct{})}
}

type reservationEvent struct {
	ReservationID string `json:"reservation_id"`
	Category      string `json:"category"`
	Status        string `json:"status"`
	GuestEmail    string `json:"guest_email"`
	TotalCents    int64  `json:"total_cents"`
}

func (w *NotifyWorker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

// handle dispatches one notification. The outbox publisher is at-least-once,
// so deliveries are deduped on the message id before side effects run.
func (w *NotifyWorker) handle(ctx context.Context, d amqp.Delivery) {
	if _, dup := w.seen[d.MessageId]; dup {
		d.Ack(false)
		return
	}

	var ev reservationEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		w.logger.Error("undecodable notification dropped: ", err)
		d.Ack(false)
		return
	}

	if err := w.sendWithRetry(ctx, d.RoutingKey, ev); err != nil {
		w.logger.WithField("reservation_id", ev.ReservationID).Error("notification failed after retries: ", err)
		d.Nack(false, true)
		return
	}

	w.seen[d.MessageId] = struct{}{}
	d.Ack(false)
}

func (w *NotifyWorker) sendWithRetry(ctx context.Context, eventType string, ev reservationEvent) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		if err := w.send(eventType, ev); err != nil {
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}

// send is where a mail provider would plug in. Guests without an email on
// file (account holders get in-app notifications) are skipped.
func (w *NotifyWorker) send(eventType string, ev reservationEvent) error {
	if ev.GuestEmail == "" {
		return nil
	}
	w.logger.WithField("event", eventType).
		WithField("reservation_id", ev.ReservationID).
		Info("notification sent to ", ev.GuestEmail)
	return nil
}
