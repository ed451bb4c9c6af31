// Command worker drains the booking event queues: lifecycle events go to
// the booking log, reconcile requests are retried against the database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/database"
	"github.com/iliyamo/garment-booking/internal/gateway"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/queue"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/service"
)

// recorder is the part of the booking service the reconcile handler needs.
type recorder interface {
	RecordReconciled(ctx context.Context, nb model.NewBooking) (*model.Booking, error)
}

// reconcileHandler stores paid bookings that the request path could not.
// Transient failures are requeued; anything else needs a human and is
// logged with the payment intent so the charge can be found.
func reconcileHandler(r recorder) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var ev queue.BookingEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if ev.Type != queue.BookingReconcile || ev.Pending == nil {
			return nil
		}
		b, err := r.RecordReconciled(ctx, *ev.Pending)
		if err == nil {
			log.Printf("[reconcile] intent=%s recorded as booking %d", ev.Pending.PaymentIntentID, b.ID)
			return nil
		}
		if service.Retryable(err) {
			return fmt.Errorf("%w: intent %s: %v", queue.ErrRetryLater, ev.Pending.PaymentIntentID, err)
		}
		log.Printf("[reconcile] MANUAL ACTION intent=%s email=%s product=%d: %v",
			ev.Pending.PaymentIntentID, ev.Pending.Email, ev.Pending.ProductID, err)
		return nil
	}
}

func consume(ctx context.Context, cfg config.EventsConfig, name string, h queue.Handler) error {
	switch strings.ToLower(cfg.Broker) {
	case "kafka":
		return queue.ConsumeKafka(ctx, cfg.KafkaBrokers, name, "garment-worker", h)
	case "none", "":
		return errors.New("EVENT_BROKER=none: nothing to consume")
	default:
		return queue.ConsumeAMQP(ctx, cfg.AMQPURL, name, h)
	}
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	var intents service.IntentGateway
	if cfg.Stripe.Enabled() {
		intents = gateway.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.APIURL)
	}
	events := queue.NewPublisher(cfg.Events)
	defer events.Close()
	svc := service.NewBookingService(repository.NewProductRepo(db), repository.NewBookingRepo(db), intents, events, cfg.Currency)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, h queue.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("%s-consumer: started (broker=%s)", name, cfg.Events.Broker)
			if err := consume(ctx, cfg.Events, name, h); err != nil {
				log.Printf("%s-consumer: exit: %v", name, err)
			}
		}()
	}
	run(queue.EventsQueue, queue.NewBookingLog(cfg.Events.LogDir).Handle)
	run(queue.ReconcileQueue, reconcileHandler(svc))

	<-ctx.Done()
	log.Println("shutting down consumers...")
	wg.Wait()
}
