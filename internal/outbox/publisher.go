package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/crdb"
	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/rabbit"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
	publishers   = 4
)

// Publisher drains NEW outbox records into the events exchange. At-least-once
// on the rabbit side; consumers dedupe on the message id.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed: ", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(publishers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Body:        rec.Payload,
			}
			if err := p.rabbitPub.Publish(gctx, rec.EventType, msg); err != nil {
				p.logger.WithField("outbox_id", rec.ID).Error("publish failed: ", err)
				return nil // retried on next poll
			}
			return p.repo.MarkPublished(gctx, rec.ID, time.Now())
		})
	}
	return g.Wait()
}
