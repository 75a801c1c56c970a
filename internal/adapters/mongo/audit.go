package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

// PaymentAuditLogger appends every payment-adjacent decision (webhook events,
// materializations, refunds, unknown outcomes) to an append-only trail used
// for manual reconciliation.
type PaymentAuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewPaymentAuditLogger(db *mongo.Database, logger observability.Logger) *PaymentAuditLogger {
	return &PaymentAuditLogger{
		coll:   db.Collection("payment_audit"),
		logger: logger,
	}
}

type PaymentAuditDoc struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	PaymentRef string    `bson:"payment_ref"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

func (a *PaymentAuditLogger) LogPaymentEvent(ctx context.Context, action, ref string, data map[string]interface{}) error {
	doc := PaymentAuditDoc{
		ID:         uuid.New(),
		Action:     action,
		PaymentRef: ref,
		Timestamp:  time.Now(),
		Data:       bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, doc)
	if err != nil {
		a.logger.Error("failed to insert payment audit", err)
		return err
	}
	return nil
}
