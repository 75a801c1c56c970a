package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is the read/write surface shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerStore is the Repository slice the split-payment ledger operates on.
type LedgerStore interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, rsv *domain.Reservation) error
}

// ReservationTx runs fn against a store view bound to one serializable
// transaction. Two callers that read the same payment aggregates and both
// write conflict at commit instead of both landing.
func (r *Repository) ReservationTx(ctx context.Context, fn func(LedgerStore) error) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return fetchReservation(ctx, s.tx, `WHERE id = $1`, id)
}

func (s *txStore) UpdateReservation(ctx context.Context, rsv *domain.Reservation) error {
	return saveReservation(ctx, s.tx, rsv)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// CreateReservation inserts a reservation and its ledger entries. The partial
// unique index on payment_ref is the idempotency arbiter: a lost insert race
// comes back as domain.ErrDuplicatePayment, which callers treat as success.
func (r *Repository) CreateReservation(ctx context.Context, rsv *domain.Reservation) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		row, err := newReservationRow(rsv)
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO reservations
				(id, payment_ref, account_id, guest_name, guest_email, category,
				 service_id, option_id, party_size, multi_user, participants,
				 details, status, total_cents, paid_cents, remaining_cents,
				 cancellation, feedback, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			ON CONFLICT (payment_ref) WHERE payment_ref IS NOT NULL DO NOTHING
		`, row.args()...)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
				return domain.ErrDuplicatePayment
			}
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrDuplicatePayment
		}

		for _, e := range rsv.Payment.Entries {
			if err := upsertEntry(ctx, tx, rsv.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return fetchReservation(ctx, r.pool, `WHERE id = $1`, id)
}

func (r *Repository) GetReservationByPaymentRef(ctx context.Context, ref string) (*domain.Reservation, error) {
	return fetchReservation(ctx, r.pool, `WHERE payment_ref = $1`, ref)
}

func fetchReservation(ctx context.Context, q querier, where string, arg interface{}) (*domain.Reservation, error) {
	var row reservationRow
	err := q.QueryRow(ctx, `
		SELECT id, payment_ref, account_id, guest_name, guest_email, category,
		       service_id, option_id, party_size, multi_user, participants,
		       details, status, total_cents, paid_cents, remaining_cents,
		       cancellation, feedback, created_at, updated_at
		FROM reservations `+where,
		arg).Scan(row.dests()...)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rsv, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, account_id, guest_name, guest_email, amount_cents, status, method, paid_at
		FROM ledger_entries WHERE reservation_id = $1 ORDER BY created_at ASC
	`, rsv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         domain.LedgerEntry
			accountID *uuid.UUID
		)
		if err := rows.Scan(&e.ID, &accountID, &e.Participant.GuestName, &e.Participant.GuestEmail,
			&e.AmountCents, &e.Status, &e.Method, &e.PaidAt); err != nil {
			return nil, err
		}
		e.Participant.AccountID = accountID
		rsv.Payment.Entries = append(rsv.Payment.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rsv.Payment.Recompute()
	return rsv, nil
}

// UpdateReservation persists status, payment aggregates, cancellation and
// feedback, and upserts the ledger entries.
func (r *Repository) UpdateReservation(ctx context.Context, rsv *domain.Reservation) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return saveReservation(ctx, tx, rsv)
	})
}

func saveReservation(ctx context.Context, tx pgx.Tx, rsv *domain.Reservation) error {
	cancellation, feedback, err := marshalOptional(rsv)
	if err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, total_cents = $3, paid_cents = $4, remaining_cents = $5,
		    cancellation = $6, feedback = $7, updated_at = $8
		WHERE id = $1
	`, rsv.ID, rsv.Status, rsv.Payment.TotalCents, rsv.Payment.PaidCents,
		rsv.Payment.RemainingCents, cancellation, feedback, rsv.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	for _, e := range rsv.Payment.Entries {
		if err := upsertEntry(ctx, tx, rsv.ID, e); err != nil {
			return err
		}
	}
	return nil
}

// DeleteReservation removes a reservation and its entries. Used only by the
// cart checkout batch rollback.
func (r *Repository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE reservation_id = $1`, id); err != nil {
			return err
		}
		result, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func upsertEntry(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, e domain.LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, reservation_id, account_id, guest_name, guest_email, amount_cents, status, method, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE
		SET amount_cents = $6, status = $7, method = $8, paid_at = $9
	`, e.ID, reservationID, e.Participant.AccountID, e.Participant.GuestName,
		e.Participant.GuestEmail, e.AmountCents, e.Status, e.Method, e.PaidAt)
	return err
}

// reservationRow flattens the domain aggregate onto the table layout.
type reservationRow struct {
	ID             uuid.UUID
	PaymentRef     *string
	AccountID      *uuid.UUID
	GuestName      string
	GuestEmail     string
	Category       string
	ServiceID      uuid.UUID
	OptionID       *uuid.UUID
	PartySize      int
	MultiUser      bool
	Participants   []byte
	Details        []byte
	Status         string
	TotalCents     int64
	PaidCents      int64
	RemainingCents int64
	Cancellation   []byte
	Feedback       []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func newReservationRow(rsv *domain.Reservation) (*reservationRow, error) {
	details, err := json.Marshal(rsv.Details)
	if err != nil {
		return nil, err
	}
	participants, err := json.Marshal(rsv.Participants)
	if err != nil {
		return nil, err
	}
	cancellation, feedback, err := marshalOptional(rsv)
	if err != nil {
		return nil, err
	}

	row := &reservationRow{
		ID:             rsv.ID,
		AccountID:      rsv.Holder.AccountID,
		GuestName:      rsv.Holder.GuestName,
		GuestEmail:     rsv.Holder.GuestEmail,
		Category:       string(rsv.Category),
		ServiceID:      rsv.ServiceID,
		OptionID:       rsv.OptionID,
		PartySize:      rsv.PartySize,
		MultiUser:      rsv.MultiUser,
		Participants:   participants,
		Details:        details,
		Status:         string(rsv.Status),
		TotalCents:     rsv.Payment.TotalCents,
		PaidCents:      rsv.Payment.PaidCents,
		RemainingCents: rsv.Payment.RemainingCents,
		Cancellation:   cancellation,
		Feedback:       feedback,
		CreatedAt:      rsv.CreatedAt,
		UpdatedAt:      rsv.UpdatedAt,
	}
	if rsv.PaymentRef != "" {
		row.PaymentRef = &rsv.PaymentRef
	}
	return row, nil
}

func marshalOptional(rsv *domain.Reservation) (cancellation, feedback []byte, err error) {
	if rsv.Cancellation != nil {
		if cancellation, err = json.Marshal(rsv.Cancellation); err != nil {
			return nil, nil, err
		}
	}
	if rsv.Feedback != nil {
		if feedback, err = json.Marshal(rsv.Feedback); err != nil {
			return nil, nil, err
		}
	}
	return cancellation, feedback, nil
}

func (row *reservationRow) args() []interface{} {
	return []interface{}{
		row.ID, row.PaymentRef, row.AccountID, row.GuestName, row.GuestEmail,
		row.Category, row.ServiceID, row.OptionID, row.PartySize, row.MultiUser,
		row.Participants, row.Details, row.Status, row.TotalCents, row.PaidCents,
		row.RemainingCents, row.Cancellation, row.Feedback, row.CreatedAt, row.UpdatedAt,
	}
}

func (row *reservationRow) dests() []interface{} {
	return []interface{}{
		&row.ID, &row.PaymentRef, &row.AccountID, &row.GuestName, &row.GuestEmail,
		&row.Category, &row.ServiceID, &row.OptionID, &row.PartySize, &row.MultiUser,
		&row.Participants, &row.Details, &row.Status, &row.TotalCents, &row.PaidCents,
		&row.RemainingCents, &row.Cancellation, &row.Feedback, &row.CreatedAt, &row.UpdatedAt,
	}
}

func (row *reservationRow) toDomain() (*domain.Reservation, error) {
	details, err := decodeDetails(domain.Category(row.Category), row.Details)
	if err != nil {
		return nil, err
	}

	rsv := &domain.Reservation{
		ID:        row.ID,
		Holder:    domain.Holder{AccountID: row.AccountID, GuestName: row.GuestName, GuestEmail: row.GuestEmail},
		Category:  domain.Category(row.Category),
		ServiceID: row.ServiceID,
		OptionID:  row.OptionID,
		PartySize: row.PartySize,
		MultiUser: row.MultiUser,
		Details:   details,
		Status:    domain.Status(row.Status),
		Payment:   domain.PaymentSummary{TotalCents: row.TotalCents},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.PaymentRef != nil {
		rsv.PaymentRef = *row.PaymentRef
	}
	if len(row.Participants) > 0 {
		if err := json.Unmarshal(row.Participants, &rsv.Participants); err != nil {
			return nil, err
		}
	}
	if len(row.Cancellation) > 0 {
		rsv.Cancellation = &domain.Cancellation{}
		if err := json.Unmarshal(row.Cancellation, rsv.Cancellation); err != nil {
			return nil, err
		}
	}
	if len(row.Feedback) > 0 {
		rsv.Feedback = &domain.Feedback{}
		if err := json.Unmarshal(row.Feedback, rsv.Feedback); err != nil {
			return nil, err
		}
	}
	return rsv, nil
}

func decodeDetails(category domain.Category, data []byte) (domain.CategoryDetails, error) {
	switch category {
	case domain.CategoryExcursion:
		var d domain.ExcursionDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case domain.CategoryLodging:
		var d domain.LodgingDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case domain.CategoryDining:
		var d domain.DiningDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case domain.CategoryTransport:
		var d domain.TransportDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case domain.CategorySpa:
		var d domain.SpaDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, errors.Newf("unknown category %q", category)
}
