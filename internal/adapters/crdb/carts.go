package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
)

// GetOrCreateCart returns the owner's cart, creating an empty one on first
// use. One cart per account.
func (r *Repository) GetOrCreateCart(ctx context.Context, ownerID uuid.UUID) (*domain.Cart, error) {
	cart := &domain.Cart{OwnerID: ownerID}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO carts (id, owner_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_id) DO UPDATE SET owner_id = $2
		RETURNING id, updated_at
	`, uuid.New(), ownerID).Scan(&cart.ID, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, category, service_id, option_id, party_size, details, price_cents, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at ASC
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item     domain.CartItem
			category string
			details  []byte
		)
		if err := rows.Scan(&item.ID, &category, &item.ServiceID, &item.OptionID,
			&item.PartySize, &details, &item.PriceCents, &item.AddedAt); err != nil {
			return nil, err
		}
		item.Category = domain.Category(category)
		item.Details, err = decodeDetails(item.Category, details)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

func (r *Repository) AddCartItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error {
	if err := item.Details.Validate(); err != nil {
		return err
	}
	details, err := json.Marshal(item.Details)
	if err != nil {
		return err
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO cart_items (id, cart_id, category, service_id, option_id, party_size, details, price_cents, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, item.ID, cartID, string(item.Category), item.ServiceID, item.OptionID,
			item.PartySize, details, item.PriceCents, item.AddedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, time.Now().UTC())
		return err
	})
}

func (r *Repository) RemoveCartItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND id = $2
	`, cartID, itemID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearCart empties a cart after a fully materialized batch checkout.
func (r *Repository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, time.Now().UTC())
		return err
	})
}
