package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartItem stages one service for a later batch checkout. It carries enough
// to build a PendingIntent once the owner pays.
type CartItem struct {
	ID         uuid.UUID
	Category   Category
	ServiceID  uuid.UUID
	OptionID   *uuid.UUID
	PartySize  int
	Details    CategoryDetails
	PriceCents int64
	AddedAt    time.Time
}

// Cart is owned by exactly one account and cleared only after every item has
// been converted into a reservation.
type Cart struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Items     []CartItem
	UpdatedAt time.Time
}

func (c *Cart) TotalCents() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.PriceCents
	}
	return total
}

// Intent converts one cart item into a pending intent for the given holder.
func (it CartItem) Intent(holder Holder, currency string) PendingIntent {
	return PendingIntent{
		Category:   it.Category,
		ServiceID:  it.ServiceID,
		OptionID:   it.OptionID,
		PartySize:  it.PartySize,
		Holder:     holder,
		Details:    it.Details,
		TotalCents: it.PriceCents,
		Currency:   currency,
	}
}
