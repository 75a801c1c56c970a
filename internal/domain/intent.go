package domain

import "github.com/google/uuid"

// PendingIntent is the not-yet-materialized description of a reservation,
// carried inside a payment authorization's metadata. It exists only as an
// encoded blob until a successful payment event materializes it.
type PendingIntent struct {
	Category     Category
	ServiceID    uuid.UUID
	OptionID     *uuid.UUID
	PartySize    int
	Holder       Holder
	Participants []uuid.UUID
	Details      CategoryDetails
	TotalCents   int64
	Currency     string
}

// Validate checks the fields a materialization needs. Category-specific
// requirements are delegated to the details variant.
func (i PendingIntent) Validate() error {
	if !i.Holder.Valid() {
		return ErrCategoryValidation
	}
	if i.ServiceID == uuid.Nil || i.PartySize < 1 || i.TotalCents <= 0 {
		return ErrCategoryValidation
	}
	if i.Details == nil || i.Details.Category() != i.Category {
		return ErrCategoryValidation
	}
	return i.Details.Validate()
}
