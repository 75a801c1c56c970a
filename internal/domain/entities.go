package domain

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryExcursion Category = "excursion"
	CategoryLodging   Category = "lodging"
	CategoryDining    Category = "dining"
	CategoryTransport Category = "transport"
	CategorySpa       Category = "spa"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
)

type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
)

type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntryPaid    EntryStatus = "paid"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

// Holder identifies who a reservation (or a ledger entry) belongs to:
// a registered account, or a guest name/email pair.
type Holder struct {
	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	GuestName  string     `json:"guest_name,omitempty"`
	GuestEmail string     `json:"guest_email,omitempty"`
}

func (h Holder) Valid() bool {
	return h.AccountID != nil || h.GuestEmail != ""
}

// CategoryDetails is the per-category variant of a reservation. Each
// implementation carries only the fields legal for its category.
type CategoryDetails interface {
	Category() Category
	Validate() error
}

type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// ExcursionDetails covers guided activities booked for a single date and time.
type ExcursionDetails struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (d ExcursionDetails) Category() Category { return CategoryExcursion }

func (d ExcursionDetails) Validate() error {
	if d.Date == "" || d.Time == "" {
		return ErrCategoryValidation
	}
	return nil
}

// LodgingDetails carries a stay's date range and room.
type LodgingDetails struct {
	CheckIn  string     `json:"check_in"`
	CheckOut string     `json:"check_out"`
	RoomID   *uuid.UUID `json:"room_id,omitempty"`
}

func (d LodgingDetails) Category() Category { return CategoryLodging }

func (d LodgingDetails) Validate() error {
	if d.CheckIn == "" || d.CheckOut == "" {
		return ErrCategoryValidation
	}
	return nil
}

type DiningDetails struct {
	Date string   `json:"date"`
	Slot TimeSlot `json:"slot"`
}

func (d DiningDetails) Category() Category { return CategoryDining }

func (d DiningDetails) Validate() error {
	if d.Date == "" || d.Slot.Start == "" {
		return ErrCategoryValidation
	}
	return nil
}

type TransportDetails struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
}

func (d TransportDetails) Category() Category { return CategoryTransport }

func (d TransportDetails) Validate() error {
	if d.Date == "" || d.Time == "" || d.Pickup == "" || d.Dropoff == "" {
		return ErrCategoryValidation
	}
	return nil
}

type SpaDetails struct {
	Date      string   `json:"date"`
	Slot      TimeSlot `json:"slot"`
	Treatment string   `json:"treatment"`
}

func (d SpaDetails) Category() Category { return CategorySpa }

func (d SpaDetails) Validate() error {
	if d.Date == "" || d.Slot.Start == "" || d.Treatment == "" {
		return ErrCategoryValidation
	}
	return nil
}

// LedgerEntry is one participant's recorded contribution toward a
// reservation's total.
type LedgerEntry struct {
	ID          uuid.UUID
	Participant Holder
	AmountCents int64
	Status      EntryStatus
	Method      PaymentMethod
	PaidAt      *time.Time
}

// PaymentSummary aggregates the ledger. PaidCents and RemainingCents are
// derived from Entries and never set independently.
type PaymentSummary struct {
	TotalCents     int64
	PaidCents      int64
	RemainingCents int64
	Entries        []LedgerEntry
}

// Recompute re-derives the aggregates from the full entry list.
func (p *PaymentSummary) Recompute() {
	var paid int64
	for _, e := range p.Entries {
		if e.Status == EntryPaid {
			paid += e.AmountCents
		}
	}
	p.PaidCents = paid
	p.RemainingCents = p.TotalCents - paid
}

type Cancellation struct {
	CanceledBy   uuid.UUID
	CanceledAt   time.Time
	RefundCents  int64
	RefundStatus RefundStatus
	Reason       string
}

type Feedback struct {
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

// Reservation is the durable record of a booked service and its payment and
// cancellation state.
type Reservation struct {
	ID           uuid.UUID
	PaymentRef   string // external payment reference; unique when present
	Holder       Holder
	Category     Category
	ServiceID    uuid.UUID
	OptionID     *uuid.UUID
	PartySize    int
	MultiUser    bool
	Participants []uuid.UUID
	Details      CategoryDetails
	Status       Status
	Payment      PaymentSummary
	Cancellation *Cancellation
	Feedback     *Feedback
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MaterializationFailure is an operator-queue record for a verified payment
// event that could not be turned into a reservation. The customer has been
// charged, so these are never silently dropped.
type MaterializationFailure struct {
	ID         uuid.UUID
	PaymentRef string
	Reason     string
	Detail     string
	CreatedAt  time.Time
}

func NewMaterializationFailure(paymentRef, reason, detail string) MaterializationFailure {
	return MaterializationFailure{
		ID:         uuid.New(),
		PaymentRef: paymentRef,
		Reason:     reason,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
}
