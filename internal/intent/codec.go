// Package intent encodes a pending reservation into gateway metadata and
// decodes it back. The gateway caps each metadata value at 500 bytes, so the
// codec transparently splits an oversized intent across a core slot and an
// extra slot that are merged again on decode.
package intent

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
)

// MaxSlotBytes is the gateway's per-metadata-value ceiling.
const MaxSlotBytes = 500

// DefaultKey is the metadata key for a single-reservation intent. Cart
// checkout uses per-item keys (item_0, item_1, ...).
const DefaultKey = "intent"

const (
	coreSuffix  = "_core"
	extraSuffix = "_extra"
)

var ErrTooLarge = errors.New("intent: encoded intent exceeds both slots")

// wire is the compact metadata form. Every field is omitempty so each split
// slot marshals only the fields it carries; decode merges the slots by
// unmarshalling both into one struct, and an emitted zero value here would
// clobber the core slot's fields during that merge.
type wire struct {
	V  int    `json:"v,omitempty"`
	C  string `json:"c,omitempty"`
	S  string `json:"s,omitempty"`
	O  string `json:"o,omitempty"`
	N  int    `json:"n,omitempty"`
	T  int64  `json:"t,omitempty"`
	U  string `json:"u,omitempty"`
	HA string `json:"ha,omitempty"`
	HN string `json:"hn,omitempty"`
	HE string `json:"he,omitempty"`

	D  string   `json:"d,omitempty"`
	TM string   `json:"tm,omitempty"`
	SS string   `json:"ss,omitempty"`
	SE string   `json:"se,omitempty"`
	CI string   `json:"ci,omitempty"`
	CO string   `json:"co,omitempty"`
	R  string   `json:"r,omitempty"`
	PU string   `json:"pu,omitempty"`
	DO string   `json:"do,omitempty"`
	TR string   `json:"tr,omitempty"`
	PP []string `json:"pp,omitempty"`
}

func (w *wire) splitCore() wire {
	c := *w
	c.D, c.TM, c.SS, c.SE, c.CI, c.CO, c.R, c.PU, c.DO, c.TR, c.PP =
		"", "", "", "", "", "", "", "", "", "", nil
	return c
}

func (w *wire) splitExtra() wire {
	return wire{
		D: w.D, TM: w.TM, SS: w.SS, SE: w.SE,
		CI: w.CI, CO: w.CO, R: w.R, PU: w.PU, DO: w.DO, TR: w.TR, PP: w.PP,
	}
}

func toWire(it domain.PendingIntent) wire {
	w := wire{
		V: 1,
		C: string(it.Category),
		S: it.ServiceID.String(),
		N: it.PartySize,
		T: it.TotalCents,
		U: it.Currency,
	}
	if it.OptionID != nil {
		w.O = it.OptionID.String()
	}
	if it.Holder.AccountID != nil {
		w.HA = it.Holder.AccountID.String()
	}
	w.HN = it.Holder.GuestName
	w.HE = it.Holder.GuestEmail
	for _, p := range it.Participants {
		w.PP = append(w.PP, p.String())
	}

	switch d := it.Details.(type) {
	case domain.ExcursionDetails:
		w.D, w.TM = d.Date, d.Time
	case domain.LodgingDetails:
		w.CI, w.CO = d.CheckIn, d.CheckOut
		if d.RoomID != nil {
			w.R = d.RoomID.String()
		}
	case domain.DiningDetails:
		w.D, w.SS, w.SE = d.Date, d.Slot.Start, d.Slot.End
	case domain.TransportDetails:
		w.D, w.TM, w.PU, w.DO = d.Date, d.Time, d.Pickup, d.Dropoff
	case domain.SpaDetails:
		w.D, w.SS, w.SE, w.TR = d.Date, d.Slot.Start, d.Slot.End, d.Treatment
	}
	return w
}

func (w *wire) details() (domain.CategoryDetails, error) {
	switch domain.Category(w.C) {
	case domain.CategoryExcursion:
		return domain.ExcursionDetails{Date: w.D, Time: w.TM}, nil
	case domain.CategoryLodging:
		d := domain.LodgingDetails{CheckIn: w.CI, CheckOut: w.CO}
		if w.R != "" {
			id, err := uuid.Parse(w.R)
			if err != nil {
				return nil, err
			}
			d.RoomID = &id
		}
		return d, nil
	case domain.CategoryDining:
		return domain.DiningDetails{Date: w.D, Slot: domain.TimeSlot{Start: w.SS, End: w.SE}}, nil
	case domain.CategoryTransport:
		return domain.TransportDetails{Date: w.D, Time: w.TM, Pickup: w.PU, Dropoff: w.DO}, nil
	case domain.CategorySpa:
		return domain.SpaDetails{Date: w.D, Slot: domain.TimeSlot{Start: w.SS, End: w.SE}, Treatment: w.TR}, nil
	}
	return nil, errors.Newf("unknown category %q", w.C)
}

// Encode writes the intent into metadata under key, or key_core/key_extra
// when the single slot would exceed MaxSlotBytes.
func Encode(it domain.PendingIntent, key string) (map[string]string, error) {
	if err := it.Validate(); err != nil {
		return nil, err
	}
	w := toWire(it)

	single, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if len(single) <= MaxSlotBytes {
		return map[string]string{key: string(single)}, nil
	}

	core, err := json.Marshal(w.splitCore())
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(w.splitExtra())
	if err != nil {
		return nil, err
	}
	if len(core) > MaxSlotBytes || len(extra) > MaxSlotBytes {
		return nil, ErrTooLarge
	}
	return map[string]string{
		key + coreSuffix:  string(core),
		key + extraSuffix: string(extra),
	}, nil
}

// Decode is the inverse of Encode for the given key, accepting either the
// single-slot or split-slot form. Missing or undecodable slots, and decoded
// intents missing a required field for their category, fail with
// domain.ErrMalformedIntent.
func Decode(metadata map[string]string, key string) (domain.PendingIntent, error) {
	var w wire

	if raw, ok := metadata[key]; ok {
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return domain.PendingIntent{}, errors.Wrap(domain.ErrMalformedIntent, err.Error())
		}
	} else {
		core, ok := metadata[key+coreSuffix]
		if !ok {
			return domain.PendingIntent{}, errors.Wrapf(domain.ErrMalformedIntent, "metadata slot %q absent", key)
		}
		if err := json.Unmarshal([]byte(core), &w); err != nil {
			return domain.PendingIntent{}, errors.Wrap(domain.ErrMalformedIntent, err.Error())
		}
		// Unmarshal into the same struct merges the slots: only fields
		// present in the extra slot are overwritten.
		if extra, ok := metadata[key+extraSuffix]; ok {
			if err := json.Unmarshal([]byte(extra), &w); err != nil {
				return domain.PendingIntent{}, errors.Wrap(domain.ErrMalformedIntent, err.Error())
			}
		}
	}

	it, err := fromWire(&w)
	if err != nil {
		return domain.PendingIntent{}, errors.Wrap(domain.ErrMalformedIntent, err.Error())
	}
	if err := it.Validate(); err != nil {
		return domain.PendingIntent{}, errors.Wrap(domain.ErrMalformedIntent, err.Error())
	}
	return it, nil
}

// Present reports whether metadata carries an intent under key.
func Present(metadata map[string]string, key string) bool {
	_, single := metadata[key]
	_, core := metadata[key+coreSuffix]
	return single || core
}

func fromWire(w *wire) (domain.PendingIntent, error) {
	serviceID, err := uuid.Parse(w.S)
	if err != nil {
		return domain.PendingIntent{}, err
	}
	it := domain.PendingIntent{
		Category:   domain.Category(w.C),
		ServiceID:  serviceID,
		PartySize:  w.N,
		TotalCents: w.T,
		Currency:   w.U,
		Holder:     domain.Holder{GuestName: w.HN, GuestEmail: w.HE},
	}
	if w.O != "" {
		id, err := uuid.Parse(w.O)
		if err != nil {
			return domain.PendingIntent{}, err
		}
		it.OptionID = &id
	}
	if w.HA != "" {
		id, err := uuid.Parse(w.HA)
		if err != nil {
			return domain.PendingIntent{}, err
		}
		it.Holder.AccountID = &id
	}
	for _, p := range w.PP {
		id, err := uuid.Parse(p)
		if err != nil {
			return domain.PendingIntent{}, err
		}
		it.Participants = append(it.Participants, id)
	}
	it.Details, err = w.details()
	if err != nil {
		return domain.PendingIntent{}, err
	}
	return it, nil
}
