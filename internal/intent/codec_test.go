package intent_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/intent"
)

func baseIntent(details domain.CategoryDetails) domain.PendingIntent {
	accountID := uuid.New()
	return domain.PendingIntent{
		Category:   details.Category(),
		ServiceID:  uuid.New(),
		PartySize:  2,
		Holder:     domain.Holder{AccountID: &accountID},
		Details:    details,
		TotalCents: 15000,
		Currency:   "usd",
	}
}

func TestEncodeDecode_RoundTripAllCategories(t *testing.T) {
	roomID := uuid.New()
	cases := map[string]domain.CategoryDetails{
		"excursion": domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"},
		"lodging":   domain.LodgingDetails{CheckIn: "2026-09-14", CheckOut: "2026-09-18", RoomID: &roomID},
		"dining":    domain.DiningDetails{Date: "2026-09-15", Slot: domain.TimeSlot{Start: "19:00", End: "21:00"}},
		"transport": domain.TransportDetails{Date: "2026-09-14", Time: "14:00", Pickup: "airport", Dropoff: "north pier"},
		"spa":       domain.SpaDetails{Date: "2026-09-16", Slot: domain.TimeSlot{Start: "11:00"}, Treatment: "deep tissue"},
	}

	for name, details := range cases {
		t.Run(name, func(t *testing.T) {
			it := baseIntent(details)
			it.OptionID = ptr(uuid.New())

			metadata, err := intent.Encode(it, intent.DefaultKey)
			require.NoError(t, err)
			require.True(t, intent.Present(metadata, intent.DefaultKey))

			got, err := intent.Decode(metadata, intent.DefaultKey)
			require.NoError(t, err)
			assert.Equal(t, it, got)
		})
	}
}

func TestEncode_SingleSlotWithinCeiling(t *testing.T) {
	it := baseIntent(domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"})

	metadata, err := intent.Encode(it, intent.DefaultKey)
	require.NoError(t, err)

	require.Len(t, metadata, 1)
	assert.LessOrEqual(t, len(metadata[intent.DefaultKey]), intent.MaxSlotBytes)
}

func TestEncode_OversizedSplitsAcrossSlots(t *testing.T) {
	it := baseIntent(domain.TransportDetails{
		Date:    "2026-09-14",
		Time:    "14:00",
		Pickup:  strings.Repeat("very long pickup instructions ", 8),
		Dropoff: strings.Repeat("equally long dropoff notes ", 6),
	})

	metadata, err := intent.Encode(it, intent.DefaultKey)
	require.NoError(t, err)

	require.Len(t, metadata, 2)
	assert.Contains(t, metadata, "intent_core")
	assert.Contains(t, metadata, "intent_extra")
	for k, v := range metadata {
		assert.LessOrEqual(t, len(v), intent.MaxSlotBytes, "slot %s over ceiling", k)
	}

	got, err := intent.Decode(metadata, intent.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, it, got)
}

func TestEncode_ExtraSlotCarriesOnlyOverflowFields(t *testing.T) {
	it := baseIntent(domain.TransportDetails{
		Date:    "2026-09-14",
		Time:    "14:00",
		Pickup:  strings.Repeat("very long pickup instructions ", 8),
		Dropoff: strings.Repeat("equally long dropoff notes ", 6),
	})

	metadata, err := intent.Encode(it, intent.DefaultKey)
	require.NoError(t, err)
	require.Contains(t, metadata, "intent_extra")

	// Zero-valued core fields in the extra slot would overwrite the core
	// slot's category, service, party size and total during the merge.
	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(metadata["intent_extra"]), &extra))
	for _, k := range []string{"v", "c", "s", "o", "n", "t", "u", "ha", "hn", "he"} {
		assert.NotContains(t, extra, k)
	}

	got, err := intent.Decode(metadata, intent.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, it.Category, got.Category)
	assert.Equal(t, it.ServiceID, got.ServiceID)
	assert.Equal(t, it.PartySize, got.PartySize)
	assert.Equal(t, it.TotalCents, got.TotalCents)
}

func TestEncode_TooLargeForBothSlots(t *testing.T) {
	it := baseIntent(domain.TransportDetails{
		Date:    "2026-09-14",
		Time:    "14:00",
		Pickup:  strings.Repeat("x", 400),
		Dropoff: strings.Repeat("y", 400),
	})

	_, err := intent.Encode(it, intent.DefaultKey)
	require.ErrorIs(t, err, intent.ErrTooLarge)
}

func TestEncode_InvalidIntentRejected(t *testing.T) {
	it := baseIntent(domain.ExcursionDetails{Date: "2026-09-14"}) // missing time

	_, err := intent.Encode(it, intent.DefaultKey)
	require.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	it := baseIntent(domain.DiningDetails{Date: "2026-09-15", Slot: domain.TimeSlot{Start: "19:00"}})
	valid, err := intent.Encode(it, intent.DefaultKey)
	require.NoError(t, err)

	cases := map[string]map[string]string{
		"missing slot":        {"unrelated": "x"},
		"empty metadata":      {},
		"not json":            {intent.DefaultKey: "not json at all"},
		"truncated":           {intent.DefaultKey: valid[intent.DefaultKey][:20]},
		"core without fields": {intent.DefaultKey + "_core": `{"v":1}`},
		"wrong category":      {intent.DefaultKey: `{"v":1,"c":"submarine","s":"` + uuid.NewString() + `","n":1,"t":100,"he":"g@x.io"}`},
		"missing details": {intent.DefaultKey: `{"v":1,"c":"excursion","s":"` +
			uuid.NewString() + `","n":2,"t":100,"he":"g@x.io"}`},
	}

	for name, metadata := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := intent.Decode(metadata, intent.DefaultKey)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedIntent), "got %v", err)
		})
	}
}

func TestDecode_GuestHolderRoundTrip(t *testing.T) {
	it := baseIntent(domain.SpaDetails{Date: "2026-09-16", Slot: domain.TimeSlot{Start: "11:00"}, Treatment: "hot stone"})
	it.Holder = domain.Holder{GuestName: "Kai Moana", GuestEmail: "kai@example.com"}
	it.Participants = []uuid.UUID{uuid.New(), uuid.New()}

	metadata, err := intent.Encode(it, intent.DefaultKey)
	require.NoError(t, err)

	got, err := intent.Decode(metadata, intent.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, it, got)
}

func TestEncode_PerItemKeysDoNotCollide(t *testing.T) {
	a := baseIntent(domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"})
	b := baseIntent(domain.DiningDetails{Date: "2026-09-15", Slot: domain.TimeSlot{Start: "19:00"}})

	metadata := map[string]string{}
	for key, it := range map[string]domain.PendingIntent{"item_0": a, "item_1": b} {
		slots, err := intent.Encode(it, key)
		require.NoError(t, err)
		for k, v := range slots {
			metadata[k] = v
		}
	}

	gotA, err := intent.Decode(metadata, "item_0")
	require.NoError(t, err)
	gotB, err := intent.Decode(metadata, "item_1")
	require.NoError(t, err)
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
}

func ptr[T any](v T) *T { return &v }
