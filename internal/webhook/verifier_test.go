package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func fixedVerifier(at time.Time) *Verifier {
	v := NewVerifier(testSecret, DefaultTolerance)
	v.now = func() time.Time { return at }
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"payment.succeeded","reference":"pay_abc","amount":15000,"currency":"usd","metadata":{"intent":"{}"}}`)

	v := fixedVerifier(now)
	ev, err := v.Verify(body, Sign(testSecret, body, now))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "pay_abc", ev.Reference)
	assert.Equal(t, int64(15000), ev.AmountCents)
	assert.True(t, ev.Succeeded())
}

func TestVerify_TamperedBody(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"payment.succeeded","reference":"pay_abc","amount":15000}`)
	header := Sign(testSecret, body, now)

	tampered := []byte(`{"id":"evt_1","type":"payment.succeeded","reference":"pay_abc","amount":1}`)
	_, err := fixedVerifier(now).Verify(tampered, header)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)

	_, err := fixedVerifier(now).Verify(body, Sign("whsec_other", body, now))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_StaleTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)

	_, err := fixedVerifier(now).Verify(body, Sign(testSecret, body, now.Add(-6*time.Minute)))
	assert.ErrorIs(t, err, ErrStale)

	// a clock slightly ahead of ours is fine
	_, err = fixedVerifier(now).Verify(body, Sign(testSecret, body, now.Add(time.Minute)))
	assert.NoError(t, err)
}

func TestVerify_MalformedHeader(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"t=123",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"garbage",
	} {
		_, err := fixedVerifier(now).Verify(body, header)
		assert.ErrorIs(t, err, ErrBadSignature, "header %q", header)
	}
}

func TestVerify_NonHexSignature(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	header := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=zzzz"

	_, err := fixedVerifier(now).Verify(body, header)
	assert.ErrorIs(t, err, ErrBadSignature)
}
