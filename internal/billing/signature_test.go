package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	header := SignatureHeader(secret, now, body)
	assert.NoError(t, VerifySignature(secret, header, body, now, tolerance))

	// Clock skew inside the window is fine, either direction.
	assert.NoError(t, VerifySignature(secret, header, body, now.Add(4*time.Minute), tolerance))
	assert.NoError(t, VerifySignature(secret, header, body, now.Add(-4*time.Minute), tolerance))
}

func TestVerifySignature_Rejections(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	header := SignatureHeader(secret, now, body)

	// Tampered body.
	err := VerifySignature(secret, header, []byte(`{"id":"evt_2"}`), now, tolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Wrong secret.
	err = VerifySignature("whsec_other", header, body, now, tolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Replayed outside the tolerance window.
	err = VerifySignature(secret, header, body, now.Add(6*time.Minute), tolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Malformed headers.
	assert.ErrorIs(t, VerifySignature(secret, "", body, now, tolerance), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, "v1=deadbeef", body, now, tolerance), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, "t=notanumber,v1=deadbeef", body, now, tolerance), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, "t=1736510400", body, now, tolerance), ErrInvalidSignature)
}
