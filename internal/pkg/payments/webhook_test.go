package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	sig := Sign(payload, "s3cret")

	assert.True(t, VerifySignature(payload, sig, "s3cret"))
	assert.True(t, VerifySignature(payload, "sha256="+sig, "s3cret"))
	assert.True(t, VerifySignature(payload, " "+sig+" ", "s3cret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"event_id":"evt_2"}`), sig, "s3cret"))
	assert.False(t, VerifySignature(payload, "not-hex", "s3cret"))
	assert.False(t, VerifySignature(payload, "", "s3cret"))
	assert.False(t, VerifySignature(payload, sig, ""))
}

func TestParseTopUp(t *testing.T) {
	ev, err := ParseTopUp([]byte(`{"event_id":"evt_1","seller_id":7,"amount":"25.00","currency":"EUR","status":"succeeded"}`))
	require.NoError(t, err)
	assert.Equal(t, uint(7), ev.SellerID)
	assert.Equal(t, "25", ev.Amount.String())
	assert.Equal(t, "payment:evt_1", ev.Reference())
	assert.True(t, ev.Succeeded())

	failed, err := ParseTopUp([]byte(`{"event_id":"evt_2","seller_id":7,"amount":"0","status":"failed"}`))
	require.NoError(t, err)
	assert.False(t, failed.Succeeded())

	tests := map[string]string{
		"bad json":       `{`,
		"missing event":  `{"seller_id":7,"amount":"1","status":"succeeded"}`,
		"missing seller": `{"event_id":"e","amount":"1","status":"succeeded"}`,
		"zero amount":    `{"event_id":"e","seller_id":7,"amount":"0","status":"succeeded"}`,
		"bad currency":   `{"event_id":"e","seller_id":7,"amount":"1","currency":"EURO","status":"succeeded"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTopUp([]byte(body))
			assert.True(t, aderrors.IsValidation(err), err)
		})
	}
}
