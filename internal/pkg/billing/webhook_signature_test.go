package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stripeSign(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Now()

	t.Run("valid signature", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now)
		assert.True(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := stripeSign(t, payload, "whsec_other", now)
		assert.False(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now)
		assert.False(t, VerifyStripeWebhookSignature([]byte(`{"id":"evt_2"}`), header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("timestamp too old", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now.Add(-10*time.Minute))
		assert.False(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("timestamp in the future", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now.Add(10*time.Minute))
		assert.False(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("zero tolerance disables replay check", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now.Add(-24*time.Hour))
		assert.True(t, VerifyStripeWebhookSignature(payload, header, secret, 0, now))
	})

	t.Run("one valid candidate among several", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now) + ",v1=" + hex.EncodeToString(make([]byte, 32))
		assert.True(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now))
	})

	t.Run("malformed headers", func(t *testing.T) {
		for _, header := range []string{
			"",
			"t=,v1=",
			"t=notanumber,v1=deadbeef",
			"v1=deadbeef",
			fmt.Sprintf("t=%d", now.Unix()),
			"garbage",
		} {
			assert.False(t, VerifyStripeWebhookSignature(payload, header, secret, DefaultStripeSignatureTolerance, now), "header %q", header)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		header := stripeSign(t, payload, secret, now)
		assert.False(t, VerifyStripeWebhookSignature(payload, header, "", DefaultStripeSignatureTolerance, now))
	})
}

func TestVerifyLemonSqueezyWebhookSignature(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"order_created"}}`)
	secret := "ls_secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{name: "valid", payload: payload, signature: valid, secret: secret, want: true},
		{name: "uppercase hex accepted", payload: payload, signature: "" + toUpper(valid), secret: secret, want: true},
		{name: "wrong secret", payload: payload, signature: valid, secret: "other", want: false},
		{name: "tampered payload", payload: []byte(`{}`), signature: valid, secret: secret, want: false},
		{name: "not hex", payload: payload, signature: "zz-not-hex", secret: secret, want: false},
		{name: "empty signature", payload: payload, signature: "", secret: secret, want: false},
		{name: "empty secret", payload: payload, signature: valid, secret: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyLemonSqueezyWebhookSignature(tt.payload, tt.signature, tt.secret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'f' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
