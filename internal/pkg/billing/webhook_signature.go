package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultStripeSignatureTolerance bounds how old a signed Stripe timestamp may
// be before the signature is rejected as a replay.
const DefaultStripeSignatureTolerance = 5 * time.Minute

// VerifyStripeWebhookSignature validates a Stripe-Signature header of the form
// "t=<unix>,v1=<hex hmac>[,v1=...]". The signed message is "<t>.<payload>"
// with HMAC-SHA256 over the webhook secret.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(candidate)))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}

// VerifyLemonSqueezyWebhookSignature validates the X-Signature header: a hex
// HMAC-SHA256 of the raw request body over the webhook secret.
func VerifyLemonSqueezyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}
