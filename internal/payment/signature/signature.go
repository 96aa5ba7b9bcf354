// Package signature validates gateway payment callbacks.
//
// The gateway signs "<order id>|<payment id>" with HMAC-SHA256 keyed by the
// merchant secret and sends the lowercase hex digest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func payload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// Sign returns the hex signature the gateway would send for the pair.
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload(orderID, paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is exactly the hex digest Sign produces
// for the pair under secret. An empty secret never verifies.
func Verify(orderID, paymentID, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(orderID, paymentID, secret)))
}

// Verifier binds a secret for callers that verify many callbacks.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(orderID, paymentID, signature string) bool {
	return Verify(orderID, paymentID, signature, v.secret)
}

func (v *Verifier) Sign(orderID, paymentID string) string {
	return Sign(orderID, paymentID, v.secret)
}
