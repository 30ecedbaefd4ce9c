package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the provider's HMAC-SHA256 signature over
// the exact raw request bytes. The header may carry a "sha256=" scheme
// prefix. The raw body must be hashed as received; verifying a
// re-serialized payload would break on any formatting difference.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	if idx := strings.IndexByte(sig, '='); idx >= 0 {
		scheme := strings.ToLower(sig[:idx])
		if scheme != "sha256" {
			return false
		}
		sig = sig[idx+1:]
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
