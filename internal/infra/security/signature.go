package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
)

// SignatureVerifier checks HMAC-SHA256 signatures over raw webhook bodies.
// With no secret configured it accepts every body and warns once.
type SignatureVerifier struct {
	secret   []byte
	log      *zerolog.Logger
	warnOnce sync.Once
}

func NewSignatureVerifier(secret string, logger *zerolog.Logger) *SignatureVerifier {
	compLog := logger.With().Str("component", "SignatureVerifier").Logger()
	v := &SignatureVerifier{secret: []byte(secret), log: &compLog}
	if len(v.secret) == 0 {
		v.warn()
	}
	return v
}

func (v *SignatureVerifier) warn() {
	v.warnOnce.Do(func() {
		v.log.Warn().Msg("webhook secret is not configured; signature verification is DISABLED")
	})
}

// Enabled reports whether a secret is configured.
func (v *SignatureVerifier) Enabled() bool { return len(v.secret) > 0 }

// Verify returns nil when signatureHex is the hex HMAC-SHA256 of body under the secret.
// Any decoding problem is treated as a mismatch.
func (v *SignatureVerifier) Verify(body []byte, signatureHex string) error {
	if !v.Enabled() {
		v.warn()
		return nil
	}
	sig, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || len(sig) != sha256.Size {
		return domain.ErrSignatureInvalid
	}
	if !hmac.Equal(sig, Sign(v.secret, body)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// Sign computes the raw HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is Sign encoded as lowercase hex, the format senders put in the signature header.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(Sign([]byte(secret), body))
}
