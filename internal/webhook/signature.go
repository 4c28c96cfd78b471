package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	SignaturePrefix = "sha256="
)

// ErrSignatureInvalid is returned when a delivery cannot be authenticated.
var ErrSignatureInvalid = errors.New("invalid signature")

// VerifySignature verifies the HMAC-SHA256 signature GitHub sends in
// X-Hub-Signature-256. Anything other than a well-formed "sha256=<hex>"
// digest of the right length is rejected.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	receivedHex, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok {
		return false
	}

	received, err := hex.DecodeString(receivedHex)
	if err != nil || len(received) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(mac.Sum(nil), received)
}

// Sign returns the X-Hub-Signature-256 value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verifier authenticates webhook deliveries against the shared secret.
//
// Verification fails closed: a missing secret or a missing signature header
// rejects the delivery. AllowUnsigned restores the permissive behaviour for
// environments that cannot sign (it still rejects a signature that is
// present and wrong whenever a secret is configured).
type Verifier struct {
	Secret        string
	AllowUnsigned bool
}

// Verify returns nil when payload is authentic, or an error wrapping
// ErrSignatureInvalid.
func (v Verifier) Verify(payload []byte, signature string) error {
	if v.Secret == "" {
		if v.AllowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: no webhook secret configured", ErrSignatureInvalid)
	}

	if signature == "" {
		if v.AllowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	if !VerifySignature(payload, signature, v.Secret) {
		return fmt.Errorf("%w: signature mismatch", ErrSignatureInvalid)
	}

	return nil
}
