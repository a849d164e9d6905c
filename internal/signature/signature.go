package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
)

// Verifier validates inbound webhook payloads against the configured signing
// secrets. Multiple secrets may be active at once so the gateway secret can
// rotate without a rejection window. Verification has no side effects.
type Verifier struct {
	secrets   [][]byte
	tolerance time.Duration

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

func NewVerifier(secrets [][]byte, tolerance time.Duration) *Verifier {
	return &Verifier{
		secrets:   secrets,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the keyed hash of "timestamp.payload" against the provided
// hex signature. The timestamp is a unix-seconds string; skew beyond the
// tolerance window in either direction is rejected to block replay.
func (v *Verifier) Verify(payload []byte, providedSignature, timestamp string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTimestampExpired, "invalid signature timestamp", err)
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > v.tolerance || skew < -v.tolerance {
		return apierror.NewAPIError(apierror.ErrTimestampExpired, "signature timestamp outside tolerance window", nil)
	}

	signed := make([]byte, 0, len(timestamp)+1+len(payload))
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, payload...)

	provided, err := hex.DecodeString(providedSignature)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrSignatureInvalid, "signature is not valid hex", err)
	}

	for _, secret := range v.secrets {
		mac := hmac.New(sha256.New, secret)
		mac.Write(signed)
		expected := mac.Sum(nil)
		if subtle.ConstantTimeCompare(expected, provided) == 1 {
			return nil
		}
	}
	return apierror.NewAPIError(apierror.ErrSignatureInvalid, "signature does not match any configured secret", nil)
}

// Sign computes the hex signature for a payload at the given timestamp using
// the first configured secret. Used by tests and outbound notifier callers.
func (v *Verifier) Sign(payload []byte, timestamp string) string {
	mac := hmac.New(sha256.New, v.secrets[0])
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
