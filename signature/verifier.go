package signature

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is the default acceptance window for timestamped signatures.
const DefaultMaxAge = 300 * time.Second

// Distinct verification failure reasons, surfaced verbatim to callers for
// diagnostics. The secret itself is never echoed.
var (
	// ErrMissingSignature is returned when no signature header was supplied.
	ErrMissingSignature = errors.New("missing signature")

	// ErrNoSecret is returned when the verifying side has no secret configured.
	ErrNoSecret = errors.New("webhook secret not configured")

	// ErrInvalidTimestamp is returned when the timestamp header is not numeric.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrTimestampTooOld is returned when the timestamp falls outside the
	// acceptance window.
	ErrTimestampTooOld = errors.New("webhook timestamp too old")

	// ErrMismatch is returned when the signature does not match the payload.
	ErrMismatch = errors.New("signature mismatch")
)

// Verify checks an inbound webhook signature against the raw request body.
//
// The canonical signed string is "{timestamp}.{payload}" when a timestamp is
// supplied, else the payload alone. Both "sha256=<hex>" and bare hex
// signatures are accepted. Comparison is constant-time over equal-length
// decoded buffers; unequal lengths are an immediate mismatch. A zero or
// negative maxAge falls back to DefaultMaxAge.
func Verify(payload []byte, sig, secret, timestamp string, maxAge time.Duration) error {
	if sig == "" {
		return ErrMissingSignature
	}
	if secret == "" {
		return ErrNoSecret
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	if timestamp != "" {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrInvalidTimestamp
		}

		age := time.Since(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > maxAge {
			return ErrTimestampTooOld
		}
	}

	expected, err := hex.DecodeString(digest(payload, secret, timestamp))
	if err != nil {
		return ErrMismatch
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return ErrMismatch
	}

	if len(expected) != len(provided) {
		return ErrMismatch
	}
	if !hmac.Equal(expected, provided) {
		return ErrMismatch
	}
	return nil
}
