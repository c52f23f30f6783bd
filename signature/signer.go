// Package signature provides HMAC-SHA256 webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Header names used on signed webhook requests.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// digest computes the lowercase hex HMAC-SHA256 of the canonical signed
// string: "{timestamp}.{payload}" when a timestamp is bound, else the payload
// alone.
func digest(payload []byte, secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
	}
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign generates the signature for the given payload bound to a unix
// timestamp. Returns the digest in the format "sha256=<hex>".
func Sign(payload []byte, secret string, timestamp int64) string {
	return "sha256=" + digest(payload, secret, strconv.FormatInt(timestamp, 10))
}

// Headers builds the outbound webhook headers for a payload: the
// "sha256="-prefixed signature plus the timestamp it is bound to.
func Headers(payload []byte, secret string) map[string]string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{
		HeaderSignature: "sha256=" + digest(payload, secret, ts),
		HeaderTimestamp: ts,
	}
}
