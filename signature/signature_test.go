package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beaconhq/beacon/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"name":"lead_submitted"}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000)

	got := signature.Sign(payload, secret, timestamp)

	// Compute expected HMAC-SHA256 independently.
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"status":"booking_confirmed","value_cents":12900}`)
	secret := "whsec_roundtripsecret"
	now := time.Now().Unix()

	sig := signature.Sign(payload, secret, now)
	ts := strconv.FormatInt(now, 10)

	if err := signature.Verify(payload, sig, secret, ts, 0); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}

	// A bare hex signature (no "sha256=" prefix) also verifies.
	bare := strings.TrimPrefix(sig, "sha256=")
	if err := signature.Verify(payload, bare, secret, ts, 0); err != nil {
		t.Errorf("Verify(bare hex) = %v, want nil", err)
	}
}

func TestVerifyWithoutTimestamp(t *testing.T) {
	payload := []byte(`{"ping":true}`)
	secret := "whsec_nots"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	if err := signature.Verify(payload, sig, secret, "", 0); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}
}

func TestVerifyFailureReasons(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"
	now := time.Now().Unix()
	sig := signature.Sign(payload, secret, now)
	ts := strconv.FormatInt(now, 10)

	tests := []struct {
		name      string
		payload   []byte
		sig       string
		secret    string
		timestamp string
		want      error
	}{
		{
			name:    "missing signature",
			payload: payload, sig: "", secret: secret, timestamp: ts,
			want: signature.ErrMissingSignature,
		},
		{
			name:    "secret not configured",
			payload: payload, sig: sig, secret: "", timestamp: ts,
			want: signature.ErrNoSecret,
		},
		{
			name:    "non-numeric timestamp",
			payload: payload, sig: sig, secret: secret, timestamp: "not-a-number",
			want: signature.ErrInvalidTimestamp,
		},
		{
			name:    "stale timestamp",
			payload: payload, sig: signature.Sign(payload, secret, now-400), secret: secret,
			timestamp: strconv.FormatInt(now-400, 10),
			want:      signature.ErrTimestampTooOld,
		},
		{
			name:    "tampered payload",
			payload: []byte(`{"original":false}`), sig: sig, secret: secret, timestamp: ts,
			want: signature.ErrMismatch,
		},
		{
			name:    "wrong secret",
			payload: payload, sig: sig, secret: "whsec_other", timestamp: ts,
			want: signature.ErrMismatch,
		},
		{
			name:    "truncated signature",
			payload: payload, sig: sig[:20], secret: secret, timestamp: ts,
			want: signature.ErrMismatch,
		},
		{
			name:    "non-hex signature",
			payload: payload, sig: "sha256=zzzz", secret: secret, timestamp: ts,
			want: signature.ErrMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signature.Verify(tt.payload, tt.sig, tt.secret, tt.timestamp, 300*time.Second)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHeaders(t *testing.T) {
	payload := []byte(`{"name":"page_view"}`)
	secret := signature.GenerateSecret()

	headers := signature.Headers(payload, secret)

	sig := headers[signature.HeaderSignature]
	ts := headers[signature.HeaderTimestamp]

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature header = %q, want sha256= prefix", sig)
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		t.Errorf("timestamp header = %q, want unix seconds", ts)
	}

	// Generated headers verify against the same payload and secret.
	if err := signature.Verify(payload, sig, secret, ts, 0); err != nil {
		t.Errorf("Verify(generated headers) = %v, want nil", err)
	}
}

func TestGenerateSecretFormat(t *testing.T) {
	s := signature.GenerateSecret()
	if !strings.HasPrefix(s, "whsec_") || len(s) != 70 {
		t.Errorf("GenerateSecret() = %q, want whsec_ prefix and 70 chars", s)
	}
	if s == signature.GenerateSecret() {
		t.Error("expected two generated secrets to differ")
	}
}
