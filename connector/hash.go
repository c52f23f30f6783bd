package connector

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashEmail normalizes an email (trim, lowercase) and returns its SHA-256
// hex digest. Empty input hashes to the empty string.
func HashEmail(email string) string {
	return hashNormalized(email, false)
}

// HashEmailStripped is HashEmail with interior spaces removed first.
// Pinterest and Microsoft normalize identifiers this way.
func HashEmailStripped(email string) string {
	return hashNormalized(email, true)
}

// HashPhone normalizes a phone number toward E.164 and returns its SHA-256
// hex digest. Empty or digit-free input hashes to the empty string.
func HashPhone(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ""
	}
	return sha256Hex(normalized)
}

// NormalizePhone strips formatting and returns a +-prefixed number. Ten
// bare digits are treated as a US national number.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case len(d) == 10:
		return "+1" + d
	case strings.HasPrefix(phone, "+"):
		return "+" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return "+" + d
	}
}

func hashNormalized(s string, stripSpaces bool) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if stripSpaces {
		s = strings.ReplaceAll(s, " ", "")
	}
	if s == "" {
		return ""
	}
	return sha256Hex(s)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
