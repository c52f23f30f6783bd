// Package vault provides symmetric encryption for destination credential
// blobs before they touch durable storage.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MinKeyLength is the minimum acceptable encryption key length. A shorter key
// is a configuration error, not a degraded mode.
const MinKeyLength = 32

// ErrWeakKey is returned when the encryption key is absent or shorter than
// MinKeyLength characters.
var ErrWeakKey = errors.New("vault: encryption key missing or shorter than 32 characters")

// ErrMalformedCiphertext is returned when Open is given input that is not a
// vault-produced ciphertext.
var ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")

// Vault seals and opens JSON-serializable values with AES-256-GCM. The key is
// injected once at construction and validated on every call so that
// misconfiguration surfaces immediately rather than silently.
type Vault struct {
	key string
}

// New creates a Vault with the given process-wide key. Key strength is
// checked per call, not here, so a misconfigured Vault fails loudly at the
// first use instead of at an ignored constructor error.
func New(key string) *Vault {
	return &Vault{key: key}
}

// aead builds the AES-256-GCM primitive after validating the key.
func (v *Vault) aead() (cipher.AEAD, error) {
	if len(v.key) < MinKeyLength {
		return nil, ErrWeakKey
	}

	sum := sha256.Sum256([]byte(v.key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts a JSON-serializable value. The nonce is random, so sealing
// the same value twice yields two different ciphertexts that both open to
// the original value.
func (v *Vault) Seal(obj any) (string, error) {
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("vault: marshal plaintext: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a ciphertext produced by Seal into a generic map.
func (v *Vault) Open(ciphertext string) (map[string]any, error) {
	var out map[string]any
	if err := v.OpenInto(ciphertext, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenInto decrypts a ciphertext produced by Seal into dest.
func (v *Vault) OpenInto(ciphertext string, dest any) error {
	gcm, err := v.aead()
	if err != nil {
		return err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ErrMalformedCiphertext
	}
	if len(raw) < gcm.NonceSize() {
		return ErrMalformedCiphertext
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ErrMalformedCiphertext
	}

	if err := json.Unmarshal(plaintext, dest); err != nil {
		return fmt.Errorf("vault: unmarshal plaintext: %w", err)
	}
	return nil
}
