package vault_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/beaconhq/beacon/vault"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealOpenRoundTrip(t *testing.T) {
	v := vault.New(testKey)

	cfg := map[string]any{
		"pixel_id":     "123456",
		"access_token": "tok_secret",
		"nested":       map[string]any{"region": "us"},
	}

	sealed, err := v.Seal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	opened, err := v.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(opened["pixel_id"], "123456") {
		t.Errorf("pixel_id = %v, want %q", opened["pixel_id"], "123456")
	}
	nested, ok := opened["nested"].(map[string]any)
	if !ok || nested["region"] != "us" {
		t.Errorf("nested = %v, want region=us", opened["nested"])
	}
}

func TestSealNondeterministic(t *testing.T) {
	v := vault.New(testKey)
	cfg := map[string]any{"api_secret": "s3cr3t"}

	first, err := v.Seal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Seal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("expected two seals of the same value to differ")
	}

	for _, sealed := range []string{first, second} {
		opened, openErr := v.Open(sealed)
		if openErr != nil {
			t.Fatal(openErr)
		}
		if opened["api_secret"] != "s3cr3t" {
			t.Errorf("api_secret = %v, want s3cr3t", opened["api_secret"])
		}
	}
}

func TestWeakKeyRejected(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty key", ""},
		{"short key", "tooshort"},
		{"31 chars", "0123456789abcdef0123456789abcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vault.New(tt.key)

			if _, err := v.Seal(map[string]any{"a": 1}); !errors.Is(err, vault.ErrWeakKey) {
				t.Errorf("Seal error = %v, want ErrWeakKey", err)
			}
			if _, err := v.Open("abcd"); !errors.Is(err, vault.ErrWeakKey) {
				t.Errorf("Open error = %v, want ErrWeakKey", err)
			}
		})
	}
}

func TestOpenMalformedCiphertext(t *testing.T) {
	v := vault.New(testKey)

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"too short", "YWJj"},
		{"garbage payload", "YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXoxMjM0NTY="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Open(tt.input); !errors.Is(err, vault.ErrMalformedCiphertext) {
				t.Errorf("Open error = %v, want ErrMalformedCiphertext", err)
			}
		})
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	v := vault.New(testKey)

	sealed, err := v.Seal(map[string]any{"token": "abc"})
	if err != nil {
		t.Fatal(err)
	}

	// Seal under a different key, open under the test key.
	other := vault.New("ffffffffffffffffffffffffffffffff")
	foreign, err := other.Seal(map[string]any{"token": "abc"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Open(foreign); !errors.Is(err, vault.ErrMalformedCiphertext) {
		t.Errorf("Open under wrong key = %v, want ErrMalformedCiphertext", err)
	}

	// Sanity: the original still opens.
	if _, err := v.Open(sealed); err != nil {
		t.Fatal(err)
	}
}

func TestOpenInto(t *testing.T) {
	v := vault.New(testKey)

	type ga4Config struct {
		MeasurementID string `json:"measurement_id"`
		APISecret     string `json:"api_secret"`
	}

	sealed, err := v.Seal(ga4Config{MeasurementID: "G-XYZ", APISecret: "s"})
	if err != nil {
		t.Fatal(err)
	}

	var out ga4Config
	if err := v.OpenInto(sealed, &out); err != nil {
		t.Fatal(err)
	}
	if out.MeasurementID != "G-XYZ" || out.APISecret != "s" {
		t.Errorf("OpenInto = %+v", out)
	}
}
