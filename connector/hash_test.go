package connector_test

import (
	"testing"

	"github.com/beaconhq/beacon/connector"
)

func TestHashEmail(t *testing.T) {
	// echo -n "user@example.com" | sha256sum
	const want = "b4c9a289323b21a01c3e940f150eb9b8c542587f1abfd8f0e1cc1ffc5e475514"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "user@example.com", want},
		{"mixed case", "User@Example.COM", want},
		{"surrounding space", "  user@example.com  ", want},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := connector.HashEmail(tt.input); got != tt.want {
				t.Errorf("HashEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashEmailStrippedRemovesInteriorSpaces(t *testing.T) {
	if connector.HashEmailStripped("us er@example.com") != connector.HashEmail("user@example.com") {
		t.Error("stripped hash should collapse interior spaces before hashing")
	}
	if connector.HashEmail("us er@example.com") == connector.HashEmail("user@example.com") {
		t.Error("plain hash should preserve interior spaces")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(555) 867-5309", "+15558675309"},
		{"555.867.5309", "+15558675309"},
		{"+1 555 867 5309", "+15558675309"},
		{"15558675309", "+15558675309"},
		{"+44 20 7946 0958", "+442079460958"},
		{"", ""},
		{"no digits", ""},
	}

	for _, tt := range tests {
		if got := connector.NormalizePhone(tt.input); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHashPhoneEquivalentFormats(t *testing.T) {
	a := connector.HashPhone("(555) 867-5309")
	b := connector.HashPhone("+1 555-867-5309")
	if a == "" || a != b {
		t.Errorf("equivalent phone formats should hash identically: %q vs %q", a, b)
	}
	if connector.HashPhone("") != "" {
		t.Error("empty phone should hash to empty string")
	}
}
