// Package destination defines configured third-party delivery targets and
// their management service.
package destination

import (
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// Type identifies a supported third-party platform.
type Type string

// Supported platform types.
const (
	TypeGA4                 Type = "ga4"
	TypePostHog             Type = "posthog"
	TypeMetaCAPI            Type = "meta_capi"
	TypeGoogleAdsOffline    Type = "google_ads_offline"
	TypeMicrosoftAdsOffline Type = "microsoft_ads_offline"
	TypeTikTokEventsAPI     Type = "tiktok_events_api"
	TypeSnapCAPI            Type = "snap_capi"
	TypePinterestCAPI       Type = "pinterest_capi"
)

// All returns every supported type in stable order.
func All() []Type {
	return []Type{
		TypeGA4,
		TypePostHog,
		TypeMetaCAPI,
		TypeGoogleAdsOffline,
		TypeMicrosoftAdsOffline,
		TypeTikTokEventsAPI,
		TypeSnapCAPI,
		TypePinterestCAPI,
	}
}

// Valid reports whether t is a supported platform type.
func (t Type) Valid() bool {
	for _, known := range All() {
		if t == known {
			return true
		}
	}
	return false
}

// Capability is a delivery capability tag used by the routing engine.
type Capability string

const (
	// CapabilityAnalytics marks general analytics platforms.
	CapabilityAnalytics Capability = "analytics"

	// CapabilityAdConversion marks ad platforms that accept conversion
	// uploads and hashed identifying fields.
	CapabilityAdConversion Capability = "ad_conversion"
)

// Capabilities returns the delivery capabilities of this platform type.
func (t Type) Capabilities() []Capability {
	switch t {
	case TypeGA4, TypePostHog:
		return []Capability{CapabilityAnalytics}
	case TypeMetaCAPI, TypeGoogleAdsOffline, TypeMicrosoftAdsOffline,
		TypeTikTokEventsAPI, TypeSnapCAPI, TypePinterestCAPI:
		return []Capability{CapabilityAdConversion}
	default:
		return nil
	}
}

// HasCapability reports whether the type carries the given capability tag.
func (t Type) HasCapability(c Capability) bool {
	for _, have := range t.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// Destination is a configured delivery target. Config is stored only in the
// vault's ciphertext form; the decrypted form lives in memory for the
// duration of a dispatch attempt and is never written back.
type Destination struct {
	entity.Entity

	// ID is the unique TypeID for this destination.
	ID id.ID `json:"id"`

	// Type is the platform this destination delivers to.
	Type Type `json:"type"`

	// Name is the human-readable destination name. (Type, Name) is unique.
	Name string `json:"name"`

	// Enabled indicates whether the destination receives forwarded events.
	Enabled bool `json:"enabled"`

	// ConfigEnc is the vault-sealed credential/config blob. Never serialized.
	ConfigEnc string `json:"-"`

	// IncludeEvents restricts delivery to the listed event names when
	// non-empty.
	IncludeEvents []string `json:"include_events,omitempty"`

	// ExcludeEvents suppresses delivery of the listed event names.
	ExcludeEvents []string `json:"exclude_events,omitempty"`
}

// AcceptsEvent applies the per-destination include/exclude filters to an
// event name. Exclusion wins over inclusion.
func (d *Destination) AcceptsEvent(name string) bool {
	for _, excluded := range d.ExcludeEvents {
		if excluded == name {
			return false
		}
	}
	if len(d.IncludeEvents) == 0 {
		return true
	}
	for _, included := range d.IncludeEvents {
		if included == name {
			return true
		}
	}
	return false
}
