package routing_test

import (
	"slices"
	"testing"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/routing"
)

func TestRoutesFor(t *testing.T) {
	analyticsOnly := []destination.Type{
		destination.TypeGA4,
		destination.TypePostHog,
	}
	conversionOnly := []destination.Type{
		destination.TypeMetaCAPI,
		destination.TypeGoogleAdsOffline,
		destination.TypeMicrosoftAdsOffline,
		destination.TypeTikTokEventsAPI,
		destination.TypeSnapCAPI,
		destination.TypePinterestCAPI,
	}
	both := append(slices.Clone(analyticsOnly), conversionOnly...)

	tests := []struct {
		event string
		want  []destination.Type
	}{
		{"page_view", analyticsOnly},
		{"cta_click", analyticsOnly},
		{"phone_click", analyticsOnly},
		{"form_start", analyticsOnly},
		{"booking_started", analyticsOnly},
		{"article_view", analyticsOnly},
		{"article_read_50", analyticsOnly},
		{"media_view", analyticsOnly},
		{"lead_submitted", both},
		{"booking_confirmed", both},
		{"job_completed", conversionOnly},
		{"unknown_event", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			got := routing.RoutesFor(tt.event)
			if !slices.Equal(got, tt.want) {
				t.Errorf("RoutesFor(%q) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestRoutesForNoDuplicates(t *testing.T) {
	for _, name := range routing.KnownEvents() {
		types := routing.RoutesFor(name)
		seen := make(map[destination.Type]bool, len(types))
		for _, dt := range types {
			if seen[dt] {
				t.Errorf("RoutesFor(%q) lists %s twice", name, dt)
			}
			seen[dt] = true
		}
	}
}

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		event string
		want  []destination.Capability
	}{
		{"page_view", []destination.Capability{destination.CapabilityAnalytics}},
		{"lead_submitted", []destination.Capability{destination.CapabilityAnalytics, destination.CapabilityAdConversion}},
		{"job_completed", []destination.Capability{destination.CapabilityAdConversion}},
		{"checkout", nil},
	}

	for _, tt := range tests {
		got := routing.CapabilitiesFor(tt.event)
		if !slices.Equal(got, tt.want) {
			t.Errorf("CapabilitiesFor(%q) = %v, want %v", tt.event, got, tt.want)
		}
	}
}

func TestRoutable(t *testing.T) {
	if !routing.Routable("page_view") {
		t.Error("page_view should be routable")
	}
	if !routing.Routable("job_completed") {
		t.Error("job_completed should be routable")
	}
	if routing.Routable("made_up") {
		t.Error("unknown event should not be routable")
	}
}
