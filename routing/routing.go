// Package routing maps event names onto destination capability tiers.
//
// Routing is static: an event name selects zero or more capability tags,
// and a tag selects every destination type carrying that capability. Which
// concrete destinations receive the event is decided later against the
// configured destination set.
package routing

import "github.com/beaconhq/beacon/destination"

// analyticsEvents are delivered to general analytics platforms.
var analyticsEvents = map[string]struct{}{
	"page_view":         {},
	"cta_click":         {},
	"phone_click":       {},
	"form_start":        {},
	"lead_submitted":    {},
	"booking_started":   {},
	"booking_confirmed": {},
	"article_view":      {},
	"article_read_50":   {},
	"media_view":        {},
}

// conversionEvents are additionally delivered to ad conversion platforms.
var conversionEvents = map[string]struct{}{
	"lead_submitted":    {},
	"booking_confirmed": {},
	"job_completed":     {},
}

// CapabilitiesFor returns the capability tags an event name routes to,
// in tier order. Unknown event names route nowhere.
func CapabilitiesFor(name string) []destination.Capability {
	var caps []destination.Capability
	if _, ok := analyticsEvents[name]; ok {
		caps = append(caps, destination.CapabilityAnalytics)
	}
	if _, ok := conversionEvents[name]; ok {
		caps = append(caps, destination.CapabilityAdConversion)
	}
	return caps
}

// RoutesFor returns the destination types an event name routes to. The
// result is deduplicated and in stable platform order. An empty slice
// means the event is accepted and recorded but forwarded nowhere.
func RoutesFor(name string) []destination.Type {
	caps := CapabilitiesFor(name)
	if len(caps) == 0 {
		return nil
	}

	var types []destination.Type
	for _, t := range destination.All() {
		for _, c := range caps {
			if t.HasCapability(c) {
				types = append(types, t)
				break
			}
		}
	}
	return types
}

// Routable reports whether the event name routes to at least one tier.
func Routable(name string) bool {
	return len(CapabilitiesFor(name)) > 0
}

// KnownEvents returns every event name the routing table recognizes.
func KnownEvents() []string {
	names := make([]string, 0, len(analyticsEvents)+1)
	for n := range analyticsEvents {
		names = append(names, n)
	}
	for n := range conversionEvents {
		if _, ok := analyticsEvents[n]; !ok {
			names = append(names, n)
		}
	}
	return names
}
