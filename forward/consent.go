package forward

import (
	"maps"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
)

// identifyingPayloadKeys are payload fields that identify a person and are
// stripped when ad_user_data is denied.
var identifyingPayloadKeys = []string{"email", "phone", "first_name", "last_name", "name", "address"}

// gateConsent applies the event's consent flags to one destination.
//
// Rules: analytics destinations require analytics_storage; ad conversion
// destinations require ad_storage. A denied ad_user_data flag does not
// suppress delivery but strips identifying fields from the event first.
// Server-originated events carry full consent and pass untouched.
func gateConsent(evt *event.Event, d *destination.Destination) (deliver bool, out *event.Event) {
	consent := evt.Consent.Normalize()

	if d.Type.HasCapability(destination.CapabilityAnalytics) && consent.AnalyticsStorage != event.Granted {
		return false, nil
	}
	if d.Type.HasCapability(destination.CapabilityAdConversion) && consent.AdStorage != event.Granted {
		return false, nil
	}

	if d.Type.HasCapability(destination.CapabilityAdConversion) && consent.AdUserData != event.Granted {
		return true, stripIdentity(evt)
	}
	return true, evt
}

// stripIdentity returns a copy of the event with person-identifying fields
// removed. Click identifiers survive: they identify a click, not a person,
// and consent over them is governed by ad_storage.
func stripIdentity(evt *event.Event) *event.Event {
	out := *evt
	out.UserID = ""
	if evt.Payload != nil {
		out.Payload = maps.Clone(evt.Payload)
		for _, k := range identifyingPayloadKeys {
			delete(out.Payload, k)
		}
	}
	return &out
}
