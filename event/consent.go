package event

// ConsentState is a single consent flag value.
type ConsentState string

const (
	// Granted indicates the visitor granted this consent category.
	Granted ConsentState = "granted"

	// Denied indicates the visitor denied this consent category.
	Denied ConsentState = "denied"
)

// Consent holds the four independent consent flags attached to an event.
// Every flag defaults to denied.
type Consent struct {
	AnalyticsStorage  ConsentState `json:"analytics_storage"`
	AdStorage         ConsentState `json:"ad_storage"`
	AdUserData        ConsentState `json:"ad_user_data"`
	AdPersonalization ConsentState `json:"ad_personalization"`
}

// DefaultConsent returns a Consent with every flag denied.
func DefaultConsent() Consent {
	return Consent{
		AnalyticsStorage:  Denied,
		AdStorage:         Denied,
		AdUserData:        Denied,
		AdPersonalization: Denied,
	}
}

// FullConsent returns a Consent with every flag granted. Server-originated
// conversion events carry full consent because they are not subject to
// client-side consent gating.
func FullConsent() Consent {
	return Consent{
		AnalyticsStorage:  Granted,
		AdStorage:         Granted,
		AdUserData:        Granted,
		AdPersonalization: Granted,
	}
}

// Normalize replaces empty flags with denied so that a partially-populated
// consent object never reads as granted.
func (c Consent) Normalize() Consent {
	if c.AnalyticsStorage != Granted {
		c.AnalyticsStorage = Denied
	}
	if c.AdStorage != Granted {
		c.AdStorage = Denied
	}
	if c.AdUserData != Granted {
		c.AdUserData = Denied
	}
	if c.AdPersonalization != Granted {
		c.AdPersonalization = Denied
	}
	return c
}
