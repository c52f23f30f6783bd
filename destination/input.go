package destination

// Input is the request shape for creating or updating a destination.
type Input struct {
	// Type is the platform type. Required.
	Type Type `json:"type"`

	// Name is the human-readable destination name. Required.
	Name string `json:"name"`

	// Enabled toggles whether the destination receives forwarded events.
	Enabled bool `json:"enabled"`

	// Config is the plaintext credential/config object. It is sealed by the
	// service before persistence and never stored as given.
	Config map[string]any `json:"config,omitempty"`

	// IncludeEvents restricts delivery to the listed event names.
	IncludeEvents []string `json:"include_events,omitempty"`

	// ExcludeEvents suppresses delivery of the listed event names.
	ExcludeEvents []string `json:"exclude_events,omitempty"`
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "destination: invalid " + e.Field + ": " + e.Message
}
