// Package schema validates inbound request bodies against JSON Schema
// definitions before they reach the pipeline.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const trackSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 128, "pattern": "^[a-z][a-z0-9_]*$"},
		"source": {"type": "string", "maxLength": 64},
		"session_id": {"type": "string", "maxLength": 128},
		"device_id": {"type": "string", "maxLength": 128},
		"user_id": {"type": "string", "maxLength": 128},
		"utm_source": {"type": "string", "maxLength": 256},
		"utm_medium": {"type": "string", "maxLength": 256},
		"utm_campaign": {"type": "string", "maxLength": 256},
		"utm_term": {"type": "string", "maxLength": 256},
		"utm_content": {"type": "string", "maxLength": 256},
		"referrer": {"type": "string", "maxLength": 2048},
		"landing_url": {"type": "string", "maxLength": 2048},
		"gclid": {"type": "string", "maxLength": 512},
		"gbraid": {"type": "string", "maxLength": 512},
		"wbraid": {"type": "string", "maxLength": 512},
		"msclkid": {"type": "string", "maxLength": 512},
		"fbclid": {"type": "string", "maxLength": 512},
		"ttclid": {"type": "string", "maxLength": 512},
		"external_event_id": {"type": "string", "maxLength": 256},
		"consent": {
			"type": "object",
			"properties": {
				"analytics_storage": {"type": "string", "enum": ["granted", "denied"]},
				"ad_storage": {"type": "string", "enum": ["granted", "denied"]},
				"ad_user_data": {"type": "string", "enum": ["granted", "denied"]},
				"ad_personalization": {"type": "string", "enum": ["granted", "denied"]}
			},
			"additionalProperties": false
		},
		"payload": {"type": "object"}
	},
	"additionalProperties": false
}`

const conversionSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "enum": ["lead_submitted", "booking_confirmed", "job_completed"]},
		"value_cents": {"type": "integer", "minimum": 0},
		"currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
		"lead_id": {"type": "string", "maxLength": 128},
		"job_id": {"type": "string", "maxLength": 128},
		"invoice_id": {"type": "string", "maxLength": 128},
		"session_id": {"type": "string", "maxLength": 128},
		"device_id": {"type": "string", "maxLength": 128},
		"user_id": {"type": "string", "maxLength": 128},
		"utm_source": {"type": "string", "maxLength": 256},
		"utm_medium": {"type": "string", "maxLength": 256},
		"utm_campaign": {"type": "string", "maxLength": 256},
		"gclid": {"type": "string", "maxLength": 512},
		"msclkid": {"type": "string", "maxLength": 512},
		"payload": {"type": "object"}
	},
	"additionalProperties": false
}`

// Validator validates inbound track and conversion bodies.
type Validator struct {
	once       sync.Once
	compileErr error
	track      *jsonschema.Schema
	conversion *jsonschema.Schema
}

// NewValidator creates a validator. Schemas compile lazily on first use.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTrack checks decoded JSON of a track request body.
func (v *Validator) ValidateTrack(data any) error {
	if err := v.ensure(); err != nil {
		return err
	}
	if err := v.track.Validate(data); err != nil {
		return fmt.Errorf("invalid track body: %w", err)
	}
	return nil
}

// ValidateConversion checks decoded JSON of a conversion request body.
func (v *Validator) ValidateConversion(data any) error {
	if err := v.ensure(); err != nil {
		return err
	}
	if err := v.conversion.Validate(data); err != nil {
		return fmt.Errorf("invalid conversion body: %w", err)
	}
	return nil
}

func (v *Validator) ensure() error {
	v.once.Do(func() {
		v.track, v.compileErr = compile("beacon://schema/track", trackSchema)
		if v.compileErr != nil {
			return
		}
		v.conversion, v.compileErr = compile("beacon://schema/conversion", conversionSchema)
	})
	return v.compileErr
}

func compile(url, raw string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
