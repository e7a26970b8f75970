package service

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// WellKnownPath is where the discovery document is served.
const WellKnownPath = "/.well-known/agent.json"

// AgentCard is the static discovery descriptor: what the service does, how
// to authenticate (payment), whether it streams, and what shape its input
// takes.
type AgentCard struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Version         string                 `json:"version"`
	URL             string                 `json:"url"`
	AuthSchemes     []string               `json:"authSchemes"`
	Capabilities    AgentCapabilities      `json:"capabilities"`
	ExampleQueries  []string               `json:"exampleQueries,omitempty"`
	InputSchema     map[string]interface{} `json:"inputSchema"`
	ProtocolVersion string                 `json:"protocolVersion"`
}

// AgentCapabilities flags optional features of the service.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// DefaultInputSchema describes the submission input shape.
func DefaultInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "The query to answer",
			},
			"contextId": map[string]interface{}{
				"type":        "string",
				"description": "Conversation to continue; omit to start a new one",
			},
		},
		"required": []interface{}{"content"},
	}
}

// Discovery serves the agent card and validates submissions against its
// input schema.
type Discovery struct {
	card   AgentCard
	schema *gojsonschema.Schema
}

// NewDiscovery compiles the card's input schema so an invalid schema fails
// at startup, not on first request.
func NewDiscovery(card AgentCard) (*Discovery, error) {
	if card.InputSchema == nil {
		card.InputSchema = DefaultInputSchema()
	}
	if card.ProtocolVersion == "" {
		card.ProtocolVersion = TaskProtocolVersion
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(card.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return &Discovery{card: card, schema: schema}, nil
}

// Card returns the discovery document.
func (d *Discovery) Card() AgentCard {
	return d.card
}

// ValidateInput checks a submission against the input schema. Returns a
// descriptive error listing the first violation.
func (d *Discovery) ValidateInput(input map[string]interface{}) error {
	result, err := d.schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("input validation failed: %w", err)
	}
	if !result.Valid() {
		for _, violation := range result.Errors() {
			return fmt.Errorf("%w: %s", ErrInvalidInput, violation.String())
		}
	}
	return nil
}
