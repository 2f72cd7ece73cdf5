package schemas

import "encoding/json"

// Capability is a registered, named operation the executor can perform.
type Capability struct {
	ID          string `json:"id" yaml:"id"` // Dotted identifier; the prefix is its domain (e.g. "input.type_text").
	Description string `json:"description" yaml:"description"`
	// ParameterSchema is a JSON Schema object describing the accepted parameters.
	ParameterSchema json.RawMessage `json:"parameter_schema,omitempty" yaml:"-"`
}

// CapabilityRegistry is the read side of the tool registry the core depends on.
type CapabilityRegistry interface {
	ListAll() []Capability
	Has(id string) bool
}
