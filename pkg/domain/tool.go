package domain

import (
	"encoding/json"
)

// ToolDescriptor defines a tool advertised to the calling client.
// Descriptors are static: they are built once at startup and never mutated.
type ToolDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	InputSchema Schema `json:"inputSchema" yaml:"input_schema"`
}

// Schema is the structural contract over the arguments of a tool.
// It is a small subset of JSON Schema: an object with flat, typed properties.
type Schema struct {
	Type       string     `yaml:"type"`
	Properties []Property `yaml:"properties"`
	Required   []string   `yaml:"required"`
}

// Property describes a single tool argument.
type Property struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"` // "string" or "object"
	Description string   `yaml:"description"`
	Enum        []string `yaml:"enum,omitempty"`
}

// Property types understood by the transports.
const (
	PropertyString = "string"
	PropertyObject = "object"
)

// IsRequired reports whether the named property is listed as required.
func (s Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// MarshalJSON renders the schema in JSON Schema shape, with properties keyed by name.
func (s Schema) MarshalJSON() ([]byte, error) {
	props := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}

	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	out := map[string]any{
		"type":       typ,
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return json.Marshal(out)
}

// Invocation is one request to execute a named tool.
// Arguments is the raw bag received from the transport; it is decoded
// into a concrete Request by the dispatcher. RawArguments, when the transport
// has it, is the same bag as sent on the wire and carries its key order.
type Invocation struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Arguments    map[string]any  `json:"arguments,omitempty"`
	RawArguments json.RawMessage `json:"-"`
}
