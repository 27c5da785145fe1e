// Package tool implements the tool registry, parameter-schema validation,
// and tool-call grammar synthesis described in spec §4.2/§4.3. Grounded on
// the teacher's pkg/provider/types.Tool (tool description shape) and
// pkg/schema.Validator (a stub naming github.com/santhosh-tekuri/jsonschema
// as its intended implementation, which this package completes), adapted
// from "describe a tool for a remote provider's function-calling API" to
// "describe a tool so a local grammar can constrain generation to valid
// calls of it."
package tool

import "github.com/localrt/llmcore/pkg/kernel"

// Tool is one registrable capability. Exactly one of ParameterStruct or
// ParameterSchemaJSON should be set (spec §4.2's two registration paths):
// ParameterStruct is reflected into a schema; ParameterSchemaJSON is taken
// verbatim after validating it falls within the supported subset.
type Tool struct {
	Name        string
	Description string

	// ParameterStruct is the zero value of a Go struct type; its exported
	// fields become the schema's object properties. Field tags:
	//   `tool:"name"`        overrides the property name (default: field name)
	//   `tool:"required"`    marks the property required
	//   `tool:"enum=a|b|c"`  restricts a string field to an enum
	ParameterStruct interface{}

	// ParameterSchemaJSON is a caller-supplied JSON-schema-subset document,
	// used instead of ParameterStruct when the caller already has one.
	ParameterSchemaJSON map[string]interface{}

	// Invoke is the host-side callable (spec §6's "Host-callable tool
	// boundary"). The core guarantees it is only called with arguments
	// already validated against the tool's schema. A returned error is
	// captured and surfaced as a ToolResponse content with an "error:"
	// prefix (spec §4.4); Invoke itself should never need to recover from
	// a panic, but Registry.Invoke does so defensively on the host's behalf.
	Invoke func(arguments map[string]interface{}) (string, error)
}

// compiled is what Registry actually stores: a Tool plus its derived
// schema document and GBNF arguments rule. The jsonschema validator
// compiled at registration is kept beside it, in Registry.validated.
type compiled struct {
	tool       Tool
	schemaJSON map[string]interface{}
	gbnfRule   string // this tool's "arguments" value, as a GBNF rule body
}

// Descriptor converts a compiled tool into the form kernel.RenderTemplate
// expects for presenting tools to the chat template.
func (c compiled) Descriptor() kernel.ToolDescriptor {
	return kernel.ToolDescriptor{
		Name:        c.tool.Name,
		Description: c.tool.Description,
		SchemaJSON:  marshalSchema(c.schemaJSON),
	}
}
