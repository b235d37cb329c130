// Package tools defines the callable tool surface the model can reach: the
// built-in filesystem, command and web tools, plus proxies for tools served
// by an external tool server. Every execution goes through the registry,
// which validates arguments against the tool's schema first.
package tools

import (
	"context"

	"github.com/halim/aria/pkg/provider"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Tool is one callable capability.
type Tool interface {
	// Name is the stable identifier advertised to the model.
	Name() string
	// Description tells the model when to use the tool.
	Description() string
	// Params lists the accepted arguments.
	Params() []Param
	// Execute runs the tool. The returned string goes back to the model
	// verbatim; an error becomes an error-flagged tool result, not a
	// turn failure.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// SchemaProvider lets a tool supply its own JSON Schema instead of the one
// generated from Params. Remote tools use it to forward the server's schema
// untouched.
type SchemaProvider interface {
	InputSchema() map[string]any
}

func schemaOf(t Tool) map[string]any {
	if sp, ok := t.(SchemaProvider); ok {
		if schema := sp.InputSchema(); schema != nil {
			return schema
		}
	}
	return schemaFor(t.Params())
}

// schemaFor builds the JSON Schema object for a tool's parameters.
func schemaFor(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	required := []string{}
	for _, p := range params {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// SpecFor converts a tool to its provider advertisement.
func SpecFor(t Tool) provider.ToolSpec {
	return provider.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: schemaOf(t),
	}
}

// helpers shared by the built-in tools

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func numberArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}
