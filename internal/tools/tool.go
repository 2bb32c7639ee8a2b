package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param describes one named tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default is applied when an optional parameter is absent or null.
	Default any
}

// Args holds bound, validated tool arguments.
type Args map[string]any

// String returns the string argument name, or "".
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Handler executes a tool. The returned JSON is relayed to the caller verbatim.
type Handler func(ctx context.Context, args Args) (json.RawMessage, error)

// Descriptor declares a callable tool. It is not modified after registration.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Definition is the MCP wire form of a Descriptor, used for discovery.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
	Annotations map[string]any `json:"annotations,omitempty"`
}

// Definition renders the descriptor for tools/list.
func (d *Descriptor) Definition() Definition {
	properties := make(map[string]any, len(d.Params))
	required := []string{}
	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return Definition{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
		Annotations: map[string]any{
			"title":         d.Name,
			"readOnlyHint":  true,
			"openWorldHint": true,
		},
	}
}

// Bind validates raw JSON arguments against the parameter schema and fills
// defaults. Unknown argument names are returned so the caller can log them.
func (d *Descriptor) Bind(raw json.RawMessage) (Args, []string, error) {
	in := map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&in); err != nil {
			return nil, nil, &Error{
				Kind:    KindInvalidArgument,
				Message: fmt.Sprintf("arguments for %s must be a JSON object: %v", d.Name, err),
			}
		}
	}

	args := make(Args, len(d.Params))
	known := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = true

		v, ok := in[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, nil, newInvalidArgument(p.Name, "missing required parameter %q", p.Name)
			}
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}

		converted, ok := convert(p.Type, v)
		if !ok {
			return nil, nil, newInvalidArgument(p.Name, "parameter %q must be of type %s", p.Name, p.Type)
		}
		args[p.Name] = converted
	}

	var unknown []string
	for name := range in {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}

	return args, unknown, nil
}

func convert(t ParamType, v any) (any, bool) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return nil, false
		}
		i, err := n.Int64()
		return i, err == nil
	case TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return nil, false
		}
		f, err := n.Float64()
		return f, err == nil
	}
	return v, true
}
