package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"gopkg.in/yaml.v3"
)

// FormatVersion is the only template format version the engine accepts
const FormatVersion = "2010-09-09"

// Format selects the template encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Template is a CloudFormation template
type Template struct {
	FormatVersion string              `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description   string              `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources     map[string]Resource `json:"Resources" yaml:"Resources"`
	Outputs       map[string]Output   `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// Resource is one entry of the Resources section
type Resource struct {
	Type           string         `json:"Type" yaml:"Type"`
	Properties     map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn      []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
}

// Output is one entry of the Outputs section
type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

// Render converts a validated graph into a template. Reference edges are
// carried by the intrinsics inside properties; only explicit edges become
// DependsOn entries.
func Render(g *graph.Graph, description string) (*Template, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	t := &Template{
		FormatVersion: FormatVersion,
		Description:   description,
		Resources:     make(map[string]Resource, g.Len()),
	}

	for _, n := range g.Nodes() {
		props, _ := resolve(n.Properties).(map[string]any)
		t.Resources[n.ID] = Resource{
			Type:           n.Type,
			Properties:     props,
			DependsOn:      g.ExplicitDependenciesOf(n.ID),
			DeletionPolicy: n.DeletionPolicy,
		}
	}

	if outputs := g.Outputs(); len(outputs) > 0 {
		t.Outputs = make(map[string]Output, len(outputs))
		for _, o := range outputs {
			t.Outputs[o.Name] = Output{Description: o.Description, Value: resolve(o.Value)}
		}
	}

	return t, nil
}

// Encode writes the template in the requested format
func (t *Template) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return t.JSON()
	case FormatYAML:
		return t.YAML()
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
}

// JSON returns the indented JSON encoding
func (t *Template) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return append(data, '\n'), nil
}

// Compact returns the JSON encoding without whitespace, used as the request
// body sent to the engine
func (t *Template) Compact() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}
	return string(data), nil
}

// YAML returns the YAML encoding
func (t *Template) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return buf.Bytes(), nil
}

// resolve replaces graph intrinsics with their template function form
func resolve(v any) any {
	switch t := v.(type) {
	case graph.Ref:
		return map[string]any{"Ref": t.ID}
	case *graph.Ref:
		return map[string]any{"Ref": t.ID}
	case graph.Attr:
		return map[string]any{"Fn::GetAtt": []any{t.ID, t.Name}}
	case *graph.Attr:
		return map[string]any{"Fn::GetAtt": []any{t.ID, t.Name}}
	case graph.Join:
		parts := make([]any, len(t.Parts))
		for i, p := range t.Parts {
			parts[i] = resolve(p)
		}
		return map[string]any{"Fn::Join": []any{t.Separator, parts}}
	case graph.Pseudo:
		return map[string]any{"Ref": string(t)}
	case graph.AZ:
		return map[string]any{"Fn::Select": []any{int(t), map[string]any{"Fn::GetAZs": ""}}}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = resolve(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolve(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolve(e)
		}
		return out
	default:
		return v
	}
}
