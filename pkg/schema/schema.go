// Package schema formats tool signatures into the JSON-shaped schemas
// four agent frameworks expect: two OpenAI variants, Anthropic, and
// Google Gemini.
package schema

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/reconstruct"
)

// Dialect names one of the four supported schema flavors.
type Dialect string

const (
	OpenAIChatCompletions Dialect = "openai-chat-completions"
	OpenAIResponses       Dialect = "openai-responses"
	Anthropic             Dialect = "anthropic"
	GoogleGemini          Dialect = "google-gemini"
)

// EmissionError reports that a tool's declared types are insufficient
// to produce a schema in the requested dialect.
type EmissionError struct {
	ToolName string
	Dialect  Dialect
	Reason   string
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emitting %s schema for %q: %s", e.Dialect, e.ToolName, e.Reason)
}

// ToolSignature is the minimal shape the formatter needs: a name, a
// description, and an ordered parameter list with each one's
// reconstructed type and whether it's required (no default).
type ToolSignature struct {
	Name        string
	Description string
	Params      []ParamSignature
}

// ParamSignature is one parameter's apparent (post-wrap) shape.
type ParamSignature struct {
	Name     string
	Type     reconstruct.Type
	Required bool
}

// Format emits sig's schema in the given dialect.
func Format(sig ToolSignature, dialect Dialect) (map[string]any, error) {
	properties := make(map[string]any, len(sig.Params))
	required := make([]string, 0, len(sig.Params))

	for _, p := range sig.Params {
		paramSchema, err := formatType(p.Type, dialect)
		if err != nil {
			return nil, &EmissionError{ToolName: sig.Name, Dialect: dialect, Reason: fmt.Sprintf("parameter %q: %v", p.Name, err)}
		}
		properties[p.Name] = paramSchema
		if p.Required {
			required = append(required, p.Name)
		}
	}

	baseParams := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}

	switch dialect {
	case OpenAIChatCompletions:
		params := map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		}
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        dotsToHyphens(sig.Name),
				"description": sig.Description,
				"parameters":  params,
				"strict":      true,
			},
		}, nil

	case OpenAIResponses:
		params := map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		}
		return map[string]any{
			"type":        "function",
			"name":        dotsToHyphens(sig.Name),
			"description": sig.Description,
			"parameters":  params,
		}, nil

	case Anthropic:
		return map[string]any{
			"name":         dotsToHyphens(sig.Name),
			"description":  sig.Description,
			"input_schema": baseParams,
		}, nil

	case GoogleGemini:
		return map[string]any{
			"name": sig.Name,
			"parameters": map[string]any{
				"type":        "object",
				"description": sig.Description,
				"properties":  properties,
				"required":    required,
			},
		}, nil

	default:
		return nil, &EmissionError{ToolName: sig.Name, Dialect: dialect, Reason: "unknown dialect"}
	}
}

// FormatAll formats every tool in sigs, matching original_source's
// duplicate-name check — duplicates are rejected before emission.
func FormatAll(sigs []ToolSignature, dialect Dialect) ([]map[string]any, error) {
	seen := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if seen[s.Name] {
			return nil, &EmissionError{ToolName: s.Name, Dialect: dialect, Reason: "duplicate tool name"}
		}
		seen[s.Name] = true
	}

	out := make([]map[string]any, 0, len(sigs))
	for _, s := range sigs {
		formatted, err := Format(s, dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, formatted)
	}
	return out, nil
}

func dotsToHyphens(name string) string {
	return strings.ReplaceAll(name, ".", "-")
}

func primitiveJSONType(k descriptor.Kind) (string, bool) {
	switch k {
	case descriptor.KindString:
		return "string", true
	case descriptor.KindInteger:
		return "integer", true
	case descriptor.KindNumber:
		return "number", true
	case descriptor.KindBoolean:
		return "boolean", true
	case descriptor.KindNull:
		return "null", true
	case descriptor.KindArray:
		return "array", true
	case descriptor.KindObject:
		return "object", true
	default:
		return "", false
	}
}

// formatType renders one reconstructed type per dialect's rules:
// unions become a type array (non-gemini) or the first non-null
// branch plus a separate "nullable" flag (gemini); restricted values
// become {"enum": [...]}; lists/records/tuples recurse.
func formatType(t reconstruct.Type, dialect Dialect) (map[string]any, error) {
	switch t.Kind {
	case descriptor.KindString, descriptor.KindInteger, descriptor.KindNumber,
		descriptor.KindBoolean, descriptor.KindNull, descriptor.KindArray, descriptor.KindObject:
		name, _ := primitiveJSONType(t.Kind)
		return withNullability(map[string]any{"type": name}, t.Nullable, dialect)

	case descriptor.KindLiteral:
		return literalSchema(t.LiteralValues, t.Nullable, dialect)

	case descriptor.KindEnum:
		values := make([]any, 0, len(t.EnumMembers))
		for _, v := range t.EnumMembers {
			values = append(values, v)
		}
		return literalSchema(values, t.Nullable, dialect)

	case descriptor.KindList:
		if t.ListItem == nil {
			return nil, fmt.Errorf("insufficient type information: untyped list")
		}
		items, err := formatType(*t.ListItem, dialect)
		if err != nil {
			return nil, err
		}
		return withNullability(map[string]any{"type": "array", "items": items}, t.Nullable, dialect)

	case descriptor.KindTuple:
		if len(t.TupleItems) == 0 {
			return nil, fmt.Errorf("insufficient type information: empty tuple")
		}
		items, err := formatType(t.TupleItems[0], dialect)
		if err != nil {
			return nil, err
		}
		return withNullability(map[string]any{"type": "array", "items": items}, t.Nullable, dialect)

	case descriptor.KindDict:
		return nil, fmt.Errorf("insufficient type information: untyped mapping")

	case descriptor.KindRecord:
		props := make(map[string]any, len(t.RecordFields))
		required := make([]string, 0, len(t.RecordFields))
		for name, field := range t.RecordFields {
			fieldSchema, err := formatType(field, dialect)
			if err != nil {
				return nil, err
			}
			props[name] = fieldSchema
			if !field.Nullable {
				required = append(required, name)
			}
		}
		return withNullability(map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		}, t.Nullable, dialect)

	case descriptor.KindUnion:
		return unionSchema(t, dialect)

	default:
		return nil, fmt.Errorf("insufficient type information: unrecognized kind %q", t.Kind)
	}
}

func literalSchema(values []any, nullable bool, dialect Dialect) (map[string]any, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("insufficient type information: empty restricted value set")
	}
	strs := make([]any, 0, len(values))
	for _, v := range values {
		strs = append(strs, fmt.Sprintf("%v", v))
	}
	return withNullability(map[string]any{"type": "string", "enum": strs}, nullable, dialect)
}

func unionSchema(t reconstruct.Type, dialect Dialect) (map[string]any, error) {
	if len(t.UnionOptions) == 0 {
		return nil, fmt.Errorf("insufficient type information: empty union")
	}

	if dialect == GoogleGemini {
		// Gemini: first non-null branch, nullable tracked separately.
		first, err := formatType(t.UnionOptions[0], dialect)
		if err != nil {
			return nil, err
		}
		first["nullable"] = t.Nullable
		return first, nil
	}

	types := make([]string, 0, len(t.UnionOptions))
	for _, opt := range t.UnionOptions {
		name, ok := primitiveJSONType(opt.Kind)
		if !ok {
			name = "object"
		}
		types = append(types, name)
	}
	if t.Nullable {
		types = append(types, "null")
	}
	return map[string]any{"type": types}, nil
}

// withNullability merges null into a type array for non-gemini
// dialects, or sets a separate "nullable" key for gemini.
func withNullability(m map[string]any, nullable bool, dialect Dialect) (map[string]any, error) {
	if !nullable {
		return m, nil
	}
	if dialect == GoogleGemini {
		m["nullable"] = true
		return m, nil
	}
	switch t := m["type"].(type) {
	case string:
		m["type"] = []string{t, "null"}
	case []string:
		m["type"] = append(t, "null")
	}
	return m, nil
}
