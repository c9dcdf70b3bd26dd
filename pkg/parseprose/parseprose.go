// Package parseprose recovers a tool call (`{toolname, kwargs}`) from
// free-form model prose, the collaborator spec's `ParseAndExecute`
// delegates to. The interface is the integration seam; the bundled
// implementation is a best-effort fallback with no LLM dependency.
package parseprose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Call is a recovered tool invocation.
type Call struct {
	ToolName string
	Kwargs   map[string]any
}

// Extractor recovers a Call from free-form text. Implementations may
// delegate to an LLM; the fallback below uses pattern matching only.
type Extractor interface {
	Extract(ctx context.Context, text string) (Call, error)
}

// ParseError reports that no call could be recovered from the text.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing tool call from prose: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// fencedJSONBlock matches a fenced code block ```json ... ``` or a
// bare ``` ... ``` containing an object, the common shape models wrap
// structured output in.
var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// bareJSONObject matches the first top-level-looking {...} span when
// no fence is present.
var bareJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// Fallback is a heuristic Extractor requiring no external model: it
// looks for a fenced or bare JSON object containing "tool"/"toolname"
// and "kwargs"/"args"/"arguments" keys.
type Fallback struct{}

// Extract implements Extractor.
func (Fallback) Extract(_ context.Context, text string) (Call, error) {
	candidate := extractJSONObject(text)
	if candidate == "" {
		return Call{}, &ParseError{Text: text, Err: fmt.Errorf("no JSON object found in text")}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Call{}, &ParseError{Text: text, Err: fmt.Errorf("decoding candidate JSON: %w", err)}
	}

	name := firstStringField(raw, "toolname", "tool_name", "tool", "name")
	if name == "" {
		return Call{}, &ParseError{Text: text, Err: fmt.Errorf("no tool name field found")}
	}

	kwargs, _ := firstMapField(raw, "kwargs", "args", "arguments", "parameters")
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return Call{ToolName: name, Kwargs: kwargs}, nil
}

func extractJSONObject(text string) string {
	if m := fencedJSONBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareJSONObject.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

func firstStringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func firstMapField(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if asMap, ok := v.(map[string]any); ok {
				return asMap, true
			}
		}
	}
	return nil, false
}
