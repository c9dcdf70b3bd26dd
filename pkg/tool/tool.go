// Package tool defines the uniform tool interfaces every wrapped
// callable — in-process or remote — presents to the index façade.
//
// The interface hierarchy is layered:
//
//	Tool (base: name, description, shape)
//	  ├── CallableTool  - single blocking result
//	  └── StreamingTool - incremental results via iter.Seq2
package tool

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
)

// Tool is the base interface every tool satisfies.
type Tool interface {
	// Name returns the tool's fully-qualified id ("<module>.<symbol>").
	Name() string

	// Description returns the tool's docstring.
	Description() string

	// Shape reports the tool's fixed execution shape.
	Shape() descriptor.Shape
}

// CallableTool is a tool invoked for a single result.
type CallableTool interface {
	Tool

	// Call executes the tool with the given keyword arguments and
	// returns its single result.
	Call(ctx context.Context, args map[string]any) (*Result, error)

	// Schema returns the tool's apparent parameter list, post-wrapping.
	Schema() map[string]any
}

// StreamingTool is a tool that yields a sequence of results.
type StreamingTool interface {
	Tool

	// CallStreaming executes the tool, yielding each result as it
	// arrives. Iteration stops early if the consumer returns false
	// from the yield function.
	CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[*Result, error]

	Schema() map[string]any
}

// Result is one unit of tool output.
type Result struct {
	// Content is the output value: typically a string, number, bool,
	// or nested map/slice decoded from the wire.
	Content any

	// Streaming marks this as one streamed chunk of a generator-shaped
	// tool's output (set on every chunk, including the last).
	Streaming bool
}

// Toolset groups related tools from one source and resolves them
// lazily. pkg/mcpsource.Source does not implement it: its Tools method
// returns mcpsource.ToolInfo values, not tool.Tool.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Tool, error)
}

// NewFunctionCallID mints a unique id for one tool invocation.
func NewFunctionCallID() string {
	return uuid.NewString()
}
