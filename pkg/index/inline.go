package index

import (
	"context"
	"iter"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
)

// InlineTool describes an already-callable host-process value the way
// the index needs to see it: an explicit id, docstring, declared
// parameters/return type, execution shape, and the Go closures that
// actually run it. Go has no runtime function introspection, so
// unlike a dynamically-typed host, an inline entry must name its own
// signature rather than have it inferred.
type InlineTool struct {
	ID     string
	Doc    string
	Shape  descriptor.Shape
	Params []descriptor.Param
	Return descriptor.TypeTag

	// Call backs Plain/Coroutine shapes.
	Call func(ctx context.Context, kwargs map[string]any) (any, error)
	// Stream backs SyncGen/AsyncGen shapes. Required iff Shape.IsGenerator().
	Stream func(ctx context.Context, kwargs map[string]any) iter.Seq2[any, error]
}

// inlineCaller adapts an InlineTool to wrapper.RawCaller.
type inlineCaller struct {
	t InlineTool
}

// Call runs a Plain/Coroutine tool directly. For a generator-shaped
// InlineTool that only sets Stream, it drains Stream to its last
// value instead, the same resolution Index.Execute documents for
// every generator-shaped tool it calls.
func (c *inlineCaller) Call(ctx context.Context, args map[string]any) (any, error) {
	if c.t.Call != nil {
		return c.t.Call(ctx, args)
	}
	var last any
	for v, err := range c.t.Stream(ctx, args) {
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (c *inlineCaller) Stream(ctx context.Context, args map[string]any) iter.Seq2[any, error] {
	if c.t.Stream == nil {
		return func(yield func(any, error) bool) {}
	}
	return c.t.Stream(ctx, args)
}

func (t InlineTool) asDescriptor() descriptor.Tool {
	return descriptor.Tool{
		ID:     t.ID,
		Params: t.Params,
		Return: t.Return,
		Doc:    t.Doc,
		Shape:  t.Shape,
	}
}
