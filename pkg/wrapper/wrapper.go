// Package wrapper implements the uniform adapter applied to every tool
// — in-process or remote — before it enters the index: defaults
// rewritten to nullable+reinjection form, non-string restricted values
// re-encoded as strings, weakly-typed arguments coerced back to their
// declared types, and shape preserved. Wrapping is idempotent.
package wrapper

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/reconstruct"
	"github.com/kadirpekel/toolindex/pkg/tool"
)

// RawCaller is the underlying, unwrapped way to invoke a tool — either
// a direct in-process call or a dispatch to the remote invoker. It
// speaks in original (not apparent) argument/return shapes.
type RawCaller interface {
	// Call runs the tool to completion and returns its single result;
	// for a SyncGen or AsyncGen-shaped tool, the last value it yields.
	Call(ctx context.Context, args map[string]any) (any, error)
	// Stream runs a SyncGen or AsyncGen-shaped tool, yielding each
	// value as it arrives.
	Stream(ctx context.Context, args map[string]any) iter.Seq2[any, error]
}

// literalEncoding records the reversible string<->original-value
// mapping for one restricted-value parameter. toOriginal is set when
// the type itself is a Literal/Enum with non-string members; listItem
// and unionOptions carry the same encoding one level down, for
// restricted values nested inside a list or a union member.
type literalEncoding struct {
	toOriginal map[string]any

	listItem *literalEncoding

	// unionOptions is index-aligned with the union's branches; a nil
	// entry means that branch needs no decoding.
	unionOptions []*literalEncoding
}

func (e literalEncoding) empty() bool {
	return e.toOriginal == nil && e.listItem == nil && e.unionOptions == nil
}

// Wrapped is a tool.CallableTool/tool.StreamingTool implementation
// produced by Wrap. It carries the apparent (post-rewrite) signature
// plus the hidden tables needed to undo the rewrite at call time.
type Wrapped struct {
	id    string
	doc   string
	shape descriptor.Shape
	sig   reconstruct.Signature
	raw   RawCaller

	// defaults maps parameter name -> original descriptor.Default,
	// for parameters that had one (defaults rewrite, §4.6a).
	defaults map[string]descriptor.Default

	// literalEncodings maps parameter name -> its reversible string
	// encoding, for restricted-value parameters with non-string
	// members (§4.6c).
	literalEncodings map[string]literalEncoding

	// wrapped marks this value as already wrapped, so WrapIfNeeded
	// returns it unchanged (§4.6f idempotence).
	wrapped bool
}

// wrapMarker is the private sentinel interface used to detect an
// already-wrapped tool.Tool.
type wrapMarker interface {
	alreadyWrapped() bool
}

func (w *Wrapped) alreadyWrapped() bool { return w.wrapped }

// Wrap applies the uniform tool adapter to one raw tool descriptor,
// always building a new *Wrapped; WrapIfNeeded is the idempotent entry
// point that leaves an already-wrapped tool unchanged.
func Wrap(id, doc string, shape descriptor.Shape, sig reconstruct.Signature, raw RawCaller) *Wrapped {
	w := &Wrapped{
		id:               id,
		doc:              doc,
		shape:            shape,
		raw:              raw,
		defaults:         map[string]descriptor.Default{},
		literalEncodings: map[string]literalEncoding{},
		wrapped:          true,
	}

	w.sig.Return = sig.Return
	w.sig.Params = make([]reconstruct.Param, 0, len(sig.Params))

	for _, p := range sig.Params {
		apparent := p

		if p.Default.HasDefault() {
			w.defaults[p.Name] = p.Default
			apparent.Type.Nullable = true
			apparent.Default = descriptor.NewDefault(nil)
		} else if p.Type.Nullable {
			// (b) optional-without-default: no default exists, so the
			// apparent annotation drops nullability — the call site
			// must still supply it.
			apparent.Type.Nullable = false
		}

		if enc, ok := buildLiteralEncoding(apparent.Type); ok {
			w.literalEncodings[p.Name] = enc
			apparent.Type = stringifyLiteralType(apparent.Type)
		}

		w.sig.Params = append(w.sig.Params, apparent)
	}

	return w
}

// WrapIfNeeded returns existing unchanged if it already carries the
// wrap marker, and otherwise returns the result of build.
func WrapIfNeeded(existing tool.Tool, build func() *Wrapped) tool.Tool {
	if m, ok := existing.(wrapMarker); ok && m.alreadyWrapped() {
		return existing
	}
	return build()
}

func (w *Wrapped) Name() string           { return w.id }
func (w *Wrapped) Description() string    { return w.doc }
func (w *Wrapped) Shape() descriptor.Shape { return w.shape }

// Signature returns the apparent (post-wrap) parameter/return shape,
// the form pkg/schema.ToolSignature is built from.
func (w *Wrapped) Signature() reconstruct.Signature { return w.sig }

// Schema returns the apparent per-parameter shape; pkg/schema builds
// the dialect-specific JSON from this via reconstruct.Type.
func (w *Wrapped) Schema() map[string]any {
	out := make(map[string]any, len(w.sig.Params))
	for _, p := range w.sig.Params {
		out[p.Name] = p.Type
	}
	return out
}

// Call executes the tool to a single result (for a generator shape,
// whatever RawCaller.Call returns: its last value), applying default
// reinjection, literal decoding, and coercion to args first.
func (w *Wrapped) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	prepared, err := w.prepareArgs(args)
	if err != nil {
		return nil, err
	}
	result, err := w.raw.Call(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return &tool.Result{Content: result}, nil
}

// CallStreaming executes the tool as a stream: a SyncGen/AsyncGen tool
// yields each value as it arrives; a Plain/Coroutine tool yields
// exactly one value, its single result.
func (w *Wrapped) CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[*tool.Result, error] {
	return func(yield func(*tool.Result, error) bool) {
		prepared, err := w.prepareArgs(args)
		if err != nil {
			yield(nil, err)
			return
		}
		if !w.shape.IsGenerator() {
			v, err := w.raw.Call(ctx, prepared)
			if err != nil {
				yield(nil, err)
				return
			}
			yield(&tool.Result{Content: v}, nil)
			return
		}
		for v, err := range w.raw.Stream(ctx, prepared) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&tool.Result{Content: v, Streaming: true}, nil) {
				return
			}
		}
	}
}

// prepareArgs runs (a) default reinjection, (c) literal decoding, and
// (d) coercion, in that order, producing the arguments as the raw
// underlying tool expects them.
func (w *Wrapped) prepareArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	for name, def := range w.defaults {
		v, present := out[name]
		if !present || v == nil {
			out[name] = def.Value()
		}
	}

	for _, p := range w.sig.Params {
		v, present := out[p.Name]
		if !present {
			continue
		}
		if enc, ok := w.literalEncodings[p.Name]; ok {
			out[p.Name] = decodeLiteral(v, enc)
		}
		out[p.Name] = coerce(out[p.Name], originalType(w, p.Name))
	}

	return out, nil
}

// originalType returns name's type from the apparent (post-rewrite)
// signature, used as the coercion target. The apparent type differs
// from the declared one only in its Nullable flag and in stringified
// Literal/Enum values, neither of which coerce consults.
func originalType(w *Wrapped, name string) reconstruct.Type {
	for _, p := range w.sig.Params {
		if p.Name == name {
			return p.Type
		}
	}
	return reconstruct.Type{}
}

// buildLiteralEncoding inspects t (possibly nullable, possibly a list
// or a union) for a restricted-value (Literal/Enum) case whose members
// include a non-string value, and if so builds the reversible string
// encoding. Recurses into List items and each Union option so
// re-encoding applies inside list-of-literal and union-of-literal
// parameters too, not just a bare top-level Literal/Enum.
func buildLiteralEncoding(t reconstruct.Type) (literalEncoding, bool) {
	var enc literalEncoding

	if values, _ := restrictedValues(t); values != nil && hasNonStringMember(values) {
		enc.toOriginal = map[string]any{}
		for _, v := range values {
			enc.toOriginal[literalString(v)] = v
		}
	}

	if t.Kind == descriptor.KindList && t.ListItem != nil {
		if child, ok := buildLiteralEncoding(*t.ListItem); ok {
			enc.listItem = &child
		}
	}

	if t.Kind == descriptor.KindUnion && len(t.UnionOptions) > 0 {
		children := make([]*literalEncoding, len(t.UnionOptions))
		matched := false
		for i, opt := range t.UnionOptions {
			if child, ok := buildLiteralEncoding(opt); ok {
				children[i] = &child
				matched = true
			}
		}
		if matched {
			enc.unionOptions = children
		}
	}

	if enc.empty() {
		return literalEncoding{}, false
	}
	return enc, true
}

func hasNonStringMember(values []any) bool {
	for _, v := range values {
		if _, ok := v.(string); !ok {
			return true
		}
	}
	return false
}

func restrictedValues(t reconstruct.Type) ([]any, string) {
	switch t.Kind {
	case descriptor.KindLiteral:
		return t.LiteralValues, ""
	case descriptor.KindEnum:
		values := make([]any, 0, len(t.EnumMembers))
		for _, v := range t.EnumMembers {
			values = append(values, v)
		}
		return values, t.EnumName
	default:
		return nil, ""
	}
}

func literalString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// stringifyLiteralType replaces t's restricted-value member type with
// the all-string form for apparent-schema purposes, recursing into
// List items and Union options so a nested Literal/Enum is stringified
// wherever it appears, not just at the top level.
func stringifyLiteralType(t reconstruct.Type) reconstruct.Type {
	if values, name := restrictedValues(t); values != nil {
		strs := make([]any, 0, len(values))
		for _, v := range values {
			strs = append(strs, literalString(v))
		}
		switch t.Kind {
		case descriptor.KindEnum:
			members := make(map[string]any, len(strs))
			for _, s := range strs {
				members[s.(string)] = s
			}
			t.EnumName = name
			t.EnumMembers = members
		default:
			t.LiteralValues = strs
		}
	}

	if t.Kind == descriptor.KindList && t.ListItem != nil {
		item := stringifyLiteralType(*t.ListItem)
		t.ListItem = &item
	}

	if t.Kind == descriptor.KindUnion && len(t.UnionOptions) > 0 {
		opts := make([]reconstruct.Type, len(t.UnionOptions))
		for i, opt := range t.UnionOptions {
			opts[i] = stringifyLiteralType(opt)
		}
		t.UnionOptions = opts
	}

	return t
}

// decodeLiteral undoes buildLiteralEncoding's stringification,
// recursing into list items and union branches the same way the build
// side did.
func decodeLiteral(v any, enc literalEncoding) any {
	if s, ok := v.(string); ok && enc.toOriginal != nil {
		if orig, ok := enc.toOriginal[s]; ok {
			return orig
		}
	}

	if list, ok := v.([]any); ok && enc.listItem != nil {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = decodeLiteral(item, *enc.listItem)
		}
		return out
	}

	for _, child := range enc.unionOptions {
		if child == nil {
			continue
		}
		if s, ok := v.(string); ok && child.toOriginal != nil {
			if orig, ok := child.toOriginal[s]; ok {
				return orig
			}
		}
		if list, ok := v.([]any); ok && child.listItem != nil {
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = decodeLiteral(item, *child.listItem)
			}
			return out
		}
	}

	return v
}

// coerce traverses v against target per §4.6(d): numeric narrowing/
// widening, string->bool, element-wise list/tuple coercion, field-wise
// record coercion, single-option union unwrapping, nullable
// pass-through. Lossy coercions are skipped (value passed unchanged,
// a warning logged) rather than attempted destructively.
func coerce(v any, target reconstruct.Type) any {
	if v == nil {
		return nil // nullable pass-through
	}

	switch target.Kind {
	case descriptor.KindInteger:
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				return int64(n)
			}
			slog.Warn("coercion would lose precision, passing through unchanged", "target", "integer", "value", n)
			return v
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
		return v

	case descriptor.KindNumber:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
		return v

	case descriptor.KindBoolean:
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "false":
				return false
			case "true":
				return true
			}
		}
		return v

	case descriptor.KindList:
		list, ok := v.([]any)
		if !ok || target.ListItem == nil {
			return v
		}
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = coerce(item, *target.ListItem)
		}
		return out

	case descriptor.KindTuple:
		list, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(list))
		for i, item := range list {
			if i < len(target.TupleItems) {
				out[i] = coerce(item, target.TupleItems[i])
			} else {
				out[i] = item
			}
		}
		return out

	case descriptor.KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			if fieldType, ok := target.RecordFields[k]; ok {
				out[k] = coerce(val, fieldType)
			} else {
				out[k] = val
			}
		}
		return out

	case descriptor.KindUnion:
		if len(target.UnionOptions) == 1 {
			return coerce(v, target.UnionOptions[0])
		}
		return v

	default:
		return v
	}
}
