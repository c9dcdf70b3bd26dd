// Package descriptor defines the transport-form type tree used to move
// tool signatures across the process boundary between a source's
// isolated interpreter and the host. It is the sum type from spec §3:
// every parameter and return type is one of a small closed set of
// tagged variants, recursively composable, and JSON round-trippable.
package descriptor

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the TypeTag sum type.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindLiteral Kind = "literal"
	KindEnum    Kind = "enum"
	KindRecord  Kind = "record"
	KindList    Kind = "list"
	KindDict    Kind = "dict"
	KindTuple   Kind = "tuple"
	KindUnion   Kind = "union"
)

var primitiveKinds = map[Kind]bool{
	KindString: true, KindInteger: true, KindNumber: true,
	KindBoolean: true, KindNull: true, KindArray: true, KindObject: true,
}

// IsPrimitive reports whether k is one of the seven primitive names.
func IsPrimitive(k Kind) bool { return primitiveKinds[k] }

// TypeTag is the recursive, JSON-encodable type descriptor described in
// spec §3. Only the fields relevant to Kind are populated; the rest are
// left zero. Use the New* constructors rather than struct literals.
type TypeTag struct {
	Kind Kind `json:"kind"`

	// Literal: restricted-value set. Values are JSON-encodable (may be
	// non-string, e.g. integers).
	LiteralValues []any `json:"literal_values,omitempty"`

	// Enum: a named type whose members map symbolic names to values.
	EnumName    string         `json:"enum_name,omitempty"`
	EnumMembers map[string]any `json:"enum_members,omitempty"`

	// Record: a named mapping type with declared field types.
	RecordName   string             `json:"record_name,omitempty"`
	RecordFields map[string]TypeTag `json:"record_fields,omitempty"`

	// List: homogeneous sequence.
	ListItem *TypeTag `json:"list_item,omitempty"`

	// Dict: keyed mapping.
	DictKey   *TypeTag `json:"dict_key,omitempty"`
	DictValue *TypeTag `json:"dict_value,omitempty"`

	// Tuple: fixed-arity sequence.
	TupleItems []TypeTag `json:"tuple_items,omitempty"`

	// Union: alternatives. A `null` primitive option preserves
	// nullability (Optional[T] is Union{T, null}).
	UnionOptions []TypeTag `json:"union_options,omitempty"`
}

// Primitive builds a primitive TypeTag. Panics if k is not primitive;
// this is a programmer error at call sites, never triggered by decoded
// wire data (decoding a bad kind string fails in UnmarshalJSON instead).
func Primitive(k Kind) TypeTag {
	if !IsPrimitive(k) {
		panic(fmt.Sprintf("descriptor: %q is not a primitive kind", k))
	}
	return TypeTag{Kind: k}
}

// Literal builds a restricted-value type.
func Literal(values ...any) TypeTag {
	return TypeTag{Kind: KindLiteral, LiteralValues: values}
}

// Enum builds a named enumeration type.
func Enum(name string, members map[string]any) TypeTag {
	return TypeTag{Kind: KindEnum, EnumName: name, EnumMembers: members}
}

// Record builds a named record (struct-like) type.
func Record(name string, fields map[string]TypeTag) TypeTag {
	return TypeTag{Kind: KindRecord, RecordName: name, RecordFields: fields}
}

// List builds a homogeneous-sequence type.
func List(item TypeTag) TypeTag {
	return TypeTag{Kind: KindList, ListItem: &item}
}

// Dict builds a keyed-mapping type.
func Dict(key, value TypeTag) TypeTag {
	return TypeTag{Kind: KindDict, DictKey: &key, DictValue: &value}
}

// Tuple builds a fixed-arity sequence type.
func Tuple(items ...TypeTag) TypeTag {
	return TypeTag{Kind: KindTuple, TupleItems: items}
}

// Union builds an alternative type. Include Primitive(KindNull) among
// options to express nullability.
func Union(options ...TypeTag) TypeTag {
	return TypeTag{Kind: KindUnion, UnionOptions: options}
}

// IsNullable reports whether t is a Union containing a null option, or
// is itself the null primitive.
func (t TypeTag) IsNullable() bool {
	if t.Kind == KindNull {
		return true
	}
	if t.Kind != KindUnion {
		return false
	}
	for _, opt := range t.UnionOptions {
		if opt.Kind == KindNull {
			return true
		}
	}
	return false
}

// NonNullOptions returns a Union's options with the null option removed.
// For a non-Union type it returns []TypeTag{t} unchanged (t itself,
// unless t is KindNull in which case it returns nil).
func (t TypeTag) NonNullOptions() []TypeTag {
	if t.Kind == KindNull {
		return nil
	}
	if t.Kind != KindUnion {
		return []TypeTag{t}
	}
	out := make([]TypeTag, 0, len(t.UnionOptions))
	for _, opt := range t.UnionOptions {
		if opt.Kind != KindNull {
			out = append(out, opt)
		}
	}
	return out
}

// ParamKind mirrors the source interpreter's parameter classification.
type ParamKind string

const (
	PositionalOrKeyword ParamKind = "positional-or-keyword"
	KeywordOnly         ParamKind = "keyword-only"
)

// noDefaultSentinel marshals to the transport JSON value meaning "no default".
// It is distinct from JSON null, which is a legal default value.
type noDefaultSentinel struct{}

// Default is either the "no default" sentinel or a JSON-encodable value
// (which may itself be `null`). Use NoDefault() / NewDefault(v).
type Default struct {
	set   bool
	value any
}

// NoDefault returns a Default representing "no default value".
func NoDefault() Default { return Default{} }

// NewDefault wraps a concrete default value (v may be nil, meaning the
// declared default is literally `None`/`null`).
func NewDefault(v any) Default { return Default{set: true, value: v} }

// HasDefault reports whether a default was declared.
func (d Default) HasDefault() bool { return d.set }

// Value returns the default value; only meaningful if HasDefault is true.
func (d Default) Value() any { return d.value }

func (d Default) MarshalJSON() ([]byte, error) {
	if !d.set {
		return json.Marshal(noDefaultSentinel{})
	}
	return json.Marshal(struct {
		Set   bool `json:"set"`
		Value any  `json:"value"`
	}{Set: true, Value: d.value})
}

func (d *Default) UnmarshalJSON(data []byte) error {
	var probe struct {
		Set   bool `json:"set"`
		Value any  `json:"value"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	d.set = probe.Set
	d.value = probe.Value
	return nil
}

// Param describes one parameter in the transport form.
type Param struct {
	Name    string    `json:"name"`
	Kind    ParamKind `json:"kind"`
	Default Default   `json:"default"`
	Type    TypeTag   `json:"type"`
}

// Shape is the execution shape of a tool, fixed at load time.
type Shape string

const (
	Plain    Shape = "plain"
	Coroutine Shape = "coroutine"
	SyncGen  Shape = "sync-gen"
	AsyncGen Shape = "async-gen"
)

// IsGenerator reports whether s streams multiple values.
func (s Shape) IsGenerator() bool { return s == SyncGen || s == AsyncGen }

// IsAsync reports whether s runs on the source's async runtime.
func (s Shape) IsAsync() bool { return s == Coroutine || s == AsyncGen }

// Tool is the full transport-form descriptor for one tool, as emitted
// by the extractor and consumed by the reconstructor.
type Tool struct {
	ID     string  `json:"id"`
	Params []Param `json:"params"`
	Return TypeTag `json:"return"`
	Doc    string  `json:"doc"`
	Shape  Shape   `json:"shape"`
}

// ExtractionResult is the frame written to the loopback socket by the
// bootstrap program: either a successful descriptor or a formatted error.
type ExtractionResult struct {
	OK     bool   `json:"ok"`
	Result *Tool  `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
