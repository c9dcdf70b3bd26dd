// Package reconstruct rebuilds a host-side structural type tree from
// the transport-form descriptor.TypeTag, for use by schema emission
// and argument coercion. No Go code is compiled or reflected into
// existence; "reconstruction" produces a descriptor-shaped value the
// host can walk.
package reconstruct

import (
	"github.com/kadirpekel/toolindex/pkg/descriptor"
)

// Type mirrors descriptor.TypeTag on the host side, with nullability
// already flattened out of Union for convenient downstream use: a
// nullable type carries Nullable=true and Type set to the non-null
// branch (or, for a multi-option non-null union, the Union kind
// itself).
type Type struct {
	Kind descriptor.Kind

	Nullable bool

	LiteralValues []any

	EnumName    string
	EnumMembers map[string]any

	RecordName   string
	RecordFields map[string]Type

	ListItem *Type

	DictKey   *Type
	DictValue *Type

	TupleItems []Type

	// UnionOptions holds the non-null branches of a multi-option
	// union (len > 1). For a nullable single-type (Optional[T]),
	// UnionOptions is empty and Kind carries T's fields directly.
	UnionOptions []Type
}

// Build walks a descriptor.TypeTag and produces its host-side Type.
func Build(tt descriptor.TypeTag) Type {
	nullable := tt.IsNullable()
	nonNull := tt.NonNullOptions()

	switch {
	case tt.Kind == descriptor.KindNull:
		return Type{Kind: descriptor.KindNull, Nullable: true}
	case tt.Kind == descriptor.KindUnion && len(nonNull) == 1:
		inner := Build(nonNull[0])
		inner.Nullable = nullable
		return inner
	case tt.Kind == descriptor.KindUnion:
		opts := make([]Type, 0, len(nonNull))
		for _, o := range nonNull {
			opts = append(opts, Build(o))
		}
		return Type{Kind: descriptor.KindUnion, Nullable: nullable, UnionOptions: opts}
	}

	out := Type{Kind: tt.Kind, Nullable: nullable}

	switch tt.Kind {
	case descriptor.KindLiteral:
		out.LiteralValues = tt.LiteralValues
	case descriptor.KindEnum:
		out.EnumName = tt.EnumName
		out.EnumMembers = tt.EnumMembers
	case descriptor.KindRecord:
		out.RecordName = tt.RecordName
		out.RecordFields = make(map[string]Type, len(tt.RecordFields))
		for name, field := range tt.RecordFields {
			out.RecordFields[name] = Build(field)
		}
	case descriptor.KindList:
		if tt.ListItem != nil {
			item := Build(*tt.ListItem)
			out.ListItem = &item
		}
	case descriptor.KindDict:
		if tt.DictKey != nil {
			key := Build(*tt.DictKey)
			out.DictKey = &key
		}
		if tt.DictValue != nil {
			val := Build(*tt.DictValue)
			out.DictValue = &val
		}
	case descriptor.KindTuple:
		out.TupleItems = make([]Type, 0, len(tt.TupleItems))
		for _, item := range tt.TupleItems {
			out.TupleItems = append(out.TupleItems, Build(item))
		}
	}

	return out
}

// Param is the host-side reconstructed parameter.
type Param struct {
	Name    string
	Kind    descriptor.ParamKind
	Default descriptor.Default
	Type    Type
}

// Signature is the ordered parameter list plus return type for one
// tool, as rebuilt on the host.
type Signature struct {
	Params []Param
	Return Type
}

// BuildSignature reconstructs a full signature from a transport-form
// tool descriptor.
func BuildSignature(t descriptor.Tool) Signature {
	params := make([]Param, 0, len(t.Params))
	for _, p := range t.Params {
		params = append(params, Param{
			Name:    p.Name,
			Kind:    p.Kind,
			Default: p.Default,
			Type:    Build(p.Type),
		})
	}
	return Signature{Params: params, Return: Build(t.Return)}
}
