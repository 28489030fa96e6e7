package promptdef

import "strings"

// TypeKind tags the TypeDef variant.
type TypeKind int

const (
	TypeSimple TypeKind = iota
	TypeOptional
	TypeArray
	TypeEnum
	TypeObject
)

func (k TypeKind) String() string {
	switch k {
	case TypeSimple:
		return "simple"
	case TypeOptional:
		return "optional"
	case TypeArray:
		return "array"
	case TypeEnum:
		return "enum"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// TypeDef is a field type declared in prompt frontmatter.
//
// Only the members relevant to Kind are set: Name for simple types, Inner for
// optional and array wrappers, Variants for enums and Fields for objects.
type TypeDef struct {
	Kind     TypeKind
	Name     string
	Inner    *TypeDef
	Variants []string
	Fields   []Field
}

// Field is one named member of an object TypeDef.
type Field struct {
	Name string
	Type TypeDef
}

// Simple returns a primitive type.
func Simple(name string) TypeDef { return TypeDef{Kind: TypeSimple, Name: name} }

// Optional wraps inner as a not-required type.
func Optional(inner TypeDef) TypeDef { return TypeDef{Kind: TypeOptional, Inner: &inner} }

// Array returns a homogeneous sequence of inner.
func Array(inner TypeDef) TypeDef { return TypeDef{Kind: TypeArray, Inner: &inner} }

// Enum returns a string enumeration. Variants keep declaration order.
func Enum(variants ...string) TypeDef { return TypeDef{Kind: TypeEnum, Variants: variants} }

// Object returns an object type with fields in the given order.
func Object(fields ...Field) TypeDef { return TypeDef{Kind: TypeObject, Fields: fields} }

// ParseTypeDef parses the shorthand grammar: "T?", "T[]", "a | b | c" or a
// primitive name. A trailing "?" is examined before "[]", and both before "|".
func ParseTypeDef(s string) TypeDef {
	s = strings.TrimSpace(s)

	if inner, ok := strings.CutSuffix(s, "?"); ok {
		return Optional(ParseTypeDef(inner))
	}

	if inner, ok := strings.CutSuffix(s, "[]"); ok {
		return Array(ParseTypeDef(inner))
	}

	if strings.Contains(s, "|") {
		parts := strings.Split(s, "|")
		variants := make([]string, 0, len(parts))
		for _, part := range parts {
			variants = append(variants, strings.TrimSpace(part))
		}
		return Enum(variants...)
	}

	return Simple(s)
}

// primitive maps a shorthand name onto a JSON Schema type. Unknown names are strings.
func primitive(name string) string {
	switch name {
	case "string":
		return "string"
	case "integer":
		return "integer"
	case "float", "number":
		return "number"
	case "boolean":
		return "boolean"
	default:
		return "string"
	}
}

// Schema lowers the type to JSON Schema.
func (t TypeDef) Schema() *Schema {
	switch t.Kind {
	case TypeOptional:
		return nullable(t.Inner.Schema())
	case TypeArray:
		return &Schema{Type: "array", Items: t.Inner.Schema()}
	case TypeEnum:
		return &Schema{Type: "string", Enum: append([]string{}, t.Variants...)}
	case TypeObject:
		obj := &Schema{Type: "object", Properties: []Property{}, Required: []string{}}
		for _, f := range t.Fields {
			obj.addProperty(f.Name, f.Type.Schema())
		}
		return obj
	default:
		return &Schema{Type: primitive(t.Name)}
	}
}

// String renders the type back into shorthand. Objects have no shorthand and
// render as "object".
func (t TypeDef) String() string {
	switch t.Kind {
	case TypeOptional:
		return t.Inner.String() + "?"
	case TypeArray:
		return t.Inner.String() + "[]"
	case TypeEnum:
		return strings.Join(t.Variants, " | ")
	case TypeObject:
		return "object"
	default:
		return t.Name
	}
}
