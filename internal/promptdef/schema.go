package promptdef

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema is a compiled JSON Schema tree. Property order follows declaration
// order and is preserved when the schema is encoded.
//
// The zero value is the empty schema {}.
type Schema struct {
	Type string
	// Properties is non-nil exactly for object schemas.
	Properties []Property
	Required   []string
	Items      *Schema
	Enum       []string
	AnyOf      []*Schema
}

// Property is one named entry of an object schema.
type Property struct {
	Name   string
	Schema *Schema
}

func nullable(inner *Schema) *Schema {
	return &Schema{AnyOf: []*Schema{inner, {Type: "null"}}}
}

// IsOptional reports whether the schema is an anyOf with a null-typed branch.
// This is the only test used to decide whether an object field is required.
func (s *Schema) IsOptional() bool {
	if s == nil {
		return false
	}
	for _, branch := range s.AnyOf {
		if branch != nil && branch.Type == "null" {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the schema accepts anything ({}).
func (s *Schema) IsEmpty() bool {
	return s == nil || (s.Type == "" && s.Properties == nil && s.Items == nil && s.Enum == nil && s.AnyOf == nil)
}

// Property returns the schema of the named object property.
func (s *Schema) Property(name string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{Type: s.Type, Items: s.Items.Clone()}
	if s.Properties != nil {
		out.Properties = make([]Property, len(s.Properties))
		for i, p := range s.Properties {
			out.Properties[i] = Property{Name: p.Name, Schema: p.Schema.Clone()}
		}
	}
	if s.Required != nil {
		out.Required = append([]string{}, s.Required...)
	}
	if s.Enum != nil {
		out.Enum = append([]string{}, s.Enum...)
	}
	if s.AnyOf != nil {
		out.AnyOf = make([]*Schema, len(s.AnyOf))
		for i, branch := range s.AnyOf {
			out.AnyOf[i] = branch.Clone()
		}
	}
	return out
}

// addProperty appends a property, replacing an earlier one of the same name,
// and recomputes the required list.
func (s *Schema) addProperty(name string, prop *Schema) {
	replaced := false
	for i := range s.Properties {
		if s.Properties[i].Name == name {
			s.Properties[i].Schema = prop
			replaced = true
			break
		}
	}
	if !replaced {
		s.Properties = append(s.Properties, Property{Name: name, Schema: prop})
	}

	required := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		if !p.Schema.IsOptional() {
			required = append(required, p.Name)
		}
	}
	s.Required = required
}

// MarshalJSON encodes the schema with properties in declaration order. Object
// schemas always carry a "required" array, possibly empty.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	key := func(name string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteByte('"')
		buf.WriteString(name)
		buf.WriteString(`":`)
	}
	value := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}

	if s.Type != "" {
		key("type")
		if err := value(s.Type); err != nil {
			return nil, err
		}
	}
	if s.Properties != nil {
		key("properties")
		buf.WriteByte('{')
		for i, p := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := value(p.Name); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := value(p.Schema); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')

		key("required")
		required := s.Required
		if required == nil {
			required = []string{}
		}
		if err := value(required); err != nil {
			return nil, err
		}
	}
	if s.Items != nil {
		key("items")
		if err := value(s.Items); err != nil {
			return nil, err
		}
	}
	if s.Enum != nil {
		key("enum")
		if err := value(s.Enum); err != nil {
			return nil, err
		}
	}
	if s.AnyOf != nil {
		key("anyOf")
		if err := value(s.AnyOf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the compact JSON encoding.
func (s *Schema) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseSchema compiles an optional YAML schema declaration. A missing or null
// node yields the empty schema.
func ParseSchema(node *yaml.Node) (*Schema, error) {
	if node == nil || node.Kind == 0 || isNull(node) {
		return &Schema{}, nil
	}
	return ParseSchemaNode(node)
}

// ParseSchemaNode compiles a YAML schema declaration: a string is shorthand, a
// mapping is an object and a one-element sequence is an array of that element.
func ParseSchemaNode(node *yaml.Node) (*Schema, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, invalidSchema("empty YAML document")
		}
		return ParseSchemaNode(node.Content[0])

	case yaml.AliasNode:
		if node.Alias == nil {
			return nil, invalidSchema("unresolved alias %q at line %d", node.Value, node.Line)
		}
		return ParseSchemaNode(node.Alias)

	case yaml.ScalarNode:
		if node.ShortTag() != "!!str" {
			return nil, invalidSchema("unsupported YAML type %s at line %d", describeNode(node), node.Line)
		}
		return ParseTypeDef(node.Value).Schema(), nil

	case yaml.MappingNode:
		obj := &Schema{Type: "object", Properties: []Property{}, Required: []string{}}
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valueNode := node.Content[i], node.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode || keyNode.ShortTag() != "!!str" {
				return nil, invalidSchema("non-string key in schema at line %d", keyNode.Line)
			}
			prop, err := ParseSchemaNode(valueNode)
			if err != nil {
				return nil, err
			}
			obj.addProperty(keyNode.Value, prop)
		}
		return obj, nil

	case yaml.SequenceNode:
		if len(node.Content) != 1 {
			return nil, invalidSchema("array schema must have exactly one element defining the item type, got %d at line %d", len(node.Content), node.Line)
		}
		item, err := ParseSchemaNode(node.Content[0])
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: item}, nil

	default:
		return nil, invalidSchema("unsupported YAML type %s", describeNode(node))
	}
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func describeNode(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		tag := node.ShortTag()
		if name, ok := strings.CutPrefix(tag, "!!"); ok {
			return name
		}
		return "tagged (" + tag + ")"
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}
