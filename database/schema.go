package database

import (
	"github.com/go-errors/errors"
	"github.com/valyala/fastjson"
)

type SchemaKind uint8

const (
	SchemaLeaf SchemaKind = iota
	SchemaObject
	SchemaArray
)

// Leaf formats understood by the analyzer and the value converters
const (
	FormatIdentifier = "identifier"
	FormatMongoId    = "mongo-id" // legacy alias of FormatIdentifier
	FormatDateTime   = "date-time"
	FormatDate       = "date"
	FormatEmail      = "email"
)

var schemaPool fastjson.ParserPool

// PropertySpec describes a single schema node
type PropertySpec struct {
	Type     string
	Required bool
	Format   string
	Sort     int  // Default sort weight, positive ascending, negative descending
	Key      bool // Field used by by-id lookups
	Index    bool
	Unique   bool
}

// IsIdentifier reports whether the property holds store-native identifiers
func (spec PropertySpec) IsIdentifier() bool {
	return spec.Format == FormatIdentifier || spec.Format == FormatMongoId
}

// IsDate reports whether the property holds date values
func (spec PropertySpec) IsDate() bool {
	return spec.Format == FormatDateTime || spec.Format == FormatDate
}

type Property struct {
	Name   string
	Schema *Schema
}

// Schema is an immutable tree of property descriptors. A node is either a
// leaf, an object holding ordered properties, or an array of an item schema.
type Schema struct {
	kind       SchemaKind
	spec       PropertySpec
	properties []Property
	items      *Schema
}

func Leaf(spec PropertySpec) *Schema {
	return &Schema{kind: SchemaLeaf, spec: spec}
}

func Object(properties ...Property) *Schema {
	props := make([]Property, 0, len(properties))
	for _, prop := range properties {
		if prop.Name == "" || prop.Schema == nil {
			continue
		}
		props = append(props, prop)
	}

	return &Schema{
		kind:       SchemaObject,
		spec:       PropertySpec{Type: "object"},
		properties: props,
	}
}

func ArrayOf(items *Schema) *Schema {
	return &Schema{
		kind:  SchemaArray,
		spec:  PropertySpec{Type: "array"},
		items: items,
	}
}

func Prop(name string, schema *Schema) Property {
	return Property{Name: name, Schema: schema}
}

// WithSpec returns a copy of the node carrying the given spec. Object and
// array nodes keep their children.
func (s *Schema) WithSpec(spec PropertySpec) *Schema {
	if s == nil {
		return nil
	}
	clone := s.Clone()
	clone.spec = spec
	return clone
}

// Required returns a copy of the node marked as required
func (s *Schema) Required() *Schema {
	if s == nil {
		return nil
	}
	spec := s.spec
	spec.Required = true
	return s.WithSpec(spec)
}

func (s *Schema) Kind() SchemaKind {
	if s == nil {
		return SchemaLeaf
	}
	return s.kind
}

func (s *Schema) Spec() PropertySpec {
	if s == nil {
		return PropertySpec{}
	}
	return s.spec
}

// Properties returns a copy of the ordered properties of an object node
func (s *Schema) Properties() []Property {
	if s == nil || s.kind != SchemaObject {
		return nil
	}
	props := make([]Property, len(s.properties))
	copy(props, s.properties)
	return props
}

func (s *Schema) Items() *Schema {
	if s == nil || s.kind != SchemaArray {
		return nil
	}
	return s.items
}

// Property looks up a direct child of an object node
func (s *Schema) Property(name string) (*Schema, bool) {
	if s == nil || s.kind != SchemaObject {
		return nil, false
	}
	for _, prop := range s.properties {
		if prop.Name == name {
			return prop.Schema, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the schema tree
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}

	clone := &Schema{kind: s.kind, spec: s.spec}
	if s.properties != nil {
		clone.properties = make([]Property, len(s.properties))
		for i, prop := range s.properties {
			clone.properties[i] = Property{Name: prop.Name, Schema: prop.Schema.Clone()}
		}
	}
	if s.items != nil {
		clone.items = s.items.Clone()
	}
	return clone
}

// ParseSchema builds a schema from its JSON description. Both
// {"properties": {...}} and a bare properties map are accepted, and the
// declared property order is kept.
func ParseSchema(data []byte) (*Schema, error) {
	parser := schemaPool.Get()
	defer schemaPool.Put(parser)

	value, err := parser.ParseBytes(data)
	if err != nil {
		return nil, errors.Errorf("invalid schema: %v", err)
	}

	if value.Type() != fastjson.TypeObject {
		return nil, errors.New("invalid schema: expected an object")
	}

	if properties := value.Get("properties"); properties != nil {
		return parseSchemaNode(value)
	}

	return parseSchemaProperties(value)
}

func parseSchemaProperties(value *fastjson.Value) (*Schema, error) {
	obj, err := value.Object()
	if err != nil {
		return nil, errors.Errorf("invalid schema properties: %v", err)
	}

	var props []Property
	var nestedError error
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if nestedError != nil {
			return
		}
		node, err := parseSchemaNode(v)
		if err != nil {
			nestedError = errors.Errorf("property %s: %v", string(key), err)
			return
		}
		props = append(props, Prop(string(key), node))
	})

	if nestedError != nil {
		return nil, nestedError
	}

	return Object(props...), nil
}

func parseSchemaNode(value *fastjson.Value) (*Schema, error) {
	if value.Type() != fastjson.TypeObject {
		return nil, errors.Errorf("expected an object, got %s", value.Type())
	}

	spec := PropertySpec{
		Type:     string(value.GetStringBytes("type")),
		Required: value.GetBool("required"),
		Format:   string(value.GetStringBytes("format")),
		Sort:     value.GetInt("sort"),
		Key:      value.GetBool("key"),
		Index:    value.GetBool("index"),
		Unique:   value.GetBool("unique"),
	}

	if properties := value.Get("properties"); properties != nil {
		node, err := parseSchemaProperties(properties)
		if err != nil {
			return nil, err
		}
		if spec.Type == "" {
			spec.Type = "object"
		}
		node.spec = spec
		return node, nil
	}

	if items := value.Get("items"); items != nil {
		itemSchema, err := parseSchemaNode(items)
		if err != nil {
			return nil, errors.Errorf("items: %v", err)
		}
		node := ArrayOf(itemSchema)
		if spec.Type == "" {
			spec.Type = "array"
		}
		node.spec = spec
		return node, nil
	}

	return Leaf(spec), nil
}
