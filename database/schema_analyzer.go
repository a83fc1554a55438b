package database

import (
	"slices"
	"sort"
)

const DefaultKeyField = "_id"

// SchemaInfo holds the metadata derived from a schema. It is built once and
// never modified afterwards.
type SchemaInfo struct {
	keyField      string
	idFields      map[string]bool
	nestedIdPaths []string
	defaultSort   SortSpec
	sortDeclared  bool
	indexes       []MongoIndexDefinition
	declared      map[string]bool
}

// AnalyzeSchema walks the schema depth first. Object nodes and arrays of
// objects are recursed into, every other node is classified as a leaf.
// The first leaf carrying a sort weight defines the default sort, the last
// leaf marked as key defines the key field.
func AnalyzeSchema(schema *Schema) *SchemaInfo {
	info := &SchemaInfo{
		keyField: DefaultKeyField,
		idFields: map[string]bool{},
		declared: map[string]bool{},
	}

	if schema != nil {
		switch schema.Kind() {
		case SchemaObject:
			info.walk(schema.properties, "")
		case SchemaArray:
			if items := schema.Items(); items != nil && items.Kind() == SchemaObject {
				info.walk(items.properties, "")
			}
		}
	}

	if !info.sortDeclared {
		info.defaultSort = SortSpec{{Field: info.keyField, Direction: Ascending}}
	}

	return info
}

func (info *SchemaInfo) walk(properties []Property, prefix string) {
	for _, prop := range properties {
		path := prop.Name
		if prefix != "" {
			path = prefix + "." + prop.Name
		}

		node := prop.Schema
		switch node.Kind() {
		case SchemaObject:
			info.walk(node.properties, path)
			continue
		case SchemaArray:
			items := node.Items()
			if items != nil && items.Kind() == SchemaObject {
				info.walk(items.properties, path)
				continue
			}
			info.classify(path, prefix == "", arrayLeafSpec(node))
		default:
			info.classify(path, prefix == "", node.Spec())
		}
	}
}

// arrayLeafSpec merges the flags of an array node with its item spec, so an
// array of identifiers is classified like an identifier leaf
func arrayLeafSpec(node *Schema) PropertySpec {
	spec := node.Spec()
	items := node.Items()
	if items == nil {
		return spec
	}

	itemSpec := items.Spec()
	if spec.Format == "" {
		spec.Format = itemSpec.Format
	}
	spec.Key = spec.Key || itemSpec.Key
	spec.Index = spec.Index || itemSpec.Index
	spec.Unique = spec.Unique || itemSpec.Unique
	if spec.Sort == 0 {
		spec.Sort = itemSpec.Sort
	}
	return spec
}

func (info *SchemaInfo) classify(path string, topLevel bool, spec PropertySpec) {
	info.declared[path] = true

	if spec.IsIdentifier() {
		if topLevel {
			info.idFields[path] = true
		} else {
			info.nestedIdPaths = append(info.nestedIdPaths, path)
		}
	}

	if spec.Key {
		info.keyField = path
	}

	if spec.Sort != 0 && !info.sortDeclared {
		direction := Ascending
		if spec.Sort < 0 {
			direction = Descending
		}
		info.defaultSort = SortSpec{{Field: path, Direction: direction}}
		info.sortDeclared = true
	}

	if spec.Index || spec.Unique {
		info.indexes = append(info.indexes, NewMongoSimpleIndex(path, spec.Unique))
	}
}

func (info *SchemaInfo) KeyField() string {
	return info.keyField
}

func (info *SchemaInfo) IsIdField(name string) bool {
	return info.idFields[name]
}

// IdFields returns the top-level identifier fields in lexical order
func (info *SchemaInfo) IdFields() []string {
	fields := make([]string, 0, len(info.idFields))
	for field := range info.idFields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// NestedIdPaths returns the dotted paths of identifier leaves below the top level
func (info *SchemaInfo) NestedIdPaths() []string {
	return slices.Clone(info.nestedIdPaths)
}

func (info *SchemaInfo) DefaultSort() SortSpec {
	return slices.Clone(info.defaultSort)
}

// HasDeclaredSort reports whether the default sort comes from the schema
// rather than from the key field fallback
func (info *SchemaInfo) HasDeclaredSort() bool {
	return info.sortDeclared
}

func (info *SchemaInfo) Indexes() []MongoIndexDefinition {
	return slices.Clone(info.indexes)
}

// IsDeclared reports whether the schema has a leaf at the given path
func (info *SchemaInfo) IsDeclared(path string) bool {
	return info.declared[path]
}
