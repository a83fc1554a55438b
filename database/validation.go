package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/simplereach/timeutils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var documentValidator = validator.New()

// FieldError is a single schema violation, identified by its dotted path
type FieldError struct {
	Field   string
	Message string
}

// ValidationError groups the violations found in a document
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, field.Field+" "+field.Message)
	}
	return "invalid document: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field string, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Validate checks the declared properties of the document. Undeclared
// properties are accepted as they are.
func (repository *MongoRepository) Validate(doc any, isUpdate bool) error {
	return validateDocument(repository.schema, doc, isUpdate)
}

// ConvertValues returns a copy of the document where identifier strings
// become ObjectIDs and date strings become time.Time, following the schema
func (repository *MongoRepository) ConvertValues(doc any) (bson.M, error) {
	document, ok := toDocument(doc)
	if !ok {
		return nil, newValueTypeError("doc", doc, "object")
	}
	return convertObject(repository.schema, document, "")
}

func validateDocument(schema *Schema, doc any, isUpdate bool) error {
	document, ok := toDocument(doc)
	if !ok {
		return newValueTypeError("doc", doc, "object")
	}

	result := &ValidationError{}
	validateObject(schema, document, "", isUpdate, result)
	if len(result.Fields) > 0 {
		return result
	}
	return nil
}

func validateObject(schema *Schema, document bson.M, prefix string, isUpdate bool, result *ValidationError) {
	for _, prop := range schema.Properties() {
		path := joinPath(prefix, prop.Name)
		value, present := document[prop.Name]
		if !present || value == nil {
			if prop.Schema.Spec().Required && !isUpdate {
				result.add(path, "is required")
			}
			continue
		}
		validateValue(prop.Schema, value, path, isUpdate, result)
	}
}

func validateValue(schema *Schema, value any, path string, isUpdate bool, result *ValidationError) {
	switch schema.Kind() {
	case SchemaObject:
		nested, ok := toDocument(value)
		if !ok {
			result.add(path, "must be an object")
			return
		}
		validateObject(schema, nested, path, isUpdate, result)
	case SchemaArray:
		elements, ok := toAnySlice(value)
		if !ok {
			result.add(path, "must be an array")
			return
		}
		if schema.Items() == nil {
			return
		}
		for i, element := range elements {
			if element == nil {
				continue
			}
			validateValue(schema.Items(), element, fmt.Sprintf("%s.%d", path, i), isUpdate, result)
		}
	default:
		if message := checkLeaf(schema.Spec(), value); message != "" {
			result.add(path, message)
		}
	}
}

func checkLeaf(spec PropertySpec, value any) string {
	switch {
	case spec.IsIdentifier():
		switch v := value.(type) {
		case bson.ObjectID, *bson.ObjectID:
			return ""
		case string:
			if documentValidator.Var(v, "mongodb") != nil {
				return "must be a valid identifier"
			}
			return ""
		}
		return "must be an identifier"
	case spec.IsDate():
		switch v := value.(type) {
		case time.Time, *time.Time, bson.DateTime:
			return ""
		case string:
			if _, err := timeutils.ParseDateString(v); err != nil {
				return "must be a date"
			}
			return ""
		}
		return "must be a date"
	case spec.Format == FormatEmail:
		str, ok := value.(string)
		if !ok || documentValidator.Var(str, "email") != nil {
			return "must be a valid email"
		}
		return ""
	}

	switch spec.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	case "number":
		if typeName(value) != "number" {
			return "must be a number"
		}
	case "integer":
		if _, ok := toInt64(value); !ok {
			return "must be an integer"
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case "object":
		if typeName(value) != "object" {
			return "must be an object"
		}
	case "array":
		if _, ok := toAnySlice(value); !ok {
			return "must be an array"
		}
	}
	return ""
}

func convertObject(schema *Schema, document bson.M, prefix string) (bson.M, error) {
	converted := make(bson.M, len(document))
	for key, value := range document {
		converted[key] = value
	}

	for _, prop := range schema.Properties() {
		value, present := converted[prop.Name]
		if !present || value == nil {
			continue
		}

		nativeValue, err := convertValue(prop.Schema, value, joinPath(prefix, prop.Name))
		if err != nil {
			return nil, err
		}
		converted[prop.Name] = nativeValue
	}
	return converted, nil
}

func convertValue(schema *Schema, value any, path string) (any, error) {
	switch schema.Kind() {
	case SchemaObject:
		nested, ok := toDocument(value)
		if !ok {
			return value, nil
		}
		return convertObject(schema, nested, path)
	case SchemaArray:
		elements, ok := toAnySlice(value)
		if !ok || schema.Items() == nil {
			return value, nil
		}
		converted := make(bson.A, 0, len(elements))
		for i, element := range elements {
			nativeElement, err := convertValue(schema.Items(), element, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, err
			}
			converted = append(converted, nativeElement)
		}
		return converted, nil
	}

	str, ok := value.(string)
	if !ok {
		return value, nil
	}

	spec := schema.Spec()
	switch {
	case spec.IsIdentifier():
		return parseObjectId(path, str)
	case spec.IsDate():
		date, err := timeutils.ParseDateString(str)
		if err != nil {
			return nil, &TypeError{Kind: ValueTypeError, Param: path, Actual: "string", Expected: "date", Err: err}
		}
		return date, nil
	}
	return value, nil
}

func joinPath(prefix string, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
