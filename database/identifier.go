package database

import (
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	logicalOperators = []string{"$and", "$or", "$nor"}
	arrayOperators   = []string{"$in", "$nin", "$all"}
	scalarOperators  = []string{"$eq", "$ne"}
)

// CreateNewId returns a fresh native identifier
func CreateNewId() bson.ObjectID {
	return bson.NewObjectID()
}

// ConvertId converts a hex string into a native identifier and a native
// identifier into its hex string. Other values are returned unchanged.
func ConvertId(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return parseObjectId("id", v)
	case *string:
		if v == nil {
			return nil, nil
		}
		return parseObjectId("id", *v)
	case bson.ObjectID:
		return v.Hex(), nil
	case *bson.ObjectID:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	}

	return value, nil
}

func parseObjectId(param string, value string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(value)
	if err != nil {
		typeErr := newValueTypeError(param, value, FormatIdentifier)
		typeErr.Err = err
		return bson.NilObjectID, typeErr
	}
	return oid, nil
}

// IdentifierCodec converts the identifier fields of queries to native
// identifiers. Only fields of the set are ever touched.
type IdentifierCodec struct {
	fields map[string]bool
}

func NewIdentifierCodec(fields ...string) *IdentifierCodec {
	codec := &IdentifierCodec{fields: make(map[string]bool, len(fields))}
	for _, field := range fields {
		codec.fields[field] = true
	}
	return codec
}

func (codec *IdentifierCodec) IsIdField(field string) bool {
	return codec.fields[field]
}

// ConvertQueryIds converts the identifier fields of the query in place.
// String values are parsed, and so are the string elements of $in, $nin
// and $all arrays. Native identifiers and other values (numbers, nil) are
// left untouched, so applying it twice is the same as applying it once.
// Sub-documents and arrays are replaced by converted copies rather than
// modified.
func (codec *IdentifierCodec) ConvertQueryIds(query bson.M) error {
	if query == nil {
		return nil
	}

	for field, value := range query {
		if isLogicalOperator(field) {
			converted, err := codec.convertClauses(value)
			if err != nil {
				return err
			}
			query[field] = converted
			continue
		}

		if !codec.fields[field] {
			continue
		}

		converted, err := convertIdValue(field, value)
		if err != nil {
			return err
		}
		query[field] = converted
	}

	return nil
}

// NativeId returns the value of a single identifier field in native form
func (codec *IdentifierCodec) NativeId(field string, value any) (any, error) {
	if !codec.fields[field] {
		return value, nil
	}
	return convertIdValue(field, value)
}

func (codec *IdentifierCodec) convertClauses(value any) (any, error) {
	clauses, ok := toAnySlice(value)
	if !ok {
		return value, nil
	}

	converted := make(bson.A, len(clauses))
	for i, clause := range clauses {
		sub, ok := toQuery(clause)
		if !ok {
			converted[i] = clause
			continue
		}
		if err := codec.ConvertQueryIds(sub); err != nil {
			return nil, err
		}
		converted[i] = sub
	}
	return converted, nil
}

func convertIdValue(field string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return parseObjectId(field, v)
	case bson.M:
		return convertOperatorDocument(field, v)
	case map[string]any:
		return convertOperatorDocument(field, bson.M(v))
	case bson.D:
		doc, err := convertOperatorDocument(field, dToM(v))
		if err != nil {
			return nil, err
		}
		// keep the caller's element order
		ordered := make(bson.D, 0, len(v))
		for _, elem := range v {
			ordered = append(ordered, bson.E{Key: elem.Key, Value: doc[elem.Key]})
		}
		return ordered, nil
	}

	return value, nil
}

func convertOperatorDocument(field string, doc bson.M) (bson.M, error) {
	converted := make(bson.M, len(doc))
	for operator, value := range doc {
		converted[operator] = value

		switch {
		case slices.Contains(arrayOperators, operator):
			elements, ok := toAnySlice(value)
			if !ok {
				continue
			}
			arr := make(bson.A, len(elements))
			for i, element := range elements {
				if str, ok := element.(string); ok {
					oid, err := parseObjectId(field, str)
					if err != nil {
						return nil, err
					}
					arr[i] = oid
					continue
				}
				arr[i] = element
			}
			converted[operator] = arr
		case slices.Contains(scalarOperators, operator):
			if str, ok := value.(string); ok {
				oid, err := parseObjectId(field, str)
				if err != nil {
					return nil, err
				}
				converted[operator] = oid
			}
		}
	}
	return converted, nil
}

func isLogicalOperator(key string) bool {
	return slices.Contains(logicalOperators, key)
}
