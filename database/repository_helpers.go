package database

import (
	"maps"
	"math"
	"reflect"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func toBsonMap(v any) (doc bson.M, err error) {
	if v == nil {
		return bson.M{}, nil
	}

	if bsonMap, ok := v.(bson.M); ok {
		return bsonMap, nil
	}

	data, err := bson.Marshal(v)
	if err != nil {
		return
	}

	err = bson.Unmarshal(data, &doc)
	return doc, err
}

func dToM(d bson.D) bson.M {
	m := make(bson.M, len(d))
	for _, elem := range d {
		m[elem.Key] = elem.Value
	}
	return m
}

// toQuery returns a shallow copy of a query document. A nil query is an
// empty query.
func toQuery(v any) (bson.M, bool) {
	switch q := v.(type) {
	case nil:
		return bson.M{}, true
	case bson.M:
		if q == nil {
			return bson.M{}, true
		}
		return maps.Clone(q), true
	case map[string]any:
		if q == nil {
			return bson.M{}, true
		}
		return bson.M(maps.Clone(q)), true
	case bson.D:
		return dToM(q), true
	}
	return nil, false
}

// toDocument returns a copy of a single document. Structs are converted
// through their bson tags.
func toDocument(v any) (bson.M, bool) {
	if v == nil {
		return nil, false
	}

	if doc, ok := toQuery(v); ok {
		return doc, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	doc, err := toBsonMap(v)
	if err != nil {
		return nil, false
	}
	return doc, true
}

// toDocuments accepts a single document or a non-empty list of documents
func toDocuments(v any) ([]bson.M, bool) {
	if doc, ok := toDocument(v); ok {
		return []bson.M{doc}, true
	}

	elements, ok := toAnySlice(v)
	if !ok || len(elements) == 0 {
		return nil, false
	}

	docs := make([]bson.M, 0, len(elements))
	for _, element := range elements {
		doc, ok := toDocument(element)
		if !ok {
			return nil, false
		}
		docs = append(docs, doc)
	}
	return docs, true
}

func toAnySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case bson.A:
		return s, true
	case []any:
		return s, true
	case []byte, bson.ObjectID:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	result := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		result[i] = rv.Index(i).Interface()
	}
	return result, true
}

// toInt64 accepts any integer value, or a float without fraction as
// produced by JSON decoding
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
