package database

import (
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type SortDirection int

const (
	Ascending  SortDirection = 1
	Descending SortDirection = -1
)

type SortField struct {
	Field     string
	Direction SortDirection
}

// SortSpec is an ordered list of sort fields. The order decides tie-breaks.
type SortSpec []SortField

// BSON renders the spec as an ordered sort document
func (spec SortSpec) BSON() bson.D {
	if len(spec) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(spec))
	for _, field := range spec {
		d = append(d, bson.E{Key: field.Field, Value: int(field.Direction)})
	}
	return d
}

// NormalizeSort canonicalizes the accepted sort shapes:
//
//	nil, "" or empty           -> fallback
//	"name"                     -> [(name, 1)]
//	[]string{"name", "city"}   -> [(name, 1), (city, 1)]
//	[][]any{{"name", 1}, ...}  -> pairs in order
//	bson.D{{"name", 1}, ...}   -> pairs in order
//	bson.M{"name": -1}         -> [(name, -1)]
//
// Unordered maps with more than one key are rejected since their iteration
// order is random. Directions must be 1 or -1.
func NormalizeSort(value any, fallback SortSpec) (SortSpec, error) {
	switch v := value.(type) {
	case nil:
		return slices.Clone(fallback), nil
	case string:
		if v == "" {
			return slices.Clone(fallback), nil
		}
		return SortSpec{{Field: v, Direction: Ascending}}, nil
	case []string:
		if len(v) == 0 {
			return slices.Clone(fallback), nil
		}
		spec := make(SortSpec, 0, len(v))
		for _, field := range v {
			if field == "" {
				return nil, newArgumentTypeError("sort", field, "non-empty string")
			}
			spec = append(spec, SortField{Field: field, Direction: Ascending})
		}
		return spec, nil
	case SortSpec:
		return checkSortSpec(v, fallback)
	case []SortField:
		return checkSortSpec(v, fallback)
	case bson.E:
		return sortFromPairs(bson.D{v}, fallback)
	case bson.D:
		return sortFromPairs(v, fallback)
	case bson.M:
		return sortFromMap(v, fallback)
	case map[string]any:
		return sortFromMap(v, fallback)
	case map[string]int:
		m := make(map[string]any, len(v))
		for key, direction := range v {
			m[key] = direction
		}
		return sortFromMap(m, fallback)
	}

	elements, ok := toAnySlice(value)
	if !ok {
		return nil, newArgumentTypeError("sort", value, "string, array or single-key object")
	}
	if len(elements) == 0 {
		return slices.Clone(fallback), nil
	}

	spec := make(SortSpec, 0, len(elements))
	for _, element := range elements {
		field, err := sortFieldFromElement(element)
		if err != nil {
			return nil, err
		}
		spec = append(spec, field)
	}
	return spec, nil
}

func sortFieldFromElement(element any) (SortField, error) {
	if field, ok := element.(string); ok && field != "" {
		return SortField{Field: field, Direction: Ascending}, nil
	}

	if elem, ok := element.(bson.E); ok {
		return sortField(elem.Key, elem.Value)
	}

	pair, ok := toAnySlice(element)
	if !ok || len(pair) != 2 {
		return SortField{}, newArgumentTypeError("sort", element, "[field, direction] pair")
	}

	field, ok := pair[0].(string)
	if !ok || field == "" {
		return SortField{}, newArgumentTypeError("sort", pair[0], "string")
	}
	return sortField(field, pair[1])
}

func sortFromPairs(d bson.D, fallback SortSpec) (SortSpec, error) {
	if len(d) == 0 {
		return slices.Clone(fallback), nil
	}
	spec := make(SortSpec, 0, len(d))
	for _, elem := range d {
		field, err := sortField(elem.Key, elem.Value)
		if err != nil {
			return nil, err
		}
		spec = append(spec, field)
	}
	return spec, nil
}

func sortFromMap(m map[string]any, fallback SortSpec) (SortSpec, error) {
	switch len(m) {
	case 0:
		return slices.Clone(fallback), nil
	case 1:
		for key, direction := range m {
			field, err := sortField(key, direction)
			if err != nil {
				return nil, err
			}
			return SortSpec{field}, nil
		}
	}
	return nil, newArgumentTypeError("sort", m, "ordered document (bson.D or list of pairs)")
}

func checkSortSpec(spec SortSpec, fallback SortSpec) (SortSpec, error) {
	if len(spec) == 0 {
		return slices.Clone(fallback), nil
	}
	for _, field := range spec {
		if field.Field == "" {
			return nil, newArgumentTypeError("sort", field.Field, "non-empty string")
		}
		if field.Direction != Ascending && field.Direction != Descending {
			return nil, newArgumentTypeError("sort."+field.Field, int(field.Direction), "1 or -1")
		}
	}
	return slices.Clone(spec), nil
}

func sortField(field string, direction any) (SortField, error) {
	if field == "" {
		return SortField{}, newArgumentTypeError("sort", field, "non-empty string")
	}

	if d, ok := direction.(SortDirection); ok {
		direction = int(d)
	}

	n, ok := toInt64(direction)
	if !ok || (n != 1 && n != -1) {
		return SortField{}, newArgumentTypeError("sort."+field, direction, "1 or -1")
	}
	return SortField{Field: field, Direction: SortDirection(n)}, nil
}
