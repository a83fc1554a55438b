package database

import (
	"slices"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// Callback receives the outcome of a repository operation. It is invoked
// exactly once, with either an error or a result.
type Callback[T any] func(err error, result T)

// Options tunes reads and writes. Fields accepts a list of field names or
// a {name: 0|1} document, Sort accepts every shape NormalizeSort does.
type Options struct {
	Fields       any
	Sort         any
	Skip         int64
	Limit        int64 // 0 means no limit
	WriteConcern *writeconcern.WriteConcern
	Multi        bool
	Upsert       bool
	JustOne      bool
}

// Option keys that mark a lone map argument as options instead of a query
var reservedOptionKeys = []string{"fields", "projection", "sort", "skip", "limit"}

type resolvedOptions struct {
	projection   bson.D
	sort         SortSpec
	skip         int64
	limit        int64
	writeConcern *writeconcern.WriteConcern
	multi        bool
	upsert       bool
	justOne      bool
}

// queryCall is the tagged result of argument disambiguation
type queryCall[T any] struct {
	query    any
	options  resolvedOptions
	callback Callback[T]
}

func asCallback[T any](value any) (Callback[T], bool) {
	switch cb := value.(type) {
	case Callback[T]:
		return cb, cb != nil
	case func(error, T):
		return cb, cb != nil
	}
	return nil, false
}

// splitCallback checks the arity and separates the trailing callback from
// the positional arguments
func splitCallback[T any](operation string, args []any, min int, max int) ([]any, Callback[T], error) {
	if len(args) < min || len(args) > max {
		return nil, nil, &ArityError{Operation: operation, Got: len(args), Min: min, Max: max}
	}

	last := args[len(args)-1]
	cb, ok := asCallback[T](last)
	if !ok {
		return nil, nil, newArgumentTypeError("callback", last, "function")
	}

	return args[:len(args)-1], cb, nil
}

// resolveQueryCall maps (cb), (query, cb) and (query, options, cb). A lone
// argument is taken as options when it is an Options value or a map with
// at least one reserved option key.
func resolveQueryCall[T any](operation string, args []any, defaultSort SortSpec) (queryCall[T], error) {
	positional, cb, err := splitCallback[T](operation, args, 1, 3)
	if err != nil {
		return queryCall[T]{}, err
	}

	call := queryCall[T]{callback: cb}
	var rawOptions any

	switch len(positional) {
	case 1:
		if isOptionsArgument(positional[0]) {
			rawOptions = positional[0]
		} else {
			call.query = positional[0]
		}
	case 2:
		call.query = positional[0]
		rawOptions = positional[1]
	}

	call.options, err = resolveOptions(rawOptions, defaultSort)
	if err != nil {
		return queryCall[T]{}, err
	}

	return call, nil
}

func isOptionsArgument(value any) bool {
	switch v := value.(type) {
	case Options, *Options:
		return true
	case bson.D:
		for _, elem := range v {
			if isReservedOptionKey(elem.Key) {
				return true
			}
		}
		return false
	}

	m, ok := value.(bson.M)
	if !ok {
		plain, isMap := value.(map[string]any)
		if !isMap {
			return false
		}
		m = plain
	}

	for key := range m {
		if isReservedOptionKey(key) {
			return true
		}
	}
	return false
}

func isReservedOptionKey(key string) bool {
	return slices.Contains(reservedOptionKeys, key)
}

func resolveOptions(value any, defaultSort SortSpec) (resolvedOptions, error) {
	opts, err := toOptions(value)
	if err != nil {
		return resolvedOptions{}, err
	}

	if opts.Skip < 0 {
		return resolvedOptions{}, newArgumentTypeError("options.skip", opts.Skip, "non-negative integer")
	}
	if opts.Limit < 0 {
		return resolvedOptions{}, newArgumentTypeError("options.limit", opts.Limit, "non-negative integer")
	}

	projection, err := normalizeProjection(opts.Fields)
	if err != nil {
		return resolvedOptions{}, err
	}

	sortSpec, err := NormalizeSort(opts.Sort, defaultSort)
	if err != nil {
		return resolvedOptions{}, err
	}

	return resolvedOptions{
		projection:   projection,
		sort:         sortSpec,
		skip:         opts.Skip,
		limit:        opts.Limit,
		writeConcern: opts.WriteConcern,
		multi:        opts.Multi,
		upsert:       opts.Upsert,
		justOne:      opts.JustOne,
	}, nil
}

func toOptions(value any) (Options, error) {
	switch v := value.(type) {
	case nil:
		return Options{}, nil
	case Options:
		return v, nil
	case *Options:
		if v == nil {
			return Options{}, nil
		}
		return *v, nil
	}

	m, ok := toQuery(value)
	if !ok {
		return Options{}, newArgumentTypeError("options", value, "object")
	}

	opts := Options{
		Fields: m["fields"],
		Sort:   m["sort"],
	}
	if projection, ok := m["projection"]; ok && opts.Fields == nil {
		opts.Fields = projection
	}

	var err error
	if opts.Skip, err = optionInt(m, "skip"); err != nil {
		return Options{}, err
	}
	if opts.Limit, err = optionInt(m, "limit"); err != nil {
		return Options{}, err
	}
	if opts.Multi, err = optionBool(m, "multi"); err != nil {
		return Options{}, err
	}
	if opts.Upsert, err = optionBool(m, "upsert"); err != nil {
		return Options{}, err
	}
	if opts.JustOne, err = optionBool(m, "justOne"); err != nil {
		return Options{}, err
	}

	if wc, ok := m["writeConcern"]; ok && wc != nil {
		concern, isConcern := wc.(*writeconcern.WriteConcern)
		if !isConcern {
			return Options{}, newArgumentTypeError("options.writeConcern", wc, "write concern")
		}
		opts.WriteConcern = concern
	}

	return opts, nil
}

func optionInt(m bson.M, key string) (int64, error) {
	value, ok := m[key]
	if !ok || value == nil {
		return 0, nil
	}
	n, ok := toInt64(value)
	if !ok || n < 0 {
		return 0, newArgumentTypeError("options."+key, value, "non-negative integer")
	}
	return n, nil
}

func optionBool(m bson.M, key string) (bool, error) {
	value, ok := m[key]
	if !ok || value == nil {
		return false, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, newArgumentTypeError("options."+key, value, "boolean")
	}
	return b, nil
}

// normalizeProjection accepts a field list or an inclusion document
func normalizeProjection(fields any) (bson.D, error) {
	switch f := fields.(type) {
	case nil:
		return nil, nil
	case string:
		if f == "" {
			return nil, nil
		}
		return bson.D{{Key: f, Value: 1}}, nil
	case []string:
		projection := make(bson.D, 0, len(f))
		for _, field := range f {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		return projection, nil
	case bson.D:
		return f, nil
	case map[string]int:
		m := make(map[string]any, len(f))
		for key, value := range f {
			m[key] = value
		}
		return projectionFromMap(m)
	case map[string]bool:
		m := make(map[string]any, len(f))
		for key, value := range f {
			m[key] = value
		}
		return projectionFromMap(m)
	}

	if m, ok := toQuery(fields); ok {
		return projectionFromMap(m)
	}

	elements, ok := toAnySlice(fields)
	if !ok {
		return nil, newArgumentTypeError("options.fields", fields, "array or object")
	}
	projection := make(bson.D, 0, len(elements))
	for _, element := range elements {
		field, ok := element.(string)
		if !ok || field == "" {
			return nil, newArgumentTypeError("options.fields", element, "string")
		}
		projection = append(projection, bson.E{Key: field, Value: 1})
	}
	return projection, nil
}

func projectionFromMap(m map[string]any) (bson.D, error) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	projection := make(bson.D, 0, len(keys))
	for _, key := range keys {
		flag, err := projectionFlag(key, m[key])
		if err != nil {
			return nil, err
		}
		projection = append(projection, bson.E{Key: key, Value: flag})
	}
	return projection, nil
}

func projectionFlag(field string, value any) (int, error) {
	if b, ok := value.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	n, ok := toInt64(value)
	if !ok || (n != 0 && n != 1) {
		return 0, newArgumentTypeError("options.fields."+field, value, "0 or 1")
	}
	return int(n), nil
}
