// Package jsonq parses the JSON documents received at transport boundaries
// (query strings, request bodies) into the shapes accepted by the database
// repositories.
package jsonq

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/valyala/fastjson"
	"github.com/xompass/vsaas-docrepo/database"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var queryPool fastjson.ParserPool
var sortPool fastjson.ParserPool
var fieldsPool fastjson.ParserPool
var pipelinePool fastjson.ParserPool
var filterPool fastjson.ParserPool
var documentsPool fastjson.ParserPool

// Operators that run server side JavaScript are never accepted from clients
var forbiddenOperators = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

// Stages that write to other collections
var forbiddenStages = map[string]bool{
	"$out":   true,
	"$merge": true,
}

// Filter is the combined form: {"where": {...}, "sort": ..., "fields": ...,
// "skip": n, "limit": n}
type Filter struct {
	Where  bson.M
	Sort   bson.D
	Fields bson.D
	Skip   int64
	Limit  int64
}

// Options converts the paging part of the filter to repository options
func (f *Filter) Options() database.Options {
	opts := database.Options{Skip: f.Skip, Limit: f.Limit}
	if len(f.Fields) > 0 {
		opts.Fields = f.Fields
	}
	if len(f.Sort) > 0 {
		opts.Sort = f.Sort
	}
	return opts
}

func parse(pool *fastjson.ParserPool, s string, what string) (*fastjson.Value, func(), error) {
	parser := pool.Get()
	value, err := parser.Parse(s)
	if err != nil {
		pool.Put(parser)
		return nil, nil, errors.Errorf("cannot parse %s: %v", what, err)
	}
	return value, func() { pool.Put(parser) }, nil
}

// ParseQuery parses a JSON object into a query document. An empty string is
// an empty query.
func ParseQuery(s string) (bson.M, error) {
	if strings.TrimSpace(s) == "" {
		return bson.M{}, nil
	}

	value, release, err := parse(&queryPool, s, "query")
	if err != nil {
		return nil, err
	}
	defer release()

	return queryValue(value)
}

func queryValue(value *fastjson.Value) (bson.M, error) {
	if value.Type() != fastjson.TypeObject {
		return nil, errors.New("invalid query: expected an object")
	}

	converted, err := convert(value, false)
	if err != nil {
		return nil, err
	}
	return converted.(bson.M), nil
}

// ParseDocuments parses a request body holding one document or a list of
// documents
func ParseDocuments(data []byte) ([]bson.M, error) {
	parser := documentsPool.Get()
	defer documentsPool.Put(parser)

	value, err := parser.ParseBytes(data)
	if err != nil {
		return nil, errors.Errorf("cannot parse document: %v", err)
	}

	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeObject:
		doc, err := queryValue(value)
		if err != nil {
			return nil, err
		}
		return []bson.M{doc}, nil
	case fastjson.TypeArray:
		items := value.GetArray()
		if len(items) == 0 {
			return nil, errors.New("invalid document: empty list")
		}
		docs := make([]bson.M, 0, len(items))
		for _, item := range items {
			if item.Type() != fastjson.TypeObject {
				return nil, errors.New("invalid document: expected an object")
			}
			doc, err := queryValue(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}
	return nil, errors.New("invalid document: expected an object or a list of objects")
}

// ParseSort accepts "name", "-name", "name DESC", a list of those, or an
// object of {field: 1|-1|"asc"|"desc"} kept in declaration order
func ParseSort(s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	value, release, err := parse(&sortPool, s, "sort")
	if err != nil {
		// plain query string values are not quoted
		return sortTerms([]string{s})
	}
	defer release()

	return sortValue(value)
}

func sortValue(value *fastjson.Value) (bson.D, error) {
	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		return sortTerms([]string{string(value.GetStringBytes())})
	case fastjson.TypeArray:
		var terms []string
		for _, item := range value.GetArray() {
			if item.Type() != fastjson.TypeString {
				return nil, errors.New("invalid sort param")
			}
			terms = append(terms, string(item.GetStringBytes()))
		}
		return sortTerms(terms)
	case fastjson.TypeObject:
		var sort bson.D
		var nestedError error
		value.GetObject().Visit(func(key []byte, v *fastjson.Value) {
			if nestedError != nil {
				return
			}
			direction, err := sortDirection(v)
			if err != nil {
				nestedError = err
				return
			}
			sort = append(sort, bson.E{Key: string(key), Value: direction})
		})
		return sort, nestedError
	}
	return nil, errors.New("invalid sort param")
}

func sortTerms(terms []string) (bson.D, error) {
	var sort bson.D
	for _, term := range terms {
		for _, part := range strings.Split(term, ",") {
			elem, err := sortTerm(part)
			if err != nil {
				return nil, err
			}
			sort = append(sort, elem)
		}
	}
	return sort, nil
}

func sortTerm(term string) (bson.E, error) {
	parts := strings.Fields(term)
	switch len(parts) {
	case 1:
		field := parts[0]
		if strings.HasPrefix(field, "-") && len(field) > 1 {
			return bson.E{Key: field[1:], Value: -1}, nil
		}
		return bson.E{Key: field, Value: 1}, nil
	case 2:
		switch strings.ToUpper(parts[1]) {
		case "ASC":
			return bson.E{Key: parts[0], Value: 1}, nil
		case "DESC":
			return bson.E{Key: parts[0], Value: -1}, nil
		}
	}
	return bson.E{}, errors.Errorf("invalid sort param %q", strings.TrimSpace(term))
}

func sortDirection(v *fastjson.Value) (int, error) {
	switch v.Type() { //nolint:exhaustive
	case fastjson.TypeNumber:
		switch v.GetFloat64() {
		case 1:
			return 1, nil
		case -1:
			return -1, nil
		}
	case fastjson.TypeString:
		switch strings.ToLower(string(v.GetStringBytes())) {
		case "asc":
			return 1, nil
		case "desc":
			return -1, nil
		}
	}
	return 0, errors.New("invalid sort direction")
}

// ParseFields accepts a list of field names or an object of {field: bool|0|1}
func ParseFields(s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	value, release, err := parse(&fieldsPool, s, "fields")
	if err != nil {
		return nil, err
	}
	defer release()

	return fieldsValue(value)
}

func fieldsValue(value *fastjson.Value) (bson.D, error) {
	var fields bson.D
	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeArray:
		for _, item := range value.GetArray() {
			if item.Type() != fastjson.TypeString {
				return nil, errors.New("invalid fields param")
			}
			fields = append(fields, bson.E{Key: string(item.GetStringBytes()), Value: 1})
		}
	case fastjson.TypeObject:
		var nestedError error
		value.GetObject().Visit(func(key []byte, v *fastjson.Value) {
			switch v.Type() { //nolint:exhaustive
			case fastjson.TypeTrue:
				fields = append(fields, bson.E{Key: string(key), Value: 1})
			case fastjson.TypeFalse:
				fields = append(fields, bson.E{Key: string(key), Value: 0})
			case fastjson.TypeNumber:
				n := v.GetInt()
				if n != 0 && n != 1 {
					nestedError = errors.New("invalid fields param")
					return
				}
				fields = append(fields, bson.E{Key: string(key), Value: n})
			default:
				nestedError = errors.New("invalid fields param")
			}
		})
		if nestedError != nil {
			return nil, nestedError
		}
	default:
		return nil, errors.New("invalid fields param")
	}
	return fields, nil
}

// ParsePipeline parses an aggregation pipeline. Stage documents keep their
// key order. Stages writing to other collections are rejected.
func ParsePipeline(s string) (mongo.Pipeline, error) {
	value, release, err := parse(&pipelinePool, s, "pipeline")
	if err != nil {
		return nil, err
	}
	defer release()

	return pipelineValue(value)
}

func pipelineValue(value *fastjson.Value) (mongo.Pipeline, error) {
	if value.Type() != fastjson.TypeArray {
		return nil, errors.New("invalid pipeline: expected an array")
	}

	stages := value.GetArray()
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for i, stage := range stages {
		if stage.Type() != fastjson.TypeObject || stage.GetObject().Len() != 1 {
			return nil, errors.Errorf("invalid pipeline stage %d", i)
		}

		converted, err := convert(stage, true)
		if err != nil {
			return nil, err
		}

		doc := converted.(bson.D)
		name := doc[0].Key
		if !strings.HasPrefix(name, "$") {
			return nil, errors.Errorf("invalid pipeline stage %d: %s", i, name)
		}
		if forbiddenStages[name] {
			return nil, errors.Errorf("pipeline stage %s is not allowed", name)
		}
		pipeline = append(pipeline, doc)
	}
	return pipeline, nil
}

// ParseFilter parses the combined filter form
func ParseFilter(s string) (*Filter, error) {
	if strings.TrimSpace(s) == "" {
		return &Filter{}, nil
	}

	value, release, err := parse(&filterPool, s, "filter")
	if err != nil {
		return nil, err
	}
	defer release()

	if value.Type() != fastjson.TypeObject {
		return nil, errors.New("invalid filter")
	}

	filter := &Filter{}
	if where := value.Get("where"); where != nil {
		if filter.Where, err = queryValue(where); err != nil {
			return nil, err
		}
	}

	sort := value.Get("sort")
	if sort == nil {
		sort = value.Get("order")
	}
	if sort != nil {
		if filter.Sort, err = sortValue(sort); err != nil {
			return nil, err
		}
	}

	if fields := value.Get("fields"); fields != nil {
		if filter.Fields, err = fieldsValue(fields); err != nil {
			return nil, err
		}
	}

	if filter.Skip, err = nonNegative(value, "skip"); err != nil {
		return nil, err
	}
	if filter.Limit, err = nonNegative(value, "limit"); err != nil {
		return nil, err
	}

	return filter, nil
}

func nonNegative(value *fastjson.Value, key string) (int64, error) {
	v := value.Get(key)
	if v == nil || v.Type() == fastjson.TypeNull {
		return 0, nil
	}

	n, err := v.Int64()
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid %s param", key)
	}
	return n, nil
}

// convert turns a parsed JSON value into its BSON counterpart. Objects
// become bson.D when ordered is set, bson.M otherwise. Integral numbers
// become int64.
func convert(v *fastjson.Value, ordered bool) (any, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, nil
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeString:
		return string(v.GetStringBytes()), nil
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.GetFloat64(), nil
	case fastjson.TypeArray:
		items := v.GetArray()
		arr := make(bson.A, 0, len(items))
		for _, item := range items {
			converted, err := convert(item, ordered)
			if err != nil {
				return nil, err
			}
			arr = append(arr, converted)
		}
		return arr, nil
	case fastjson.TypeObject:
		return convertObject(v.GetObject(), ordered)
	}
	return nil, errors.Errorf("unsupported JSON value %s", v.Type())
}

func convertObject(obj *fastjson.Object, ordered bool) (any, error) {
	var nestedError error
	doc := make(bson.D, 0, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if nestedError != nil {
			return
		}

		name := string(key)
		if forbiddenOperators[name] {
			nestedError = errors.Errorf("invalid use of operator %s", name)
			return
		}

		converted, err := convert(v, ordered)
		if err != nil {
			nestedError = err
			return
		}
		doc = append(doc, bson.E{Key: name, Value: converted})
	})

	if nestedError != nil {
		return nil, nestedError
	}

	if ordered {
		return doc, nil
	}

	m := make(bson.M, len(doc))
	for _, elem := range doc {
		m[elem.Key] = elem.Value
	}
	return m, nil
}
