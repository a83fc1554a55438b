package database

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	goerrors "github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type ErrorKind string

const (
	// ArgumentTypeError is returned synchronously, before any reporting channel exists
	ArgumentTypeError ErrorKind = "ArgumentTypeError"
	// ValueTypeError is delivered through the operation callback
	ValueTypeError ErrorKind = "ValueTypeError"
)

const (
	MIXED_UPDATE = "the update has a mix between fields and commands"
	EMPTY_UPDATE = "the update document is empty"
)

var (
	ErrMixedUpdate   = goerrors.New(MIXED_UPDATE)
	ErrEmptyUpdate   = goerrors.New(EMPTY_UPDATE)
	ErrNilCollection = goerrors.New("collection cannot be nil")
)

// TypeError reports a parameter of an unexpected type. The message shape
// is stable and may be matched by callers.
type TypeError struct {
	Kind     ErrorKind
	Param    string
	Actual   string
	Expected string
	Err      error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("Param \"%s\" is of type %s! Type %s expected", e.Param, e.Actual, e.Expected)
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

func newArgumentTypeError(param string, value any, expected string) *TypeError {
	return &TypeError{Kind: ArgumentTypeError, Param: param, Actual: typeName(value), Expected: expected}
}

func newValueTypeError(param string, value any, expected string) *TypeError {
	return &TypeError{Kind: ValueTypeError, Param: param, Actual: typeName(value), Expected: expected}
}

// ArityError reports a call with a wrong number of arguments
type ArityError struct {
	Operation string
	Got       int
	Min       int
	Max       int
}

func (e *ArityError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("%s: wrong number of arguments, got %d, expected %d", e.Operation, e.Got, e.Min)
	}
	return fmt.Sprintf("%s: wrong number of arguments, got %d, expected between %d and %d", e.Operation, e.Got, e.Min, e.Max)
}

func IsArityError(err error) bool {
	var arityErr *ArityError
	return errors.As(err, &arityErr)
}

// IsTypeError reports whether err is a TypeError of the given kind. An
// empty kind matches both kinds.
func IsTypeError(err error, kind ErrorKind) bool {
	var typeErr *TypeError
	if !errors.As(err, &typeErr) {
		return false
	}
	return kind == "" || typeErr.Kind == kind
}

// IsDuplicateKey reports whether a store error is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// typeName describes a value with the names used in error messages
func typeName(value any) string {
	if value == nil {
		return "null"
	}

	switch value.(type) {
	case bson.ObjectID, time.Time, bson.M, bson.D:
		return "object"
	case bson.A:
		return "array"
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Func:
		return "function"
	case reflect.Map, reflect.Struct:
		return "object"
	}

	return rv.Kind().String()
}
