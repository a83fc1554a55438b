package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Repository is a schema-aware view over a collection. Operations take
// their arguments positionally with a trailing Callback. Wrong argument
// counts, malformed options and missing callbacks are returned right away;
// every other outcome, including malformed queries, is delivered through
// the callback.
type Repository interface {
	// GetSchema returns a copy of the schema of the repository.
	GetSchema() *Schema

	// GetCollection returns the collection handle the repository delegates to.
	GetCollection() Collection

	// KeyField returns the field used by FindOneById.
	KeyField() string

	// DefaultSort returns the sort applied when a read sets none.
	DefaultSort() SortSpec

	// IsIdField reports whether query values of the field are converted to
	// native identifiers.
	IsIdField(field string) bool

	// IdQuery returns the query matching the document with the given key,
	// converted as FindOneById does.
	IdQuery(id any) (bson.M, error)

	// ConvertId converts a hex string to a native identifier and back.
	ConvertId(id any) (any, error)

	// CreateNewId returns a fresh native identifier.
	CreateNewId() bson.ObjectID

	// Validate checks a document against the schema. Required fields are
	// only enforced when isUpdate is false.
	Validate(doc any, isUpdate bool) error

	// ConvertValues returns a copy of the document with identifier and
	// date strings converted to their native types.
	ConvertValues(doc any) (bson.M, error)

	// Insert(ctx, doc|docs, [options], Callback[[]bson.M])
	Insert(ctx context.Context, args ...any) error

	// Find(ctx, [query], [options], Callback[[]bson.M])
	Find(ctx context.Context, args ...any) error

	// FindOne(ctx, [query], [options], Callback[bson.M])
	FindOne(ctx context.Context, args ...any) error

	// FindOneById(ctx, id, [options], Callback[bson.M])
	FindOneById(ctx context.Context, args ...any) error

	// Update(ctx, query, update, [options], Callback[int64])
	Update(ctx context.Context, args ...any) error

	// Remove(ctx, query, [options|justOne], Callback[int64])
	Remove(ctx context.Context, args ...any) error

	// Count(ctx, [query], Callback[int64])
	Count(ctx context.Context, args ...any) error

	// Aggregate(ctx, pipeline, [*options.AggregateOptionsBuilder], Callback[[]bson.M])
	Aggregate(ctx context.Context, args ...any) error
}

// Await runs a callback-style operation and waits for its outcome
func Await[T any](call func(cb Callback[T]) error) (T, error) {
	type outcome struct {
		result T
		err    error
	}

	done := make(chan outcome, 1)
	cb := Callback[T](func(err error, result T) {
		done <- outcome{result: result, err: err}
	})

	if err := call(cb); err != nil {
		var zero T
		return zero, err
	}

	out := <-done
	return out.result, out.err
}

// dispatch runs the operation on its own goroutine and reports the outcome
// through the callback
func dispatch[T any](cb Callback[T], run func() (T, error)) {
	go func() {
		result, err := run()
		if err != nil {
			var zero T
			cb(err, zero)
			return
		}
		cb(nil, result)
	}()
}
