package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
}

type WriteOptions struct {
	WriteConcern *writeconcern.WriteConcern
	Multi        bool // Update every matching document
	Upsert       bool
	JustOne      bool // Remove only the first matching document
}

// Collection is the store handle a repository delegates to. Implementations
// work on native identifiers and return store errors unchanged.
type Collection interface {
	Name() string

	// Find returns every matching document, an empty slice when none match
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)

	// FindOne returns the first matching document, or nil when none match
	FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error)

	// Insert stores the documents and returns their identifiers in order
	Insert(ctx context.Context, docs []bson.M, opts WriteOptions) ([]any, error)

	// Update applies a modifier document and returns the modified count
	Update(ctx context.Context, filter bson.M, update bson.M, opts WriteOptions) (int64, error)

	// Remove deletes the matching documents and returns the removed count
	Remove(ctx context.Context, filter bson.M, opts WriteOptions) (int64, error)

	Count(ctx context.Context, filter bson.M) (int64, error)

	// Aggregate runs the pipeline as given
	Aggregate(ctx context.Context, pipeline any, opts *options.AggregateOptionsBuilder) ([]bson.M, error)

	// EnsureIndexes creates the indexes and returns their names
	EnsureIndexes(ctx context.Context, indexes []MongoIndexDefinition) ([]string, error)
}
