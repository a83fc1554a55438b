package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// MongoCollection implements Collection on top of a driver collection
type MongoCollection struct {
	collection   *mongo.Collection
	indexManager *MongoIndexManager
}

func NewMongoCollection(collection *mongo.Collection, indexManager *MongoIndexManager) *MongoCollection {
	if indexManager == nil {
		indexManager = NewMongoIndexManager(nil)
	}
	return &MongoCollection{
		collection:   collection,
		indexManager: indexManager,
	}
}

func (c *MongoCollection) Name() string {
	return c.collection.Name()
}

// GetDriverCollection returns the underlying driver collection
func (c *MongoCollection) GetDriverCollection() *mongo.Collection {
	return c.collection
}

func (c *MongoCollection) withWriteConcern(wc *writeconcern.WriteConcern) *mongo.Collection {
	if wc == nil {
		return c.collection
	}
	return c.collection.Database().Collection(c.collection.Name(), options.Collection().SetWriteConcern(wc))
}

func (c *MongoCollection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}

	cursor, err := c.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}

	var receiver []bson.M
	if err = cursor.All(ctx, &receiver); err != nil {
		return nil, err
	}

	if receiver == nil {
		return []bson.M{}, nil
	}
	return receiver, nil
}

func (c *MongoCollection) FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error) {
	findOneOptions := options.FindOne()
	if len(opts.Sort) > 0 {
		findOneOptions.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOneOptions.SetSkip(opts.Skip)
	}
	if len(opts.Projection) > 0 {
		findOneOptions.SetProjection(opts.Projection)
	}

	result := c.collection.FindOne(ctx, filter, findOneOptions)
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, result.Err()
	}

	var receiver bson.M
	if err := result.Decode(&receiver); err != nil {
		return nil, err
	}
	return receiver, nil
}

func (c *MongoCollection) Insert(ctx context.Context, docs []bson.M, opts WriteOptions) ([]any, error) {
	collection := c.withWriteConcern(opts.WriteConcern)

	if len(docs) == 1 {
		result, err := collection.InsertOne(ctx, docs[0])
		if err != nil {
			return nil, err
		}
		return []any{result.InsertedID}, nil
	}

	result, err := collection.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return result.InsertedIDs, nil
}

func (c *MongoCollection) Update(ctx context.Context, filter bson.M, update bson.M, opts WriteOptions) (int64, error) {
	collection := c.withWriteConcern(opts.WriteConcern)

	var result *mongo.UpdateResult
	var err error
	if opts.Multi {
		result, err = collection.UpdateMany(ctx, filter, update, options.UpdateMany().SetUpsert(opts.Upsert))
	} else {
		result, err = collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(opts.Upsert))
	}
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (c *MongoCollection) Remove(ctx context.Context, filter bson.M, opts WriteOptions) (int64, error) {
	collection := c.withWriteConcern(opts.WriteConcern)

	var result *mongo.DeleteResult
	var err error
	if opts.JustOne {
		result, err = collection.DeleteOne(ctx, filter)
	} else {
		result, err = collection.DeleteMany(ctx, filter)
	}
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func (c *MongoCollection) Count(ctx context.Context, filter bson.M) (int64, error) {
	return c.collection.CountDocuments(ctx, filter)
}

func (c *MongoCollection) Aggregate(ctx context.Context, pipeline any, opts *options.AggregateOptionsBuilder) ([]bson.M, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = c.collection.Aggregate(ctx, pipeline, opts)
	} else {
		cursor, err = c.collection.Aggregate(ctx, pipeline)
	}
	if err != nil {
		return nil, err
	}

	var receiver []bson.M
	if err = cursor.All(ctx, &receiver); err != nil {
		return nil, err
	}

	if receiver == nil {
		return []bson.M{}, nil
	}
	return receiver, nil
}

func (c *MongoCollection) EnsureIndexes(ctx context.Context, indexes []MongoIndexDefinition) ([]string, error) {
	return c.indexManager.EnsureIndexes(ctx, c.collection, indexes)
}
