package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoRepository struct {
	Options      RepositoryOptions
	collection   Collection
	schema       *Schema
	info         *SchemaInfo
	codec        *IdentifierCodec
	indexesReady chan struct{}
}

// NewRepository builds a repository over the collection. The schema is
// analyzed once; declared indexes are created in the background and
// failures there are only logged.
func NewRepository(collection Collection, schema *Schema, opts RepositoryOptions) (*MongoRepository, error) {
	if collection == nil {
		return nil, ErrNilCollection
	}

	schema = schema.Clone()
	info := AnalyzeSchema(schema)

	repository := &MongoRepository{
		Options:      opts.withDefaults(),
		collection:   collection,
		schema:       schema,
		info:         info,
		codec:        NewIdentifierCodec(info.IdFields()...),
		indexesReady: make(chan struct{}),
	}

	repository.ensureIndexes()

	return repository, nil
}

// NewMongoRepository builds a repository over a collection of a connector
// registered in the datasource, and registers it under the collection name.
func NewMongoRepository(ds *Datasource, connectorName string, collectionName string, schema *Schema, opts RepositoryOptions) (*MongoRepository, error) {
	connector, err := ds.GetMongoConnector(connectorName)
	if err != nil {
		return nil, err
	}

	if opts.WriteConcern == nil {
		opts.WriteConcern = connector.WriteConcern()
	}
	if opts.Logger == nil {
		opts.Logger = connector.GetOptions().Logger
	}

	repository, err := NewRepository(connector.Collection(collectionName), schema, opts)
	if err != nil {
		return nil, err
	}

	if err := ds.RegisterRepository(collectionName, repository); err != nil {
		return nil, err
	}

	return repository, nil
}

func (repository *MongoRepository) ensureIndexes() {
	indexes := append(repository.info.Indexes(), repository.Options.Indexes...)
	if repository.Options.SkipIndexes || len(indexes) == 0 {
		close(repository.indexesReady)
		return
	}

	go func() {
		defer close(repository.indexesReady)

		ctx, cancel := context.WithTimeout(context.Background(), repository.Options.IndexTimeout)
		defer cancel()

		if _, err := repository.collection.EnsureIndexes(ctx, indexes); err != nil {
			repository.Options.Logger.Errorf("Could not ensure indexes for %s: %v", repository.collection.Name(), err)
		}
	}()
}

// IndexesReady is closed once the index creation started at construction
// has finished, successfully or not
func (repository *MongoRepository) IndexesReady() <-chan struct{} {
	return repository.indexesReady
}

func (repository *MongoRepository) GetSchema() *Schema {
	return repository.schema.Clone()
}

func (repository *MongoRepository) GetCollection() Collection {
	return repository.collection
}

func (repository *MongoRepository) SchemaInfo() *SchemaInfo {
	return repository.info
}

func (repository *MongoRepository) KeyField() string {
	return repository.info.KeyField()
}

func (repository *MongoRepository) DefaultSort() SortSpec {
	return repository.info.DefaultSort()
}

func (repository *MongoRepository) IsIdField(field string) bool {
	return repository.codec.IsIdField(field)
}

func (repository *MongoRepository) ConvertId(id any) (any, error) {
	return ConvertId(id)
}

func (repository *MongoRepository) CreateNewId() bson.ObjectID {
	return CreateNewId()
}

func (repository *MongoRepository) Insert(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[[]bson.M]("Insert", args, 2, 3)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(optionalArgument(positional, 1), nil)
	if err != nil {
		return err
	}

	doc := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() ([]bson.M, error) {
		docs, ok := toDocuments(doc)
		if !ok {
			return nil, newValueTypeError("doc", doc, "object or array")
		}

		ids, err := repository.collection.Insert(ctx, docs, repository.writeOptions(opts))
		if err != nil {
			return nil, err
		}

		for i, inserted := range docs {
			if _, ok := inserted["_id"]; !ok && i < len(ids) {
				inserted["_id"] = ids[i]
			}
		}
		return docs, nil
	})

	return nil
}

func (repository *MongoRepository) Find(ctx context.Context, args ...any) error {
	call, err := resolveQueryCall[[]bson.M]("Find", args, repository.info.DefaultSort())
	if err != nil {
		return err
	}

	ctx = ensureContext(ctx)

	dispatch(call.callback, func() ([]bson.M, error) {
		query, err := repository.prepareQuery(call.query)
		if err != nil {
			return nil, err
		}
		return repository.collection.Find(ctx, query, findOptions(call.options))
	})

	return nil
}

func (repository *MongoRepository) FindOne(ctx context.Context, args ...any) error {
	call, err := resolveQueryCall[bson.M]("FindOne", args, repository.info.DefaultSort())
	if err != nil {
		return err
	}

	ctx = ensureContext(ctx)

	dispatch(call.callback, func() (bson.M, error) {
		query, err := repository.prepareQuery(call.query)
		if err != nil {
			return nil, err
		}
		return repository.collection.FindOne(ctx, query, findOptions(call.options))
	})

	return nil
}

func (repository *MongoRepository) FindOneById(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[bson.M]("FindOneById", args, 2, 3)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(optionalArgument(positional, 1), nil)
	if err != nil {
		return err
	}

	id := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() (bson.M, error) {
		query, err := repository.IdQuery(id)
		if err != nil {
			return nil, err
		}
		return repository.collection.FindOne(ctx, query, findOptions(opts))
	})

	return nil
}

func (repository *MongoRepository) Update(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[int64]("Update", args, 3, 4)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(optionalArgument(positional, 2), nil)
	if err != nil {
		return err
	}

	rawQuery, update := positional[0], positional[1]
	ctx = ensureContext(ctx)

	dispatch(cb, func() (int64, error) {
		if rawQuery == nil {
			return 0, newValueTypeError("query", rawQuery, "object")
		}

		query, err := repository.prepareQuery(rawQuery)
		if err != nil {
			return 0, err
		}

		document, err := buildUpdateDocument(update, repository.info.KeyField())
		if err != nil {
			return 0, err
		}

		return repository.collection.Update(ctx, query, document, repository.writeOptions(opts))
	})

	return nil
}

func (repository *MongoRepository) Remove(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[int64]("Remove", args, 2, 3)
	if err != nil {
		return err
	}

	var opts resolvedOptions
	if justOne, ok := optionalArgument(positional, 1).(bool); ok {
		opts.justOne = justOne
	} else if opts, err = resolveOptions(optionalArgument(positional, 1), nil); err != nil {
		return err
	}

	rawQuery := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() (int64, error) {
		if rawQuery == nil {
			return 0, newValueTypeError("query", rawQuery, "object")
		}

		query, err := repository.prepareQuery(rawQuery)
		if err != nil {
			return 0, err
		}

		return repository.collection.Remove(ctx, query, repository.writeOptions(opts))
	})

	return nil
}

func (repository *MongoRepository) Count(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[int64]("Count", args, 1, 2)
	if err != nil {
		return err
	}

	rawQuery := optionalArgument(positional, 0)
	ctx = ensureContext(ctx)

	dispatch(cb, func() (int64, error) {
		query, err := repository.prepareQuery(rawQuery)
		if err != nil {
			return 0, err
		}
		return repository.collection.Count(ctx, query)
	})

	return nil
}

// Aggregate runs the pipeline without any identifier conversion
func (repository *MongoRepository) Aggregate(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[[]bson.M]("Aggregate", args, 2, 3)
	if err != nil {
		return err
	}

	var aggregateOptions *options.AggregateOptionsBuilder
	if rawOptions := optionalArgument(positional, 1); rawOptions != nil {
		builder, ok := rawOptions.(*options.AggregateOptionsBuilder)
		if !ok {
			return newArgumentTypeError("options", rawOptions, "aggregate options")
		}
		aggregateOptions = builder
	}

	pipeline := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() ([]bson.M, error) {
		if !isPipeline(pipeline) {
			return nil, newValueTypeError("pipeline", pipeline, "array")
		}
		return repository.collection.Aggregate(ctx, pipeline, aggregateOptions)
	})

	return nil
}

func (repository *MongoRepository) prepareQuery(raw any) (bson.M, error) {
	query, ok := toQuery(raw)
	if !ok {
		return nil, newValueTypeError("query", raw, "object")
	}

	if err := repository.codec.ConvertQueryIds(query); err != nil {
		return nil, err
	}
	return query, nil
}

// IdQuery builds the {keyField: id} query used by by-id operations, with
// the id converted the same way FindOneById converts it
func (repository *MongoRepository) IdQuery(id any) (bson.M, error) {
	if ptr, ok := id.(*string); ok && ptr != nil {
		id = *ptr
	}
	if kind := typeName(id); kind != "string" && kind != "object" {
		return nil, newValueTypeError("id", id, "string or object")
	}

	nativeId, err := repository.nativeKeyValue(id)
	if err != nil {
		return nil, err
	}
	return bson.M{repository.info.KeyField(): nativeId}, nil
}

// nativeKeyValue converts a by-id lookup value. An undeclared default key
// is converted only when the value is a valid hex identifier.
func (repository *MongoRepository) nativeKeyValue(id any) (any, error) {
	key := repository.info.KeyField()
	if repository.codec.IsIdField(key) {
		return repository.codec.NativeId(key, id)
	}

	if key == DefaultKeyField && !repository.info.IsDeclared(key) {
		if str, ok := id.(string); ok {
			if oid, err := bson.ObjectIDFromHex(str); err == nil {
				return oid, nil
			}
		}
	}

	return id, nil
}

func (repository *MongoRepository) writeOptions(opts resolvedOptions) WriteOptions {
	writeConcern := opts.writeConcern
	if writeConcern == nil {
		writeConcern = repository.Options.WriteConcern
	}

	return WriteOptions{
		WriteConcern: writeConcern,
		Multi:        opts.multi,
		Upsert:       opts.upsert,
		JustOne:      opts.justOne,
	}
}

func findOptions(opts resolvedOptions) FindOptions {
	return FindOptions{
		Projection: opts.projection,
		Sort:       opts.sort.BSON(),
		Skip:       opts.skip,
		Limit:      opts.limit,
	}
}

func optionalArgument(args []any, index int) any {
	if index < len(args) {
		return args[index]
	}
	return nil
}

func isPipeline(pipeline any) bool {
	if _, ok := pipeline.(mongo.Pipeline); ok {
		return true
	}
	_, ok := toAnySlice(pipeline)
	return ok
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
