package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

const (
	firstHexId  = "507f191e810c19729de860ea"
	secondHexId = "507f191e810c19729de860eb"
)

func postSchema() *Schema {
	return Object(
		Prop("_id", Leaf(PropertySpec{Type: "string", Format: FormatIdentifier, Key: true})),
		Prop("name", Leaf(PropertySpec{Type: "string", Sort: 1})),
		Prop("authorId", Leaf(PropertySpec{Type: "string", Format: FormatIdentifier, Index: true})),
	)
}

func mustObjectId(t *testing.T, hex string) bson.ObjectID {
	t.Helper()
	oid, err := bson.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return oid
}

func newMemoryRepository(t *testing.T, schema *Schema) (*MongoRepository, *memoryCollection) {
	t.Helper()
	collection := newMemoryCollection("posts")
	repo, err := NewRepository(collection, schema, RepositoryOptions{})
	require.NoError(t, err)
	<-repo.IndexesReady()
	return repo, collection
}

func newMockRepository(t *testing.T, schema *Schema) (*MongoRepository, *MockCollection) {
	t.Helper()
	collection := &MockCollection{}
	repo, err := NewRepository(collection, schema, RepositoryOptions{SkipIndexes: true})
	require.NoError(t, err)
	return repo, collection
}

func insertAll(t *testing.T, repo *MongoRepository, docs ...bson.M) {
	t.Helper()
	for _, doc := range docs {
		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(context.Background(), doc, cb)
		})
		require.NoError(t, err)
	}
}

func names(docs []bson.M) []string {
	result := make([]string, 0, len(docs))
	for _, doc := range docs {
		name, _ := doc["name"].(string)
		result = append(result, name)
	}
	return result
}

func TestNewRepository(t *testing.T) {
	t.Run("nil collection", func(t *testing.T) {
		repo, err := NewRepository(nil, postSchema(), RepositoryOptions{})
		assert.Nil(t, repo)
		assert.ErrorIs(t, err, ErrNilCollection)
	})

	t.Run("creates declared indexes", func(t *testing.T) {
		extra := NewMongoSimpleIndex("name", true)
		collection := newMemoryCollection("posts")
		repo, err := NewRepository(collection, postSchema(), RepositoryOptions{Indexes: []MongoIndexDefinition{extra}})
		require.NoError(t, err)
		<-repo.IndexesReady()

		require.Len(t, collection.indexes, 2)
		assert.Equal(t, "authorId_1", collection.indexes[0].Name)
		assert.Equal(t, "name_1", collection.indexes[1].Name)
		assert.True(t, collection.indexes[1].Unique)
	})

	t.Run("index failures are not surfaced", func(t *testing.T) {
		collection := newMemoryCollection("posts")
		collection.indexErr = errors.New("index build failed")
		repo, err := NewRepository(collection, postSchema(), RepositoryOptions{})
		require.NoError(t, err)
		<-repo.IndexesReady()

		insertAll(t, repo, bson.M{"name": "a"})
		count, err := Await(func(cb Callback[int64]) error {
			return repo.Count(context.Background(), cb)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("skip indexes", func(t *testing.T) {
		collection := newMemoryCollection("posts")
		repo, err := NewRepository(collection, postSchema(), RepositoryOptions{SkipIndexes: true})
		require.NoError(t, err)
		<-repo.IndexesReady()
		assert.Empty(t, collection.indexes)
	})

	t.Run("without schema", func(t *testing.T) {
		repo, _ := newMemoryRepository(t, nil)
		assert.Equal(t, DefaultKeyField, repo.KeyField())
		assert.Equal(t, SortSpec{{Field: "_id", Direction: Ascending}}, repo.DefaultSort())
		assert.False(t, repo.IsIdField("_id"))
	})
}

func TestMongoRepositoryAccessors(t *testing.T) {
	repo, collection := newMemoryRepository(t, postSchema())

	assert.Equal(t, "_id", repo.KeyField())
	assert.Equal(t, SortSpec{{Field: "name", Direction: Ascending}}, repo.DefaultSort())
	assert.True(t, repo.IsIdField("_id"))
	assert.True(t, repo.IsIdField("authorId"))
	assert.False(t, repo.IsIdField("name"))
	assert.Same(t, collection, repo.GetCollection())

	schema := repo.GetSchema()
	require.NotNil(t, schema)
	assert.NotSame(t, schema, repo.GetSchema())
	assert.Len(t, schema.Properties(), 3)

	oid := repo.CreateNewId()
	assert.False(t, oid.IsZero())

	hex, err := repo.ConvertId(oid)
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), hex)

	native, err := repo.ConvertId(oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid, native)
}

func TestMongoRepositoryFindDefaultSort(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	insertAll(t, repo, bson.M{"name": "b"}, bson.M{"name": "a"})

	docs, err := Await(func(cb Callback[[]bson.M]) error {
		return repo.Find(context.Background(), cb)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(docs))
}

func TestMongoRepositoryFind(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	insertAll(t, repo,
		bson.M{"name": "c", "views": 3},
		bson.M{"name": "a", "views": 1},
		bson.M{"name": "b", "views": 2},
	)

	tests := []struct {
		name     string
		args     []any
		expected []string
	}{
		{
			name:     "query only",
			args:     []any{bson.M{"name": "b"}},
			expected: []string{"b"},
		},
		{
			name:     "lone options",
			args:     []any{bson.M{"limit": 2}},
			expected: []string{"a", "b"},
		},
		{
			name:     "lone options struct",
			args:     []any{Options{Skip: 1}},
			expected: []string{"b", "c"},
		},
		{
			name:     "query and options",
			args:     []any{bson.M{"name": bson.M{"$ne": "a"}}, bson.M{"sort": []string{"views"}}},
			expected: []string{"b", "c"},
		},
		{
			name:     "descending map sort",
			args:     []any{bson.M{}, bson.M{"sort": bson.M{"views": -1}}},
			expected: []string{"c", "b", "a"},
		},
		{
			name:     "ordered pairs sort",
			args:     []any{nil, Options{Sort: bson.D{{Key: "views", Value: -1}}, Limit: 1}},
			expected: []string{"c"},
		},
		{
			name:     "no matches",
			args:     []any{bson.M{"name": "z"}},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := Await(func(cb Callback[[]bson.M]) error {
				return repo.Find(context.Background(), append(tt.args, cb)...)
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(docs))
		})
	}
}

func TestMongoRepositoryFindArguments(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	ctx := context.Background()
	noop := Callback[[]bson.M](func(error, []bson.M) {})

	t.Run("no arguments fail synchronously", func(t *testing.T) {
		err := repo.Find(ctx)
		require.Error(t, err)
		assert.True(t, IsArityError(err))
	})

	t.Run("too many arguments fail synchronously", func(t *testing.T) {
		err := repo.Find(ctx, bson.M{}, bson.M{}, bson.M{}, noop)
		assert.True(t, IsArityError(err))
	})

	t.Run("missing callback fails synchronously", func(t *testing.T) {
		err := repo.Find(ctx, bson.M{})
		require.Error(t, err)
		assert.True(t, IsTypeError(err, ArgumentTypeError))
		assert.EqualError(t, err, `Param "callback" is of type object! Type function expected`)
	})

	t.Run("options of the wrong type fail synchronously", func(t *testing.T) {
		err := repo.Find(ctx, bson.M{}, "limit", noop)
		require.Error(t, err)
		assert.EqualError(t, err, `Param "options" is of type string! Type object expected`)
	})

	t.Run("invalid sort direction fails synchronously", func(t *testing.T) {
		err := repo.Find(ctx, bson.M{}, bson.M{"sort": bson.M{"name": 2}}, noop)
		require.Error(t, err)
		assert.True(t, IsTypeError(err, ArgumentTypeError))
	})

	t.Run("negative limit fails synchronously", func(t *testing.T) {
		err := repo.Find(ctx, bson.M{}, bson.M{"limit": -1}, noop)
		assert.True(t, IsTypeError(err, ArgumentTypeError))
	})

	t.Run("malformed query is reported through the callback", func(t *testing.T) {
		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Find(ctx, 123, cb)
		})

		require.Error(t, err)
		assert.Nil(t, docs)
		assert.True(t, IsTypeError(err, ValueTypeError))
		assert.EqualError(t, err, `Param "query" is of type number! Type object expected`)
	})

	t.Run("malformed identifier is reported through the callback", func(t *testing.T) {
		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Find(ctx, bson.M{"_id": "not-an-id"}, cb)
		})

		require.Error(t, err)
		assert.EqualError(t, err, `Param "_id" is of type string! Type identifier expected`)
	})

	t.Run("plain function callback", func(t *testing.T) {
		done := make(chan int, 1)
		err := repo.Find(ctx, func(err error, docs []bson.M) {
			done <- len(docs)
		})
		require.NoError(t, err)
		assert.Equal(t, 0, <-done)
	})
}

func TestMongoRepositoryFindConvertsIdentifiers(t *testing.T) {
	first, second := mustObjectId(t, firstHexId), mustObjectId(t, secondHexId)

	tests := []struct {
		name     string
		query    bson.M
		expected bson.M
	}{
		{
			name:     "string identifiers in $in",
			query:    bson.M{"_id": bson.M{"$in": []string{firstHexId, secondHexId}}},
			expected: bson.M{"_id": bson.M{"$in": bson.A{first, second}}},
		},
		{
			name:     "native identifiers in $in",
			query:    bson.M{"_id": bson.M{"$in": bson.A{first, second}}},
			expected: bson.M{"_id": bson.M{"$in": bson.A{first, second}}},
		},
		{
			name:     "plain identifier field",
			query:    bson.M{"authorId": firstHexId, "name": secondHexId},
			expected: bson.M{"authorId": first, "name": secondHexId},
		},
		{
			name:     "logical clauses",
			query:    bson.M{"$or": bson.A{bson.M{"_id": firstHexId}, bson.M{"name": "a"}}},
			expected: bson.M{"$or": bson.A{bson.M{"_id": first}, bson.M{"name": "a"}}},
		},
		{
			name:     "non string elements are left alone",
			query:    bson.M{"_id": bson.M{"$in": bson.A{42, firstHexId}}},
			expected: bson.M{"_id": bson.M{"$in": bson.A{42, first}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, collection := newMockRepository(t, postSchema())
			collection.On("Find", mock.Anything, tt.expected, mock.Anything).Return([]bson.M{}, nil).Once()

			_, err := Await(func(cb Callback[[]bson.M]) error {
				return repo.Find(context.Background(), tt.query, cb)
			})

			require.NoError(t, err)
			collection.AssertExpectations(t)
		})
	}

	t.Run("caller query is not modified", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		collection.On("Find", mock.Anything, mock.Anything, mock.Anything).Return([]bson.M{}, nil)

		query := bson.M{"_id": firstHexId, "authorId": bson.M{"$in": []string{secondHexId}}}
		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Find(context.Background(), query, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, firstHexId, query["_id"])
		assert.Equal(t, []string{secondHexId}, query["authorId"].(bson.M)["$in"])
	})
}

func TestMongoRepositoryFindOptionsPassedToStore(t *testing.T) {
	repo, collection := newMockRepository(t, postSchema())
	expected := FindOptions{
		Projection: bson.D{{Key: "name", Value: 1}},
		Sort:       bson.D{{Key: "name", Value: -1}, {Key: "views", Value: 1}},
		Skip:       5,
		Limit:      10,
	}
	collection.On("Find", mock.Anything, bson.M{}, expected).Return([]bson.M{{"name": "a"}}, nil).Once()

	docs, err := Await(func(cb Callback[[]bson.M]) error {
		return repo.Find(context.Background(), bson.M{}, bson.M{
			"fields": []string{"name"},
			"sort":   bson.D{{Key: "name", Value: -1}, {Key: "views", Value: 1}},
			"skip":   5,
			"limit":  10,
		}, cb)
	})

	require.NoError(t, err)
	assert.Len(t, docs, 1)
	collection.AssertExpectations(t)
}

func TestMongoRepositoryFindOne(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	insertAll(t, repo, bson.M{"name": "b"}, bson.M{"name": "a"})

	doc, err := Await(func(cb Callback[bson.M]) error {
		return repo.FindOne(context.Background(), cb)
	})
	require.NoError(t, err)
	assert.Equal(t, "a", doc["name"])

	missing, err := Await(func(cb Callback[bson.M]) error {
		return repo.FindOne(context.Background(), bson.M{"name": "z"}, cb)
	})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMongoRepositoryFindOneById(t *testing.T) {
	oid := mustObjectId(t, firstHexId)

	tests := []struct {
		name          string
		schema        *Schema
		id            any
		expectedQuery bson.M
		expectedErr   string
	}{
		{
			name:          "hex string",
			schema:        postSchema(),
			id:            firstHexId,
			expectedQuery: bson.M{"_id": oid},
		},
		{
			name:          "native identifier",
			schema:        postSchema(),
			id:            oid,
			expectedQuery: bson.M{"_id": oid},
		},
		{
			name:          "pointer to hex string",
			schema:        postSchema(),
			id:            func() *string { id := firstHexId; return &id }(),
			expectedQuery: bson.M{"_id": oid},
		},
		{
			name:          "pointer on undeclared default key",
			schema:        nil,
			id:            func() *string { id := firstHexId; return &id }(),
			expectedQuery: bson.M{"_id": oid},
		},
		{
			name:        "nil string pointer",
			schema:      postSchema(),
			id:          (*string)(nil),
			expectedErr: `Param "id" is of type null! Type string or object expected`,
		},
		{
			name:        "null identifier",
			schema:      postSchema(),
			id:          nil,
			expectedErr: `Param "id" is of type null! Type string or object expected`,
		},
		{
			name:        "number identifier",
			schema:      postSchema(),
			id:          5,
			expectedErr: `Param "id" is of type number! Type string or object expected`,
		},
		{
			name:        "malformed hex",
			schema:      postSchema(),
			id:          "xyz",
			expectedErr: `Param "_id" is of type string! Type identifier expected`,
		},
		{
			name:          "undeclared default key with hex",
			schema:        nil,
			id:            firstHexId,
			expectedQuery: bson.M{"_id": oid},
		},
		{
			name:          "undeclared default key with custom value",
			schema:        nil,
			id:            "custom-key",
			expectedQuery: bson.M{"_id": "custom-key"},
		},
		{
			name: "custom key field",
			schema: Object(
				Prop("slug", Leaf(PropertySpec{Type: "string", Key: true})),
			),
			id:            "hello-world",
			expectedQuery: bson.M{"slug": "hello-world"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, collection := newMockRepository(t, tt.schema)
			if tt.expectedQuery != nil {
				collection.On("FindOne", mock.Anything, tt.expectedQuery, mock.Anything).Return(bson.M{"name": "found"}, nil).Once()
			}

			doc, err := Await(func(cb Callback[bson.M]) error {
				return repo.FindOneById(context.Background(), tt.id, cb)
			})

			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.True(t, IsTypeError(err, ValueTypeError))
				assert.EqualError(t, err, tt.expectedErr)
				assert.Nil(t, doc)
				collection.AssertNotCalled(t, "FindOne", mock.Anything, mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "found", doc["name"])
			collection.AssertExpectations(t)
		})
	}

	t.Run("arity", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())
		err := repo.FindOneById(context.Background(), Callback[bson.M](func(error, bson.M) {}))
		assert.True(t, IsArityError(err))
	})
}

func TestMongoRepositoryIdQuery(t *testing.T) {
	oid := mustObjectId(t, firstHexId)

	tests := []struct {
		name     string
		schema   *Schema
		id       any
		expected bson.M
		err      string
	}{
		{name: "declared identifier key", schema: postSchema(), id: firstHexId, expected: bson.M{"_id": oid}},
		{name: "undeclared key with hex", schema: Object(Prop("name", Leaf(PropertySpec{Type: "string"}))), id: firstHexId, expected: bson.M{"_id": oid}},
		{name: "undeclared key with custom value", schema: nil, id: "custom-key", expected: bson.M{"_id": "custom-key"}},
		{name: "custom key field", schema: Object(Prop("slug", Leaf(PropertySpec{Type: "string", Key: true}))), id: "hello", expected: bson.M{"slug": "hello"}},
		{name: "number", schema: postSchema(), id: 7, err: `Param "id" is of type number! Type string or object expected`},
		{name: "malformed hex", schema: postSchema(), id: "xyz", err: `Param "_id" is of type string! Type identifier expected`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newMockRepository(t, tt.schema)

			query, err := repo.IdQuery(tt.id)
			if tt.err != "" {
				assert.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, query)
		})
	}
}

func TestMongoRepositoryUpdateAndRemoveById(t *testing.T) {
	repo, _ := newMemoryRepository(t, Object(Prop("name", Leaf(PropertySpec{Type: "string"}))))
	ctx := context.Background()

	inserted, err := Await(func(cb Callback[[]bson.M]) error {
		return repo.Insert(ctx, bson.M{"name": "a"}, cb)
	})
	require.NoError(t, err)
	hexId := inserted[0]["_id"].(bson.ObjectID).Hex()

	query, err := repo.IdQuery(hexId)
	require.NoError(t, err)

	modified, err := Await(func(cb Callback[int64]) error {
		return repo.Update(ctx, query, bson.M{"name": "b"}, cb)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	removed, err := Await(func(cb Callback[int64]) error {
		return repo.Remove(ctx, query, true, cb)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMongoRepositoryInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("single document", func(t *testing.T) {
		repo, collection := newMemoryRepository(t, postSchema())

		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, bson.M{"name": "a"}, cb)
		})

		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.IsType(t, bson.ObjectID{}, docs[0]["_id"])
		assert.Len(t, collection.docs, 1)
	})

	t.Run("list of documents", func(t *testing.T) {
		repo, collection := newMemoryRepository(t, postSchema())

		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, []bson.M{{"name": "a"}, {"name": "b"}}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names(docs))
		assert.Len(t, collection.docs, 2)
	})

	t.Run("struct document", func(t *testing.T) {
		type post struct {
			Name string `bson:"name"`
		}
		repo, _ := newMemoryRepository(t, postSchema())

		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, &post{Name: "typed"}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"typed"}, names(docs))
	})

	t.Run("invalid documents", func(t *testing.T) {
		repo, _ := newMemoryRepository(t, postSchema())

		for _, doc := range []any{"abc", 12, []bson.M{}, nil} {
			docs, err := Await(func(cb Callback[[]bson.M]) error {
				return repo.Insert(ctx, doc, cb)
			})
			require.Error(t, err)
			assert.Nil(t, docs)
			assert.True(t, IsTypeError(err, ValueTypeError))
		}

		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, "abc", cb)
		})
		assert.EqualError(t, err, `Param "doc" is of type string! Type object or array expected`)
	})

	t.Run("default write concern and store errors", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		storeErr := errors.New("E11000 duplicate key error")
		collection.On("Insert", mock.Anything, []bson.M{{"name": "a"}}, WriteOptions{WriteConcern: writeconcern.W1()}).Return(nil, storeErr).Once()

		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, bson.M{"name": "a"}, cb)
		})

		assert.Same(t, storeErr, err)
		collection.AssertExpectations(t)
	})

	t.Run("explicit write concern", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		majority := writeconcern.Majority()
		collection.On("Insert", mock.Anything, mock.Anything, WriteOptions{WriteConcern: majority}).Return([]any{"x"}, nil).Once()

		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Insert(ctx, bson.M{"name": "a"}, Options{WriteConcern: majority}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, "x", docs[0]["_id"])
		collection.AssertExpectations(t)
	})
}

func TestMongoRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	oid := mustObjectId(t, firstHexId)

	t.Run("plain delta strips the key field", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		collection.On("Update", mock.Anything,
			bson.M{"_id": oid},
			bson.M{"$set": bson.M{"name": "renamed"}},
			WriteOptions{WriteConcern: writeconcern.W1()},
		).Return(int64(1), nil).Once()

		update := bson.M{"_id": secondHexId, "name": "renamed"}
		modified, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, bson.M{"_id": firstHexId}, update, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1), modified)
		assert.Contains(t, update, "_id")
		collection.AssertExpectations(t)
	})

	t.Run("update command", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		cmd := NewUpdateCommand()
		require.NoError(t, cmd.SetValue("name", "renamed"))
		require.NoError(t, cmd.SetValue("_id", secondHexId))
		require.NoError(t, cmd.IncrementValue("views"))

		collection.On("Update", mock.Anything, mock.Anything,
			bson.M{"$set": bson.M{"name": "renamed"}, "$inc": bson.M{"views": 1}},
			WriteOptions{WriteConcern: writeconcern.W1(), Multi: true},
		).Return(int64(3), nil).Once()

		modified, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, bson.M{}, cmd, Options{Multi: true}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, int64(3), modified)
		collection.AssertExpectations(t)
	})

	t.Run("mixed update", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		_, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, bson.M{}, bson.M{"name": "x", "$inc": bson.M{"views": 1}}, cb)
		})

		assert.ErrorIs(t, err, ErrMixedUpdate)
	})

	t.Run("update with only the key field", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		_, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, bson.M{}, bson.M{"_id": firstHexId}, cb)
		})

		assert.ErrorIs(t, err, ErrEmptyUpdate)
	})

	t.Run("null query", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		_, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, nil, bson.M{"name": "x"}, cb)
		})

		assert.True(t, IsTypeError(err, ValueTypeError))
	})

	t.Run("applied to stored documents", func(t *testing.T) {
		repo, _ := newMemoryRepository(t, postSchema())
		insertAll(t, repo, bson.M{"name": "a", "views": 1}, bson.M{"name": "b", "views": 1})

		modified, err := Await(func(cb Callback[int64]) error {
			return repo.Update(ctx, bson.M{}, bson.M{"$inc": bson.M{"views": 2}}, bson.M{"multi": true}, cb)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), modified)

		doc, err := Await(func(cb Callback[bson.M]) error {
			return repo.FindOne(ctx, bson.M{"name": "b"}, cb)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), doc["views"])
	})
}

func TestMongoRepositoryRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("just one", func(t *testing.T) {
		repo, collection := newMemoryRepository(t, postSchema())
		insertAll(t, repo, bson.M{"name": "a"}, bson.M{"name": "a"}, bson.M{"name": "b"})

		removed, err := Await(func(cb Callback[int64]) error {
			return repo.Remove(ctx, bson.M{"name": "a"}, true, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Len(t, collection.docs, 2)
	})

	t.Run("all matching", func(t *testing.T) {
		repo, collection := newMemoryRepository(t, postSchema())
		insertAll(t, repo, bson.M{"name": "a"}, bson.M{"name": "a"}, bson.M{"name": "b"})

		removed, err := Await(func(cb Callback[int64]) error {
			return repo.Remove(ctx, bson.M{"name": "a"}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		assert.Len(t, collection.docs, 1)
	})

	t.Run("converts identifiers", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		oid := mustObjectId(t, firstHexId)
		collection.On("Remove", mock.Anything, bson.M{"_id": oid}, WriteOptions{WriteConcern: writeconcern.W1(), JustOne: true}).Return(int64(1), nil).Once()

		removed, err := Await(func(cb Callback[int64]) error {
			return repo.Remove(ctx, bson.M{"_id": firstHexId}, Options{JustOne: true}, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		collection.AssertExpectations(t)
	})

	t.Run("invalid query", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		for _, query := range []any{nil, "name", 5} {
			_, err := Await(func(cb Callback[int64]) error {
				return repo.Remove(ctx, query, cb)
			})
			assert.True(t, IsTypeError(err, ValueTypeError))
		}
	})
}

func TestMongoRepositoryCount(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	insertAll(t, repo, bson.M{"name": "a"}, bson.M{"name": "b"})
	ctx := context.Background()

	total, err := Await(func(cb Callback[int64]) error {
		return repo.Count(ctx, cb)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	filtered, err := Await(func(cb Callback[int64]) error {
		return repo.Count(ctx, bson.M{"name": "a"}, cb)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered)

	_, err = Await(func(cb Callback[int64]) error {
		return repo.Count(ctx, []int{1}, cb)
	})
	assert.True(t, IsTypeError(err, ValueTypeError))

	assert.True(t, IsArityError(repo.Count(ctx)))
}

func TestMongoRepositoryAggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("pipeline passes through unmodified", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())
		pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"_id": firstHexId}}}}
		aggregateOptions := options.Aggregate().SetAllowDiskUse(true)
		collection.On("Aggregate", mock.Anything, pipeline, aggregateOptions).Return([]bson.M{{"total": 1}}, nil).Once()

		docs, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Aggregate(ctx, pipeline, aggregateOptions, cb)
		})

		require.NoError(t, err)
		assert.Equal(t, []bson.M{{"total": 1}}, docs)
		collection.AssertExpectations(t)
	})

	t.Run("pipeline must be an array", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Aggregate(ctx, bson.M{"$match": bson.M{}}, cb)
		})

		assert.EqualError(t, err, `Param "pipeline" is of type object! Type array expected`)
	})

	t.Run("identifier is not a pipeline", func(t *testing.T) {
		repo, collection := newMockRepository(t, postSchema())

		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Aggregate(ctx, bson.NewObjectID(), cb)
		})

		assert.True(t, IsTypeError(err, ValueTypeError))
		assert.EqualError(t, err, `Param "pipeline" is of type object! Type array expected`)
		collection.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("options must be aggregate options", func(t *testing.T) {
		repo, _ := newMockRepository(t, postSchema())

		err := repo.Aggregate(ctx, bson.A{}, bson.M{}, Callback[[]bson.M](func(error, []bson.M) {}))

		assert.True(t, IsTypeError(err, ArgumentTypeError))
	})
}

func TestMongoRepositoryConcurrentCalls(t *testing.T) {
	repo, _ := newMemoryRepository(t, postSchema())
	ctx := context.Background()

	const calls = 20
	results := make(chan error, calls)
	for i := 0; i < calls; i++ {
		err := repo.Insert(ctx, bson.M{"name": "concurrent"}, Callback[[]bson.M](func(err error, _ []bson.M) {
			results <- err
		}))
		require.NoError(t, err)
	}

	for i := 0; i < calls; i++ {
		assert.NoError(t, <-results)
	}

	count, err := Await(func(cb Callback[int64]) error {
		return repo.Count(ctx, bson.M{"name": "concurrent"}, cb)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(calls), count)
}

func TestAwait(t *testing.T) {
	t.Run("synchronous errors", func(t *testing.T) {
		syncErr := errors.New("sync")
		result, err := Await(func(cb Callback[int]) error {
			return syncErr
		})
		assert.Equal(t, 0, result)
		assert.Same(t, syncErr, err)
	})

	t.Run("callback result", func(t *testing.T) {
		result, err := Await(func(cb Callback[string]) error {
			go cb(nil, "done")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "done", result)
	})
}

func BenchmarkMongoRepositoryFind(b *testing.B) {
	collection := newMemoryCollection("posts")
	repo, err := NewRepository(collection, postSchema(), RepositoryOptions{SkipIndexes: true})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_, _ = collection.Insert(ctx, []bson.M{{"name": "post"}}, WriteOptions{})
	}

	query := bson.M{"_id": bson.M{"$in": []string{firstHexId, secondHexId}}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Await(func(cb Callback[[]bson.M]) error {
			return repo.Find(ctx, query, cb)
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
