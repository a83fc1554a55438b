package database

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// memoryCollection is a small in-memory Collection supporting equality,
// $in and $ne filters, sorting, skip, limit, inclusion projections and the
// $set, $unset and $inc modifiers
type memoryCollection struct {
	mu       sync.Mutex
	name     string
	docs     []bson.M
	indexes  []MongoIndexDefinition
	indexErr error
}

func newMemoryCollection(name string) *memoryCollection {
	return &memoryCollection{name: name}
}

func (c *memoryCollection) Name() string {
	return c.name
}

func (c *memoryCollection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []bson.M
	for _, doc := range c.docs {
		if memoryMatches(doc, filter) {
			matched = append(matched, doc)
		}
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, elem := range opts.Sort {
				direction, _ := toInt64(elem.Value)
				cmp := memoryCompare(matched[i][elem.Key], matched[j][elem.Key])
				if cmp != 0 {
					return cmp*int(direction) < 0
				}
			}
			return false
		})
	}

	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int(opts.Limit) < len(matched) {
		matched = matched[:opts.Limit]
	}

	result := make([]bson.M, 0, len(matched))
	for _, doc := range matched {
		result = append(result, memoryProject(doc, opts.Projection))
	}
	return result, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error) {
	opts.Limit = 1
	docs, err := c.Find(ctx, filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *memoryCollection) Insert(ctx context.Context, docs []bson.M, opts WriteOptions) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		stored := make(bson.M, len(doc)+1)
		for key, value := range doc {
			stored[key] = value
		}
		if _, ok := stored["_id"]; !ok {
			stored["_id"] = bson.NewObjectID()
		}
		c.docs = append(c.docs, stored)
		ids = append(ids, stored["_id"])
	}
	return ids, nil
}

func (c *memoryCollection) Update(ctx context.Context, filter bson.M, update bson.M, opts WriteOptions) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var modified int64
	for _, doc := range c.docs {
		if !memoryMatches(doc, filter) {
			continue
		}

		if set, ok := update["$set"].(bson.M); ok {
			for key, value := range set {
				doc[key] = value
			}
		}
		if unset, ok := update["$unset"].(bson.M); ok {
			for key := range unset {
				delete(doc, key)
			}
		}
		if inc, ok := update["$inc"].(bson.M); ok {
			for key, value := range inc {
				current, _ := toInt64(doc[key])
				delta, _ := toInt64(value)
				doc[key] = current + delta
			}
		}

		modified++
		if !opts.Multi {
			break
		}
	}
	return modified, nil
}

func (c *memoryCollection) Remove(ctx context.Context, filter bson.M, opts WriteOptions) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	kept := c.docs[:0]
	for _, doc := range c.docs {
		if memoryMatches(doc, filter) && (!opts.JustOne || removed == 0) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return removed, nil
}

func (c *memoryCollection) Count(ctx context.Context, filter bson.M) (int64, error) {
	docs, err := c.Find(ctx, filter, FindOptions{})
	return int64(len(docs)), err
}

func (c *memoryCollection) Aggregate(ctx context.Context, pipeline any, opts *options.AggregateOptionsBuilder) ([]bson.M, error) {
	return c.Find(ctx, bson.M{}, FindOptions{})
}

func (c *memoryCollection) EnsureIndexes(ctx context.Context, indexes []MongoIndexDefinition) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexErr != nil {
		return nil, c.indexErr
	}

	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		c.indexes = append(c.indexes, idx)
		names = append(names, idx.Name)
	}
	return names, nil
}

func memoryMatches(doc bson.M, filter bson.M) bool {
	for field, condition := range filter {
		value := doc[field]

		operators, isOperator := condition.(bson.M)
		if !isOperator {
			if !reflect.DeepEqual(value, condition) {
				return false
			}
			continue
		}

		for operator, operand := range operators {
			switch operator {
			case "$in":
				elements, _ := toAnySlice(operand)
				found := false
				for _, element := range elements {
					if reflect.DeepEqual(value, element) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			case "$ne":
				if reflect.DeepEqual(value, operand) {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

func memoryCompare(a any, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case bson.ObjectID:
		bv, _ := b.(bson.ObjectID)
		return strings.Compare(av.Hex(), bv.Hex())
	}

	an, aok := toInt64(a)
	bn, bok := toInt64(b)
	switch {
	case !aok || !bok:
		return 0
	case an < bn:
		return -1
	case an > bn:
		return 1
	}
	return 0
}

func memoryProject(doc bson.M, projection bson.D) bson.M {
	result := make(bson.M, len(doc))
	if len(projection) == 0 {
		for key, value := range doc {
			result[key] = value
		}
		return result
	}

	result["_id"] = doc["_id"]
	for _, elem := range projection {
		if flag, _ := toInt64(elem.Value); flag == 1 {
			if value, ok := doc[elem.Key]; ok {
				result[elem.Key] = value
			}
		}
	}
	return result
}

// MockCollection records the exact payloads handed to the store
type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Name() string {
	return "mock"
}

func (m *MockCollection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	args := m.Called(ctx, filter, opts)
	docs, _ := args.Get(0).([]bson.M)
	return docs, args.Error(1)
}

func (m *MockCollection) FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error) {
	args := m.Called(ctx, filter, opts)
	doc, _ := args.Get(0).(bson.M)
	return doc, args.Error(1)
}

func (m *MockCollection) Insert(ctx context.Context, docs []bson.M, opts WriteOptions) ([]any, error) {
	args := m.Called(ctx, docs, opts)
	ids, _ := args.Get(0).([]any)
	return ids, args.Error(1)
}

func (m *MockCollection) Update(ctx context.Context, filter bson.M, update bson.M, opts WriteOptions) (int64, error) {
	args := m.Called(ctx, filter, update, opts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) Remove(ctx context.Context, filter bson.M, opts WriteOptions) (int64, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) Count(ctx context.Context, filter bson.M) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) Aggregate(ctx context.Context, pipeline any, opts *options.AggregateOptionsBuilder) ([]bson.M, error) {
	args := m.Called(ctx, pipeline, opts)
	docs, _ := args.Get(0).([]bson.M)
	return docs, args.Error(1)
}

func (m *MockCollection) EnsureIndexes(ctx context.Context, indexes []MongoIndexDefinition) ([]string, error) {
	args := m.Called(ctx, indexes)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}
