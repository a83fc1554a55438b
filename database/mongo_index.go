package database

import "time"

// MongoIndexDefinition represents a MongoDB index and the options this
// package knows how to create
type MongoIndexDefinition struct {
	IndexDefinition

	Sparse             bool           // Only index documents that have the indexed field
	ExpireAfterSeconds *int32         // TTL in seconds
	PartialFilter      map[string]any // Partial filter expression
	Collation          *MongoCollation
	Hidden             bool // Hide index from query planner
}

type MongoCollation struct {
	Locale          string
	CaseLevel       bool
	CaseFirst       string
	Strength        int
	NumericOrdering bool
}

// NewMongoSimpleIndex creates an ascending index on a single field. Schema
// leaves flagged with index or unique produce this kind of index.
func NewMongoSimpleIndex(fieldName string, unique bool) MongoIndexDefinition {
	return MongoIndexDefinition{
		IndexDefinition: IndexDefinition{
			Name:   fieldName + "_1",
			Fields: []IndexField{{Name: fieldName, Order: 1}},
			Unique: unique,
		},
	}
}

// NewMongoCompoundIndex creates an index on several fields
func NewMongoCompoundIndex(name string, fields []IndexField, unique bool) MongoIndexDefinition {
	return MongoIndexDefinition{
		IndexDefinition: IndexDefinition{
			Name:   name,
			Fields: fields,
			Unique: unique,
		},
	}
}

// NewMongoTTLIndex creates a TTL index on a single date field
func NewMongoTTLIndex(fieldName string, expireAfter time.Duration) MongoIndexDefinition {
	return NewMongoSimpleIndex(fieldName, false).WithTTL(expireAfter)
}

func (idx MongoIndexDefinition) WithSparse(sparse bool) MongoIndexDefinition {
	idx.Sparse = sparse
	return idx
}

func (idx MongoIndexDefinition) WithPartialFilter(filter map[string]any) MongoIndexDefinition {
	idx.PartialFilter = filter
	return idx
}

// WithTTL sets the expiration of the index. The indexed field must hold dates.
func (idx MongoIndexDefinition) WithTTL(expireAfter time.Duration) MongoIndexDefinition {
	seconds := int32(expireAfter.Seconds())
	idx.ExpireAfterSeconds = &seconds
	if idx.Name != "" && len(idx.Fields) == 1 && idx.Name == idx.Fields[0].Name+"_1" {
		idx.Name = idx.Fields[0].Name + "_ttl"
	}
	return idx
}

func (idx MongoIndexDefinition) WithCollation(collation *MongoCollation) MongoIndexDefinition {
	idx.Collation = collation
	return idx
}
