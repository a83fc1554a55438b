package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-errors/errors"
	"github.com/labstack/gommon/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoIndexManager creates and compares the indexes of MongoDB collections
type MongoIndexManager struct {
	logger *log.Logger
}

func NewMongoIndexManager(logger *log.Logger) *MongoIndexManager {
	if logger == nil {
		logger = log.New("database")
	}
	return &MongoIndexManager{logger: logger}
}

// EnsureIndexes creates the given indexes. Differences with the indexes
// already present are logged as warnings.
func (m *MongoIndexManager) EnsureIndexes(ctx context.Context, collection *mongo.Collection, indexes []MongoIndexDefinition) ([]string, error) {
	if len(indexes) == 0 {
		return nil, nil
	}

	warnings, err := m.CompareIndexes(ctx, collection, indexes)
	if err != nil {
		m.logger.Warnf("Could not compare indexes for %s: %v", collection.Name(), err)
	} else if len(warnings) > 0 {
		for _, warning := range warnings {
			m.logger.Warnf("Index warning for %s [%s] %s", collection.Name(), warning.Type, warning.Message)
		}
	}

	indexModels := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		indexModels = append(indexModels, m.convertToMongoIndexModel(idx))
	}

	names, err := collection.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes())
	if err != nil {
		return nil, errors.Errorf("failed to create indexes for %s: %v", collection.Name(), err)
	}

	m.logger.Debugf("Ensured %d indexes for %s: %v", len(names), collection.Name(), names)
	return names, nil
}

// ListIndexes returns the names of the indexes of a collection
func (m *MongoIndexManager) ListIndexes(ctx context.Context, collection *mongo.Collection) ([]string, error) {
	existing, err := m.existingIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CompareIndexes compares declared indexes with the existing ones
func (m *MongoIndexManager) CompareIndexes(ctx context.Context, collection *mongo.Collection, declared []MongoIndexDefinition) ([]IndexWarning, error) {
	existingIndexes, err := m.existingIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}
	return compareIndexes(declared, existingIndexes), nil
}

func (m *MongoIndexManager) existingIndexes(ctx context.Context, collection *mongo.Collection) (map[string]bson.M, error) {
	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		return nil, errors.Errorf("failed to list indexes: %v", err)
	}
	defer cursor.Close(ctx)

	existing := make(map[string]bson.M)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			return nil, errors.Errorf("failed to decode index: %v", err)
		}

		if name, ok := index["name"].(string); ok {
			existing[name] = index
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, errors.Errorf("cursor error: %v", err)
	}

	return existing, nil
}

func compareIndexes(declared []MongoIndexDefinition, existingIndexes map[string]bson.M) []IndexWarning {
	var warnings []IndexWarning
	declaredByName := make(map[string]MongoIndexDefinition, len(declared))
	for _, idx := range declared {
		declaredByName[idx.Name] = idx
	}

	for name, dbIndex := range existingIndexes {
		if name == "_id_" {
			continue
		}

		if _, exists := declaredByName[name]; !exists {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningMissingInCode,
				Message: fmt.Sprintf("Index '%s' exists in database but is not declared", name),
				Details: map[string]any{
					"indexName": name,
					"dbIndex":   dbIndex,
				},
			})
		}
	}

	for _, idx := range declared {
		dbIndex, exists := existingIndexes[idx.Name]
		if !exists {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningMissingInDB,
				Message: fmt.Sprintf("Index '%s' is declared but does not exist in database", idx.Name),
				Details: map[string]any{
					"indexName":  idx.Name,
					"definition": idx,
				},
			})
			continue
		}

		if diff := compareIndexDetails(idx, dbIndex); diff != "" {
			warnings = append(warnings, IndexWarning{
				Type:    IndexWarningDifferent,
				Message: fmt.Sprintf("Index '%s' differs: %s", idx.Name, diff),
				Details: map[string]any{
					"indexName":  idx.Name,
					"difference": diff,
					"declared":   idx,
					"existing":   dbIndex,
				},
			})
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Message < warnings[j].Message
	})
	return warnings
}

func (m *MongoIndexManager) convertToMongoIndexModel(idx MongoIndexDefinition) mongo.IndexModel {
	keys := bson.D{}
	for _, field := range idx.Fields {
		keys = append(keys, bson.E{Key: field.Name, Value: field.Order})
	}

	opts := options.Index()
	opts.SetName(idx.Name)

	if idx.Unique {
		opts.SetUnique(true)
	}

	if idx.Sparse {
		opts.SetSparse(true)
	}

	if idx.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*idx.ExpireAfterSeconds)
	}

	if idx.PartialFilter != nil {
		opts.SetPartialFilterExpression(idx.PartialFilter)
	}

	if idx.Hidden {
		opts.SetHidden(true)
	}

	if idx.Collation != nil {
		opts.SetCollation(&options.Collation{
			Locale:          idx.Collation.Locale,
			CaseLevel:       idx.Collation.CaseLevel,
			CaseFirst:       idx.Collation.CaseFirst,
			Strength:        idx.Collation.Strength,
			NumericOrdering: idx.Collation.NumericOrdering,
		})
	}

	return mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	}
}

func compareIndexDetails(declared MongoIndexDefinition, existing bson.M) string {
	var differences []string

	if existingKeys, ok := indexKeys(existing["key"]); ok {
		declaredKeys := make(map[string]int)
		for _, field := range declared.Fields {
			declaredKeys[field.Name] = field.Order
		}

		if len(existingKeys) != len(declaredKeys) {
			differences = append(differences, "different number of fields")
		} else {
			for key, val := range existingKeys {
				order := 0
				if n, ok := toInt64(val); ok {
					order = int(n)
				} else if val == "text" {
					order = 1
				}

				if declaredOrder, exists := declaredKeys[key]; !exists || declaredOrder != order {
					differences = append(differences, fmt.Sprintf("field '%s' order mismatch", key))
				}
			}
		}
	}

	if unique, ok := existing["unique"].(bool); ok && unique != declared.Unique {
		differences = append(differences, "unique constraint differs")
	} else if !ok && declared.Unique {
		differences = append(differences, "unique constraint differs")
	}

	if sparse, ok := existing["sparse"].(bool); ok && sparse != declared.Sparse {
		differences = append(differences, "sparse option differs")
	}

	if expireAfter, ok := toInt64(existing["expireAfterSeconds"]); ok {
		if declared.ExpireAfterSeconds == nil || int64(*declared.ExpireAfterSeconds) != expireAfter {
			differences = append(differences, "TTL differs")
		}
	} else if declared.ExpireAfterSeconds != nil {
		differences = append(differences, "TTL not set in DB")
	}

	if len(differences) == 0 {
		return ""
	}

	sort.Strings(differences)
	return strings.Join(differences, ", ")
}

func indexKeys(value any) (bson.M, bool) {
	switch keys := value.(type) {
	case bson.M:
		return keys, true
	case bson.D:
		return dToM(keys), true
	}
	return nil, false
}
