package database

import (
	"maps"
	"strings"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	SET            = "$set"
	UNSET          = "$unset"
	INC            = "$inc"
	PUSH           = "$push"
	PULL           = "$pull"
	COMMAND_PREFIX = "$"
)

var errEmptyKey = &TypeError{Kind: ArgumentTypeError, Param: "key", Actual: "empty string", Expected: "non-empty string"}

// UpdateCommand accumulates modifier operations
type UpdateCommand struct {
	commands bson.M
}

func NewUpdateCommand() *UpdateCommand {
	return &UpdateCommand{commands: bson.M{}}
}

// Commands returns a copy of the modifier document built so far
func (cmd *UpdateCommand) Commands() bson.M {
	result := make(bson.M, len(cmd.commands))
	for operator, fields := range cmd.commands {
		result[operator] = maps.Clone(fields.(bson.M))
	}
	return result
}

func (cmd *UpdateCommand) operator(name string) bson.M {
	if cmd.commands == nil {
		cmd.commands = bson.M{}
	}
	fields, ok := cmd.commands[name].(bson.M)
	if !ok {
		fields = bson.M{}
		cmd.commands[name] = fields
	}
	return fields
}

func (cmd *UpdateCommand) SetValue(key string, value any) error {
	if key == "" {
		return errEmptyKey
	}
	cmd.operator(SET)[key] = value
	return nil
}

// SetValues sets every field of the given document
func (cmd *UpdateCommand) SetValues(values any) error {
	if values == nil {
		return nil
	}

	doc, ok := toDocument(values)
	if !ok {
		return newArgumentTypeError("values", values, "object")
	}

	set := cmd.operator(SET)
	for key, value := range doc {
		set[key] = value
	}
	return nil
}

func (cmd *UpdateCommand) DeleteKey(key string) error {
	if key == "" {
		return errEmptyKey
	}
	cmd.operator(UNSET)[key] = 1
	return nil
}

// IncrementValue increments a numeric field, by 1 when no value is given
func (cmd *UpdateCommand) IncrementValue(key string, value ...any) error {
	if key == "" {
		return errEmptyKey
	}

	var delta any = 1
	if len(value) > 0 && value[0] != nil {
		delta = value[0]
	}

	if typeName(delta) != "number" {
		return newArgumentTypeError("value", delta, "number")
	}

	cmd.operator(INC)[key] = delta
	return nil
}

func (cmd *UpdateCommand) AddToArray(key string, value any) error {
	if key == "" {
		return errEmptyKey
	}
	cmd.operator(PUSH)[key] = value
	return nil
}

func (cmd *UpdateCommand) RemoveFromArray(key string, value any) error {
	if key == "" {
		return errEmptyKey
	}
	cmd.operator(PULL)[key] = value
	return nil
}

// buildUpdateDocument turns a plain delta into {$set: delta} and keeps a
// modifier document as it is. The key field is stripped from $set when
// present, otherwise from the top level. The input is never modified.
func buildUpdateDocument(update any, keyField string) (bson.M, error) {
	if cmd, ok := update.(*UpdateCommand); ok {
		if cmd == nil {
			return nil, newValueTypeError("update", nil, "object")
		}
		update = cmd.Commands()
	}

	document, ok := toDocument(update)
	if !ok {
		return nil, newValueTypeError("update", update, "object")
	}

	hasFields := false
	hasCommands := false
	for key := range document {
		if strings.HasPrefix(key, COMMAND_PREFIX) {
			hasCommands = true
		} else {
			hasFields = true
		}
	}

	if hasFields && hasCommands {
		return nil, ErrMixedUpdate
	}

	var newUpdate bson.M
	if hasFields {
		delete(document, keyField)
		newUpdate = bson.M{}
		if len(document) > 0 {
			newUpdate[SET] = document
		}
	} else {
		newUpdate = document
		if set, ok := document[SET]; ok {
			bsonSet, err := toSetDocument(set)
			if err != nil {
				return nil, err
			}
			delete(bsonSet, keyField)
			if len(bsonSet) > 0 {
				newUpdate[SET] = bsonSet
			} else {
				delete(newUpdate, SET)
			}
		}
	}

	if len(newUpdate) == 0 {
		return nil, ErrEmptyUpdate
	}

	return newUpdate, nil
}

// toSetDocument copies the $set payload into a bson.M
func toSetDocument(set any) (bson.M, error) {
	switch set := set.(type) {
	case bson.M:
		return maps.Clone(set), nil
	case map[string]any:
		return bson.M(maps.Clone(set)), nil
	case bson.D:
		return dToM(set), nil
	}

	// structs follow their bson tags, as plain deltas do
	bsonSet, err := toBsonMap(set)
	if err != nil {
		return nil, errors.Errorf("invalid $set value: %T", set)
	}
	return bsonSet, nil
}
