package database

import (
	"time"

	"github.com/labstack/gommon/log"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

type RepositoryOptions struct {
	// Logger receives index housekeeping messages. Defaults to a "database" logger.
	Logger *log.Logger
	// WriteConcern is the acknowledgement level merged into every write
	// that does not set its own. Defaults to w:1.
	WriteConcern *writeconcern.WriteConcern
	// Indexes are created along with the ones declared in the schema
	Indexes []MongoIndexDefinition
	// SkipIndexes disables index creation at construction
	SkipIndexes bool
	// IndexTimeout bounds the index creation started at construction
	IndexTimeout time.Duration
}

func (opts RepositoryOptions) withDefaults() RepositoryOptions {
	if opts.Logger == nil {
		opts.Logger = log.New("database")
	}
	if opts.WriteConcern == nil {
		opts.WriteConcern = writeconcern.W1()
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = 30 * time.Second
	}
	return opts
}
