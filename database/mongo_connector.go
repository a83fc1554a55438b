package database

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
	"github.com/labstack/gommon/log"
	"github.com/xompass/vsaas-docrepo/helpers"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

type MongoConnectorOpts struct {
	options.ClientOptions
	Name     string
	Database string
	// WriteConcern is the default acknowledgement level of the repositories
	// built on this connector. Nil means w:1.
	WriteConcern *writeconcern.WriteConcern
	Logger       *log.Logger
}

type MongoConnector struct {
	ctx          context.Context
	client       *mongo.Client
	options      *MongoConnectorOpts
	indexManager *MongoIndexManager
}

/**
 * NewMongoConnector creates a new MongoDB connector.
 * It initializes the MongoDB client with the provided options and checks the connection.
 */
func NewMongoConnector(opts *MongoConnectorOpts) (*MongoConnector, error) {
	if opts == nil {
		return nil, errors.New("mongo connector options cannot be nil")
	}

	connector := &MongoConnector{
		ctx:     context.Background(),
		options: opts,
	}

	if err := connector.connect(); err != nil {
		return nil, err
	}

	if err := connector.Ping(); err != nil {
		return nil, err
	}

	return connector, nil
}

// NewDefaultMongoConnector reads MONGO_URI, MONGO_DATABASE and
// MONGO_WRITE_CONCERN from the environment
func NewDefaultMongoConnector() (*MongoConnector, error) {
	uri := helpers.GetEnv("MONGO_URI", "mongodb://localhost:27017")

	clientOptions := options.Client().ApplyURI(uri)

	conn, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = "test"
	}

	writeConcern, err := ParseWriteConcern(helpers.GetEnv("MONGO_WRITE_CONCERN", ""))
	if err != nil {
		return nil, err
	}

	opts := MongoConnectorOpts{
		ClientOptions: *clientOptions,
		Name:          "mongodb",
		Database:      helpers.GetEnv("MONGO_DATABASE", dbName),
		WriteConcern:  writeConcern,
	}

	return NewMongoConnector(&opts)
}

// ParseWriteConcern accepts "majority" or a number of acknowledging nodes.
// An empty value returns nil.
func ParseWriteConcern(value string) (*writeconcern.WriteConcern, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if strings.EqualFold(value, "majority") {
		return writeconcern.Majority(), nil
	}

	w, err := strconv.Atoi(value)
	if err != nil || w < 0 {
		return nil, errors.Errorf("invalid write concern %q", value)
	}

	if w == 0 {
		return writeconcern.Unacknowledged(), nil
	}
	return &writeconcern.WriteConcern{W: w}, nil
}

func (receiver *MongoConnector) connect() error {
	opts := receiver.options.ClientOptions

	client, err := mongo.Connect(&opts)
	if err != nil {
		return err
	}

	receiver.client = client
	receiver.indexManager = NewMongoIndexManager(receiver.options.Logger)
	return nil
}

/**
 * Ping checks the connection to the MongoDB server.
 */
func (receiver *MongoConnector) Ping() error {
	if receiver.client == nil {
		return errors.New("mongo client not initialized")
	}
	return receiver.client.Ping(receiver.ctx, nil)
}

/**
 * Disconnect closes the connection to the MongoDB server.
 */
func (receiver *MongoConnector) Disconnect() error {
	if receiver.client == nil {
		return errors.New("mongo client not initialized")
	}
	return receiver.client.Disconnect(receiver.ctx)
}

func (receiver *MongoConnector) GetDriver() any {
	return receiver.client
}

func (receiver *MongoConnector) GetName() string {
	return receiver.options.Name
}

func (receiver *MongoConnector) GetDatabaseName() string {
	return receiver.options.Database
}

func (receiver *MongoConnector) GetOptions() MongoConnectorOpts {
	return *receiver.options
}

func (receiver *MongoConnector) GetIndexManager() *MongoIndexManager {
	return receiver.indexManager
}

// WriteConcern returns the default write concern configured for the connector
func (receiver *MongoConnector) WriteConcern() *writeconcern.WriteConcern {
	return receiver.options.WriteConcern
}

func (receiver *MongoConnector) Database() *mongo.Database {
	return receiver.client.Database(receiver.options.Database)
}

// Collection returns a repository-ready handle over a collection of the
// connector database
func (receiver *MongoConnector) Collection(name string) *MongoCollection {
	return NewMongoCollection(receiver.Database().Collection(name), receiver.indexManager)
}

// GridFSBucket returns the named bucket, or the default "fs" bucket when
// name is empty
func (receiver *MongoConnector) GridFSBucket(name string) *mongo.GridFSBucket {
	if name == "" {
		return receiver.Database().GridFSBucket()
	}
	return receiver.Database().GridFSBucket(options.GridFSBucket().SetName(name))
}
