package database

import (
	"sort"
	"sync"

	"github.com/go-errors/errors"
)

// Connector is implemented by every database connector a datasource can hold
type Connector interface {
	Ping() error
	Disconnect() error
	GetName() string
	GetDatabaseName() string
	GetDriver() any
}

type Datasource struct {
	mu           sync.RWMutex
	connectors   map[string]Connector  // Connectors by name. A datasource may talk to several databases.
	repositories map[string]Repository // Repositories by collection name
}

func NewDatasource() *Datasource {
	return &Datasource{
		connectors:   make(map[string]Connector),
		repositories: make(map[string]Repository),
	}
}

func (receiver *Datasource) AddConnector(connector Connector) error {
	if receiver == nil {
		return errors.New("datasource is nil")
	}
	if connector == nil {
		return errors.New("connector cannot be nil")
	}

	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	if receiver.connectors == nil {
		receiver.connectors = make(map[string]Connector)
	}

	if _, exists := receiver.connectors[connector.GetName()]; exists {
		return errors.Errorf("the connector %s is already registered", connector.GetName())
	}

	receiver.connectors[connector.GetName()] = connector
	return nil
}

func (receiver *Datasource) GetConnector(name string) (Connector, error) {
	if receiver == nil {
		return nil, errors.New("datasource is nil")
	}

	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	connector, ok := receiver.connectors[name]
	if !ok {
		return nil, errors.Errorf("the connector %s is not registered", name)
	}

	return connector, nil
}

func (receiver *Datasource) GetMongoConnector(name string) (*MongoConnector, error) {
	connector, err := receiver.GetConnector(name)
	if err != nil {
		return nil, err
	}

	mongoConnector, ok := connector.(*MongoConnector)
	if !ok {
		return nil, errors.Errorf("the connector %s is not a MongoDB connector", name)
	}
	return mongoConnector, nil
}

// RegisterRepository makes a repository reachable by name. A name can only
// be registered once.
func (receiver *Datasource) RegisterRepository(name string, repository Repository) error {
	if receiver == nil || repository == nil {
		return errors.New("datasource or repository cannot be nil")
	}
	if name == "" {
		return errors.New("repository name cannot be empty")
	}

	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	if receiver.repositories == nil {
		receiver.repositories = make(map[string]Repository)
	}

	if _, exists := receiver.repositories[name]; exists {
		return errors.Errorf("a repository is already registered for %s", name)
	}

	receiver.repositories[name] = repository
	return nil
}

func (receiver *Datasource) GetRepository(name string) (Repository, error) {
	if receiver == nil {
		return nil, errors.New("datasource is nil")
	}

	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	repository, ok := receiver.repositories[name]
	if !ok {
		return nil, errors.Errorf("the repository %s is not registered", name)
	}

	return repository, nil
}

// RepositoryNames returns the registered repository names in order
func (receiver *Datasource) RepositoryNames() []string {
	receiver.mu.RLock()
	defer receiver.mu.RUnlock()

	names := make([]string, 0, len(receiver.repositories))
	for name := range receiver.repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destroy disconnects every connector. The first disconnect error is returned.
func (receiver *Datasource) Destroy() error {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	var firstErr error
	for _, connector := range receiver.connectors {
		if connector == nil {
			continue
		}
		if err := connector.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
