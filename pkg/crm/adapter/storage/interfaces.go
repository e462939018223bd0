// Package storage defines the object storage connection used by the outcome exporter
// and resolves named connections from crm.storage sections.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	storageconfig "github.com/tigerroll/crmimport/pkg/crm/adapter/storage/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/configbinder"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName. An empty bucket selects the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a reader that the caller must close.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object name under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named storage connection.
type StorageConnection interface {
	StorageExecutor
	Type() string
	Name() string
	Close() error
}

// Factory opens a connection of one storage type.
type Factory func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

var (
	factoryRegistry = make(map[string]Factory)
	factoryMutex    sync.RWMutex
)

// RegisterFactory registers the Factory for a storage type.
func RegisterFactory(storageType string, factory Factory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	if _, exists := factoryRegistry[storageType]; exists {
		logger.Warnf("Storage factory for type '%s' already registered. Overwriting.", storageType)
	}
	factoryRegistry[storageType] = factory
}

func getFactory(storageType string) (Factory, error) {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	factory, ok := factoryRegistry[storageType]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s'", storageType)
	}
	return factory, nil
}

// Provider opens and caches storage connections by name.
type Provider struct {
	sections    map[string]interface{}
	connections map[string]StorageConnection
	mu          sync.Mutex
}

// NewProvider creates a Provider over the raw crm.storage sections.
func NewProvider(sections map[string]interface{}) *Provider {
	return &Provider{
		sections:    sections,
		connections: make(map[string]StorageConnection),
	}
}

// GetConnection returns the cached connection or opens a new one through the type's factory.
func (p *Provider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	var cfg storageconfig.StorageConfig
	if err := configbinder.BindNamed(p.sections, name, &cfg); err != nil {
		return nil, fmt.Errorf("storage configuration '%s': %w", name, err)
	}
	factory, err := getFactory(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	conn, err := factory(ctx, cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", cfg.Type, name)
	return conn, nil
}

// CloseAll closes every open connection.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing storage connections: %v", errs)
	}
	return nil
}
