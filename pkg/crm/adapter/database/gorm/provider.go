// Package gorm opens named database connections from crm.database sections.
// Driver packages register a DialectorFactory in init.
package gorm

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	dbconfig "github.com/tigerroll/crmimport/pkg/crm/adapter/database/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/configbinder"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// Connection is an open named database connection.
type Connection struct {
	name  string
	cfg   dbconfig.DatabaseConfig
	db    *gorm.DB
	sqlDB *sql.DB
}

// Name returns the configuration name of the connection.
func (c *Connection) Name() string { return c.name }

// Type returns the database type.
func (c *Connection) Type() string { return c.cfg.Type }

// Config returns the decoded connection settings.
func (c *Connection) Config() dbconfig.DatabaseConfig { return c.cfg }

// DB returns the gorm handle.
func (c *Connection) DB() *gorm.DB { return c.db }

// SQLDB returns the underlying *sql.DB.
func (c *Connection) SQLDB() *sql.DB { return c.sqlDB }

// Close closes the connection pool.
func (c *Connection) Close() error {
	logger.Infof("Closing database connection '%s'...", c.name)
	return c.sqlDB.Close()
}

// Provider opens and caches connections by name.
type Provider struct {
	sections    map[string]interface{}
	connections map[string]*Connection
	mu          sync.Mutex
}

// NewProvider creates a Provider over the raw crm.database sections.
func NewProvider(sections map[string]interface{}) *Provider {
	return &Provider{
		sections:    sections,
		connections: make(map[string]*Connection),
	}
}

// GetConnection returns the cached connection or opens a new one.
func (p *Provider) GetConnection(name string) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	var cfg dbconfig.DatabaseConfig
	if err := configbinder.BindNamed(p.sections, name, &cfg); err != nil {
		return nil, fmt.Errorf("database configuration '%s': %w", name, err)
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection '%s': %w", name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	conn := &Connection{name: name, cfg: cfg, db: db, sqlDB: sqlDB}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, cfg.Type)
	return conn, nil
}

// CloseAll closes every open connection and returns the last error.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

// Open establishes a gorm connection through the registered dialector and applies the pool settings.
func Open(cfg dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}
	return OpenDialector(dialector, cfg.Pool)
}

// OpenDialector opens dialector with the package's gorm settings.
func OpenDialector(dialector gorm.Dialector, pool dbconfig.PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// NewGormLogger routes gorm warnings and slow queries to the package logger.
func NewGormLogger() gormlogger.Interface {
	return gormlogger.New(logger.GormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
