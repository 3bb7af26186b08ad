// Package postgres implements the storage.Backend interface on PostgreSQL. Several
// routemapd instances may share one database; pair it with the redis change feed
// so that they see each other's writes.
package postgres

import (
	"fmt"

	"github.com/huiputin/routemap/internal/changefeed"
	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/logging"
	gormstorage "github.com/huiputin/routemap/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	// DB is optional; when nil Init connects using the db.* config keys.
	DB         *gorm.DB
	Feed       changefeed.Feed
	LogManager *logging.SlogManager
}

// Backend wraps the GORM backend and owns the connection it opened.
type Backend struct {
	*gormstorage.Backend
	deps   Dependencies
	ownsDB bool
}

// New creates a new postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// Init connects when no DB was injected, then migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
		b.ownsDB = true
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.DB,
		Feed:       b.deps.Feed,
		LogManager: b.deps.LogManager,
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.deps.LogManager.Logger().Info("Database setup complete", "backend", "postgres")
	return nil
}

// Close stops change delivery and closes the connection if Init opened it.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if !b.ownsDB {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
