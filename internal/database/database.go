package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/huiputin/routemap/internal/model"
	"github.com/huiputin/routemap/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager handles database connections and schema setup.
type Manager struct {
	DB     *gorm.DB
	SqlDB  *sql.DB
	Kind   string
	Logger zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		Logger: log,
	}
}

// Connect opens the database of the given kind ("postgres" or "sqlite").
// For sqlite an empty path selects a private in-memory database.
func (m *Manager) Connect(kind, sqlitePath string) error {
	var err error

	switch kind {
	case "postgres":
		m.Logger.Debug().
			Str("host", viper.GetString("db.host")).
			Str("database", viper.GetString("db.database")).
			Msg("Connecting to Postgres DB")
		m.DB, err = GetPostgresDB()
	case "sqlite":
		m.DB, err = GetSqliteDB(sqlitePath)
		if sqlitePath == "" {
			m.Logger.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
		} else {
			m.Logger.Info().Str("path", sqlitePath).Msg("Using local SQLite DB")
		}
	default:
		return fmt.Errorf("unknown database kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s DB: %w", kind, err)
	}
	m.Kind = kind

	// test connection
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = m.SqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	if kind == "postgres" {
		m.SqlDB.SetMaxOpenConns(10)
	}

	m.Logger.Info().Str("kind", kind).Msg("Connected to database")
	return nil
}

// Setup migrates tables and creates the service info row if it doesn't exist.
func (m *Manager) Setup() error {
	if err := Migrate(m.DB); err != nil {
		m.Logger.Error().Err(err).Msg("Schema migration failed")
		return err
	}
	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}

// Standalone functions for direct usage without Manager

// Migrate creates the schema and seeds the service info row.
func Migrate(db *gorm.DB) error {
	if !db.Migrator().HasTable(&model.ServiceInfo{}) {
		if err := db.AutoMigrate(&model.ServiceInfo{}); err != nil {
			return fmt.Errorf("failed to create service_infos table: %w", err)
		}
		if err := db.Create(&model.ServiceInfo{
			GymName:       viper.GetString("gymName"),
			Description:   "routemap marker store",
			SchemaVersion: model.SchemaVersion,
		}).Error; err != nil {
			return fmt.Errorf("failed to create service_infos entry: %w", err)
		}
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveSectors stores the sector layout on the service info row.
func SaveSectors(db *gorm.DB, sectors []core.Sector) error {
	data, err := json.Marshal(sectors)
	if err != nil {
		return fmt.Errorf("failed to encode sectors: %w", err)
	}
	res := db.Model(&model.ServiceInfo{}).
		Where("id = (?)", db.Model(&model.ServiceInfo{}).Select("MIN(id)")).
		Update("sectors", datatypes.JSON(data))
	if res.Error != nil {
		return fmt.Errorf("failed to save sectors: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to save sectors: no service info row")
	}
	return nil
}

// LoadSectors returns the stored sector layout, or nil when none was saved.
func LoadSectors(db *gorm.DB) ([]core.Sector, error) {
	var info model.ServiceInfo
	if err := db.Order("id").First(&info).Error; err != nil {
		return nil, fmt.Errorf("failed to read service info: %w", err)
	}
	if len(info.Sectors) == 0 || string(info.Sectors) == "null" {
		return nil, nil
	}
	var sectors []core.Sector
	if err := json.Unmarshal(info.Sectors, &sectors); err != nil {
		return nil, fmt.Errorf("failed to decode sectors: %w", err)
	}
	return sectors, nil
}

// GetPostgresDB returns a connection to the Postgres database using viper config.
func GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// one writer; also keeps the in-memory DB alive for the pool's lifetime
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA foreign_keys = ON;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	// remove existing file if it exists
	if exists, err := os.Stat(sqliteFilePath); err == nil && exists != nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	err := db.Exec("VACUUM INTO 'file:" + sqliteFilePath + "';").Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %s", err)
	}
	return nil
}
