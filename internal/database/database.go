package database

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager owns the persistence connection shared by settings and match
// history. Postgres is preferred; when it is unreachable the manager falls
// back to a local SQLite file so an arena without infrastructure still keeps
// its presets and round history.
type Manager struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	SaveLocal bool
	Logger    zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		Logger: log.With().Str("component", "database").Logger(),
	}
}

// Connect establishes the connection, falling back to SQLite when Postgres
// is unreachable or fails the ping.
func (m *Manager) Connect() error {
	var err error

	m.DB, err = m.openPostgres()
	if err != nil {
		m.Logger.Warn().Err(err).Msg("Postgres unavailable, falling back to SQLite")
		return m.connectSqlite()
	}

	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("accessing sql interface: %w", err)
	}
	if err := m.SqlDB.Ping(); err != nil {
		m.Logger.Warn().Err(err).Msg("Postgres ping failed, falling back to SQLite")
		return m.connectSqlite()
	}

	m.SqlDB.SetMaxOpenConns(10)
	m.Logger.Info().Msg("Connected to Postgres")
	return nil
}

func (m *Manager) connectSqlite() error {
	var err error
	m.SaveLocal = true
	m.DB, err = OpenSqlite(viper.GetString("db.sqlitePath"))
	if err != nil {
		return fmt.Errorf("opening local SQLite DB: %w", err)
	}
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("accessing sql interface: %w", err)
	}
	m.Logger.Info().Str("path", viper.GetString("db.sqlitePath")).Msg("Using local SQLite DB")
	return nil
}

func (m *Manager) openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().Msgf("Connecting to Postgres DB at '%s'", dsn)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSqlite opens a SQLite database at path, or an in-memory one when path
// is empty. Exposed so tests can run against a throwaway in-memory instance.
func OpenSqlite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// Migrate creates or updates the schema for the given models.
func (m *Manager) Migrate(models ...any) error {
	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() {
	if m.SqlDB != nil {
		m.SqlDB.Close()
	}
}
