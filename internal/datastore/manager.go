// Package datastore persists photos and their bib detections through GORM.
//
// SQLite is the default backend; MySQL is supported for shared deployments.
// Photo state changes go through PhotoRepository.Transition, a conditional
// update that only applies when the row is still in one of the expected
// states, so concurrent writers (a worker finishing a run, a user cancelling)
// never overwrite each other's terminal state.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

const memoryPath = ":memory:"

// Manager owns the database connection and hands out repositories.
type Manager struct {
	db       *gorm.DB
	dialect  string
	location string // file path for SQLite, host:port/database for MySQL
}

// MySQLConfig holds MySQL connection parameters.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN builds the driver connection string. clientFoundRows makes
// RowsAffected count matched rows, which Transition relies on.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// GetLogger returns the datastore package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// Open connects to the backend selected by settings and migrates the schema.
func Open(settings *conf.DatabaseSettings) (*Manager, error) {
	var (
		m   *Manager
		err error
	)
	switch settings.Type {
	case "mysql":
		my := settings.MySQL
		cfg := MySQLConfig{
			Host:     my.Host,
			Port:     my.Port,
			Username: my.Username,
			Password: my.Password,
			Database: my.Database,
		}
		m, err = OpenMySQL(cfg.DSN(), settings.SlowQueryThreshold)
		if m != nil {
			m.location = fmt.Sprintf("%s:%s/%s", my.Host, my.Port, my.Database)
		}
	default:
		m, err = OpenSQLite(settings.SQLite.Path, settings.SlowQueryThreshold)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
// The special path ":memory:" opens a private in-memory database.
func OpenSQLite(path string, slowQuery time.Duration) (*Manager, error) {
	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(slowQuery))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("path", path).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	if path == memoryPath {
		// every pooled connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Manager{db: db, dialect: "sqlite", location: path}, nil
}

// OpenMySQL connects to MySQL using dsn.
func OpenMySQL(dsn string, slowQuery time.Duration) (*Manager, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(slowQuery))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Manager{db: db, dialect: "mysql", location: "mysql"}, nil
}

func gormConfig(slowQuery time.Duration) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.NewGormLoggerAdapter(GetLogger(), slowQuery),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Initialize creates or updates the schema.
func (m *Manager) Initialize() error {
	start := time.Now()
	if err := m.db.AutoMigrate(allModels()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("dialect", m.dialect).
			Timing("auto_migrate", time.Since(start)).
			Build()
	}

	GetLogger().Info("database schema ready",
		logger.String("dialect", m.dialect),
		logger.String("location", m.location),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// DB returns the underlying GORM handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// IsMySQL reports whether the backend is MySQL.
func (m *Manager) IsMySQL() bool {
	return m.dialect == "mysql"
}

// Path returns the database location for display.
func (m *Manager) Path() string {
	return m.location
}

// Photos returns a photo repository bound to this connection.
func (m *Manager) Photos() *PhotoRepository {
	return NewPhotoRepository(m.db)
}

// Detections returns a detection repository bound to this connection.
func (m *Manager) Detections() *DetectionRepository {
	return NewDetectionRepository(m.db)
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
