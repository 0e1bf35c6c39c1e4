package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bravo68web/gitsshd/internal/config"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

// Connection pool settings. Every SSH connection handler reads through this pool.
const (
	maxIdleConns    = 10
	maxOpenConns    = 100
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// Database wraps the GORM database connection
type Database struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDatabase opens the PostgreSQL database described by cfg
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	log := logger.Get().WithFields(logger.Component("database"))

	log.Info("Initializing database connection...",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.DBName),
		logger.String("user", cfg.User),
		logger.String("sslmode", cfg.SSLMode),
	)

	database, err := Open(postgres.Open(cfg.DSN()), log)
	if err != nil {
		log.Error("Failed to connect to database",
			logger.Error(err),
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.DBName),
		)
		return nil, err
	}

	log.Info("Database connection established successfully",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.DBName),
	)

	return database, nil
}

// Open connects through an arbitrary GORM dialector, configures the pool and pings.
func Open(dialector gorm.Dialector, log *logger.Logger) (*Database, error) {
	if log == nil {
		log = logger.Get().WithFields(logger.Component("database"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	log.Debug("Connection pool configured",
		logger.Int("max_idle_conns", maxIdleConns),
		logger.Int("max_open_conns", maxOpenConns),
		logger.Duration("conn_max_lifetime", connMaxLifetime),
		logger.Duration("conn_max_idle_time", connMaxIdleTime),
	)

	database := &Database{db: db, log: log}

	if err := database.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		d.log.Error("Database ping failed", logger.Error(err))
		return err
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.log.Info("Closing database connection...")

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		d.log.Error("Failed to close database connection", logger.Error(err))
		return err
	}

	return nil
}
