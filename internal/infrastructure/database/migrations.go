package database

import (
	"fmt"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

// schemaModels lists the tables the SSH daemon reads, in dependency order
var schemaModels = []any{
	&models.User{},
	&models.SSHKey{},
	&models.Repository{},
}

// RunMigrations creates or updates the users, ssh_keys and repositories tables
func (d *Database) RunMigrations() error {
	log := d.log.WithFields(logger.Operation("migrate"))
	log.Info("Running database migrations...", logger.Int("models", len(schemaModels)))

	if err := d.db.AutoMigrate(schemaModels...); err != nil {
		log.Error("Database migrations failed", logger.Error(err))
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	log.Info("Database migrations completed")
	return nil
}
