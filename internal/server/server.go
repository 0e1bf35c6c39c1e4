package server

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bravo68web/gitsshd/internal/config"
	"github.com/bravo68web/gitsshd/internal/infrastructure/database"
	"github.com/bravo68web/gitsshd/internal/infrastructure/otel"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

// Version is stamped at build time with -ldflags "-X .../internal/server.Version=..."
var Version = "dev"

// App carries the process-wide state shared by the CLI commands
type App struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *database.Database

	telemetry *otel.Provider
}

// New loads configuration and sets up logging. CONFIG_PATH is used when configPath is empty.
func New(ctx context.Context, configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	app := &App{Config: cfg}
	if err := app.initLogger(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) initLogger(ctx context.Context) error {
	logCfg := logger.DefaultConfig()
	logCfg.Level = a.Config.Logging.Level
	logCfg.Format = a.Config.Logging.Format
	logCfg.Output = logger.OutputType(a.Config.Logging.Output)
	logCfg.FilePath = a.Config.Logging.FilePath
	logCfg.Development = a.Config.Logging.Development

	base, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := base
	if a.Config.Telemetry.Enabled || logCfg.Output == logger.OutputOTEL {
		provider, err := otel.NewProvider(ctx, otel.FromTelemetryConfig(&a.Config.Telemetry, Version))
		if err != nil {
			base.Warn("OTEL export disabled: provider setup failed", logger.Error(err))
		} else {
			provider.RegisterGlobal()
			a.telemetry = provider
			core := otel.NewCombinedCore(base.Core(), provider, logger.ParseLevel(logCfg.Level))
			log = logger.NewWithCore(logCfg, core, base, provider)
		}
	}

	logger.SetGlobal(log)
	a.Log = log

	a.Log.Info("gitsshd starting",
		logger.String("version", Version),
		logger.String("log_output", string(logCfg.Output)),
		logger.Bool("telemetry", a.telemetry != nil),
	)
	return nil
}

// OpenDatabase connects to PostgreSQL. Commands that do not touch the store skip it.
func (a *App) OpenDatabase() (*database.Database, error) {
	if a.DB != nil {
		return a.DB, nil
	}

	db, err := database.NewDatabase(&a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	return db, nil
}

// Close releases the database and flushes log sinks
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Log != nil {
		errs = append(errs, a.Log.Close())
	}
	return errors.Join(errs...)
}
