package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultHostKeyPath is used when ssh.host_key_path is not configured
const DefaultHostKeyPath = "./ssh_host_key"

// Config represents the complete application configuration
type Config struct {
	SSH       SSHConfig       `mapstructure:"ssh"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SSHConfig holds SSH server configuration
type SSHConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	HostKeyPath string `mapstructure:"host_key_path"`
	// MaxConnections caps concurrent connections; 0 means unlimited
	MaxConnections int `mapstructure:"max_connections"`
	// CommandTimeout bounds a single git command; 0 disables the limit
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Address returns the SSH listen address
func (s *SSHConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// StorageConfig holds repository storage configuration
type StorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`  // debug, info, warn, error
	Format      string `mapstructure:"format"` // json, console
	Output      string `mapstructure:"output"` // console, file, otel
	FilePath    string `mapstructure:"file_path"`
	Development bool   `mapstructure:"development"`
}

// TelemetryConfig holds OpenTelemetry log export configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	UseHTTP     bool   `mapstructure:"use_http"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	// Headers are sent with every export, e.g. collector API keys
	Headers map[string]string `mapstructure:"headers"`
}

// Load reads configuration from file and environment variables.
// Lookup order: explicit path, then ./config.yaml, ./configs/config.yaml and
// /etc/gitsshd/config.yaml. GITSSHD_* environment variables always override.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("GITSSHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configLoaded := false

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			configLoaded = true
		}
	}

	if !configLoaded {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gitsshd")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// no file: defaults and env vars only
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.SSH.HostKeyPath == "" {
		cfg.SSH.HostKeyPath = DefaultHostKeyPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ssh.host", "0.0.0.0")
	v.SetDefault("ssh.port", 2222)
	v.SetDefault("ssh.host_key_path", DefaultHostKeyPath)
	v.SetDefault("ssh.max_connections", 0)
	v.SetDefault("ssh.command_timeout", 0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gitserver")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "gitserver")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("storage.base_path", "./data/repos")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "console")
	v.SetDefault("logging.file_path", "./logs/gitsshd.log")
	v.SetDefault("logging.development", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.use_http", false)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "gitsshd")
	v.SetDefault("telemetry.environment", "development")
}

// overrideFromEnv handles environment variables that don't follow the key mapping
func overrideFromEnv(v *viper.Viper) {
	if dbPass := os.Getenv("GITSSHD_DB_PASSWORD"); dbPass != "" {
		v.Set("database.password", dbPass)
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		v.Set("telemetry.endpoint", endpoint)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("invalid SSH port: %d", c.SSH.Port)
	}
	if c.SSH.MaxConnections < 0 {
		return fmt.Errorf("ssh max_connections must not be negative")
	}
	if c.SSH.CommandTimeout < 0 {
		return fmt.Errorf("ssh command_timeout must not be negative")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage base path is required")
	}

	switch c.Logging.Output {
	case "", "console", "otel":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging file_path is required for file output")
		}
	default:
		return fmt.Errorf("invalid logging output: %s", c.Logging.Output)
	}

	if (c.Telemetry.Enabled || c.Logging.Output == "otel") && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when OTEL export is enabled")
	}

	return nil
}
