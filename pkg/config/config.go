// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, DocumentStore, Token, Bus, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	DocumentStore DocumentStoreConfig `yaml:"documentStore"`
	Token         TokenConfig         `yaml:"token"`
	Bus           BusConfig           `yaml:"bus"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig holds the report index connection parameters. Driver is
// either "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

// DSN returns a driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// DocumentStoreConfig points at the external document store API.
type DocumentStoreConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	Timeout          time.Duration `yaml:"timeout"`
	MissingIsDeleted bool          `yaml:"missingIsDeleted"`
	RetryAttempts    int           `yaml:"retryAttempts"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// TokenConfig configures the OAuth2 client-credentials token provider. When
// StaticToken is set the provider returns it verbatim instead.
type TokenConfig struct {
	TokenURL     string `yaml:"tokenUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Audience     string `yaml:"audience"`
	StaticToken  string `yaml:"staticToken"`
}

// BusConfig selects the message bus backend ("kafka" or "pubsub").
type BusConfig struct {
	Driver         string        `yaml:"driver"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	Kafka          KafkaConfig   `yaml:"kafka"`
	PubSub         PubSubConfig  `yaml:"pubsub"`
}

// KafkaConfig holds Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID       string `yaml:"projectId"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// NotificationConfig controls the secondary report notification gate.
// Trigger is "complete" or "incomplete".
type NotificationConfig struct {
	SecondaryReportTopic string `yaml:"secondaryReportTopic"`
	Trigger              string `yaml:"trigger"`
}

// RedisConfig holds Redis connection and locking parameters. An empty Addr
// disables distributed locking.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Bus.Driver {
	case "kafka", "pubsub":
	default:
		return fmt.Errorf("unsupported bus driver %q", c.Bus.Driver)
	}
	switch c.Notifications.Trigger {
	case "complete", "incomplete":
	default:
		return fmt.Errorf("unsupported notification trigger %q", c.Notifications.Trigger)
	}
	if c.DocumentStore.BaseURL == "" {
		return fmt.Errorf("documentStore.baseUrl is required")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  55 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Database:        "reportindex",
			User:            "reportindex",
			Password:        "localdev",
			SSLMode:         "disable",
			Path:            "reportindex.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		DocumentStore: DocumentStoreConfig{
			BaseURL:          "http://localhost:8090/documents",
			Timeout:          30 * time.Second,
			MissingIsDeleted: true,
			RetryAttempts:    3,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Bus: BusConfig{
			Driver:         "kafka",
			PublishTimeout: 10 * time.Second,
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
			},
		},
		Notifications: NotificationConfig{
			SecondaryReportTopic: "secondary-report-notification",
			Trigger:              "complete",
		},
		Redis: RedisConfig{
			PoolSize: 10,
			LockTTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RLS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RLS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RLS_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("RLS_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("RLS_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("RLS_DATABASE_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("RLS_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("RLS_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RLS_DATABASE_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("RLS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RLS_DOCUMENT_STORE_URL"); v != "" {
		cfg.DocumentStore.BaseURL = v
	}
	if v := os.Getenv("RLS_TOKEN_URL"); v != "" {
		cfg.Token.TokenURL = v
	}
	if v := os.Getenv("RLS_TOKEN_CLIENT_ID"); v != "" {
		cfg.Token.ClientID = v
	}
	if v := os.Getenv("RLS_TOKEN_CLIENT_SECRET"); v != "" {
		cfg.Token.ClientSecret = v
	}
	if v := os.Getenv("RLS_TOKEN_AUDIENCE"); v != "" {
		cfg.Token.Audience = v
	}
	if v := os.Getenv("RLS_TOKEN_STATIC"); v != "" {
		cfg.Token.StaticToken = v
	}
	if v := os.Getenv("RLS_BUS_DRIVER"); v != "" {
		cfg.Bus.Driver = v
	}
	if v := os.Getenv("RLS_KAFKA_BROKERS"); v != "" {
		cfg.Bus.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RLS_PUBSUB_PROJECT_ID"); v != "" {
		cfg.Bus.PubSub.ProjectID = v
	}
	if v := os.Getenv("RLS_PUBSUB_CREDENTIALS_FILE"); v != "" {
		cfg.Bus.PubSub.CredentialsFile = v
	}
	if v := os.Getenv("RLS_NOTIFICATION_TOPIC"); v != "" {
		cfg.Notifications.SecondaryReportTopic = v
	}
	if v := os.Getenv("RLS_NOTIFICATION_TRIGGER"); v != "" {
		cfg.Notifications.Trigger = v
	}
	if v := os.Getenv("RLS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RLS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RLS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RLS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RLS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
