package config

import (
	"fmt"
	"time"

	"github.com/spartak030506-hash/shop-backend/pkg/config"
	"github.com/spartak030506-hash/shop-backend/pkg/database"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"shop-backend"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Postgres PostgresConfig
	JWT      JWTConfig
	Kafka    KafkaConfig

	// SessionPruneInterval is how often expired refresh sessions are
	// removed from storage.
	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"shop"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"shop_secret"`
	DBName   string `env:"POSTGRES_DB" envDefault:"shop_db"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	MinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"5"`
}

// JWTConfig holds token signing settings. Access and refresh tokens are
// signed with separate secrets.
type JWTConfig struct {
	AccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"dev-access-secret-do-not-use-in-prod"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"dev-refresh-secret-do-not-use-in-prod"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"shop-backend"`
}

// KafkaConfig holds event broker settings.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
}

const minSecretLength = 32

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces configuration constraints. Secret strength is only
// checked outside development so local setups stay friction-free.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTPPort)
	}

	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return fmt.Errorf("refresh token lifetime must exceed access token lifetime")
	}

	if c.Environment != "development" {
		if len(c.JWT.AccessSecret) < minSecretLength {
			return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters", minSecretLength)
		}
		if len(c.JWT.RefreshSecret) < minSecretLength {
			return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLength)
		}
		if c.JWT.AccessSecret == c.JWT.RefreshSecret {
			return fmt.Errorf("access and refresh secrets must differ")
		}
	}

	return nil
}

// PostgresPoolConfig converts the config to the database package's form.
func (c *Config) PostgresPoolConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.Postgres.Host,
		Port:            c.Postgres.Port,
		User:            c.Postgres.User,
		Password:        c.Postgres.Password,
		DBName:          c.Postgres.DBName,
		SSLMode:         c.Postgres.SSLMode,
		MaxConns:        c.Postgres.MaxConns,
		MinConns:        c.Postgres.MinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}
