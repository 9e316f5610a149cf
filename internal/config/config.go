package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"

	AuthGoTrue = "gotrue"
	AuthLocal  = "local"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// Pretty switches zerolog to the console writer.
	Pretty bool `yaml:"pretty"`
	// SessionIdleTimeout drops client sessions that were not used for this long.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Schema  string        `yaml:"schema"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	Backend   string        `yaml:"backend"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Issuer    string        `yaml:"issuer"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	SearchPath      string        `yaml:"search_path"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "user-portal"
	cfg.App.Port = "8080"
	cfg.App.LogLevel = "info"
	cfg.App.SessionIdleTimeout = 30 * time.Minute
	cfg.Store.Backend = BackendMemory
	cfg.Store.Timeout = 10 * time.Second
	cfg.Auth.Backend = AuthLocal
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.Issuer = "user-portal"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Postgres.MigrationsPath = "migrations"
	return cfg
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty), then the .env file at envFile (ignored when missing),
// then the process environment. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	if err := setBool(&cfg.App.Pretty, "LOG_PRETTY"); err != nil {
		return err
	}
	if err := setDuration(&cfg.App.SessionIdleTimeout, "SESSION_IDLE_TIMEOUT"); err != nil {
		return err
	}

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.URL, "SUPABASE_URL")
	setString(&cfg.Store.APIKey, "SUPABASE_KEY")
	setString(&cfg.Store.Schema, "STORE_SCHEMA")
	if err := setDuration(&cfg.Store.Timeout, "STORE_TIMEOUT"); err != nil {
		return err
	}

	setString(&cfg.Auth.Backend, "AUTH_BACKEND")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	if err := setDuration(&cfg.Auth.TokenTTL, "JWT_TTL"); err != nil {
		return err
	}

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")
	return nil
}

func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("app.port is required")
	}
	if c.App.SessionIdleTimeout <= 0 {
		return fmt.Errorf("app.session_idle_timeout must be positive, got %s", c.App.SessionIdleTimeout)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive, got %s", c.Store.Timeout)
	}

	switch c.Store.Backend {
	case BackendPostgREST:
		if c.Store.URL == "" || c.Store.APIKey == "" {
			return errors.New("store.url and store.api_key are required for the postgrest backend")
		}
	case BackendPostgres:
		if err := c.Postgres.validate(); err != nil {
			return err
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Auth.Backend {
	case AuthGoTrue:
		if c.Store.Backend != BackendPostgREST {
			return errors.New("auth.backend gotrue needs the postgrest store backend")
		}
	case AuthLocal:
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required for the local auth backend")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
		}
	default:
		return fmt.Errorf("unknown auth.backend %q", c.Auth.Backend)
	}
	return nil
}

func (p PostgresConfig) validate() error {
	missing := func(name string) error { return fmt.Errorf("postgres.%s is required", name) }
	switch {
	case p.Host == "":
		return missing("host")
	case p.Port == "":
		return missing("port")
	case p.User == "":
		return missing("user")
	case p.DBName == "":
		return missing("dbname")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
