// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (BEACON_* overrides)
//  2. Config file (~/.beacon/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - AI: generation model, embedder model, provider API key
//   - Storage: PostgreSQL connection for chunks, settings and session credentials
//   - Ingest: chunk size and overlap for the text splitter
//   - Channel: messaging channel device name and reconnect delay
//   - HTTP: listen address for the API server
//
// Validation is fail-fast: Load returns a sentinel error (checkable with
// errors.Is) as soon as a value is out of range.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	// ErrInvalidChunkSize indicates the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the overlap is negative or >= chunk size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedDimension indicates the embedding dimension is not positive.
	ErrInvalidEmbedDimension = errors.New("invalid embedding dimension")

	// ErrInvalidReinitDelay indicates the channel reconnect delay is not positive.
	ErrInvalidReinitDelay = errors.New("invalid reinit delay")
)

// Defaults for the text splitter. These match the ingestion behaviour the
// knowledge base was built with; changing them only affects new ingestions.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultReinitDelay is how long the session manager waits after a
// disconnect before rebuilding the messaging transport.
const DefaultReinitDelay = 5 * time.Second

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName      string `mapstructure:"model_name"`
	EmbedderModel  string `mapstructure:"embedder_model"`
	EmbedDimension int    `mapstructure:"embed_dimension"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Ingest configuration
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Messaging channel configuration
	ChannelDeviceName string        `mapstructure:"channel_device_name"`
	ReinitDelay       time.Duration `mapstructure:"reinit_delay"`

	// HTTP configuration
	HTTPAddr string `mapstructure:"http_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".beacon")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("BEACON")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over the individual postgres_* keys when set.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := cfg.applyDatabaseURL(dbURL); err != nil {
			return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	// gemini-embedding-001 emits 3072-dimensional vectors. Must match the
	// vector column width in db/migrations.
	v.SetDefault("embed_dimension", 3072)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "beacon")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "beacon")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	v.SetDefault("channel_device_name", "beacon")
	v.SetDefault("reinit_delay", DefaultReinitDelay)

	v.SetDefault("http_addr", "127.0.0.1:3500")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate checks all configuration values and returns the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if c.ModelName == "" {
		return ErrInvalidModelName
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbedDimension, c.EmbedDimension)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkOverlap, c.ChunkOverlap, c.ChunkSize)
	}
	if c.ReinitDelay <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidReinitDelay, c.ReinitDelay)
	}
	return nil
}

// applyDatabaseURL overrides the postgres_* fields from a postgres:// URL.
func (c *Config) applyDatabaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "" && db != "/" && db != "." {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// PostgresURL returns the connection string in URL format, used both by
// golang-migrate and the pgx pool.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
