package config

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-blocks/pkg/blocks"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		DatabaseType:      DatabaseMemory,
		MediaType:         MediaNone,
		NATSSubjectPrefix: "blocks",
		WordsPerMinute:    blocks.DefaultWordsPerMinute,
		SecondsPerAsset:   blocks.DefaultSecondsPerAsset,
		LogLevel:          "info",
	}
}

// Database backends
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Media backends
const (
	MediaNone   = "none"
	MediaMemory = "memory"
	MediaS3     = "s3"
)

// ServerConfig represents configuration for the block engine and its server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Database configuration
	DatabaseType string // "memory", "postgres", "sqlite"
	DatabaseURL  string // postgres connection string or sqlite file path
	DBSchema     string // Postgres schema to use
	AutoMigrate  bool   // create missing tables on startup

	// Media configuration
	MediaType string // "none", "memory", "s3"
	Media     MediaConfig

	// Events
	NATSURL           string
	NATSSubjectPrefix string

	// Analysis
	WordsPerMinute  int
	SecondsPerAsset int
}

// MediaConfig holds the media collaborator settings
type MediaConfig struct {
	BaseURL         string // memory: URL prefix for file links
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignDuration int
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	switch c.MediaType {
	case MediaNone, MediaMemory:
	case MediaS3:
		if c.Media.Bucket == "" {
			return errors.New("media bucket is required when using s3")
		}
	default:
		return errors.New("media_type must be 'none', 'memory' or 's3'")
	}

	if c.WordsPerMinute <= 0 {
		return fmt.Errorf("words_per_minute must be positive, got %d", c.WordsPerMinute)
	}
	if c.SecondsPerAsset < 0 {
		return fmt.Errorf("seconds_per_asset must not be negative, got %d", c.SecondsPerAsset)
	}

	return nil
}
