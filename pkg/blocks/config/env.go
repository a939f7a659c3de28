package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// fileConfig is the external shape of the configuration. It is filled from
// environment variables and, optionally, a yaml/json/toml/env file.
//
//	PORT              - Server port (default: "8080")
//	ENVIRONMENT       - Runtime environment (default: "development")
//	LOG_LEVEL         - debug, info, warn, error
//	DATABASE_URL      - "memory" (default), "postgres://..." or "sqlite://path/to/file.db"
//	DB_SCHEMA         - Postgres search_path
//	AUTO_MIGRATE      - create missing tables on startup
//	MEDIA_URL         - "" (no media checks), "memory://" or "s3://bucket/prefix?region=...&endpoint=...&path_style=true"
//	NATS_URL          - publish block events when set
//	WORDS_PER_MINUTE  - reading speed (default: 200)
//	SECONDS_PER_ASSET - viewing time per media item (default: 12)
type fileConfig struct {
	Port              string `yaml:"port" json:"port" env:"PORT"`
	Environment       string `yaml:"environment" json:"environment" env:"ENVIRONMENT"`
	LogLevel          string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	DatabaseURL       string `yaml:"database_url" json:"database_url" env:"DATABASE_URL"`
	DBSchema          string `yaml:"db_schema" json:"db_schema" env:"DB_SCHEMA"`
	AutoMigrate       string `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`
	MediaURL          string `yaml:"media_url" json:"media_url" env:"MEDIA_URL"`
	AccessKeyID       string `yaml:"aws_access_key_id" json:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey   string `yaml:"aws_secret_access_key" json:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Region            string `yaml:"aws_region" json:"aws_region" env:"AWS_REGION"`
	PresignDuration   int    `yaml:"presign_duration" json:"presign_duration" env:"MEDIA_PRESIGN_DURATION"`
	NATSURL           string `yaml:"nats_url" json:"nats_url" env:"NATS_URL"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" json:"nats_subject_prefix" env:"NATS_SUBJECT_PREFIX"`
	WordsPerMinute    int    `yaml:"words_per_minute" json:"words_per_minute" env:"WORDS_PER_MINUTE"`
	SecondsPerAsset   string `yaml:"seconds_per_asset" json:"seconds_per_asset" env:"SECONDS_PER_ASSET"`
}

// WithEnv applies environment variable overrides. Unset variables leave the
// current values alone.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var fc fileConfig
		if err := cleanenv.ReadEnv(&fc); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return fc.apply(c)
	}
}

// WithConfigFile reads a yaml, json, toml or .env file; environment
// variables take precedence over its values.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		var fc fileConfig
		if err := cleanenv.ReadConfig(path, &fc); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return fc.apply(c)
	}
}

func (fc *fileConfig) apply(c *ServerConfig) error {
	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.Environment != "" {
		c.Environment = fc.Environment
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.DBSchema != "" {
		c.DBSchema = fc.DBSchema
	}
	if fc.AutoMigrate != "" {
		v, err := strconv.ParseBool(fc.AutoMigrate)
		if err != nil {
			return fmt.Errorf("invalid boolean for AUTO_MIGRATE: %w", err)
		}
		c.AutoMigrate = v
	}
	if err := applyDatabaseURL(fc.DatabaseURL, c); err != nil {
		return err
	}
	if err := applyMediaURL(fc, c); err != nil {
		return err
	}
	if fc.NATSURL != "" {
		c.NATSURL = fc.NATSURL
	}
	if fc.NATSSubjectPrefix != "" {
		c.NATSSubjectPrefix = fc.NATSSubjectPrefix
	}
	if fc.WordsPerMinute != 0 {
		c.WordsPerMinute = fc.WordsPerMinute
	}
	if fc.SecondsPerAsset != "" {
		v, err := strconv.Atoi(fc.SecondsPerAsset)
		if err != nil {
			return fmt.Errorf("invalid integer for SECONDS_PER_ASSET: %w", err)
		}
		c.SecondsPerAsset = v
	}
	return nil
}

// applyDatabaseURL detects the backend from the URL scheme.
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.DatabaseURL = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applyMediaURL configures the media collaborator.
// Format: s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000&path_style=true
func applyMediaURL(fc *fileConfig, c *ServerConfig) error {
	raw := fc.MediaURL
	switch {
	case raw == "":
		return nil
	case raw == "none":
		c.MediaType = MediaNone
		return nil
	case raw == "memory" || strings.HasPrefix(raw, "memory://"):
		c.MediaType = MediaMemory
		c.Media.BaseURL = ""
		return nil
	case !strings.HasPrefix(raw, "s3://"):
		return fmt.Errorf("unsupported MEDIA_URL format: %s (use 'memory://' or 's3://...')", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid MEDIA_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in MEDIA_URL")
	}

	q := u.Query()
	media := MediaConfig{
		Bucket:          u.Host,
		Prefix:          strings.Trim(u.Path, "/"),
		Region:          q.Get("region"),
		Endpoint:        q.Get("endpoint"),
		AccessKeyID:     fc.AccessKeyID,
		SecretAccessKey: fc.SecretAccessKey,
		PresignDuration: fc.PresignDuration,
	}
	if media.Region == "" {
		media.Region = fc.Region
	}
	if ps := q.Get("path_style"); ps != "" {
		if media.UsePathStyle, err = strconv.ParseBool(ps); err != nil {
			return fmt.Errorf("invalid path_style in MEDIA_URL: %w", err)
		}
	}

	c.MediaType = MediaS3
	c.Media = media
	return nil
}
