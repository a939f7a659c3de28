package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
		case DatabasePostgres, DatabaseSQLite:
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate creates missing tables when the repository is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithMemoryMedia uses an in-memory media store
func WithMemoryMedia(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.MediaType = MediaMemory
		c.Media.BaseURL = baseURL
		return nil
	}
}

// WithS3Media resolves media file ids against an S3 bucket
func WithS3Media(media MediaConfig) Option {
	return func(c *ServerConfig) error {
		if media.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		c.MediaType = MediaS3
		c.Media = media
		return nil
	}
}

// WithNATS publishes block events to the NATS server at url
func WithNATS(url, subjectPrefix string) Option {
	return func(c *ServerConfig) error {
		c.NATSURL = url
		if subjectPrefix != "" {
			c.NATSSubjectPrefix = subjectPrefix
		}
		return nil
	}
}

// WithReadingSpeed sets the analyzer's words per minute and seconds per media asset
func WithReadingSpeed(wordsPerMinute, secondsPerAsset int) Option {
	return func(c *ServerConfig) error {
		if wordsPerMinute <= 0 {
			return fmt.Errorf("words per minute must be positive, got %d", wordsPerMinute)
		}
		c.WordsPerMinute = wordsPerMinute
		c.SecondsPerAsset = secondsPerAsset
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}
