package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/tendant/simple-blocks/pkg/blocks"
	"github.com/tendant/simple-blocks/pkg/blocks/events/natsevents"
	memorymedia "github.com/tendant/simple-blocks/pkg/blocks/media/memory"
	s3media "github.com/tendant/simple-blocks/pkg/blocks/media/s3"
	"github.com/tendant/simple-blocks/pkg/blocks/repo/memory"
	repopg "github.com/tendant/simple-blocks/pkg/blocks/repo/postgres"
	reposqlite "github.com/tendant/simple-blocks/pkg/blocks/repo/sqlite"
)

// Store is the repository surface the binaries need beyond blocks.Repository.
type Store interface {
	blocks.Repository
	CreatePost(ctx context.Context, post *blocks.Post) error
}

// Migrator is implemented by repositories backed by a schema.
type Migrator interface {
	Migrate(ctx context.Context, collections []string) error
}

// Runtime is a built service together with the resources it holds.
type Runtime struct {
	Service blocks.Service
	Store   Store

	closers []func()
}

// Close releases database pools and broker connections.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Migrate creates the tables for every registered collection. Stores without
// a schema are left alone.
func (r *Runtime) Migrate(ctx context.Context) error {
	m, ok := r.Store.(Migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx, r.Service.Registry().Collections())
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	store, err := c.buildRepository(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Store = store

	options := []blocks.Option{
		blocks.WithRepository(store),
		blocks.WithLogger(logger),
		blocks.WithWordsPerMinute(c.WordsPerMinute),
		blocks.WithSecondsPerAsset(c.SecondsPerAsset),
	}

	media, err := c.buildMediaStore(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build media store: %w", err)
	}
	if media != nil {
		options = append(options, blocks.WithMediaStore(media))
	}

	if c.NATSURL != "" {
		nc, err := nats.Connect(c.NATSURL, nats.Name("simple-blocks"), nats.Timeout(5*time.Second))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		rt.closers = append(rt.closers, func() { nc.Close() })
		options = append(options, blocks.WithEventSink(natsevents.New(nc, c.NATSSubjectPrefix, logger)))
	}

	svc, err := blocks.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	if c.AutoMigrate {
		if err := rt.Migrate(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (Store, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		return repopg.NewWithPool(pool), nil
	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = repo.Close() })
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildMediaStore(ctx context.Context) (blocks.MediaStore, error) {
	switch c.MediaType {
	case MediaNone, "":
		return nil, nil
	case MediaMemory:
		return memorymedia.New(c.Media.BaseURL), nil
	case MediaS3:
		store, err := s3media.New(ctx, s3media.Config{
			Region:          c.Media.Region,
			Bucket:          c.Media.Bucket,
			Prefix:          c.Media.Prefix,
			AccessKeyID:     c.Media.AccessKeyID,
			SecretAccessKey: c.Media.SecretAccessKey,
			Endpoint:        c.Media.Endpoint,
			UsePathStyle:    c.Media.UsePathStyle,
			PresignDuration: c.Media.PresignDuration,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported media type: %s", c.MediaType)
	}
}

// CheckDatabase verifies the configured block store is reachable before any
// service is built. The memory store always is.
func (c *ServerConfig) CheckDatabase(ctx context.Context) error {
	switch c.DatabaseType {
	case DatabaseMemory:
		return nil
	case DatabasePostgres:
		return pingPostgres(ctx, c.DatabaseURL, c.DBSchema)
	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()
		return repo.Ping(ctx)
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// pingPostgres verifies connectivity to Postgres and sets search_path for the session.
func pingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
