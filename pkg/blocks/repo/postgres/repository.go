package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-blocks/pkg/blocks"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can start transactions, such as *pgxpool.Pool.
type DB interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository implements blocks.Repository using PostgreSQL. Every variant
// collection is its own table; payloads are stored as jsonb.
type Repository struct {
	db DB
}

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// table validates a collection name before it is spliced into SQL.
func table(collection string) (string, error) {
	if !identifier.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return collection, nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return blocks.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return fmt.Errorf("post slug already exists")
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return blocks.ErrPostNotFound
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return &blocks.TxError{Op: operation, Err: err}
		default:
			return fmt.Errorf("database error in %s (code: %s): %w", operation, pgErr.Code, err)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *blocks.Post) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.Status == "" {
		post.Status = blocks.PostStatusDraft
	}
	query := `
		INSERT INTO posts (id, slug, title, author_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query, post.ID, post.Slug, post.Title, post.AuthorID, string(post.Status)).
		Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return handlePostgresError("create post", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*blocks.Post, error) {
	return r.scanPost(ctx, "id = $1", id)
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*blocks.Post, error) {
	return r.scanPost(ctx, "slug = $1", slug)
}

func (r *Repository) scanPost(ctx context.Context, where string, arg interface{}) (*blocks.Post, error) {
	query := `SELECT id, slug, title, author_id, status, created_at, updated_at FROM posts WHERE ` + where
	var post blocks.Post
	var status string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&post.ID, &post.Slug, &post.Title, &post.AuthorID, &status, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blocks.ErrPostNotFound
		}
		return nil, handlePostgresError("get post", err)
	}
	post.Status = blocks.PostStatus(status)
	return &post, nil
}

// Record operations

const recordColumns = `id, post_id, position, name, payload, created_at, updated_at`

func scanRecord(row pgx.Row) (*blocks.Record, error) {
	var rec blocks.Record
	if err := row.Scan(&rec.ID, &rec.PostID, &rec.Position, &rec.Name, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func getRecord(ctx context.Context, db DBTX, collection string, id uuid.UUID, lock bool) (*blocks.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, t)
	if lock {
		query += ` FOR UPDATE`
	}
	rec, err := scanRecord(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blocks.ErrBlockNotFound
		}
		return nil, handlePostgresError("get record", err)
	}
	return rec, nil
}

func (r *Repository) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	return getRecord(ctx, r.db, collection, id, false)
}

// ListRecords reads every collection inside one repeatable-read transaction
// so the result reflects a single snapshot.
func (r *Repository) ListRecords(ctx context.Context, postID uuid.UUID, collections []string) (map[string][]*blocks.Record, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, handlePostgresError("list records", err)
	}
	defer tx.Rollback(ctx)

	out := make(map[string][]*blocks.Record, len(collections))
	for _, c := range collections {
		t, err := table(c)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE post_id = $1 ORDER BY position`, recordColumns, t)
		rows, err := tx.Query(ctx, query, postID)
		if err != nil {
			return nil, handlePostgresError("list records", err)
		}
		recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*blocks.Record, error) {
			return scanRecord(row)
		})
		if err != nil {
			return nil, handlePostgresError("list records", err)
		}
		out[c] = recs
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, handlePostgresError("list records", err)
	}
	return out, nil
}

func (r *Repository) WithTx(ctx context.Context, postID uuid.UUID, fn func(tx blocks.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &blocks.TxError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return blocks.ErrPostNotFound
		}
		return blocks.AbortTx("lock post", handlePostgresError("lock post", err))
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return blocks.AbortTx("write", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return &blocks.TxError{Op: "commit", Err: err}
	}
	return nil
}

// pgTx implements blocks.Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	return getRecord(ctx, t.tx, collection, id, true)
}

func (t *pgTx) CountRecords(ctx context.Context, collection string, postID uuid.UUID) (int, error) {
	tbl, err := table(collection)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE post_id = $1`, tbl), postID).Scan(&n)
	if err != nil {
		return 0, handlePostgresError("count records", err)
	}
	return n, nil
}

func (t *pgTx) ListSlots(ctx context.Context, collection string, postID uuid.UUID) ([]blocks.Slot, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`SELECT id, position FROM %s WHERE post_id = $1 ORDER BY position`, tbl), postID)
	if err != nil {
		return nil, handlePostgresError("list slots", err)
	}
	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (blocks.Slot, error) {
		var s blocks.Slot
		err := row.Scan(&s.ID, &s.Position)
		return s, err
	})
	if err != nil {
		return nil, handlePostgresError("list slots", err)
	}
	return slots, nil
}

func (t *pgTx) InsertRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, post_id, position, name, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, tbl)
	_, err = t.tx.Exec(ctx, query, rec.ID, rec.PostID, rec.Position, rec.Name, rec.Data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return handlePostgresError("insert record", err)
	}
	return nil
}

func (t *pgTx) UpdateRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $2, payload = $3, updated_at = $4 WHERE id = $1`, tbl)
	tag, err := t.tx.Exec(ctx, query, rec.ID, rec.Name, rec.Data, rec.UpdatedAt)
	if err != nil {
		return handlePostgresError("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return blocks.ErrBlockNotFound
	}
	return nil
}

func (t *pgTx) DeleteRecord(ctx context.Context, collection string, id uuid.UUID) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return blocks.ErrBlockNotFound
	}
	return nil
}

func (t *pgTx) SetPosition(ctx context.Context, collection string, id uuid.UUID, position int) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET position = $2 WHERE id = $1`, tbl), id, position)
	if err != nil {
		return handlePostgresError("set position", err)
	}
	if tag.RowsAffected() == 0 {
		return blocks.ErrBlockNotFound
	}
	return nil
}

func (t *pgTx) ShiftPositions(ctx context.Context, collection string, postID uuid.UUID, from, delta int) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET position = position + $3 WHERE post_id = $1 AND position >= $2`, tbl)
	if _, err := t.tx.Exec(ctx, query, postID, from, delta); err != nil {
		return handlePostgresError("shift positions", err)
	}
	return nil
}
