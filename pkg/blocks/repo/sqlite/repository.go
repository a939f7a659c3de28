package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-blocks/pkg/blocks"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Repository implements blocks.Repository on an embedded SQLite file. Each
// collection is a table; payloads are stored as JSON text.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file at path. Use ":memory:" for a
// private in-process database.
func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" shared
	db.SetMaxOpenConns(1)

	return &Repository{db: db}, nil
}

// Ping checks the database file can be opened and queried.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func table(collection string) (string, error) {
	if !identifier.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return collection, nil
}

// Migrate creates the posts table and one table per collection.
func (r *Repository) Migrate(ctx context.Context, collections []string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			slug       TEXT NOT NULL UNIQUE,
			title      TEXT NOT NULL DEFAULT '',
			author_id  TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'draft',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, c := range collections {
		t, err := table(c)
		if err != nil {
			return err
		}
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			post_id    TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_post_position_idx ON %s(post_id, position)`, t, t),
		)
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) CreatePost(ctx context.Context, post *blocks.Post) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.Status == "" {
		post.Status = blocks.PostStatusDraft
	}
	now := time.Now().UTC()
	post.CreatedAt, post.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, slug, title, author_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID.String(), post.Slug, post.Title, post.AuthorID.String(), string(post.Status),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("post slug already exists")
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*blocks.Post, error) {
	return r.scanPost(ctx, "id = ?", id.String())
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*blocks.Post, error) {
	return r.scanPost(ctx, "slug = ?", slug)
}

func (r *Repository) scanPost(ctx context.Context, where string, arg any) (*blocks.Post, error) {
	var post blocks.Post
	var id, authorID, status, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, title, author_id, status, created_at, updated_at FROM posts WHERE `+where, arg,
	).Scan(&id, &post.Slug, &post.Title, &authorID, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, blocks.ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if post.AuthorID, err = uuid.Parse(authorID); err != nil {
		return nil, err
	}
	post.Status = blocks.PostStatus(status)
	if post.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if post.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &post, nil
}

const recordColumns = `id, post_id, position, name, payload, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*blocks.Record, error) {
	var rec blocks.Record
	var id, postID, payload, createdAt, updatedAt string
	if err := row.Scan(&id, &postID, &rec.Position, &rec.Name, &payload, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.PostID, err = uuid.Parse(postID); err != nil {
		return nil, err
	}
	rec.Data = []byte(payload)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func getRecord(ctx context.Context, q queryer, collection string, id uuid.UUID) (*blocks.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, t), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, blocks.ErrBlockNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	return getRecord(ctx, r.db, collection, id)
}

// ListRecords reads all collections in one read transaction.
func (r *Repository) ListRecords(ctx context.Context, postID uuid.UUID, collections []string) (map[string][]*blocks.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	out := make(map[string][]*blocks.Record, len(collections))
	for _, c := range collections {
		t, err := table(c)
		if err != nil {
			return nil, err
		}
		recs, err := listRecords(ctx, tx, t, postID)
		if err != nil {
			return nil, err
		}
		out[c] = recs
	}
	return out, tx.Commit()
}

func listRecords(ctx context.Context, q queryer, t string, postID uuid.UUID) ([]*blocks.Record, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE post_id = ? ORDER BY position`, recordColumns, t), postID.String())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	defer rows.Close()

	var recs []*blocks.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *Repository) WithTx(ctx context.Context, postID uuid.UUID, fn func(tx blocks.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &blocks.TxError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, postID.String()).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return blocks.ErrPostNotFound
		}
		return &blocks.TxError{Op: "lock post", Err: err}
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return blocks.AbortTx("write", err)
	}
	if err := tx.Commit(); err != nil {
		return &blocks.TxError{Op: "commit", Err: err}
	}
	return nil
}

// sqliteTx implements blocks.Tx. The single connection serializes writers.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	return getRecord(ctx, t.tx, collection, id)
}

func (t *sqliteTx) CountRecords(ctx context.Context, collection string, postID uuid.UUID) (int, error) {
	tbl, err := table(collection)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE post_id = ?`, tbl), postID.String()).Scan(&n)
	return n, err
}

func (t *sqliteTx) ListSlots(ctx context.Context, collection string, postID uuid.UUID) ([]blocks.Slot, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`SELECT id, position FROM %s WHERE post_id = ? ORDER BY position`, tbl), postID.String())
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []blocks.Slot
	for rows.Next() {
		var id string
		var s blocks.Slot
		if err := rows.Scan(&id, &s.Position); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (t *sqliteTx) InsertRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)`, tbl, recordColumns),
		rec.ID.String(), rec.PostID.String(), rec.Position, rec.Name, string(rec.Data),
		rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (t *sqliteTx) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return blocks.ErrBlockNotFound
	}
	return nil
}

func (t *sqliteTx) UpdateRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	return t.exec(ctx, "update record",
		fmt.Sprintf(`UPDATE %s SET name = ?, payload = ?, updated_at = ? WHERE id = ?`, tbl),
		rec.Name, string(rec.Data), rec.UpdatedAt.UTC().Format(timeLayout), rec.ID.String())
}

func (t *sqliteTx) DeleteRecord(ctx context.Context, collection string, id uuid.UUID) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	return t.exec(ctx, "delete record", fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tbl), id.String())
}

func (t *sqliteTx) SetPosition(ctx context.Context, collection string, id uuid.UUID, position int) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	return t.exec(ctx, "set position", fmt.Sprintf(`UPDATE %s SET position = ? WHERE id = ?`, tbl), position, id.String())
}

func (t *sqliteTx) ShiftPositions(ctx context.Context, collection string, postID uuid.UUID, from, delta int) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET position = position + ? WHERE post_id = ? AND position >= ?`, tbl),
		delta, postID.String(), from)
	if err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	return nil
}
