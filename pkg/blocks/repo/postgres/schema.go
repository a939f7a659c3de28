package postgres

import (
	"context"
	"fmt"
	"strings"
)

const postsDDL = `
CREATE TABLE IF NOT EXISTS posts (
	id         uuid PRIMARY KEY,
	slug       text NOT NULL,
	title      text NOT NULL DEFAULT '',
	author_id  uuid NOT NULL,
	status     text NOT NULL DEFAULT 'draft',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT posts_slug_key UNIQUE (slug)
)`

// Schema returns the DDL for the posts table and one table per collection.
// Positions are not unique per table: a post's sequence spans all of them.
func Schema(collections []string) ([]string, error) {
	stmts := []string{strings.TrimSpace(postsDDL)}
	for _, c := range collections {
		t, err := table(c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         uuid PRIMARY KEY,
	post_id    uuid NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
	position   integer NOT NULL CHECK (position >= 0),
	name       text NOT NULL DEFAULT '',
	payload    jsonb NOT NULL,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_post_position_idx ON %s (post_id, position)`, t, t),
		)
	}
	return stmts, nil
}

// Migrate creates any missing tables for the given collections.
func (r *Repository) Migrate(ctx context.Context, collections []string) error {
	stmts, err := Schema(collections)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return handlePostgresError("migrate", err)
		}
	}
	return nil
}
