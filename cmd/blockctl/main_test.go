package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blocks/pkg/blocks"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBlockctl_SQLiteFlow(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "blocks.db"))
	t.Setenv("MEDIA_URL", "none")

	out, err := run(t, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "Database sqlite is reachable")

	out, err = run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated 13 block collections")

	out, err = run(t, "post", "create", "--slug", "hello", "--title", "Hello")
	require.NoError(t, err)
	var post blocks.Post
	require.NoError(t, json.Unmarshal([]byte(out), &post))
	assert.Equal(t, "hello", post.Slug)
	assert.Equal(t, blocks.PostStatusDraft, post.Status)

	out, err = run(t, "list", "--slug", "hello")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = run(t, "analyze", post.ID.String())
	require.NoError(t, err)
	var analysis blocks.ContentAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, 0, analysis.WordCount)
	assert.Equal(t, 1, analysis.ReadingTimeMinutes)
}

func TestBlockctl_ArgumentErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory")

	_, err := run(t, "list")
	assert.Error(t, err)

	_, err = run(t, "analyze", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid post id")

	_, err = run(t, "post", "create")
	assert.Error(t, err)
}

func TestBlockctl_PingUnreachablePostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://blocks@localhost:badport/blocks")

	_, err := run(t, "ping")
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = run(t, "migrate")
	assert.Error(t, err)
}
