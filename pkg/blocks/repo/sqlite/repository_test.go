package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blocks/pkg/blocks"
	"github.com/tendant/simple-blocks/pkg/blocks/repo/sqlite"
)

func newTestRepository(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, _ := newTestRepositoryAt(t)
	return repo
}

func newTestRepositoryAt(t *testing.T) (*sqlite.Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.db")
	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background(), blocks.DefaultRegistry().Collections()))
	return repo, path
}

func TestRepository_Posts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	post := &blocks.Post{Slug: "first", Title: "First", AuthorID: uuid.New()}
	require.NoError(t, repo.CreatePost(ctx, post))

	got, err := repo.GetPostBySlug(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, post.AuthorID, got.AuthorID)
	assert.Equal(t, blocks.PostStatusDraft, got.Status)

	_, err = repo.GetPost(ctx, uuid.New())
	assert.ErrorIs(t, err, blocks.ErrPostNotFound)

	assert.Error(t, repo.CreatePost(ctx, &blocks.Post{Slug: "first"}))
}

func TestRepository_Service(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	post := &blocks.Post{Slug: "sqlite-post"}
	require.NoError(t, repo.CreatePost(ctx, post))

	svc, err := blocks.New(blocks.WithRepository(repo))
	require.NoError(t, err)

	created, err := svc.CreateBlocksInPost(ctx, post.ID, []blocks.CreateBlockInput{
		{Kind: blocks.KindText, Payload: &blocks.TextPayload{Body: "one two three"}},
		{Kind: blocks.KindList, Payload: &blocks.ListPayload{Items: []blocks.ListItem{{Text: "four"}, {Text: "five"}}}},
		{Kind: blocks.KindHeading, Payload: &blocks.HeadingPayload{Text: "six", Level: 2}},
	})
	require.NoError(t, err)

	t.Run("ReadBack", func(t *testing.T) {
		b, err := svc.ReadBlock(ctx, created[1].ID, blocks.KindList)
		require.NoError(t, err)
		list := b.Payload.(*blocks.ListPayload)
		assert.Equal(t, "bullet", list.Style)
		assert.Len(t, list.Items, 2)
		assert.Equal(t, 1, b.Position)
	})

	t.Run("Move", func(t *testing.T) {
		err := svc.MoveBlocks(ctx, []blocks.Move{
			{BlockID: created[2].ID, Kind: blocks.KindHeading, NewPosition: 0},
			{BlockID: created[0].ID, Kind: blocks.KindText, NewPosition: 1},
			{BlockID: created[1].ID, Kind: blocks.KindList, NewPosition: 2},
		})
		require.NoError(t, err)

		list, err := svc.GetBlocksByPostID(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, created[2].ID, list[0].ID)
		assert.Equal(t, created[0].ID, list[1].ID)
	})

	t.Run("Analyze", func(t *testing.T) {
		analysis, err := svc.AnalyzeContent(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, analysis.WordCount)
		assert.Equal(t, 1, analysis.ReadingTimeMinutes)
	})

	t.Run("DeleteClosesGap", func(t *testing.T) {
		require.NoError(t, svc.DeleteBlock(ctx, created[2].ID, blocks.KindHeading))
		list, err := svc.GetBlocksByPostID(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, 0, list[0].Position)
		assert.Equal(t, 1, list[1].Position)
	})

	t.Run("MissingPost", func(t *testing.T) {
		_, err := svc.CreateBlock(ctx, uuid.New(), blocks.CreateBlockInput{Kind: blocks.KindText, Payload: &blocks.TextPayload{Body: "x"}})
		assert.ErrorIs(t, err, blocks.ErrPostNotFound)
	})
}

// failingInsertRepo lets shifts through but fails every insert, so a
// mid-sequence create aborts after it has moved later blocks.
type failingInsertRepo struct {
	*sqlite.Repository
}

func (r failingInsertRepo) WithTx(ctx context.Context, postID uuid.UUID, fn func(tx blocks.Tx) error) error {
	return r.Repository.WithTx(ctx, postID, func(tx blocks.Tx) error {
		return fn(failingInsertTx{tx})
	})
}

type failingInsertTx struct {
	blocks.Tx
}

func (failingInsertTx) InsertRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	return errors.New("disk I/O error")
}

func TestRepository_RolledBackShift(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	post := &blocks.Post{Slug: "rollback"}
	require.NoError(t, repo.CreatePost(ctx, post))

	svc, err := blocks.New(blocks.WithRepository(repo))
	require.NoError(t, err)
	created, err := svc.CreateBlocksInPost(ctx, post.ID, []blocks.CreateBlockInput{
		{Kind: blocks.KindText, Payload: &blocks.TextPayload{Body: "a"}},
		{Kind: blocks.KindHeading, Payload: &blocks.HeadingPayload{Text: "b", Level: 2}},
		{Kind: blocks.KindText, Payload: &blocks.TextPayload{Body: "c"}},
	})
	require.NoError(t, err)

	failing, err := blocks.New(blocks.WithRepository(failingInsertRepo{repo}))
	require.NoError(t, err)

	at := 1
	_, err = failing.CreateBlock(ctx, post.ID, blocks.CreateBlockInput{
		Kind: blocks.KindQuote, Position: &at, Payload: &blocks.QuotePayload{Text: "never stored"},
	})
	assert.ErrorIs(t, err, blocks.ErrTransactionFailure)

	list, err := svc.GetBlocksByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, b := range list {
		assert.Equal(t, created[i].ID, b.ID)
		assert.Equal(t, i, b.Position)
	}
}

func TestRepository_CorruptTimestamp(t *testing.T) {
	repo, path := newTestRepositoryAt(t)
	ctx := context.Background()

	post := &blocks.Post{Slug: "corrupt"}
	require.NoError(t, repo.CreatePost(ctx, post))
	svc, err := blocks.New(blocks.WithRepository(repo))
	require.NoError(t, err)
	block, err := svc.CreateBlock(ctx, post.ID, blocks.CreateBlockInput{Kind: blocks.KindText, Payload: &blocks.TextPayload{Body: "x"}})
	require.NoError(t, err)

	raw, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE text_blocks SET created_at = 'yesterday' WHERE id = ?`, block.ID.String())
	require.NoError(t, err)

	_, err = repo.GetRecord(ctx, "text_blocks", block.ID)
	assert.ErrorContains(t, err, "invalid timestamp")
}
