package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-blocks/pkg/blocks"
)

// Repository implements blocks.Repository using in-memory storage. A
// transaction holds the store-wide write lock and works on a copy of its
// post's records, which replaces the live records only on commit.
type Repository struct {
	mu          sync.RWMutex
	posts       map[uuid.UUID]*blocks.Post
	postsBySlug map[string]uuid.UUID
	records     map[uuid.UUID]postRecords // post id -> collection -> block id
	owners      map[uuid.UUID]uuid.UUID   // block id -> post id

	// failCommit, when set, makes the next commit fail. Used by tests.
	failCommit error
}

// postRecords is one post's blocks, by collection and block id.
type postRecords map[string]map[uuid.UUID]*blocks.Record

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		posts:       make(map[uuid.UUID]*blocks.Post),
		postsBySlug: make(map[string]uuid.UUID),
		records:     make(map[uuid.UUID]postRecords),
		owners:      make(map[uuid.UUID]uuid.UUID),
	}
}

// CreatePost stores a post. Posts are owned by the post-management
// collaborator; the engine only reads them.
func (r *Repository) CreatePost(ctx context.Context, post *blocks.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Status == "" {
		post.Status = blocks.PostStatusDraft
	}

	postCopy := *post
	r.posts[post.ID] = &postCopy
	if post.Slug != "" {
		r.postsBySlug[post.Slug] = post.ID
	}
	return nil
}

// DeletePost removes a post and cascades to its blocks, as the owning
// component would.
func (r *Repository) DeletePost(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return blocks.ErrPostNotFound
	}
	delete(r.posts, id)
	delete(r.postsBySlug, post.Slug)
	for _, coll := range r.records[id] {
		for recID := range coll {
			delete(r.owners, recID)
		}
	}
	delete(r.records, id)
	return nil
}

// FailNextCommit makes the next transaction commit fail with err.
func (r *Repository) FailNextCommit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCommit = err
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*blocks.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, blocks.ErrPostNotFound
	}
	postCopy := *post
	return &postCopy, nil
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*blocks.Post, error) {
	r.mu.RLock()
	id, ok := r.postsBySlug[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, blocks.ErrPostNotFound
	}
	return r.GetPost(ctx, id)
}

func (r *Repository) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getRecord(collection, id)
}

func (r *Repository) getRecord(collection string, id uuid.UUID) (*blocks.Record, error) {
	rec, ok := r.records[r.owners[id]][collection][id]
	if !ok {
		return nil, blocks.ErrBlockNotFound
	}
	return copyRecord(rec), nil
}

func (r *Repository) ListRecords(ctx context.Context, postID uuid.UUID, collections []string) (map[string][]*blocks.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]*blocks.Record, len(collections))
	for _, c := range collections {
		var recs []*blocks.Record
		for _, rec := range r.records[postID][c] {
			recs = append(recs, copyRecord(rec))
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Position < recs[j].Position })
		out[c] = recs
	}
	return out, nil
}

func (r *Repository) WithTx(ctx context.Context, postID uuid.UUID, fn func(tx blocks.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[postID]; !ok {
		return blocks.ErrPostNotFound
	}

	tx := &memTx{repo: r, postID: postID, records: r.records[postID].clone()}
	if err := fn(tx); err != nil {
		return blocks.AbortTx("memory", err)
	}
	if err := ctx.Err(); err != nil {
		return &blocks.TxError{Op: "commit", Err: err}
	}
	if r.failCommit != nil {
		err := r.failCommit
		r.failCommit = nil
		return &blocks.TxError{Op: "commit", Err: err}
	}
	r.commit(postID, tx.records)
	return nil
}

// commit swaps in the staged records of one post. Caller holds mu.
func (r *Repository) commit(postID uuid.UUID, staged postRecords) {
	for _, coll := range r.records[postID] {
		for id := range coll {
			delete(r.owners, id)
		}
	}
	for _, coll := range staged {
		for id := range coll {
			r.owners[id] = postID
		}
	}
	r.records[postID] = staged
}

// memTx is the staged state of one transaction. Writes are limited to the
// post the transaction is scoped to; other posts are read from the live store.
type memTx struct {
	repo    *Repository
	postID  uuid.UUID
	records postRecords
}

func (t *memTx) coll(name string) map[uuid.UUID]*blocks.Record {
	c, ok := t.records[name]
	if !ok {
		c = make(map[uuid.UUID]*blocks.Record)
		t.records[name] = c
	}
	return c
}

// view returns the records of postID in collection as seen by this transaction.
func (t *memTx) view(collection string, postID uuid.UUID) map[uuid.UUID]*blocks.Record {
	if postID == t.postID {
		return t.records[collection]
	}
	return t.repo.records[postID][collection]
}

func (t *memTx) checkScope(postID uuid.UUID) error {
	if postID != t.postID {
		return fmt.Errorf("post %s is outside the transaction scoped to post %s", postID, t.postID)
	}
	return nil
}

func (t *memTx) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*blocks.Record, error) {
	if rec, ok := t.records[collection][id]; ok {
		return copyRecord(rec), nil
	}
	if owner, ok := t.repo.owners[id]; ok && owner != t.postID {
		return t.repo.getRecord(collection, id)
	}
	return nil, blocks.ErrBlockNotFound
}

func (t *memTx) CountRecords(ctx context.Context, collection string, postID uuid.UUID) (int, error) {
	return len(t.view(collection, postID)), nil
}

func (t *memTx) ListSlots(ctx context.Context, collection string, postID uuid.UUID) ([]blocks.Slot, error) {
	var slots []blocks.Slot
	for _, rec := range t.view(collection, postID) {
		slots = append(slots, blocks.Slot{ID: rec.ID, Position: rec.Position})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })
	return slots, nil
}

func (t *memTx) InsertRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	if err := t.checkScope(rec.PostID); err != nil {
		return err
	}
	t.coll(collection)[rec.ID] = copyRecord(rec)
	return nil
}

func (t *memTx) UpdateRecord(ctx context.Context, collection string, rec *blocks.Record) error {
	existing, ok := t.records[collection][rec.ID]
	if !ok {
		return blocks.ErrBlockNotFound
	}
	existing.Name = rec.Name
	existing.Data = append([]byte(nil), rec.Data...)
	existing.UpdatedAt = rec.UpdatedAt
	return nil
}

func (t *memTx) DeleteRecord(ctx context.Context, collection string, id uuid.UUID) error {
	if _, ok := t.records[collection][id]; !ok {
		return blocks.ErrBlockNotFound
	}
	delete(t.records[collection], id)
	return nil
}

func (t *memTx) SetPosition(ctx context.Context, collection string, id uuid.UUID, position int) error {
	rec, ok := t.records[collection][id]
	if !ok {
		return blocks.ErrBlockNotFound
	}
	rec.Position = position
	return nil
}

func (t *memTx) ShiftPositions(ctx context.Context, collection string, postID uuid.UUID, from, delta int) error {
	if err := t.checkScope(postID); err != nil {
		return err
	}
	for _, rec := range t.records[collection] {
		if rec.Position >= from {
			rec.Position += delta
		}
	}
	return nil
}

func copyRecord(rec *blocks.Record) *blocks.Record {
	recCopy := *rec
	recCopy.Data = append([]byte(nil), rec.Data...)
	return &recCopy
}

func (p postRecords) clone() postRecords {
	out := make(postRecords, len(p))
	for name, coll := range p {
		c := make(map[uuid.UUID]*blocks.Record, len(coll))
		for id, rec := range coll {
			c[id] = copyRecord(rec)
		}
		out[name] = c
	}
	return out
}
