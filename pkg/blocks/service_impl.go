package blocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	registry   *Registry
	positions  *PositionManager
	analyzer   *Analyzer
	eventSink  EventSink
	media      MediaStore
	logger     *slog.Logger
	now        func() time.Time

	wordsPerMinute  int
	secondsPerAsset int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithRegistry replaces the default variant registry
func WithRegistry(registry *Registry) Option {
	return func(s *service) {
		s.registry = registry
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithMediaStore sets the media collaborator used to check and resolve file references
func WithMediaStore(media MediaStore) Option {
	return func(s *service) {
		s.media = media
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithWordsPerMinute sets the reading speed used by content analysis
func WithWordsPerMinute(wpm int) Option {
	return func(s *service) {
		s.wordsPerMinute = wpm
	}
}

// WithSecondsPerAsset sets the viewing time credited to each embedded media item
func WithSecondsPerAsset(seconds int) Option {
	return func(s *service) {
		s.secondsPerAsset = seconds
	}
}

// WithClock overrides the time source for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:       NewNoopEventSink(),
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		wordsPerMinute:  DefaultWordsPerMinute,
		secondsPerAsset: DefaultSecondsPerAsset,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if err := s.registry.Check(); err != nil {
		return nil, err
	}
	if s.wordsPerMinute <= 0 {
		return nil, fmt.Errorf("words per minute must be positive, got %d", s.wordsPerMinute)
	}
	if s.secondsPerAsset < 0 {
		return nil, fmt.Errorf("seconds per asset must not be negative, got %d", s.secondsPerAsset)
	}

	s.positions = NewPositionManager(s.registry)
	s.analyzer = NewAnalyzer(s.registry, s, s.wordsPerMinute, s.secondsPerAsset)
	return s, nil
}

func (s *service) Registry() *Registry {
	return s.registry
}

// prepared is a validated, encoded create request.
type prepared struct {
	handler VariantHandler
	input   CreateBlockInput
	data    []byte
}

func (s *service) prepare(ctx context.Context, in CreateBlockInput) (*prepared, error) {
	h, err := s.registry.Resolve(in.Kind)
	if err != nil {
		return nil, err
	}
	if in.Payload == nil {
		return nil, invalid(in.Kind, "payload", "payload is required")
	}
	if err := h.Prepare(in.Payload); err != nil {
		return nil, err
	}
	if err := s.checkMedia(ctx, h, in.Payload); err != nil {
		return nil, err
	}
	data, err := h.Encode(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", in.Kind, err)
	}
	return &prepared{handler: h, input: in, data: data}, nil
}

func (s *service) checkMedia(ctx context.Context, h VariantHandler, p Payload) error {
	if s.media == nil {
		return nil
	}
	for _, ref := range h.FileRefs(p) {
		if _, err := s.media.Stat(ctx, ref); err != nil {
			if errors.Is(err, ErrMediaNotFound) {
				return invalid(h.Kind(), "file_id", fmt.Sprintf("file %q does not exist", ref))
			}
			return fmt.Errorf("stat media file %s: %w", ref, err)
		}
	}
	return nil
}

// insert writes one prepared block, shifting later blocks when it lands
// mid-sequence. next is the post's current block count.
func (s *service) insert(ctx context.Context, tx Tx, postID uuid.UUID, p *prepared, next int) (*Block, error) {
	position := next
	if p.input.Position != nil {
		position = *p.input.Position
		if position < next {
			if err := s.positions.ShiftForInsertAt(ctx, tx, postID, position); err != nil {
				return nil, err
			}
		}
	}
	now := s.now()
	rec := &Record{
		ID:        uuid.New(),
		PostID:    postID,
		Position:  position,
		Name:      p.input.Name,
		Data:      p.data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertRecord(ctx, p.handler.Collection(), rec); err != nil {
		return nil, fmt.Errorf("insert %s block: %w", p.input.Kind, err)
	}
	return &Block{
		ID:        rec.ID,
		PostID:    postID,
		Kind:      p.input.Kind,
		Position:  position,
		Name:      rec.Name,
		Payload:   p.input.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// checkPositions rejects explicit positions outside 0..N for each insert of a
// batch, N growing by one per insert.
func checkPositions(items []*prepared, next int) error {
	for i, p := range items {
		if p.input.Position == nil {
			continue
		}
		if pos := *p.input.Position; pos < 0 || pos > next+i {
			return invalid(p.input.Kind, "position", fmt.Sprintf("position %d is outside 0..%d", pos, next+i))
		}
	}
	return nil
}

func (s *service) CreateBlock(ctx context.Context, postID uuid.UUID, in CreateBlockInput) (*Block, error) {
	p, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	var created *Block
	err = s.repository.WithTx(ctx, postID, func(tx Tx) error {
		next, err := s.positions.NextPosition(ctx, tx, postID)
		if err != nil {
			return err
		}
		if err := checkPositions([]*prepared{p}, next); err != nil {
			return err
		}
		created, err = s.insert(ctx, tx, postID, p, next)
		return err
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("create", postID, err)
		return nil, err
	}

	s.emit(ctx, "block_created", func(sink EventSink) error { return sink.BlockCreated(ctx, created) })
	return created, nil
}

func (s *service) ReadBlock(ctx context.Context, blockID uuid.UUID, kind Kind) (*Block, error) {
	h, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}
	return cached(ctx, cacheKey("read_block", kind, blockID), func() (*Block, error) {
		rec, err := s.repository.GetRecord(ctx, h.Collection(), blockID)
		if err != nil {
			return nil, &BlockError{BlockID: blockID, Kind: kind, Op: "read", Err: err}
		}
		return s.toBlock(h, rec)
	})
}

func (s *service) UpdateBlock(ctx context.Context, blockID uuid.UUID, kind Kind, in UpdateBlockInput) (*Block, error) {
	h, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}
	existing, err := s.repository.GetRecord(ctx, h.Collection(), blockID)
	if err != nil {
		return nil, &BlockError{BlockID: blockID, Kind: kind, Op: "update", Err: err}
	}

	var updated *Block
	err = s.repository.WithTx(ctx, existing.PostID, func(tx Tx) error {
		rec, err := tx.GetRecord(ctx, h.Collection(), blockID)
		if err != nil {
			return err
		}
		payload, err := h.Decode(rec.Data)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(in.Patch)) > 0 {
			merged, err := mergePatch(rec.Data, in.Patch)
			if err != nil {
				return invalid(kind, "patch", err.Error())
			}
			if payload, err = h.Decode(merged); err != nil {
				return invalid(kind, "patch", err.Error())
			}
			if err := h.Prepare(payload); err != nil {
				return err
			}
			if err := s.checkMedia(ctx, h, payload); err != nil {
				return err
			}
			if rec.Data, err = h.Encode(payload); err != nil {
				return err
			}
		}
		if in.Name != nil {
			rec.Name = *in.Name
		}
		rec.UpdatedAt = s.now()
		if err := tx.UpdateRecord(ctx, h.Collection(), rec); err != nil {
			return err
		}
		updated = &Block{
			ID:        rec.ID,
			PostID:    rec.PostID,
			Kind:      kind,
			Position:  rec.Position,
			Name:      rec.Name,
			Payload:   payload,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		return nil
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("update", existing.PostID, err)
		return nil, &BlockError{BlockID: blockID, Kind: kind, Op: "update", Err: err}
	}

	s.emit(ctx, "block_updated", func(sink EventSink) error { return sink.BlockUpdated(ctx, updated) })
	return updated, nil
}

func (s *service) DeleteBlock(ctx context.Context, blockID uuid.UUID, kind Kind) error {
	h, err := s.registry.Resolve(kind)
	if err != nil {
		return err
	}
	existing, err := s.repository.GetRecord(ctx, h.Collection(), blockID)
	if err != nil {
		return &BlockError{BlockID: blockID, Kind: kind, Op: "delete", Err: err}
	}

	err = s.repository.WithTx(ctx, existing.PostID, func(tx Tx) error {
		rec, err := tx.GetRecord(ctx, h.Collection(), blockID)
		if err != nil {
			return err
		}
		if err := tx.DeleteRecord(ctx, h.Collection(), blockID); err != nil {
			return err
		}
		return s.positions.ShiftForRemovalAt(ctx, tx, rec.PostID, rec.Position)
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("delete", existing.PostID, err)
		return &BlockError{BlockID: blockID, Kind: kind, Op: "delete", Err: err}
	}

	ref := BlockRef{ID: blockID, Kind: kind}
	s.emit(ctx, "block_deleted", func(sink EventSink) error { return sink.BlockDeleted(ctx, existing.PostID, ref) })
	return nil
}

func (s *service) CreateBlocksInPost(ctx context.Context, postID uuid.UUID, inputs []CreateBlockInput) ([]*Block, error) {
	items := make([]*prepared, 0, len(inputs))
	for i, in := range inputs {
		p, err := s.prepare(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		items = append(items, p)
	}

	created := make([]*Block, 0, len(items))
	err := s.repository.WithTx(ctx, postID, func(tx Tx) error {
		next, err := s.positions.NextPosition(ctx, tx, postID)
		if err != nil {
			return err
		}
		if err := checkPositions(items, next); err != nil {
			return err
		}
		for i, p := range items {
			b, err := s.insert(ctx, tx, postID, p, next+i)
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			created = append(created, b)
		}
		return nil
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("create_bulk", postID, err)
		return nil, err
	}

	for _, b := range created {
		b := b
		s.emit(ctx, "block_created", func(sink EventSink) error { return sink.BlockCreated(ctx, b) })
	}
	return created, nil
}

func (s *service) DeleteBlocksInPost(ctx context.Context, refs []BlockRef) error {
	refs = uniqueRefs(refs)
	if len(refs) == 0 {
		return nil
	}

	postID := uuid.Nil
	for _, ref := range refs {
		h, err := s.registry.Resolve(ref.Kind)
		if err != nil {
			return err
		}
		rec, err := s.repository.GetRecord(ctx, h.Collection(), ref.ID)
		if err != nil {
			return &BlockError{BlockID: ref.ID, Kind: ref.Kind, Op: "delete", Err: err}
		}
		if postID == uuid.Nil {
			postID = rec.PostID
		} else if rec.PostID != postID {
			return invalid("", "refs", "blocks belong to more than one post")
		}
	}

	err := s.repository.WithTx(ctx, postID, func(tx Tx) error {
		for _, ref := range refs {
			h, err := s.registry.Resolve(ref.Kind)
			if err != nil {
				return err
			}
			if _, err := tx.GetRecord(ctx, h.Collection(), ref.ID); err != nil {
				return &BlockError{BlockID: ref.ID, Kind: ref.Kind, Op: "delete", Err: err}
			}
			if err := tx.DeleteRecord(ctx, h.Collection(), ref.ID); err != nil {
				return &BlockError{BlockID: ref.ID, Kind: ref.Kind, Op: "delete", Err: err}
			}
		}
		return s.positions.Compact(ctx, tx, postID)
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("delete_bulk", postID, err)
		return err
	}

	for _, ref := range refs {
		ref := ref
		s.emit(ctx, "block_deleted", func(sink EventSink) error { return sink.BlockDeleted(ctx, postID, ref) })
	}
	return nil
}

func (s *service) MoveBlocks(ctx context.Context, moves []Move) error {
	if len(moves) == 0 {
		return nil
	}

	postID := uuid.Nil
	targets := make(map[int]bool, len(moves))
	for _, m := range moves {
		h, err := s.registry.Resolve(m.Kind)
		if err != nil {
			return err
		}
		if m.NewPosition < 0 || m.NewPosition >= len(moves) {
			return fmt.Errorf("%w: position %d is outside 0..%d", ErrIncompleteReorder, m.NewPosition, len(moves)-1)
		}
		if targets[m.NewPosition] {
			return fmt.Errorf("%w: position %d requested twice", ErrIncompleteReorder, m.NewPosition)
		}
		targets[m.NewPosition] = true
		if postID != uuid.Nil {
			continue
		}
		rec, err := s.repository.GetRecord(ctx, h.Collection(), m.BlockID)
		switch {
		case err == nil:
			postID = rec.PostID
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	if postID == uuid.Nil {
		return fmt.Errorf("%w: none of the blocks exist", ErrIncompleteReorder)
	}

	sorted := make([]Move, len(moves))
	copy(sorted, moves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NewPosition < sorted[j].NewPosition })
	ordered := make([]BlockRef, len(sorted))
	for i, m := range sorted {
		ordered[i] = BlockRef{ID: m.BlockID, Kind: m.Kind}
	}

	err := s.repository.WithTx(ctx, postID, func(tx Tx) error {
		return s.positions.Reindex(ctx, tx, postID, ordered)
	})
	invalidateRequestCache(ctx)
	if err != nil {
		s.logFailure("move", postID, err)
		return err
	}

	s.emit(ctx, "blocks_reordered", func(sink EventSink) error { return sink.BlocksReordered(ctx, postID) })
	return nil
}

func (s *service) GetBlocksByPostID(ctx context.Context, postID uuid.UUID) ([]*Block, error) {
	return cached(ctx, cacheKey("blocks_by_post", postID), func() ([]*Block, error) {
		if _, err := s.repository.GetPost(ctx, postID); err != nil {
			return nil, err
		}
		return s.listBlocks(ctx, postID)
	})
}

func (s *service) GetBlocksBySlug(ctx context.Context, slug string) ([]*Block, error) {
	return cached(ctx, cacheKey("blocks_by_slug", slug), func() ([]*Block, error) {
		post, err := s.repository.GetPostBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		return s.listBlocks(ctx, post.ID)
	})
}

func (s *service) AnalyzeContent(ctx context.Context, postID uuid.UUID) (*ContentAnalysis, error) {
	return s.analyzer.Analyze(ctx, postID)
}

func (s *service) MediaURLs(ctx context.Context, block *Block) (map[string]string, error) {
	urls := map[string]string{}
	if s.media == nil || block == nil {
		return urls, nil
	}
	h, err := s.registry.Resolve(block.Kind)
	if err != nil {
		return nil, err
	}
	for _, ref := range h.FileRefs(block.Payload) {
		u, err := s.media.URL(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve media file %s: %w", ref, err)
		}
		urls[ref] = u
	}
	return urls, nil
}

// listBlocks queries every collection independently and interleaves the
// position-ordered results by position.
func (s *service) listBlocks(ctx context.Context, postID uuid.UUID) ([]*Block, error) {
	kinds := s.registry.Kinds()
	collections := make([]string, len(kinds))
	handlers := make([]VariantHandler, len(kinds))
	for i, k := range kinds {
		h, err := s.registry.Resolve(k)
		if err != nil {
			return nil, err
		}
		handlers[i] = h
		collections[i] = h.Collection()
	}

	lists, err := s.repository.ListRecords(ctx, postID, collections)
	if err != nil {
		return nil, err
	}

	heads := make([][]*Record, len(handlers))
	total := 0
	for i, h := range handlers {
		heads[i] = lists[h.Collection()]
		total += len(heads[i])
	}

	out := make([]*Block, 0, total)
	for len(out) < total {
		best := -1
		for i, recs := range heads {
			if len(recs) == 0 {
				continue
			}
			if best < 0 || recs[0].Position < heads[best][0].Position {
				best = i
			}
		}
		rec := heads[best][0]
		heads[best] = heads[best][1:]
		b, err := s.toBlock(handlers[best], rec)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *service) toBlock(h VariantHandler, rec *Record) (*Block, error) {
	payload, err := h.Decode(rec.Data)
	if err != nil {
		return nil, &BlockError{BlockID: rec.ID, Kind: h.Kind(), Op: "decode", Err: err}
	}
	return &Block{
		ID:        rec.ID,
		PostID:    rec.PostID,
		Kind:      h.Kind(),
		Position:  rec.Position,
		Name:      rec.Name,
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *service) emit(ctx context.Context, event string, fire func(EventSink) error) {
	if s.eventSink == nil {
		return
	}
	if err := fire(s.eventSink); err != nil {
		s.logger.WarnContext(ctx, "event delivery failed", "event", event, "error", err)
	}
}

func (s *service) logFailure(op string, postID uuid.UUID, err error) {
	if errors.Is(err, ErrTransactionFailure) {
		s.logger.Error("block transaction failed", "op", op, "post_id", postID, "error", err)
		return
	}
	s.logger.Debug("block operation rejected", "op", op, "post_id", postID, "error", err)
}

func uniqueRefs(refs []BlockRef) []BlockRef {
	seen := make(map[BlockRef]bool, len(refs))
	out := make([]BlockRef, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
