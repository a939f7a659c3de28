package blocks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence needed by the engine. Every variant
// collection is addressed by the name its handler reports.
type Repository interface {
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*Post, error)

	// GetRecord returns a single record or ErrBlockNotFound.
	GetRecord(ctx context.Context, collection string, id uuid.UUID) (*Record, error)

	// ListRecords returns, for each collection, the post's records ordered by
	// position. All collections are read from one consistent snapshot.
	ListRecords(ctx context.Context, postID uuid.UUID, collections []string) (map[string][]*Record, error)

	// WithTx runs fn in a single store transaction scoped to postID. The post is
	// locked against concurrent writers for the duration of the call. It fails
	// with ErrPostNotFound when the post does not exist. Any error returned by
	// fn rolls the transaction back. Engine errors from fn come back unchanged;
	// store failures and commit failures surface as *TxError (see AbortTx).
	WithTx(ctx context.Context, postID uuid.UUID, fn func(tx Tx) error) error
}

// Tx is the write view of a Repository inside WithTx.
type Tx interface {
	GetRecord(ctx context.Context, collection string, id uuid.UUID) (*Record, error)
	CountRecords(ctx context.Context, collection string, postID uuid.UUID) (int, error)
	// ListSlots returns the post's ids and positions in collection, ascending.
	ListSlots(ctx context.Context, collection string, postID uuid.UUID) ([]Slot, error)
	InsertRecord(ctx context.Context, collection string, rec *Record) error
	// UpdateRecord writes name, data and updated_at. Position is left alone.
	UpdateRecord(ctx context.Context, collection string, rec *Record) error
	DeleteRecord(ctx context.Context, collection string, id uuid.UUID) error
	SetPosition(ctx context.Context, collection string, id uuid.UUID, position int) error
	// ShiftPositions adds delta to every position >= from for the post.
	ShiftPositions(ctx context.Context, collection string, postID uuid.UUID, from, delta int) error
}

// EventSink defines the interface for event handling. Events fire after the
// transaction commits; sink errors never fail the operation.
type EventSink interface {
	BlockCreated(ctx context.Context, block *Block) error
	BlockUpdated(ctx context.Context, block *Block) error
	BlockDeleted(ctx context.Context, postID uuid.UUID, ref BlockRef) error
	BlocksReordered(ctx context.Context, postID uuid.UUID) error
}

// MediaStore is the narrow view of the media service used for file-bearing
// blocks. The engine stores file identifiers only and never touches bytes.
type MediaStore interface {
	// Stat returns ErrMediaNotFound when the file does not exist.
	Stat(ctx context.Context, fileID string) (*MediaInfo, error)
	// URL returns a (possibly signed) read URL for the file.
	URL(ctx context.Context, fileID string) (string, error)
}

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	FileID      string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}
