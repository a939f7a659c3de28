package blocks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the immutable variant tag of a block.
type Kind string

const (
	KindText      Kind = "text"
	KindImages    Kind = "images"
	KindVideo     Kind = "video"
	KindQuote     Kind = "quote"
	KindCallout   Kind = "callout"
	KindCode      Kind = "code"
	KindTable     Kind = "table"
	KindTwitter   Kind = "twitter"
	KindInstagram Kind = "instagram"
	KindChart     Kind = "chart"
	KindPolling   Kind = "polling"
	KindHeading   Kind = "heading"
	KindList      Kind = "list"
)

var allKinds = []Kind{
	KindText, KindImages, KindVideo, KindQuote, KindCallout, KindCode, KindTable,
	KindTwitter, KindInstagram, KindChart, KindPolling, KindHeading, KindList,
}

// AllKinds returns the fixed enumeration of block kinds in canonical order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// PostStatus represents the publication state of a post
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// Post is the aggregate root owning a set of blocks. The engine never creates
// or deletes posts; it only checks they exist.
type Post struct {
	ID        uuid.UUID  `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Status    PostStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Block is one typed unit of content belonging to a post.
type Block struct {
	ID        uuid.UUID `json:"id"`
	PostID    uuid.UUID `json:"post_id"`
	Kind      Kind      `json:"kind"`
	Position  int       `json:"position"`
	Name      string    `json:"name,omitempty"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the reference identifying this block.
func (b *Block) Ref() BlockRef {
	return BlockRef{ID: b.ID, Kind: b.Kind}
}

// BlockRef identifies a block. The kind is part of the identity because every
// variant lives in its own collection.
type BlockRef struct {
	ID   uuid.UUID `json:"id"`
	Kind Kind      `json:"kind"`
}

// Move requests a block to take a new place in its post's ordering.
type Move struct {
	BlockID     uuid.UUID `json:"block_id"`
	Kind        Kind      `json:"kind"`
	NewPosition int       `json:"new_position"`
}

// CreateBlockInput contains parameters for creating a block
type CreateBlockInput struct {
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Position *int    `json:"position,omitempty"` // nil appends
	Payload  Payload `json:"payload"`
}

// UpdateBlockInput contains parameters for updating a block.
// Patch is a JSON merge patch (RFC 7386) applied to the stored payload.
type UpdateBlockInput struct {
	Name  *string         `json:"name,omitempty"`
	Patch json.RawMessage `json:"patch,omitempty"`
}

// ContentAnalysis holds derived, read-only metrics of a post's blocks.
type ContentAnalysis struct {
	PostID             uuid.UUID    `json:"post_id"`
	WordCount          int          `json:"word_count"`
	ReadingTimeMinutes int          `json:"reading_time_minutes"`
	MediaSeconds       int          `json:"media_seconds"`
	BlockCounts        map[Kind]int `json:"block_counts"`
	TotalBlocks        int          `json:"total_blocks"`
}

// Record is the persisted shape of a block inside its variant collection.
// Repositories store Data opaquely; only variant handlers interpret it.
type Record struct {
	ID        uuid.UUID
	PostID    uuid.UUID
	Position  int
	Name      string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a block's id and position within one collection.
type Slot struct {
	ID       uuid.UUID
	Position int
}
