package blocks

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface of the block content engine. Callers are
// expected to have authorized {postID, action} before calling; the engine does
// no identity checks of its own.
type Service interface {
	// Single block operations
	CreateBlock(ctx context.Context, postID uuid.UUID, in CreateBlockInput) (*Block, error)
	ReadBlock(ctx context.Context, blockID uuid.UUID, kind Kind) (*Block, error)
	UpdateBlock(ctx context.Context, blockID uuid.UUID, kind Kind, in UpdateBlockInput) (*Block, error)
	DeleteBlock(ctx context.Context, blockID uuid.UUID, kind Kind) error

	// Bulk operations
	CreateBlocksInPost(ctx context.Context, postID uuid.UUID, inputs []CreateBlockInput) ([]*Block, error)
	DeleteBlocksInPost(ctx context.Context, refs []BlockRef) error
	MoveBlocks(ctx context.Context, moves []Move) error

	// Ordered reads
	GetBlocksByPostID(ctx context.Context, postID uuid.UUID) ([]*Block, error)
	GetBlocksBySlug(ctx context.Context, slug string) ([]*Block, error)

	// Analysis
	AnalyzeContent(ctx context.Context, postID uuid.UUID) (*ContentAnalysis, error)

	// MediaURLs resolves read URLs for the block's file references through the
	// media collaborator. It returns an empty map when none is configured.
	MediaURLs(ctx context.Context, block *Block) (map[string]string, error)

	Registry() *Registry
}
