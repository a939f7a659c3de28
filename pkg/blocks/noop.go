package blocks

import (
	"context"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) BlockCreated(ctx context.Context, block *Block) error {
	return nil
}

func (n *NoopEventSink) BlockUpdated(ctx context.Context, block *Block) error {
	return nil
}

func (n *NoopEventSink) BlockDeleted(ctx context.Context, postID uuid.UUID, ref BlockRef) error {
	return nil
}

func (n *NoopEventSink) BlocksReordered(ctx context.Context, postID uuid.UUID) error {
	return nil
}
