package natsevents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/tendant/simple-blocks/pkg/blocks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const DefaultSubjectPrefix = "blocks"

// Event types, appended to the subject prefix.
const (
	EventBlockCreated    = "block.created"
	EventBlockUpdated    = "block.updated"
	EventBlockDeleted    = "block.deleted"
	EventBlocksReordered = "blocks.reordered"
)

// MsgPublisher is the part of *nats.Conn the sink uses.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// BlockEvent is the JSON body published for every block change.
type BlockEvent struct {
	Type       string      `json:"type"`
	PostID     uuid.UUID   `json:"post_id"`
	BlockID    *uuid.UUID  `json:"block_id,omitempty"`
	Kind       blocks.Kind `json:"kind,omitempty"`
	Position   *int        `json:"position,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Sink publishes block lifecycle events to NATS. It implements blocks.EventSink.
type Sink struct {
	nc     MsgPublisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a sink publishing under prefix (DefaultSubjectPrefix when empty).
func New(nc MsgPublisher, prefix string, logger *slog.Logger) *Sink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{nc: nc, prefix: prefix, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Subject returns the full subject for an event type.
func (s *Sink) Subject(eventType string) string {
	return s.prefix + "." + eventType
}

func (s *Sink) BlockCreated(ctx context.Context, block *blocks.Block) error {
	return s.publish(ctx, blockEvent(EventBlockCreated, block))
}

func (s *Sink) BlockUpdated(ctx context.Context, block *blocks.Block) error {
	return s.publish(ctx, blockEvent(EventBlockUpdated, block))
}

func (s *Sink) BlockDeleted(ctx context.Context, postID uuid.UUID, ref blocks.BlockRef) error {
	id := ref.ID
	return s.publish(ctx, BlockEvent{Type: EventBlockDeleted, PostID: postID, BlockID: &id, Kind: ref.Kind})
}

func (s *Sink) BlocksReordered(ctx context.Context, postID uuid.UUID) error {
	return s.publish(ctx, BlockEvent{Type: EventBlocksReordered, PostID: postID})
}

func blockEvent(eventType string, b *blocks.Block) BlockEvent {
	id, pos := b.ID, b.Position
	return BlockEvent{Type: eventType, PostID: b.PostID, BlockID: &id, Kind: b.Kind, Position: &pos}
}

func (s *Sink) publish(ctx context.Context, event BlockEvent) error {
	event.OccurredAt = s.now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: s.Subject(event.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	// carry the caller's trace context to subscribers
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	s.logger.DebugContext(ctx, "publishing block event", "subject", msg.Subject, "post_id", event.PostID)
	return s.nc.PublishMsg(msg)
}
