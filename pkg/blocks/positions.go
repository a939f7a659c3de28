package blocks

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// PositionManager keeps every post's block positions a permutation of 0..N-1
// across all variant collections. All methods run inside the caller's
// transaction.
type PositionManager struct {
	registry *Registry
}

// NewPositionManager creates a position manager over the registry's collections.
func NewPositionManager(registry *Registry) *PositionManager {
	return &PositionManager{registry: registry}
}

// NextPosition returns the number of blocks the post currently has.
func (m *PositionManager) NextPosition(ctx context.Context, tx Tx, postID uuid.UUID) (int, error) {
	total := 0
	for _, c := range m.registry.Collections() {
		n, err := tx.CountRecords(ctx, c, postID)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", c, err)
		}
		total += n
	}
	return total, nil
}

// ShiftForInsertAt moves every block at or after target one place down.
func (m *PositionManager) ShiftForInsertAt(ctx context.Context, tx Tx, postID uuid.UUID, target int) error {
	return m.shift(ctx, tx, postID, target, 1)
}

// ShiftForRemovalAt closes the gap left by a block removed from removed.
func (m *PositionManager) ShiftForRemovalAt(ctx context.Context, tx Tx, postID uuid.UUID, removed int) error {
	return m.shift(ctx, tx, postID, removed+1, -1)
}

func (m *PositionManager) shift(ctx context.Context, tx Tx, postID uuid.UUID, from, delta int) error {
	for _, c := range m.registry.Collections() {
		if err := tx.ShiftPositions(ctx, c, postID, from, delta); err != nil {
			return fmt.Errorf("shift %s: %w", c, err)
		}
	}
	return nil
}

// Reindex writes positions 0..N-1 following ordered. ordered must name the
// post's entire block set exactly once; otherwise ErrIncompleteReorder is
// returned before anything is written.
func (m *PositionManager) Reindex(ctx context.Context, tx Tx, postID uuid.UUID, ordered []BlockRef) error {
	current, err := m.slots(ctx, tx, postID)
	if err != nil {
		return err
	}
	if len(ordered) != len(current) {
		return fmt.Errorf("%w: got %d blocks, post has %d", ErrIncompleteReorder, len(ordered), len(current))
	}
	known := make(map[BlockRef]int, len(current))
	for _, s := range current {
		known[s.ref] = s.Position
	}
	seen := make(map[BlockRef]bool, len(ordered))
	for _, ref := range ordered {
		if _, ok := known[ref]; !ok {
			return fmt.Errorf("%w: %s block %s is not in the post", ErrIncompleteReorder, ref.Kind, ref.ID)
		}
		if seen[ref] {
			return fmt.Errorf("%w: %s block %s listed twice", ErrIncompleteReorder, ref.Kind, ref.ID)
		}
		seen[ref] = true
	}
	for i, ref := range ordered {
		if known[ref] == i {
			continue
		}
		if err := m.setPosition(ctx, tx, ref, i); err != nil {
			return err
		}
	}
	return nil
}

// Compact renumbers the post's blocks to 0..N-1, keeping their current order.
func (m *PositionManager) Compact(ctx context.Context, tx Tx, postID uuid.UUID) error {
	current, err := m.slots(ctx, tx, postID)
	if err != nil {
		return err
	}
	for i, s := range current {
		if s.Position == i {
			continue
		}
		if err := m.setPosition(ctx, tx, s.ref, i); err != nil {
			return err
		}
	}
	return nil
}

type refSlot struct {
	Slot
	ref BlockRef
}

// slots returns every block of the post across collections, by position.
func (m *PositionManager) slots(ctx context.Context, tx Tx, postID uuid.UUID) ([]refSlot, error) {
	var out []refSlot
	for _, k := range m.registry.Kinds() {
		h, err := m.registry.Resolve(k)
		if err != nil {
			return nil, err
		}
		slots, err := tx.ListSlots(ctx, h.Collection(), postID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", h.Collection(), err)
		}
		for _, s := range slots {
			out = append(out, refSlot{Slot: s, ref: BlockRef{ID: s.ID, Kind: k}})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *PositionManager) setPosition(ctx context.Context, tx Tx, ref BlockRef, position int) error {
	h, err := m.registry.Resolve(ref.Kind)
	if err != nil {
		return err
	}
	if err := tx.SetPosition(ctx, h.Collection(), ref.ID, position); err != nil {
		return fmt.Errorf("set position of %s block %s: %w", ref.Kind, ref.ID, err)
	}
	return nil
}
