package blocks

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrValidation indicates a payload or request failed its variant schema
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a post or block is absent
	ErrNotFound = errors.New("not found")

	// ErrPostNotFound indicates a post was not found
	ErrPostNotFound = fmt.Errorf("post %w", ErrNotFound)

	// ErrBlockNotFound indicates a block was not found
	ErrBlockNotFound = fmt.Errorf("block %w", ErrNotFound)

	// ErrUnknownVariant indicates a kind tag with no registered handler
	ErrUnknownVariant = errors.New("unknown block variant")

	// ErrIncompleteReorder indicates a reorder set that does not match the post's blocks
	ErrIncompleteReorder = errors.New("reorder set does not match the post's blocks")

	// ErrTransactionFailure indicates the backing store aborted a transaction
	ErrTransactionFailure = errors.New("transaction failed")

	// ErrMediaNotFound indicates the media collaborator has no such file
	ErrMediaNotFound = errors.New("media file not found")
)

// ValidationError describes why a payload or request was rejected.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Kind != "" && e.Field != "":
		return fmt.Sprintf("validation failed for %s block: field %s: %s", e.Kind, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation failed: field %s: %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(kind Kind, field, reason string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}

// BlockError represents an error related to block operations
type BlockError struct {
	BlockID uuid.UUID
	Kind    Kind
	Op      string
	Err     error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block operation %s failed for %s block %s: %v", e.Op, e.Kind, e.BlockID, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// TxError wraps a store failure that aborted a transaction. It is surfaced
// as-is; the engine never retries.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

func (e *TxError) Is(target error) bool {
	return target == ErrTransactionFailure
}

// engineErrors pass through AbortTx unchanged.
var engineErrors = []error{ErrValidation, ErrNotFound, ErrUnknownVariant, ErrIncompleteReorder, ErrTransactionFailure}

// AbortTx classifies the error that ended a store transaction. Engine errors
// are returned unchanged; any other failure is wrapped in a *TxError so
// callers can match ErrTransactionFailure. Stores call it from WithTx.
func AbortTx(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range engineErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return &TxError{Op: op, Err: err}
}
