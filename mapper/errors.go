package mapper

import (
	"errors"
	"fmt"

	"github.com/jacentio/tessera/internal/keytmpl"
)

var (
	// ErrDuplicateConnection is returned when Connect is called on an
	// already-connected Connection.
	ErrDuplicateConnection = errors.New("tessera: connection already established")

	// ErrNotConnected is returned when operations are attempted before Connect.
	ErrNotConnected = errors.New("tessera: connection not established")

	// ErrInvalidWriteItem is returned for a write transaction item that is not
	// exactly one of Create, Update or Delete.
	ErrInvalidWriteItem = errors.New("tessera: invalid write transaction item")

	// ErrInvalidReadItem is returned for a read transaction item that is not a Get.
	ErrInvalidReadItem = errors.New("tessera: invalid read transaction item")

	// ErrTransactionTooLarge is returned when the fully resolved operation list
	// exceeds the store's per-transaction item limit.
	ErrTransactionTooLarge = errors.New("tessera: transaction exceeds item limit")

	// ErrComposerFinalized is returned when a single-use composer is reused.
	ErrComposerFinalized = errors.New("tessera: composer already finalized")

	// ErrNotFound is returned when an item required by the operation does not exist.
	ErrNotFound = errors.New("tessera: item not found")

	// ErrUniqueConstraint is returned when a conditional lock-record write fails,
	// meaning another item already holds the unique value.
	ErrUniqueConstraint = errors.New("tessera: unique constraint violated")

	// ErrConditionFailed is returned when a caller-supplied condition on the
	// main operation fails.
	ErrConditionFailed = errors.New("tessera: condition check failed")

	// ErrKeyAttributeUpdate is returned when an update body modifies an
	// attribute that participates in the primary key.
	ErrKeyAttributeUpdate = errors.New("tessera: cannot update a primary key attribute")
)

// UnknownEntityError is returned by registry lookups for entity names that
// were never declared.
type UnknownEntityError struct {
	Entity string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("tessera: unknown entity %q", e.Entity)
}

// MissingAttributeError is returned when a key template references an
// attribute absent from the supplied values.
type MissingAttributeError = keytmpl.MissingAttributeError

// SchemaError is returned when registry construction fails. It identifies the
// offending entity and wraps the underlying cause.
type SchemaError struct {
	Entity string
	Cause  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tessera: invalid schema for entity %q: %v", e.Entity, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }
