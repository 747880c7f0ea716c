package types

import (
	"errors"
	"fmt"
)

// Lookup errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidID       = errors.New("invalid object id")
	ErrUnknownProperty = errors.New("unknown relation property")
	ErrInvalidMapping  = errors.New("invalid mapping")
	ErrUnknownKind     = errors.New("unknown collection kind")
)

// End-point state errors. ErrPrecondition and ErrInconsistentState signal a
// caller bug; retrying the same call will fail the same way.
var (
	ErrSyncRequired      = errors.New("synchronization required")
	ErrPrecondition      = errors.New("precondition violated")
	ErrInconsistentState = errors.New("inconsistent end-point state")
	ErrAlreadyComplete   = errors.New("end-point data is already complete")
	ErrReadOnly          = errors.New("scope is read-only while a child scope is open")
)

// Store lifecycle errors.
var (
	ErrDetached        = errors.New("store is not attached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Collection content errors.
var (
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrDuplicateObject       = errors.New("object is already in the collection")
	ErrObjectNotInCollection = errors.New("object is not in the collection")
	ErrItemClassMismatch     = errors.New("object class does not match collection item class")
)

// SyncError reports a mutation refused because the object is out of sync
// with its foreign-key end-point. It unwraps to ErrSyncRequired.
type SyncError struct {
	Property  string
	ObjectID  ObjectID
	Operation string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("cannot %s object %s in property %s: the object is out of sync with the collection, call Synchronize first",
		e.Operation, e.ObjectID, e.Property)
}

func (e *SyncError) Unwrap() error { return ErrSyncRequired }
