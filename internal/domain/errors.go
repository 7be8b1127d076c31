package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by catalog operations on an absent original_id.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateIdentity matches every DuplicateIdentityError via errors.Is.
	ErrDuplicateIdentity = errors.New("duplicate original_id")
	// ErrSessionBusy is returned when the browser session is used by two callers at once.
	ErrSessionBusy = errors.New("browser session already in use")
	// ErrBatchRunning is returned when a scrape batch is started while another runs.
	ErrBatchRunning = errors.New("a scrape batch is already running")
	// ErrMirrorMissing is returned when the mirror file has never been written.
	ErrMirrorMissing = errors.New("mirror spreadsheet does not exist")
)

// DuplicateIdentityError rejects a create, rename or import row whose
// original_id already exists.
type DuplicateIdentityError struct {
	OriginalID string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("product with original_id %q already exists", e.OriginalID)
}

func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}

// ValidationError reports a field that breaks a Product invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SessionStartError means the browser could not be launched. It aborts a batch.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("start browser session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// SyncWriteError means the mirror could not be regenerated. The catalog
// mutation that triggered it stands.
type SyncWriteError struct {
	Path string
	Err  error
}

func (e *SyncWriteError) Error() string {
	return fmt.Sprintf("write mirror %s: %v", e.Path, e.Err)
}

func (e *SyncWriteError) Unwrap() error {
	return e.Err
}
