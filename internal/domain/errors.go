package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. Callers match them with errors.Is.
var (
	// ErrNotAvailable means upstream has no data for the requested timestamp.
	ErrNotAvailable = errors.New("product not available")
	// ErrRemote means the transport call to the upstream API did not succeed.
	ErrRemote = errors.New("remote api error")
	// ErrRetrievalFailed is terminal: the retry budget is exhausted.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrProcessing covers malformed grids or geometries and unclassifiable files.
	ErrProcessing = errors.New("processing error")
	// ErrUnsupportedFormat is a processing error for a format the kind cannot be written as.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrStorage covers payload upload failures, including partial sidecar uploads.
	ErrStorage = errors.New("storage error")
	// ErrCatalog covers failures while registering a catalog record.
	ErrCatalog = errors.New("catalog registration error")
	// ErrLockTimeout means a partition lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrInvalidArgument marks caller input that failed validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDenied marks a rejected credential.
	ErrDenied = errors.New("access denied")
)

// RetrievalError reports a product that could not be retrieved within the retry budget.
type RetrievalError struct {
	Product  string
	DateTime time.Time
	Attempts int
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s at %s: failed after %d attempt(s): %v",
		e.Product, formatDateTime(e.DateTime), e.Attempts, e.Err)
}

func (e *RetrievalError) Unwrap() []error { return []error{ErrRetrievalFailed, e.Err} }

// ProcessingError reports a failure normalizing an artifact.
type ProcessingError struct {
	Product  string
	DateTime time.Time
	Path     string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process %s at %s (%s): %v", e.Product, formatDateTime(e.DateTime), e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() []error { return []error{ErrProcessing, e.Err} }

// StorageError reports a payload that could not be uploaded.
type StorageError struct {
	Path string
	URI  string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload %s to %s: %v", e.Path, e.URI, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// CatalogError reports a catalog record that could not be registered. The
// payload it describes may already be stored.
type CatalogError struct {
	URI string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("register catalog %s: %v", e.URI, e.Err)
}

func (e *CatalogError) Unwrap() []error { return []error{ErrCatalog, e.Err} }

// Invalid wraps a validation message as an ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "latest"
	}
	return t.UTC().Format(time.RFC3339)
}
