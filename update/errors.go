package update

import "errors"

// Errors
var (
	ErrNoStorageBackend = errors.New("update: no storage backend")
	ErrAllocationFailed = errors.New("update: allocation failed")
	ErrWriteFailed      = errors.New("update: write failed")
	ErrCommitFailed     = errors.New("update: commit failed")
)

// ErrorKind classifies why a session failed.
type ErrorKind uint8

const (
	ErrNone ErrorKind = iota
	NoStorageBackend
	AllocationFailed
	WriteFailed
	CommitFailed
)

// String returns the error kind name
func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case NoStorageBackend:
		return "no-storage-backend"
	case AllocationFailed:
		return "allocation-failed"
	case WriteFailed:
		return "write-failed"
	case CommitFailed:
		return "commit-failed"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for the kind, nil for ErrNone.
func (k ErrorKind) Err() error {
	switch k {
	case NoStorageBackend:
		return ErrNoStorageBackend
	case AllocationFailed:
		return ErrAllocationFailed
	case WriteFailed:
		return ErrWriteFailed
	case CommitFailed:
		return ErrCommitFailed
	default:
		return nil
	}
}
