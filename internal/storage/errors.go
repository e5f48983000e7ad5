package storage

import "errors"

// Sentinel errors shared by the storage adapters, surfaced up through the
// universe manager and coordinator per spec §7.
var (
	// ErrPermissionDenied means the host refused file-handle access and
	// re-requesting permission did not recover it.
	ErrPermissionDenied = errors.New("storage: permission denied")
	// ErrHandleStale means a FileHandle no longer resolves to a readable
	// file (moved, deleted, or from a prior process).
	ErrHandleStale = errors.New("storage: file handle is stale")
	// ErrNotAvailable means the slot has no backing configured (no linked
	// repo, no picked file) and the operation cannot proceed.
	ErrNotAvailable = errors.New("storage: slot not available")
	// ErrConflict means a Git write was rejected because the remote ref
	// moved since the adapter last read it (spec §4.3 conflict policy).
	ErrConflict = errors.New("storage: conflicting remote update")
	// ErrQuotaExceeded means a BrowserKV write exceeded the store's
	// capacity even after evicting older entries.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)
