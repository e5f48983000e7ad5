// Package storage defines the three narrow storage-slot interfaces
// (spec §4.2) that the Universe Manager fans saves out to and loads from.
// Concrete adapters live in the localfile, gitrepo and browserkv
// subpackages.
package storage

import "context"

// FileHandle is an opaque, session-scoped token identifying a
// previously-picked local file. The Manager persists only its presence
// and last-known path (spec §9); the handle itself never survives a
// process restart.
type FileHandle interface {
	// ID is a stable identifier for this handle within the adapter that
	// issued it, used as the key in the adapter's recent-files store.
	ID() string
	// Path is the last-known filesystem path, for display purposes only.
	Path() string
}

// LocalFile is the host File System Access-shaped local slot.
type LocalFile interface {
	PickForCreate(ctx context.Context, suggestedName string) (FileHandle, error)
	PickForOpen(ctx context.Context) (FileHandle, error)
	Read(ctx context.Context, h FileHandle) (string, error)
	Write(ctx context.Context, h FileHandle, text string) error
	QueryPermission(ctx context.Context, h FileHandle) (granted bool, err error)
	RequestPermission(ctx context.Context, h FileHandle) (granted bool, err error)
}

// GitRepoConfig identifies where in a repository a universe document
// lives (spec §3 gitRepo, §6 Git layout).
type GitRepoConfig struct {
	LinkedRepo    string // "user/repo"
	SchemaPath    string
	UniverseFolder string
	UniverseFile  string
}

// GitRepo is the Git-backed slot in direct mode (a REST provider, spec
// §4.2). Engine mode does not go through this interface: the Manager
// calls a registered internal/sync Engine directly.
type GitRepo interface {
	Read(ctx context.Context, cfg GitRepoConfig) (string, error)
	Write(ctx context.Context, cfg GitRepoConfig, text string) error
	IsAvailable(ctx context.Context) bool
}

// BrowserKV is the capacity-aware local key/value slot standing in for
// IndexedDB (spec §4.2, §11).
type BrowserKV interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key string, text string) error
}
