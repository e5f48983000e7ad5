// Package localfile implements the storage.LocalFile slot on top of the
// regular filesystem, standing in for the browser File System Access API
// the spec describes: PickForCreate/PickForOpen become directory-scoped
// path resolution, and permission query/request become plain os.Stat
// reachability checks since there is no OS-level file picker permission
// model in a headless server process.
package localfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redstring/core/internal/kv"
	"github.com/redstring/core/internal/storage"
)

const (
	bucketHandles = "localfile_handles"
	bucketRecent  = "localfile_recent"
	maxRecent     = 10
)

// handle is the concrete storage.FileHandle for this adapter: just a
// path, with a stable id for recent-files bookkeeping.
type handle struct {
	id   string
	path string
}

// recentRecord is the stored shape for one recent-files entry, ordered
// by LastUsed rather than by the random id it's keyed under.
type recentRecord struct {
	Path     string    `json:"path"`
	LastUsed time.Time `json:"lastUsed"`
}

func (h handle) ID() string   { return h.id }
func (h handle) Path() string { return h.path }

// Adapter resolves PickForCreate/PickForOpen against a single directory
// root, mirroring the "preferred directory" the spec's host API
// remembers across picker invocations.
type Adapter struct {
	mu        sync.Mutex
	store     *kv.Store
	preferDir string
}

// New builds a localfile adapter persisting its recent-file list and
// preferred directory through store. An empty preferredDir falls back to
// the directory last saved by SetPreferredDirectory.
func New(store *kv.Store, preferredDir string) *Adapter {
	if preferredDir == "" {
		if raw, ok, err := store.Get(bucketHandles, "preferred_dir"); err == nil && ok {
			preferredDir = string(raw)
		}
	}
	return &Adapter{store: store, preferDir: preferredDir}
}

// PreferredDirectory returns the directory new picks resolve relative to.
func (a *Adapter) PreferredDirectory() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preferDir
}

// SetPreferredDirectory updates the directory used for future picks and
// persists it so it survives a restart.
func (a *Adapter) SetPreferredDirectory(dir string) error {
	a.mu.Lock()
	a.preferDir = dir
	a.mu.Unlock()
	return a.store.Put(bucketHandles, "preferred_dir", []byte(dir))
}

// PickForCreate resolves suggestedName against the preferred directory
// and registers it as a recent file. It does not create the file on
// disk; Write does that on first use.
func (a *Adapter) PickForCreate(ctx context.Context, suggestedName string) (storage.FileHandle, error) {
	a.mu.Lock()
	dir := a.preferDir
	a.mu.Unlock()
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("localfile: resolve working directory: %w", err)
		}
	}
	h := handle{id: uuid.NewString(), path: filepath.Join(dir, suggestedName)}
	if err := a.rememberRecent(h); err != nil {
		return nil, err
	}
	return h, nil
}

// PickForOpen returns the most recently used handle that still resolves
// to a readable file, matching the spec's "remembered handle" open flow
// in a headless process with no interactive picker.
func (a *Adapter) PickForOpen(ctx context.Context) (storage.FileHandle, error) {
	recents, err := a.RecentFiles()
	if err != nil {
		return nil, err
	}
	for _, h := range recents {
		if _, err := os.Stat(h.Path()); err == nil {
			return h, nil
		}
	}
	return nil, storage.ErrNotAvailable
}

// Read loads the handle's file contents.
func (a *Adapter) Read(ctx context.Context, h storage.FileHandle) (string, error) {
	lh, ok := h.(handle)
	if !ok {
		return "", storage.ErrHandleStale
	}
	b, err := os.ReadFile(lh.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", storage.ErrHandleStale
	}
	if err != nil {
		return "", fmt.Errorf("localfile: read %s: %w", lh.path, err)
	}
	return string(b), nil
}

// Write persists text to the handle's path, creating parent directories
// as needed, and refreshes its recent-files entry.
func (a *Adapter) Write(ctx context.Context, h storage.FileHandle, text string) error {
	lh, ok := h.(handle)
	if !ok {
		return storage.ErrHandleStale
	}
	if dir := filepath.Dir(lh.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("localfile: create directory for %s: %w", lh.path, err)
		}
	}
	if err := os.WriteFile(lh.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("localfile: write %s: %w", lh.path, err)
	}
	return a.rememberRecent(lh)
}

// QueryPermission reports whether the handle's file is currently
// reachable without attempting to repair access.
func (a *Adapter) QueryPermission(ctx context.Context, h storage.FileHandle) (bool, error) {
	lh, ok := h.(handle)
	if !ok {
		return false, storage.ErrHandleStale
	}
	_, err := os.Stat(lh.path)
	return err == nil, nil
}

// RequestPermission re-probes reachability. There is no OS consent
// dialog to show in a headless process, so this is equivalent to
// QueryPermission, returning storage.ErrPermissionDenied only when the
// parent directory itself is inaccessible.
func (a *Adapter) RequestPermission(ctx context.Context, h storage.FileHandle) (bool, error) {
	lh, ok := h.(handle)
	if !ok {
		return false, storage.ErrHandleStale
	}
	if _, err := os.Stat(lh.path); err == nil {
		return true, nil
	}
	dir := filepath.Dir(lh.path)
	if _, err := os.Stat(dir); err != nil {
		return false, storage.ErrPermissionDenied
	}
	return false, nil
}

func (a *Adapter) rememberRecent(h handle) error {
	raw, err := json.Marshal(recentRecord{Path: h.path, LastUsed: time.Now()})
	if err != nil {
		return fmt.Errorf("localfile: encode recent-file record: %w", err)
	}
	if err := a.store.Put(bucketRecent, h.id, raw); err != nil {
		return err
	}
	return a.evictOldestRecent()
}

// evictOldestRecent drops the least-recently-used entries once the
// recent-files list grows past maxRecent.
func (a *Adapter) evictOldestRecent() error {
	ids, records, err := a.listRecent()
	if err != nil {
		return err
	}
	if len(ids) <= maxRecent {
		return nil
	}
	type keyed struct {
		id string
		recentRecord
	}
	all := make([]keyed, len(ids))
	for i, id := range ids {
		all[i] = keyed{id: id, recentRecord: records[i]}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastUsed.Before(all[j].LastUsed) })
	for _, victim := range all[:len(all)-maxRecent] {
		if err := a.store.Delete(bucketRecent, victim.id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) listRecent() ([]string, []recentRecord, error) {
	raws, err := a.store.List(bucketRecent)
	if err != nil {
		return nil, nil, fmt.Errorf("localfile: list recent files: %w", err)
	}
	ids := make([]string, 0, len(raws))
	records := make([]recentRecord, 0, len(raws))
	for _, r := range raws {
		var rec recentRecord
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			continue
		}
		ids = append(ids, r.Key)
		records = append(records, rec)
	}
	return ids, records, nil
}

// RecentFiles returns up to maxRecent previously picked handles, most
// recently used first per spec §9's bounded MRU list.
func (a *Adapter) RecentFiles() ([]storage.FileHandle, error) {
	ids, records, err := a.listRecent()
	if err != nil {
		return nil, err
	}
	type keyed struct {
		id string
		recentRecord
	}
	all := make([]keyed, len(ids))
	for i, id := range ids {
		all[i] = keyed{id: id, recentRecord: records[i]}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastUsed.After(all[j].LastUsed) })
	if len(all) > maxRecent {
		all = all[:maxRecent]
	}
	out := make([]storage.FileHandle, 0, len(all))
	for _, r := range all {
		out = append(out, handle{id: r.id, path: r.Path})
	}
	return out, nil
}
