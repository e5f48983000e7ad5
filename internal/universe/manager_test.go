package universe

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/redstring/core/internal/codec"
	"github.com/redstring/core/internal/kv"
	"github.com/redstring/core/internal/state"
	"github.com/redstring/core/internal/storage"
)

type fakeHandle string

func (h fakeHandle) ID() string   { return string(h) }
func (h fakeHandle) Path() string { return string(h) }

type fakeLocal struct {
	files map[string]string
}

func newFakeLocal() *fakeLocal { return &fakeLocal{files: make(map[string]string)} }

func (f *fakeLocal) PickForCreate(ctx context.Context, suggestedName string) (storage.FileHandle, error) {
	return fakeHandle(suggestedName), nil
}
func (f *fakeLocal) PickForOpen(ctx context.Context) (storage.FileHandle, error) {
	for name := range f.files {
		return fakeHandle(name), nil
	}
	return nil, storage.ErrNotAvailable
}
func (f *fakeLocal) Read(ctx context.Context, h storage.FileHandle) (string, error) {
	text, ok := f.files[h.ID()]
	if !ok {
		return "", storage.ErrHandleStale
	}
	return text, nil
}
func (f *fakeLocal) Write(ctx context.Context, h storage.FileHandle, text string) error {
	f.files[h.ID()] = text
	return nil
}
func (f *fakeLocal) QueryPermission(ctx context.Context, h storage.FileHandle) (bool, error) {
	return true, nil
}
func (f *fakeLocal) RequestPermission(ctx context.Context, h storage.FileHandle) (bool, error) {
	return true, nil
}

type fakeGit struct {
	docs     map[string]string
	writeErr error
}

func newFakeGit() *fakeGit { return &fakeGit{docs: make(map[string]string)} }

func (f *fakeGit) Read(ctx context.Context, cfg storage.GitRepoConfig) (string, error) {
	text, ok := f.docs[cfg.LinkedRepo]
	if !ok {
		return "", storage.ErrNotAvailable
	}
	return text, nil
}
func (f *fakeGit) Write(ctx context.Context, cfg storage.GitRepoConfig, text string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.docs[cfg.LinkedRepo] = text
	return nil
}
func (f *fakeGit) IsAvailable(ctx context.Context) bool { return true }

type fakeBrowser struct {
	docs map[string]string
}

func newFakeBrowser() *fakeBrowser { return &fakeBrowser{docs: make(map[string]string)} }

func (f *fakeBrowser) Read(ctx context.Context, key string) (string, error) {
	text, ok := f.docs[key]
	if !ok {
		return "", storage.ErrNotAvailable
	}
	return text, nil
}
func (f *fakeBrowser) Write(ctx context.Context, key string, text string) error {
	f.docs[key] = text
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "manager.db"))
	if err != nil {
		t.Fatalf("kv.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	m := NewManager(store, newFakeLocal(), newFakeGit(), newFakeBrowser(), NewStatusSink(10))
	if err := m.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	return m
}

func TestBootstrapCreatesDefaultUniverse(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	u, ok := m.ActiveUniverse()
	if !ok {
		t.Fatal("ActiveUniverse() ok = false after bootstrap")
	}
	if u.Slug != defaultUniverseID {
		t.Errorf("default universe slug = %q, want %q", u.Slug, defaultUniverseID)
	}
}

func TestCreateUniverseUniquifiesSlug(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	a, err := m.CreateUniverse("Research", CreateOptions{EnableLocalFile: true})
	if err != nil {
		t.Fatalf("CreateUniverse() error: %v", err)
	}
	b, err := m.CreateUniverse("Research", CreateOptions{EnableLocalFile: true})
	if err != nil {
		t.Fatalf("CreateUniverse() second call error: %v", err)
	}
	if a.Slug == b.Slug {
		t.Errorf("two universes named the same got the same slug: %q", a.Slug)
	}
}

func TestDeleteUniverseRefusesLast(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	u, _ := m.ActiveUniverse()
	if err := m.DeleteUniverse(u.Slug); err == nil {
		t.Error("DeleteUniverse() should refuse to delete the last universe")
	}
}

func TestSaveAndReloadActiveUniverseRoundTrips(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	if err := m.UpdateUniverse(defaultUniverseID, func(u *Universe) {
		u.LocalFile.Enabled = true
	}); err != nil {
		t.Fatalf("UpdateUniverse() error: %v", err)
	}

	s := state.New()
	g := state.NewGraph("graph-1", "My Graph")
	s.Graphs["graph-1"] = g
	s.OpenGraphIDs = append(s.OpenGraphIDs, "graph-1")

	result, err := m.SaveActiveUniverse(context.Background(), s)
	if err != nil {
		t.Fatalf("SaveActiveUniverse() error: %v", err)
	}
	if len(result.Succeeded) == 0 {
		t.Fatal("SaveActiveUniverse() succeeded on no slots")
	}

	reloaded, err := m.ReloadActiveUniverse(context.Background())
	if err != nil {
		t.Fatalf("ReloadActiveUniverse() error: %v", err)
	}
	if _, ok := reloaded.Graphs["graph-1"]; !ok {
		t.Error("ReloadActiveUniverse() lost the saved graph")
	}
}

func TestSwitchActiveUniverseChangesPointer(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	second, err := m.CreateUniverse("Second", CreateOptions{EnableLocalFile: true})
	if err != nil {
		t.Fatalf("CreateUniverse() error: %v", err)
	}

	_, _, err = m.SwitchActiveUniverse(context.Background(), second.Slug, false, nil)
	if err != nil {
		t.Fatalf("SwitchActiveUniverse() error: %v", err)
	}
	active, _ := m.ActiveUniverse()
	if active.Slug != second.Slug {
		t.Errorf("active slug = %q, want %q", active.Slug, second.Slug)
	}
}

func TestListUniversesReturnsEveryRegisteredUniverseSorted(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	if _, err := m.CreateUniverse("Zebra", CreateOptions{EnableLocalFile: true}); err != nil {
		t.Fatalf("CreateUniverse() error: %v", err)
	}
	if _, err := m.CreateUniverse("Aardvark", CreateOptions{EnableLocalFile: true}); err != nil {
		t.Fatalf("CreateUniverse() error: %v", err)
	}

	list := m.ListUniverses()
	if len(list) != 3 {
		t.Fatalf("ListUniverses() returned %d entries, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Slug > list[i].Slug {
			t.Errorf("ListUniverses() not sorted: %q before %q", list[i-1].Slug, list[i].Slug)
		}
	}
}

func TestSaveActiveUniverseReloadsThenReplacesOnGitConflictWhenGitIsSourceOfTruth(t *testing.T) {
	t.Parallel()
	store, err := kv.Open(filepath.Join(t.TempDir(), "manager.db"))
	if err != nil {
		t.Fatalf("kv.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	git := newFakeGit()
	m := NewManager(store, newFakeLocal(), git, newFakeBrowser(), NewStatusSink(10))
	if err := m.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}

	u, err := m.CreateGitOnlyUniverse("Conflicted", GitRepoSlot{Enabled: true, LinkedRepo: "owner/repo"})
	if err != nil {
		t.Fatalf("CreateGitOnlyUniverse() error: %v", err)
	}
	if _, _, err := m.SwitchActiveUniverse(context.Background(), u.Slug, false, nil); err != nil {
		t.Fatalf("SwitchActiveUniverse() error: %v", err)
	}

	remote := state.New()
	remote.Graphs["remote-graph"] = state.NewGraph("remote-graph", "Remote Graph")
	doc, err := codec.ExportState(remote, codec.ExportOptions{})
	if err != nil {
		t.Fatalf("ExportState() error: %v", err)
	}
	text, err := codec.MarshalDocument(doc)
	if err != nil {
		t.Fatalf("MarshalDocument() error: %v", err)
	}
	git.docs["owner/repo"] = text
	git.writeErr = fmt.Errorf("409 conflict")

	local := state.New()
	local.Graphs["local-graph"] = state.NewGraph("local-graph", "Unsaved Local Graph")

	result, err := m.SaveActiveUniverse(context.Background(), local)
	if err != nil {
		t.Fatalf("SaveActiveUniverse() error: %v", err)
	}
	if result.Replaced == nil {
		t.Fatal("SaveActiveUniverse() Replaced = nil, want reload-then-replace state")
	}
	if _, ok := result.Replaced.Graphs["remote-graph"]; !ok {
		t.Error("SaveActiveUniverse() Replaced did not contain the Git-side graph")
	}
	if _, ok := result.Replaced.Graphs["local-graph"]; ok {
		t.Error("SaveActiveUniverse() Replaced still contains the discarded local graph")
	}
	found := false
	for _, s := range result.Succeeded {
		if s == "git" {
			found = true
		}
	}
	if !found {
		t.Errorf("SaveActiveUniverse() Succeeded = %v, want it to include \"git\"", result.Succeeded)
	}
}
