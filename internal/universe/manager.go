package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redstring/core/internal/codec"
	"github.com/redstring/core/internal/device"
	"github.com/redstring/core/internal/kv"
	"github.com/redstring/core/internal/state"
	"github.com/redstring/core/internal/storage"
	gitsync "github.com/redstring/core/internal/sync"
)

const (
	kvBucket          = "universe_manager"
	keyUniverseList   = "unified_universes_list"
	keyActiveSlug     = "active_universe_slug"
	keyFileHandles    = "universe_file_handles"
	defaultUniverseID = "universe"
)

// CreateOptions customizes createUniverse beyond the name.
type CreateOptions struct {
	EnableLocalFile bool
	GitRepo         *GitRepoSlot
	SourceOfTruth   SourceOfTruth
}

// Manager owns the universe registry, the active-universe pointer, and
// orchestrates loads/saves across the three storage adapters (spec
// §4.3).
type Manager struct {
	store         *kv.Store
	local         storage.LocalFile
	gitDirect     storage.GitRepo
	browser       storage.BrowserKV
	sink          *StatusSink
	watchdog      *gitsync.Watchdog

	mu          sync.Mutex
	registry    map[string]*Universe
	activeSlug  string
	engines     map[string]*gitsync.Engine
	deviceProfile device.Profile
}

// NewManager builds a Manager. The device profile starts at a
// conservative default (spec §4.3 "no device calls" bootstrap
// normalizer); call ApplyDeviceProfile once real facts are known.
func NewManager(store *kv.Store, local storage.LocalFile, gitDirect storage.GitRepo, browser storage.BrowserKV, sink *StatusSink) *Manager {
	m := &Manager{
		store:         store,
		local:         local,
		gitDirect:     gitDirect,
		browser:       browser,
		sink:          sink,
		registry:      make(map[string]*Universe),
		engines:       make(map[string]*gitsync.Engine),
		deviceProfile: device.Compute(device.Facts{HasSavePicker: true}),
	}
	m.watchdog = gitsync.NewWatchdog(time.Duration(m.deviceProfile.AutoSaveFrequencyMS)*time.Millisecond*60, sink)
	return m
}

// Bootstrap loads the registry from the KV store, normalizing every
// entry with the safe (device-call-free) normalizer, creating the
// default universe if the registry is empty, and resolving the active
// slug (spec §4.3 Startup).
func (m *Manager) Bootstrap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadRegistryLocked(); err != nil {
		return err
	}

	if len(m.registry) == 0 {
		def := &Universe{
			Slug:           defaultUniverseID,
			Name:           "Universe",
			SourceOfTruth:  SourceLocal,
			LocalFile:      LocalFileSlot{Enabled: true},
			BrowserStorage: DefaultBrowserStorageSlot(defaultUniverseID),
			Metadata:       Metadata{Created: time.Now(), LastModified: time.Now()},
		}
		m.registry[def.Slug] = def
		m.activeSlug = def.Slug
	}

	for _, u := range m.registry {
		if warning := u.normalize(); warning != "" {
			m.emit(EventWarning, warning, u.Slug)
		}
	}

	if _, ok := m.registry[m.activeSlug]; !ok {
		m.activeSlug = m.firstSlugLocked()
	}

	return m.persistRegistryLocked()
}

// ApplyDeviceProfile re-normalizes every universe against freshly
// known host facts and persists only if anything changed, per spec
// §4.3's "schedule device-profile initialization on a short timer."
func (m *Manager) ApplyDeviceProfile(facts device.Facts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile := device.Compute(facts)
	m.deviceProfile = profile

	changed := false
	for _, u := range m.registry {
		before := *u
		u.DeviceConfig = profile
		if !profile.EnableLocalFileStorage && u.LocalFile.Enabled {
			u.LocalFile.Enabled = false
			u.LocalFile.UnavailableReason = "disabled by device profile"
		}
		if u.normalize() != "" || before.SourceOfTruth != u.SourceOfTruth || before.LocalFile.Enabled != u.LocalFile.Enabled {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.persistRegistryLocked()
}

func (m *Manager) firstSlugLocked() string {
	slugs := make([]string, 0, len(m.registry))
	for s := range m.registry {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	if len(slugs) == 0 {
		return ""
	}
	return slugs[0]
}

func (m *Manager) emit(t EventType, message, universeSlug string) {
	if m.sink == nil {
		return
	}
	m.sink.Emit(Event{Type: t, Message: message, Universe: universeSlug, Timestamp: time.Now()})
}

// --- Persistence ---

type registryDoc struct {
	Universes map[string]*Universe `json:"universes"`
}

func (m *Manager) loadRegistryLocked() error {
	raw, ok, err := m.store.Get(kvBucket, keyUniverseList)
	if err != nil {
		return fmt.Errorf("universe: load registry: %w", err)
	}
	if ok {
		var doc registryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("universe: decode registry: %w", err)
		}
		m.registry = doc.Universes
		if m.registry == nil {
			m.registry = make(map[string]*Universe)
		}
	}
	if active, ok, err := m.store.Get(kvBucket, keyActiveSlug); err == nil && ok {
		m.activeSlug = string(active)
	}
	return nil
}

func (m *Manager) persistRegistryLocked() error {
	raw, err := json.Marshal(registryDoc{Universes: m.registry})
	if err != nil {
		return fmt.Errorf("universe: encode registry: %w", err)
	}
	if err := m.store.Put(kvBucket, keyUniverseList, raw); err != nil {
		return fmt.Errorf("universe: persist registry: %w", err)
	}
	return m.store.Put(kvBucket, keyActiveSlug, []byte(m.activeSlug))
}

// --- CRUD ---

func (m *Manager) takenSlugsLocked() map[string]struct{} {
	taken := make(map[string]struct{}, len(m.registry))
	for s := range m.registry {
		taken[strings.ToLower(s)] = struct{}{}
	}
	return taken
}

// CreateUniverse registers a new universe named name with the given
// options, generating and uniquifying its slug.
func (m *Manager) CreateUniverse(name string, opts CreateOptions) (*Universe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slug := uniquifySlug(GenerateSlug(name), m.takenSlugsLocked())
	u := &Universe{
		Slug:           slug,
		Name:           name,
		SourceOfTruth:  SourceLocal,
		BrowserStorage: DefaultBrowserStorageSlot(slug),
		DeviceConfig:   m.deviceProfile,
		Metadata:       Metadata{Created: time.Now(), LastModified: time.Now()},
	}
	if opts.EnableLocalFile {
		u.LocalFile = LocalFileSlot{Enabled: true}
	}
	if opts.GitRepo != nil {
		u.GitRepo = *opts.GitRepo
	}
	if opts.SourceOfTruth != "" {
		u.SourceOfTruth = opts.SourceOfTruth
	}
	if warning := u.normalize(); warning != "" {
		m.emit(EventWarning, warning, slug)
	}

	m.registry[slug] = u
	if err := m.persistRegistryLocked(); err != nil {
		return nil, err
	}
	m.emit(EventSuccess, fmt.Sprintf("created universe %s", slug), slug)
	return u, nil
}

// CreateGitOnlyUniverse creates a universe whose sole enabled slot is
// Git, as produced by gitOnlyMode device profiles.
func (m *Manager) CreateGitOnlyUniverse(name string, gitCfg GitRepoSlot) (*Universe, error) {
	return m.CreateUniverse(name, CreateOptions{GitRepo: &gitCfg, SourceOfTruth: SourceGit})
}

// CreateUniverseFromGitUrl creates a universe backed by an existing
// "owner/repo" (or full URL, trimmed to owner/repo) Git location.
func (m *Manager) CreateUniverseFromGitUrl(url string, opts CreateOptions) (*Universe, error) {
	repo := trimToOwnerRepo(url)
	name := repo
	if idx := strings.LastIndex(repo, "/"); idx >= 0 {
		name = repo[idx+1:]
	}
	slug := GenerateSlug(name)
	gitCfg := DefaultGitRepoSlot(slug, repo)
	opts.GitRepo = &gitCfg
	if opts.SourceOfTruth == "" {
		opts.SourceOfTruth = SourceGit
	}
	return m.CreateUniverse(name, opts)
}

func trimToOwnerRepo(url string) string {
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimPrefix(url, "https://github.com/")
	url = strings.TrimPrefix(url, "git@github.com:")
	return url
}

// UpdateUniverse applies patch to the named universe's in-memory entry
// and persists the result.
func (m *Manager) UpdateUniverse(slug string, patch func(*Universe)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.registry[slug]
	if !ok {
		return fmt.Errorf("universe: %s not found", slug)
	}
	patch(u)
	u.Metadata.LastModified = time.Now()
	if warning := u.normalize(); warning != "" {
		m.emit(EventWarning, warning, slug)
	}
	return m.persistRegistryLocked()
}

// DeleteUniverse removes slug from the registry, refusing when it is
// the last remaining universe.
func (m *Manager) DeleteUniverse(slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.registry) <= 1 {
		return fmt.Errorf("universe: cannot delete the last remaining universe")
	}
	if _, ok := m.registry[slug]; !ok {
		return fmt.Errorf("universe: %s not found", slug)
	}
	delete(m.registry, slug)
	if engine, ok := m.engines[slug]; ok {
		engine.Stop()
		m.watchdog.Unwatch(slug)
		delete(m.engines, slug)
	}
	if m.activeSlug == slug {
		m.activeSlug = m.firstSlugLocked()
	}
	return m.persistRegistryLocked()
}

// --- Engine registration ---

// SetGitSyncEngine registers engine for slug, refusing (and stopping
// engine) if one is already registered for the same slug, unless it is
// the same instance (idempotent re-registration), per spec §4.3's
// single-engine invariant.
func (m *Manager) SetGitSyncEngine(slug string, engine *gitsync.Engine) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.engines[slug]; ok {
		if existing == engine {
			return true
		}
		engine.Stop()
		return false
	}
	m.engines[slug] = engine
	m.watchdog.Watch(slug, engine)
	return true
}

// StartWatchdog begins the health watchdog's polling loop.
func (m *Manager) StartWatchdog() { m.watchdog.Start() }

// StopWatchdog stops the health watchdog.
func (m *Manager) StopWatchdog() { m.watchdog.Stop() }

// --- Active universe ---

// ListUniverses returns a copy of every registered universe, sorted by
// slug, for the CLI's "universe list" command.
func (m *Manager) ListUniverses() []Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	slugs := make([]string, 0, len(m.registry))
	for s := range m.registry {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	out := make([]Universe, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, *m.registry[s])
	}
	return out
}

// ActiveUniverse returns a copy of the currently active universe entry.
func (m *Manager) ActiveUniverse() (Universe, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.registry[m.activeSlug]
	if !ok {
		return Universe{}, false
	}
	return *u, true
}

// SwitchActiveUniverse saves the outgoing active universe (unless
// saveCurrent is false), swaps the pointer to slug, loads its data, and
// returns the loaded state. The swap is not rolled back if the load
// fails (spec §4.3).
func (m *Manager) SwitchActiveUniverse(ctx context.Context, slug string, saveCurrent bool, current *state.CognitiveState) (*Universe, *state.CognitiveState, error) {
	m.mu.Lock()
	if saveCurrent && current != nil {
		m.mu.Unlock()
		if _, err := m.SaveActiveUniverse(ctx, current); err != nil {
			m.emit(EventWarning, fmt.Sprintf("save before switch failed: %v", err), m.activeSlug)
		}
		m.mu.Lock()
	}
	if _, ok := m.registry[slug]; !ok {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("universe: %s not found", slug)
	}
	m.activeSlug = slug
	if err := m.persistRegistryLocked(); err != nil {
		m.mu.Unlock()
		return nil, nil, err
	}
	u := m.registry[slug]
	m.mu.Unlock()

	loaded, err := m.loadUniverseData(ctx, u)
	if err != nil {
		m.emit(EventError, fmt.Sprintf("load failed for %s: %v", slug, err), slug)
		return u, nil, err
	}
	return u, loaded, nil
}

// SaveResult reports which slots a save succeeded or failed on, and the
// replacement state when a Git conflict forced a reload-then-replace
// (spec §4.3's conflict policy).
type SaveResult struct {
	Succeeded []string
	Failed    []SaveFailure
	Replaced  *state.CognitiveState
}

// SaveFailure names one slot's failure.
type SaveFailure struct {
	Slot  string
	Error error
}

// SaveActiveUniverse exports s once and fans it out to every enabled
// slot in order Git, Local, Browser, succeeding if at least one slot
// succeeds (spec §4.3).
func (m *Manager) SaveActiveUniverse(ctx context.Context, s *state.CognitiveState) (SaveResult, error) {
	m.mu.Lock()
	u, ok := m.registry[m.activeSlug]
	m.mu.Unlock()
	if !ok {
		return SaveResult{}, fmt.Errorf("universe: no active universe")
	}

	doc, err := codec.ExportState(s, codec.ExportOptions{Title: u.Name})
	if err != nil {
		return SaveResult{}, fmt.Errorf("universe: export state: %w", err)
	}
	text, err := codec.MarshalDocument(doc)
	if err != nil {
		return SaveResult{}, fmt.Errorf("universe: marshal document: %w", err)
	}

	var result SaveResult
	if u.GitRepo.Enabled {
		replaced, err := m.writeGit(ctx, u, text)
		if err != nil {
			result.Failed = append(result.Failed, SaveFailure{Slot: "git", Error: err})
		} else {
			result.Succeeded = append(result.Succeeded, "git")
			result.Replaced = replaced
		}
	}
	if u.LocalFile.Enabled {
		if err := m.writeLocal(ctx, u, text); err != nil {
			result.Failed = append(result.Failed, SaveFailure{Slot: "local", Error: err})
		} else {
			result.Succeeded = append(result.Succeeded, "local")
		}
	}
	if u.BrowserStorage.Enabled {
		if err := m.browser.Write(ctx, u.BrowserStorage.Key, text); err != nil {
			result.Failed = append(result.Failed, SaveFailure{Slot: "browser", Error: err})
		} else {
			result.Succeeded = append(result.Succeeded, "browser")
		}
	}

	m.mu.Lock()
	u.Metadata.LastModified = time.Now()
	u.Metadata.FileSize = int64(len(text))
	if len(result.Succeeded) > 0 {
		u.Metadata.SyncStatus = "saved"
	} else {
		u.Metadata.SyncStatus = "error"
	}
	perr := m.persistRegistryLocked()
	m.mu.Unlock()
	if perr != nil {
		return result, perr
	}

	if len(result.Succeeded) == 0 {
		m.emit(EventError, "save failed on every enabled slot", u.Slug)
		return result, fmt.Errorf("universe: save failed on every enabled slot")
	}
	m.emit(EventSuccess, fmt.Sprintf("saved via %s", strings.Join(result.Succeeded, ", ")), u.Slug)
	return result, nil
}

func (m *Manager) gitRepoConfig(u *Universe) storage.GitRepoConfig {
	return storage.GitRepoConfig{
		LinkedRepo:     u.GitRepo.LinkedRepo,
		SchemaPath:     u.GitRepo.SchemaPath,
		UniverseFolder: u.GitRepo.UniverseFolder,
		UniverseFile:   u.GitRepo.UniverseFile,
	}
}

// writeGit writes text to u's Git slot, retrying once on a retriable
// error. If u's source of truth is Git, a retriable error instead
// triggers reload-then-replace: the write is abandoned, the current Git
// content is loaded and returned as the replacement state, and the
// caller's local unsaved work is lost by design (spec §4.3 conflict
// policy).
func (m *Manager) writeGit(ctx context.Context, u *Universe, text string) (*state.CognitiveState, error) {
	m.mu.Lock()
	engine, engineMode := m.engines[u.Slug]
	m.mu.Unlock()

	write := func() error {
		if engineMode {
			return engine.ForceCommit(ctx, text)
		}
		return m.gitDirect.Write(ctx, m.gitRepoConfig(u), text)
	}

	err := write()
	if err == nil {
		return nil, nil
	}
	if !isRetriableGitError(err) {
		return nil, err
	}

	if u.SourceOfTruth == SourceGit {
		if replaced, rerr := m.loadGit(ctx, u); rerr == nil {
			m.emit(EventWarning, "git conflict: reloaded from git, local unsaved work discarded", u.Slug)
			return replaced, nil
		}
	}

	time.Sleep(2 * time.Second)
	return nil, write()
}

func isRetriableGitError(err error) bool {
	if errors.Is(err, storage.ErrConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "409") || strings.Contains(strings.ToLower(msg), "network")
}

func (m *Manager) writeLocal(ctx context.Context, u *Universe, text string) error {
	h, err := m.local.PickForOpen(ctx)
	if err != nil {
		h, err = m.local.PickForCreate(ctx, u.Slug+".redstring")
		if err != nil {
			return err
		}
	}
	return m.local.Write(ctx, h, text)
}

// ReloadActiveUniverse tries loadUniverseData, then direct Git, then
// browser, applying the first success (spec §4.3).
func (m *Manager) ReloadActiveUniverse(ctx context.Context) (*state.CognitiveState, error) {
	m.mu.Lock()
	u, ok := m.registry[m.activeSlug]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("universe: no active universe")
	}
	if s, err := m.loadUniverseData(ctx, u); err == nil {
		return s, nil
	}
	if u.GitRepo.Enabled {
		if text, err := m.gitDirect.Read(ctx, m.gitRepoConfig(u)); err == nil {
			return decodeState(text)
		}
	}
	if u.BrowserStorage.Enabled {
		if text, err := m.browser.Read(ctx, u.BrowserStorage.Key); err == nil {
			return decodeState(text)
		}
	}
	return nil, fmt.Errorf("universe: reload failed on every slot")
}

// loadUniverseData implements spec §4.3's load-order rules.
func (m *Manager) loadUniverseData(ctx context.Context, u *Universe) (*state.CognitiveState, error) {
	tried := make(map[string]bool)

	if u.SourceOfTruth == SourceGit && u.GitRepo.Enabled {
		tried["git"] = true
		if s, err := m.loadGit(ctx, u); err == nil {
			return s, nil
		}
	}
	if u.SourceOfTruth == SourceLocal && u.LocalFile.Enabled {
		tried["local"] = true
		if s, err := m.loadLocal(ctx, u); err == nil {
			return s, nil
		}
	}

	for _, slot := range []string{"local", "git", "browser"} {
		if tried[slot] {
			continue
		}
		switch slot {
		case "local":
			if u.LocalFile.Enabled {
				if s, err := m.loadLocal(ctx, u); err == nil {
					return s, nil
				}
			}
		case "git":
			if u.GitRepo.Enabled {
				if s, err := m.loadGit(ctx, u); err == nil {
					return s, nil
				}
			}
		case "browser":
			if u.BrowserStorage.Enabled {
				if text, err := m.browser.Read(ctx, u.BrowserStorage.Key); err == nil {
					if s, err := decodeState(text); err == nil {
						return s, nil
					}
				}
			}
		}
	}

	return state.New(), nil
}

func (m *Manager) loadGit(ctx context.Context, u *Universe) (*state.CognitiveState, error) {
	m.mu.Lock()
	engine, engineMode := m.engines[u.Slug]
	m.mu.Unlock()
	if engineMode {
		text, err := engine.LoadFromGit(ctx)
		if err == nil {
			return decodeState(text)
		}
	}
	text, err := m.gitDirect.Read(ctx, m.gitRepoConfig(u))
	if err != nil {
		return nil, err
	}
	return decodeState(text)
}

func (m *Manager) loadLocal(ctx context.Context, u *Universe) (*state.CognitiveState, error) {
	h, err := m.local.PickForOpen(ctx)
	if err != nil {
		return nil, err
	}
	text, err := m.local.Read(ctx, h)
	if err != nil {
		return nil, err
	}
	return decodeState(text)
}

func decodeState(text string) (*state.CognitiveState, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("universe: decode document: %w", err)
	}
	result := codec.ImportDocument(doc)
	return result.State, nil
}

// DiscoverUniversesInRepository lists candidate universe documents in
// repoCfg's repository via the discovery adapter.
func (m *Manager) DiscoverUniversesInRepository(ctx context.Context, discoverer interface {
	DiscoverUniverses(ctx context.Context, linkedRepo, path string) ([]string, error)
}, repoCfg GitRepoSlot) ([]string, error) {
	return discoverer.DiscoverUniverses(ctx, repoCfg.LinkedRepo, repoCfg.UniverseFolder)
}

// LinkToDiscoveredUniverse creates a universe whose Git slot points at a
// discovered document path and makes it active. It always registers a
// new universe: a name that collides with an existing slug gets a
// uniquified slug, and the existing universe is left unchanged.
func (m *Manager) LinkToDiscoveredUniverse(discoveredPath string, repoCfg GitRepoSlot) (*Universe, error) {
	name := discoveredPath
	repoCfg.UniverseFolder, repoCfg.UniverseFile = "", discoveredPath
	if idx := strings.LastIndex(discoveredPath, "/"); idx >= 0 {
		name = strings.TrimSuffix(discoveredPath[idx+1:], ".redstring")
		repoCfg.UniverseFolder, repoCfg.UniverseFile = discoveredPath[:idx], discoveredPath[idx+1:]
	}
	u, err := m.CreateUniverse(name, CreateOptions{GitRepo: &repoCfg, SourceOfTruth: SourceGit})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.activeSlug = u.Slug
	err = m.persistRegistryLocked()
	m.mu.Unlock()
	return u, err
}
