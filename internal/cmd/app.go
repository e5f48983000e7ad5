package cmd

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/redstring/core/internal/codec"
	"github.com/redstring/core/internal/config"
	"github.com/redstring/core/internal/coordinator"
	"github.com/redstring/core/internal/device"
	"github.com/redstring/core/internal/kv"
	"github.com/redstring/core/internal/state"
	"github.com/redstring/core/internal/storage"
	"github.com/redstring/core/internal/storage/browserkv"
	"github.com/redstring/core/internal/storage/gitrepo"
	"github.com/redstring/core/internal/storage/localfile"
	gitsync "github.com/redstring/core/internal/sync"
	"github.com/redstring/core/internal/universe"
)

// app bundles the manager and its storage adapters for one CLI
// invocation, plus the cleanup the caller must defer.
type app struct {
	cfg     *config.Config
	manager *universe.Manager
	sink    *universe.StatusSink
	local   storage.LocalFile
	git     storage.GitRepo
	browser storage.BrowserKV

	closeFns []func() error
}

func stateDir() (string, error) {
	if dir := os.Getenv("REDSTRING_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "redstringd"), nil
}

// newApp loads config, opens the registry and document-content KV
// databases, and builds every storage adapter and the Manager, mirroring
// the teacher's runMount building its LinearFS from internal/config and
// internal/fs in one place.
func newApp(_ context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir, err := stateDir()
	if err != nil {
		return nil, err
	}

	registryStore, err := kv.Open(filepath.Join(dir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("open registry store: %w", err)
	}

	contentStore, err := kv.Open(filepath.Join(dir, "browserkv.db"))
	if err != nil {
		registryStore.Close()
		return nil, fmt.Errorf("open browser-storage content store: %w", err)
	}

	local := localfile.New(registryStore, os.Getenv("REDSTRING_LOCAL_DIR"))
	browser := browserkv.New(contentStore, 10)

	gitAdapter, err := buildGitRepo(cfg.Git)
	if err != nil {
		registryStore.Close()
		contentStore.Close()
		return nil, err
	}

	sink := universe.NewStatusSink(100)
	manager := universe.NewManager(registryStore, local, gitAdapter, browser, sink)
	if err := manager.Bootstrap(); err != nil {
		registryStore.Close()
		contentStore.Close()
		return nil, fmt.Errorf("bootstrap universe registry: %w", err)
	}
	if err := manager.ApplyDeviceProfile(device.Facts{
		Touch:         cfg.Device.Touch,
		Mobile:        cfg.Device.Mobile,
		Tablet:        cfg.Device.Tablet,
		ScreenWidth:   cfg.Device.ScreenWidth,
		HasSavePicker: cfg.Device.HasSavePicker,
	}); err != nil {
		registryStore.Close()
		contentStore.Close()
		return nil, fmt.Errorf("apply device profile: %w", err)
	}

	return &app{
		cfg:     cfg,
		manager: manager,
		sink:    sink,
		local:   local,
		git:     gitAdapter,
		browser: browser,
		closeFns: []func() error{
			registryStore.Close,
			contentStore.Close,
		},
	}, nil
}

func (a *app) Close() {
	for _, fn := range a.closeFns {
		_ = fn()
	}
}

// buildGitRepo constructs the direct-mode GitRepo adapter per the
// configured auth method. An empty auth method is treated as "oauth",
// with the token read from REDSTRING_GIT_TOKEN (an unset variable yields
// an empty token, so Git calls fail to authenticate).
func buildGitRepo(cfg config.GitConfig) (storage.GitRepo, error) {
	switch cfg.AuthMethod {
	case "app":
		key, err := loadRSAPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load GitHub App private key: %w", err)
		}
		return gitrepo.New(gitrepo.NewAppAuth(cfg.AppID, cfg.InstallationID, key)), nil
	case "oauth", "":
		token := os.Getenv("REDSTRING_GIT_TOKEN")
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		return gitrepo.New(gitrepo.NewOAuthAuth(src)), nil
	default:
		return nil, fmt.Errorf("unknown git auth method %q", cfg.AuthMethod)
	}
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse RSA private key: %w", err)
	}
	return key, nil
}

// coordinatorFor builds a Coordinator wired to u's enabled slots,
// registering and starting a Git sync Engine when u has a Git slot (spec
// §4.3's "registered per-universe sync engine" mode), per spec §12's
// "drive the Manager and Coordinator from outside a UI."
func (a *app) coordinatorFor(ctx context.Context, u *universe.Universe) *coordinator.Coordinator {
	delays := delayTableFromConfig(a.cfg.Coordinator)

	local := a.local
	localWriter := func(ctx context.Context, text string) error {
		h, err := local.PickForOpen(ctx)
		if err != nil {
			h, err = local.PickForCreate(ctx, u.Slug+".redstring")
			if err != nil {
				return err
			}
		}
		return local.Write(ctx, h, text)
	}

	var engine coordinator.GitEngine
	if u.GitRepo.Enabled {
		e := gitsync.NewEngine(a.git, storage.GitRepoConfig{
			LinkedRepo:     u.GitRepo.LinkedRepo,
			SchemaPath:     u.GitRepo.SchemaPath,
			UniverseFolder: u.GitRepo.UniverseFolder,
			UniverseFile:   u.GitRepo.UniverseFile,
		}, gitsync.DefaultConfig())
		e.Start(ctx)
		a.manager.SetGitSyncEngine(u.Slug, e)
		engine = engineAdapter{e}
	}

	return coordinator.New(delays, exportText, localWriter, engine, 0, statusSinkAdapter{a.sink, u.Slug})
}

func delayTableFromConfig(cfg config.CoordinatorConfig) map[coordinator.Priority]coordinator.Delays {
	d := coordinator.DefaultDelayTable()
	if cfg.HighLocalDelay > 0 || cfg.HighGitDelay > 0 {
		d[coordinator.PriorityHigh] = coordinator.Delays{Local: cfg.HighLocalDelay, Git: cfg.HighGitDelay}
	}
	if cfg.NormalLocalDelay > 0 || cfg.NormalGitDelay > 0 {
		d[coordinator.PriorityNormal] = coordinator.Delays{Local: cfg.NormalLocalDelay, Git: cfg.NormalGitDelay}
	}
	if cfg.LowLocalDelay > 0 || cfg.LowGitDelay > 0 {
		d[coordinator.PriorityLow] = coordinator.Delays{Local: cfg.LowLocalDelay, Git: cfg.LowGitDelay}
	}
	return d
}

// engineAdapter satisfies coordinator.GitEngine without coordinator
// importing internal/sync directly.
type engineAdapter struct{ e *gitsync.Engine }

func (a engineAdapter) ForceCommit(ctx context.Context, text string) error { return a.e.ForceCommit(ctx, text) }
func (a engineAdapter) IsHealthy() bool                                   { return a.e.IsHealthy() }
func (a engineAdapter) GetStatus() coordinator.EngineStatus {
	s := a.e.GetStatus()
	return coordinator.EngineStatus{LastCommitTime: s.LastCommitTime, ConsecutiveErrors: s.ConsecutiveErrors}
}

// statusSinkAdapter satisfies coordinator.StatusSink by forwarding into
// a universe.StatusSink scoped to one universe's slug.
type statusSinkAdapter struct {
	sink *universe.StatusSink
	slug string
}

func (s statusSinkAdapter) Emit(eventType, message string) {
	s.sink.Emit(universe.Event{Type: universe.EventType(eventType), Message: message, Universe: s.slug})
}

// exportText renders s to its persisted JSON-LD-shaped text form, the
// Coordinator's Exporter.
func exportText(s *state.CognitiveState) (string, error) {
	doc, err := codec.ExportState(s, codec.ExportOptions{})
	if err != nil {
		return "", fmt.Errorf("export state: %w", err)
	}
	text, err := codec.MarshalDocument(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return text, nil
}

