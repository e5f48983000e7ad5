// Package sync implements the per-universe Git sync engine (spec §4.3's
// "registered sync engine" mode) and a watchdog that observes engine
// health without ever restarting one, plus the background goroutine
// lifecycle idiom (stopCh/doneCh/ticker/mu) the teacher's sync.Worker
// used for its own background sync loop.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redstring/core/internal/storage"
)

// Backend is the minimal Git read/write surface an Engine drives,
// satisfied by storage/gitrepo.Adapter.
type Backend interface {
	Read(ctx context.Context, cfg storage.GitRepoConfig) (string, error)
	Write(ctx context.Context, cfg storage.GitRepoConfig, text string) error
}

// Config holds an Engine's tuning knobs.
type Config struct {
	// CommitInterval is how often pendingCommits are flushed automatically.
	CommitInterval time.Duration
}

// DefaultConfig returns the Config used when none is supplied.
func DefaultConfig() Config {
	return Config{CommitInterval: 30 * time.Second}
}

// Engine owns one universe's Git-backed document: buffering state
// updates, committing them on its own cadence or on demand, and
// reporting whether it is currently healthy for the watchdog.
//
// Only one Engine may exist per universe (spec §4.3's single-engine
// invariant) — enforcing that is the Manager's job, not the Engine's.
type Engine struct {
	backend Backend
	repoCfg storage.GitRepoConfig
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	mu                sync.Mutex
	running           bool
	pendingText       string
	hasPending        bool
	lastCommitTime    time.Time
	consecutiveErrors int
}

// NewEngine builds an Engine for a single universe's Git configuration.
func NewEngine(backend Backend, repoCfg storage.GitRepoConfig, cfg Config) *Engine {
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = DefaultConfig().CommitInterval
	}
	return &Engine{
		backend:  backend,
		repoCfg:  repoCfg,
		interval: cfg.CommitInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the engine's background commit loop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop gracefully stops the commit loop, flushing any pending state
// first.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh
}

func (e *Engine) run(ctx context.Context) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.doneCh)
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.commitPending(ctx)
			return
		case <-e.stopCh:
			e.commitPending(ctx)
			return
		case <-ticker.C:
			e.commitPending(ctx)
		}
	}
}

// UpdateState buffers text as the engine's next commit payload,
// replacing any not-yet-committed buffered state (spec §4.4's
// "pendingCommits" coalescing).
func (e *Engine) UpdateState(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingText = text
	e.hasPending = true
}

// ForceCommit immediately writes the current buffered state (or text,
// if non-empty) to Git, bypassing the commit ticker.
func (e *Engine) ForceCommit(ctx context.Context, text string) error {
	if text != "" {
		e.UpdateState(text)
	}
	return e.commitPending(ctx)
}

func (e *Engine) commitPending(ctx context.Context) error {
	e.mu.Lock()
	if !e.hasPending {
		e.mu.Unlock()
		return nil
	}
	text := e.pendingText
	e.mu.Unlock()

	err := e.backend.Write(ctx, e.repoCfg, text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.consecutiveErrors++
		log.Printf("[sync] commit to %s failed (%d consecutive): %v", e.repoCfg.LinkedRepo, e.consecutiveErrors, err)
		return fmt.Errorf("sync: commit pending state: %w", err)
	}
	e.consecutiveErrors = 0
	e.lastCommitTime = time.Now()
	e.hasPending = false
	return nil
}

// LoadFromGit fetches the universe document's current Git contents.
func (e *Engine) LoadFromGit(ctx context.Context) (string, error) {
	return e.backend.Read(ctx, e.repoCfg)
}

// IsHealthy reports whether the engine has not accumulated repeated
// commit failures, per the watchdog's thresholds (spec §4.3).
func (e *Engine) IsHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveErrors < 2
}

// Status is a snapshot of an engine's state; internal/cmd maps it onto
// the coordinator's EngineStatus for the readiness rule.
type Status struct {
	Running           bool
	LastCommitTime    time.Time
	ConsecutiveErrors int
	HasPendingCommit  bool
}

// GetStatus returns a point-in-time snapshot of the engine.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:           e.running,
		LastCommitTime:    e.lastCommitTime,
		ConsecutiveErrors: e.consecutiveErrors,
		HasPendingCommit:  e.hasPending,
	}
}
