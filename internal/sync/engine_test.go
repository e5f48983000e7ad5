package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redstring/core/internal/storage"
)

type fakeBackend struct {
	writes    atomic.Int32
	failNext  atomic.Bool
	lastText  atomic.Value
}

func (f *fakeBackend) Read(ctx context.Context, cfg storage.GitRepoConfig) (string, error) {
	if v := f.lastText.Load(); v != nil {
		return v.(string), nil
	}
	return "", nil
}

func (f *fakeBackend) Write(ctx context.Context, cfg storage.GitRepoConfig, text string) error {
	if f.failNext.Load() {
		f.failNext.Store(false)
		return errors.New("boom")
	}
	f.writes.Add(1)
	f.lastText.Store(text)
	return nil
}

func TestForceCommitWritesImmediately(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	e := NewEngine(be, storage.GitRepoConfig{LinkedRepo: "o/r"}, Config{CommitInterval: time.Hour})

	if err := e.ForceCommit(context.Background(), "hello"); err != nil {
		t.Fatalf("ForceCommit() error: %v", err)
	}
	if be.writes.Load() != 1 {
		t.Errorf("writes = %d, want 1", be.writes.Load())
	}
	status := e.GetStatus()
	if status.HasPendingCommit {
		t.Error("status.HasPendingCommit should be false after a successful commit")
	}
}

func TestCommitFailureIncrementsConsecutiveErrors(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	be.failNext.Store(true)
	e := NewEngine(be, storage.GitRepoConfig{LinkedRepo: "o/r"}, Config{CommitInterval: time.Hour})

	if err := e.ForceCommit(context.Background(), "hello"); err == nil {
		t.Fatal("ForceCommit() should propagate the backend error")
	}
	if got := e.GetStatus().ConsecutiveErrors; got != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1 after one failed commit", got)
	}
	if !e.IsHealthy() {
		t.Error("IsHealthy() should still be true after a single failed commit; only repeated failures make the engine unhealthy")
	}
}

func TestUpdateStateCoalescesBeforeCommit(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	e := NewEngine(be, storage.GitRepoConfig{LinkedRepo: "o/r"}, Config{CommitInterval: time.Hour})

	e.UpdateState("first")
	e.UpdateState("second")
	if err := e.ForceCommit(context.Background(), ""); err != nil {
		t.Fatalf("ForceCommit() error: %v", err)
	}
	got, _ := be.Read(context.Background(), storage.GitRepoConfig{})
	if got != "second" {
		t.Errorf("committed text = %q, want %q (last write wins)", got, "second")
	}
	if be.writes.Load() != 1 {
		t.Errorf("writes = %d, want 1 (coalesced)", be.writes.Load())
	}
}

func TestEngineStartStop(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{}
	e := NewEngine(be, storage.GitRepoConfig{LinkedRepo: "o/r"}, Config{CommitInterval: 10 * time.Millisecond})
	e.UpdateState("flushed on stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Stop()

	if be.writes.Load() == 0 {
		t.Error("Stop() should flush pending state before returning")
	}
}
