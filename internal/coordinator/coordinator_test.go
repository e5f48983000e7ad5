package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redstring/core/internal/state"
)

func TestClassifyChangeMapsToSpecTable(t *testing.T) {
	t.Parallel()
	cases := map[ChangeKind]Priority{
		ChangePrototypeMutation: PriorityImmediate,
		ChangeInstanceOrEdge:    PriorityHigh,
		ChangeNodePlace:         PriorityHigh,
		ChangeNodePosition:      PriorityNormal,
		ChangeViewport:          PriorityLow,
		ChangeUIState:           PriorityLow,
	}
	for kind, want := range cases {
		if got := ClassifyChange(kind); got != want {
			t.Errorf("ClassifyChange(%s) = %s, want %s", kind, got, want)
		}
	}
}

func TestFingerprintStableAcrossSubDecimalViewportNoise(t *testing.T) {
	t.Parallel()
	s1 := state.New()
	s1.Viewport = state.Viewport{X: 10.001, Y: 5.004, Zoom: 1.00001}
	s2 := state.New()
	s2.Viewport = state.Viewport{X: 10.002, Y: 5.003, Zoom: 1.00002}

	if Fingerprint(s1) != Fingerprint(s2) {
		t.Error("Fingerprint() should be stable under sub-rounding-threshold viewport noise")
	}
}

func TestFingerprintChangesWithGraphContent(t *testing.T) {
	t.Parallel()
	s1 := state.New()
	s2 := state.New()
	s2.Graphs["g1"] = state.NewGraph("g1", "A Graph")

	if Fingerprint(s1) == Fingerprint(s2) {
		t.Error("Fingerprint() should differ when graph content differs")
	}
}

type fakeEngine struct {
	commits atomic.Int32
	status  EngineStatus
	healthy atomic.Bool
}

func (f *fakeEngine) ForceCommit(ctx context.Context, text string) error {
	f.commits.Add(1)
	f.status.LastCommitTime = time.Now()
	return nil
}
func (f *fakeEngine) IsHealthy() bool       { return f.healthy.Load() }
func (f *fakeEngine) GetStatus() EngineStatus { return f.status }

func TestForceSaveClearsQueueAndCommitsOnce(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	engine.healthy.Store(true)
	localCalls := atomic.Int32{}

	c := New(nil,
		func(s *state.CognitiveState) (string, error) { return "doc", nil },
		func(ctx context.Context, text string) error { localCalls.Add(1); return nil },
		engine, 0, nil)

	s := state.New()
	c.NotifyChange(context.Background(), ChangeViewport, s, false)

	if err := c.ForceSave(context.Background(), s); err != nil {
		t.Fatalf("ForceSave() error: %v", err)
	}
	if engine.commits.Load() != 1 {
		t.Errorf("git commits = %d, want 1", engine.commits.Load())
	}
	if localCalls.Load() != 1 {
		t.Errorf("local writes = %d, want 1", localCalls.Load())
	}
	status := c.GetStatus()
	if len(status.PendingByName) != 0 {
		t.Errorf("pending entries = %d, want 0 after ForceSave", len(status.PendingByName))
	}
}

func TestDragBurstCoalescesToSingleImmediateCommit(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	engine.healthy.Store(true)

	delays := DefaultDelayTable()
	delays[PriorityHigh] = Delays{Local: time.Millisecond, Git: time.Millisecond}
	delays[PriorityNormal] = Delays{Local: time.Hour, Git: time.Hour}

	c := New(delays,
		func(s *state.CognitiveState) (string, error) { return "doc", nil },
		func(ctx context.Context, text string) error { return nil },
		engine, time.Millisecond, nil)

	ctx := context.Background()
	s := state.New()
	base := time.Now()
	for i := 0; i < 10; i++ {
		s.Graphs[string(rune('a'+i))] = state.NewGraph(string(rune('a'+i)), "g")
		c.NotifyChange(ctx, ChangeNodePosition, s, false)
	}
	_ = base

	if engine.commits.Load() != 0 {
		t.Errorf("git commits during drag burst = %d, want 0", engine.commits.Load())
	}

	c.NotifyChange(ctx, ChangeNodePlace, s, false)

	deadline := time.After(time.Second)
	for engine.commits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a commit shortly after the post-drag node_place event")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if engine.commits.Load() != 1 {
		t.Errorf("git commits after drag end = %d, want 1", engine.commits.Load())
	}
}

func TestExplicitDraggingContextSuppressesTimersWithoutBurstTiming(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	engine.healthy.Store(true)

	delays := DefaultDelayTable()
	delays[PriorityLow] = Delays{Local: time.Millisecond, Git: time.Millisecond}

	c := New(delays,
		func(s *state.CognitiveState) (string, error) { return "doc", nil },
		func(ctx context.Context, text string) error { return nil },
		engine, time.Millisecond, nil)

	ctx := context.Background()
	s := state.New()

	// A viewport change doesn't satisfy the node_position burst-timing
	// heuristic at all, but an explicit dragging=true must still mark
	// the coordinator as dragging and suppress (re)scheduling.
	c.NotifyChange(ctx, ChangeViewport, s, true)
	if !c.GetStatus().IsDragging {
		t.Fatal("GetStatus().IsDragging = false after an explicit dragging=true change, want true")
	}
	time.Sleep(20 * time.Millisecond)
	if engine.commits.Load() != 0 {
		t.Errorf("git commits while explicitly dragging = %d, want 0", engine.commits.Load())
	}

	c.NotifyChange(ctx, ChangeNodePlace, s, false)
	if c.GetStatus().IsDragging {
		t.Error("GetStatus().IsDragging = true after a non-dragging change, want false")
	}

	deadline := time.After(time.Second)
	for engine.commits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a commit shortly after the post-drag event")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if engine.commits.Load() != 1 {
		t.Errorf("git commits after drag end = %d, want 1", engine.commits.Load())
	}
}
