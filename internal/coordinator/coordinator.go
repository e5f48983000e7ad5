package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redstring/core/internal/state"
)

const (
	maxQueueEntries   = 50
	dragBurstWindow   = 100 * time.Millisecond
	engineRetryDelay  = 10 * time.Second
	defaultGitRateLim = 5 * time.Second
)

// GitEngine is the minimal surface the coordinator needs from a Git
// sync backend to decide readiness and commit.
type GitEngine interface {
	ForceCommit(ctx context.Context, text string) error
	IsHealthy() bool
	GetStatus() EngineStatus
}

// EngineStatus mirrors the fields of sync.Engine's status the
// coordinator's readiness rule (spec §4.4 rule 5) needs, kept as its
// own type so this package doesn't import internal/sync.
type EngineStatus struct {
	LastCommitTime    time.Time
	ConsecutiveErrors int
}

// LocalWriter persists the local-slot copy immediately (no debounce
// beyond the priority's local delay, which the coordinator has already
// waited out before calling it).
type LocalWriter func(ctx context.Context, text string) error

// Exporter renders a CognitiveState to its persisted text form.
type Exporter func(s *state.CognitiveState) (string, error)

// pendingEntry is one priority's coalesced, not-yet-committed change.
type pendingEntry struct {
	priority  Priority
	state     *state.CognitiveState
	count     int
	timestamp time.Time
	localTimer *time.Timer
	gitTimer   *time.Timer
}

// Coordinator schedules local/Git writes per spec §4.4.
type Coordinator struct {
	delays   map[Priority]Delays
	export   Exporter
	local    LocalWriter
	engine   GitEngine
	gitLimit *rate.Limiter
	sink     StatusSink

	mu              sync.Mutex
	pending         map[Priority]*pendingEntry
	lastFingerprint uint32
	isDragging      bool
	lastDragEventAt time.Time
	isSaving        bool
	lastGitCommit   time.Time
}

// StatusSink receives coordinator status events.
type StatusSink interface {
	Emit(eventType, message string)
}

// New builds a Coordinator. Per spec §4.4 rule 4, gitRateLimit of 0
// disables the coordinator's own Git rate limiting (the sync engine is
// itself batching); a negative value selects the spec's 5s default
// explicitly, for callers with no engine-side batching to lean on.
func New(delays map[Priority]Delays, export Exporter, local LocalWriter, engine GitEngine, gitRateLimit time.Duration, sink StatusSink) *Coordinator {
	if delays == nil {
		delays = DefaultDelayTable()
	}
	if gitRateLimit < 0 {
		gitRateLimit = defaultGitRateLim
	}
	var limiter *rate.Limiter
	if gitRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(gitRateLimit), 1)
	}
	return &Coordinator{
		delays:   delays,
		export:   export,
		local:    local,
		engine:   engine,
		gitLimit: limiter,
		sink:     sink,
		pending:  make(map[Priority]*pendingEntry),
	}
}

func (c *Coordinator) emit(eventType, message string) {
	if c.sink != nil {
		c.sink.Emit(eventType, message)
	}
}

// NotifyChange is the coordinator's single entry point: a change of
// kind affecting s arrives, gets classified to a priority, fingerprint
// checked, and queued or dropped per spec §4.4. dragging is the
// caller's own judgment that this change is part of an in-progress drag
// (e.g. a pointer-down/pointer-up span it is already tracking); it is
// OR'd with the coordinator's own < 100ms burst heuristic, per spec
// §4.4 rule 2's "if the context says so, or if..." definition.
func (c *Coordinator) NotifyChange(ctx context.Context, kind ChangeKind, s *state.CognitiveState, dragging bool) {
	dragging, endingDrag := c.updateDragState(kind, dragging)

	fp := Fingerprint(s)
	c.mu.Lock()
	unchanged := fp == c.lastFingerprint
	c.mu.Unlock()
	if unchanged && !dragging && !endingDrag {
		return
	}

	priority := ClassifyChange(kind)

	if dragging {
		c.enqueue(priority, s)
		return
	}

	if endingDrag {
		c.flushAndCommitImmediately(ctx, priority, s)
		return
	}

	c.enqueue(priority, s)
	c.scheduleTimers(ctx, priority)
}

// updateDragState applies spec §4.4 rule 2's drag definition: dragging
// if the caller's context says so (contextDragging), or if a
// node_position event arrives < 100ms after the previous one. While
// dragging, any change that meets neither condition (including a
// node_position event arriving 100ms or more after the previous one)
// ends the drag, signaling the caller to flush and commit immediately.
func (c *Coordinator) updateDragState(kind ChangeKind, contextDragging bool) (dragging, endingDrag bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()

	burst := false
	if kind == ChangeNodePosition {
		if !c.lastDragEventAt.IsZero() && now.Sub(c.lastDragEventAt) < dragBurstWindow {
			burst = true
		}
		c.lastDragEventAt = now
	}

	if contextDragging || burst {
		c.isDragging = true
		return true, false
	}
	if c.isDragging {
		c.isDragging = false
		return false, true
	}
	return false, false
}

func (c *Coordinator) enqueue(priority Priority, s *state.CognitiveState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[priority]; ok {
		e.state = s
		e.count++
		e.timestamp = time.Now()
	} else {
		c.pending[priority] = &pendingEntry{priority: priority, state: s, count: 1, timestamp: time.Now()}
	}

	c.evictIfOverCapacityLocked()
}

func (c *Coordinator) evictIfOverCapacityLocked() {
	if len(c.pending) <= maxQueueEntries {
		return
	}
	oldestPriority := Priority("")
	var oldestTime time.Time
	for p, e := range c.pending {
		if oldestTime.IsZero() || e.timestamp.Before(oldestTime) {
			oldestTime = e.timestamp
			oldestPriority = p
		}
	}
	if oldestPriority != "" {
		delete(c.pending, oldestPriority)
	}
}

func (c *Coordinator) scheduleTimers(ctx context.Context, priority Priority) {
	delays := c.delays[priority]

	c.mu.Lock()
	entry, ok := c.pending[priority]
	c.mu.Unlock()
	if !ok {
		return
	}

	if entry.localTimer != nil {
		entry.localTimer.Stop()
	}
	entry.localTimer = time.AfterFunc(delays.Local, func() {
		c.writeLocal(ctx, priority)
	})

	if entry.gitTimer != nil {
		entry.gitTimer.Stop()
	}
	entry.gitTimer = time.AfterFunc(delays.Git, func() {
		c.commitGit(ctx, priority)
	})
}

func (c *Coordinator) writeLocal(ctx context.Context, priority Priority) {
	c.mu.Lock()
	entry, ok := c.pending[priority]
	c.mu.Unlock()
	if !ok || c.local == nil || c.export == nil {
		return
	}
	text, err := c.export(entry.state)
	if err != nil {
		c.emit("error", "export failed: "+err.Error())
		return
	}
	if err := c.local(ctx, text); err != nil {
		c.emit("error", "local write failed: "+err.Error())
		return
	}
	c.emit("success", "local save complete")
}

func (c *Coordinator) commitGit(ctx context.Context, priority Priority) {
	if c.engine == nil {
		return
	}
	if ready, retry := c.readyForGitCommit(); !ready {
		if retry {
			time.AfterFunc(engineRetryDelay, func() { c.commitGit(ctx, priority) })
			return
		}
		c.mu.Lock()
		delete(c.pending, priority)
		c.mu.Unlock()
		return
	}
	if c.gitLimit != nil && !c.gitLimit.Allow() {
		time.AfterFunc(c.gitLimit.Reserve().Delay(), func() { c.commitGit(ctx, priority) })
		return
	}

	c.mu.Lock()
	entry, ok := c.pending[priority]
	c.mu.Unlock()
	if !ok {
		return
	}
	text, err := c.export(entry.state)
	if err != nil {
		c.emit("error", "export failed: "+err.Error())
		return
	}
	if err := c.engine.ForceCommit(ctx, text); err != nil {
		c.emit("error", "git commit failed: "+err.Error())
		return
	}

	c.mu.Lock()
	c.lastGitCommit = time.Now()
	c.lastFingerprint = Fingerprint(entry.state)
	delete(c.pending, priority)
	c.mu.Unlock()
	c.emit("success", "git commit complete")
}

// readyForGitCommit implements spec §4.4 rule 5: a healthy engine is
// ready; an unhealthy engine that has been used before is retried later
// (retry is true); an engine that has never been used (lazy boot) is
// neither ready nor retried, and the caller silently drops the entry.
func (c *Coordinator) readyForGitCommit() (ready, retry bool) {
	if c.engine.IsHealthy() {
		return true, false
	}
	status := c.engine.GetStatus()
	everUsed := !status.LastCommitTime.IsZero() || status.ConsecutiveErrors > 0
	return false, everUsed
}

func (c *Coordinator) flushAndCommitImmediately(ctx context.Context, priority Priority, s *state.CognitiveState) {
	c.enqueue(priority, s)

	c.mu.Lock()
	entry := c.pending[priority]
	c.mu.Unlock()
	if entry == nil {
		return
	}
	if c.local != nil && c.export != nil {
		if text, err := c.export(entry.state); err == nil {
			c.local(ctx, text)
		}
	}
	if c.engine != nil {
		if text, err := c.export(entry.state); err == nil {
			if err := c.engine.ForceCommit(ctx, text); err == nil {
				c.mu.Lock()
				c.lastGitCommit = time.Now()
				c.lastFingerprint = Fingerprint(entry.state)
				c.mu.Unlock()
			}
		}
	}
	c.mu.Lock()
	delete(c.pending, priority)
	c.mu.Unlock()
	c.emit("success", "post-drag commit complete")
}

// ForceSave clears all pending timers, writes local immediately, calls
// ForceCommit on the engine, updates the fingerprint, and clears the
// queue (spec §4.4 rule 6).
func (c *Coordinator) ForceSave(ctx context.Context, s *state.CognitiveState) error {
	c.mu.Lock()
	c.isSaving = true
	for _, e := range c.pending {
		if e.localTimer != nil {
			e.localTimer.Stop()
		}
		if e.gitTimer != nil {
			e.gitTimer.Stop()
		}
	}
	c.pending = make(map[Priority]*pendingEntry)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isSaving = false
		c.mu.Unlock()
	}()

	text, err := c.export(s)
	if err != nil {
		return err
	}
	if c.local != nil {
		if err := c.local(ctx, text); err != nil {
			c.emit("error", "force-save local write failed: "+err.Error())
		}
	}
	if c.engine != nil {
		if err := c.engine.ForceCommit(ctx, text); err != nil {
			c.emit("error", "force-save git commit failed: "+err.Error())
			return err
		}
		c.mu.Lock()
		c.lastGitCommit = time.Now()
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.lastFingerprint = Fingerprint(s)
	c.mu.Unlock()
	c.emit("success", "force save complete")
	return nil
}

// Status is a point-in-time snapshot of the coordinator, returned by
// GetStatus (spec §4.4's getStatus).
type Status struct {
	IsSaving      bool
	IsDragging    bool
	PendingByName map[Priority]PendingInfo
	LastGitCommit time.Time
}

// PendingInfo describes one priority's queued entry.
type PendingInfo struct {
	Count int
	Age   time.Duration
}

// GetStatus returns a point-in-time snapshot of the coordinator.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make(map[Priority]PendingInfo, len(c.pending))
	names := make([]string, 0, len(c.pending))
	for p := range c.pending {
		names = append(names, string(p))
	}
	sort.Strings(names)
	for _, n := range names {
		e := c.pending[Priority(n)]
		pending[Priority(n)] = PendingInfo{Count: e.count, Age: time.Since(e.timestamp)}
	}
	return Status{
		IsSaving:      c.isSaving,
		IsDragging:    c.isDragging,
		PendingByName: pending,
		LastGitCommit: c.lastGitCommit,
	}
}
