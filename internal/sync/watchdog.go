package sync

import (
	"log"
	"sync"
	"time"
)

// warnThreshold is the number of consecutive unhealthy observations
// before the watchdog logs a warning; userWarnThreshold is the point at
// which that warning should also reach the user-visible status feed
// (spec §4.3: "≥2 consecutive unhealthy: warning, ≥3: user-visible").
const (
	warnThreshold     = 2
	userWarnThreshold = 3
)

// StatusSink receives user-visible watchdog warnings. internal/universe
// wires this to its status event stream.
type StatusSink interface {
	Warn(universeSlug, message string)
}

// Watched pairs an Engine with the universe slug it belongs to, for the
// watchdog's per-engine bookkeeping.
type Watched struct {
	Slug   string
	Engine *Engine
}

// Watchdog periodically polls a set of engines' health. It never
// restarts an engine — restarting Git sync state automatically risks
// clobbering a user's in-flight edits — it only escalates warnings.
type Watchdog struct {
	interval time.Duration
	sink     StatusSink

	mu               sync.Mutex
	engines          []Watched
	unhealthyStreaks map[string]int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatchdog builds a watchdog polling at interval (spec §4.3:
// autoSaveFrequency × 60).
func NewWatchdog(interval time.Duration, sink StatusSink) *Watchdog {
	return &Watchdog{
		interval:         interval,
		sink:             sink,
		unhealthyStreaks: make(map[string]int),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Watch registers an engine for health polling.
func (w *Watchdog) Watch(slug string, e *Engine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.engines = append(w.engines, Watched{Slug: slug, Engine: e})
}

// Unwatch removes an engine, e.g. when its universe is deleted.
func (w *Watchdog) Unwatch(slug string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.engines[:0]
	for _, we := range w.engines {
		if we.Slug != slug {
			kept = append(kept, we)
		}
	}
	w.engines = kept
	delete(w.unhealthyStreaks, slug)
}

// Start begins the polling loop.
func (w *Watchdog) Start() {
	go w.run()
}

// Stop ends the polling loop.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watchdog) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkAll()
		}
	}
}

func (w *Watchdog) checkAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, we := range w.engines {
		if we.Engine.IsHealthy() {
			w.unhealthyStreaks[we.Slug] = 0
			continue
		}
		w.unhealthyStreaks[we.Slug]++
		streak := w.unhealthyStreaks[we.Slug]
		if streak >= warnThreshold {
			log.Printf("[sync] watchdog: universe %s unhealthy for %d consecutive checks", we.Slug, streak)
		}
		if streak >= userWarnThreshold && w.sink != nil {
			w.sink.Warn(we.Slug, "Git sync has been failing repeatedly; check your connection or repository access.")
		}
	}
}
