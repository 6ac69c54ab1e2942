// Package timing implements the delayed one-shot execution primitives
// named in §4.7 (auto-trigger, ~1.5s) and §4.8 (handoff-emit, ~2s): wall-
// clock delays that exist only to avoid overlapping speech audio, not
// correctness-critical ordering (§9's design note: "treat these as design
// parameters, not magic numbers").
//
// Grounded on the teacher's internal/cron scheduler, generalized from
// recurring cron-spec jobs down to a single Schedule implementation that
// fires exactly once after a fixed delay, then removes itself.
package timing

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Default delays, overridable per call site so tests can shrink them.
const (
	DefaultAutoTriggerDelay = 1500 * time.Millisecond
	DefaultHandoffEmitDelay = 2000 * time.Millisecond
)

// Scheduler runs one-shot delayed callbacks on a shared cron engine
// instead of one `time.AfterFunc` per timer, so every delayed callback in
// the process is visible to (and cancellable through) a single registry,
// matching the teacher's single-scheduler-instance idiom.
type Scheduler struct {
	engine *cron.Cron
	mu     sync.Mutex
	active map[cron.EntryID]struct{}
}

// NewScheduler starts the underlying cron engine immediately; callers
// must call Stop on shutdown to release its goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		engine: cron.New(),
		active: make(map[cron.EntryID]struct{}),
	}
	s.engine.Start()
	return s
}

// oneShot is a cron.Schedule that fires exactly once, `delay` after it is
// registered, and thereafter never again (time.Time{} effectively never,
// since cron stops invoking a job once Next returns a time before "now"
// is past it only once — we guard with a fired flag for clarity).
type oneShot struct {
	mu    sync.Mutex
	at    time.Time
	fired bool
}

func newOneShot(delay time.Duration) *oneShot {
	return &oneShot{at: time.Now().Add(delay)}
}

func (o *oneShot) Next(now time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired {
		return time.Time{}
	}
	return o.at
}

// After schedules fn to run once after delay elapses. It returns a Cancel
// function the caller may invoke to prevent fn from running if the delay
// has not yet elapsed (e.g. the session disconnected before the
// auto-trigger fired).
func (s *Scheduler) After(delay time.Duration, fn func()) (cancel func()) {
	shot := newOneShot(delay)
	var id cron.EntryID

	id = s.engine.Schedule(shot, cron.FuncJob(func() {
		shot.mu.Lock()
		shot.fired = true
		shot.mu.Unlock()

		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		s.engine.Remove(id)

		fn()
	}))

	s.mu.Lock()
	s.active[id] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.active[id]; !ok {
			return
		}
		delete(s.active, id)
		s.engine.Remove(id)
	}
}

// Stop drains the engine, waiting for any in-flight callback to return.
func (s *Scheduler) Stop() {
	ctx := s.engine.Stop()
	<-ctx.Done()
}
