// Package reclaim schedules the space-reclamation pass a Manager exposes:
// periodically, and on demand whenever Trigger is called (Engine.Reclaim
// does so). Commits and closing readers do not trigger a pass by themselves.
//
// Grounded on mjm918-tur's pkg/mvcc.VersionChain.PruneOldVersions for the
// underlying walk-and-cutoff algorithm (implemented on txn.Manager itself,
// since it needs the same tight access to the catalog trees that
// PruneOldVersions has to its own VersionChain); this package is the
// periodic caller around it, in the idiom of a background GC ticker.
package reclaim

import (
	"sync"
	"time"
)

// Reclaimer is the subset of *txn.Manager the scheduler needs. Declared
// here rather than imported directly so this package has no hard
// dependency on pkg/txn's internals beyond this one exported method.
type Reclaimer interface {
	Reclaim() error
}

// Scheduler runs Reclaim on an interval and lets callers ask for an
// out-of-band pass (e.g. right after a commit, or after a reader closes).
type Scheduler struct {
	target   Reclaimer
	interval time.Duration

	mu      sync.Mutex
	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}

	lastErr error
}

// Start launches a background goroutine that calls target.Reclaim() every
// interval, plus immediately whenever Trigger is called. Call Stop to shut
// it down.
func Start(target Reclaimer, interval time.Duration) *Scheduler {
	s := &Scheduler{
		target:   target,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Trigger requests an out-of-band reclamation pass as soon as the
// scheduler goroutine is free; it never blocks the caller.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the background goroutine and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// LastError returns the error from the most recent reclamation pass, if
// any. Reclaim failures are not fatal -- the next pass simply tries again.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.run()
		case <-s.trigger:
			s.run()
		}
	}
}

func (s *Scheduler) run() {
	err := s.target.Reclaim()
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
