/*
sweeper.go - Background escalation sweep scheduler

PURPOSE:
  Periodically runs the escalation engine's Sweep so stalled approvals move
  up the chain without an external cron. The engine itself only exposes
  Sweep(); all scheduling lives here.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Sweeps are idempotent, so overlapping schedules are harmless
  - Records outcome counts and duration in Prometheus

USAGE:
  sweeper := NewSweeper(engine, interval, metrics, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - workflow/escalation.go: the sweep itself
  - handlers.go: TriggerSweep endpoint (manual sweep)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/workflow"
)

// Sweeper schedules periodic escalation sweeps.
type Sweeper struct {
	Engine   *workflow.EscalationEngine
	Interval time.Duration
	Metrics  *Metrics
	Log      zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper. A non-positive interval defaults to one hour.
func NewSweeper(engine *workflow.EscalationEngine, interval time.Duration, metrics *Metrics, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		Engine:   engine,
		Interval: interval,
		Metrics:  metrics,
		Log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info().Dur("interval", s.Interval).Msg("escalation sweeper started")
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info().Msg("escalation sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx := context.Background()
	start := time.Now()

	result, err := s.Engine.Sweep(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.Log.Error().Err(err).Msg("escalation sweep failed")
		return
	}
	if s.Metrics != nil {
		s.Metrics.RecordSweep(result, elapsed)
	}
	if result.Scanned > 0 {
		s.Log.Info().
			Int("scanned", result.Scanned).
			Int("escalated", result.Escalated).
			Int("auto_approved", result.AutoApproved).
			Int("skipped", result.Skipped).
			Int("errors", result.Errors).
			Dur("elapsed", elapsed).
			Msg("escalation sweep completed")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *Sweeper) RunNow() {
	s.sweep()
}
