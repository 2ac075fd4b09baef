package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devfolio/accountguard/pkg/logger"
)

// Scheduler lifecycle states. Transitions are one-way:
// NotStarted -> Running -> Stopped.
const (
	StateNotStarted int32 = iota
	StateRunning
	StateStopped
)

var (
	// ErrAlreadyStarted makes a second Start a guarded no-op at the call
	// site instead of silently spawning duplicate job loops.
	ErrAlreadyStarted = errors.New("reconcile: scheduler already started")
	ErrStopped        = errors.New("reconcile: scheduler stopped")
	// ErrRunInProgress is returned when a job trigger fires while the
	// previous run of the same job is still going; the trigger is skipped
	// rather than overlapped.
	ErrRunInProgress = errors.New("reconcile: previous run still in progress")
)

// Config holds the job schedules and retention policy.
type Config struct {
	FullScanInterval    time.Duration
	ExpirySweepInterval time.Duration
	LogGCInterval       time.Duration
	LogRetention        time.Duration
}

// DefaultConfig returns the production schedule: daily scan, hourly sweep,
// monthly log GC with 90-day retention of resolved entries.
func DefaultConfig() Config {
	return Config{
		FullScanInterval:    24 * time.Hour,
		ExpirySweepInterval: time.Hour,
		LogGCInterval:       30 * 24 * time.Hour,
		LogRetention:        90 * 24 * time.Hour,
	}
}

// Scheduler owns the three reconciliation job loops. Each job type holds a
// compare-and-swap run-lock so overlapping triggers of the same job are
// skipped; different job types may run concurrently since they act on
// disjoint predicates (the shared Delete path is idempotent).
type Scheduler struct {
	jobs Jobs
	cfg  Config

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	scanRunning  atomic.Bool
	sweepRunning atomic.Bool
	gcRunning    atomic.Bool
}

func NewScheduler(jobs Jobs, cfg Config) *Scheduler {
	if cfg.FullScanInterval <= 0 {
		cfg.FullScanInterval = DefaultConfig().FullScanInterval
	}
	if cfg.ExpirySweepInterval <= 0 {
		cfg.ExpirySweepInterval = DefaultConfig().ExpirySweepInterval
	}
	if cfg.LogGCInterval <= 0 {
		cfg.LogGCInterval = DefaultConfig().LogGCInterval
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = DefaultConfig().LogRetention
	}
	return &Scheduler{jobs: jobs, cfg: cfg}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() int32 {
	return s.state.Load()
}

// Start launches the three job loops. Starting twice returns
// ErrAlreadyStarted; starting after Stop returns ErrStopped.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(StateNotStarted, StateRunning) {
		if s.state.Load() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(3)
	go s.loop(ctx, "full_scan", s.cfg.FullScanInterval, func(ctx context.Context) error {
		_, err := s.RunFullScan(ctx)
		return err
	})
	go s.loop(ctx, "expiry_sweep", s.cfg.ExpirySweepInterval, func(ctx context.Context) error {
		_, err := s.RunExpirySweep(ctx)
		return err
	})
	go s.loop(ctx, "log_gc", s.cfg.LogGCInterval, func(ctx context.Context) error {
		_, err := s.RunLogGC(ctx)
		return err
	})
	logger.Infof("reconcile scheduler started (scan=%s sweep=%s gc=%s)",
		s.cfg.FullScanInterval, s.cfg.ExpirySweepInterval, s.cfg.LogGCInterval)
	return nil
}

// Stop cancels the job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if !s.state.CompareAndSwap(StateRunning, StateStopped) {
		return
	}
	s.cancel()
	s.wg.Wait()
	logger.Infof("reconcile scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					logger.Warnf("%s: trigger fired while previous run active, skipping", name)
					continue
				}
				logger.Errorf("%s failed: %v", name, err)
			}
		}
	}
}

// RunFullScan executes one daily scan, guarded against overlap.
func (s *Scheduler) RunFullScan(ctx context.Context) (Summary, error) {
	if !s.scanRunning.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer s.scanRunning.Store(false)
	return s.jobs.FullScan(ctx)
}

// RunExpirySweep executes one hourly sweep, guarded against overlap.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (int, error) {
	if !s.sweepRunning.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer s.sweepRunning.Store(false)
	return s.jobs.ExpirySweep(ctx)
}

// RunLogGC executes one log garbage collection, guarded against overlap.
func (s *Scheduler) RunLogGC(ctx context.Context) (int64, error) {
	if !s.gcRunning.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer s.gcRunning.Store(false)
	return s.jobs.LogGC(ctx, s.cfg.LogRetention)
}
