package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeJobs lets tests block a job mid-run to exercise the run-locks.
type fakeJobs struct {
	mu        sync.Mutex
	scanCalls int
	release   chan struct{}
}

func (f *fakeJobs) FullScan(ctx context.Context) (Summary, error) {
	f.mu.Lock()
	f.scanCalls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return Summary{UsersChecked: 1}, nil
}

func (f *fakeJobs) ExpirySweep(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeJobs) LogGC(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func TestScheduler_StartTwiceIsGuarded(t *testing.T) {
	s := NewScheduler(&fakeJobs{}, DefaultConfig())
	require.Equal(t, StateNotStarted, s.State())

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateRunning, s.State())
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	s.Stop()
	require.Equal(t, StateStopped, s.State())
	require.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestScheduler_StopTwiceIsNoOp(t *testing.T) {
	s := NewScheduler(&fakeJobs{}, DefaultConfig())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
	require.Equal(t, StateStopped, s.State())
}

func TestScheduler_OverlappingRunOfSameJobIsSkipped(t *testing.T) {
	jobs := &fakeJobs{release: make(chan struct{})}
	s := NewScheduler(jobs, DefaultConfig())

	started := make(chan struct{})
	go func() {
		close(started)
		_, err := s.RunFullScan(context.Background())
		require.NoError(t, err)
	}()
	<-started
	// wait until the first run holds the lock
	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return jobs.scanCalls == 1
	}, time.Second, time.Millisecond)

	_, err := s.RunFullScan(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(jobs.release)
	// lock released: the job runs again
	require.Eventually(t, func() bool {
		_, err := s.RunFullScan(context.Background())
		return err == nil
	}, time.Second, time.Millisecond)
}

func TestScheduler_DifferentJobTypesMayOverlap(t *testing.T) {
	jobs := &fakeJobs{release: make(chan struct{})}
	s := NewScheduler(jobs, DefaultConfig())

	go func() { _, _ = s.RunFullScan(context.Background()) }()
	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return jobs.scanCalls == 1
	}, time.Second, time.Millisecond)

	// a slow scan must not block the other job types
	_, err := s.RunExpirySweep(context.Background())
	require.NoError(t, err)
	_, err = s.RunLogGC(context.Background())
	require.NoError(t, err)

	close(jobs.release)
}
