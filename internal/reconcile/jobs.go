package reconcile

import (
	"context"
	"time"

	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/logger"
	"github.com/devfolio/accountguard/pkg/metrics"
)

// Summary is the per-run result of the full scan, reported separately from
// the per-user audit entries.
type Summary struct {
	UsersChecked int `json:"usersChecked"`
	IssuesFound  int `json:"issuesFound"`
}

// Jobs bundles the three reconciliation job bodies so the scheduler can be
// tested with fakes.
type Jobs interface {
	FullScan(ctx context.Context) (Summary, error)
	ExpirySweep(ctx context.Context) (int, error)
	LogGC(ctx context.Context, retention time.Duration) (int64, error)
}

// Reconciler implements Jobs over the consistency service and the stores.
type Reconciler struct {
	svc      *consistency.Service
	profiles profiles.Repository
	logs     auditlog.Logs
	now      func() time.Time
}

func NewReconciler(svc *consistency.Service, p profiles.Repository, logs auditlog.Logs) *Reconciler {
	return &Reconciler{
		svc:      svc,
		profiles: p,
		logs:     logs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the reconciler clock and returns the reconciler.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// FullScan runs the checker's divergence logic over every profile. A
// missing identity record suspends the user (there is no live request to
// reject); already-suspended users are never touched, so the expiry clock
// is never extended. Per-user failures are logged and skipped;
// UsersChecked counts every attempted profile.
func (r *Reconciler) FullScan(ctx context.Context) (Summary, error) {
	all, err := r.profiles.All(ctx)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("full_scan", "error").Inc()
		return Summary{}, err
	}

	var sum Summary
	for _, p := range all {
		sum.UsersChecked++
		if p.IsTemporarilySuspended {
			continue
		}
		issue, err := r.svc.CheckIdentity(ctx, p)
		if err != nil {
			logger.Errorf("full scan: user %s: %v", p.ID, err)
			continue
		}
		if issue {
			sum.IssuesFound++
		}
	}

	metrics.ReconcileRuns.WithLabelValues("full_scan", "ok").Inc()
	logger.Infof("full scan complete: usersChecked=%d issuesFound=%d", sum.UsersChecked, sum.IssuesFound)
	return sum, nil
}

// ExpirySweep deletes every suspended account whose window has elapsed.
// The boundary is inclusive and the delete is idempotent, so racing the
// inline expiry path on the same account is harmless.
func (r *Reconciler) ExpirySweep(ctx context.Context) (int, error) {
	expired, err := r.profiles.SuspendedExpiredBefore(ctx, r.now())
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("expiry_sweep", "error").Inc()
		return 0, err
	}

	deleted := 0
	for _, p := range expired {
		if err := r.svc.Delete(ctx, p.ID, consistency.ReasonSuspensionExpired); err != nil {
			logger.Errorf("expiry sweep: delete %s: %v", p.ID, err)
			continue
		}
		deleted++
	}

	metrics.ReconcileRuns.WithLabelValues("expiry_sweep", "ok").Inc()
	if deleted > 0 {
		logger.Infof("expiry sweep complete: deleted=%d", deleted)
	}
	return deleted, nil
}

// LogGC removes audit entries that are both resolved and older than the
// retention period. Unresolved entries are kept regardless of age.
func (r *Reconciler) LogGC(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention)
	removed, err := r.logs.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("log_gc", "error").Inc()
		return 0, err
	}
	metrics.ReconcileRuns.WithLabelValues("log_gc", "ok").Inc()
	logger.Infof("log gc complete: removed=%d (cutoff=%s)", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}
