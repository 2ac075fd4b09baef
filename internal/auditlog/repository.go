package auditlog

import (
	"context"
	"errors"
	"time"

	"github.com/devfolio/accountguard/internal/models"
)

// ErrEntryNotFound is returned when a log entry id does not exist.
var ErrEntryNotFound = errors.New("auditlog: entry not found")

// Filter narrows listings of log entries. Zero values mean "any".
type Filter struct {
	Resolved *bool
	Type     string
	Limit    int
}

// Logs is the append-only inconsistency log. Entries are never mutated
// after Append except through MarkResolved.
type Logs interface {
	Append(ctx context.Context, e *models.InconsistencyLogEntry) error
	Get(ctx context.Context, id string) (*models.InconsistencyLogEntry, error)
	// List returns entries newest first.
	List(ctx context.Context, f Filter) ([]*models.InconsistencyLogEntry, error)
	ByUser(ctx context.Context, userID string) ([]*models.InconsistencyLogEntry, error)
	MarkResolved(ctx context.Context, id, by, notes string, at time.Time) error
	// DeleteResolvedBefore removes entries that are resolved and older than
	// cutoff, returning how many were removed. Unresolved entries are
	// retained regardless of age.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// CountByType returns total per entry type plus the unresolved total.
	CountByType(ctx context.Context) (map[string]int64, int64, error)
}

// DeletedAccounts stores the immutable snapshot written on each deletion.
type DeletedAccounts interface {
	Add(ctx context.Context, rec *models.DeletedAccountRecord) error
	// ByUser returns the record for a deleted user id, or nil.
	ByUser(ctx context.Context, userID string) (*models.DeletedAccountRecord, error)
	// List returns records newest first, capped at limit (0 = no cap).
	List(ctx context.Context, limit int) ([]*models.DeletedAccountRecord, error)
}
