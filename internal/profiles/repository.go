package profiles

import (
	"context"
	"time"

	"github.com/devfolio/accountguard/internal/models"
)

// Repository defines persistence operations for user profiles.
type Repository interface {
	// Get returns the profile or nil when absent.
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	// Put upserts the full document, maintaining createdAt/updatedAt.
	Put(ctx context.Context, p *models.UserProfile) error
	// Delete removes the document. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
	// All returns every profile (used by the full scan).
	All(ctx context.Context) ([]*models.UserProfile, error)
	// SuspendedExpiredBefore returns suspended profiles whose window ended
	// at or before t, ordered by expiry.
	SuspendedExpiredBefore(ctx context.Context, t time.Time) ([]*models.UserProfile, error)
	// CountSuspended returns the number of currently suspended profiles.
	CountSuspended(ctx context.Context) (int64, error)
}
