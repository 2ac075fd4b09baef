package identity

import (
	"context"
	"errors"

	"github.com/devfolio/accountguard/internal/models"
)

// ErrUserNotFound is returned by GetUser when the identity provider has no
// record for the requested id.
var ErrUserNotFound = errors.New("identity: user not found")

// Provider is the subset of the identity provider's admin API this service
// depends on. Implemented by KeycloakProvider and by the in-memory fake.
type Provider interface {
	// GetUser loads the identity record, or ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*models.UserIdentity, error)
	// UpdateUser mirrors email/display-name changes back to the provider.
	UpdateUser(ctx context.Context, id, email, displayName string) error
	// SetCustomClaims replaces the role/permission claims on the record.
	SetCustomClaims(ctx context.Context, id, role string, permissions []string) error
	// DeleteUser removes the identity record. Deleting an unknown id is an error.
	DeleteUser(ctx context.Context, id string) error
}
