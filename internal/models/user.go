package models

import (
	"strings"
	"time"
)

// Required profile fields checked by the consistency layer.
const (
	FieldEmail = "email"
	FieldName  = "name"
	FieldRole  = "role"
)

// SuspensionWindow is the fixed period a flagged account stays reachable
// through remediation paths before it is deleted.
const SuspensionWindow = 30 * 24 * time.Hour

// UserIdentity is the identity provider's record of a user. It is read and
// written only through the provider client, never stored locally.
type UserIdentity struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"emailVerified"`
	Disabled      bool     `json:"disabled"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
}

// Inconsistency describes a single field whose value diverges between the
// identity provider record and the profile document.
type Inconsistency struct {
	Field         string `bson:"field" json:"field"`
	IdentityValue string `bson:"identityValue" json:"identityValue"`
	ProfileValue  string `bson:"profileValue" json:"profileValue"`
}

// UserProfile is the application's record of a user, stored in the
// `profiles` collection. Its id equals the identity provider's user id.
//
// When IsTemporarilySuspended is false, MissingFields and Inconsistencies
// are empty and SuspensionExpiresAt is nil. When SuspensionExpiresAt is
// set it equals SuspendedAt + SuspensionWindow.
type UserProfile struct {
	ID                     string          `bson:"_id" json:"id"`
	Email                  string          `bson:"email" json:"email"`
	Name                   string          `bson:"name" json:"name"`
	Role                   string          `bson:"role" json:"role"`
	Permissions            []string        `bson:"permissions" json:"permissions"`
	IsActive               bool            `bson:"isActive" json:"isActive"`
	IsTemporarilySuspended bool            `bson:"isTemporarilySuspended" json:"isTemporarilySuspended"`
	SuspensionReason       string          `bson:"suspensionReason,omitempty" json:"suspensionReason,omitempty"`
	SuspendedAt            *time.Time      `bson:"suspendedAt,omitempty" json:"suspendedAt,omitempty"`
	SuspensionExpiresAt    *time.Time      `bson:"suspensionExpiresAt,omitempty" json:"suspensionExpiresAt,omitempty"`
	DataIncomplete         bool            `bson:"dataIncomplete" json:"dataIncomplete"`
	MissingFields          []string        `bson:"missingFields,omitempty" json:"missingFields,omitempty"`
	Inconsistencies        []Inconsistency `bson:"inconsistencies,omitempty" json:"inconsistencies,omitempty"`
	ManuallyRestored       bool            `bson:"manuallyRestored" json:"manuallyRestored"`
	CreatedAt              time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt              time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// MissingRequiredFields returns which of the required fields are empty
// after trimming, in the fixed order email, name, role.
func (p *UserProfile) MissingRequiredFields() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{FieldEmail, p.Email},
		{FieldName, p.Name},
		{FieldRole, p.Role},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// SuspensionExpired reports whether the suspension window has elapsed at
// the given instant. The boundary is inclusive: a profile whose window
// ends exactly now is expired.
func (p *UserProfile) SuspensionExpired(now time.Time) bool {
	return p.IsTemporarilySuspended && p.SuspensionExpiresAt != nil && !p.SuspensionExpiresAt.After(now)
}
