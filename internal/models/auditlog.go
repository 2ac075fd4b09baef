package models

import "time"

// Log entry types. One entry is written per detected anomaly and per
// lifecycle exit, forming an append-only trail per user.
const (
	LogMissingProfileRecord  = "missing_profile_record"
	LogMissingIdentityRecord = "missing_identity_record"
	LogDataMismatch          = "data_mismatch"
	LogProfileCompleted      = "profile_completed"
	LogManualRestoration     = "manual_restoration"
	LogAccountDeleted        = "account_deleted"
)

// LogDetails carries the anomaly-specific payload of a log entry. Each
// entry type populates its own subset of fields; the shape is fixed so the
// payload of every type is checked at compile time.
type LogDetails struct {
	Reason          string          `bson:"reason,omitempty" json:"reason,omitempty"`
	MissingFields   []string        `bson:"missingFields,omitempty" json:"missingFields,omitempty"`
	Inconsistencies []Inconsistency `bson:"inconsistencies,omitempty" json:"inconsistencies,omitempty"`
	Email           string          `bson:"email,omitempty" json:"email,omitempty"`
	Name            string          `bson:"name,omitempty" json:"name,omitempty"`
	Notes           string          `bson:"notes,omitempty" json:"notes,omitempty"`
}

// InconsistencyLogEntry is one row of the audit trail, stored in the
// `inconsistencyLogs` collection. Entries are append-only; only the
// resolution fields are ever mutated after the fact.
type InconsistencyLogEntry struct {
	ID         string     `bson:"_id" json:"id"`
	UserID     string     `bson:"userId" json:"userId"`
	Type       string     `bson:"type" json:"type"`
	Details    LogDetails `bson:"details" json:"details"`
	Resolved   bool       `bson:"resolved" json:"resolved"`
	ResolvedBy string     `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	Timestamp  time.Time  `bson:"timestamp" json:"timestamp"`
}

// DeletedAccountRecord snapshots a profile at the moment of deletion,
// stored in the `deletedAccounts` collection. Written exactly once per
// deletion and never mutated.
type DeletedAccountRecord struct {
	ID        string      `bson:"_id" json:"id"`
	UserID    string      `bson:"userId" json:"userId"`
	Profile   UserProfile `bson:"profile" json:"profile"`
	Reason    string      `bson:"reason" json:"reason"`
	DeletedAt time.Time   `bson:"deletedAt" json:"deletedAt"`
}
