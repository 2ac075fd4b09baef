package consistency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/identity"
	"github.com/devfolio/accountguard/internal/models"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/logger"
	"github.com/devfolio/accountguard/pkg/metrics"
)

// Roles recognized by the checker. Admin principals bypass the check so a
// bad scan can never lock out the accounts needed to repair it.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Restore triggers.
const (
	TriggerProfileCompleted = "profile_completed"
	TriggerManual           = "manual"
)

// Suspension / deletion reasons surfaced in profiles and audit entries.
const (
	ReasonDataInconsistency     = "Data inconsistency detected"
	ReasonProfileRecordMissing  = "Profile record missing"
	ReasonIdentityRecordMissing = "Identity record missing"
	ReasonSuspensionExpired     = "Suspension expired - incomplete data"
)

var (
	// ErrAccountDeleted is terminal: the suspension window elapsed and the
	// account no longer exists. Distinct from a live suspension so clients
	// don't offer remediation for a deleted account.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrIdentityMissing means a profile exists but the identity provider
	// has no matching record. There is no automated repair: the correct
	// direction of truth is ambiguous.
	ErrIdentityMissing = errors.New("identity record missing")
	// ErrAlreadySuspended guards the expiry clock: suspending twice would
	// silently extend the window.
	ErrAlreadySuspended = errors.New("user already suspended")
	ErrProfileNotFound  = errors.New("profile not found")
	// ErrValidation wraps malformed self-service input; no state changes.
	ErrValidation = errors.New("validation failed")
)

// Principal is the already-authenticated caller as seen by this subsystem.
type Principal struct {
	ID   string
	Role string
}

// Annotation is attached to the request principal for downstream gating.
type Annotation struct {
	NeedsDataCompletion bool                   `json:"needsDataCompletion"`
	IsSuspended         bool                   `json:"isSuspended"`
	SuspensionExpiresAt *time.Time             `json:"suspensionExpiresAt,omitempty"`
	MissingFields       []string               `json:"missingFields,omitempty"`
	Inconsistencies     []models.Inconsistency `json:"inconsistencies,omitempty"`
}

// Service implements the consistency checker and the suspension lifecycle
// primitives over the two stores. The profile store is the authoritative
// read path; the identity provider is consulted for divergence and written
// only best-effort.
type Service struct {
	profiles profiles.Repository
	logs     auditlog.Logs
	deleted  auditlog.DeletedAccounts
	provider identity.Provider
	now      func() time.Time
}

func NewService(p profiles.Repository, logs auditlog.Logs, deleted auditlog.DeletedAccounts, provider identity.Provider) *Service {
	return &Service{
		profiles: p,
		logs:     logs,
		deleted:  deleted,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock and returns the service. Used by
// tests and the reconciliation scheduler to drive simulated time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Check compares the principal's identity and profile records and runs the
// suspension lifecycle inline. Returns the annotation for downstream
// gating, or ErrAccountDeleted / ErrIdentityMissing when the request must
// be rejected. Idempotent on re-entry except for those two terminal paths.
func (s *Service) Check(ctx context.Context, pr Principal) (*Annotation, error) {
	if pr.Role == RoleAdmin {
		return &Annotation{}, nil
	}

	p, err := s.profiles.Get(ctx, pr.ID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if p == nil {
		// A missing profile for an id with a deletion record is a deleted
		// account, not a fresh sign-in; re-synthesizing it would resurrect
		// the user past the window.
		rec, err := s.deleted.ByUser(ctx, pr.ID)
		if err != nil {
			return nil, fmt.Errorf("check deleted accounts: %w", err)
		}
		if rec != nil {
			return nil, ErrAccountDeleted
		}
		return s.synthesizeProfile(ctx, pr)
	}

	if p.IsTemporarilySuspended {
		if p.SuspensionExpired(s.now()) {
			if err := s.Delete(ctx, p.ID, ReasonSuspensionExpired); err != nil {
				return nil, fmt.Errorf("delete expired account: %w", err)
			}
			return nil, ErrAccountDeleted
		}
		return &Annotation{
			NeedsDataCompletion: p.DataIncomplete,
			IsSuspended:         true,
			SuspensionExpiresAt: p.SuspensionExpiresAt,
			MissingFields:       p.MissingFields,
			Inconsistencies:     p.Inconsistencies,
		}, nil
	}

	ident, err := s.provider.GetUser(ctx, pr.ID)
	if err != nil {
		s.appendLog(ctx, pr.ID, models.LogMissingIdentityRecord, models.LogDetails{
			Reason: err.Error(),
		})
		return nil, ErrIdentityMissing
	}

	inconsistencies, missing := diffRecords(p, ident)
	if len(inconsistencies) > 0 || len(missing) > 0 {
		if err := s.Suspend(ctx, p.ID, ReasonDataInconsistency, inconsistencies, missing); err != nil {
			return nil, fmt.Errorf("suspend: %w", err)
		}
		expires := s.now().Add(models.SuspensionWindow)
		return &Annotation{
			NeedsDataCompletion: len(missing) > 0,
			IsSuspended:         true,
			SuspensionExpiresAt: &expires,
			MissingFields:       missing,
			Inconsistencies:     inconsistencies,
		}, nil
	}

	return &Annotation{}, nil
}

// synthesizeProfile creates the minimal suspended viewer profile for an
// authenticated id with no profile record.
func (s *Service) synthesizeProfile(ctx context.Context, pr Principal) (*Annotation, error) {
	now := s.now()
	expires := now.Add(models.SuspensionWindow)
	missing := []string{models.FieldEmail, models.FieldName, models.FieldRole}
	p := &models.UserProfile{
		ID:                     pr.ID,
		Role:                   RoleViewer,
		IsActive:               false,
		IsTemporarilySuspended: true,
		SuspensionReason:       ReasonProfileRecordMissing,
		SuspendedAt:            &now,
		SuspensionExpiresAt:    &expires,
		DataIncomplete:         true,
		MissingFields:          missing,
	}
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.appendLog(ctx, pr.ID, models.LogMissingProfileRecord, models.LogDetails{
		Reason:        ReasonProfileRecordMissing,
		MissingFields: missing,
	})
	return &Annotation{
		NeedsDataCompletion: true,
		IsSuspended:         true,
		SuspensionExpiresAt: &expires,
		MissingFields:       missing,
	}, nil
}

// Suspend enters the user into the suspension window and writes one
// data_mismatch audit entry. Not idempotent: calling it on an already
// suspended user is an error so the expiry clock is never reset.
func (s *Service) Suspend(ctx context.Context, userID, reason string, inconsistencies []models.Inconsistency, missingFields []string) error {
	return s.suspend(ctx, userID, reason, inconsistencies, missingFields, models.LogDataMismatch)
}

// SuspendMissingIdentity is the full-scan variant: same lifecycle entry,
// but the audit entry records the missing identity record rather than a
// field mismatch.
func (s *Service) SuspendMissingIdentity(ctx context.Context, userID string) error {
	return s.suspend(ctx, userID, ReasonIdentityRecordMissing, nil, nil, models.LogMissingIdentityRecord)
}

func (s *Service) suspend(ctx context.Context, userID, reason string, inconsistencies []models.Inconsistency, missingFields []string, logType string) error {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProfileNotFound
	}
	if p.IsTemporarilySuspended {
		return ErrAlreadySuspended
	}

	now := s.now()
	expires := now.Add(models.SuspensionWindow)
	p.IsTemporarilySuspended = true
	p.SuspensionReason = reason
	p.SuspendedAt = &now
	p.SuspensionExpiresAt = &expires
	p.DataIncomplete = len(missingFields) > 0
	p.MissingFields = missingFields
	p.Inconsistencies = inconsistencies
	if err := s.profiles.Put(ctx, p); err != nil {
		return err
	}

	s.appendLog(ctx, userID, logType, models.LogDetails{
		Reason:          reason,
		Inconsistencies: inconsistencies,
		MissingFields:   missingFields,
	})
	logger.Warnf("suspended user %s until %s: %s", userID, expires.Format(time.RFC3339), reason)
	return nil
}

// Restore exits the suspension, clearing every suspension field, and
// writes one profile_completed or manual_restoration entry. History
// accumulates only in the log; the profile returns to a clean state.
func (s *Service) Restore(ctx context.Context, userID, trigger, by, notes string) error {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProfileNotFound
	}

	p.IsTemporarilySuspended = false
	p.SuspensionReason = ""
	p.SuspendedAt = nil
	p.SuspensionExpiresAt = nil
	p.DataIncomplete = false
	p.MissingFields = nil
	p.Inconsistencies = nil
	p.IsActive = true
	if trigger == TriggerManual {
		p.ManuallyRestored = true
	}
	if err := s.profiles.Put(ctx, p); err != nil {
		return err
	}

	logType := models.LogProfileCompleted
	details := models.LogDetails{Email: p.Email, Name: p.Name}
	if trigger == TriggerManual {
		logType = models.LogManualRestoration
		details = models.LogDetails{Notes: notes}
	}
	entry := &models.InconsistencyLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      logType,
		Details:   details,
		Resolved:  true,
		Timestamp: s.now(),
	}
	if by != "" {
		entry.ResolvedBy = by
		t := s.now()
		entry.ResolvedAt = &t
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Errorf("append %s log entry for %s: %v", logType, userID, err)
	}
	metrics.SuspensionExits.WithLabelValues(trigger).Inc()
	logger.Infof("restored user %s (trigger=%s)", userID, trigger)
	return nil
}

// Delete tears the account down: snapshot, audit entry, profile delete,
// best-effort identity delete. Idempotent so the inline expiry path and
// the hourly sweep can race on the same account.
func (s *Service) Delete(ctx context.Context, userID, reason string) error {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		// already gone
		return nil
	}

	now := s.now()
	rec := &models.DeletedAccountRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Profile:   *p,
		Reason:    reason,
		DeletedAt: now,
	}
	if err := s.deleted.Add(ctx, rec); err != nil {
		return fmt.Errorf("snapshot deleted account: %w", err)
	}
	s.appendLog(ctx, userID, models.LogAccountDeleted, models.LogDetails{Reason: reason})
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	// Best-effort: the profile store already reached its terminal value;
	// identity drift is picked up by the next full scan.
	if err := s.provider.DeleteUser(ctx, userID); err != nil && !errors.Is(err, identity.ErrUserNotFound) {
		logger.Warnf("delete identity record for %s: %v", userID, err)
	}
	metrics.SuspensionExits.WithLabelValues("deleted").Inc()
	logger.Infof("deleted account %s: %s", userID, reason)
	return nil
}

// CompleteProfile is the self-service suspension exit: validates input,
// updates the profile, restores the user, and mirrors the values back to
// the identity provider best-effort.
func (s *Service) CompleteProfile(ctx context.Context, userID, name, email string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProfileNotFound
	}

	p.Name = name
	p.Email = email
	if err := s.profiles.Put(ctx, p); err != nil {
		return err
	}
	if err := s.Restore(ctx, userID, TriggerProfileCompleted, "", ""); err != nil {
		return err
	}

	if err := s.provider.UpdateUser(ctx, userID, email, name); err != nil {
		logger.Warnf("mirror profile completion to identity provider for %s: %v", userID, err)
	}
	if err := s.provider.SetCustomClaims(ctx, userID, p.Role, p.Permissions); err != nil {
		logger.Warnf("mirror claims to identity provider for %s: %v", userID, err)
	}
	return nil
}

// CheckIdentity runs the divergence check for one profile without a live
// request. Used by the full scan.
func (s *Service) CheckIdentity(ctx context.Context, p *models.UserProfile) (found bool, err error) {
	ident, err := s.provider.GetUser(ctx, p.ID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			if err := s.SuspendMissingIdentity(ctx, p.ID); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, err
	}
	inconsistencies, missing := diffRecords(p, ident)
	if len(inconsistencies) == 0 && len(missing) == 0 {
		return false, nil
	}
	if err := s.Suspend(ctx, p.ID, ReasonDataInconsistency, inconsistencies, missing); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) appendLog(ctx context.Context, userID, logType string, details models.LogDetails) {
	entry := &models.InconsistencyLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      logType,
		Details:   details,
		Timestamp: s.now(),
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Errorf("append %s log entry for %s: %v", logType, userID, err)
	}
	metrics.AnomaliesDetected.WithLabelValues(logType).Inc()
}

// diffRecords computes the divergence between the two stores for one user:
// field mismatches where both stores carry a value, plus required profile
// fields that are blank.
func diffRecords(p *models.UserProfile, ident *models.UserIdentity) ([]models.Inconsistency, []string) {
	var inconsistencies []models.Inconsistency
	if ident.Email != "" && p.Email != "" && ident.Email != p.Email {
		inconsistencies = append(inconsistencies, models.Inconsistency{
			Field:         models.FieldEmail,
			IdentityValue: ident.Email,
			ProfileValue:  p.Email,
		})
	}
	if ident.Role != "" && p.Role != "" && ident.Role != p.Role {
		inconsistencies = append(inconsistencies, models.Inconsistency{
			Field:         models.FieldRole,
			IdentityValue: ident.Role,
			ProfileValue:  p.Role,
		})
	}
	return inconsistencies, p.MissingRequiredFields()
}
