package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/identity"
	"github.com/devfolio/accountguard/internal/models"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/middleware"
)

type adminEnv struct {
	engine   *gin.Engine
	svc      *consistency.Service
	profiles *profiles.MemoryRepository
	logs     *auditlog.MemoryLogs
	deleted  *auditlog.MemoryDeletedAccounts
	provider *identity.MemoryProvider
}

func newAdminEnv(t *testing.T, principal consistency.Principal) *adminEnv {
	t.Helper()
	e := &adminEnv{
		profiles: profiles.NewMemoryRepository(),
		logs:     auditlog.NewMemoryLogs(),
		deleted:  auditlog.NewMemoryDeletedAccounts(),
		provider: identity.NewMemoryProvider(),
	}
	e.svc = consistency.NewService(e.profiles, e.logs, e.deleted, e.provider)

	e.engine = gin.New()
	e.engine.Use(func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, principal)
		c.Next()
	})
	NewAdminHandler(e.svc, e.logs, e.deleted, e.profiles).Register(e.engine.Group(""))
	return e
}

func (e *adminEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rw := httptest.NewRecorder()
	e.engine.ServeHTTP(rw, req)
	return rw
}

func seedAnomaly(t *testing.T, e *adminEnv, userID string, resolved bool) string {
	t.Helper()
	id := uuid.NewString()
	entry := &models.InconsistencyLogEntry{
		ID:     id,
		UserID: userID,
		Type:   models.LogDataMismatch,
		Details: models.LogDetails{
			Inconsistencies: []models.Inconsistency{{Field: "role", IdentityValue: "viewer", ProfileValue: "editor"}},
		},
		Resolved:  resolved,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, e.logs.Append(context.Background(), entry))
	return id
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "u1", Role: "editor"})
	rw := e.do(t, http.MethodGet, "/admin/consistency/anomalies", "")
	require.Equal(t, http.StatusForbidden, rw.Code)
}

func TestAdmin_ListAnomaliesFiltersAndEnriches(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	seedAnomaly(t, e, "u1", false)
	seedAnomaly(t, e, "u2", true)
	require.NoError(t, e.profiles.Put(context.Background(), &models.UserProfile{
		ID: "u1", Email: "u1@x.com", Name: "U1", Role: "editor", IsTemporarilySuspended: true,
	}))

	rw := e.do(t, http.MethodGet, "/admin/consistency/anomalies?status=unresolved", "")
	require.Equal(t, http.StatusOK, rw.Code)

	var resp struct {
		Anomalies []struct {
			UserID  string `json:"userId"`
			Subject *struct {
				Email       string `json:"email"`
				IsSuspended bool   `json:"isSuspended"`
			} `json:"subject"`
		} `json:"anomalies"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "u1", resp.Anomalies[0].UserID)
	require.NotNil(t, resp.Anomalies[0].Subject)
	require.Equal(t, "u1@x.com", resp.Anomalies[0].Subject.Email)
	require.True(t, resp.Anomalies[0].Subject.IsSuspended)
}

func TestAdmin_ListAnomaliesRejectsBadStatus(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	rw := e.do(t, http.MethodGet, "/admin/consistency/anomalies?status=nope", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestAdmin_ResolveDoesNotTouchProfile(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	logID := seedAnomaly(t, e, "u1", false)
	require.NoError(t, e.profiles.Put(context.Background(), &models.UserProfile{
		ID: "u1", Email: "u1@x.com", Name: "U1", Role: "editor", IsTemporarilySuspended: true,
	}))

	rw := e.do(t, http.MethodPost, "/admin/consistency/anomalies/"+logID+"/resolve", `{"notes":"checked manually"}`)
	require.Equal(t, http.StatusOK, rw.Code)

	entry, err := e.logs.Get(context.Background(), logID)
	require.NoError(t, err)
	require.True(t, entry.Resolved)
	require.Equal(t, "boss", entry.ResolvedBy)
	require.Equal(t, "checked manually", entry.Details.Notes)

	// restoring the user is a separate explicit action
	p, _ := e.profiles.Get(context.Background(), "u1")
	require.True(t, p.IsTemporarilySuspended)
}

func TestAdmin_ResolveUnknownEntry(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	rw := e.do(t, http.MethodPost, "/admin/consistency/anomalies/nope/resolve", `{"notes":"x"}`)
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestAdmin_RestoreRequiresNotes(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	rw := e.do(t, http.MethodPost, "/admin/consistency/users/u1/restore", `{}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestAdmin_RestoreClearsSuspension(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	now := time.Now().UTC()
	expires := now.Add(models.SuspensionWindow)
	require.NoError(t, e.profiles.Put(context.Background(), &models.UserProfile{
		ID: "u1", Email: "u1@x.com", Name: "U1", Role: "editor",
		IsTemporarilySuspended: true,
		SuspensionReason:       consistency.ReasonDataInconsistency,
		SuspendedAt:            &now,
		SuspensionExpiresAt:    &expires,
		MissingFields:          []string{"name"},
	}))

	rw := e.do(t, http.MethodPost, "/admin/consistency/users/u1/restore", `{"notes":"verified with user"}`)
	require.Equal(t, http.StatusOK, rw.Code)

	p, _ := e.profiles.Get(context.Background(), "u1")
	require.False(t, p.IsTemporarilySuspended)
	require.True(t, p.ManuallyRestored)
	require.Nil(t, p.SuspensionExpiresAt)
	require.Empty(t, p.MissingFields)

	entries, _ := e.logs.ByUser(context.Background(), "u1")
	require.Len(t, entries, 1)
	require.Equal(t, models.LogManualRestoration, entries[0].Type)
	require.Equal(t, "verified with user", entries[0].Details.Notes)
}

func TestAdmin_RestoreUnknownUser(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	rw := e.do(t, http.MethodPost, "/admin/consistency/users/ghost/restore", `{"notes":"x"}`)
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestAdmin_DeletedAccountsAndStats(t *testing.T) {
	e := newAdminEnv(t, consistency.Principal{ID: "boss", Role: consistency.RoleAdmin})
	seedAnomaly(t, e, "u1", false)
	seedAnomaly(t, e, "u2", true)
	require.NoError(t, e.profiles.Put(context.Background(), &models.UserProfile{
		ID: "u1", IsTemporarilySuspended: true,
	}))
	require.NoError(t, e.deleted.Add(context.Background(), &models.DeletedAccountRecord{
		ID: uuid.NewString(), UserID: "u3", Reason: consistency.ReasonSuspensionExpired, DeletedAt: time.Now().UTC(),
	}))

	rw := e.do(t, http.MethodGet, "/admin/consistency/deleted-accounts", "")
	require.Equal(t, http.StatusOK, rw.Code)
	var deleted struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &deleted))
	require.Equal(t, 1, deleted.Count)

	rw = e.do(t, http.MethodGet, "/admin/consistency/stats", "")
	require.Equal(t, http.StatusOK, rw.Code)
	var stats struct {
		Total          int64            `json:"total"`
		Unresolved     int64            `json:"unresolved"`
		SuspendedUsers int64            `json:"suspendedUsers"`
		ByType         map[string]int64 `json:"byType"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &stats))
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.Unresolved)
	require.Equal(t, int64(1), stats.SuspendedUsers)
	require.Equal(t, int64(2), stats.ByType[models.LogDataMismatch])
}
