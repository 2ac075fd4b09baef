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
	"github.com/stretchr/testify/require"

	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/identity"
	"github.com/devfolio/accountguard/internal/models"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/middleware"
)

type selfEnv struct {
	engine   *gin.Engine
	svc      *consistency.Service
	profiles *profiles.MemoryRepository
	logs     *auditlog.MemoryLogs
	provider *identity.MemoryProvider
}

func newSelfEnv(t *testing.T, principal consistency.Principal) *selfEnv {
	t.Helper()
	e := &selfEnv{
		profiles: profiles.NewMemoryRepository(),
		logs:     auditlog.NewMemoryLogs(),
		provider: identity.NewMemoryProvider(),
	}
	e.svc = consistency.NewService(e.profiles, e.logs, auditlog.NewMemoryDeletedAccounts(), e.provider)

	e.engine = gin.New()
	e.engine.Use(func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, principal)
		c.Next()
	})
	NewSelfServiceHandler(e.svc, e.profiles).Register(e.engine.Group(""))
	return e
}

func (e *selfEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
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

func suspendedProfile(userID string) *models.UserProfile {
	now := time.Now().UTC()
	expires := now.Add(models.SuspensionWindow)
	return &models.UserProfile{
		ID:                     userID,
		Role:                   "editor",
		IsTemporarilySuspended: true,
		SuspensionReason:       consistency.ReasonProfileRecordMissing,
		SuspendedAt:            &now,
		SuspensionExpiresAt:    &expires,
		DataIncomplete:         true,
		MissingFields:          []string{models.FieldEmail, models.FieldName},
	}
}

func TestSuspensionStatus(t *testing.T) {
	e := newSelfEnv(t, consistency.Principal{ID: "u1", Role: "editor"})
	require.NoError(t, e.profiles.Put(context.Background(), suspendedProfile("u1")))

	rw := e.do(t, http.MethodGet, "/me/suspension", "")
	require.Equal(t, http.StatusOK, rw.Code)

	var resp struct {
		IsSuspended      bool     `json:"isSuspended"`
		SuspensionReason string   `json:"suspensionReason"`
		MissingFields    []string `json:"missingFields"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.True(t, resp.IsSuspended)
	require.Equal(t, consistency.ReasonProfileRecordMissing, resp.SuspensionReason)
	require.Equal(t, []string{models.FieldEmail, models.FieldName}, resp.MissingFields)
}

func TestSuspensionStatusNoProfile(t *testing.T) {
	e := newSelfEnv(t, consistency.Principal{ID: "ghost", Role: "editor"})
	rw := e.do(t, http.MethodGet, "/me/suspension", "")
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestCompleteProfileRestores(t *testing.T) {
	e := newSelfEnv(t, consistency.Principal{ID: "u1", Role: "editor"})
	require.NoError(t, e.profiles.Put(context.Background(), suspendedProfile("u1")))
	e.provider.Seed(&models.UserIdentity{ID: "u1"})

	rw := e.do(t, http.MethodPost, "/me/complete-profile", `{"name":"Ada","email":"ada@x.com"}`)
	require.Equal(t, http.StatusOK, rw.Code)

	p, _ := e.profiles.Get(context.Background(), "u1")
	require.False(t, p.IsTemporarilySuspended)
	require.False(t, p.DataIncomplete)
	require.Equal(t, "Ada", p.Name)
	require.Equal(t, "ada@x.com", p.Email)

	entries, _ := e.logs.ByUser(context.Background(), "u1")
	require.Len(t, entries, 1)
	require.Equal(t, models.LogProfileCompleted, entries[0].Type)
}

func TestCompleteProfileValidation(t *testing.T) {
	e := newSelfEnv(t, consistency.Principal{ID: "u1", Role: "editor"})
	require.NoError(t, e.profiles.Put(context.Background(), suspendedProfile("u1")))

	rw := e.do(t, http.MethodPost, "/me/complete-profile", `{"name":"  ","email":""}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)

	// state untouched on validation failure
	p, _ := e.profiles.Get(context.Background(), "u1")
	require.True(t, p.IsTemporarilySuspended)
}

func TestCompleteProfileNoProfile(t *testing.T) {
	e := newSelfEnv(t, consistency.Principal{ID: "ghost", Role: "editor"})
	rw := e.do(t, http.MethodPost, "/me/complete-profile", `{"name":"Ada","email":"ada@x.com"}`)
	require.Equal(t, http.StatusNotFound, rw.Code)
}
