package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devfolio/accountguard/internal/auditlog"
	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/models"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/logger"
	"github.com/devfolio/accountguard/pkg/middleware"
)

// AdminHandler exposes the remediation surface: anomaly listings, manual
// resolution, manual restore, and stats.
type AdminHandler struct {
	svc      *consistency.Service
	logs     auditlog.Logs
	deleted  auditlog.DeletedAccounts
	profiles profiles.Repository
}

func NewAdminHandler(svc *consistency.Service, logs auditlog.Logs, deleted auditlog.DeletedAccounts, p profiles.Repository) *AdminHandler {
	return &AdminHandler{svc: svc, logs: logs, deleted: deleted, profiles: p}
}

// Register routes under /admin/consistency. Every route requires the admin
// role.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/admin/consistency")
	a.Use(requireAdmin())
	a.GET("/anomalies", h.ListAnomalies)
	a.GET("/anomalies/:userId", h.AnomaliesByUser)
	a.GET("/deleted-accounts", h.ListDeletedAccounts)
	a.POST("/anomalies/:logId/resolve", h.ResolveAnomaly)
	a.POST("/users/:userId/restore", h.RestoreUser)
	a.GET("/stats", h.Stats)
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		pr, ok := middleware.GetPrincipal(c)
		if !ok || pr.Role != consistency.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// anomalyRow is a log entry enriched with a live snapshot of the subject.
// The snapshot is computed per request, never stored.
type anomalyRow struct {
	*models.InconsistencyLogEntry
	Subject *subjectSnapshot `json:"subject,omitempty"`
}

type subjectSnapshot struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	IsSuspended bool   `json:"isSuspended"`
}

// ListAnomalies returns log entries filtered by status/type, newest first.
// Query params: status=resolved|unresolved, type=<log type>, limit=<n>.
func (h *AdminHandler) ListAnomalies(c *gin.Context) {
	f := auditlog.Filter{Type: c.Query("type")}
	switch c.Query("status") {
	case "resolved":
		v := true
		f.Resolved = &v
	case "unresolved":
		v := false
		f.Resolved = &v
	case "":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be resolved or unresolved"})
		return
	}
	f.Limit = 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	entries, err := h.logs.List(c.Request.Context(), f)
	if err != nil {
		logger.Errorf("list anomalies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list anomalies"})
		return
	}

	rows := make([]anomalyRow, 0, len(entries))
	for _, e := range entries {
		row := anomalyRow{InconsistencyLogEntry: e}
		if p, err := h.profiles.Get(c.Request.Context(), e.UserID); err == nil && p != nil {
			row.Subject = &subjectSnapshot{
				Email:       p.Email,
				Name:        p.Name,
				Role:        p.Role,
				IsSuspended: p.IsTemporarilySuspended,
			}
		}
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": rows, "count": len(rows)})
}

func (h *AdminHandler) AnomaliesByUser(c *gin.Context) {
	userID := c.Param("userId")
	entries, err := h.logs.ByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("anomalies for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list anomalies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "anomalies": entries, "count": len(entries)})
}

func (h *AdminHandler) ListDeletedAccounts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := h.deleted.List(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("list deleted accounts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deleted accounts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedAccounts": recs, "count": len(recs)})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// ResolveAnomaly marks one log entry resolved. It never touches the
// subject's profile; restoring the user is a separate explicit action.
func (h *AdminHandler) ResolveAnomaly(c *gin.Context) {
	pr, _ := middleware.GetPrincipal(c)
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logID := c.Param("logId")
	err := h.logs.MarkResolved(c.Request.Context(), logID, pr.ID, req.Notes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, auditlog.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log entry not found"})
			return
		}
		logger.Errorf("resolve %s: %v", logID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": logID, "resolved": true})
}

type restoreRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// RestoreUser is the admin override: exits the suspension regardless of
// the underlying anomaly. Free-text notes are required and stored in the
// resulting log entry.
func (h *AdminHandler) RestoreUser(c *gin.Context) {
	pr, _ := middleware.GetPrincipal(c)
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notes are required"})
		return
	}
	userID := c.Param("userId")
	err := h.svc.Restore(c.Request.Context(), userID, consistency.TriggerManual, pr.ID, req.Notes)
	if err != nil {
		if errors.Is(err, consistency.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		logger.Errorf("restore %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to restore user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "restored": true})
}

// Stats reports totals and a per-type histogram. Computed as a full scan;
// fine at current volumes, to be replaced by maintained counters at scale.
func (h *AdminHandler) Stats(c *gin.Context) {
	byType, unresolved, err := h.logs.CountByType(c.Request.Context())
	if err != nil {
		logger.Errorf("stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	var total int64
	for _, n := range byType {
		total += n
	}
	suspended, err := h.profiles.CountSuspended(c.Request.Context())
	if err != nil {
		logger.Errorf("stats: count suspended: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":          total,
		"unresolved":     unresolved,
		"suspendedUsers": suspended,
		"byType":         byType,
	})
}
