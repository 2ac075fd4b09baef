package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devfolio/accountguard/internal/consistency"
	"github.com/devfolio/accountguard/internal/profiles"
	"github.com/devfolio/accountguard/pkg/logger"
	"github.com/devfolio/accountguard/pkg/middleware"
)

// SelfServiceHandler is the suspended user's own remediation surface.
type SelfServiceHandler struct {
	svc      *consistency.Service
	profiles profiles.Repository
}

func NewSelfServiceHandler(svc *consistency.Service, p profiles.Repository) *SelfServiceHandler {
	return &SelfServiceHandler{svc: svc, profiles: p}
}

// Register routes under /me. Both routes must stay on the suspension
// gate's allow-list so a suspended user can reach them.
func (h *SelfServiceHandler) Register(rg *gin.RouterGroup) {
	me := rg.Group("/me")
	me.GET("/suspension", h.SuspensionStatus)
	me.POST("/complete-profile", h.CompleteProfile)
}

func (h *SelfServiceHandler) SuspensionStatus(c *gin.Context) {
	pr, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), pr.ID)
	if err != nil {
		logger.Errorf("suspension status for %s: %v", pr.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isSuspended":         p.IsTemporarilySuspended,
		"suspensionReason":    p.SuspensionReason,
		"suspendedAt":         p.SuspendedAt,
		"suspensionExpiresAt": p.SuspensionExpiresAt,
		"dataIncomplete":      p.DataIncomplete,
		"missingFields":       p.MissingFields,
		"inconsistencies":     p.Inconsistencies,
	})
}

type completeProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CompleteProfile lets a suspended user supply the missing data and exit
// the suspension. Validation failures change no state.
func (h *SelfServiceHandler) CompleteProfile(c *gin.Context) {
	pr, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.CompleteProfile(c.Request.Context(), pr.ID, req.Name, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, consistency.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, consistency.ErrProfileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		default:
			logger.Errorf("complete profile for %s: %v", pr.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete profile"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": true})
}
