package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/devfolio/accountguard/internal/consistency"
)

// ConsistencyCheck runs the identity/profile consistency checker inline
// for every authenticated request, attaching the resulting annotation to
// the context. The two unrecoverable anomaly kinds reject the request; the
// rejection payload distinguishes a deleted account from a live suspension
// so clients don't render a remediation form for an account that no longer
// exists.
func ConsistencyCheck(svc *consistency.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		pr, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		ann, err := svc.Check(c.Request.Context(), pr)
		if err != nil {
			switch {
			case errors.Is(err, consistency.ErrAccountDeleted):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "account_deleted",
					"message": "This account was deleted after its suspension window expired.",
				})
			case errors.Is(err, consistency.ErrIdentityMissing):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "identity_record_missing",
					"message": "Your identity record could not be found. Contact support.",
				})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "consistency check failed"})
			}
			return
		}

		c.Set(ContextConsistency, ann)
		c.Next()
	}
}

// GetAnnotation returns the annotation set by ConsistencyCheck.
func GetAnnotation(c *gin.Context) (*consistency.Annotation, bool) {
	v, ok := c.Get(ContextConsistency)
	if !ok {
		return nil, false
	}
	ann, ok := v.(*consistency.Annotation)
	return ann, ok
}

// SuspensionGate blocks suspended non-admin principals on every route
// except the allow-listed remediation paths (suspension status, profile
// completion). Paths are matched by prefix.
func SuspensionGate(allowPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		pr, _ := GetPrincipal(c)
		if pr.Role == consistency.RoleAdmin {
			c.Next()
			return
		}
		ann, ok := GetAnnotation(c)
		if !ok || !ann.IsSuspended {
			c.Next()
			return
		}
		for _, p := range allowPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":               "account_suspended",
			"message":             "Account temporarily suspended. Complete your profile to restore access.",
			"suspensionExpiresAt": ann.SuspensionExpiresAt,
			"missingFields":       ann.MissingFields,
			"inconsistencies":     ann.Inconsistencies,
		})
	}
}
