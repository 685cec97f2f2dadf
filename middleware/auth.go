package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tenantcrm/models"
	"tenantcrm/service"
)

const (
	scopeKey     = "scope"
	TenantHeader = "X-Tenant-ID"
	bearerPrefix = "bearer "
)

// Authenticator resolves an access token to the caller's scope.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, tenantOverride uint) (models.Scope, error)
}

// RequireAuth rejects requests without a valid bearer token. Super admins may
// select another tenant with the X-Tenant-ID header.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])

		var override uint
		if raw := c.GetHeader(TenantHeader); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || id == 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + TenantHeader + " header"})
				return
			}
			override = uint(id)
		}

		scope, err := auth.Authenticate(c.Request.Context(), token, override)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrTenantSuspended):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			case errors.Is(err, service.ErrNotFound):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			case errors.Is(err, service.ErrInvalidCredentials):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
			return
		}

		c.Set(scopeKey, scope)
		logger := zerolog.Ctx(c.Request.Context()).With().
			Uint("tenant_id", scope.TenantID).
			Uint("user_id", scope.UserID).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// ScopeFrom returns the scope stored by RequireAuth.
func ScopeFrom(c *gin.Context) (models.Scope, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return models.Scope{}, false
	}
	scope, ok := v.(models.Scope)
	return scope, ok
}

// RequireSuperAdmin must run after RequireAuth.
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if scope, ok := ScopeFrom(c); !ok || !scope.SuperAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": service.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}
