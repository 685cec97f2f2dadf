package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcrm/utils"
)

// ErrorHandler reports errors attached to server failures to Sentry.
// Handlers attach them with c.Error before writing a 5xx response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		extra := map[string]interface{}{
			"endpoint":   c.FullPath(),
			"method":     c.Request.Method,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(RequestIDKey),
		}
		if scope, ok := ScopeFrom(c); ok {
			extra["tenant_id"] = scope.TenantID
			extra["user_id"] = scope.UserID
		}
		for _, ginErr := range c.Errors {
			utils.CaptureError(ginErr.Err, extra)
		}
	}
}
