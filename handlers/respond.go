package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"tenantcrm/middleware"
	"tenantcrm/models"
	"tenantcrm/service"
)

// statusOf maps a service error onto an HTTP status.
func statusOf(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrLostReasonRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrTenantSuspended):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	respondErrorMessage(c, err, err.Error())
}

// respondErrorMessage writes err's status with a custom message. Server
// errors are hidden from the client and handed to the error middleware.
func respondErrorMessage(c *gin.Context, err error, msg string) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		_ = c.Error(err)
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		msg = "internal server error"
	}
	body := gin.H{"error": msg}
	var verr *service.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		body["field"] = verr.Field
	}
	c.JSON(status, body)
}

// badRequest answers a binding failure with a 400.
func badRequest(c *gin.Context, err error) {
	respondError(c, bindError(err))
}

// bindError turns the first failed validator rule into a ValidationError.
// Decoding errors become a field-less ValidationError.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := snakeCase(fe.Field())
		switch fe.Tag() {
		case "required":
			return &service.ValidationError{Field: field, Message: "is required"}
		case "email":
			return &service.ValidationError{Field: field, Message: "invalid email address"}
		case "oneof":
			return &service.ValidationError{Field: field, Message: "must be one of " + fe.Param()}
		case "max":
			return &service.ValidationError{Field: field, Message: "must be at most " + fe.Param()}
		}
		return &service.ValidationError{Field: field, Message: "failed the " + fe.Tag() + " rule"}
	}
	return &service.ValidationError{Message: "invalid request: " + err.Error()}
}

func snakeCase(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if unicode.IsUpper(r) {
			if prevLower {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// scope returns the caller's scope. Routes without RequireAuth never call it.
func scope(c *gin.Context) models.Scope {
	s, _ := middleware.ScopeFrom(c)
	return s
}

// target reads the polymorphic :type/:id pair.
func target(c *gin.Context) (service.Target, bool) {
	entity := models.EntityType(c.Param("type"))
	if !entity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return service.Target{}, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return service.Target{}, false
	}
	return service.Target{Type: entity, ID: id}, true
}

func getByID[T any](get func(context.Context, models.Scope, uint) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		out, err := get(c.Request.Context(), scope(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteByID(del func(context.Context, models.Scope, uint) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := del(c.Request.Context(), scope(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func patchByID[In, T any](update func(context.Context, models.Scope, uint, In) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		out, err := update(c.Request.Context(), scope(c), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func listUnder[T any](list func(context.Context, models.Scope, uint) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		out, err := list(c.Request.Context(), scope(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func createUnder[In, T any](create func(context.Context, models.Scope, uint, In) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		out, err := create(c.Request.Context(), scope(c), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}
