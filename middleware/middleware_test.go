package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcrm/models"
	"tenantcrm/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	token    string
	override uint
	scope    models.Scope
	err      error
}

func (s *stubAuth) Authenticate(_ context.Context, token string, override uint) (models.Scope, error) {
	s.token, s.override = token, override
	return s.scope, s.err
}

func newAuthRouter(auth Authenticator, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequireAuth(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		scope, ok := ScopeFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": scope.TenantID})
	})
	r.GET("/", handlers...)
	return r
}

func serve(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	auth := &stubAuth{scope: models.Scope{TenantID: 7, UserID: 1, Role: models.RoleMember}}
	r := newAuthRouter(auth)

	w := serve(r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant_id":7}`, w.Body.String())
	assert.Equal(t, "tok", auth.token)
	assert.Zero(t, auth.override)

	w = serve(r, map[string]string{"Authorization": "bearer tok", TenantHeader: "12"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(12), auth.override)

	w = serve(r, map[string]string{"Authorization": "Bearer tok", TenantHeader: "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireAuthErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrTenantSuspended, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newAuthRouter(&stubAuth{err: tt.err})
		w := serve(r, map[string]string{"Authorization": "Bearer tok"})
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	member := newAuthRouter(&stubAuth{scope: models.Scope{TenantID: 1, Role: models.RoleOwner}}, RequireSuperAdmin())
	assert.Equal(t, http.StatusForbidden, serve(member, map[string]string{"Authorization": "Bearer tok"}).Code)

	super := newAuthRouter(&stubAuth{scope: models.Scope{TenantID: 1, SuperAdmin: true}}, RequireSuperAdmin())
	assert.Equal(t, http.StatusOK, serve(super, map[string]string{"Authorization": "Bearer tok"}).Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := serve(r, nil)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())

	given := uuid.NewString()
	w = serve(r, map[string]string{RequestIDHeader: given})
	assert.Equal(t, given, w.Header().Get(RequestIDHeader))

	w = serve(r, map[string]string{RequestIDHeader: "<script>"})
	assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
}

func TestPrometheusAndErrorHandlerPassThrough(t *testing.T) {
	r := gin.New()
	r.Use(PrometheusMetrics(), ErrorHandler(), SentryMiddleware())
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(r, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
