package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tenantcrm/models"
	"tenantcrm/service"
	"tenantcrm/utils"
)

const (
	rootEmail    = "root@platform.test"
	rootPassword = "platform-secret"
	testSecret   = "0123456789abcdef0123456789abcdef"
	uploadLimit  = 64
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	router *gin.Engine
	repo   *models.Repository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "crm.db")), models.GormConfig())
	require.NoError(t, err)
	repo, err := models.NewRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	files, err := utils.NewFileStorage(filepath.Join(dir, "documents"))
	require.NoError(t, err)

	deps := service.Deps{Repo: repo}
	auth := service.NewAuthService(repo, testSecret, time.Hour)
	tenants := service.NewTenantService(repo, nil)
	projects := service.NewProjectService(deps)

	created, err := tenants.Bootstrap(context.Background(), rootEmail, rootPassword)
	require.NoError(t, err)
	require.True(t, created)

	router := NewRouter(Handlers{
		Auth:     auth,
		Admin:    NewAdminHandler(auth, service.NewUserService(repo), tenants),
		Clients:  NewClientHandler(service.NewClientService(deps), service.NewContactService(deps), projects),
		Projects: NewProjectHandler(projects),
		Pitches:  NewPitchHandler(service.NewPitchService(deps)),
		Leads:    NewLeadHandler(service.NewLeadService(deps)),
		Records: NewRecordHandler(
			service.NewAttachmentService(repo, files, uploadLimit),
			service.NewNavigator(repo),
			service.NewSearchService(nil),
			uploadLimit,
		),
		Health: NewHealthHandler(map[string]Pinger{"database": repo}),
	}, []string{"*"})
	return &apiEnv{router: router, repo: repo}
}

// do sends a JSON request and returns the recorder.
func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) upload(t *testing.T, path, token, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res LoginResponse
	decode(t, w, &res)
	require.NotEmpty(t, res.Token)
	return res.Token
}

// addTenant creates a tenant through the platform API and logs its owner in.
func (e *apiEnv) addTenant(t *testing.T, slug string) string {
	t.Helper()
	root := e.login(t, rootEmail, rootPassword)
	owner := "owner@" + slug + ".test"
	w := e.do(t, http.MethodPost, "/api/v1/tenants", root, gin.H{
		"name":           slug,
		"slug":           slug,
		"owner_email":    owner,
		"owner_name":     "Owner " + slug,
		"owner_password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, owner, "correct-horse")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	decode(t, w, &body)
	return body
}
