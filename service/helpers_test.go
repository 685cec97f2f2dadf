package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tenantcrm/events"
	"tenantcrm/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) has(eventType string) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type testEnv struct {
	repo  *models.Repository
	pub   *recordingPublisher
	deps  Deps
	scope models.Scope
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "crm.db")), models.GormConfig())
	require.NoError(t, err)
	repo, err := models.NewRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pub := &recordingPublisher{}
	env := &testEnv{
		repo: repo,
		pub:  pub,
		deps: Deps{Repo: repo, Publisher: pub},
	}
	env.scope = env.addTenant(t, "acme")
	return env
}

// addTenant creates a tenant with an owner and returns the owner's scope.
func (e *testEnv) addTenant(t *testing.T, slug string) models.Scope {
	t.Helper()
	tenant := models.Tenant{Name: slug, Slug: slug, Status: models.TenantActive}
	require.NoError(t, e.repo.DB(context.Background()).Create(&tenant).Error)
	owner := e.addUser(t, tenant.ID, "owner@"+slug+".test", models.RoleOwner)
	return models.Scope{TenantID: tenant.ID, UserID: owner.ID, Role: models.RoleOwner}
}

func (e *testEnv) addUser(t *testing.T, tenantID uint, email string, role models.Role) models.User {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	u := models.User{
		TenantID:     tenantID,
		Email:        email,
		FullName:     email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	require.NoError(t, e.repo.DB(context.Background()).Create(&u).Error)
	return u
}

func (e *testEnv) auditActions(t *testing.T, entity models.EntityType, id uint) []models.AuditAction {
	t.Helper()
	var entries []models.AuditEntry
	require.NoError(t, e.repo.DB(context.Background()).
		Where("entity_type = ? AND entity_id = ?", entity, id).
		Order("id ASC").Find(&entries).Error)
	out := make([]models.AuditAction, len(entries))
	for i, a := range entries {
		out[i] = a.Action
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func ptr[T any](v T) *T { return &v }
