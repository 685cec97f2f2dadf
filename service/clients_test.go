package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcrm/models"
)

func createClient(t *testing.T, env *testEnv, scope models.Scope, name string) *models.Client {
	t.Helper()
	c, err := NewClientService(env.deps).Create(context.Background(), scope, ClientInput{Name: name, Email: name + "@example.test"})
	require.NoError(t, err)
	return c
}

func TestClientCreateAssignsDisplayIDAndDefaults(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	ctx := context.Background()

	c, err := s.Create(ctx, env.scope, ClientInput{Name: "  Acme Corp  ", OwnerID: &env.scope.UserID})
	require.NoError(t, err)
	assert.Equal(t, "CL-0001", c.DisplayID)
	assert.Equal(t, "Acme Corp", c.Name)
	assert.Equal(t, models.ClientProspect, c.Status)
	assert.Equal(t, env.scope.TenantID, c.TenantID)
	assert.Equal(t, env.scope.UserID, c.CreatedByID)
	assert.Equal(t, []models.AuditAction{models.AuditCreated}, env.auditActions(t, models.EntityClient, c.ID))
	eventually(t, func() bool { return env.pub.has("client_created") })

	_, err = s.Create(ctx, env.scope, ClientInput{Name: "   "})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClientCreateRejectsForeignOwner(t *testing.T) {
	env := newTestEnv(t)
	other := env.addTenant(t, "globex")

	_, err := NewClientService(env.deps).Create(context.Background(), env.scope, ClientInput{Name: "x", OwnerID: &other.UserID})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owner_id", verr.Field)
}

func TestClientListFilters(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	ctx := context.Background()
	createClient(t, env, env.scope, "alpha")
	beta := createClient(t, env, env.scope, "beta")
	other := env.addTenant(t, "globex")
	createClient(t, env, other, "alphabet")

	_, err := s.Update(ctx, env.scope, beta.ID, ClientPatch{Status: ptr(models.ClientActive)})
	require.NoError(t, err)

	all, err := s.List(ctx, env.scope, ClientFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := s.List(ctx, env.scope, ClientFilter{Query: "ALPH"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alpha", found[0].Name)

	active, err := s.List(ctx, env.scope, ClientFilter{Status: models.ClientActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, beta.ID, active[0].ID)
}

func TestClientUpdateAuditsChangedColumns(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	ctx := context.Background()
	c := createClient(t, env, env.scope, "alpha")

	got, err := s.Update(ctx, env.scope, c.ID, ClientPatch{Phone: ptr(" 555 "), Industry: ptr("retail")})
	require.NoError(t, err)
	assert.Equal(t, "555", got.Phone)
	assert.Equal(t, "retail", got.Industry)

	_, err = s.Update(ctx, env.scope, c.ID, ClientPatch{})
	require.NoError(t, err)
	assert.Equal(t, []models.AuditAction{models.AuditCreated, models.AuditUpdated}, env.auditActions(t, models.EntityClient, c.ID))

	_, err = s.Update(ctx, env.scope, c.ID, ClientPatch{Name: ptr("")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClientIsolationBetweenTenants(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	ctx := context.Background()
	c := createClient(t, env, env.scope, "alpha")
	other := env.addTenant(t, "globex")

	_, err := s.Get(ctx, other, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update(ctx, other, c.ID, ClientPatch{Name: ptr("stolen")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, other, c.ID), ErrNotFound)

	mine := createClient(t, env, other, "own")
	assert.Equal(t, "CL-0001", mine.DisplayID)
}

func TestClientDelete(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	contacts := NewContactService(env.deps)
	projects := NewProjectService(env.deps)
	ctx := context.Background()
	c := createClient(t, env, env.scope, "alpha")
	ct, err := contacts.Create(ctx, env.scope, c.ID, ContactInput{FirstName: "Ann"})
	require.NoError(t, err)
	p, err := projects.CreateProject(ctx, env.scope, ProjectInput{ClientID: c.ID, Name: "Site"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, env.scope, c.ID), ErrConflict)

	require.NoError(t, projects.DeleteProject(ctx, env.scope, p.ID))
	require.NoError(t, s.Delete(ctx, env.scope, c.ID))

	_, err = s.Get(ctx, env.scope, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = contacts.Get(ctx, env.scope, ct.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	eventually(t, func() bool { return env.pub.has("client_deleted") })
	assert.True(t, env.pub.has("contact_deleted"))
	assert.Equal(t, []models.AuditAction{models.AuditCreated, models.AuditDeleted},
		env.auditActions(t, models.EntityContact, ct.ID))
}

func TestClientDeleteBlockedByPitches(t *testing.T) {
	env := newTestEnv(t)
	s := NewClientService(env.deps)
	pitches := NewPitchService(env.deps)
	ctx := context.Background()
	c := createClient(t, env, env.scope, "alpha")
	p, err := pitches.Create(ctx, env.scope, PitchInput{Title: "Offer", ClientID: &c.ID})
	require.NoError(t, err)

	err = s.Delete(ctx, env.scope, c.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "client still has pitches")

	trail, err := NewNavigator(env.repo).Breadcrumbs(ctx, env.scope, models.EntityPitch, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntityClient, trail[0].Type)

	require.NoError(t, pitches.Delete(ctx, env.scope, p.ID))
	require.NoError(t, s.Delete(ctx, env.scope, c.ID))
}

func TestContactPrimaryRules(t *testing.T) {
	env := newTestEnv(t)
	s := NewContactService(env.deps)
	ctx := context.Background()
	c := createClient(t, env, env.scope, "alpha")

	first, err := s.Create(ctx, env.scope, c.ID, ContactInput{FirstName: "Ann"})
	require.NoError(t, err)
	assert.True(t, first.IsPrimary, "first contact becomes primary")

	second, err := s.Create(ctx, env.scope, c.ID, ContactInput{FirstName: "Bob"})
	require.NoError(t, err)
	assert.False(t, second.IsPrimary)

	third, err := s.Create(ctx, env.scope, c.ID, ContactInput{FirstName: "Cid", IsPrimary: true})
	require.NoError(t, err)
	assert.True(t, third.IsPrimary)
	assertPrimary(t, s, env.scope, c.ID, third.ID)

	_, err = s.SetPrimary(ctx, env.scope, second.ID)
	require.NoError(t, err)
	assertPrimary(t, s, env.scope, c.ID, second.ID)
	assert.Contains(t, env.auditActions(t, models.EntityContact, second.ID), models.AuditPrimarySet)

	_, err = s.Update(ctx, env.scope, second.ID, ContactPatch{IsPrimary: ptr(false)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.Update(ctx, env.scope, first.ID, ContactPatch{IsPrimary: ptr(true)})
	require.NoError(t, err)
	assertPrimary(t, s, env.scope, c.ID, first.ID)

	require.NoError(t, s.Delete(ctx, env.scope, first.ID))
	assertPrimary(t, s, env.scope, c.ID, second.ID)
}

func TestContactCreateNeedsClient(t *testing.T) {
	env := newTestEnv(t)
	s := NewContactService(env.deps)

	_, err := s.Create(context.Background(), env.scope, 404, ContactInput{FirstName: "Ann"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ListByClient(context.Background(), env.scope, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func assertPrimary(t *testing.T, s *ContactService, scope models.Scope, clientID, want uint) {
	t.Helper()
	list, err := s.ListByClient(context.Background(), scope, clientID)
	require.NoError(t, err)
	var primaries []uint
	for _, c := range list {
		if c.IsPrimary {
			primaries = append(primaries, c.ID)
		}
	}
	assert.Equal(t, []uint{want}, primaries)
}
