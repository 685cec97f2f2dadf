package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcrm/models"
)

func TestUserCreate(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()

	u, err := s.Create(ctx, env.scope, UserInput{Email: " Jane@Example.TEST ", FullName: "Jane", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.test", u.Email)
	assert.Equal(t, models.RoleMember, u.Role)
	assert.True(t, u.Active)
	assert.NotEqual(t, "long-enough", u.PasswordHash)

	_, err = s.Create(ctx, env.scope, UserInput{Email: "jane@example.test", FullName: "Jane", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "A user with this email already exists.", TranslateUserError(err))

	_, err = s.Create(ctx, env.scope, UserInput{Email: "not-an-email", FullName: "X", Password: "long-enough"})
	assert.Equal(t, "Please enter a valid email address.", TranslateUserError(err))

	_, err = s.Create(ctx, env.scope, UserInput{Email: "x@example.test", FullName: "X", Password: "short"})
	assert.Equal(t, "Password must be at least 8 characters.", TranslateUserError(err))
}

func TestUserCreatePermissions(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()
	admin := env.addUser(t, env.scope.TenantID, "admin@acme.test", models.RoleAdmin)
	member := env.addUser(t, env.scope.TenantID, "member@acme.test", models.RoleMember)
	adminScope := models.Scope{TenantID: env.scope.TenantID, UserID: admin.ID, Role: models.RoleAdmin}
	memberScope := models.Scope{TenantID: env.scope.TenantID, UserID: member.ID, Role: models.RoleMember}

	_, err := s.Create(ctx, memberScope, UserInput{Email: "a@acme.test", FullName: "A", Password: "long-enough"})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "You don't have permission to create users.", TranslateUserError(err))

	_, err = s.Create(ctx, adminScope, UserInput{Email: "b@acme.test", FullName: "B", Password: "long-enough", Role: models.RoleOwner})
	assert.ErrorIs(t, err, ErrForbidden)

	u, err := s.Create(ctx, adminScope, UserInput{Email: "c@acme.test", FullName: "C", Password: "long-enough", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	owner, err := s.Create(ctx, env.scope, UserInput{Email: "d@acme.test", FullName: "D", Password: "long-enough", Role: models.RoleOwner})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, owner.Role)
}

func TestUserUpdateRules(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()
	admin := env.addUser(t, env.scope.TenantID, "admin@acme.test", models.RoleAdmin)
	adminScope := models.Scope{TenantID: env.scope.TenantID, UserID: admin.ID, Role: models.RoleAdmin}

	_, err := s.Update(ctx, env.scope, env.scope.UserID, UserPatch{Role: ptr(models.RoleMember)})
	assert.ErrorIs(t, err, ErrForbidden, "nobody demotes themselves")

	_, err = s.Update(ctx, adminScope, env.scope.UserID, UserPatch{Active: ptr(false)})
	assert.ErrorIs(t, err, ErrForbidden, "admins cannot touch owners")

	renamed, err := s.Update(ctx, adminScope, admin.ID, UserPatch{FullName: ptr("Ada")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", renamed.FullName)

	demoted, err := s.Update(ctx, env.scope, admin.ID, UserPatch{Role: ptr(models.RoleMember)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, demoted.Role)

	second := env.addUser(t, env.scope.TenantID, "owner2@acme.test", models.RoleOwner)
	secondScope := models.Scope{TenantID: env.scope.TenantID, UserID: second.ID, Role: models.RoleOwner}
	_, err = s.Update(ctx, secondScope, env.scope.UserID, UserPatch{Active: ptr(false)})
	require.NoError(t, err)
	_, err = s.Update(ctx, env.scope, second.ID, UserPatch{Role: ptr(models.RoleAdmin)})
	assert.ErrorIs(t, err, ErrConflict, "the last active owner stays")
}

func TestUserUpdateProtectsOwners(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	auth := NewAuthService(env.repo, "secret", time.Hour)
	ctx := context.Background()
	admin := env.addUser(t, env.scope.TenantID, "admin@acme.test", models.RoleAdmin)
	adminScope := models.Scope{TenantID: env.scope.TenantID, UserID: admin.ID, Role: models.RoleAdmin}

	_, err := s.Update(ctx, adminScope, env.scope.UserID, UserPatch{Password: ptr("taken-over-now")})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.Update(ctx, adminScope, env.scope.UserID, UserPatch{FullName: ptr("Mallory")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = auth.Login(ctx, "owner@acme.test", "taken-over-now")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "owner@acme.test", "correct-horse")
	require.NoError(t, err)

	renamed, err := s.Update(ctx, env.scope, env.scope.UserID, UserPatch{FullName: ptr("Olive")})
	require.NoError(t, err)
	assert.Equal(t, "Olive", renamed.FullName)
}

func TestUserListRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()
	member := env.addUser(t, env.scope.TenantID, "member@acme.test", models.RoleMember)

	_, err := s.List(ctx, models.Scope{TenantID: env.scope.TenantID, UserID: member.ID, Role: models.RoleMember})
	assert.ErrorIs(t, err, ErrForbidden)

	users, err := s.List(ctx, env.scope)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserEmailReusableAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()

	first, err := s.Create(ctx, env.scope, UserInput{Email: "temp@acme.test", FullName: "Temp", Password: "long-enough"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, env.scope, first.ID))

	again, err := s.Create(ctx, env.scope, UserInput{Email: "temp@acme.test", FullName: "Temp", Password: "long-enough"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestUserDelete(t *testing.T) {
	env := newTestEnv(t)
	s := NewUserService(env.repo)
	ctx := context.Background()
	member := env.addUser(t, env.scope.TenantID, "member@acme.test", models.RoleMember)
	other := env.addTenant(t, "globex")

	assert.ErrorIs(t, s.Delete(ctx, env.scope, env.scope.UserID), ErrForbidden)
	assert.ErrorIs(t, s.Delete(ctx, env.scope, other.UserID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, env.scope, member.ID))

	users, err := s.List(ctx, env.scope)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, env.scope.UserID, users[0].ID)
}

func TestTranslateUserError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_live_email"`), "A user with this email already exists."},
		{fmt.Errorf("%w: boom", ErrConflict), "A user with this email already exists."},
		{errors.New("new row violates row-level security: permission denied"), "You don't have permission to create users."},
		{invalid("email", "invalid email address"), "Please enter a valid email address."},
		{errors.New("Password should be at least 8 characters"), "Password must be at least 8 characters."},
		{invalid("full_name", "must not be empty"), "full_name: must not be empty"},
		{errors.New("connection reset"), "Failed to create user. Please try again."},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TranslateUserError(tt.err), fmt.Sprint(tt.err))
	}
}

func TestTenantAdministration(t *testing.T) {
	env := newTestEnv(t)
	s := NewTenantService(env.repo, nil)
	ctx := context.Background()
	super := env.scope
	super.SuperAdmin = true

	_, _, err := s.Create(ctx, env.scope, TenantInput{Name: "X", Slug: "x", OwnerEmail: "o@x.test", OwnerName: "O", OwnerPassword: "long-enough"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = s.Create(ctx, super, TenantInput{Name: "X", Slug: "Not A Slug!", OwnerEmail: "o@x.test", OwnerName: "O", OwnerPassword: "long-enough"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "slug", verr.Field)

	tenant, owner, err := s.Create(ctx, super, TenantInput{Name: "Initech", Slug: "initech", OwnerEmail: "bill@initech.test", OwnerName: "Bill", OwnerPassword: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, owner.TenantID)
	assert.Equal(t, models.RoleOwner, owner.Role)

	_, _, err = s.Create(ctx, super, TenantInput{Name: "Initech 2", Slug: "initech", OwnerEmail: "x@initech.test", OwnerName: "X", OwnerPassword: "long-enough"})
	assert.ErrorIs(t, err, ErrConflict)
	var count int64
	require.NoError(t, env.repo.DB(ctx).Model(&models.User{}).Where("email = ?", "x@initech.test").Count(&count).Error)
	assert.Zero(t, count, "owner is rolled back with the tenant")

	suspended, err := s.Update(ctx, super, tenant.ID, TenantPatch{Status: ptr(models.TenantSuspended)})
	require.NoError(t, err)
	assert.Equal(t, models.TenantSuspended, suspended.Status)

	_, err = s.Update(ctx, super, super.TenantID, TenantPatch{Status: ptr(models.TenantSuspended)})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, s.Delete(ctx, super, super.TenantID), ErrConflict)

	require.NoError(t, s.Delete(ctx, super, tenant.ID))
	_, err = s.Get(ctx, super, tenant.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := s.List(ctx, super)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	reborn, _, err := s.Create(ctx, super, TenantInput{Name: "Initech", Slug: "initech", OwnerEmail: "bill@initech.test", OwnerName: "Bill", OwnerPassword: "long-enough"})
	require.NoError(t, err, "slug and owner email of a deleted tenant are free again")
	assert.NotEqual(t, tenant.ID, reborn.ID)
}

func TestBootstrap(t *testing.T) {
	env := newTestEnv(t)
	s := NewTenantService(env.repo, nil)
	ctx := context.Background()

	created, err := s.Bootstrap(ctx, "root@platform.test", "long-enough")
	require.NoError(t, err)
	assert.False(t, created, "users already exist")

	created, err = s.Bootstrap(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestBootstrapEmptyDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.DB(ctx).Unscoped().Where("1 = 1").Delete(&models.User{}).Error)
	s := NewTenantService(env.repo, nil)

	created, err := s.Bootstrap(ctx, "Root@Platform.test", "long-enough")
	require.NoError(t, err)
	require.True(t, created)

	var u models.User
	require.NoError(t, env.repo.DB(ctx).Where("email = ?", "root@platform.test").Take(&u).Error)
	assert.True(t, u.SuperAdmin)
	assert.Equal(t, models.RoleOwner, u.Role)

	created, err = s.Bootstrap(ctx, "root@platform.test", "long-enough")
	require.NoError(t, err)
	assert.False(t, created)
}
