package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type UserInput struct {
	Email    string      `json:"email" binding:"required,email"`
	FullName string      `json:"full_name" binding:"required,max=200"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role" binding:"omitempty,oneof=owner admin member"`
}

type UserPatch struct {
	FullName *string      `json:"full_name" binding:"omitempty,max=200"`
	Role     *models.Role `json:"role" binding:"omitempty,oneof=owner admin member"`
	Active   *bool        `json:"active"`
	Password *string      `json:"password"`
}

// UserService manages the members of a tenant. Only owners and admins may
// manage users, and only owners may grant or touch the owner role.
type UserService struct {
	repo *models.Repository
}

func NewUserService(repo *models.Repository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) List(ctx context.Context, scope models.Scope) ([]models.User, error) {
	if !scope.IsAdmin() {
		return nil, ErrForbidden
	}
	var out []models.User
	err := s.repo.DB(ctx).Where("tenant_id = ?", scope.TenantID).
		Order("full_name ASC, id ASC").Find(&out).Error
	return out, err
}

func (s *UserService) Create(ctx context.Context, scope models.Scope, in UserInput) (*models.User, error) {
	if !scope.IsAdmin() {
		return nil, ErrForbidden
	}
	role := in.Role
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, invalid("role", "unknown role %q", role)
	}
	if role == models.RoleOwner && !canGrantOwner(scope) {
		return nil, ErrForbidden
	}
	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, invalid("email", "invalid email address")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, invalid("full_name", "must not be empty")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		TenantID:     scope.TenantID,
		Email:        email,
		FullName:     name,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.repo.DB(ctx).Create(u).Error; err != nil {
		return nil, normalize(err)
	}
	return u, nil
}

func (s *UserService) Update(ctx context.Context, scope models.Scope, id uint, in UserPatch) (*models.User, error) {
	if !scope.IsAdmin() && id != scope.UserID {
		return nil, ErrForbidden
	}
	var out models.User
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		u, err := s.find(tx, scope, id)
		if err != nil {
			return err
		}
		self := u.ID == scope.UserID
		if u.Role == models.RoleOwner && !self && !canGrantOwner(scope) {
			return ErrForbidden
		}
		updates := map[string]any{}

		if in.FullName != nil {
			name := strings.TrimSpace(*in.FullName)
			if name == "" {
				return invalid("full_name", "must not be empty")
			}
			updates["full_name"] = name
		}
		if in.Password != nil {
			hash, err := HashPassword(*in.Password)
			if err != nil {
				return err
			}
			updates["password_hash"] = hash
		}
		if in.Role != nil && *in.Role != u.Role {
			if self || !scope.IsAdmin() {
				return ErrForbidden
			}
			if (*in.Role == models.RoleOwner || u.Role == models.RoleOwner) && !canGrantOwner(scope) {
				return ErrForbidden
			}
			if u.Role == models.RoleOwner {
				if err := requireAnotherOwner(tx, u); err != nil {
					return err
				}
			}
			updates["role"] = *in.Role
		}
		if in.Active != nil && *in.Active != u.Active {
			if self || !scope.IsAdmin() {
				return ErrForbidden
			}
			if u.Role == models.RoleOwner && !canGrantOwner(scope) {
				return ErrForbidden
			}
			if !*in.Active && u.Role == models.RoleOwner {
				if err := requireAnotherOwner(tx, u); err != nil {
					return err
				}
			}
			updates["active"] = *in.Active
		}
		if len(updates) > 0 {
			if err := tx.Model(u).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Take(&out, u.ID).Error
	})
	if err != nil {
		return nil, normalize(err)
	}
	return &out, nil
}

func (s *UserService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	if !scope.IsAdmin() || id == scope.UserID {
		return ErrForbidden
	}
	return normalize(s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		u, err := s.find(tx, scope, id)
		if err != nil {
			return err
		}
		if u.Role == models.RoleOwner {
			if !canGrantOwner(scope) {
				return ErrForbidden
			}
			if err := requireAnotherOwner(tx, u); err != nil {
				return err
			}
		}
		return tx.Delete(u).Error
	}))
}

func (s *UserService) find(tx *gorm.DB, scope models.Scope, id uint) (*models.User, error) {
	var u models.User
	if err := tx.Where("tenant_id = ?", scope.TenantID).Take(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func canGrantOwner(scope models.Scope) bool {
	return scope.SuperAdmin || scope.Role == models.RoleOwner
}

func requireAnotherOwner(tx *gorm.DB, u *models.User) error {
	var n int64
	err := tx.Model(&models.User{}).
		Where("tenant_id = ? AND role = ? AND active = ? AND id <> ?", u.TenantID, models.RoleOwner, true, u.ID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return conflict("a tenant must keep at least one active owner")
	}
	return nil
}

// TranslateUserError turns a user creation failure into a message that can be
// shown to an administrator as is.
func TranslateUserError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrConflict) && !has("owner"), has("duplicate", "already exists", "unique constraint"):
		return "A user with this email already exists."
	case errors.Is(err, ErrForbidden), has("permission denied", "not authorized", "forbidden"):
		return "You don't have permission to create users."
	case errors.As(err, &verr) && verr.Field == "email", has("invalid email"):
		return "Please enter a valid email address."
	case has("password") && has("short", "at least"):
		return "Password must be at least 8 characters."
	case errors.As(err, &verr):
		return verr.Error()
	}
	return "Failed to create user. Please try again."
}
