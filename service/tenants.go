package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tenantcrm/models"
	"tenantcrm/utils"
)

const platformSlug = "platform"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type TenantInput struct {
	Name          string `json:"name" binding:"required,max=200"`
	Slug          string `json:"slug" binding:"required,max=64"`
	OwnerEmail    string `json:"owner_email" binding:"required,email"`
	OwnerName     string `json:"owner_name" binding:"required,max=200"`
	OwnerPassword string `json:"owner_password" binding:"required"`
}

type TenantPatch struct {
	Name   *string              `json:"name" binding:"omitempty,max=200"`
	Status *models.TenantStatus `json:"status" binding:"omitempty,oneof=active suspended"`
}

// TenantService is reserved to platform super-admins. cache may be nil.
type TenantService struct {
	repo  *models.Repository
	cache utils.RedisClient
}

func NewTenantService(repo *models.Repository, cache utils.RedisClient) *TenantService {
	return &TenantService{repo: repo, cache: cache}
}

// purge drops every cached read of a tenant.
func (s *TenantService) purge(ctx context.Context, tenantID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, TenantCachePrefix(tenantID)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint("tenant_id", tenantID).Msg("tenant cache purge failed")
	}
}

func (s *TenantService) List(ctx context.Context, scope models.Scope) ([]models.Tenant, error) {
	if !scope.SuperAdmin {
		return nil, ErrForbidden
	}
	var out []models.Tenant
	err := s.repo.DB(ctx).Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

func (s *TenantService) Get(ctx context.Context, scope models.Scope, id uint) (*models.Tenant, error) {
	if !scope.SuperAdmin {
		return nil, ErrForbidden
	}
	var t models.Tenant
	if err := s.repo.DB(ctx).Take(&t, id).Error; err != nil {
		return nil, normalize(err)
	}
	return &t, nil
}

// Create registers a tenant together with its first owner.
func (s *TenantService) Create(ctx context.Context, scope models.Scope, in TenantInput) (*models.Tenant, *models.User, error) {
	if !scope.SuperAdmin {
		return nil, nil, ErrForbidden
	}
	tenant, owner, err := newTenant(in)
	if err != nil {
		return nil, nil, err
	}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		return insertTenant(tx, tenant, owner)
	})
	if err != nil {
		return nil, nil, normalize(err)
	}
	log.Ctx(ctx).Info().Uint("tenant_id", tenant.ID).Str("slug", tenant.Slug).Msg("tenant created")
	return tenant, owner, nil
}

func (s *TenantService) Update(ctx context.Context, scope models.Scope, id uint, in TenantPatch) (*models.Tenant, error) {
	if !scope.SuperAdmin {
		return nil, ErrForbidden
	}
	var out models.Tenant
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Take(&out, id).Error; err != nil {
			return err
		}
		updates := map[string]any{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalid("name", "must not be empty")
			}
			updates["name"] = name
		}
		if in.Status != nil && *in.Status != out.Status {
			switch *in.Status {
			case models.TenantActive, models.TenantSuspended:
			default:
				return invalid("status", "unknown status %q", *in.Status)
			}
			if *in.Status == models.TenantSuspended && id == scope.TenantID {
				return conflict("cannot suspend the tenant you are signed in to")
			}
			updates["status"] = *in.Status
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&out).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Take(&out, id).Error
	})
	if err != nil {
		return nil, normalize(err)
	}
	s.purge(ctx, id)
	return &out, nil
}

func (s *TenantService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	if !scope.SuperAdmin {
		return ErrForbidden
	}
	if id == scope.TenantID {
		return conflict("cannot delete the tenant you are signed in to")
	}
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var t models.Tenant
		if err := tx.Take(&t, id).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.User{}).Error; err != nil {
			return err
		}
		return tx.Delete(&t).Error
	})
	if err != nil {
		return normalize(err)
	}
	s.purge(ctx, id)
	log.Ctx(ctx).Info().Uint("tenant_id", id).Msg("tenant deleted")
	return nil
}

// Bootstrap creates the platform tenant and its super-admin when the
// database holds no users yet. It reports whether anything was created.
func (s *TenantService) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	tenant, owner, err := newTenant(TenantInput{
		Name:          "Platform",
		Slug:          platformSlug,
		OwnerEmail:    email,
		OwnerName:     "Platform Administrator",
		OwnerPassword: password,
	})
	if err != nil {
		return false, err
	}
	owner.SuperAdmin = true

	created := false
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Unscoped().Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		created = true
		return insertTenant(tx, tenant, owner)
	})
	if err != nil {
		return false, normalize(err)
	}
	if created {
		log.Ctx(ctx).Info().Str("email", owner.Email).Msg("bootstrap super-admin created")
	}
	return created, nil
}

func newTenant(in TenantInput) (*models.Tenant, *models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, invalid("name", "must not be empty")
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, nil, invalid("slug", "use lowercase letters, digits and single dashes")
	}
	email := normalizeEmail(in.OwnerEmail)
	if !validEmail(email) {
		return nil, nil, invalid("owner_email", "invalid email address")
	}
	ownerName := strings.TrimSpace(in.OwnerName)
	if ownerName == "" {
		return nil, nil, invalid("owner_name", "must not be empty")
	}
	hash, err := HashPassword(in.OwnerPassword)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Field = "owner_password"
		}
		return nil, nil, err
	}
	tenant := &models.Tenant{Name: name, Slug: slug, Status: models.TenantActive}
	owner := &models.User{
		Email:        email,
		FullName:     ownerName,
		PasswordHash: hash,
		Role:         models.RoleOwner,
		Active:       true,
	}
	return tenant, owner, nil
}

func insertTenant(tx *gorm.DB, tenant *models.Tenant, owner *models.User) error {
	if err := tx.Create(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflict("a tenant with this slug already exists")
		}
		return err
	}
	owner.TenantID = tenant.ID
	if err := tx.Create(owner).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflict("a user with this email already exists")
		}
		return err
	}
	return nil
}
