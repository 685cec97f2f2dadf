package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type ClientInput struct {
	Name     string              `json:"name" binding:"required,max=200"`
	Industry string              `json:"industry" binding:"max=100"`
	Website  string              `json:"website" binding:"omitempty,url"`
	Email    string              `json:"email" binding:"omitempty,email"`
	Phone    string              `json:"phone" binding:"max=50"`
	Address  string              `json:"address" binding:"max=500"`
	Status   models.ClientStatus `json:"status" binding:"omitempty,oneof=prospect active inactive archived"`
	OwnerID  *uint               `json:"owner_id"`
}

type ClientPatch struct {
	Name     *string              `json:"name" binding:"omitempty,max=200"`
	Industry *string              `json:"industry" binding:"omitempty,max=100"`
	Website  *string              `json:"website" binding:"omitempty,url"`
	Email    *string              `json:"email" binding:"omitempty,email"`
	Phone    *string              `json:"phone" binding:"omitempty,max=50"`
	Address  *string              `json:"address" binding:"omitempty,max=500"`
	Status   *models.ClientStatus `json:"status" binding:"omitempty,oneof=prospect active inactive archived"`
	OwnerID  *uint                `json:"owner_id"`
}

type ClientFilter struct {
	Status models.ClientStatus `form:"status"`
	Query  string              `form:"q"`
}

type ClientService struct {
	base
}

func NewClientService(d Deps) *ClientService {
	return &ClientService{base: newBase(d)}
}

func (s *ClientService) List(ctx context.Context, scope models.Scope, f ClientFilter) ([]models.Client, error) {
	q := s.repo.DB(ctx).Scopes(models.InTenant(scope.TenantID))
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(display_id) LIKE ?", like, like, like)
	}
	var out []models.Client
	err := q.Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

func (s *ClientService) Get(ctx context.Context, scope models.Scope, id uint) (*models.Client, error) {
	key := EntityCacheKey(scope.TenantID, models.EntityClient, id)
	return cached(ctx, s.cache, "client", key, func() (*models.Client, error) {
		return getRecord[models.Client](ctx, s.base, scope, id)
	})
}

func (s *ClientService) Create(ctx context.Context, scope models.Scope, in ClientInput) (*models.Client, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	status := in.Status
	if status == "" {
		status = models.ClientProspect
	}
	c := &models.Client{
		Name:     name,
		Industry: strings.TrimSpace(in.Industry),
		Website:  strings.TrimSpace(in.Website),
		Email:    strings.TrimSpace(in.Email),
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		Status:   status,
		OwnerID:  in.OwnerID,
	}
	err := createRecord(ctx, s.base, scope, models.EntityClient, c, func(tx *gorm.DB) error {
		return checkOwner(tx, scope.TenantID, in.OwnerID)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Update(ctx context.Context, scope models.Scope, id uint, in ClientPatch) (*models.Client, error) {
	p := patch{}
	if err := setRequired(p, "name", in.Name); err != nil {
		return nil, err
	}
	setText(p, "industry", in.Industry)
	setText(p, "website", in.Website)
	setText(p, "email", in.Email)
	setText(p, "phone", in.Phone)
	setText(p, "address", in.Address)
	setOpt(p, "status", in.Status)
	setOpt(p, "owner_id", in.OwnerID)

	return updateRecord[models.Client](ctx, s.base, scope, models.EntityClient, id, p, func(tx *gorm.DB, _ *models.Client) error {
		return checkOwner(tx, scope.TenantID, in.OwnerID)
	})
}

// Delete refuses while the client still has projects or pitches. Its
// contacts go with it.
func (s *ClientService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Client](ctx, s.base, scope, models.EntityClient, id, func(c *cascade, cl *models.Client) error {
		n, err := models.Count[models.Project](c.tx, scope.TenantID, "client_id = ?", cl.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return conflict("client still has projects")
		}
		if err := requireNoPitches(c.tx, scope.TenantID, "client_id", cl.ID); err != nil {
			return err
		}
		_, err = removeWhere[models.Contact](c, models.EntityContact, "client_id = ?", cl.ID)
		return err
	})
}

func checkOwner(tx *gorm.DB, tenantID uint, ownerID *uint) error {
	if ownerID == nil {
		return nil
	}
	var n int64
	err := tx.Model(&models.User{}).
		Where("id = ? AND tenant_id = ? AND active = ?", *ownerID, tenantID, true).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return invalid("owner_id", "is not an active user of this tenant")
	}
	return nil
}
