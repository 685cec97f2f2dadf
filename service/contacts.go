package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type ContactInput struct {
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"max=100"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone" binding:"max=50"`
	Title     string `json:"title" binding:"max=100"`
	IsPrimary bool   `json:"is_primary"`
}

type ContactPatch struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone" binding:"omitempty,max=50"`
	Title     *string `json:"title" binding:"omitempty,max=100"`
	IsPrimary *bool   `json:"is_primary"`
}

// ContactService keeps exactly one primary contact per client that has any.
type ContactService struct {
	base
}

func NewContactService(d Deps) *ContactService {
	return &ContactService{base: newBase(d)}
}

func (s *ContactService) ListByClient(ctx context.Context, scope models.Scope, clientID uint) ([]models.Contact, error) {
	db := s.repo.DB(ctx)
	if ok, err := models.Exists[models.Client](db, scope.TenantID, clientID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	var out []models.Contact
	err := db.Scopes(models.InTenant(scope.TenantID)).
		Where("client_id = ?", clientID).
		Order("is_primary DESC, last_name ASC, first_name ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (s *ContactService) Get(ctx context.Context, scope models.Scope, id uint) (*models.Contact, error) {
	return getRecord[models.Contact](ctx, s.base, scope, id)
}

func (s *ContactService) Create(ctx context.Context, scope models.Scope, clientID uint, in ContactInput) (*models.Contact, error) {
	first := strings.TrimSpace(in.FirstName)
	if first == "" {
		return nil, invalid("first_name", "must not be empty")
	}
	c := &models.Contact{
		ClientID:  clientID,
		FirstName: first,
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Title:     strings.TrimSpace(in.Title),
		IsPrimary: in.IsPrimary,
	}
	err := createRecord(ctx, s.base, scope, models.EntityContact, c, func(tx *gorm.DB) error {
		if ok, err := models.Exists[models.Client](tx, scope.TenantID, clientID); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		n, err := models.Count[models.Contact](tx, scope.TenantID, "client_id = ?", clientID)
		if err != nil {
			return err
		}
		if n == 0 {
			c.IsPrimary = true
			return nil
		}
		if c.IsPrimary {
			return clearPrimary(tx, scope.TenantID, clientID, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update edits a contact. Setting is_primary=false on the primary contact is
// rejected; promote another contact instead.
func (s *ContactService) Update(ctx context.Context, scope models.Scope, id uint, in ContactPatch) (*models.Contact, error) {
	p := patch{}
	if err := setRequired(p, "first_name", in.FirstName); err != nil {
		return nil, err
	}
	setText(p, "last_name", in.LastName)
	setText(p, "email", in.Email)
	setText(p, "phone", in.Phone)
	setText(p, "title", in.Title)

	return updateRecord[models.Contact](ctx, s.base, scope, models.EntityContact, id, p, func(tx *gorm.DB, c *models.Contact) error {
		if in.IsPrimary == nil || *in.IsPrimary == c.IsPrimary {
			return nil
		}
		if !*in.IsPrimary {
			return invalid("is_primary", "a client must keep a primary contact; promote another contact instead")
		}
		if err := clearPrimary(tx, scope.TenantID, c.ClientID, c.ID); err != nil {
			return err
		}
		p.set("is_primary", true)
		return nil
	})
}

// SetPrimary makes the contact its client's only primary contact.
func (s *ContactService) SetPrimary(ctx context.Context, scope models.Scope, id uint) (*models.Contact, error) {
	var c *models.Contact
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		c, err = models.FindOne[models.Contact](tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if c.IsPrimary {
			return nil
		}
		if err := clearPrimary(tx, scope.TenantID, c.ClientID, c.ID); err != nil {
			return err
		}
		if err := tx.Model(c).Updates(map[string]any{"is_primary": true, "updated_by_id": scope.UserID}).Error; err != nil {
			return err
		}
		c.IsPrimary = true
		return writeAudit(tx, scope, models.EntityContact, c.ID, models.AuditPrimarySet, nil)
	})
	if err != nil {
		return nil, normalize(err)
	}
	s.committed(ctx, scope, models.EntityContact, models.AuditPrimarySet, c)
	return c, nil
}

// Delete removes the contact and promotes the oldest remaining one when the
// primary goes away.
func (s *ContactService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Contact](ctx, s.base, scope, models.EntityContact, id, func(cs *cascade, c *models.Contact) error {
		if !c.IsPrimary {
			return nil
		}
		tx := cs.tx
		var next models.Contact
		err := tx.Scopes(models.InTenant(scope.TenantID)).
			Where("client_id = ? AND id <> ?", c.ClientID, c.ID).
			Order("created_at ASC, id ASC").
			Limit(1).Find(&next).Error
		if err != nil || next.ID == 0 {
			return err
		}
		if err := tx.Model(&next).Update("is_primary", true).Error; err != nil {
			return err
		}
		return writeAudit(tx, scope, models.EntityContact, next.ID, models.AuditPrimarySet, nil)
	})
}

func clearPrimary(tx *gorm.DB, tenantID, clientID, except uint) error {
	return tx.Model(&models.Contact{}).
		Scopes(models.InTenant(tenantID)).
		Where("client_id = ? AND id <> ? AND is_primary = ?", clientID, except, true).
		Update("is_primary", false).Error
}
