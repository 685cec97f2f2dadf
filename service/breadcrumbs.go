package service

import (
	"context"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type Breadcrumb struct {
	Type      models.EntityType `json:"type"`
	ID        uint              `json:"id"`
	DisplayID string            `json:"display_id"`
	Label     string            `json:"label"`
}

// Navigator resolves polymorphic references to records.
type Navigator struct {
	repo *models.Repository
}

func NewNavigator(repo *models.Repository) *Navigator {
	return &Navigator{repo: repo}
}

// Breadcrumbs returns the ancestors of a record, root first, ending with the
// record itself.
func (n *Navigator) Breadcrumbs(ctx context.Context, scope models.Scope, entity models.EntityType, id uint) ([]Breadcrumb, error) {
	if !entity.Valid() {
		return nil, invalid("type", "unknown entity type %q", entity)
	}
	db := n.repo.DB(ctx)
	var trail []Breadcrumb
	for entity != "" {
		rec, err := loadTarget(db, scope.TenantID, entity, id)
		if err != nil {
			return nil, normalize(err)
		}
		label, _ := describe(rec)
		trail = append(trail, Breadcrumb{Type: entity, ID: id, DisplayID: rec.Base().DisplayID, Label: label})
		entity, id = parentOf(rec)
	}
	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail, nil
}

func parentOf(rec models.Owned) (models.EntityType, uint) {
	switch r := rec.(type) {
	case *models.Contact:
		return models.EntityClient, r.ClientID
	case *models.Project:
		return models.EntityClient, r.ClientID
	case *models.Phase:
		return models.EntityProject, r.ProjectID
	case *models.Set:
		return models.EntityPhase, r.PhaseID
	case *models.Requirement:
		return models.EntitySet, r.SetID
	case *models.Pitch:
		if r.ClientID != nil {
			return models.EntityClient, *r.ClientID
		}
		if r.LeadID != nil {
			return models.EntityLead, *r.LeadID
		}
	}
	return "", 0
}

// loadTarget loads the live record an entity reference points at.
func loadTarget(db *gorm.DB, tenantID uint, entity models.EntityType, id uint) (models.Owned, error) {
	switch entity {
	case models.EntityClient:
		return findOwned[models.Client](db, tenantID, id)
	case models.EntityContact:
		return findOwned[models.Contact](db, tenantID, id)
	case models.EntityProject:
		return findOwned[models.Project](db, tenantID, id)
	case models.EntityPhase:
		return findOwned[models.Phase](db, tenantID, id)
	case models.EntitySet:
		return findOwned[models.Set](db, tenantID, id)
	case models.EntityRequirement:
		return findOwned[models.Requirement](db, tenantID, id)
	case models.EntityPitch:
		return findOwned[models.Pitch](db, tenantID, id)
	case models.EntityLead:
		return findOwned[models.Lead](db, tenantID, id)
	}
	return nil, invalid("type", "unknown entity type %q", entity)
}

func findOwned[T any, P ownedPtr[T]](db *gorm.DB, tenantID, id uint) (models.Owned, error) {
	rec, err := models.FindOne[T](db, tenantID, id)
	if err != nil {
		return nil, err
	}
	return P(rec), nil
}
