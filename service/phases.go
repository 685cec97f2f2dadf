package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type PhaseInput struct {
	Name        string            `json:"name" binding:"required,max=200"`
	Description string            `json:"description" binding:"max=5000"`
	Status      models.WorkStatus `json:"status" binding:"omitempty,oneof=not_started in_progress completed"`
	StartDate   *time.Time        `json:"start_date"`
	EndDate     *time.Time        `json:"end_date"`
}

type PhasePatch struct {
	Name        *string            `json:"name" binding:"omitempty,max=200"`
	Description *string            `json:"description" binding:"omitempty,max=5000"`
	Status      *models.WorkStatus `json:"status" binding:"omitempty,oneof=not_started in_progress completed"`
	Position    *int               `json:"position" binding:"omitempty,gte=0"`
	StartDate   *time.Time         `json:"start_date"`
	EndDate     *time.Time         `json:"end_date"`
}

type SetInput struct {
	Name        string            `json:"name" binding:"required,max=200"`
	Description string            `json:"description" binding:"max=5000"`
	Status      models.WorkStatus `json:"status" binding:"omitempty,oneof=not_started in_progress completed"`
}

type SetPatch struct {
	Name        *string            `json:"name" binding:"omitempty,max=200"`
	Description *string            `json:"description" binding:"omitempty,max=5000"`
	Status      *models.WorkStatus `json:"status" binding:"omitempty,oneof=not_started in_progress completed"`
	Position    *int               `json:"position" binding:"omitempty,gte=0"`
}

type RequirementInput struct {
	Title         string                   `json:"title" binding:"required,max=300"`
	Description   string                   `json:"description" binding:"max=10000"`
	Priority      models.Priority          `json:"priority" binding:"omitempty,oneof=low medium high critical"`
	Status        models.RequirementStatus `json:"status" binding:"omitempty,oneof=draft approved in_progress done rejected"`
	EstimateHours float64                  `json:"estimate_hours" binding:"gte=0"`
}

type RequirementPatch struct {
	Title         *string                   `json:"title" binding:"omitempty,max=300"`
	Description   *string                   `json:"description" binding:"omitempty,max=10000"`
	Priority      *models.Priority          `json:"priority" binding:"omitempty,oneof=low medium high critical"`
	Status        *models.RequirementStatus `json:"status" binding:"omitempty,oneof=draft approved in_progress done rejected"`
	EstimateHours *float64                  `json:"estimate_hours" binding:"omitempty,gte=0"`
}

// listChildren loads the live T rows under a parent, failing with
// ErrNotFound when the parent is not visible to the tenant.
func listChildren[T, Parent any](ctx context.Context, b base, scope models.Scope, column string, parentID uint, order string) ([]T, error) {
	db := b.repo.DB(ctx)
	if ok, err := models.Exists[Parent](db, scope.TenantID, parentID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	var out []T
	err := db.Scopes(models.InTenant(scope.TenantID)).
		Where(column+" = ?", parentID).
		Order(order).
		Find(&out).Error
	return out, err
}

func (s *ProjectService) ListPhases(ctx context.Context, scope models.Scope, projectID uint) ([]models.Phase, error) {
	return listChildren[models.Phase, models.Project](ctx, s.base, scope, "project_id", projectID, "position ASC, id ASC")
}

func (s *ProjectService) GetPhase(ctx context.Context, scope models.Scope, id uint) (*models.Phase, error) {
	return getRecord[models.Phase](ctx, s.base, scope, id)
}

func (s *ProjectService) CreatePhase(ctx context.Context, scope models.Scope, projectID uint, in PhaseInput) (*models.Phase, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	if err := checkDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	ph := &models.Phase{
		ProjectID:   projectID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Status:      workStatusOrDefault(in.Status),
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	err := createRecord(ctx, s.base, scope, models.EntityPhase, ph, func(tx *gorm.DB) error {
		if _, err := models.LockOne[models.Project](tx, scope.TenantID, projectID); err != nil {
			return err
		}
		n, err := phasesOf(tx, scope.TenantID, projectID).count()
		ph.Position = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return ph, nil
}

func (s *ProjectService) UpdatePhase(ctx context.Context, scope models.Scope, id uint, in PhasePatch) (*models.Phase, error) {
	p := patch{}
	if err := setRequired(p, "name", in.Name); err != nil {
		return nil, err
	}
	setText(p, "description", in.Description)
	setOpt(p, "status", in.Status)
	setOpt(p, "start_date", in.StartDate)
	setOpt(p, "end_date", in.EndDate)

	return updateRecord[models.Phase](ctx, s.base, scope, models.EntityPhase, id, p, func(tx *gorm.DB, cur *models.Phase) error {
		if err := checkDates(pick(in.StartDate, cur.StartDate), pick(in.EndDate, cur.EndDate)); err != nil {
			return err
		}
		if in.Position == nil {
			return nil
		}
		if _, err := models.LockOne[models.Project](tx, scope.TenantID, cur.ProjectID); err != nil {
			return err
		}
		return reposition(phasesOf(tx, scope.TenantID, cur.ProjectID), p, cur.ID, *in.Position)
	})
}

func (s *ProjectService) DeletePhase(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Phase](ctx, s.base, scope, models.EntityPhase, id, func(c *cascade, ph *models.Phase) error {
		if _, err := models.LockOne[models.Project](c.tx, scope.TenantID, ph.ProjectID); err != nil {
			return err
		}
		sibs := phasesOf(c.tx, scope.TenantID, ph.ProjectID)
		pos, err := sibs.positionOf(ph.ID)
		if err != nil {
			return err
		}
		if err := sibs.closeGap(pos); err != nil {
			return err
		}
		return removeSets(c, []uint{ph.ID})
	})
}

func (s *ProjectService) ListSets(ctx context.Context, scope models.Scope, phaseID uint) ([]models.Set, error) {
	return listChildren[models.Set, models.Phase](ctx, s.base, scope, "phase_id", phaseID, "position ASC, id ASC")
}

func (s *ProjectService) GetSet(ctx context.Context, scope models.Scope, id uint) (*models.Set, error) {
	return getRecord[models.Set](ctx, s.base, scope, id)
}

func (s *ProjectService) CreateSet(ctx context.Context, scope models.Scope, phaseID uint, in SetInput) (*models.Set, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	set := &models.Set{
		PhaseID:     phaseID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Status:      workStatusOrDefault(in.Status),
	}
	err := createRecord(ctx, s.base, scope, models.EntitySet, set, func(tx *gorm.DB) error {
		if _, err := models.LockOne[models.Phase](tx, scope.TenantID, phaseID); err != nil {
			return err
		}
		n, err := setsOf(tx, scope.TenantID, phaseID).count()
		set.Position = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (s *ProjectService) UpdateSet(ctx context.Context, scope models.Scope, id uint, in SetPatch) (*models.Set, error) {
	p := patch{}
	if err := setRequired(p, "name", in.Name); err != nil {
		return nil, err
	}
	setText(p, "description", in.Description)
	setOpt(p, "status", in.Status)
	return updateRecord[models.Set](ctx, s.base, scope, models.EntitySet, id, p, func(tx *gorm.DB, cur *models.Set) error {
		if in.Position == nil {
			return nil
		}
		if _, err := models.LockOne[models.Phase](tx, scope.TenantID, cur.PhaseID); err != nil {
			return err
		}
		return reposition(setsOf(tx, scope.TenantID, cur.PhaseID), p, cur.ID, *in.Position)
	})
}

func (s *ProjectService) DeleteSet(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Set](ctx, s.base, scope, models.EntitySet, id, func(c *cascade, set *models.Set) error {
		if _, err := models.LockOne[models.Phase](c.tx, scope.TenantID, set.PhaseID); err != nil {
			return err
		}
		sibs := setsOf(c.tx, scope.TenantID, set.PhaseID)
		pos, err := sibs.positionOf(set.ID)
		if err != nil {
			return err
		}
		if err := sibs.closeGap(pos); err != nil {
			return err
		}
		_, err = removeWhere[models.Requirement](c, models.EntityRequirement, "set_id = ?", set.ID)
		return err
	})
}

func (s *ProjectService) ListRequirements(ctx context.Context, scope models.Scope, setID uint) ([]models.Requirement, error) {
	return listChildren[models.Requirement, models.Set](ctx, s.base, scope, "set_id", setID, "id ASC")
}

func (s *ProjectService) GetRequirement(ctx context.Context, scope models.Scope, id uint) (*models.Requirement, error) {
	return getRecord[models.Requirement](ctx, s.base, scope, id)
}

func (s *ProjectService) CreateRequirement(ctx context.Context, scope models.Scope, setID uint, in RequirementInput) (*models.Requirement, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	r := &models.Requirement{
		SetID:         setID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Priority:      in.Priority,
		Status:        in.Status,
		EstimateHours: in.EstimateHours,
	}
	if r.Priority == "" {
		r.Priority = models.PriorityMedium
	}
	if r.Status == "" {
		r.Status = models.RequirementDraft
	}
	err := createRecord(ctx, s.base, scope, models.EntityRequirement, r, func(tx *gorm.DB) error {
		if ok, err := models.Exists[models.Set](tx, scope.TenantID, setID); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ProjectService) UpdateRequirement(ctx context.Context, scope models.Scope, id uint, in RequirementPatch) (*models.Requirement, error) {
	p := patch{}
	if err := setRequired(p, "title", in.Title); err != nil {
		return nil, err
	}
	setText(p, "description", in.Description)
	setOpt(p, "priority", in.Priority)
	setOpt(p, "status", in.Status)
	setOpt(p, "estimate_hours", in.EstimateHours)
	return updateRecord[models.Requirement](ctx, s.base, scope, models.EntityRequirement, id, p, nil)
}

func (s *ProjectService) DeleteRequirement(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Requirement](ctx, s.base, scope, models.EntityRequirement, id, nil)
}

func phasesOf(tx *gorm.DB, tenantID, projectID uint) siblings[models.Phase] {
	return siblings[models.Phase]{tx: tx, tenantID: tenantID, column: "project_id", parentID: projectID}
}

func setsOf(tx *gorm.DB, tenantID, phaseID uint) siblings[models.Set] {
	return siblings[models.Set]{tx: tx, tenantID: tenantID, column: "phase_id", parentID: phaseID}
}

// reposition moves one row among its siblings and records the position it
// ends up at in p. An unchanged position leaves p alone.
func reposition[T any](sibs siblings[T], p patch, id uint, to int) error {
	from, pos, err := sibs.move(id, to)
	if err != nil || pos == from {
		return err
	}
	p.set("position", pos)
	return nil
}

// removeSets deletes the sets under the given phases together with their
// requirements.
func removeSets(c *cascade, phaseIDs []uint) error {
	if len(phaseIDs) == 0 {
		return nil
	}
	setIDs, err := removeWhere[models.Set](c, models.EntitySet, "phase_id IN ?", phaseIDs)
	if err != nil || len(setIDs) == 0 {
		return err
	}
	_, err = removeWhere[models.Requirement](c, models.EntityRequirement, "set_id IN ?", setIDs)
	return err
}

func workStatusOrDefault(s models.WorkStatus) models.WorkStatus {
	if s == "" {
		return models.WorkNotStarted
	}
	return s
}
