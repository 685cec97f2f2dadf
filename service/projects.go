package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type ProjectInput struct {
	ClientID    uint                 `json:"client_id" binding:"required"`
	Name        string               `json:"name" binding:"required,max=200"`
	Description string               `json:"description" binding:"max=5000"`
	Status      models.ProjectStatus `json:"status" binding:"omitempty,oneof=planning active on_hold completed cancelled"`
	StartDate   *time.Time           `json:"start_date"`
	EndDate     *time.Time           `json:"end_date"`
	Budget      float64              `json:"budget" binding:"gte=0"`
}

type ProjectPatch struct {
	Name        *string               `json:"name" binding:"omitempty,max=200"`
	Description *string               `json:"description" binding:"omitempty,max=5000"`
	Status      *models.ProjectStatus `json:"status" binding:"omitempty,oneof=planning active on_hold completed cancelled"`
	StartDate   *time.Time            `json:"start_date"`
	EndDate     *time.Time            `json:"end_date"`
	Budget      *float64              `json:"budget" binding:"omitempty,gte=0"`
}

type ProjectFilter struct {
	ClientID uint                 `form:"client_id"`
	Status   models.ProjectStatus `form:"status"`
}

// ProjectService manages the project > phase > set > requirement hierarchy.
type ProjectService struct {
	base
}

func NewProjectService(d Deps) *ProjectService {
	return &ProjectService{base: newBase(d)}
}

func (s *ProjectService) ListProjects(ctx context.Context, scope models.Scope, f ProjectFilter) ([]models.Project, error) {
	db := s.repo.DB(ctx)
	q := db.Scopes(models.InTenant(scope.TenantID))
	if f.ClientID != 0 {
		if ok, err := models.Exists[models.Client](db, scope.TenantID, f.ClientID); err != nil {
			return nil, err
		} else if !ok {
			return nil, ErrNotFound
		}
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.Project
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *ProjectService) GetProject(ctx context.Context, scope models.Scope, id uint) (*models.Project, error) {
	key := EntityCacheKey(scope.TenantID, models.EntityProject, id)
	return cached(ctx, s.cache, "project", key, func() (*models.Project, error) {
		return getRecord[models.Project](ctx, s.base, scope, id)
	})
}

func (s *ProjectService) CreateProject(ctx context.Context, scope models.Scope, in ProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	if err := checkDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.ProjectPlanning
	}
	p := &models.Project{
		ClientID:    in.ClientID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Status:      status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Budget:      in.Budget,
	}
	err := createRecord(ctx, s.base, scope, models.EntityProject, p, func(tx *gorm.DB) error {
		return requireParent[models.Client](tx, scope.TenantID, in.ClientID, "client_id")
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, scope models.Scope, id uint, in ProjectPatch) (*models.Project, error) {
	p := patch{}
	if err := setRequired(p, "name", in.Name); err != nil {
		return nil, err
	}
	setText(p, "description", in.Description)
	setOpt(p, "status", in.Status)
	setOpt(p, "start_date", in.StartDate)
	setOpt(p, "end_date", in.EndDate)
	setOpt(p, "budget", in.Budget)

	return updateRecord[models.Project](ctx, s.base, scope, models.EntityProject, id, p, func(_ *gorm.DB, cur *models.Project) error {
		return checkDates(pick(in.StartDate, cur.StartDate), pick(in.EndDate, cur.EndDate))
	})
}

// DeleteProject soft deletes the project with all its phases, sets and
// requirements.
func (s *ProjectService) DeleteProject(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Project](ctx, s.base, scope, models.EntityProject, id, func(c *cascade, p *models.Project) error {
		phaseIDs, err := removeWhere[models.Phase](c, models.EntityPhase, "project_id = ?", p.ID)
		if err != nil {
			return err
		}
		return removeSets(c, phaseIDs)
	})
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func pick[T any](next, cur *T) *T {
	if next != nil {
		return next
	}
	return cur
}
