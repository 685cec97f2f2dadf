package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"tenantcrm/models"
)

type PitchInput struct {
	ClientID *uint              `json:"client_id"`
	LeadID   *uint              `json:"lead_id"`
	Title    string             `json:"title" binding:"required,max=200"`
	Summary  string             `json:"summary" binding:"max=10000"`
	Amount   float64            `json:"amount" binding:"gte=0"`
	Status   models.PitchStatus `json:"status" binding:"omitempty,oneof=draft sent accepted rejected"`
}

type PitchPatch struct {
	Title   *string             `json:"title" binding:"omitempty,max=200"`
	Summary *string             `json:"summary" binding:"omitempty,max=10000"`
	Amount  *float64            `json:"amount" binding:"omitempty,gte=0"`
	Status  *models.PitchStatus `json:"status" binding:"omitempty,oneof=draft sent accepted rejected"`
}

type PitchFilter struct {
	Status   models.PitchStatus `form:"status"`
	ClientID uint               `form:"client_id"`
	LeadID   uint               `form:"lead_id"`
}

type PitchService struct {
	base
	now func() time.Time
}

func NewPitchService(d Deps) *PitchService {
	return &PitchService{base: newBase(d), now: time.Now}
}

func (s *PitchService) List(ctx context.Context, scope models.Scope, f PitchFilter) ([]models.Pitch, error) {
	q := s.repo.DB(ctx).Scopes(models.InTenant(scope.TenantID))
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.LeadID != 0 {
		q = q.Where("lead_id = ?", f.LeadID)
	}
	var out []models.Pitch
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *PitchService) Get(ctx context.Context, scope models.Scope, id uint) (*models.Pitch, error) {
	return getRecord[models.Pitch](ctx, s.base, scope, id)
}

func (s *PitchService) Create(ctx context.Context, scope models.Scope, in PitchInput) (*models.Pitch, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	if in.ClientID == nil && in.LeadID == nil {
		return nil, invalid("client_id", "a pitch needs a client or a lead")
	}
	p := &models.Pitch{
		ClientID: in.ClientID,
		LeadID:   in.LeadID,
		Title:    title,
		Summary:  strings.TrimSpace(in.Summary),
		Amount:   in.Amount,
		Status:   in.Status,
	}
	if p.Status == "" {
		p.Status = models.PitchDraft
	}
	s.stamp(p.Status, nil, func(col string, t time.Time) {
		if col == "sent_at" {
			p.SentAt = &t
		} else {
			p.DecidedAt = &t
		}
	})
	err := createRecord(ctx, s.base, scope, models.EntityPitch, p, func(tx *gorm.DB) error {
		if in.ClientID != nil {
			if err := requireParent[models.Client](tx, scope.TenantID, *in.ClientID, "client_id"); err != nil {
				return err
			}
		}
		if in.LeadID != nil {
			return requireParent[models.Lead](tx, scope.TenantID, *in.LeadID, "lead_id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PitchService) Update(ctx context.Context, scope models.Scope, id uint, in PitchPatch) (*models.Pitch, error) {
	p := patch{}
	if err := setRequired(p, "title", in.Title); err != nil {
		return nil, err
	}
	setText(p, "summary", in.Summary)
	setOpt(p, "amount", in.Amount)

	return updateRecord[models.Pitch](ctx, s.base, scope, models.EntityPitch, id, p, func(_ *gorm.DB, cur *models.Pitch) error {
		if in.Status == nil || *in.Status == cur.Status {
			return nil
		}
		p.set("status", *in.Status)
		s.stamp(*in.Status, cur, func(col string, t time.Time) { p.set(col, t) })
		return nil
	})
}

func (s *PitchService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Pitch](ctx, s.base, scope, models.EntityPitch, id, nil)
}

// stamp reports the timestamp columns a move into status sets. SentAt is
// only recorded the first time a pitch is sent.
func (s *PitchService) stamp(status models.PitchStatus, cur *models.Pitch, set func(col string, t time.Time)) {
	now := s.now().UTC()
	switch status {
	case models.PitchSent:
		if cur == nil || cur.SentAt == nil {
			set("sent_at", now)
		}
	case models.PitchAccepted, models.PitchRejected:
		if cur == nil || cur.SentAt == nil {
			set("sent_at", now)
		}
		set("decided_at", now)
	}
}

// requireNoPitches blocks removing a pitch parent while live pitches point at
// it.
func requireNoPitches(tx *gorm.DB, tenantID uint, column string, parentID uint) error {
	n, err := models.Count[models.Pitch](tx, tenantID, column+" = ?", parentID)
	if err != nil {
		return err
	}
	if n > 0 {
		return conflict(strings.TrimSuffix(column, "_id") + " still has pitches")
	}
	return nil
}
