package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tenantcrm/models"
	"tenantcrm/monitoring"
)

type LeadInput struct {
	Title       string            `json:"title" binding:"required,max=200"`
	CompanyName string            `json:"company_name" binding:"max=200"`
	ContactName string            `json:"contact_name" binding:"max=200"`
	Email       string            `json:"email" binding:"omitempty,email"`
	Phone       string            `json:"phone" binding:"max=50"`
	Source      string            `json:"source" binding:"max=100"`
	Value       float64           `json:"value" binding:"gte=0"`
	Status      models.LeadStatus `json:"status"`
	LostReason  string            `json:"lost_reason" binding:"max=1000"`
	OwnerID     *uint             `json:"owner_id"`
}

// LeadPatch edits descriptive fields. Stage changes go through Move.
type LeadPatch struct {
	Title       *string  `json:"title" binding:"omitempty,max=200"`
	CompanyName *string  `json:"company_name" binding:"omitempty,max=200"`
	ContactName *string  `json:"contact_name" binding:"omitempty,max=200"`
	Email       *string  `json:"email" binding:"omitempty,email"`
	Phone       *string  `json:"phone" binding:"omitempty,max=50"`
	Source      *string  `json:"source" binding:"omitempty,max=100"`
	Value       *float64 `json:"value" binding:"omitempty,gte=0"`
	OwnerID     *uint    `json:"owner_id"`
}

// MoveInput is a drop on the pipeline board. A nil Position appends the lead
// to the end of the target stage.
type MoveInput struct {
	Status     models.LeadStatus `json:"status" binding:"required"`
	Position   *int              `json:"position" binding:"omitempty,gte=0"`
	LostReason string            `json:"lost_reason" binding:"max=1000"`
}

type LeadFilter struct {
	Status  models.LeadStatus `form:"status"`
	Query   string            `form:"q"`
	OwnerID uint              `form:"owner_id"`
}

type BoardColumn struct {
	Status     models.LeadStatus `json:"status"`
	Count      int               `json:"count"`
	TotalValue float64           `json:"total_value"`
	Leads      []models.Lead     `json:"leads"`
}

type Board struct {
	Columns []BoardColumn `json:"columns"`
}

type Conversion struct {
	Lead    *models.Lead    `json:"lead"`
	Client  *models.Client  `json:"client"`
	Contact *models.Contact `json:"contact,omitempty"`
}

// LeadService runs the sales pipeline. Positions inside a stage are kept
// dense: 0..n-1 in board order.
type LeadService struct {
	base
	now func() time.Time
}

func NewLeadService(d Deps) *LeadService {
	return &LeadService{base: newBase(d), now: time.Now}
}

func (s *LeadService) List(ctx context.Context, scope models.Scope, f LeadFilter) ([]models.Lead, error) {
	q := s.repo.DB(ctx).Scopes(models.InTenant(scope.TenantID))
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(company_name) LIKE ? OR LOWER(contact_name) LIKE ?", like, like, like)
	}
	var out []models.Lead
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *LeadService) Get(ctx context.Context, scope models.Scope, id uint) (*models.Lead, error) {
	return getRecord[models.Lead](ctx, s.base, scope, id)
}

// Board returns every stage in pipeline order with its leads.
func (s *LeadService) Board(ctx context.Context, scope models.Scope) (*Board, error) {
	return cached(ctx, s.cache, "board", BoardCacheKey(scope.TenantID), func() (*Board, error) {
		var leads []models.Lead
		err := s.repo.DB(ctx).Scopes(models.InTenant(scope.TenantID)).
			Order("position ASC, id ASC").
			Find(&leads).Error
		if err != nil {
			return nil, err
		}
		return buildBoard(leads), nil
	})
}

func buildBoard(leads []models.Lead) *Board {
	idx := make(map[models.LeadStatus]int, len(models.PipelineStages))
	b := &Board{Columns: make([]BoardColumn, len(models.PipelineStages))}
	for i, st := range models.PipelineStages {
		idx[st] = i
		b.Columns[i] = BoardColumn{Status: st, Leads: []models.Lead{}}
	}
	for _, l := range leads {
		i, ok := idx[l.Status]
		if !ok {
			continue
		}
		col := &b.Columns[i]
		col.Leads = append(col.Leads, l)
		col.Count++
		col.TotalValue += l.Value
	}
	return b
}

func (s *LeadService) Create(ctx context.Context, scope models.Scope, in LeadInput) (*models.Lead, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	status := in.Status
	if status == "" {
		status = models.LeadNew
	}
	if !status.Valid() {
		return nil, invalid("status", "unknown pipeline stage %q", status)
	}
	reason := strings.TrimSpace(in.LostReason)
	if status == models.LeadLost && reason == "" {
		return nil, ErrLostReasonRequired
	}
	if status != models.LeadLost {
		reason = ""
	}
	l := &models.Lead{
		Title:       title,
		CompanyName: strings.TrimSpace(in.CompanyName),
		ContactName: strings.TrimSpace(in.ContactName),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Source:      strings.TrimSpace(in.Source),
		Value:       in.Value,
		Status:      status,
		LostReason:  reason,
		OwnerID:     in.OwnerID,
	}
	if status.Closed() {
		now := s.now().UTC()
		l.ClosedAt = &now
	}
	err := createRecord(ctx, s.base, scope, models.EntityLead, l, func(tx *gorm.DB) error {
		if err := checkOwner(tx, scope.TenantID, in.OwnerID); err != nil {
			return err
		}
		if err := models.LockTenant(tx, scope.TenantID); err != nil {
			return err
		}
		n, err := models.Count[models.Lead](tx, scope.TenantID, "status = ?", status)
		l.Position = int(n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LeadService) Update(ctx context.Context, scope models.Scope, id uint, in LeadPatch) (*models.Lead, error) {
	p := patch{}
	if err := setRequired(p, "title", in.Title); err != nil {
		return nil, err
	}
	setText(p, "company_name", in.CompanyName)
	setText(p, "contact_name", in.ContactName)
	setText(p, "email", in.Email)
	setText(p, "phone", in.Phone)
	setText(p, "source", in.Source)
	setOpt(p, "value", in.Value)
	setOpt(p, "owner_id", in.OwnerID)

	return updateRecord[models.Lead](ctx, s.base, scope, models.EntityLead, id, p, func(tx *gorm.DB, _ *models.Lead) error {
		return checkOwner(tx, scope.TenantID, in.OwnerID)
	})
}

// Move places a lead at a position in a stage. Dropping a lead where it
// already is changes nothing. Entering the lost stage needs a reason.
func (s *LeadService) Move(ctx context.Context, scope models.Scope, id uint, in MoveInput) (*models.Lead, error) {
	to := in.Status
	if !to.Valid() {
		return nil, invalid("status", "unknown pipeline stage %q", to)
	}
	reason := strings.TrimSpace(in.LostReason)

	var (
		lead    *models.Lead
		from    models.LeadStatus
		changed bool
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := models.LockTenant(tx, scope.TenantID); err != nil {
			return err
		}
		var err error
		lead, err = models.FindOne[models.Lead](tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		from = lead.Status

		others, err := models.Count[models.Lead](tx, scope.TenantID, "status = ? AND id <> ?", to, lead.ID)
		if err != nil {
			return err
		}
		pos := int(others)
		if in.Position != nil && *in.Position < pos {
			pos = max(*in.Position, 0)
		}

		if from == to {
			if pos == lead.Position {
				return nil
			}
			if err := shiftWithinStage(tx, scope.TenantID, lead, pos); err != nil {
				return err
			}
			oldPos := lead.Position
			if err := tx.Model(lead).Updates(map[string]any{"position": pos, "updated_by_id": scope.UserID}).Error; err != nil {
				return err
			}
			changed = true
			return writeAudit(tx, scope, models.EntityLead, lead.ID, models.AuditUpdated,
				map[string]any{"position": map[string]int{"from": oldPos, "to": pos}})
		}

		if to == models.LeadLost && reason == "" {
			return ErrLostReasonRequired
		}

		// Close the gap in the source stage, then open a slot in the target.
		if err := tx.Model(&models.Lead{}).Scopes(models.InTenant(scope.TenantID)).
			Where("status = ? AND position > ?", from, lead.Position).
			Update("position", gorm.Expr("position - 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Lead{}).Scopes(models.InTenant(scope.TenantID)).
			Where("status = ? AND position >= ? AND id <> ?", to, pos, lead.ID).
			Update("position", gorm.Expr("position + 1")).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"status":        to,
			"position":      pos,
			"lost_reason":   "",
			"closed_at":     nil,
			"updated_by_id": scope.UserID,
		}
		changes := map[string]any{"from": from, "to": to}
		if to == models.LeadLost {
			updates["lost_reason"] = reason
			changes["lost_reason"] = reason
		}
		if to.Closed() {
			updates["closed_at"] = s.now().UTC()
		}
		if err := tx.Model(lead).Updates(updates).Error; err != nil {
			return err
		}
		changed = true
		return writeAudit(tx, scope, models.EntityLead, lead.ID, models.AuditStatusChanged, changes)
	})
	if err != nil {
		return nil, normalize(err)
	}
	if !changed {
		return lead, nil
	}

	lead, err = s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	action := models.AuditUpdated
	if from != to {
		action = models.AuditStatusChanged
		monitoring.LeadTransitions.WithLabelValues(string(from), string(to)).Inc()
		log.Ctx(ctx).Info().Uint("lead_id", id).Str("from", string(from)).Str("to", string(to)).Msg("lead moved")
	}
	s.committed(ctx, scope, models.EntityLead, action, lead)
	return lead, nil
}

// shiftWithinStage makes room for lead at pos inside its current stage.
func shiftWithinStage(tx *gorm.DB, tenantID uint, lead *models.Lead, pos int) error {
	q := tx.Model(&models.Lead{}).Scopes(models.InTenant(tenantID)).
		Where("status = ? AND id <> ?", lead.Status, lead.ID)
	if pos > lead.Position {
		return q.Where("position > ? AND position <= ?", lead.Position, pos).
			Update("position", gorm.Expr("position - 1")).Error
	}
	return q.Where("position >= ? AND position < ?", pos, lead.Position).
		Update("position", gorm.Expr("position + 1")).Error
}

// Convert turns a won lead into a client, plus a primary contact when the
// lead names one.
func (s *LeadService) Convert(ctx context.Context, scope models.Scope, id uint) (*Conversion, error) {
	out := &Conversion{}
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		lead, err := models.FindOne[models.Lead](tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if lead.Status != models.LeadWon {
			return invalid("status", "only won leads can be converted")
		}
		if lead.ClientID != nil {
			return conflict("lead was already converted")
		}

		name := lead.CompanyName
		if name == "" {
			name = lead.Title
		}
		client := &models.Client{
			Name:    name,
			Email:   lead.Email,
			Phone:   lead.Phone,
			Status:  models.ClientActive,
			OwnerID: lead.OwnerID,
		}
		if err := insertRecord(tx, scope, models.EntityClient, client); err != nil {
			return err
		}
		out.Client = client

		if lead.ContactName != "" || lead.Email != "" {
			first, last := splitName(lead.ContactName)
			if first == "" {
				first = lead.Email
			}
			contact := &models.Contact{
				ClientID:  client.ID,
				FirstName: first,
				LastName:  last,
				Email:     lead.Email,
				Phone:     lead.Phone,
				IsPrimary: true,
			}
			if err := insertRecord(tx, scope, models.EntityContact, contact); err != nil {
				return err
			}
			out.Contact = contact
		}

		if err := tx.Model(lead).Updates(map[string]any{"client_id": client.ID, "updated_by_id": scope.UserID}).Error; err != nil {
			return err
		}
		lead.ClientID = &client.ID
		out.Lead = lead
		return writeAudit(tx, scope, models.EntityLead, lead.ID, models.AuditConverted,
			map[string]any{"client_id": client.ID})
	})
	if err != nil {
		return nil, normalize(err)
	}
	s.committed(ctx, scope, models.EntityClient, models.AuditCreated, out.Client)
	if out.Contact != nil {
		s.committed(ctx, scope, models.EntityContact, models.AuditCreated, out.Contact)
	}
	s.committed(ctx, scope, models.EntityLead, models.AuditConverted, out.Lead)
	return out, nil
}

// Delete removes the lead and closes the gap it leaves in its stage. Leads
// with live pitches stay.
func (s *LeadService) Delete(ctx context.Context, scope models.Scope, id uint) error {
	return deleteRecord[models.Lead](ctx, s.base, scope, models.EntityLead, id, func(c *cascade, l *models.Lead) error {
		if err := requireNoPitches(c.tx, scope.TenantID, "lead_id", l.ID); err != nil {
			return err
		}
		if err := models.LockTenant(c.tx, scope.TenantID); err != nil {
			return err
		}
		cur, err := models.FindOne[models.Lead](c.tx, scope.TenantID, l.ID)
		if err != nil {
			return err
		}
		return c.tx.Model(&models.Lead{}).Scopes(models.InTenant(scope.TenantID)).
			Where("status = ? AND position > ?", cur.Status, cur.Position).
			Update("position", gorm.Expr("position - 1")).Error
	})
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
