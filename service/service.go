// Package service holds the tenant scoped business rules of the CRM. Every
// exported operation takes the caller's models.Scope and never touches rows
// of another tenant.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tenantcrm/events"
	"tenantcrm/models"
	"tenantcrm/utils"
)

// Deps are the collaborators shared by all services. Publisher and Cache may
// be nil.
type Deps struct {
	Repo      *models.Repository
	Publisher events.Publisher
	Cache     utils.RedisClient
	CacheTTL  time.Duration
}

type base struct {
	repo   *models.Repository
	events events.Publisher
	cache  *jsonCache
}

func newBase(d Deps) base {
	return base{repo: d.Repo, events: d.Publisher, cache: newJSONCache(d.Cache, d.CacheTTL)}
}

// committed runs the side effects of a successful write.
func (b base) committed(ctx context.Context, scope models.Scope, entity models.EntityType, action models.AuditAction, rec models.Owned) {
	m := rec.Base()
	keys := []string{EntityCacheKey(m.TenantID, entity, m.ID)}
	if entity == models.EntityLead {
		keys = append(keys, BoardCacheKey(m.TenantID))
	}
	b.cache.invalidate(ctx, keys...)

	if b.events == nil {
		return
	}
	title, text := describe(rec)
	err := b.events.Publish(ctx, events.Event{
		Type:       events.Name(entity, action),
		TenantID:   m.TenantID,
		EntityType: entity,
		EntityID:   m.ID,
		DisplayID:  m.DisplayID,
		Title:      title,
		Text:       text,
		ActorID:    scope.UserID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("entity", string(entity)).Uint("id", m.ID).Msg("failed to queue event")
	}
}

func writeAudit(tx *gorm.DB, scope models.Scope, entity models.EntityType, id uint, action models.AuditAction, changes any) error {
	entry := models.AuditEntry{
		TenantID:   scope.TenantID,
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		ActorID:    scope.UserID,
	}
	if changes != nil {
		data, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		entry.Changes = string(data)
	}
	return tx.Create(&entry).Error
}

type ownedPtr[T any] interface {
	*T
	models.Owned
}

// createRecord assigns ownership and a display id, inserts rec and audits it.
// setup runs first inside the same transaction.
func createRecord(ctx context.Context, b base, scope models.Scope, entity models.EntityType, rec models.Owned, setup func(tx *gorm.DB) error) error {
	err := b.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if setup != nil {
			if err := setup(tx); err != nil {
				return err
			}
		}
		return insertRecord(tx, scope, entity, rec)
	})
	if err != nil {
		return normalize(err)
	}
	b.committed(ctx, scope, entity, models.AuditCreated, rec)
	m := rec.Base()
	log.Ctx(ctx).Info().Str("entity", string(entity)).Uint("id", m.ID).Str("display_id", m.DisplayID).Msg("created")
	return nil
}

// insertRecord is the transactional part of createRecord.
func insertRecord(tx *gorm.DB, scope models.Scope, entity models.EntityType, rec models.Owned) error {
	m := rec.Base()
	m.TenantID = scope.TenantID
	m.CreatedByID = scope.UserID
	m.UpdatedByID = scope.UserID

	displayID, err := models.NextDisplayID(tx, scope.TenantID, entity)
	if err != nil {
		return err
	}
	m.DisplayID = displayID
	if err := tx.Create(rec).Error; err != nil {
		return err
	}
	return writeAudit(tx, scope, entity, m.ID, models.AuditCreated, nil)
}

// updateRecord applies p to the record and audits the changed columns. check
// runs against the current row before the update.
func updateRecord[T any, P ownedPtr[T]](ctx context.Context, b base, scope models.Scope, entity models.EntityType, id uint, p patch, check func(tx *gorm.DB, rec P) error) (*T, error) {
	var out *T
	err := b.repo.Transaction(ctx, func(tx *gorm.DB) error {
		rec, err := models.FindOne[T](tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(tx, P(rec)); err != nil {
				return err
			}
		}
		if len(p) == 0 {
			out = rec
			return nil
		}
		p["updated_by_id"] = scope.UserID
		if err := tx.Model(P(rec)).Updates(map[string]any(p)).Error; err != nil {
			return err
		}
		delete(p, "updated_by_id")
		if err := writeAudit(tx, scope, entity, id, models.AuditUpdated, p); err != nil {
			return err
		}
		out, err = models.FindOne[T](tx, scope.TenantID, id)
		return err
	})
	if err != nil {
		return nil, normalize(err)
	}
	if len(p) > 0 {
		b.committed(ctx, scope, entity, models.AuditUpdated, P(out))
	}
	return out, nil
}

// deleteRecord soft deletes the record. children runs first in the same
// transaction and every row it removes is audited and announced like the
// record itself.
func deleteRecord[T any, P ownedPtr[T]](ctx context.Context, b base, scope models.Scope, entity models.EntityType, id uint, children func(c *cascade, rec P) error) error {
	var (
		deleted P
		removed []removal
	)
	err := b.repo.Transaction(ctx, func(tx *gorm.DB) error {
		rec, err := models.FindOne[T](tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		deleted = P(rec)
		if children != nil {
			c := &cascade{tx: tx, scope: scope}
			if err := children(c, deleted); err != nil {
				return err
			}
			removed = c.removed
		}
		if err := tx.Delete(deleted).Error; err != nil {
			return err
		}
		return writeAudit(tx, scope, entity, id, models.AuditDeleted, nil)
	})
	if err != nil {
		return normalize(err)
	}
	for _, r := range removed {
		b.committed(ctx, scope, r.entity, models.AuditDeleted, r.rec)
	}
	b.committed(ctx, scope, entity, models.AuditDeleted, deleted)
	return nil
}

// cascade is the transaction of a delete plus the dependent rows it took
// down.
type cascade struct {
	tx      *gorm.DB
	scope   models.Scope
	removed []removal
}

type removal struct {
	entity models.EntityType
	rec    models.Owned
}

// removeWhere soft deletes the live T rows matching the condition, audits each
// one and returns their ids.
func removeWhere[T any, P ownedPtr[T]](c *cascade, entity models.EntityType, query string, args ...any) ([]uint, error) {
	var rows []T
	err := c.tx.Scopes(models.InTenant(c.scope.TenantID)).
		Where(query, args...).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for i := range rows {
		rec := P(&rows[i])
		id := rec.Base().ID
		if err := c.tx.Delete(rec).Error; err != nil {
			return nil, err
		}
		if err := writeAudit(c.tx, c.scope, entity, id, models.AuditDeleted, nil); err != nil {
			return nil, err
		}
		c.removed = append(c.removed, removal{entity: entity, rec: rec})
		ids = append(ids, id)
	}
	return ids, nil
}

func getRecord[T any](ctx context.Context, b base, scope models.Scope, id uint) (*T, error) {
	rec, err := models.FindOne[T](b.repo.DB(ctx), scope.TenantID, id)
	return rec, normalize(err)
}

// requireParent fails with a validation error when the parent row is missing.
func requireParent[T any](tx *gorm.DB, tenantID, id uint, field string) error {
	ok, err := models.Exists[T](tx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return invalid(field, "does not exist")
	}
	return nil
}

// patch collects column updates from optional request fields.
type patch map[string]any

func (p patch) set(column string, v any) { p[column] = v }

func setOpt[T any](p patch, column string, v *T) {
	if v != nil {
		p[column] = *v
	}
}

func setText(p patch, column string, v *string) {
	if v != nil {
		p[column] = strings.TrimSpace(*v)
	}
}

// setRequired trims v and rejects an empty value.
func setRequired(p patch, column string, v *string) error {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return invalid(column, "must not be empty")
	}
	p[column] = s
	return nil
}

func describe(rec models.Owned) (title, text string) {
	join := func(parts ...string) string {
		out := parts[:0]
		for _, s := range parts {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return strings.Join(out, " ")
	}
	switch r := rec.(type) {
	case *models.Client:
		return r.Name, join(r.Industry, r.Email, r.Phone, r.Website, r.Address)
	case *models.Contact:
		return r.FullName(), join(r.Title, r.Email, r.Phone)
	case *models.Project:
		return r.Name, r.Description
	case *models.Phase:
		return r.Name, r.Description
	case *models.Set:
		return r.Name, r.Description
	case *models.Requirement:
		return r.Title, r.Description
	case *models.Pitch:
		return r.Title, r.Summary
	case *models.Lead:
		return r.Title, join(r.CompanyName, r.ContactName, r.Email, r.Phone, r.Source)
	}
	return "", ""
}
