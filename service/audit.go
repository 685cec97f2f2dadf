package service

import (
	"context"

	"tenantcrm/models"
)

const maxAuditEntries = 200

// AuditTrail returns the history of a record, newest first. History stays
// readable after the record is deleted.
func (n *Navigator) AuditTrail(ctx context.Context, scope models.Scope, entity models.EntityType, id uint) ([]models.AuditEntry, error) {
	if !entity.Valid() {
		return nil, invalid("type", "unknown entity type %q", entity)
	}
	var out []models.AuditEntry
	err := n.repo.DB(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", scope.TenantID, entity, id).
		Order("created_at DESC, id DESC").
		Limit(maxAuditEntries).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
