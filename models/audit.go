package models

import "time"

type AuditAction string

const (
	AuditCreated       AuditAction = "created"
	AuditUpdated       AuditAction = "updated"
	AuditDeleted       AuditAction = "deleted"
	AuditStatusChanged AuditAction = "status_changed"
	AuditPrimarySet    AuditAction = "primary_set"
	AuditConverted     AuditAction = "converted"
)

// AuditEntry is append only.
type AuditEntry struct {
	ID         uint        `gorm:"primarykey" json:"id"`
	TenantID   uint        `gorm:"not null;index:idx_audit_target,priority:1" json:"tenant_id"`
	EntityType EntityType  `gorm:"not null;size:16;index:idx_audit_target,priority:2" json:"entity_type"`
	EntityID   uint        `gorm:"not null;index:idx_audit_target,priority:3" json:"entity_id"`
	Action     AuditAction `gorm:"not null;size:32" json:"action"`
	ActorID    uint        `json:"actor_id"`
	Changes    string      `gorm:"type:text" json:"changes,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
