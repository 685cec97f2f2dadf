package models

import (
	"time"

	"gorm.io/gorm"
)

// TenantModel is embedded by every tenant owned record.
type TenantModel struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	TenantID    uint           `gorm:"not null;index" json:"tenant_id"`
	DisplayID   string         `gorm:"size:32;index" json:"display_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	CreatedByID uint           `json:"created_by_id,omitempty"`
	UpdatedByID uint           `json:"updated_by_id,omitempty"`
}

// Role is a user's permission level inside a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants at least the permissions of other.
func (r Role) AtLeast(other Role) bool { return r.rank() >= other.rank() }

// Scope identifies the caller of a tenant scoped operation.
type Scope struct {
	TenantID   uint
	UserID     uint
	Role       Role
	SuperAdmin bool
}

func (s Scope) IsAdmin() bool { return s.SuperAdmin || s.Role.AtLeast(RoleAdmin) }

// EntityType names a record kind that notes, documents, discussions and
// audit entries can be attached to.
type EntityType string

const (
	EntityClient      EntityType = "client"
	EntityContact     EntityType = "contact"
	EntityProject     EntityType = "project"
	EntityPhase       EntityType = "phase"
	EntitySet         EntityType = "set"
	EntityRequirement EntityType = "requirement"
	EntityPitch       EntityType = "pitch"
	EntityLead        EntityType = "lead"
)

var displayPrefixes = map[EntityType]string{
	EntityClient:      "CL",
	EntityContact:     "CT",
	EntityProject:     "PR",
	EntityPhase:       "PH",
	EntitySet:         "ST",
	EntityRequirement: "RQ",
	EntityPitch:       "PT",
	EntityLead:        "LD",
}

func (e EntityType) Valid() bool {
	_, ok := displayPrefixes[e]
	return ok
}

// DisplayPrefix returns the short code used in human readable ids.
func (e EntityType) DisplayPrefix() string { return displayPrefixes[e] }

// Owned is implemented by pointers to records embedding TenantModel.
type Owned interface {
	Base() *TenantModel
}

func (m *TenantModel) Base() *TenantModel { return m }
