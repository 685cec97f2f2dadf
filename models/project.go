package models

import "time"

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

type Project struct {
	TenantModel
	ClientID    uint          `gorm:"not null;index" json:"client_id"`
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `gorm:"not null;size:16;index" json:"status"`
	StartDate   *time.Time    `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
	Budget      float64       `json:"budget"`
}

// WorkStatus is shared by phases and sets.
type WorkStatus string

const (
	WorkNotStarted WorkStatus = "not_started"
	WorkInProgress WorkStatus = "in_progress"
	WorkCompleted  WorkStatus = "completed"
)

type Phase struct {
	TenantModel
	ProjectID   uint       `gorm:"not null;index" json:"project_id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	Status      WorkStatus `gorm:"not null;size:16" json:"status"`
	Position    int        `gorm:"not null;default:0" json:"position"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// Set groups requirements inside a phase.
type Set struct {
	TenantModel
	PhaseID     uint       `gorm:"not null;index" json:"phase_id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	Status      WorkStatus `gorm:"not null;size:16" json:"status"`
	Position    int        `gorm:"not null;default:0" json:"position"`
}

func (Set) TableName() string { return "requirement_sets" }

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type RequirementStatus string

const (
	RequirementDraft      RequirementStatus = "draft"
	RequirementApproved   RequirementStatus = "approved"
	RequirementInProgress RequirementStatus = "in_progress"
	RequirementDone       RequirementStatus = "done"
	RequirementRejected   RequirementStatus = "rejected"
)

type Requirement struct {
	TenantModel
	SetID         uint              `gorm:"not null;index" json:"set_id"`
	Title         string            `gorm:"not null" json:"title"`
	Description   string            `json:"description"`
	Priority      Priority          `gorm:"not null;size:16" json:"priority"`
	Status        RequirementStatus `gorm:"not null;size:16" json:"status"`
	EstimateHours float64           `json:"estimate_hours"`
}
