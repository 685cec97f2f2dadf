package models

import "time"

type PitchStatus string

const (
	PitchDraft    PitchStatus = "draft"
	PitchSent     PitchStatus = "sent"
	PitchAccepted PitchStatus = "accepted"
	PitchRejected PitchStatus = "rejected"
)

type Pitch struct {
	TenantModel
	ClientID  *uint       `gorm:"index" json:"client_id"`
	LeadID    *uint       `gorm:"index" json:"lead_id"`
	Title     string      `gorm:"not null" json:"title"`
	Summary   string      `json:"summary"`
	Amount    float64     `json:"amount"`
	Status    PitchStatus `gorm:"not null;size:16;index" json:"status"`
	SentAt    *time.Time  `json:"sent_at"`
	DecidedAt *time.Time  `json:"decided_at"`
}
