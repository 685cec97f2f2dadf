package models

import "time"

// LeadStatus is a pipeline stage.
type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadQualified   LeadStatus = "qualified"
	LeadProposal    LeadStatus = "proposal"
	LeadNegotiation LeadStatus = "negotiation"
	LeadWon         LeadStatus = "won"
	LeadLost        LeadStatus = "lost"
)

// PipelineStages lists the stages in board order.
var PipelineStages = []LeadStatus{
	LeadNew, LeadContacted, LeadQualified, LeadProposal, LeadNegotiation, LeadWon, LeadLost,
}

func (s LeadStatus) Valid() bool {
	for _, st := range PipelineStages {
		if st == s {
			return true
		}
	}
	return false
}

// Closed reports whether the stage ends the pipeline.
func (s LeadStatus) Closed() bool { return s == LeadWon || s == LeadLost }

type Lead struct {
	TenantModel
	Title       string     `gorm:"not null" json:"title"`
	CompanyName string     `json:"company_name"`
	ContactName string     `json:"contact_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Source      string     `json:"source"`
	Value       float64    `json:"value"`
	Status      LeadStatus `gorm:"not null;size:16;index:idx_lead_stage" json:"status"`
	Position    int        `gorm:"not null;default:0" json:"position"`
	LostReason  string     `json:"lost_reason,omitempty"`
	ClosedAt    *time.Time `json:"closed_at"`
	ClientID    *uint      `json:"client_id"`
	OwnerID     *uint      `json:"owner_id"`
}
