// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled || s == CampaignFailed
}

// Campaign is one running instance of a blueprint against one contact.
// StepsTotal is snapshotted from the blueprint at creation so later blueprint
// edits never change an in-flight campaign. StepsSent always equals the count
// of step executions in state "sent"; it is only ever incremented atomically
// with the corresponding state transition.
type Campaign struct {
	ID          int            `db:"id" json:"id"`
	ContactID   int            `db:"contact_id" json:"contact_id"`
	BlueprintID int            `db:"blueprint_id" json:"blueprint_id"`
	Status      CampaignStatus `db:"status" json:"status"`
	StepsTotal  int            `db:"steps_total" json:"steps_total"`
	StepsSent   int            `db:"steps_sent" json:"steps_sent"`
	StartedAt   *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
