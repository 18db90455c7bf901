// internal/model/report.go
package model

import "time"

// CampaignReportRow is one row of the report projection, with the contact
// email joined in and last_step_sent_at derived from the step executions.
type CampaignReportRow struct {
	CampaignID     int            `json:"campaign_id"`
	ContactID      int            `json:"contact_id"`
	ContactEmail   string         `json:"contact_email"`
	Status         CampaignStatus `json:"status"`
	StepsTotal     int            `json:"steps_total"`
	StepsSent      int            `json:"steps_sent"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	LastStepSentAt *time.Time     `json:"last_step_sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}
