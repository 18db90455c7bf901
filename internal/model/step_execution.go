// internal/model/step_execution.go
package model

import "time"

type StepState string

const (
	StepScheduled StepState = "scheduled"
	StepClaimed   StepState = "claimed"
	StepSent      StepState = "sent"
	StepSkipped   StepState = "skipped"
	StepFailed    StepState = "failed"
)

// Terminal reports whether the step can no longer transition.
func (s StepState) Terminal() bool {
	return s == StepSent || s == StepSkipped || s == StepFailed
}

// StepExecution is the durable record of one step's scheduling and delivery
// outcome. (campaign_id, step_order) is unique; orders run 0..steps_total-1
// with no gaps. ClaimOwner/ClaimedAt are set only while a coordinator
// instance is executing the step.
type StepExecution struct {
	ID          int        `db:"id" json:"id"`
	CampaignID  int        `db:"campaign_id" json:"campaign_id"`
	Order       int        `db:"step_order" json:"order"`
	State       StepState  `db:"state" json:"state"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	ClaimedAt   *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	ClaimOwner  string     `db:"claim_owner" json:"claim_owner,omitempty"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Attempt     int        `db:"attempt" json:"attempt"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
