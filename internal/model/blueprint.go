// internal/model/blueprint.go
package model

import "time"

type DelayPolicy string

const (
	// DelayRelativeToPrevious schedules step i at step i-1's scheduled time
	// plus step i's delay.
	DelayRelativeToPrevious DelayPolicy = "relative_to_previous"
	// DelayRelativeToStart schedules every step at campaign start plus its
	// own delay.
	DelayRelativeToStart DelayPolicy = "relative_to_start"
)

// Skip conditions recognized by the coordinator. Unknown names are rejected
// at blueprint creation.
const (
	SkipConditionContactReplied = "contact-replied"
)

// Blueprint is a named, ordered template of steps from which campaigns are
// instantiated. Immutable after creation; campaigns reference it by ID.
type Blueprint struct {
	ID          int              `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	DelayPolicy DelayPolicy      `db:"delay_policy" json:"delay_policy"`
	Steps       []StepDefinition `json:"steps"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// StepDefinition is one immutable timed step of a blueprint.
type StepDefinition struct {
	BlueprintID     int    `db:"blueprint_id" json:"blueprint_id"`
	Order           int    `db:"step_order" json:"order"`
	DelaySeconds    int    `db:"delay_seconds" json:"delay_seconds"`
	SubjectTemplate string `db:"subject_template" json:"subject_template"`
	BodyTemplate    string `db:"body_template" json:"body_template"`
	SkipCondition   string `db:"skip_condition" json:"skip_condition,omitempty"`
}

func (d StepDefinition) Delay() time.Duration {
	return time.Duration(d.DelaySeconds) * time.Second
}
