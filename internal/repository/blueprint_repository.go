package repository

import (
	"database/sql"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
)

// BlueprintRepositoryInterface stores finished, validated step templates.
// Blueprints are immutable once created; campaigns reference them by ID and
// snapshot steps_total, so edits never reach in-flight campaigns.
type BlueprintRepositoryInterface interface {
	Create(b *model.Blueprint) error
	GetByID(id int) (*model.Blueprint, error)
	GetStep(blueprintID, order int) (*model.StepDefinition, error)
	List(offset, limit int) ([]*model.Blueprint, int, error)
}

type BlueprintRepository struct {
	DB *sql.DB
}

// Create inserts the blueprint and its ordered steps in one transaction.
func (r *BlueprintRepository) Create(b *model.Blueprint) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO blueprints (name, delay_policy, created_at)
        VALUES ($1, $2, NOW())
        RETURNING id, created_at
    `
	if err := tx.QueryRow(query, b.Name, b.DelayPolicy).Scan(&b.ID, &b.CreatedAt); err != nil {
		return err
	}

	stepQuery := `
        INSERT INTO blueprint_steps (blueprint_id, step_order, delay_seconds, subject_template, body_template, skip_condition)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	for i := range b.Steps {
		s := &b.Steps[i]
		s.BlueprintID = b.ID
		if _, err := tx.Exec(stepQuery, b.ID, s.Order, s.DelaySeconds, s.SubjectTemplate, s.BodyTemplate, s.SkipCondition); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *BlueprintRepository) GetByID(id int) (*model.Blueprint, error) {
	var b model.Blueprint
	err := r.DB.QueryRow(
		`SELECT id, name, delay_policy, created_at FROM blueprints WHERE id=$1`, id,
	).Scan(&b.ID, &b.Name, &b.DelayPolicy, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewBlueprintNotFound(id)
		}
		return nil, err
	}

	rows, err := r.DB.Query(`
        SELECT blueprint_id, step_order, delay_seconds, subject_template, body_template, COALESCE(skip_condition, '')
        FROM blueprint_steps
        WHERE blueprint_id=$1
        ORDER BY step_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.StepDefinition
		if err := rows.Scan(&s.BlueprintID, &s.Order, &s.DelaySeconds, &s.SubjectTemplate, &s.BodyTemplate, &s.SkipCondition); err != nil {
			return nil, err
		}
		b.Steps = append(b.Steps, s)
	}
	return &b, rows.Err()
}

func (r *BlueprintRepository) GetStep(blueprintID, order int) (*model.StepDefinition, error) {
	var s model.StepDefinition
	err := r.DB.QueryRow(`
        SELECT blueprint_id, step_order, delay_seconds, subject_template, body_template, COALESCE(skip_condition, '')
        FROM blueprint_steps
        WHERE blueprint_id=$1 AND step_order=$2`,
		blueprintID, order,
	).Scan(&s.BlueprintID, &s.Order, &s.DelaySeconds, &s.SubjectTemplate, &s.BodyTemplate, &s.SkipCondition)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewBlueprintNotFound(blueprintID)
		}
		return nil, err
	}
	return &s, nil
}

func (r *BlueprintRepository) List(offset, limit int) ([]*model.Blueprint, int, error) {
	rows, err := r.DB.Query(`
        SELECT id, name, delay_policy, created_at
        FROM blueprints
        ORDER BY id DESC
        LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	blueprints := []*model.Blueprint{}
	for rows.Next() {
		b := &model.Blueprint{}
		if err := rows.Scan(&b.ID, &b.Name, &b.DelayPolicy, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		blueprints = append(blueprints, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM blueprints`).Scan(&total); err != nil {
		return nil, 0, err
	}

	return blueprints, total, nil
}

var _ BlueprintRepositoryInterface = (*BlueprintRepository)(nil)
