package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
)

// CampaignRepositoryInterface is the single source of truth for campaigns
// and their step executions. All cross-field updates that must be seen
// together (step state + steps_sent, cancellation + skips) are applied in
// one transaction, and every step transition is a conditional update on the
// observed prior state.
type CampaignRepositoryInterface interface {
	// Campaigns
	CreateCampaign(c *model.Campaign, steps []*model.StepExecution) error
	GetCampaign(id int) (*model.Campaign, error)
	HasActiveCampaign(contactID, blueprintID int) (bool, error)
	ListActiveCampaignIDs(contactID int) ([]int, error)
	CancelCampaign(id int) error
	TryCompleteCampaign(id int, now time.Time) (bool, error)

	// Step executions
	ListStepExecutions(campaignID int) ([]*model.StepExecution, error)
	FindDueSteps(now time.Time, limit int) ([]*model.StepExecution, error)
	ClaimStep(stepID int, owner string, now time.Time) error
	MarkStepSent(stepID, campaignID, attempt int, now time.Time) error
	MarkStepSkipped(stepID int, reason string) error
	MarkStepFailed(stepID, attempt int, lastError string) error
	RescheduleStep(stepID, attempt int, nextAt time.Time, lastError string) error
	RequeueStaleClaims(before time.Time) (int, error)

	// Reporting
	CountCampaignsByStatus() (map[string]int, error)
	ListCampaignReport(status string, limit, offset int) ([]*model.CampaignReportRow, int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaigns ======================

// CreateCampaign inserts the campaign and all of its step executions in one
// transaction, so a campaign is never visible without its full step set.
func (r *CampaignRepository) CreateCampaign(c *model.Campaign, steps []*model.StepExecution) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO campaigns (contact_id, blueprint_id, status, steps_total, steps_sent, started_at, created_at)
        VALUES ($1, $2, $3, $4, 0, $5, $6)
        RETURNING id
    `
	if err := tx.QueryRow(query, c.ContactID, c.BlueprintID, c.Status, c.StepsTotal, c.StartedAt, c.CreatedAt).Scan(&c.ID); err != nil {
		return err
	}

	stepQuery := `
        INSERT INTO step_executions (campaign_id, step_order, state, scheduled_at, attempt, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, '', $5, $5)
        RETURNING id
    `
	for _, s := range steps {
		s.CampaignID = c.ID
		if err := tx.QueryRow(stepQuery, c.ID, s.Order, s.State, s.ScheduledAt, c.CreatedAt).Scan(&s.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetCampaign(id int) (*model.Campaign, error) {
	query := `
        SELECT id, contact_id, blueprint_id, status, steps_total, steps_sent, started_at, completed_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.ContactID, &c.BlueprintID, &c.Status, &c.StepsTotal, &c.StepsSent,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) HasActiveCampaign(contactID, blueprintID int) (bool, error) {
	var count int
	err := r.DB.QueryRow(`
        SELECT COUNT(*)
        FROM campaigns
        WHERE contact_id=$1 AND blueprint_id=$2 AND status=$3`,
		contactID, blueprintID, model.CampaignActive).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CampaignRepository) ListActiveCampaignIDs(contactID int) ([]int, error) {
	rows, err := r.DB.Query(
		`SELECT id FROM campaigns WHERE contact_id=$1 AND status=$2 ORDER BY id`,
		contactID, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CancelCampaign moves a non-terminal campaign to cancelled and skips every
// still-scheduled step. Claimed steps are left to finish their in-flight
// delivery; the advancement path checks campaign status so a cancelled
// campaign never completes. No-op on already-terminal campaigns.
func (r *CampaignRepository) CancelCampaign(id int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        UPDATE campaigns SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status IN ($3, $4)`,
		model.CampaignCancelled, id, model.CampaignPending, model.CampaignActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// already terminal, nothing to do
		return nil
	}

	_, err = tx.Exec(`
        UPDATE step_executions SET state=$1, last_error='', updated_at=NOW()
        WHERE campaign_id=$2 AND state=$3`,
		model.StepSkipped, id, model.StepScheduled)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// TryCompleteCampaign conditionally transitions an active campaign to
// completed when every step execution is terminal-successful (sent or
// skipped). A campaign holding a failed step never matches and stays active
// for operator attention. Returns whether the transition fired.
func (r *CampaignRepository) TryCompleteCampaign(id int, now time.Time) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE campaigns SET status=$1, completed_at=$2, updated_at=$2
        WHERE id=$3 AND status=$4
          AND NOT EXISTS (
              SELECT 1 FROM step_executions
              WHERE campaign_id=$3 AND state NOT IN ($5, $6)
          )`,
		model.CampaignCompleted, now, id, model.CampaignActive, model.StepSent, model.StepSkipped)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ====================== Step executions ======================

func (r *CampaignRepository) ListStepExecutions(campaignID int) ([]*model.StepExecution, error) {
	query := `
        SELECT id, campaign_id, step_order, state, scheduled_at, claimed_at, COALESCE(claim_owner, ''),
               sent_at, attempt, COALESCE(last_error, ''), created_at, updated_at
        FROM step_executions
        WHERE campaign_id=$1
        ORDER BY step_order
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*model.StepExecution{}
	for rows.Next() {
		s := &model.StepExecution{}
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Order, &s.State, &s.ScheduledAt, &s.ClaimedAt,
			&s.ClaimOwner, &s.SentAt, &s.Attempt, &s.LastError, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// FindDueSteps selects scheduled steps whose due time has passed and whose
// campaign is active. A step is only due once every lower-order sibling is
// terminal, so step i+1 never runs before step i resolves. Ties are broken
// by scheduled_at then campaign_id for deterministic processing.
func (r *CampaignRepository) FindDueSteps(now time.Time, limit int) ([]*model.StepExecution, error) {
	query := `
        SELECT s.id, s.campaign_id, s.step_order, s.state, s.scheduled_at, s.attempt
        FROM step_executions s
        JOIN campaigns c ON c.id = s.campaign_id
        WHERE s.state=$1 AND s.scheduled_at <= $2 AND c.status=$3
          AND NOT EXISTS (
              SELECT 1 FROM step_executions p
              WHERE p.campaign_id = s.campaign_id
                AND p.step_order < s.step_order
                AND p.state NOT IN ($4, $5, $6)
          )
        ORDER BY s.scheduled_at ASC, s.campaign_id ASC
        LIMIT $7
    `
	rows, err := r.DB.Query(query, model.StepScheduled, now, model.CampaignActive,
		model.StepSent, model.StepSkipped, model.StepFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*model.StepExecution{}
	for rows.Next() {
		s := &model.StepExecution{}
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Order, &s.State, &s.ScheduledAt, &s.Attempt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ClaimStep atomically transitions scheduled -> claimed, conditioned on the
// current state still being scheduled. This compare-and-swap is the sole
// concurrency-safety mechanism; losing the race returns a StaleClaimError.
func (r *CampaignRepository) ClaimStep(stepID int, owner string, now time.Time) error {
	res, err := r.DB.Exec(`
        UPDATE step_executions
        SET state=$1, claim_owner=$2, claimed_at=$3, updated_at=$3
        WHERE id=$4 AND state=$5`,
		model.StepClaimed, owner, now, stepID, model.StepScheduled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStaleClaim(stepID)
	}
	return nil
}

// MarkStepSent records a successful delivery and increments steps_sent in
// the same transaction, keeping the counter equal to the count of sent
// executions at every instant.
func (r *CampaignRepository) MarkStepSent(stepID, campaignID, attempt int, now time.Time) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        UPDATE step_executions
        SET state=$1, sent_at=$2, attempt=$3, last_error='', claim_owner=NULL, claimed_at=NULL, updated_at=$2
        WHERE id=$4 AND state=$5`,
		model.StepSent, now, attempt, stepID, model.StepClaimed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStaleClaim(stepID)
	}

	if _, err := tx.Exec(
		`UPDATE campaigns SET steps_sent = steps_sent + 1, updated_at=$1 WHERE id=$2`,
		now, campaignID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *CampaignRepository) MarkStepSkipped(stepID int, reason string) error {
	res, err := r.DB.Exec(`
        UPDATE step_executions
        SET state=$1, last_error=$2, claim_owner=NULL, claimed_at=NULL, updated_at=NOW()
        WHERE id=$3 AND state=$4`,
		model.StepSkipped, reason, stepID, model.StepClaimed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStaleClaim(stepID)
	}
	return nil
}

func (r *CampaignRepository) MarkStepFailed(stepID, attempt int, lastError string) error {
	res, err := r.DB.Exec(`
        UPDATE step_executions
        SET state=$1, attempt=$2, last_error=$3, claim_owner=NULL, claimed_at=NULL, updated_at=NOW()
        WHERE id=$4 AND state=$5`,
		model.StepFailed, attempt, lastError, stepID, model.StepClaimed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStaleClaim(stepID)
	}
	return nil
}

// RescheduleStep returns a claimed step to scheduled after a transient
// delivery failure, carrying the incremented attempt counter and the next
// due time computed by the coordinator's backoff policy.
func (r *CampaignRepository) RescheduleStep(stepID, attempt int, nextAt time.Time, lastError string) error {
	res, err := r.DB.Exec(`
        UPDATE step_executions
        SET state=$1, scheduled_at=$2, attempt=$3, last_error=$4, claim_owner=NULL, claimed_at=NULL, updated_at=NOW()
        WHERE id=$5 AND state=$6`,
		model.StepScheduled, nextAt, attempt, lastError, stepID, model.StepClaimed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStaleClaim(stepID)
	}
	return nil
}

// RequeueStaleClaims returns claims abandoned by a crashed coordinator back
// to scheduled. Uses the same conditional-update shape as every other
// transition, so it is safe to run from any instance at any time.
func (r *CampaignRepository) RequeueStaleClaims(before time.Time) (int, error) {
	res, err := r.DB.Exec(`
        UPDATE step_executions
        SET state=$1, attempt=attempt+1, claim_owner=NULL, claimed_at=NULL, updated_at=NOW()
        WHERE state=$2 AND claimed_at < $3`,
		model.StepScheduled, model.StepClaimed, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ====================== Reporting ======================

func (r *CampaignRepository) CountCampaignsByStatus() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT status, COUNT(*) FROM campaigns GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		string(model.CampaignActive):    0,
		string(model.CampaignCompleted): 0,
		string(model.CampaignCancelled): 0,
		string(model.CampaignFailed):    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *CampaignRepository) ListCampaignReport(status string, limit, offset int) ([]*model.CampaignReportRow, int, error) {
	reportRows := []*model.CampaignReportRow{}
	query := `
        SELECT c.id, c.contact_id, COALESCE(ct.email, ''), c.status, c.steps_total, c.steps_sent,
               c.started_at, c.completed_at,
               (SELECT MAX(se.sent_at) FROM step_executions se WHERE se.campaign_id = c.id),
               c.created_at, c.updated_at
        FROM campaigns c
        LEFT JOIN contacts ct ON ct.id = c.contact_id
        WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND c.status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY c.id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		row := &model.CampaignReportRow{}
		if err := rows.Scan(&row.CampaignID, &row.ContactID, &row.ContactEmail, &row.Status,
			&row.StepsTotal, &row.StepsSent, &row.StartedAt, &row.CompletedAt,
			&row.LastStepSentAt, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, 0, err
		}
		reportRows = append(reportRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return reportRows, total, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
