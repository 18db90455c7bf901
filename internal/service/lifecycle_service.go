// internal/service/lifecycle_service.go
package service

import (
	"log"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// LifecycleService owns the public entry points of the engine: starting a
// campaign from a blueprint, cancelling it, and reacting to contact-level
// events by halting campaigns. Campaign start is atomic with creation; there
// is no durable pending window.
type LifecycleService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	BlueprintRepo repository.BlueprintRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
}

// StartCampaign instantiates a blueprint against a contact. It fails with a
// ValidationError on an empty blueprint or when the contact already has an
// active campaign from the same blueprint, and with a NotFoundError on
// unknown references. The campaign and all of its scheduled step executions
// are created together.
func (s *LifecycleService) StartCampaign(contactID, blueprintID int, now time.Time) (*model.Campaign, error) {
	blueprint, err := s.BlueprintRepo.GetByID(blueprintID)
	if err != nil {
		return nil, err
	}
	if len(blueprint.Steps) == 0 {
		return nil, appErrors.NewValidation("blueprint %d has no steps", blueprintID)
	}

	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, appErrors.NewContactNotFound(contactID)
	}
	if contact.Unsubscribed {
		return nil, appErrors.NewValidation("contact %d is unsubscribed", contactID)
	}

	active, err := s.CampaignRepo.HasActiveCampaign(contactID, blueprintID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, appErrors.NewValidation("contact %d already has an active campaign from blueprint %d", contactID, blueprintID)
	}

	startedAt := now
	campaign := &model.Campaign{
		ContactID:   contactID,
		BlueprintID: blueprintID,
		Status:      model.CampaignActive,
		StepsTotal:  len(blueprint.Steps),
		StartedAt:   &startedAt,
		CreatedAt:   now,
	}

	steps := ScheduleSteps(blueprint, now)
	if err := s.CampaignRepo.CreateCampaign(campaign, steps); err != nil {
		return nil, err
	}

	log.Printf("🚀 started campaign %d (blueprint %d) for contact %d, %d steps\n",
		campaign.ID, blueprintID, contactID, campaign.StepsTotal)
	return campaign, nil
}

// ScheduleSteps computes the due time of every step execution from the
// blueprint's delay policy. Relative-to-previous accumulates delays off the
// prior step's scheduled time; relative-to-start offsets each step from the
// campaign start.
func ScheduleSteps(blueprint *model.Blueprint, startedAt time.Time) []*model.StepExecution {
	steps := make([]*model.StepExecution, 0, len(blueprint.Steps))
	prev := startedAt
	for _, def := range blueprint.Steps {
		var due time.Time
		switch blueprint.DelayPolicy {
		case model.DelayRelativeToStart:
			due = startedAt.Add(def.Delay())
		default: // relative_to_previous
			due = prev.Add(def.Delay())
			prev = due
		}
		steps = append(steps, &model.StepExecution{
			Order:       def.Order,
			State:       model.StepScheduled,
			ScheduledAt: due,
		})
	}
	return steps
}

// CancelCampaign is idempotent from the caller's perspective: cancelling an
// already-terminal campaign is a no-op, not an error. Unknown campaigns
// surface a NotFoundError.
func (s *LifecycleService) CancelCampaign(campaignID int) error {
	if _, err := s.CampaignRepo.GetCampaign(campaignID); err != nil {
		return err
	}
	return s.CampaignRepo.CancelCampaign(campaignID)
}

// OnContactUnsubscribed halts every active campaign for the contact. The
// effect is visible to the report projection immediately.
func (s *LifecycleService) OnContactUnsubscribed(contactID int) (int, error) {
	return s.cancelAllForContact(contactID, "unsubscribed")
}

// OnContactDeleted halts every active campaign for the contact.
func (s *LifecycleService) OnContactDeleted(contactID int) (int, error) {
	return s.cancelAllForContact(contactID, "deleted")
}

func (s *LifecycleService) cancelAllForContact(contactID int, reason string) (int, error) {
	ids, err := s.CampaignRepo.ListActiveCampaignIDs(contactID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		if err := s.CampaignRepo.CancelCampaign(id); err != nil {
			log.Printf("⚠️ failed to cancel campaign %d for %s contact %d: %v\n", id, reason, contactID, err)
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		log.Printf("cancelled %d campaign(s) for %s contact %d\n", cancelled, reason, contactID)
	}
	return cancelled, nil
}

// CreateBlueprint validates and stores a finished step definition. The
// engine consumes validated blueprints; the visual authoring flow lives
// upstream.
func (s *LifecycleService) CreateBlueprint(name string, policy model.DelayPolicy, steps []model.StepDefinition) (*model.Blueprint, error) {
	if name == "" {
		return nil, appErrors.NewValidation("blueprint name is required")
	}
	if len(steps) == 0 {
		return nil, appErrors.NewValidation("blueprint must have at least one step")
	}
	if policy != model.DelayRelativeToPrevious && policy != model.DelayRelativeToStart {
		return nil, appErrors.NewValidation("unknown delay policy %q", policy)
	}
	for i, step := range steps {
		if step.Order != i {
			return nil, appErrors.NewValidation("step orders must be 0..%d with no gaps", len(steps)-1)
		}
		if step.DelaySeconds < 0 {
			return nil, appErrors.NewValidation("step %d has a negative delay", i)
		}
		if step.SkipCondition != "" && step.SkipCondition != model.SkipConditionContactReplied {
			return nil, appErrors.NewValidation("unknown skip condition %q on step %d", step.SkipCondition, i)
		}
	}

	blueprint := &model.Blueprint{
		Name:        name,
		DelayPolicy: policy,
		Steps:       steps,
	}
	if err := s.BlueprintRepo.Create(blueprint); err != nil {
		return nil, err
	}
	return blueprint, nil
}

// ListBlueprints fetches blueprints with pagination.
func (s *LifecycleService) ListBlueprints(page, pageSize int) ([]*model.Blueprint, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	blueprints, total, err := s.BlueprintRepo.List(offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return blueprints, pagination, nil
}
