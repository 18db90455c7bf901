// internal/service/coordinator.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/mailer"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// Coordinator drives campaigns forward. On each tick it finds due steps,
// claims each one with a conditional update, renders and delivers the
// content, records the outcome, and advances or holds the campaign. Ticks
// are idempotent and safe to run concurrently from multiple instances: the
// claim CAS is the only point of contention, and everything slow (contact
// fetch, render, delivery) happens after a claim succeeds.
type Coordinator struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	BlueprintRepo repository.BlueprintRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	Mailer        mailer.Mailer
	Notifier      queue.Queue // optional; completion notifications

	// Owner identifies this instance in claim records.
	Owner string

	MaxAttempts     int
	BaseRetryDelay  time.Duration
	MaxRetryDelay   time.Duration
	StaleClaimAfter time.Duration
	ClaimLimit      int
}

func NewCoordinator(
	campaignRepo repository.CampaignRepositoryInterface,
	blueprintRepo repository.BlueprintRepositoryInterface,
	contactRepo repository.ContactRepositoryInterface,
	m mailer.Mailer,
) *Coordinator {
	return &Coordinator{
		CampaignRepo:    campaignRepo,
		BlueprintRepo:   blueprintRepo,
		ContactRepo:     contactRepo,
		Mailer:          m,
		Owner:           uuid.NewString(),
		MaxAttempts:     3,
		BaseRetryDelay:  time.Minute,
		MaxRetryDelay:   6 * time.Hour,
		StaleClaimAfter: 10 * time.Minute,
		ClaimLimit:      50,
	}
}

// Run blocks until the context is cancelled, executing ticks and stale-claim
// sweeps on their own intervals. One sweep runs up front so claims abandoned
// by a crashed instance are requeued before the first tick.
func (c *Coordinator) Run(ctx context.Context, tickInterval, sweepInterval time.Duration) {
	log.Printf("coordinator %s running, tick every %s, sweep every %s\n", c.Owner, tickInterval, sweepInterval)

	if n, err := c.Sweep(time.Now()); err != nil {
		log.Println("⚠️ startup sweep failed:", err)
	} else if n > 0 {
		log.Printf("startup sweep requeued %d stale claim(s)\n", n)
	}

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("coordinator stopping")
			return
		case <-tick.C:
			if _, err := c.Tick(time.Now()); err != nil {
				log.Println("⚠️ tick failed:", err)
			}
		case <-sweep.C:
			if n, err := c.Sweep(time.Now()); err != nil {
				log.Println("⚠️ sweep failed:", err)
			} else if n > 0 {
				log.Printf("sweep requeued %d stale claim(s)\n", n)
			}
		}
	}
}

// Tick runs one due-set scan. Per-step errors are recorded on the step and
// never interrupt the rest of the batch. Returns the number of steps this
// instance claimed.
func (c *Coordinator) Tick(now time.Time) (int, error) {
	due, err := c.CampaignRepo.FindDueSteps(now, c.ClaimLimit)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, step := range due {
		if err := c.CampaignRepo.ClaimStep(step.ID, c.Owner, now); err != nil {
			if appErrors.IsStaleClaim(err) {
				continue // another instance got there first
			}
			log.Printf("⚠️ claim of step %d failed: %v\n", step.ID, err)
			continue
		}
		claimed++
		c.executeClaimed(step, now)
	}
	return claimed, nil
}

// Sweep requeues claims older than the stuck-claim threshold, incrementing
// their attempt counter. Recovery for instances that died between claiming
// and recording an outcome.
func (c *Coordinator) Sweep(now time.Time) (int, error) {
	return c.CampaignRepo.RequeueStaleClaims(now.Add(-c.StaleClaimAfter))
}

// executeClaimed owns a freshly claimed step through to a recorded outcome.
// If anything here fails before an outcome lands, the claim stays in place
// and the sweep eventually requeues it.
func (c *Coordinator) executeClaimed(step *model.StepExecution, now time.Time) {
	campaign, err := c.CampaignRepo.GetCampaign(step.CampaignID)
	if err != nil {
		log.Printf("⚠️ step %d: campaign fetch failed: %v\n", step.ID, err)
		return
	}

	// A cancel may have landed between selection and claim. Never start a
	// delivery for a campaign that is no longer active.
	if campaign.Status != model.CampaignActive {
		c.skip(step, "campaign "+string(campaign.Status))
		return
	}

	contact, err := c.ContactRepo.GetByID(campaign.ContactID)
	if err != nil {
		log.Printf("⚠️ step %d: contact fetch failed: %v\n", step.ID, err)
		return
	}
	if contact == nil {
		// Contact deleted upstream: permanent, skip rather than retry.
		c.skip(step, "contact deleted")
		c.advance(campaign, now)
		return
	}
	if contact.Unsubscribed {
		// The unsubscribe event normally cancels the campaign before we get
		// here; if it was missed, halt the campaign now instead of mailing.
		c.skip(step, "contact unsubscribed")
		if err := c.CampaignRepo.CancelCampaign(campaign.ID); err != nil {
			log.Printf("⚠️ cancel of campaign %d for unsubscribed contact failed: %v\n", campaign.ID, err)
		}
		return
	}

	def, err := c.BlueprintRepo.GetStep(campaign.BlueprintID, step.Order)
	if err != nil {
		log.Printf("⚠️ step %d: blueprint step fetch failed: %v\n", step.ID, err)
		return
	}

	if def.SkipCondition == model.SkipConditionContactReplied {
		since := campaign.CreatedAt
		if campaign.StartedAt != nil {
			since = *campaign.StartedAt
		}
		replied, err := c.ContactRepo.HasRepliedSince(contact.ID, since)
		if err != nil {
			log.Printf("⚠️ step %d: reply check failed: %v\n", step.ID, err)
			return
		}
		if replied {
			c.skip(step, "contact replied")
			c.advance(campaign, now)
			return
		}
	}

	subject := RenderTemplate(def.SubjectTemplate, contact)
	body := RenderTemplate(def.BodyTemplate, contact)

	attempt := step.Attempt + 1
	sendErr := c.Mailer.Send(contact.Email, subject, body)
	switch {
	case sendErr == nil:
		if err := c.CampaignRepo.MarkStepSent(step.ID, campaign.ID, attempt, now); err != nil {
			log.Printf("⚠️ step %d: recording sent failed: %v\n", step.ID, err)
			return
		}
		c.advance(campaign, now)

	case appErrors.IsPermanentDelivery(sendErr):
		if err := c.CampaignRepo.MarkStepFailed(step.ID, attempt, sendErr.Error()); err != nil {
			log.Printf("⚠️ step %d: recording failure failed: %v\n", step.ID, err)
		}
		c.advance(campaign, now)

	case attempt >= c.MaxAttempts:
		if err := c.CampaignRepo.MarkStepFailed(step.ID, attempt, sendErr.Error()); err != nil {
			log.Printf("⚠️ step %d: recording failure failed: %v\n", step.ID, err)
		}
		c.advance(campaign, now)

	default:
		nextAt := now.Add(c.backoff(attempt))
		if err := c.CampaignRepo.RescheduleStep(step.ID, attempt, nextAt, sendErr.Error()); err != nil {
			log.Printf("⚠️ step %d: reschedule failed: %v\n", step.ID, err)
		}
	}
}

func (c *Coordinator) skip(step *model.StepExecution, reason string) {
	if err := c.CampaignRepo.MarkStepSkipped(step.ID, reason); err != nil {
		log.Printf("⚠️ step %d: skip (%s) failed: %v\n", step.ID, reason, err)
	}
}

// advance re-checks the campaign after a terminal step transition. The
// completion update is conditional on the campaign still being active and
// every step being sent or skipped, so a cancelled campaign or one holding
// a failed step never completes here.
func (c *Coordinator) advance(campaign *model.Campaign, now time.Time) {
	completed, err := c.CampaignRepo.TryCompleteCampaign(campaign.ID, now)
	if err != nil {
		log.Printf("⚠️ completion check for campaign %d failed: %v\n", campaign.ID, err)
		return
	}
	if !completed {
		return
	}

	log.Printf("✅ campaign %d completed\n", campaign.ID)
	if c.Notifier != nil {
		event := queue.CampaignEvent{
			Type:       queue.CampaignCompleted,
			CampaignID: campaign.ID,
			ContactID:  campaign.ContactID,
		}
		if err := c.Notifier.Publish(queue.TopicCampaignEvents, event); err != nil {
			log.Printf("⚠️ completion event for campaign %d failed: %v\n", campaign.ID, err)
		}
	}
}

// backoff grows exponentially with the attempt count, capped by policy.
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.BaseRetryDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	return d
}
