package service_test

import (
	"sort"
	"sync"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
)

// memCampaignRepo is a stateful in-memory stand-in for the Postgres
// repository. Every transition uses the same compare-and-swap semantics as
// the SQL conditional updates, guarded by one mutex.
type memCampaignRepo struct {
	mu         sync.Mutex
	nextCampID int
	nextStepID int
	campaigns  map[int]*model.Campaign
	steps      map[int]*model.StepExecution
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{
		campaigns: map[int]*model.Campaign{},
		steps:     map[int]*model.StepExecution{},
	}
}

func (r *memCampaignRepo) CreateCampaign(c *model.Campaign, steps []*model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextCampID++
	c.ID = r.nextCampID
	cp := *c
	r.campaigns[c.ID] = &cp

	for _, s := range steps {
		r.nextStepID++
		s.ID = r.nextStepID
		s.CampaignID = c.ID
		sc := *s
		r.steps[s.ID] = &sc
	}
	return nil
}

func (r *memCampaignRepo) GetCampaign(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) HasActiveCampaign(contactID, blueprintID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.campaigns {
		if c.ContactID == contactID && c.BlueprintID == blueprintID && c.Status == model.CampaignActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCampaignRepo) ListActiveCampaignIDs(contactID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := []int{}
	for _, c := range r.campaigns {
		if c.ContactID == contactID && c.Status == model.CampaignActive {
			ids = append(ids, c.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *memCampaignRepo) CancelCampaign(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if c.Status != model.CampaignPending && c.Status != model.CampaignActive {
		return nil // already terminal
	}
	c.Status = model.CampaignCancelled
	for _, s := range r.steps {
		if s.CampaignID == id && s.State == model.StepScheduled {
			s.State = model.StepSkipped
			s.LastError = ""
		}
	}
	return nil
}

func (r *memCampaignRepo) TryCompleteCampaign(id int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignActive {
		return false, nil
	}
	for _, s := range r.steps {
		if s.CampaignID == id && s.State != model.StepSent && s.State != model.StepSkipped {
			return false, nil
		}
	}
	c.Status = model.CampaignCompleted
	completedAt := now
	c.CompletedAt = &completedAt
	return true, nil
}

func (r *memCampaignRepo) ListStepExecutions(campaignID int) ([]*model.StepExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := []*model.StepExecution{}
	for _, s := range r.steps {
		if s.CampaignID == campaignID {
			sc := *s
			steps = append(steps, &sc)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, nil
}

func (r *memCampaignRepo) FindDueSteps(now time.Time, limit int) ([]*model.StepExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := []*model.StepExecution{}
	for _, s := range r.steps {
		if s.State != model.StepScheduled || s.ScheduledAt.After(now) {
			continue
		}
		c, ok := r.campaigns[s.CampaignID]
		if !ok || c.Status != model.CampaignActive {
			continue
		}
		blocked := false
		for _, p := range r.steps {
			if p.CampaignID == s.CampaignID && p.Order < s.Order && !p.State.Terminal() {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		sc := *s
		due = append(due, &sc)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].CampaignID < due[j].CampaignID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memCampaignRepo) ClaimStep(stepID int, owner string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok || s.State != model.StepScheduled {
		return appErrors.NewStaleClaim(stepID)
	}
	claimedAt := now
	s.State = model.StepClaimed
	s.ClaimOwner = owner
	s.ClaimedAt = &claimedAt
	return nil
}

func (r *memCampaignRepo) MarkStepSent(stepID, campaignID, attempt int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok || s.State != model.StepClaimed {
		return appErrors.NewStaleClaim(stepID)
	}
	sentAt := now
	s.State = model.StepSent
	s.SentAt = &sentAt
	s.Attempt = attempt
	s.LastError = ""
	s.ClaimOwner = ""
	s.ClaimedAt = nil

	if c, ok := r.campaigns[campaignID]; ok {
		c.StepsSent++
	}
	return nil
}

func (r *memCampaignRepo) MarkStepSkipped(stepID int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok || s.State != model.StepClaimed {
		return appErrors.NewStaleClaim(stepID)
	}
	s.State = model.StepSkipped
	s.LastError = reason
	s.ClaimOwner = ""
	s.ClaimedAt = nil
	return nil
}

func (r *memCampaignRepo) MarkStepFailed(stepID, attempt int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok || s.State != model.StepClaimed {
		return appErrors.NewStaleClaim(stepID)
	}
	s.State = model.StepFailed
	s.Attempt = attempt
	s.LastError = lastError
	s.ClaimOwner = ""
	s.ClaimedAt = nil
	return nil
}

func (r *memCampaignRepo) RescheduleStep(stepID, attempt int, nextAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok || s.State != model.StepClaimed {
		return appErrors.NewStaleClaim(stepID)
	}
	s.State = model.StepScheduled
	s.ScheduledAt = nextAt
	s.Attempt = attempt
	s.LastError = lastError
	s.ClaimOwner = ""
	s.ClaimedAt = nil
	return nil
}

func (r *memCampaignRepo) RequeueStaleClaims(before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.steps {
		if s.State == model.StepClaimed && s.ClaimedAt != nil && s.ClaimedAt.Before(before) {
			s.State = model.StepScheduled
			s.Attempt++
			s.ClaimOwner = ""
			s.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memCampaignRepo) CountCampaignsByStatus() (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[string]int{
		string(model.CampaignActive):    0,
		string(model.CampaignCompleted): 0,
		string(model.CampaignCancelled): 0,
		string(model.CampaignFailed):    0,
	}
	for _, c := range r.campaigns {
		counts[string(c.Status)]++
	}
	return counts, nil
}

func (r *memCampaignRepo) ListCampaignReport(status string, limit, offset int) ([]*model.CampaignReportRow, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matching := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		matching = append(matching, c)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID > matching[j].ID })
	total := len(matching)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	rows := []*model.CampaignReportRow{}
	for _, c := range matching[start:end] {
		row := &model.CampaignReportRow{
			CampaignID:  c.ID,
			ContactID:   c.ContactID,
			Status:      c.Status,
			StepsTotal:  c.StepsTotal,
			StepsSent:   c.StepsSent,
			StartedAt:   c.StartedAt,
			CompletedAt: c.CompletedAt,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
		for _, s := range r.steps {
			if s.CampaignID == c.ID && s.SentAt != nil {
				if row.LastStepSentAt == nil || s.SentAt.After(*row.LastStepSentAt) {
					row.LastStepSentAt = s.SentAt
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, total, nil
}

// stepByOrder digs out one step execution for assertions.
func (r *memCampaignRepo) stepByOrder(campaignID, order int) *model.StepExecution {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.steps {
		if s.CampaignID == campaignID && s.Order == order {
			sc := *s
			return &sc
		}
	}
	return nil
}

// memBlueprintRepo holds blueprints in memory.
type memBlueprintRepo struct {
	mu         sync.Mutex
	nextID     int
	blueprints map[int]*model.Blueprint
}

func newMemBlueprintRepo() *memBlueprintRepo {
	return &memBlueprintRepo{blueprints: map[int]*model.Blueprint{}}
}

func (r *memBlueprintRepo) Create(b *model.Blueprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	b.ID = r.nextID
	for i := range b.Steps {
		b.Steps[i].BlueprintID = b.ID
	}
	cp := *b
	cp.Steps = append([]model.StepDefinition(nil), b.Steps...)
	r.blueprints[b.ID] = &cp
	return nil
}

func (r *memBlueprintRepo) GetByID(id int) (*model.Blueprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blueprints[id]
	if !ok {
		return nil, appErrors.NewBlueprintNotFound(id)
	}
	cp := *b
	cp.Steps = append([]model.StepDefinition(nil), b.Steps...)
	return &cp, nil
}

func (r *memBlueprintRepo) GetStep(blueprintID, order int) (*model.StepDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blueprints[blueprintID]
	if !ok {
		return nil, appErrors.NewBlueprintNotFound(blueprintID)
	}
	for _, s := range b.Steps {
		if s.Order == order {
			sc := s
			return &sc, nil
		}
	}
	return nil, appErrors.NewBlueprintNotFound(blueprintID)
}

func (r *memBlueprintRepo) List(offset, limit int) ([]*model.Blueprint, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := []*model.Blueprint{}
	for _, b := range r.blueprints {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// memContactRepo holds the external contact view in memory.
type memContactRepo struct {
	mu       sync.Mutex
	contacts map[int]*model.Contact
	replies  map[int]time.Time
}

func newMemContactRepo(contacts ...*model.Contact) *memContactRepo {
	r := &memContactRepo{contacts: map[int]*model.Contact{}, replies: map[int]time.Time{}}
	for _, c := range contacts {
		r.contacts[c.ID] = c
	}
	return r
}

func (r *memContactRepo) GetByID(id int) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memContactRepo) HasRepliedSince(contactID int, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at, ok := r.replies[contactID]
	return ok && !at.Before(since), nil
}

func (r *memContactRepo) recordReply(contactID int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[contactID] = at
}

func (r *memContactRepo) remove(contactID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contacts, contactID)
}

func (r *memContactRepo) setUnsubscribed(contactID int, unsubscribed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[contactID]; ok {
		c.Unsubscribed = unsubscribed
	}
}

// scriptedMailer replays a fixed sequence of outcomes and records every
// delivery request. OnSend, when set, runs before the outcome is returned
// (used to race a cancel against an in-flight delivery).
type scriptedMailer struct {
	mu       sync.Mutex
	outcomes []error
	sent     []sentMail
	OnSend   func()
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *scriptedMailer) Send(toEmail, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{to: toEmail, subject: subject, body: body})
	var out error
	if len(m.outcomes) > 0 {
		out = m.outcomes[0]
		m.outcomes = m.outcomes[1:]
	}
	hook := m.OnSend
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out
}

func (m *scriptedMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// recordingQueue captures published events.
type recordingQueue struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	topic   string
	payload any
}

func (q *recordingQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (q *recordingQueue) Subscribe(topic string, handler func(body []byte) error) error {
	return nil
}

func (q *recordingQueue) events() []publishedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]publishedEvent(nil), q.published...)
}
