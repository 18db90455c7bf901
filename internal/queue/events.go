package queue

// Topics shared by the publishers and consumers of the engine.
const (
	// TopicContactEvents carries contact lifecycle events from the CRM.
	TopicContactEvents = "contact_events"
	// TopicCampaignEvents carries engine notifications (e.g. completions)
	// for the notification surface.
	TopicCampaignEvents = "campaign_events"
)

// Contact event types published by the CRM.
const (
	ContactUnsubscribed = "contact.unsubscribed"
	ContactDeleted      = "contact.deleted"
)

// CampaignCompleted is published when a campaign reaches completed.
const CampaignCompleted = "campaign.completed"

type ContactEvent struct {
	Type      string `json:"type"`
	ContactID int    `json:"contact_id"`
}

type CampaignEvent struct {
	Type       string `json:"type"`
	CampaignID int    `json:"campaign_id"`
	ContactID  int    `json:"contact_id"`
}
