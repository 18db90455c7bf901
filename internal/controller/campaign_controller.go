// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/service"
)

// CampaignController exposes the campaign control surface: start, cancel and
// the contact-event webhook fallback for deployments without a broker.
type CampaignController struct {
	Lifecycle *service.LifecycleService
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID   int `json:"contact_id"`
		BlueprintID int `json:"blueprint_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.Lifecycle.StartCampaign(body.ContactID, body.BlueprintID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

// CancelCampaign is idempotent: repeating it on an already-cancelled
// campaign returns 200, not an error.
func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := c.Lifecycle.CancelCampaign(id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"campaign_id": id,
		"status":      "cancelled",
	})
}

// ContactEvent mirrors the queue consumer for CRMs that deliver lifecycle
// events over a webhook instead of the broker.
func (c *CampaignController) ContactEvent(w http.ResponseWriter, r *http.Request) {
	var event queue.ContactEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var cancelled int
	var err error
	switch event.Type {
	case queue.ContactUnsubscribed:
		cancelled, err = c.Lifecycle.OnContactUnsubscribed(event.ContactID)
	case queue.ContactDeleted:
		cancelled, err = c.Lifecycle.OnContactDeleted(event.ContactID)
	default:
		http.Error(w, "unknown event type: "+event.Type, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"contact_id":          event.ContactID,
		"campaigns_cancelled": cancelled,
	})
}
