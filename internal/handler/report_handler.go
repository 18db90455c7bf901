// internal/handler/report_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/service"
)

// ReportHandler serves the read-only report surface consumed by the UI.
type ReportHandler struct {
	Service *service.ReportService
}

// GetReport returns the campaign listing with status counts, filtered by
// ?status= and paginated with ?limit=&offset=.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	report, err := h.Service.Report(status, limit, offset)
	if err != nil {
		log.Println("❌ report query failed:", err)
		http.Error(w, "failed to build report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// GetCampaign returns one campaign with its step execution history.
func (h *ReportHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := h.Service.CampaignDetails(id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}
