// internal/controller/blueprint_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/service"
)

// BlueprintController ingests finished, validated step definitions. The
// visual workflow builder lives upstream; this surface only accepts its
// output.
type BlueprintController struct {
	Lifecycle *service.LifecycleService
}

func (c *BlueprintController) CreateBlueprint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string                 `json:"name"`
		DelayPolicy string                 `json:"delay_policy"`
		Steps       []model.StepDefinition `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	blueprint, err := c.Lifecycle.CreateBlueprint(body.Name, model.DelayPolicy(body.DelayPolicy), body.Steps)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(blueprint)
}

func (c *BlueprintController) ListBlueprints(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	blueprints, pagination, err := c.Lifecycle.ListBlueprints(page, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"data":       blueprints,
		"pagination": pagination,
	})
}
