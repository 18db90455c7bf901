// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/dripflow/dripflow-backend/internal/controller"
	"github.com/dripflow/dripflow-backend/internal/db"
	"github.com/dripflow/dripflow-backend/internal/handler"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	blueprintRepo := &repository.BlueprintRepository{DB: db.DB}
	contactRepo := &repository.ContactRepository{DB: db.DB}

	lifecycle := &service.LifecycleService{
		CampaignRepo:  campaignRepo,
		BlueprintRepo: blueprintRepo,
		ContactRepo:   contactRepo,
	}
	reports := &service.ReportService{
		CampaignRepo: campaignRepo,
	}

	campaignController := &controller.CampaignController{Lifecycle: lifecycle}
	blueprintController := &controller.BlueprintController{Lifecycle: lifecycle}
	reportHandler := &handler.ReportHandler{Service: reports}

	r := chi.NewRouter()

	// Campaign control surface
	r.Post("/campaigns/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/events/contact", campaignController.ContactEvent)

	// Blueprint intake
	r.Post("/blueprints", blueprintController.CreateBlueprint)
	r.Get("/blueprints", blueprintController.ListBlueprints)

	// Report surface
	r.Get("/campaigns/report", reportHandler.GetReport)
	r.Get("/campaigns/{id}", reportHandler.GetCampaign)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("🚀 Server running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
