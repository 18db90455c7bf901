// cmd/scheduler/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dripflow/dripflow-backend/internal/db"
	"github.com/dripflow/dripflow-backend/internal/mailer"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	blueprintRepo := &repository.BlueprintRepository{DB: db.DB}
	contactRepo := &repository.ContactRepository{DB: db.DB}

	coordinator := service.NewCoordinator(campaignRepo, blueprintRepo, contactRepo, mailer.NewMockMailer())

	// Completion notifications go to the broker when one is configured.
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		notifier, err := queue.DialAMQP(amqpURL)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ:", err)
		}
		defer notifier.Close()
		coordinator.Notifier = notifier
	}

	tickInterval := durationEnv("TICK_INTERVAL", 30*time.Second)
	sweepInterval := durationEnv("SWEEP_INTERVAL", 5*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator.Run(ctx, tickInterval, sweepInterval)
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ invalid %s=%q, using %s\n", key, v, fallback)
		return fallback
	}
	return d
}
