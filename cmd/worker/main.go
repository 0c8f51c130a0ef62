package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/genai"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/repository/postgres"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
	"github.com/ozlistings/outreach-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	log.Println("Starting Outreach Engine dispatcher...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	generator, err := genai.NewBedrockGenerator(context.Background(),
		cfg.Bedrock.Region, cfg.Bedrock.ModelID, cfg.Bedrock.MaxTokens)
	if err != nil {
		log.Fatalf("Failed to initialize Bedrock client: %v", err)
	}

	dispatcher := worker.NewDispatcher(
		postgres.NewCampaignRepo(db),
		postgres.NewQueueRepo(db),
		sparkpost.NewClient(cfg.SparkPost),
		generator,
		render.New(cfg.Render.AppBaseURL, cfg.Render.UnsubscribeSecret),
		cfg.Dispatcher,
		cfg.Scheduling,
	)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	dispatcher.Stop()
	log.Println("Dispatcher stopped")
}
