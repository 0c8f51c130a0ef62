package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ozlistings/outreach-engine/internal/api"
	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/genai"
	"github.com/ozlistings/outreach-engine/internal/pkg/distlock"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/repository/postgres"
	"github.com/ozlistings/outreach-engine/internal/service/campaign"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
	"github.com/ozlistings/outreach-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// launchLockTTL caps how long a crashed planner can hold the launch lock.
const launchLockTTL = 5 * time.Minute

func main() {
	log.Println("Starting Outreach Engine API server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// Redis is optional; without it launch planning serializes on a
	// Postgres advisory lock instead.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), using advisory locks", err)
			redisClient = nil
		}
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	queueRepo := postgres.NewQueueRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)

	lockFactory := func() distlock.DistLock {
		return distlock.NewLock(redisClient, db, "campaign:launch-planning", launchLockTTL)
	}
	svc := campaign.NewService(campaignRepo, queueRepo, recipientRepo, cfg.Scheduling, lockFactory)

	spClient := sparkpost.NewClient(cfg.SparkPost)
	renderer := render.New(cfg.Render.AppBaseURL, cfg.Render.UnsubscribeSecret)

	generator, err := genai.NewBedrockGenerator(context.Background(),
		cfg.Bedrock.Region, cfg.Bedrock.ModelID, cfg.Bedrock.MaxTokens)
	if err != nil {
		log.Fatalf("Failed to initialize Bedrock client: %v", err)
	}

	// Background completion reconciliation. Campaign progress reads also
	// reconcile inline; this catches campaigns nobody is watching.
	reconciler := worker.NewReconciler(svc, cfg.Dispatcher.PollInterval())
	if err := reconciler.Start(); err != nil {
		log.Fatalf("Failed to start reconciler: %v", err)
	}

	handlers := api.NewHandlers(svc, queueRepo, spClient, generator, renderer, api.NewTaskRunner(4))
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
