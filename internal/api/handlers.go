// Package api exposes the campaign admin surface over HTTP: campaign CRUD,
// staging and launch tasks, queue item edits, preview and test sends, and the
// SparkPost webhook intake.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/genai"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/service/campaign"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// CampaignService is the slice of the campaign service the handlers use.
// *campaign.Service satisfies it.
type CampaignService interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Create(ctx context.Context, input campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, id string, u campaign.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Stage(ctx context.Context, campaignID string) (int, error)
	Launch(ctx context.Context, campaignID string, sel campaign.LaunchSelection) (int, error)
	RetryFailed(ctx context.Context, campaignID string) (int, error)
	Pause(ctx context.Context, campaignID, reason string) error
	Resume(ctx context.Context, campaignID string) error
	GetProgress(ctx context.Context, campaignID string) (*campaign.Progress, error)
	ReconcileCompletion(ctx context.Context) (int, error)
	HandleEvent(ctx context.Context, ev sparkpost.Event) error
	Unsubscribe(ctx context.Context, email string) error
	AttachRecipient(ctx context.Context, campaignID, contactID, selectedEmail string) error
	DetachRecipient(ctx context.Context, campaignID, contactID string) error
}

// QueueStore is the slice of the queue repository the handlers use.
type QueueStore interface {
	Get(ctx context.Context, id string) (*domain.QueueItem, error)
	Staged(ctx context.Context, campaignID string, ids []string) ([]domain.QueueItem, error)
	Failed(ctx context.Context, campaignID string) ([]domain.QueueItem, error)
	UpdateContent(ctx context.Context, id, subject, body string) error
}

// MessageSender sends a single email. *sparkpost.Client satisfies it.
type MessageSender interface {
	Send(ctx context.Context, msg sparkpost.Message) (bool, error)
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	svc       CampaignService
	queue     QueueStore
	sender    MessageSender
	generator genai.Generator
	renderer  *render.Renderer
	tasks     *TaskRunner

	startTime time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(svc CampaignService, queue QueueStore, sender MessageSender,
	generator genai.Generator, renderer *render.Renderer, tasks *TaskRunner) *Handlers {
	return &Handlers{
		svc:       svc,
		queue:     queue,
		sender:    sender,
		generator: generator,
		renderer:  renderer,
		tasks:     tasks,
		startTime: time.Now(),
	}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","uptime":"` + time.Since(h.startTime).Round(time.Second).String() + `"}`))
}
