package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ozlistings/outreach-engine/internal/pkg/httputil"
	"github.com/ozlistings/outreach-engine/internal/service/campaign"
)

// writeServiceError maps campaign service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrLaunchInProgress):
		httputil.Conflict(w, "a launch is already in progress")
	case errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrNoStagedEmails),
		errors.Is(err, campaign.ErrNoFailedEmails),
		errors.Is(err, campaign.ErrInvalidSender):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// reconcileLazily runs the completion pass before a campaign read so a
// drained campaign shows up as completed. Best effort; the read proceeds
// either way.
func (h *Handlers) reconcileLazily(ctx context.Context) {
	if _, err := h.svc.ReconcileCompletion(ctx); err != nil {
		log.Printf("[api] completion pass: %v", err)
	}
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	h.reconcileLazily(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	campaigns, total, err := h.svc.List(r.Context(), campaign.ListFilter{
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"campaigns": campaigns,
		"total":     total,
	})
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.svc.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	h.reconcileLazily(r.Context())
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	if err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), u); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) AttachRecipient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID     string `json:"contact_id"`
		SelectedEmail string `json:"selected_email"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.ContactID == "" {
		httputil.BadRequest(w, "contact_id is required")
		return
	}
	if err := h.svc.AttachRecipient(r.Context(), chi.URLParam(r, "id"), body.ContactID, body.SelectedEmail); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) DetachRecipient(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DetachRecipient(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "contactID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// StageCampaign builds the staged queue for a campaign in the background.
func (h *Handlers) StageCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	ok := h.tasks.Submit("stage "+id, func(ctx context.Context) error {
		_, err := h.svc.Stage(ctx, id)
		return err
	})
	if !ok {
		httputil.Error(w, http.StatusServiceUnavailable, "task pool saturated, retry shortly")
		return
	}
	httputil.Accepted(w, map[string]string{"campaign_id": id, "task": "stage"})
}

// LaunchCampaign schedules staged emails in the background.
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var sel campaign.LaunchSelection
	if r.ContentLength > 0 {
		if !httputil.Decode(w, r, &sel) {
			return
		}
	} else {
		sel.All = true
	}
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	ok := h.tasks.Submit("launch "+id, func(ctx context.Context) error {
		_, err := h.svc.Launch(ctx, id, sel)
		return err
	})
	if !ok {
		httputil.Error(w, http.StatusServiceUnavailable, "task pool saturated, retry shortly")
		return
	}
	httputil.Accepted(w, map[string]string{"campaign_id": id, "task": "launch"})
}

// RetryFailed reschedules failed emails in the background.
func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	ok := h.tasks.Submit("retry-failed "+id, func(ctx context.Context) error {
		_, err := h.svc.RetryFailed(ctx, id)
		return err
	})
	if !ok {
		httputil.Error(w, http.StatusServiceUnavailable, "task pool saturated, retry shortly")
		return
	}
	httputil.Accepted(w, map[string]string{"campaign_id": id, "task": "retry-failed"})
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &body) {
		return
	}
	if body.Reason == "" {
		body.Reason = "paused by operator"
	}
	if err := h.svc.Pause(r.Context(), chi.URLParam(r, "id"), body.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetProgress returns queue counts for a campaign. Completion is reconciled
// first so a fully drained campaign reads as completed without waiting for
// the background pass.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.ReconcileCompletion(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	p, err := h.svc.GetProgress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}
