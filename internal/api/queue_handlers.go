package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/pkg/httputil"
	"github.com/ozlistings/outreach-engine/internal/repository/postgres"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// ListEmails returns a campaign's staged or failed queue items.
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(domain.QueueStaged)
	}

	var (
		items []domain.QueueItem
		err   error
	)
	switch domain.QueueItemStatus(status) {
	case domain.QueueStaged:
		items, err = h.queue.Staged(r.Context(), campaignID, nil)
	case domain.QueueFailed:
		items, err = h.queue.Failed(r.Context(), campaignID)
	default:
		httputil.BadRequest(w, "status must be staged or failed")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"emails": items, "count": len(items)})
}

func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(r.Context(), chi.URLParam(r, "emailID"))
	if err == postgres.ErrQueueItemNotFound {
		httputil.NotFound(w, "email not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, item)
}

// UpdateEmail replaces an item's subject and body. Edited items are never
// regenerated by the dispatcher.
func (h *Handlers) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.Subject == "" {
		httputil.BadRequest(w, "subject is required")
		return
	}
	err := h.queue.UpdateContent(r.Context(), chi.URLParam(r, "emailID"), body.Subject, body.Body)
	if err == postgres.ErrQueueItemNotFound {
		httputil.NotFound(w, "email not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// renderPreview generates and renders a campaign email for the given
// recipient data without touching the queue.
func (h *Handlers) renderPreview(r *http.Request, c *domain.Campaign, data map[string]string) (subject, body string, err error) {
	generated, err := h.generator.GenerateSections(r.Context(), c.Sections, data)
	if err != nil {
		return "", "", err
	}
	subject = h.renderer.Subject(c.Subject.Content, data)
	if c.EmailFormat == domain.FormatText {
		body = h.renderer.Text(c.Sections, subject, data, generated)
	} else {
		body = h.renderer.HTML(c.Sections, subject, data, generated)
	}
	return subject, body, nil
}

// PreviewCampaign renders the campaign against caller-supplied recipient data.
func (h *Handlers) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientData map[string]string `json:"recipient_data"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	subject, body, err := h.renderPreview(r, c, req.RecipientData)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{
		"subject": subject,
		"body":    body,
		"format":  string(c.EmailFormat),
	})
}

// TestSend renders and sends a single email to the given address from the
// first pool domain. Queue state is untouched.
func (h *Handlers) TestSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To            string            `json:"to"`
		RecipientData map[string]string `json:"recipient_data"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.To == "" {
		httputil.BadRequest(w, "to is required")
		return
	}
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	subject, body, err := h.renderPreview(r, c, req.RecipientData)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	ok, err := h.sender.Send(r.Context(), sparkpost.Message{
		To:           req.To,
		From:         domain.FromAddress(c.Sender, 0),
		Subject:      "[TEST] " + subject,
		Body:         body,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Metadata:     map[string]string{"campaign_id": c.ID, "test_send": "true"},
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !ok {
		httputil.Error(w, http.StatusBadGateway, "transmission rejected")
		return
	}
	httputil.OK(w, map[string]string{"status": "sent", "to": req.To})
}
