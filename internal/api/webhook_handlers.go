package api

import (
	"io"
	"log"
	"net/http"

	"github.com/ozlistings/outreach-engine/internal/pkg/httputil"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// maxWebhookBody caps the SparkPost webhook payload. Batches arrive well
// under this; anything larger is not a legitimate delivery.
const maxWebhookBody = 10 << 20

// SparkPostWebhook ingests a SparkPost event batch and applies suppression
// events to recipient state. Always returns 200 for parseable batches so
// SparkPost does not redeliver events we already handled.
func (h *Handlers) SparkPostWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	events, skipped, err := sparkpost.ParseEvents(body)
	if err != nil {
		httputil.BadRequest(w, "malformed event batch")
		return
	}

	processed, failed := 0, 0
	for _, ev := range events {
		if err := h.svc.HandleEvent(r.Context(), ev); err != nil {
			log.Printf("[api] webhook event %s for %s failed: %v", ev.Type, ev.Recipient, err)
			failed++
			continue
		}
		processed++
	}

	httputil.OK(w, map[string]int{
		"processed": processed,
		"skipped":   skipped,
		"failed":    failed,
	})
}

// Unsubscribe handles the signed one-click link embedded in every email.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")
	if email == "" || token == "" {
		httputil.BadRequest(w, "email and token are required")
		return
	}
	if !render.VerifyUnsubscribeToken(h.renderer.UnsubscribeSecret, email, token) {
		httputil.Error(w, http.StatusForbidden, "invalid token")
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), email); err != nil {
		httputil.InternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<html><body style="font-family:sans-serif;text-align:center;padding:60px">` +
		`<h2>You have been unsubscribed.</h2>` +
		`<p>You will not receive further emails from OZ Listings.</p>` +
		`</body></html>`))
}
