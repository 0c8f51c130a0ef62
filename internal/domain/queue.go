package domain

import (
	"time"
)

// QueueItemStatus enumerates the lifecycle of a single email in the send queue.
//
// Allowed transitions:
//
//	staged → queued      (planner assigns domain + schedule)
//	queued → processing  (dispatcher claim, atomic)
//	processing → sent
//	processing → failed
//	failed → queued      (explicit retry)
type QueueItemStatus string

const (
	QueueStaged     QueueItemStatus = "staged"
	QueueQueued     QueueItemStatus = "queued"
	QueueProcessing QueueItemStatus = "processing"
	QueueSent       QueueItemStatus = "sent"
	QueueFailed     QueueItemStatus = "failed"
)

// QueueItem is one queued send for one recipient. Scheduling fields
// (ScheduledFor, DomainIndex, FromEmail) are null while staged and populated
// by the planner at launch. Body stays empty until just-in-time rendering
// unless an operator edited it by hand.
type QueueItem struct {
	ID           string            `json:"id" db:"id"`
	CampaignID   string            `json:"campaign_id" db:"campaign_id"`
	ToEmail      string            `json:"to_email" db:"to_email"`
	FromEmail    *string           `json:"from_email" db:"from_email"`
	Subject      string            `json:"subject" db:"subject"`
	Body         string            `json:"body" db:"body"`
	Status       QueueItemStatus   `json:"status" db:"status"`
	ScheduledFor *time.Time        `json:"scheduled_for" db:"scheduled_for"`
	DomainIndex  *int              `json:"domain_index" db:"domain_index"`
	Metadata     map[string]string `json:"metadata" db:"metadata"`
	IsEdited     bool              `json:"is_edited" db:"is_edited"`
	ErrorMessage *string           `json:"error_message" db:"error_message"`
	SentAt       *time.Time        `json:"sent_at" db:"sent_at"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// NeedsRendering reports whether the dispatcher must render a body before
// sending. Operator-edited bodies are sent as-is.
func (q *QueueItem) NeedsRendering() bool {
	return q.Body == "" && !q.IsEdited
}
