package sparkpost

import (
	"encoding/json"
	"fmt"
)

// Event types SparkPost reports that we act on. Everything else is logged
// and dropped.
const (
	EventBounce        = "bounce"
	EventUnsubscribe   = "unsubscribe"
	EventSpamComplaint = "spam_complaint"
	EventDelivery      = "delivery"
)

// Event is one normalized webhook event.
type Event struct {
	Type       string
	Recipient  string
	CampaignID string // bare UUID, tag form already stripped
	Timestamp  string
}

// eventWrapper mirrors SparkPost's webhook batch envelope: every element
// wraps one event class under msys.
type eventWrapper struct {
	Msys struct {
		MessageEvent     json.RawMessage `json:"message_event"`
		TrackEvent       json.RawMessage `json:"track_event"`
		UnsubscribeEvent json.RawMessage `json:"unsubscribe_event"`
	} `json:"msys"`
}

type rawEvent struct {
	Type       string `json:"type"`
	RcptTo     string `json:"rcpt_to"`
	RawRcptTo  string `json:"raw_rcpt_to"`
	CampaignID string `json:"campaign_id"`
	Timestamp  string `json:"timestamp"`
}

// ParseEvents decodes a webhook batch body into normalized events. Events
// with an unknown structure or no recipient are skipped, not fatal: one bad
// element must not reject the whole batch.
func ParseEvents(body []byte) ([]Event, int, error) {
	var wrappers []eventWrapper
	if err := json.Unmarshal(body, &wrappers); err != nil {
		return nil, 0, fmt.Errorf("decode webhook batch: %w", err)
	}

	var events []Event
	skipped := 0
	for _, w := range wrappers {
		var raw json.RawMessage
		switch {
		case w.Msys.MessageEvent != nil:
			raw = w.Msys.MessageEvent
		case w.Msys.TrackEvent != nil:
			raw = w.Msys.TrackEvent
		case w.Msys.UnsubscribeEvent != nil:
			raw = w.Msys.UnsubscribeEvent
		default:
			skipped++
			continue
		}

		var ev rawEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
			skipped++
			continue
		}

		recipient := ev.RcptTo
		if recipient == "" {
			recipient = ev.RawRcptTo
		}
		if recipient == "" {
			skipped++
			continue
		}

		events = append(events, Event{
			Type:       ev.Type,
			Recipient:  recipient,
			CampaignID: CampaignIDFromTag(ev.CampaignID),
			Timestamp:  ev.Timestamp,
		})
	}
	return events, skipped, nil
}
