// Package sparkpost wraps the SparkPost transmissions API for single-message
// sends and parses the event webhooks SparkPost posts back.
package sparkpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/pkg/httpretry"
	"github.com/ozlistings/outreach-engine/internal/pkg/logger"
)

// Client is a SparkPost transmissions API client.
type Client struct {
	baseURL    string
	apiKey     string
	replyTo    string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new SparkPost API client. Transient failures (429, 5xx,
// network errors) are retried with backoff before a send is reported failed.
func NewClient(cfg config.SparkPostConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		replyTo: cfg.ReplyTo,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Message is one outbound email.
type Message struct {
	To           string
	From         string
	Subject      string
	Body         string
	CampaignID   string
	CampaignName string
	Metadata     map[string]string
}

type transmission struct {
	Recipients []recipient         `json:"recipients"`
	Content    transmissionContent `json:"content"`
	Options    transmissionOptions `json:"options"`
	CampaignID string              `json:"campaign_id,omitempty"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

type recipient struct {
	Address address `json:"address"`
}

type address struct {
	Email string `json:"email"`
}

type transmissionContent struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	ReplyTo string `json:"reply_to,omitempty"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

type transmissionOptions struct {
	ClickTracking bool `json:"click_tracking"`
}

// Send submits one transmission. The boolean reports whether SparkPost
// accepted the message; err carries the failure detail when it did not.
func (c *Client) Send(ctx context.Context, msg Message) (bool, error) {
	if c.apiKey == "" {
		return false, fmt.Errorf("sparkpost API key not configured")
	}

	payload := transmission{
		Recipients: []recipient{{Address: address{Email: msg.To}}},
		Content: transmissionContent{
			From:    msg.From,
			Subject: msg.Subject,
			ReplyTo: c.replyTo,
		},
		Options:    transmissionOptions{ClickTracking: false},
		CampaignID: CampaignTag(msg.CampaignName, msg.CampaignID),
		Metadata:   msg.Metadata,
	}

	// SparkPost wants html or text, not an ambiguous both
	if isHTML(msg.Body) {
		payload.Content.HTML = msg.Body
	} else {
		payload.Content.Text = msg.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("sparkpost send failed",
			"to", msg.To,
			"from", msg.From,
			"status", resp.StatusCode,
			"response", string(respBody))
		return false, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	logger.Info("sparkpost send accepted", "to", msg.To, "from", msg.From, "campaign_id", msg.CampaignID)
	return true, nil
}

// isHTML guesses the content type of a rendered body. Angle brackets on both
// sides are enough; bodies come from our own renderer.
func isHTML(body string) bool {
	return strings.Contains(body, "<") && strings.Contains(body, ">")
}

var campaignTagRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)

// CampaignTag builds the transmission campaign_id: the sanitized campaign
// name truncated to 25 characters, a " - " separator, and the campaign UUID.
// The webhook intake splits on the separator to recover the UUID, so the
// format is load-bearing.
func CampaignTag(name, id string) string {
	if id == "" {
		return ""
	}
	if name == "" {
		return id
	}
	sanitized := campaignTagRe.ReplaceAllString(name, "")
	if len(sanitized) > domain.MaxCampaignNameLen {
		sanitized = sanitized[:domain.MaxCampaignNameLen]
	}
	return sanitized + " - " + id
}

// CampaignIDFromTag recovers the campaign UUID from a webhook event's
// campaign_id field, which may be a bare UUID or the "name - uuid" form.
func CampaignIDFromTag(tag string) string {
	if idx := strings.LastIndex(tag, " - "); idx >= 0 {
		return tag[idx+3:]
	}
	return tag
}
