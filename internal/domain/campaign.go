package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignStaged    CampaignStatus = "staged"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// IsTerminal returns true if the campaign is in a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// Dispatchable returns true if the dispatcher may send for a campaign in
// this state. Scheduled and sending are treated identically by the worker.
func (s CampaignStatus) Dispatchable() bool {
	return s == CampaignScheduled || s == CampaignSending
}

// EmailFormat selects the rendered body type for a campaign.
type EmailFormat string

const (
	FormatHTML EmailFormat = "html"
	FormatText EmailFormat = "text"
)

// SectionType enumerates the kinds of content blocks in a campaign body.
type SectionType string

const (
	SectionText   SectionType = "text"
	SectionButton SectionType = "button"
)

// SectionMode distinguishes authored content from AI-personalized content.
type SectionMode string

const (
	ModeStatic       SectionMode = "static"
	ModePersonalized SectionMode = "personalized"
)

// Section is one ordered content block of a campaign. For static sections
// Content holds the authored text; for personalized sections it holds the
// generation instructions and SelectedFields names the recipient fields the
// generator should consult.
type Section struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Order          int         `json:"order"`
	Type           SectionType `json:"type"`
	Mode           SectionMode `json:"mode"`
	Content        string      `json:"content"`
	ButtonURL      string      `json:"buttonUrl,omitempty"`
	SelectedFields []string    `json:"selectedFields,omitempty"`
}

// SubjectLine is the campaign subject specification. Static subjects are
// sent verbatim; templated subjects carry {{Var}} placeholders resolved
// against each recipient's metadata at staging time.
type SubjectLine struct {
	Mode    string `json:"mode"`
	Content string `json:"content"`
}

// MaxCampaignNameLen caps the human-readable campaign name and the
// sanitized name used in the transmission campaign tag.
const MaxCampaignNameLen = 25

// Campaign is an authored outbound campaign: an ordered list of sections,
// a subject, a sender identity, and a recipient total once staged.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	Status          CampaignStatus `json:"status" db:"status"`
	Sender          Sender         `json:"sender" db:"sender"`
	Sections        []Section      `json:"sections" db:"sections"`
	Subject         SubjectLine    `json:"subject_line" db:"subject_line"`
	EmailFormat     EmailFormat    `json:"email_format" db:"email_format"`
	TotalRecipients int            `json:"total_recipients" db:"total_recipients"`
	PauseReason     string         `json:"pause_reason,omitempty" db:"pause_reason"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}
