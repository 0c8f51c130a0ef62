package domain

import (
	"strings"
	"time"
)

// RecipientStatus tracks the per-campaign lifecycle of an attached contact.
type RecipientStatus string

const (
	RecipientActive       RecipientStatus = "active"
	RecipientBounced      RecipientStatus = "bounced"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
	RecipientComplained   RecipientStatus = "spam_complaint"
)

// Recipient attaches a contact to a campaign with an explicitly selected
// email address. A contact may carry several comma-separated addresses; the
// selection is made once per campaign.
type Recipient struct {
	ID             string          `json:"id" db:"id"`
	CampaignID     string          `json:"campaign_id" db:"campaign_id"`
	ContactID      string          `json:"contact_id" db:"contact_id"`
	SelectedEmail  string          `json:"selected_email" db:"selected_email"`
	Status         RecipientStatus `json:"status" db:"status"`
	BouncedAt      *time.Time      `json:"bounced_at" db:"bounced_at"`
	UnsubscribedAt *time.Time      `json:"unsubscribed_at" db:"unsubscribed_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Contact is an addressable person with freeform extra details.
type Contact struct {
	ID       string            `json:"id" db:"id"`
	Name     string            `json:"name" db:"name"`
	Email    string            `json:"email" db:"email"`
	Company  string            `json:"company" db:"company"`
	Role     string            `json:"role" db:"role"`
	Location string            `json:"location" db:"location"`
	Details  map[string]string `json:"details" db:"details"`
}

// Canonical metadata keys always present in a staged queue item's metadata.
// Lowercase duplicates from contact details are dropped in favor of these.
var canonicalMetadataKeys = []string{"name", "email", "company", "role", "location"}

// BuildMetadata flattens a contact into the substitution mapping stored on a
// queue item: every key from the contact's extra details plus the canonical
// keys, with FirstName/LastName split from the full name on first whitespace.
// selectedEmail overrides the contact's own address.
func BuildMetadata(c Contact, selectedEmail string) map[string]string {
	row := make(map[string]string, len(c.Details)+7)
	for k, v := range c.Details {
		row[k] = v
	}
	row["Name"] = c.Name
	row["Email"] = selectedEmail
	row["Company"] = c.Company
	row["Role"] = c.Role
	row["Location"] = c.Location

	first, last := splitName(c.Name)
	row["FirstName"] = first
	row["LastName"] = last

	for _, k := range canonicalMetadataKeys {
		delete(row, k)
	}
	return row
}

// PrimaryEmail returns the recipient's selected address, falling back to the
// first non-empty address on the contact. Empty means the recipient cannot
// be staged.
func PrimaryEmail(r Recipient, c Contact) string {
	if r.SelectedEmail != "" {
		return r.SelectedEmail
	}
	for _, e := range strings.Split(c.Email, ",") {
		if e = strings.TrimSpace(e); e != "" {
			return e
		}
	}
	return ""
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
