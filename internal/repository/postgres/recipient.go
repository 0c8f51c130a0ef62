package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/service/campaign"
)

// RecipientRepo implements campaign.RecipientRepository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// ActiveContacts joins one page of the campaign's active recipients with
// their contacts, excluding globally suppressed addresses. Suppression wins
// over campaign membership: a contact bounced anywhere is skipped everywhere.
func (r *RecipientRepo) ActiveContacts(ctx context.Context, campaignID string, limit, offset int) ([]campaign.RecipientContact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cr.id, cr.campaign_id, cr.contact_id, COALESCE(cr.selected_email,''), cr.status, cr.created_at,
		       c.id, c.name, COALESCE(c.email,''), COALESCE(c.company,''), COALESCE(c.role,''),
		       COALESCE(c.location,''), c.details
		FROM campaign_recipients cr
		JOIN contacts c ON c.id = cr.contact_id
		WHERE cr.campaign_id = $1
		  AND cr.status = $2
		  AND NOT c.globally_bounced
		  AND NOT c.globally_unsubscribed
		ORDER BY cr.created_at ASC
		LIMIT $3 OFFSET $4
	`, campaignID, domain.RecipientActive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load active contacts: %w", err)
	}
	defer rows.Close()

	var out []campaign.RecipientContact
	for rows.Next() {
		var rc campaign.RecipientContact
		var details []byte
		err := rows.Scan(
			&rc.Recipient.ID, &rc.Recipient.CampaignID, &rc.Recipient.ContactID,
			&rc.Recipient.SelectedEmail, &rc.Recipient.Status, &rc.Recipient.CreatedAt,
			&rc.Contact.ID, &rc.Contact.Name, &rc.Contact.Email, &rc.Contact.Company,
			&rc.Contact.Role, &rc.Contact.Location, &details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rc.Contact.Details); err != nil {
				return nil, fmt.Errorf("decode contact details: %w", err)
			}
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) Attach(ctx context.Context, campaignID, contactID, selectedEmail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_recipients (id, campaign_id, contact_id, selected_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (campaign_id, contact_id)
		DO UPDATE SET selected_email = EXCLUDED.selected_email
	`, uuid.New().String(), campaignID, contactID, selectedEmail, domain.RecipientActive)
	if err != nil {
		return fmt.Errorf("attach recipient: %w", err)
	}
	return nil
}

func (r *RecipientRepo) Detach(ctx context.Context, campaignID, contactID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2
	`, campaignID, contactID)
	if err != nil {
		return fmt.Errorf("detach recipient: %w", err)
	}
	return nil
}

// suppress updates the campaign recipient row and flags the contact
// globally. The contact update runs even when the campaign row is missing;
// suppression must stick regardless of bookkeeping drift.
func (r *RecipientRepo) suppress(ctx context.Context, campaignID, email string, recipientStatus domain.RecipientStatus, stampCol, contactCol, reason string) error {
	q := fmt.Sprintf(`
		UPDATE campaign_recipients cr
		SET status = $1%s
		FROM contacts c
		WHERE cr.contact_id = c.id AND cr.campaign_id = $2 AND LOWER(c.email) = LOWER($3)
	`, stampCol)
	if _, err := r.db.ExecContext(ctx, q, recipientStatus, campaignID, email); err != nil {
		return fmt.Errorf("update campaign recipient: %w", err)
	}

	cq := fmt.Sprintf(`
		UPDATE contacts
		SET %s = TRUE, suppression_reason = $1, suppression_date = NOW()
		WHERE LOWER(email) = LOWER($2)
	`, contactCol)
	if _, err := r.db.ExecContext(ctx, cq, reason, email); err != nil {
		return fmt.Errorf("suppress contact: %w", err)
	}
	return nil
}

func (r *RecipientRepo) MarkBounced(ctx context.Context, campaignID, email string) error {
	return r.suppress(ctx, campaignID, email, domain.RecipientBounced,
		", bounced_at = NOW()", "globally_bounced", "bounce")
}

func (r *RecipientRepo) MarkUnsubscribed(ctx context.Context, campaignID, email string) error {
	return r.suppress(ctx, campaignID, email, domain.RecipientUnsubscribed,
		", unsubscribed_at = NOW()", "globally_unsubscribed", "unsubscribe")
}

func (r *RecipientRepo) MarkComplained(ctx context.Context, campaignID, email string) error {
	return r.suppress(ctx, campaignID, email, domain.RecipientComplained,
		"", "globally_unsubscribed", "spam_complaint")
}
