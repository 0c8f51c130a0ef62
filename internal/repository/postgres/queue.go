package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

// ErrQueueItemNotFound is returned when a queue row does not exist.
var ErrQueueItemNotFound = errors.New("queue item not found")

// insertChunkSize caps the rows per multi-row INSERT so a large staging run
// never builds an unbounded statement.
const insertChunkSize = 100

// QueueRepo implements campaign.QueueRepository against PostgreSQL.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `id, campaign_id, to_email, from_email, subject, COALESCE(body,''),
	       status, scheduled_for, domain_index, metadata, is_edited, error_message, sent_at, created_at`

func scanQueueItem(row interface{ Scan(...any) error }) (*domain.QueueItem, error) {
	item := &domain.QueueItem{}
	var metadata []byte
	err := row.Scan(
		&item.ID, &item.CampaignID, &item.ToEmail, &item.FromEmail, &item.Subject, &item.Body,
		&item.Status, &item.ScheduledFor, &item.DomainIndex, &metadata,
		&item.IsEdited, &item.ErrorMessage, &item.SentAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return item, nil
}

func (r *QueueRepo) InsertMany(ctx context.Context, items []domain.QueueItem) error {
	for start := 0; start < len(items); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := r.insertChunk(ctx, items[start:end]); err != nil {
			return fmt.Errorf("insert chunk at %d: %w", start, err)
		}
	}
	return nil
}

func (r *QueueRepo) insertChunk(ctx context.Context, items []domain.QueueItem) error {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO email_queue (id, campaign_id, to_email, subject, status, metadata, created_at) VALUES `)
	for i, item := range items {
		metadata, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, item.ID, item.CampaignID, item.ToEmail, item.Subject, item.Status, metadata)
	}

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM email_queue WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, ErrQueueItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

func (r *QueueRepo) listByStatus(ctx context.Context, campaignID string, status domain.QueueItemStatus, ids []string) ([]domain.QueueItem, error) {
	q := `SELECT ` + queueColumns + ` FROM email_queue WHERE campaign_id = $1 AND status = $2`
	args := []interface{}{campaignID, status}
	if ids != nil {
		q += ` AND id = ANY($3)`
		args = append(args, pq.Array(ids))
	}
	q += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", status, err)
	}
	defer rows.Close()

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (r *QueueRepo) Staged(ctx context.Context, campaignID string, ids []string) ([]domain.QueueItem, error) {
	return r.listByStatus(ctx, campaignID, domain.QueueStaged, ids)
}

func (r *QueueRepo) Failed(ctx context.Context, campaignID string) ([]domain.QueueItem, error) {
	return r.listByStatus(ctx, campaignID, domain.QueueFailed, nil)
}

func (r *QueueRepo) DeleteStaged(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM email_queue WHERE campaign_id = $1 AND status = $2
	`, campaignID, domain.QueueStaged)
	if err != nil {
		return fmt.Errorf("delete staged: %w", err)
	}
	return nil
}

// DomainCommitments returns the latest committed slot per domain lane across
// all campaigns. DISTINCT ON keeps the newest scheduled_for per index.
func (r *QueueRepo) DomainCommitments(ctx context.Context) (map[int]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (domain_index) domain_index, scheduled_for
		FROM email_queue
		WHERE status IN ($1, $2) AND domain_index IS NOT NULL AND scheduled_for IS NOT NULL
		ORDER BY domain_index, scheduled_for DESC
	`, domain.QueueQueued, domain.QueueProcessing)
	if err != nil {
		return nil, fmt.Errorf("load domain commitments: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var idx int
		var at time.Time
		if err := rows.Scan(&idx, &at); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		out[idx] = at
	}
	return out, rows.Err()
}

func (r *QueueRepo) Schedule(ctx context.Context, id string, domainIndex int, fromEmail string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, domain_index = $2, from_email = $3, scheduled_for = $4,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $5
	`, domain.QueueQueued, domainIndex, fromEmail, at, id)
	if err != nil {
		return fmt.Errorf("schedule item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// DueBatch returns due queued items in creation order, skipping items whose
// campaign is paused.
func (r *QueueRepo) DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.id, q.campaign_id, q.to_email, q.from_email, q.subject, COALESCE(q.body,''),
		       q.status, q.scheduled_for, q.domain_index, q.metadata, q.is_edited,
		       q.error_message, q.sent_at, q.created_at
		FROM email_queue q
		JOIN campaigns c ON c.id = q.campaign_id
		WHERE q.status = $1 AND q.scheduled_for <= $2 AND c.status != $3
		ORDER BY q.created_at ASC
		LIMIT $4
	`, domain.QueueQueued, now, domain.CampaignPaused, limit)
	if err != nil {
		return nil, fmt.Errorf("load due batch: %w", err)
	}
	defer rows.Close()

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// Claim is the dispatch lock: only the worker whose UPDATE matches the
// queued status wins the row.
func (r *QueueRepo) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.QueueProcessing, id, domain.QueueQueued)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *QueueRepo) SaveBody(ctx context.Context, id, body string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET body = $1, updated_at = NOW() WHERE id = $2
	`, body, id)
	if err != nil {
		return fmt.Errorf("save body: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (r *QueueRepo) UpdateContent(ctx context.Context, id, subject, body string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET subject = $1, body = $2, is_edited = TRUE, updated_at = NOW()
		WHERE id = $3
	`, subject, body, id)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (r *QueueRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET status = $1, sent_at = $2, updated_at = NOW() WHERE id = $3
	`, domain.QueueSent, at, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *QueueRepo) MarkFailed(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3
	`, domain.QueueFailed, message, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetStuck requeues processing rows whose claim is older than the cutoff.
// A worker that died mid-batch leaves rows here; the sweep puts them back in
// play.
func (r *QueueRepo) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`, domain.QueueQueued, domain.QueueProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

func (r *QueueRepo) CountByStatus(ctx context.Context, campaignID string) (map[domain.QueueItemStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM email_queue WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.QueueItemStatus]int)
	for rows.Next() {
		var status domain.QueueItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *QueueRepo) CountScheduledAfter(ctx context.Context, campaignID string, t time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_queue
		WHERE campaign_id = $1 AND status = $2 AND scheduled_for > $3
	`, campaignID, domain.QueueQueued, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count future scheduled: %w", err)
	}
	return n, nil
}
