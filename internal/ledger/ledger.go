package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"applypilot-engine/internal/domain"
)

// Ledger is the durable per-tenant record of every listing ever seen, its
// current stage, and terminal outcome. It is the authority for idempotency:
// all pipeline state lives here, keyed by (tenant_id, listing_id).
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS job_records (
  tenant_id TEXT NOT NULL,
  listing_id TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  detail_url TEXT NOT NULL DEFAULT '',
  stage TEXT NOT NULL DEFAULT 'seen',
  score REAL,
  skip_reason TEXT NOT NULL DEFAULT '',
  contact_address TEXT NOT NULL DEFAULT '',
  sent_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (tenant_id, listing_id)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_job_records_stage
ON job_records(tenant_id, stage);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

// resettable reports whether an existing record should be re-evaluated when
// the same listing is seen again on a later run. Sent and in-flight sending
// records are sticky forever, and ambiguous-dispatch stays sticky because
// the mail may already have gone out; every other outcome (a bad filter
// day, a flaky oracle, a missing contact) gets a fresh attempt.
func resettable(stage domain.Stage, skipReason string) bool {
	switch stage {
	case domain.StageSent, domain.StageSending:
		return false
	case domain.StageSkipped:
		return skipReason != domain.SkipAmbiguousDispatch
	default:
		return true
	}
}

// UpsertSeen records the first sighting of a listing for a tenant, or
// returns the existing record. Idempotent: re-sighting a record in a
// terminal-for-all-runs stage (sent, sending, ambiguous-dispatch) returns
// it unchanged; other prior outcomes are reset to seen so the listing is
// re-evaluated under the current policy.
func (l *Ledger) UpsertSeen(ctx context.Context, tenantID string, listing domain.Listing) (*domain.JobRecord, error) {
	now := time.Now().UTC()

	res, err := l.db.ExecContext(ctx, `
INSERT OR IGNORE INTO job_records
  (tenant_id, listing_id, company, title, detail_url, stage, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 'seen', ?, ?);`,
		tenantID, listing.ID, listing.Company, listing.Title, listing.DetailURL,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert seen: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return l.Get(ctx, tenantID, listing.ID)
	}

	// Row existed already. Decide whether this run re-evaluates it.
	rec, err := l.Get(ctx, tenantID, listing.ID)
	if err != nil {
		return nil, err
	}
	if !resettable(rec.Stage, rec.SkipReason) {
		return rec, nil
	}
	if rec.Stage == domain.StageSeen {
		return rec, nil
	}

	_, err = l.db.ExecContext(ctx, `
UPDATE job_records
SET stage = 'seen', skip_reason = '', score = NULL, updated_at = ?
WHERE tenant_id = ? AND listing_id = ?;`,
		now.Format(time.RFC3339), tenantID, listing.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("reset record: %w", err)
	}
	return l.Get(ctx, tenantID, listing.ID)
}

// AdvanceFields carries the stage-specific columns set alongside a
// transition. Nil pointers leave the column untouched.
type AdvanceFields struct {
	Score          *float64
	SkipReason     string
	ContactAddress string
	SentAt         *time.Time
}

// Advance moves a record to newStage, enforcing the monotonic state
// machine. The guarded UPDATE (stage checked in the WHERE clause) is the
// serialization point: two concurrent advances of the same record cannot
// both succeed. Returns domain.ErrInvalidTransition when newStage is not
// reachable from the record's current stage.
func (l *Ledger) Advance(ctx context.Context, tenantID, listingID string, newStage domain.Stage, fields AdvanceFields) (*domain.JobRecord, error) {
	if !newStage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidTransition, newStage)
	}

	rec, err := l.Get(ctx, tenantID, listingID)
	if err != nil {
		return nil, err
	}
	if !rec.Stage.CanAdvanceTo(newStage) {
		return nil, fmt.Errorf("%w: %s -> %s (tenant=%s listing=%s)",
			domain.ErrInvalidTransition, rec.Stage, newStage, tenantID, listingID)
	}
	if newStage == domain.StageSent && fields.SentAt == nil {
		now := time.Now().UTC()
		fields.SentAt = &now
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var sentAt any
	if fields.SentAt != nil {
		sentAt = fields.SentAt.UTC().Format(time.RFC3339)
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE job_records
SET stage = ?,
    score = COALESCE(?, score),
    skip_reason = CASE WHEN ? != '' THEN ? ELSE skip_reason END,
    contact_address = CASE WHEN ? != '' THEN ? ELSE contact_address END,
    sent_at = COALESCE(?, sent_at),
    updated_at = ?
WHERE tenant_id = ? AND listing_id = ? AND stage = ?;`,
		string(newStage),
		fields.Score,
		fields.SkipReason, fields.SkipReason,
		fields.ContactAddress, fields.ContactAddress,
		sentAt,
		now,
		tenantID, listingID, string(rec.Stage),
	)
	if err != nil {
		return nil, fmt.Errorf("advance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race: the record moved under us since the read above.
		return nil, fmt.Errorf("%w: concurrent update of %s/%s",
			domain.ErrInvalidTransition, tenantID, listingID)
	}

	return l.Get(ctx, tenantID, listingID)
}

func (l *Ledger) Get(ctx context.Context, tenantID, listingID string) (*domain.JobRecord, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT tenant_id, listing_id, company, title, detail_url, stage, score,
       skip_reason, contact_address, sent_at, created_at, updated_at
FROM job_records
WHERE tenant_id = ? AND listing_id = ?;`, tenantID, listingID)
	return scanRecord(row)
}

// ListByStage returns a tenant's records in the given stage, oldest first.
// Used to resume partially completed runs.
func (l *Ledger) ListByStage(ctx context.Context, tenantID string, stage domain.Stage) ([]domain.JobRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT tenant_id, listing_id, company, title, detail_url, stage, score,
       skip_reason, contact_address, sent_at, created_at, updated_at
FROM job_records
WHERE tenant_id = ? AND stage = ?
ORDER BY updated_at ASC;`, tenantID, string(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

type ListOpts struct {
	Stage      domain.Stage
	SkipReason string
	Limit      int
}

// List returns a tenant's records for dashboard/reporting consumption.
func (l *Ledger) List(ctx context.Context, tenantID string, opts ListOpts) ([]domain.JobRecord, error) {
	if opts.Limit <= 0 || opts.Limit > 2000 {
		opts.Limit = 500
	}

	query := `
SELECT tenant_id, listing_id, company, title, detail_url, stage, score,
       skip_reason, contact_address, sent_at, created_at, updated_at
FROM job_records
WHERE tenant_id = ?`
	args := []any{tenantID}

	if opts.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(opts.Stage))
	}
	if opts.SkipReason != "" {
		query += ` AND skip_reason = ?`
		args = append(args, opts.SkipReason)
	}
	query += `
ORDER BY updated_at DESC
LIMIT ?;`
	args = append(args, opts.Limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CloseStaleSending resolves records stuck in the sending sub-state longer
// than olderThan. A crash between a successful send and the ledger write is
// ambiguous: we refuse to guess and mark them skipped/ambiguous-dispatch
// for manual review rather than risking a double send.
func (l *Ledger) CloseStaleSending(ctx context.Context, tenantID string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := l.db.ExecContext(ctx, `
UPDATE job_records
SET stage = 'skipped', skip_reason = ?, updated_at = ?
WHERE tenant_id = ? AND stage = 'sending' AND updated_at < ?;`,
		domain.SkipAmbiguousDispatch, time.Now().UTC().Format(time.RFC3339),
		tenantID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("close stale sending: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats aggregates a tenant's records by stage, plus skip reason counts.
type Stats struct {
	Total      int            `json:"total"`
	ByStage    map[string]int `json:"byStage"`
	BySkip     map[string]int `json:"bySkipReason"`
}

func (l *Ledger) Stats(ctx context.Context, tenantID string) (Stats, error) {
	st := Stats{ByStage: map[string]int{}, BySkip: map[string]int{}}

	rows, err := l.db.QueryContext(ctx, `
SELECT stage, COUNT(*) FROM job_records WHERE tenant_id = ? GROUP BY stage;`, tenantID)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return st, err
		}
		st.ByStage[stage] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	skipRows, err := l.db.QueryContext(ctx, `
SELECT skip_reason, COUNT(*) FROM job_records
WHERE tenant_id = ? AND skip_reason != ''
GROUP BY skip_reason;`, tenantID)
	if err != nil {
		return st, err
	}
	defer skipRows.Close()
	for skipRows.Next() {
		var reason string
		var n int
		if err := skipRows.Scan(&reason, &n); err != nil {
			return st, err
		}
		st.BySkip[reason] = n
	}
	return st, skipRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	var stage string
	var score sql.NullFloat64
	var sentAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.TenantID, &rec.ListingID, &rec.Company, &rec.Title, &rec.DetailURL,
		&stage, &score, &rec.SkipReason, &rec.ContactAddress,
		&sentAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	rec.Stage = domain.Stage(stage)
	if score.Valid {
		v := score.Float64
		rec.Score = &v
	}
	if sentAt.Valid && sentAt.String != "" {
		if t, perr := time.Parse(time.RFC3339, sentAt.String); perr == nil {
			rec.SentAt = &t
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]domain.JobRecord, error) {
	var out []domain.JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
