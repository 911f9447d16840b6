package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"goalpace/internal/domain"
	"goalpace/internal/events"
)

// Repo is the SQLite-backed achievement ledger store.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = domain.ErrNotFound

func New(db *sql.DB) Repo {
	return Repo{DB: db, Events: events.Writer{}, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Claim marks (pool, periodKey) claimed and bumps the pool level in one
// transaction. The conditional upsert only changes a row that is absent or
// unclaimed, so the affected-row count identifies the single winner.
func (r Repo) Claim(ctx context.Context, pool, periodKey string) (domain.ClaimResult, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	defer tx.Rollback()

	ts := r.now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO achievement_claims(pool,period_key,claimed,claimed_at) VALUES (?,?,1,?)
ON CONFLICT(pool,period_key) DO UPDATE SET claimed=1, claimed_at=excluded.claimed_at WHERE achievement_claims.claimed=0`,
		pool, periodKey, ts)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("mark claimed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if affected == 0 {
		level, err := levelTx(ctx, tx, pool)
		if err != nil {
			return domain.ClaimResult{}, err
		}
		return domain.ClaimResult{Claimed: false, Level: level}, nil
	}

	var level int
	err = tx.QueryRowContext(ctx, `INSERT INTO achievement_pools(pool,level,updated_at) VALUES (?,1,?)
ON CONFLICT(pool) DO UPDATE SET level=achievement_pools.level+1, updated_at=excluded.updated_at RETURNING level`,
		pool, ts).Scan(&level)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("increment level: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE achievement_claims SET level=? WHERE pool=? AND period_key=?`, level, pool, periodKey); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("record claim level: %w", err)
	}
	if err := r.Events.Append(ctx, tx, events.TypeAchievementClaimed, "pool", pool, events.Payload{
		"pool":       pool,
		"period_key": periodKey,
		"level":      level,
	}); err != nil {
		return domain.ClaimResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{Claimed: true, Level: level}, nil
}

func (r Repo) Get(ctx context.Context, pool, periodKey string) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var claimed int
	err := r.DB.QueryRowContext(ctx, `SELECT pool,period_key,claimed,level,COALESCE(claimed_at,'') FROM achievement_claims WHERE pool=? AND period_key=?`, pool, periodKey).
		Scan(&e.Pool, &e.PeriodKey, &claimed, &e.Level, &e.ClaimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Claimed = claimed == 1
	return e, nil
}

func (r Repo) Level(ctx context.Context, pool string) (int, error) {
	var level int
	err := r.DB.QueryRowContext(ctx, `SELECT level FROM achievement_pools WHERE pool=?`, pool).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return level, err
}

func levelTx(ctx context.Context, tx *sql.Tx, pool string) (int, error) {
	var level int
	err := tx.QueryRowContext(ctx, `SELECT level FROM achievement_pools WHERE pool=?`, pool).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return level, err
}

// ListClaims returns the claimed periods of a pool, newest level first.
func (r Repo) ListClaims(ctx context.Context, pool string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT pool,period_key,claimed,level,COALESCE(claimed_at,'') FROM achievement_claims
WHERE pool=? AND claimed=1 ORDER BY level DESC LIMIT ?`, pool, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var claimed int
		if err := rows.Scan(&e.Pool, &e.PeriodKey, &claimed, &e.Level, &e.ClaimedAt); err != nil {
			return nil, err
		}
		e.Claimed = claimed == 1
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally of one type.
func (r Repo) LatestEventID(ctx context.Context, evtType string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// RecordEvent appends a standalone event, such as a composed report.
func (r Repo) RecordEvent(ctx context.Context, evtType, entityKind, entityID string, payload events.Payload) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Events.Append(ctx, tx, evtType, entityKind, entityID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
