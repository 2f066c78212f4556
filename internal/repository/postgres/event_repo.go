package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const insertEvent = `
INSERT INTO events (id, kind, action_type, target_url, is_deeplink, has_deeplink, has_click_url, deeplink_priority, label, message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING created_at`

func eventArgs(e *model.Event) []any {
	return []any{e.ID, string(e.Kind), e.ActionType, e.TargetURL, e.IsDeeplink,
		e.HasDeeplink, e.HasClickURL, e.DeeplinkPriority, e.Label, e.Message}
}

func ensureID(e *model.Event) error {
	if e.ID != uuid.Nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// Insert stores e and fills ID and CreatedAt.
func (r *EventRepo) Insert(ctx context.Context, e *model.Event) error {
	if err := ensureID(e); err != nil {
		return err
	}
	err := r.db.Pool.QueryRow(ctx, insertEvent, eventArgs(e)...).Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("event %s: %w", e.ID, errs.ErrConflict)
	}
	return err
}

// InsertBatch stores all events in a single transaction.
func (r *EventRepo) InsertBatch(ctx context.Context, events []model.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	for i := range events {
		e := &events[i]
		if err = ensureID(e); err != nil {
			return err
		}
		if err = tx.QueryRow(ctx, insertEvent, eventArgs(e)...).Scan(&e.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("event[%d]: %w", i, errs.ErrConflict)
			}
			return err
		}
	}
	return nil
}

// ListSince returns events created after since, newest first.
func (r *EventRepo) ListSince(ctx context.Context, since time.Time, limit int) ([]model.Event, error) {
	const q = `
SELECT id, kind, action_type, target_url, is_deeplink, has_deeplink, has_click_url, deeplink_priority, label, message, created_at
FROM events
WHERE created_at > $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.ActionType, &e.TargetURL, &e.IsDeeplink, &e.HasDeeplink,
			&e.HasClickURL, &e.DeeplinkPriority, &e.Label, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = model.EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSince aggregates events created after since.
func (r *EventRepo) CountSince(ctx context.Context, since time.Time) ([]model.EventCount, error) {
	const q = `
SELECT kind, action_type, count(*)
FROM events
WHERE created_at > $1
GROUP BY kind, action_type
ORDER BY kind, action_type`
	rows, err := r.db.Pool.Query(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventCount
	for rows.Next() {
		var c model.EventCount
		var kind string
		if err := rows.Scan(&kind, &c.ActionType, &c.Count); err != nil {
			return nil, err
		}
		c.Kind = model.EventKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
