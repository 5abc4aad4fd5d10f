// Package activity owns the append-only audit trail: who did what to which
// task, when, with a human-readable summary. Rows are written inside the
// mutation's transaction and never touched again.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tasktrail/internal/domain"
)

type Log struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one audit event in the caller's transaction.
func (l Log) Append(ctx context.Context, tx *sql.Tx, taskID string, typ domain.ActivityType, performerID, details string) error {
	if l.Now == nil {
		l.Now = time.Now
	}
	ts := l.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO activity_events(task_id,type,performed_by,ts,details) VALUES (?,?,?,?,?)`,
		taskID, typ, performerID, ts, details)
	if err != nil {
		return fmt.Errorf("append activity event: %w", err)
	}
	return nil
}

// ListByTask returns a task's audit events newest first. Ties on the
// timestamp are broken by insertion order.
func (l Log) ListByTask(ctx context.Context, taskID string) ([]domain.ActivityEvent, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT id,task_id,type,performed_by,ts,details FROM activity_events WHERE task_id=? ORDER BY ts DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityEvent
	for rows.Next() {
		var e domain.ActivityEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &e.PerformedBy, &e.TS, &e.Details); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountByTask reports how many audit events exist for a task.
func (l Log) CountByTask(ctx context.Context, taskID string) (int, error) {
	var count int
	err := l.DB.QueryRowContext(ctx, `SELECT count(*) FROM activity_events WHERE task_id=?`, taskID).Scan(&count)
	return count, err
}
