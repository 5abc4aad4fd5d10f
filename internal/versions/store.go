// Package versions owns the append-only log of immutable task snapshots.
// One row is written per successful task mutation, inside the mutation's own
// transaction; rows are never updated or deleted.
package versions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tasktrail/internal/domain"
)

type Store struct {
	DB *sql.DB
}

// Append writes one snapshot row in the caller's transaction.
func (s Store) Append(ctx context.Context, tx *sql.Tx, v domain.TaskVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO task_versions(id,task_id,version,title,description,status,priority,created_by,assigned_to,due_date,tags_json,change_summary,versioned_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.TaskID, v.Version, v.Title, v.Description, v.Status, v.Priority, v.CreatedBy,
		nullableStringPtr(v.AssignedTo), nullableStringPtr(v.DueDate), encodeTags(v.Tags),
		v.ChangeSummary, v.VersionedAt)
	if err != nil {
		return fmt.Errorf("append task version: %w", err)
	}
	return nil
}

// ListByTask returns all snapshots for a task, newest version first.
func (s Store) ListByTask(ctx context.Context, taskID string) ([]domain.TaskVersion, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,task_id,version,title,description,status,priority,created_by,assigned_to,due_date,tags_json,change_summary,versioned_at
FROM task_versions WHERE task_id=? ORDER BY version DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskVersion
	for rows.Next() {
		var v domain.TaskVersion
		var assignedTo, dueDate, tagsJSON sql.NullString
		if err := rows.Scan(&v.ID, &v.TaskID, &v.Version, &v.Title, &v.Description, &v.Status, &v.Priority,
			&v.CreatedBy, &assignedTo, &dueDate, &tagsJSON, &v.ChangeSummary, &v.VersionedAt); err != nil {
			return nil, err
		}
		if assignedTo.Valid {
			v.AssignedTo = &assignedTo.String
		}
		if dueDate.Valid {
			v.DueDate = &dueDate.String
		}
		if tagsJSON.Valid {
			_ = json.Unmarshal([]byte(tagsJSON.String), &v.Tags)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// CountByTask reports how many snapshots exist for a task.
func (s Store) CountByTask(ctx context.Context, taskID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM task_versions WHERE task_id=?`, taskID).Scan(&count)
	return count, err
}

func encodeTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(b)
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
