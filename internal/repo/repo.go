package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"tasktrail/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,description,status,priority,created_by,assigned_to,due_date,tags_json,version,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignedTo, dueDate, tagsJSON sql.NullString
	err := scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedBy,
		&assignedTo, &dueDate, &tagsJSON, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if tagsJSON.Valid {
		t.Tags = decodeTags(tagsJSON.String)
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) TaskExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.CreatedBy,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.DueDate), encodeTags(t.Tags),
		t.Version, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskCAS writes the mutated task guarded by the version it was read at.
// The UPDATE matches zero rows when a concurrent mutation won the race; callers
// must treat that as a conflict and abort the transaction.
func (r Repo) UpdateTaskCAS(ctx context.Context, tx *sql.Tx, t domain.Task, readVersion int) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, assigned_to=?, due_date=?, tags_json=?, version=?, updated_at=? WHERE id=? AND version=?`,
		t.Title, t.Description, t.Status, t.Priority,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.DueDate), encodeTags(t.Tags),
		t.Version, t.UpdatedAt, t.ID, readVersion)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
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

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
