package repo

import (
	"context"
	"strings"
	"time"

	"tasktrail/internal/domain"
)

// TaskFilters narrows and orders ListTasks results.
type TaskFilters struct {
	Status     domain.Status
	Priority   domain.Priority
	AssigneeID string
	CreatorID  string
	Unassigned bool
	Overdue    bool
	Tag        string
	Sort       string // created_at (default), priority, due_date
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if f.CreatorID != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatorID)
	}
	if f.Overdue {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date < ? AND status NOT IN (?,?)")
		args = append(args, time.Now().UTC().Format("2006-01-02"), domain.StatusCompleted, domain.StatusCancelled)
	}
	if f.Tag != "" {
		// Tags are stored as a JSON array; match on the quoted element.
		clauses = append(clauses, "tags_json LIKE ?")
		args = append(args, `%"`+f.Tag+`"%`)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := taskOrder(f.Sort)
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func taskOrder(sort string) string {
	switch sort {
	case "priority":
		return `ORDER BY CASE priority
			WHEN 'CRITICAL' THEN 4
			WHEN 'HIGH' THEN 3
			WHEN 'MEDIUM' THEN 2
			WHEN 'LOW' THEN 1
			ELSE 0 END DESC, created_at DESC, id DESC`
	case "due_date":
		return `ORDER BY due_date IS NULL, due_date ASC, id ASC`
	default:
		return `ORDER BY created_at DESC, id DESC`
	}
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{}
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
