package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktrail/internal/domain"
)

// ErrDuplicateEmail is returned when a user create collides on email.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrUserHasActiveTasks blocks deactivation while tasks are still assigned.
var ErrUserHasActiveTasks = errors.New("user has active assigned tasks")

const userColumns = `id,name,email,role,active,created_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser relies on the schema's UNIQUE(email) constraint rather than a
// check-then-insert, so concurrent duplicates cannot slip past the check.
func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.Role, u.Active, u.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

type UserFilters struct {
	Role       domain.Role
	ActiveOnly bool
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	var clauses []string
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY name ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, id, name string, role domain.Role) (domain.User, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET name=?, role=? WHERE id=?`, name, role, id)
	if err != nil {
		return domain.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.User{}, ErrNotFound
	}
	return r.GetUser(ctx, id)
}

// DeactivateUser soft-deletes a user. Users with tasks still assigned in a
// non-terminal status cannot be deactivated.
func (r Repo) DeactivateUser(ctx context.Context, id string) error {
	if _, err := r.GetUser(ctx, id); err != nil {
		return err
	}
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE assigned_to=? AND status IN (?,?)`,
		id, domain.StatusOpen, domain.StatusInProgress).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrUserHasActiveTasks, id)
	}
	_, err = r.DB.ExecContext(ctx, `UPDATE users SET active=0 WHERE id=?`, id)
	return err
}
