// Package lifecycle is the task lifecycle engine. Every state-changing
// operation validates its input, applies the transition policy, bumps the
// task's version counter, and appends one snapshot and one audit event —
// all inside a single transaction.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/activity"
	"tasktrail/internal/config"
	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
	"tasktrail/internal/versions"
)

type Lifecycle struct {
	DB       *sql.DB
	Repo     repo.Repo
	Versions versions.Store
	Activity activity.Log
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Lifecycle {
	return Lifecycle{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Versions: versions.Store{DB: db},
		Activity: activity.Log{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (l Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	CreatorID   string
	Priority    domain.Priority
	AssigneeID  string
	DueDate     string
	Tags        []string
}

// CreateUser registers a user in the directory. Emails must be unique.
func (l Lifecycle) CreateUser(ctx context.Context, name, email string, role domain.Role) (domain.User, error) {
	if name == "" {
		return domain.User{}, ValidationError{Field: "name", Reason: "is required"}
	}
	if email == "" {
		return domain.User{}, ValidationError{Field: "email", Reason: "is required"}
	}
	if !role.Valid() {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown value %q", role)}
	}
	u := domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: l.now().UTC().Format(time.RFC3339),
	}
	if err := l.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Create validates the creator and optional assignee, persists the task at
// version 1, and records the initial snapshot and TASK_CREATED event.
func (l Lifecycle) Create(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.Description == "" {
		return domain.Task{}, ValidationError{Field: "description", Reason: "is required"}
	}
	if opts.Priority == "" {
		opts.Priority = l.Config.DefaultPriority()
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", opts.Priority)}
	}
	if opts.DueDate != "" {
		if _, err := time.Parse("2006-01-02", opts.DueDate); err != nil {
			return domain.Task{}, ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	creator, err := l.Repo.GetUser(ctx, opts.CreatorID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("resolve creator %s: %w", opts.CreatorID, err)
	}
	if opts.AssigneeID != "" {
		if _, err := l.Repo.GetUser(ctx, opts.AssigneeID); err != nil {
			return domain.Task{}, fmt.Errorf("resolve assignee %s: %w", opts.AssigneeID, err)
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := l.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusOpen,
		Priority:    opts.Priority,
		CreatedBy:   creator.ID,
		Tags:        opts.Tags,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.AssigneeID != "" {
		t.AssignedTo = &opts.AssigneeID
	}
	if opts.DueDate != "" {
		t.DueDate = &opts.DueDate
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := l.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := l.Versions.Append(ctx, tx, l.snapshot(t, "Task Created")); err != nil {
		return domain.Task{}, err
	}
	if err := l.Activity.Append(ctx, tx, t.ID, domain.ActivityTaskCreated, creator.ID, "Task Created"); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ChangeStatus moves a task through the status state machine. Denied
// transitions leave no trace; self-transitions are recorded as no-op changes.
func (l Lifecycle) ChangeStatus(ctx context.Context, taskID string, newStatus domain.Status, performerID string) (domain.Task, error) {
	if !newStatus.Valid() {
		return domain.Task{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", newStatus)}
	}
	return l.mutate(ctx, taskID, performerID, func(t *domain.Task) (domain.ActivityType, string, error) {
		if err := ensureTransition(t.Status, newStatus); err != nil {
			return "", "", err
		}
		details := fmt.Sprintf("Status changed from %s to %s", t.Status, newStatus)
		t.Status = newStatus
		return domain.ActivityStatusChanged, details, nil
	})
}

// Reassign sets or clears the assignee. A nil assignee clears it; a non-nil
// id must resolve in the user directory.
func (l Lifecycle) Reassign(ctx context.Context, taskID string, assigneeID *string, performerID string) (domain.Task, error) {
	var details string
	if assigneeID != nil {
		assignee, err := l.Repo.GetUser(ctx, *assigneeID)
		if err != nil {
			return domain.Task{}, fmt.Errorf("resolve assignee %s: %w", *assigneeID, err)
		}
		details = fmt.Sprintf("Task assigned to %s", assignee.Name)
	} else {
		details = "Task unassigned"
	}
	return l.mutate(ctx, taskID, performerID, func(t *domain.Task) (domain.ActivityType, string, error) {
		t.AssignedTo = assigneeID
		return domain.ActivityAssigneeChanged, details, nil
	})
}

// ChangePriority is unconditional; no policy restricts priority changes.
func (l Lifecycle) ChangePriority(ctx context.Context, taskID string, newPriority domain.Priority, performerID string) (domain.Task, error) {
	if !newPriority.Valid() {
		return domain.Task{}, ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", newPriority)}
	}
	return l.mutate(ctx, taskID, performerID, func(t *domain.Task) (domain.ActivityType, string, error) {
		details := fmt.Sprintf("Priority changed from %s to %s", t.Priority, newPriority)
		t.Priority = newPriority
		return domain.ActivityPriorityChanged, details, nil
	})
}

// ChangeDueDate sets or clears the due date; nil clears it.
func (l Lifecycle) ChangeDueDate(ctx context.Context, taskID string, dueDate *string, performerID string) (domain.Task, error) {
	if dueDate != nil {
		if _, err := time.Parse("2006-01-02", *dueDate); err != nil {
			return domain.Task{}, ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	return l.mutate(ctx, taskID, performerID, func(t *domain.Task) (domain.ActivityType, string, error) {
		details := fmt.Sprintf("Due Date changed from %s to %s", renderDate(t.DueDate), renderDate(dueDate))
		t.DueDate = dueDate
		return domain.ActivityDueDateChanged, details, nil
	})
}

// mutate runs one versioned mutation: read the task optimistically, apply fn,
// then in a single transaction resolve the performer, write the task back
// guarded by the version it was read at, snapshot, and audit. A competing
// write landing between the read and the guarded write surfaces as
// ConflictError, and the losing transaction rolls back whole.
func (l Lifecycle) mutate(ctx context.Context, taskID, performerID string, fn func(t *domain.Task) (domain.ActivityType, string, error)) (domain.Task, error) {
	t, err := l.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	readVersion := t.Version

	typ, details, err := fn(&t)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	performer, err := l.Repo.GetUserTx(ctx, tx, performerID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("resolve performer %s: %w", performerID, err)
	}

	t.Version = readVersion + 1
	t.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	ok, err := l.Repo.UpdateTaskCAS(ctx, tx, t, readVersion)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if !ok {
		return domain.Task{}, ConflictError{TaskID: taskID, Version: readVersion}
	}
	if err := l.Versions.Append(ctx, tx, l.snapshot(t, details)); err != nil {
		return domain.Task{}, err
	}
	if err := l.Activity.Append(ctx, tx, t.ID, typ, performer.ID, details); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AddComment attaches an immutable comment and its COMMENT_ADDED event. It
// does not touch the task's version counter and writes no snapshot.
func (l Lifecycle) AddComment(ctx context.Context, taskID, authorID, text string) (domain.Comment, error) {
	if text == "" {
		return domain.Comment{}, ValidationError{Field: "text", Reason: "is required"}
	}
	t, err := l.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	author, err := l.Repo.GetUser(ctx, authorID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("resolve author %s: %w", authorID, err)
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		TaskID:    t.ID,
		AuthorID:  author.ID,
		Text:      text,
		CreatedAt: l.now().UTC().Format(time.RFC3339),
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := l.Activity.Append(ctx, tx, t.ID, domain.ActivityCommentAdded, author.ID, fmt.Sprintf("Comment added by %s", author.Name)); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// GetHistory returns a task's snapshots, newest version first.
func (l Lifecycle) GetHistory(ctx context.Context, taskID string) ([]domain.TaskVersion, error) {
	exists, err := l.Repo.TaskExists(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("resolve task %s: %w", taskID, repo.ErrNotFound)
	}
	return l.Versions.ListByTask(ctx, taskID)
}

// GetActivity returns a task's audit events, newest first.
func (l Lifecycle) GetActivity(ctx context.Context, taskID string) ([]domain.ActivityEvent, error) {
	exists, err := l.Repo.TaskExists(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("resolve task %s: %w", taskID, repo.ErrNotFound)
	}
	return l.Activity.ListByTask(ctx, taskID)
}

func (l Lifecycle) snapshot(t domain.Task, summary string) domain.TaskVersion {
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)
	return domain.TaskVersion{
		TaskID:        t.ID,
		Version:       t.Version,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		CreatedBy:     t.CreatedBy,
		AssignedTo:    t.AssignedTo,
		DueDate:       t.DueDate,
		Tags:          tags,
		ChangeSummary: summary,
		VersionedAt:   l.now().UTC().Format(time.RFC3339),
	}
}

func renderDate(d *string) string {
	if d == nil || *d == "" {
		return "none"
	}
	return *d
}

// IsNotFound reports whether err is the repo's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
