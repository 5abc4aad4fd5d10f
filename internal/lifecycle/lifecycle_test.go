package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasktrail/internal/config"
	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/lifecycle"
	"tasktrail/internal/migrate"
)

type testEnv struct {
	Lifecycle lifecycle.Lifecycle
	Ctx       context.Context
	Alice     domain.User
	Bob       domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := lifecycle.New(conn, config.Default())
	fixed := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	l.Now = fixed
	l.Activity.Now = fixed
	ctx := context.Background()
	alice, err := l.CreateUser(ctx, "Alice", "alice@example.com", domain.RoleManager)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := l.CreateUser(ctx, "Bob", "bob@example.com", domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return testEnv{Lifecycle: l, Ctx: ctx, Alice: alice, Bob: bob}
}

func mustCreate(t *testing.T, env testEnv, opts lifecycle.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.CreatorID == "" {
		opts.CreatorID = env.Alice.ID
	}
	if opts.Title == "" {
		opts.Title = "Ship feature"
	}
	if opts.Description == "" {
		opts.Description = "Write the code"
	}
	task, err := env.Lifecycle.Create(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{
		AssigneeID: env.Bob.ID,
		DueDate:    "2024-02-01",
		Tags:       []string{"backend", "urgent"},
	})
	if task.Version != 1 {
		t.Fatalf("expected version 1, got %d", task.Version)
	}
	if task.Status != domain.StatusOpen {
		t.Fatalf("expected OPEN, got %s", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default MEDIUM, got %s", task.Priority)
	}
	history, err := env.Lifecycle.GetHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ChangeSummary != "Task Created" {
		t.Fatalf("expected one 'Task Created' snapshot, got %+v", history)
	}
	events, err := env.Lifecycle.GetActivity(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.ActivityTaskCreated {
		t.Fatalf("expected one TASK_CREATED event, got %+v", events)
	}
	if events[0].PerformedBy != env.Alice.ID {
		t.Fatalf("expected creator attribution, got %s", events[0].PerformedBy)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts lifecycle.TaskCreateOptions
	}{
		{"missing title", lifecycle.TaskCreateOptions{Description: "d", CreatorID: env.Alice.ID}},
		{"missing description", lifecycle.TaskCreateOptions{Title: "t", CreatorID: env.Alice.ID}},
		{"bad priority", lifecycle.TaskCreateOptions{Title: "t", Description: "d", CreatorID: env.Alice.ID, Priority: "URGENT"}},
		{"bad due date", lifecycle.TaskCreateOptions{Title: "t", Description: "d", CreatorID: env.Alice.ID, DueDate: "tomorrow"}},
	}
	for _, tc := range cases {
		_, err := env.Lifecycle.Create(env.Ctx, tc.opts)
		var ve lifecycle.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
	_, err := env.Lifecycle.Create(env.Ctx, lifecycle.TaskCreateOptions{Title: "t", Description: "d", CreatorID: "ghost"})
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found for unknown creator, got %v", err)
	}
	_, err = env.Lifecycle.Create(env.Ctx, lifecycle.TaskCreateOptions{Title: "t", Description: "d", CreatorID: env.Alice.ID, AssigneeID: "ghost"})
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found for unknown assignee, got %v", err)
	}
}

func TestStatusTransitionGrid(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		path    []domain.Status
		blocked domain.Status
	}{
		{path: []domain.Status{domain.StatusInProgress, domain.StatusCompleted}, blocked: domain.StatusOpen},
		{path: []domain.Status{domain.StatusCancelled, domain.StatusOpen}, blocked: domain.StatusCompleted},
		{path: []domain.Status{domain.StatusInProgress, domain.StatusCancelled}, blocked: domain.StatusInProgress},
	}
	for _, tc := range cases {
		task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
		for _, next := range tc.path {
			var err error
			task, err = env.Lifecycle.ChangeStatus(env.Ctx, task.ID, next, env.Alice.ID)
			if err != nil {
				t.Fatalf("to %s: %v", next, err)
			}
			if task.Status != next {
				t.Fatalf("expected %s, got %s", next, task.Status)
			}
		}
		_, err := env.Lifecycle.ChangeStatus(env.Ctx, task.ID, tc.blocked, env.Alice.ID)
		var ite lifecycle.InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError for %s -> %s, got %v", task.Status, tc.blocked, err)
		}
		if ite.From != task.Status || ite.To != tc.blocked {
			t.Fatalf("error carries wrong endpoints: %+v", ite)
		}
	}
}

func TestSelfTransitionAllowed(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	task, err := env.Lifecycle.ChangeStatus(env.Ctx, task.ID, domain.StatusOpen, env.Alice.ID)
	if err != nil {
		t.Fatalf("self transition: %v", err)
	}
	if task.Version != 2 {
		t.Fatalf("self transition should still bump version, got %d", task.Version)
	}
}

func TestDeniedTransitionLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	_, err := env.Lifecycle.ChangeStatus(env.Ctx, task.ID, domain.StatusCompleted, env.Alice.ID)
	if err == nil {
		t.Fatalf("expected denied OPEN -> COMPLETED")
	}
	got, err := env.Lifecycle.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Version != 1 || got.Status != domain.StatusOpen {
		t.Fatalf("denied transition mutated the task: %+v", got)
	}
	snapshots, _ := env.Lifecycle.Versions.CountByTask(env.Ctx, task.ID)
	events, _ := env.Lifecycle.Activity.CountByTask(env.Ctx, task.ID)
	if snapshots != 1 || events != 1 {
		t.Fatalf("denied transition left a trace: %d snapshots, %d events", snapshots, events)
	}
}

func TestMonotonicVersioning(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	if _, err := env.Lifecycle.ChangeStatus(env.Ctx, task.ID, domain.StatusInProgress, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Lifecycle.ChangePriority(env.Ctx, task.ID, domain.PriorityHigh, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Lifecycle.Reassign(env.Ctx, task.ID, &env.Bob.ID, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	due := "2024-03-01"
	if _, err := env.Lifecycle.ChangeDueDate(env.Ctx, task.ID, &due, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	history, err := env.Lifecycle.GetHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 snapshots, got %d", len(history))
	}
	// newest first, versions 5..1 with no gaps
	for i, v := range history {
		want := len(history) - i
		if v.Version != want {
			t.Fatalf("snapshot %d: expected version %d, got %d", i, want, v.Version)
		}
	}
	got, _ := env.Lifecycle.Repo.GetTask(env.Ctx, task.ID)
	if got.Version != 5 {
		t.Fatalf("expected task at version 5, got %d", got.Version)
	}
}

func TestChangeSummaries(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	if _, err := env.Lifecycle.ChangeStatus(env.Ctx, task.ID, domain.StatusInProgress, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Lifecycle.Reassign(env.Ctx, task.ID, &env.Bob.ID, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Lifecycle.Reassign(env.Ctx, task.ID, nil, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Lifecycle.ChangePriority(env.Ctx, task.ID, domain.PriorityCritical, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	due := "2024-02-15"
	if _, err := env.Lifecycle.ChangeDueDate(env.Ctx, task.ID, &due, env.Alice.ID); err != nil {
		t.Fatal(err)
	}
	history, err := env.Lifecycle.GetHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []string{
		"Due Date changed from none to 2024-02-15",
		"Priority changed from MEDIUM to CRITICAL",
		"Task unassigned",
		"Task assigned to Bob",
		"Status changed from OPEN to IN_PROGRESS",
		"Task Created",
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d snapshots, got %d", len(want), len(history))
	}
	for i, v := range history {
		if v.ChangeSummary != want[i] {
			t.Fatalf("snapshot %d: expected %q, got %q", i, want[i], v.ChangeSummary)
		}
	}
}

func TestCommentDoesNotBumpVersion(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	c, err := env.Lifecycle.AddComment(env.Ctx, task.ID, env.Bob.ID, "looks good")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if c.AuthorID != env.Bob.ID || c.Text != "looks good" {
		t.Fatalf("unexpected comment: %+v", c)
	}
	got, _ := env.Lifecycle.Repo.GetTask(env.Ctx, task.ID)
	if got.Version != 1 {
		t.Fatalf("comment bumped version to %d", got.Version)
	}
	snapshots, _ := env.Lifecycle.Versions.CountByTask(env.Ctx, task.ID)
	if snapshots != 1 {
		t.Fatalf("comment wrote a snapshot")
	}
	events, err := env.Lifecycle.GetActivity(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Type != domain.ActivityCommentAdded || events[0].Details != "Comment added by Bob" {
		t.Fatalf("unexpected comment event: %+v", events[0])
	}
	_, err = env.Lifecycle.AddComment(env.Ctx, task.ID, env.Bob.ID, "")
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty text, got %v", err)
	}
}

func TestStaleWriteConflict(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	tx, err := env.Lifecycle.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	stale := task
	stale.Version = 2
	ok, err := env.Lifecycle.Repo.UpdateTaskCAS(env.Ctx, tx, stale, 7)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatalf("stale write was accepted")
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Lifecycle.ChangeStatus(env.Ctx, "missing", domain.StatusInProgress, env.Alice.ID)
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = env.Lifecycle.GetHistory(env.Ctx, "missing")
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found history, got %v", err)
	}
	_, err = env.Lifecycle.GetActivity(env.Ctx, "missing")
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found activity, got %v", err)
	}
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	_, err = env.Lifecycle.ChangeStatus(env.Ctx, task.ID, domain.StatusInProgress, "ghost")
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found performer, got %v", err)
	}
}

func TestReassignUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{})
	ghost := "ghost"
	_, err := env.Lifecycle.Reassign(env.Ctx, task.ID, &ghost, env.Alice.ID)
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, _ := env.Lifecycle.Repo.GetTask(env.Ctx, task.ID)
	if got.Version != 1 || got.AssignedTo != nil {
		t.Fatalf("failed reassign left a trace: %+v", got)
	}
}

func TestClearDueDate(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreate(t, env, lifecycle.TaskCreateOptions{DueDate: "2024-02-01"})
	task, err := env.Lifecycle.ChangeDueDate(env.Ctx, task.ID, nil, env.Alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if task.DueDate != nil {
		t.Fatalf("expected cleared due date")
	}
	events, _ := env.Lifecycle.GetActivity(env.Ctx, task.ID)
	if events[0].Details != "Due Date changed from 2024-02-01 to none" {
		t.Fatalf("unexpected details: %q", events[0].Details)
	}
}
