package domain

import "fmt"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Priority orders tasks by urgency. Higher score means more urgent.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (p Priority) Score() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// ActivityType classifies audit events.
type ActivityType string

const (
	ActivityTaskCreated     ActivityType = "TASK_CREATED"
	ActivityStatusChanged   ActivityType = "STATUS_CHANGED"
	ActivityPriorityChanged ActivityType = "PRIORITY_CHANGED"
	ActivityAssigneeChanged ActivityType = "ASSIGNEE_CHANGED"
	ActivityDueDateChanged  ActivityType = "DUE_DATE_CHANGED"
	ActivityCommentAdded    ActivityType = "COMMENT_ADDED"
)

// Role classifies users in the directory.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleManager   Role = "MANAGER"
	RoleDeveloper Role = "DEVELOPER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status" enum:"OPEN,IN_PROGRESS,COMPLETED,CANCELLED"`
	Priority    Priority `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	Tags        []string `json:"tags,omitempty"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// TaskVersion is an immutable snapshot of a task taken after a mutation.
type TaskVersion struct {
	ID            string   `json:"id"`
	TaskID        string   `json:"task_id"`
	Version       int      `json:"version"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Status        Status   `json:"status" enum:"OPEN,IN_PROGRESS,COMPLETED,CANCELLED"`
	Priority      Priority `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	CreatedBy     string   `json:"created_by"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
	DueDate       *string  `json:"due_date,omitempty" format:"date"`
	Tags          []string `json:"tags,omitempty"`
	ChangeSummary string   `json:"change_summary"`
	VersionedAt   string   `json:"versioned_at" format:"date-time"`
}

// ActivityEvent is an immutable audit record of one action on a task.
type ActivityEvent struct {
	ID          int64        `json:"id"`
	TaskID      string       `json:"task_id"`
	Type        ActivityType `json:"type" enum:"TASK_CREATED,STATUS_CHANGED,PRIORITY_CHANGED,ASSIGNEE_CHANGED,DUE_DATE_CHANGED,COMMENT_ADDED"`
	PerformedBy string       `json:"performed_by"`
	TS          string       `json:"ts" format:"date-time"`
	Details     string       `json:"details"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role" enum:"ADMIN,MANAGER,DEVELOPER"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
