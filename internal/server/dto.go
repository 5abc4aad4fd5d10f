package server

import "tasktrail/internal/domain"

// Request payloads

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
	Role  string `json:"role" enum:"ADMIN,MANAGER,DEVELOPER"`
}

type UpdateUserRequest struct {
	Name string `json:"name"`
	Role string `json:"role" enum:"ADMIN,MANAGER,DEVELOPER"`
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    *string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	Tags        []string `json:"tags,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" enum:"OPEN,IN_PROGRESS,COMPLETED,CANCELLED"`
}

type ReassignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

type ChangePriorityRequest struct {
	Priority string `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
}

type ChangeDueDateRequest struct {
	DueDate *string `json:"due_date" format:"date"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"ADMIN,MANAGER,DEVELOPER"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status" enum:"OPEN,IN_PROGRESS,COMPLETED,CANCELLED"`
	Priority    string   `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	Tags        []string `json:"tags"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type TaskVersionResponse struct {
	TaskID        string   `json:"task_id"`
	Version       int      `json:"version"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Status        string   `json:"status" enum:"OPEN,IN_PROGRESS,COMPLETED,CANCELLED"`
	Priority      string   `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	CreatedBy     string   `json:"created_by"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
	DueDate       *string  `json:"due_date,omitempty" format:"date"`
	Tags          []string `json:"tags"`
	ChangeSummary string   `json:"change_summary"`
	VersionedAt   string   `json:"versioned_at" format:"date-time"`
}

type ActivityEventResponse struct {
	ID          int64  `json:"id"`
	TaskID      string `json:"task_id"`
	Type        string `json:"type" enum:"TASK_CREATED,STATUS_CHANGED,PRIORITY_CHANGED,ASSIGNEE_CHANGED,DUE_DATE_CHANGED,COMMENT_ADDED"`
	PerformedBy string `json:"performed_by"`
	TS          string `json:"ts" format:"date-time"`
	Details     string `json:"details"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		DueDate:     t.DueDate,
		Tags:        nonNilSlice(t.Tags),
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func versionResponse(v domain.TaskVersion) TaskVersionResponse {
	return TaskVersionResponse{
		TaskID:        v.TaskID,
		Version:       v.Version,
		Title:         v.Title,
		Description:   v.Description,
		Status:        string(v.Status),
		Priority:      string(v.Priority),
		CreatedBy:     v.CreatedBy,
		AssignedTo:    v.AssignedTo,
		DueDate:       v.DueDate,
		Tags:          nonNilSlice(v.Tags),
		ChangeSummary: v.ChangeSummary,
		VersionedAt:   v.VersionedAt,
	}
}

func activityResponse(e domain.ActivityEvent) ActivityEventResponse {
	return ActivityEventResponse{
		ID:          e.ID,
		TaskID:      e.TaskID,
		Type:        string(e.Type),
		PerformedBy: e.PerformedBy,
		TS:          e.TS,
		Details:     e.Details,
	}
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse(c)
}

func mapUsers(in []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(in))
	for _, u := range in {
		out = append(out, userResponse(u))
	}
	return out
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapVersions(in []domain.TaskVersion) []TaskVersionResponse {
	out := make([]TaskVersionResponse, 0, len(in))
	for _, v := range in {
		out = append(out, versionResponse(v))
	}
	return out
}

func mapActivity(in []domain.ActivityEvent) []ActivityEventResponse {
	out := make([]ActivityEventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, activityResponse(e))
	}
	return out
}

func mapComments(in []domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(in))
	for _, c := range in {
		out = append(out, commentResponse(c))
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
