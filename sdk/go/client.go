package tasktrailsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tasktrail HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Tags        []string `json:"tags"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// TaskVersion is one snapshot from a task's history.
type TaskVersion struct {
	TaskID        string   `json:"task_id"`
	Version       int      `json:"version"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority"`
	CreatedBy     string   `json:"created_by"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
	DueDate       *string  `json:"due_date,omitempty"`
	Tags          []string `json:"tags"`
	ChangeSummary string   `json:"change_summary"`
	VersionedAt   string   `json:"versioned_at"`
}

// ActivityEvent is one audit trail entry.
type ActivityEvent struct {
	ID          int64  `json:"id"`
	TaskID      string `json:"task_id"`
	Type        string `json:"type"`
	PerformedBy string `json:"performed_by"`
	TS          string `json:"ts"`
	Details     string `json:"details"`
}

// Comment is an immutable task comment.
type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// User is a directory entry.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// CreateTaskOptions are optional fields for CreateTask.
type CreateTaskOptions struct {
	Priority   string
	AssigneeID string
	DueDate    string
	Tags       []string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges a user id for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, userID string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]any{"user_id": userID}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateUser registers a user.
func (c *Client) CreateUser(ctx context.Context, name, email, role string) (User, error) {
	body := map[string]any{"name": name, "email": email, "role": role}
	var resp User
	err := c.do(ctx, http.MethodPost, "v0/users", body, &resp)
	return resp, err
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v0/users/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, description string, opts *CreateTaskOptions) (Task, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	if opts != nil {
		if opts.Priority != "" {
			body["priority"] = opts.Priority
		}
		if opts.AssigneeID != "" {
			body["assignee_id"] = opts.AssigneeID
		}
		if opts.DueDate != "" {
			body["due_date"] = opts.DueDate
		}
		if len(opts.Tags) > 0 {
			body["tags"] = opts.Tags
		}
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.taskPath(id, ""), nil, &resp)
	return resp, err
}

// ChangeStatus moves a task to a new status.
func (c *Client) ChangeStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.taskPath(id, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// Assign sets the assignee; pass nil to unassign.
func (c *Client) Assign(ctx context.Context, id string, assigneeID *string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.taskPath(id, "assignee"), map[string]any{"assignee_id": assigneeID}, &resp)
	return resp, err
}

// ChangePriority sets the priority.
func (c *Client) ChangePriority(ctx context.Context, id, priority string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.taskPath(id, "priority"), map[string]any{"priority": priority}, &resp)
	return resp, err
}

// ChangeDueDate sets the due date (YYYY-MM-DD); pass nil to clear it.
func (c *Client) ChangeDueDate(ctx context.Context, id string, dueDate *string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.taskPath(id, "due-date"), map[string]any{"due_date": dueDate}, &resp)
	return resp, err
}

// AddComment attaches a comment to a task.
func (c *Client) AddComment(ctx context.Context, id, text string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "comments"), map[string]any{"text": text}, &resp)
	return resp, err
}

// Comments lists a task's comments, newest first.
func (c *Client) Comments(ctx context.Context, id string) ([]Comment, error) {
	var resp []Comment
	err := c.do(ctx, http.MethodGet, c.taskPath(id, "comments"), nil, &resp)
	return resp, err
}

// History lists a task's version snapshots, newest first.
func (c *Client) History(ctx context.Context, id string) ([]TaskVersion, error) {
	var resp []TaskVersion
	err := c.do(ctx, http.MethodGet, c.taskPath(id, "history"), nil, &resp)
	return resp, err
}

// Activity lists a task's audit events, newest first.
func (c *Client) Activity(ctx context.Context, id string) ([]ActivityEvent, error) {
	var resp []ActivityEvent
	err := c.do(ctx, http.MethodGet, c.taskPath(id, "activity"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) taskPath(id, sub string) string {
	p := "v0/tasks/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
