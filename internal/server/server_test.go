package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"tasktrail/internal/config"
	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/lifecycle"
	"tasktrail/internal/migrate"
)

type testServer struct {
	URL    string
	Alice  domain.User
	Bob    domain.User
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := lifecycle.New(conn, config.Default())
	ctx := context.Background()
	alice, err := l.CreateUser(ctx, "Alice", "alice@example.com", domain.RoleManager)
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	bob, err := l.CreateUser(ctx, "Bob", "bob@example.com", domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	handler, err := New(Config{
		Lifecycle: l,
		BasePath:  "/v0",
		Auth:      AuthConfig{JWTSecret: "test-secret", AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Alice:  alice,
		Bob:    bob,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error
}

func TestTaskLifecycleFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asAlice := map[string]string{"X-Actor-Id": srv.Alice.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Ship feature",
		"description": "Write the code",
		"priority":    "HIGH",
		"tags":        []string{"backend"},
	}, asAlice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Version != 1 || created.Status != "OPEN" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	// denied transition before starting work
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID+"/status", map[string]any{
		"status": "COMPLETED",
	}, asAlice)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", e.Code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID+"/status", map[string]any{
		"status": "IN_PROGRESS",
	}, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("to IN_PROGRESS: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID+"/assignee", map[string]any{
		"assignee_id": srv.Bob.ID,
	}, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	var assigned TaskResponse
	_ = json.Unmarshal(data, &assigned)
	if assigned.AssignedTo == nil || *assigned.AssignedTo != srv.Bob.ID {
		t.Fatalf("expected assignee %s, got %+v", srv.Bob.ID, assigned.AssignedTo)
	}
	if assigned.Version != 3 {
		t.Fatalf("expected version 3 after two mutations, got %d", assigned.Version)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID+"/history", nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var history []TaskVersionResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 3 || history[0].ChangeSummary != "Task assigned to Bob" {
		t.Fatalf("unexpected history: %+v", history)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID+"/activity", nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activity: %d %s", res.StatusCode, string(data))
	}
	var activity []ActivityEventResponse
	if err := json.Unmarshal(data, &activity); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if len(activity) != 3 || activity[0].Type != "ASSIGNEE_CHANGED" {
		t.Fatalf("unexpected activity: %+v", activity)
	}
}

func TestCommentEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asBob := map[string]string{"X-Actor-Id": srv.Bob.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Review PR",
		"description": "Check the diff",
	}, asBob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/comments", map[string]any{
		"text": "looks good",
	}, asBob)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add comment: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/comments", nil, asBob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list comments: %d %s", res.StatusCode, string(data))
	}
	var comments []CommentResponse
	if err := json.Unmarshal(data, &comments); err != nil {
		t.Fatalf("unmarshal comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "looks good" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	// comments never bump the version
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil, asBob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	var fetched TaskResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Version != 1 {
		t.Fatalf("expected version 1, got %d", fetched.Version)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
}

func TestDevLoginAndBearer(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": srv.Alice.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Via token",
		"description": "Created with a bearer token",
	}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with bearer: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)
	if task.CreatedBy != srv.Alice.ID {
		t.Fatalf("expected creator %s, got %s", srv.Alice.ID, task.CreatedBy)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus token, got %d: %s", res.StatusCode, string(data))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asAlice := map[string]string{"X-Actor-Id": srv.Alice.ID}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/missing", nil, asAlice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", e.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "No description",
	}, asAlice)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "bad_request" {
		t.Fatalf("expected bad_request, got %q", e.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"name":  "Alice Again",
		"email": "alice@example.com",
		"role":  "DEVELOPER",
	}, asAlice)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 duplicate email, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "duplicate_email" {
		t.Fatalf("expected duplicate_email, got %q", e.Code)
	}
}

func TestUserDeactivationRules(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asAlice := map[string]string{"X-Actor-Id": srv.Alice.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Blocker",
		"description": "Keeps Bob busy",
		"assignee_id": srv.Bob.ID,
	}, asAlice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/users/"+srv.Bob.ID, nil, asAlice)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while assigned, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID+"/status", map[string]any{
		"status": "CANCELLED",
	}, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/users/"+srv.Bob.ID, nil, asAlice)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("deactivate after cancel: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/"+srv.Bob.ID, nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get user: %d %s", res.StatusCode, string(data))
	}
	var u UserResponse
	_ = json.Unmarshal(data, &u)
	if u.Active {
		t.Fatalf("expected bob inactive")
	}
}

func TestListTaskFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asAlice := map[string]string{"X-Actor-Id": srv.Alice.ID}

	mk := func(title, priority string, assignee string) TaskResponse {
		body := map[string]any{"title": title, "description": "d", "priority": priority}
		if assignee != "" {
			body["assignee_id"] = assignee
		}
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", body, asAlice)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", title, res.StatusCode, string(data))
		}
		var task TaskResponse
		_ = json.Unmarshal(data, &task)
		return task
	}
	mk("low one", "LOW", "")
	mk("high one", "HIGH", srv.Bob.ID)
	mk("critical one", "CRITICAL", srv.Bob.ID)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?assignee_id="+srv.Bob.ID, nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filter by assignee: %d %s", res.StatusCode, string(data))
	}
	var byAssignee []TaskResponse
	_ = json.Unmarshal(data, &byAssignee)
	if len(byAssignee) != 2 {
		t.Fatalf("expected 2 assigned tasks, got %d", len(byAssignee))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?unassigned=true", nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unassigned filter: %d %s", res.StatusCode, string(data))
	}
	var unassigned []TaskResponse
	_ = json.Unmarshal(data, &unassigned)
	if len(unassigned) != 1 || unassigned[0].Title != "low one" {
		t.Fatalf("unexpected unassigned: %+v", unassigned)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?sort=priority", nil, asAlice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("priority sort: %d %s", res.StatusCode, string(data))
	}
	var sorted []TaskResponse
	_ = json.Unmarshal(data, &sorted)
	if len(sorted) != 3 || sorted[0].Priority != "CRITICAL" || sorted[2].Priority != "LOW" {
		t.Fatalf("unexpected sort order: %+v", sorted)
	}
}
