package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"portico.dev/internal/activity"
	"portico.dev/internal/auth"
	"portico.dev/internal/portfolio"
	"portico.dev/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	st := memory.New()
	codec, err := auth.NewCodec("test-secret", "HS256", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sessions, err := auth.NewSessions(st, codec)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	resolver := auth.NewResolver(st.Users(), codec)
	svc, err := portfolio.NewService(st, activity.NewRecorder(st.Activity()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(ReadyProbe{}, Options{Version: "test", RateBurst: 100, RatePerSec: 100}, sessions, resolver, svc)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) register(orgName, email, password string) tokenResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"org_name": orgName,
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	pair := decode[tokenResponse](c.t, resp)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		c.t.Fatalf("incomplete token pair: %+v", pair)
	}
	return pair
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	api := newTestAPI(t)

	pair := api.register("Acme Labs", "ada@example.com", "correct horse")
	if pair.Role != "admin" {
		t.Fatalf("first user must be admin, got %q", pair.Role)
	}
	if pair.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %q", pair.TokenType)
	}

	// Same org name again conflicts.
	resp := api.post("/v1/auth/register", map[string]any{
		"org_name": "Acme Labs",
		"email":    "other@example.com",
		"password": "correct horse",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate org, got %d", resp.StatusCode)
	}

	// Login with the JSON body.
	resp = api.post("/v1/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "correct horse",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	login := decode[tokenResponse](t, resp)

	// Wrong password: 401 with no hint whether the account exists.
	resp = api.post("/v1/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "wrong password",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}

	// Refresh with the refresh token.
	resp = api.post("/v1/auth/refresh", map[string]any{
		"refresh_token": login.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected refresh status: %d", resp.StatusCode)
	}
	refreshed := decode[tokenResponse](t, resp)
	if refreshed.AccessToken == "" {
		t.Fatalf("expected fresh access token")
	}

	// An access token is not accepted where a refresh token is required.
	resp = api.post("/v1/auth/refresh", map[string]any{
		"refresh_token": login.AccessToken,
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token on refresh, got %d", resp.StatusCode)
	}
}

func TestLoginAcceptsPasswordForm(t *testing.T) {
	api := newTestAPI(t)
	api.register("Acme Labs", "ada@example.com", "correct horse")

	form := url.Values{"username": {"ada@example.com"}, "password": {"correct horse"}}
	req, err := http.NewRequest(http.MethodPost, api.baseURL+"/v1/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	pair := decode[tokenResponse](t, resp)
	if pair.AccessToken == "" {
		t.Fatalf("expected access token from form login")
	}
}

func TestProjectLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Acme Labs", "ada@example.com", "correct horse")

	resp := api.post("/v1/projects", map[string]any{
		"title":       "Portfolio Site",
		"description": "Static site generator",
		"github_url":  "https://github.com/acme/site",
		"is_public":   true,
		"tags":        []string{"Go", " web ", "go"},
	}, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	created := decode[projectResponse](t, resp)
	if len(created.Tags) != 2 {
		t.Fatalf("expected deduplicated normalized tags, got %+v", created.Tags)
	}

	// Fetch it back.
	resp = api.get("/v1/projects/"+created.ID, nil, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected get status: %d", resp.StatusCode)
	}
	fetched := decode[projectResponse](t, resp)
	if fetched.Title != "Portfolio Site" {
		t.Fatalf("unexpected title: %q", fetched.Title)
	}

	// Partial update.
	resp = api.do(http.MethodPatch, "/v1/projects/"+created.ID, map[string]any{
		"title": "Portfolio Site v2",
	}, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected patch status: %d", resp.StatusCode)
	}
	updated := decode[projectResponse](t, resp)
	if updated.Title != "Portfolio Site v2" || updated.Description != "Static site generator" {
		t.Fatalf("patch did not preserve untouched fields: %+v", updated)
	}

	// List with a search query.
	resp = api.get("/v1/projects", url.Values{"q": {"portfolio"}}, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	listed := decode[map[string][]projectResponse](t, resp)
	if len(listed["projects"]) != 1 {
		t.Fatalf("expected one project, got %d", len(listed["projects"]))
	}

	// Delete, then 404.
	resp = api.do(http.MethodDelete, "/v1/projects/"+created.ID, nil, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.get("/v1/projects/"+created.ID, nil, bearer(admin.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestRoleAndOwnershipRules(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Acme Labs", "ada@example.com", "correct horse")

	// Admin invites an editor and a viewer.
	for _, m := range []struct{ email, role string }{
		{"ed@example.com", "editor"},
		{"vi@example.com", "viewer"},
	} {
		resp := api.post("/v1/users", map[string]any{
			"email":    m.email,
			"password": "correct horse",
			"role":     m.role,
		}, bearer(admin.AccessToken))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("unexpected user create status for %s: %d", m.email, resp.StatusCode)
		}
	}

	login := func(email string) tokenResponse {
		resp := api.post("/v1/auth/login", map[string]any{
			"email":    email,
			"password": "correct horse",
		}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("login %s: %d", email, resp.StatusCode)
		}
		return decode[tokenResponse](t, resp)
	}
	editor := login("ed@example.com")
	viewer := login("vi@example.com")

	// Viewer cannot create projects or users.
	resp := api.post("/v1/projects", map[string]any{
		"title":       "Nope",
		"description": "nope",
	}, bearer(viewer.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer create, got %d", resp.StatusCode)
	}
	resp = api.post("/v1/users", map[string]any{
		"email":    "x@example.com",
		"password": "correct horse",
		"role":     "viewer",
	}, bearer(editor.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for editor managing users, got %d", resp.StatusCode)
	}

	// Editor creates a project; the viewer can read but not modify it.
	resp = api.post("/v1/projects", map[string]any{
		"title":       "Editor Project",
		"description": "Owned by the editor",
	}, bearer(editor.AccessToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	project := decode[projectResponse](t, resp)

	resp = api.get("/v1/projects/"+project.ID, nil, bearer(viewer.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer should read projects, got %d", resp.StatusCode)
	}
	resp = api.do(http.MethodPatch, "/v1/projects/"+project.ID, map[string]any{
		"title": "Hijacked",
	}, bearer(viewer.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer patch, got %d", resp.StatusCode)
	}

	// A second editor cannot delete someone else's project; the owner can.
	resp = api.post("/v1/users", map[string]any{
		"email":    "ed2@example.com",
		"password": "correct horse",
		"role":     "editor",
	}, bearer(admin.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected user create status: %d", resp.StatusCode)
	}
	editor2 := login("ed2@example.com")

	resp = api.do(http.MethodDelete, "/v1/projects/"+project.ID, nil, bearer(editor2.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner editor delete, got %d", resp.StatusCode)
	}
	resp = api.do(http.MethodDelete, "/v1/projects/"+project.ID, nil, bearer(editor.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner delete failed: %d", resp.StatusCode)
	}
}

func TestCrossOrgIsolation(t *testing.T) {
	api := newTestAPI(t)
	orgA := api.register("Org A", "a@example.com", "correct horse")
	orgB := api.register("Org B", "b@example.com", "correct horse")

	resp := api.post("/v1/projects", map[string]any{
		"title":       "Secret Project",
		"description": "Org A internal",
	}, bearer(orgA.AccessToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	project := decode[projectResponse](t, resp)

	// Another organization's admin sees NotFound, never Forbidden.
	resp = api.get("/v1/projects/"+project.ID, nil, bearer(orgB.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 across orgs, got %d", resp.StatusCode)
	}

	resp = api.get("/v1/projects", nil, bearer(orgB.AccessToken))
	listed := decode[map[string][]projectResponse](t, resp)
	if len(listed["projects"]) != 0 {
		t.Fatalf("expected empty list for org B, got %d", len(listed["projects"]))
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/projects", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}

	resp = api.get("/v1/projects", nil, bearer("not-a-token"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestActivityFeedRecordsMutations(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Acme Labs", "ada@example.com", "correct horse")

	resp := api.post("/v1/projects", map[string]any{
		"title":       "Tracked",
		"description": "Generates an activity entry",
	}, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	project := decode[projectResponse](t, resp)

	resp = api.get("/v1/activity", nil, bearer(admin.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected activity status: %d", resp.StatusCode)
	}
	feed := decode[map[string][]activityResponse](t, resp)
	entries := feed["activity"]
	if len(entries) == 0 {
		t.Fatalf("expected at least one activity entry")
	}
	if entries[0].Action != "project.create" || entries[0].EntityID != project.ID {
		t.Fatalf("unexpected newest entry: %+v", entries[0])
	}
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := []map[string]any{
		{"org_name": "A", "email": "a@example.com", "password": "correct horse"},
		{"org_name": "Acme", "email": "not-an-email", "password": "correct horse"},
		{"org_name": "Acme", "email": "a@example.com", "password": "short"},
	}
	for i, body := range cases {
		resp := api.post("/v1/auth/register", body, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("case %d: expected 422, got %d", i, resp.StatusCode)
		}
	}
}
