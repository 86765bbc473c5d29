package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"plinkage/internal/config"
	"plinkage/internal/db"
	"plinkage/internal/engine"
	"plinkage/internal/migrate"
)

type testServer struct {
	URL    string
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
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
		Logger: zerolog.Nop(),
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, actorID string) (*http.Response, []byte) {
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
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
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

func mustUnmarshal(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
}

type serverFixture struct {
	srv      *testServer
	owner    OwnerResponse
	provider ProviderResponse
	project  ProjectResponse
}

func setupFixture(t *testing.T, resourcesNeeded int) (*serverFixture, func()) {
	t.Helper()
	srv, cleanup := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/owners", map[string]any{
		"first_name": "Olivia",
		"last_name":  "Moreau",
		"email":      "olivia@example.com",
	}, "seed")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register owner: %d %s", res.StatusCode, string(data))
	}
	var owner OwnerResponse
	mustUnmarshal(t, data, &owner)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/providers", map[string]any{
		"first_name": "Pat",
		"last_name":  "Devos",
		"email":      "pat@example.com",
		"skills":     []string{"go"},
	}, "seed")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register provider: %d %s", res.StatusCode, string(data))
	}
	var provider ProviderResponse
	mustUnmarshal(t, data, &provider)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":             "rebuild billing",
		"start_date":       "2024-02-01T00:00:00Z",
		"end_date":         "2024-02-11T00:00:00Z",
		"resources_needed": resourcesNeeded,
	}, owner.ID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	mustUnmarshal(t, data, &project)

	return &serverFixture{srv: srv, owner: owner, provider: provider, project: project}, cleanup
}

func (f *serverFixture) apply(t *testing.T, providerID string) EngagementResponse {
	t.Helper()
	res, data := doJSON(t, f.srv.Client(), http.MethodPost, f.srv.URL+"/v0/engagements", map[string]any{
		"kind":        "application",
		"sender_id":   providerID,
		"receiver_id": f.owner.ID,
		"project_id":  f.project.ID,
		"rate":        55,
		"time_frame":  120,
	}, providerID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create engagement: %d %s", res.StatusCode, string(data))
	}
	var eng EngagementResponse
	mustUnmarshal(t, data, &eng)
	return eng
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	mustUnmarshal(t, data, &envelope)
	return envelope.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/owners", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should skip auth, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "tester",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	mustUnmarshal(t, data, &login)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	meRes, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer meRes.Body.Close()
	body, _ := io.ReadAll(meRes.Body)
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me with token: %d %s", meRes.StatusCode, string(body))
	}
	var me struct {
		ActorID string `json:"actor_id"`
		Source  string `json:"source"`
	}
	mustUnmarshal(t, body, &me)
	if me.ActorID != "tester" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestEngagementLifecycleHTTP(t *testing.T) {
	f, cleanup := setupFixture(t, 2)
	defer cleanup()
	client := f.srv.Client()

	eng := f.apply(t, f.provider.ID)
	if eng.Status != "pending" {
		t.Fatalf("expected pending, got %s", eng.Status)
	}

	res, data := doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+eng.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var accepted EngagementResponse
	mustUnmarshal(t, data, &accepted)
	if accepted.Status != "accepted" || accepted.ResolvedAt == nil {
		t.Fatalf("unexpected engagement: %+v", accepted)
	}

	res, data = doJSON(t, client, http.MethodGet, f.srv.URL+"/v0/projects/"+f.project.ID, nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	mustUnmarshal(t, data, &project)
	if len(project.Members) != 1 || project.Members[0].MemberID != f.provider.ID {
		t.Fatalf("member missing: %+v", project.Members)
	}
	if project.ResourcesAvailable != 1 {
		t.Fatalf("expected one open slot, got %d", project.ResourcesAvailable)
	}

	// Accepting again must surface the terminal state.
	res, data = doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+eng.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "already_resolved" {
		t.Fatalf("expected already_resolved, got %s", code)
	}
}

func TestAcceptWhenFullHTTP(t *testing.T) {
	f, cleanup := setupFixture(t, 1)
	defer cleanup()
	client := f.srv.Client()

	res, data := doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/providers", map[string]any{
		"first_name": "Sam",
		"last_name":  "Okafor",
		"email":      "sam@example.com",
	}, "seed")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register provider: %d %s", res.StatusCode, string(data))
	}
	var second ProviderResponse
	mustUnmarshal(t, data, &second)

	queued := f.apply(t, second.ID)
	first := f.apply(t, f.provider.ID)

	res, data = doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+first.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept first: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+queued.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "project_full" {
		t.Fatalf("expected project_full, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, f.srv.URL+"/v0/engagements/"+queued.ID, nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get engagement: %d %s", res.StatusCode, string(data))
	}
	var got EngagementResponse
	mustUnmarshal(t, data, &got)
	if got.Status != "rejected" {
		t.Fatalf("conflict should persist the rejection, got %s", got.Status)
	}
}

func TestResignationAndReconcileHTTP(t *testing.T) {
	f, cleanup := setupFixture(t, 2)
	defer cleanup()
	client := f.srv.Client()

	eng := f.apply(t, f.provider.ID)
	res, data := doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+eng.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	resignURL := f.srv.URL + "/v0/projects/" + f.project.ID + "/members/" + f.provider.ID + "/resignation"
	res, data = doJSON(t, client, http.MethodPost, resignURL, map[string]any{"reason": "moving on"}, f.owner.ID)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("only the member may resign, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, resignURL, map[string]any{"reason": "moving on"}, f.provider.ID)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("resign: %d %s", res.StatusCode, string(data))
	}

	reconcileURL := f.srv.URL + "/v0/projects/" + f.project.ID + "/reconcile"
	res, data = doJSON(t, client, http.MethodPost, reconcileURL, map[string]any{}, f.provider.ID)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("only the owner may reconcile, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, reconcileURL, map[string]any{"description": "new scope"}, f.owner.ID)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unresolved_resignation" {
		t.Fatalf("expected unresolved_resignation, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, reconcileURL, map[string]any{
		"description":      "new scope",
		"pending_removals": []string{f.provider.ID},
	}, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reconcile: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	mustUnmarshal(t, data, &project)
	if len(project.Members) != 0 || project.ResourcesAvailable != 2 {
		t.Fatalf("removal not applied: %+v", project)
	}
	if project.Description != "new scope" {
		t.Fatalf("edit not applied: %q", project.Description)
	}
}

func TestRatingFlowHTTP(t *testing.T) {
	f, cleanup := setupFixture(t, 1)
	defer cleanup()
	client := f.srv.Client()

	eng := f.apply(t, f.provider.ID)
	res, data := doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/engagements/"+eng.ID+"/accept", nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, f.srv.URL+"/v0/projects/"+f.project.ID+"/reconcile", map[string]any{
		"status": "completed",
	}, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}

	rateURL := f.srv.URL + "/v0/projects/" + f.project.ID + "/members/" + f.provider.ID + "/rating"
	res, data = doJSON(t, client, http.MethodPost, rateURL, map[string]any{"score": 4.5, "comment": "solid"}, f.owner.ID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("rate: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, rateURL, map[string]any{"score": 3}, f.owner.ID)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate rating conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, f.srv.URL+"/v0/providers/"+f.provider.ID, nil, f.owner.ID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get provider: %d %s", res.StatusCode, string(data))
	}
	var provider ProviderResponse
	mustUnmarshal(t, data, &provider)
	if provider.Rating != 4.5 || provider.Ratings != 1 {
		t.Fatalf("aggregate mismatch: %+v", provider)
	}
}
