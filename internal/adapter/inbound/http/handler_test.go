package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/domain/endpoint"
	"github.com/flapi-dev/flapi/internal/domain/session"
	"github.com/flapi-dev/flapi/pkg/mcp"

	"github.com/flapi-dev/flapi/internal/service"
)

type memRepo struct {
	endpoints []endpoint.Endpoint
}

func (r *memRepo) List() []endpoint.Endpoint { return r.endpoints }

func (r *memRepo) FindForRequest(path, method string) (*endpoint.Endpoint, error) {
	for i := range r.endpoints {
		e := &r.endpoints[i]
		if e.URLPath == path && strings.EqualFold(e.Method, method) {
			return e, nil
		}
	}
	return nil, endpoint.ErrEndpointNotFound
}

type fakeExecutor struct {
	rows        []map[string]any
	err         error
	gotTemplate string
	gotParams   map[string]any
}

func (f *fakeExecutor) Execute(_ context.Context, template string, params map[string]any) ([]map[string]any, error) {
	f.gotTemplate = template
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeExecutor) Close() error { return nil }

func testEndpoints() []endpoint.Endpoint {
	return []endpoint.Endpoint{
		{
			URLPath: "/customers",
			Method:  "GET",
			RequestFields: []endpoint.RequestField{
				{Name: "region", Required: true, Validators: []endpoint.Validator{
					{Type: "enum", AllowedValues: []string{"us", "eu"}},
				}},
				{Name: "limit"},
			},
			TemplateSource: "SELECT * FROM customers WHERE region = :region",
			Tool:           &endpoint.MCPTool{Name: "customer_lookup", Description: "Look up customers"},
		},
		{
			URLPath: "/reports",
			Method:  "GET",
			Auth: endpoint.AuthConfig{
				Enabled: true,
				Type:    "basic",
				Users:   []auth.User{{Username: "alice", Password: "secret", Roles: []string{"admin"}}},
			},
			TemplateSource: "SELECT * FROM reports",
		},
	}
}

type fixture struct {
	srv      *httptest.Server
	sessions *session.Manager
	exec     *fakeExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &memRepo{endpoints: testEndpoints()}
	exec := &fakeExecutor{rows: []map[string]any{{"id": "c1", "region": "eu"}}}

	sessions := session.NewManager(session.Config{}, logger)
	t.Cleanup(sessions.Stop)

	factory := service.NewVerifierFactory(nil, nil, logger)
	authHandler, err := service.NewMCPAuthHandler(auth.ProtocolConfig{}, factory, logger)
	if err != nil {
		t.Fatalf("NewMCPAuthHandler: %v", err)
	}

	discovery := service.NewDiscovery(repo, logger)
	discovery.Discover()

	info := service.ServerInfo{Name: "flapi", Version: "1.2.3"}
	dispatcher := service.NewDispatcher(sessions, authHandler, discovery, repo, exec, new(slog.LevelVar), info, "", logger)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, func() float64 { return float64(sessions.Len()) })

	rest, err := NewRESTHandler(repo, factory, exec, metrics)
	if err != nil {
		t.Fatalf("NewRESTHandler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp/jsonrpc", mcpHandler(dispatcher, metrics))
	mux.Handle("/mcp/health", NewHealthChecker(info, discovery, sessions).Handler())
	mux.Handle("/api/", http.StripPrefix("/api", rest))

	var handler http.Handler = mux
	handler = RequestIDMiddleware(logger)(handler)
	handler = MetricsMiddleware(metrics)(handler)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, sessions: sessions, exec: exec}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *fixture) post(t *testing.T, body, sessionID string) (*http.Response, rpcEnvelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/mcp/jsonrpc", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(mcp.SessionHeader, sessionID)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestPingCreatesSession(t *testing.T) {
	f := newFixture(t)

	resp, env := f.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	sid := resp.Header.Get(mcp.SessionHeader)
	if !sessionIDPattern.MatchString(sid) {
		t.Errorf("session header = %q, want 64 hex chars", sid)
	}
	if env.Error != nil {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
	if got := string(env.Result); got != "{}" {
		t.Errorf("result = %s, want {}", got)
	}
	if got := string(env.ID); got != "1" {
		t.Errorf("id = %s, want 1", got)
	}
}

func TestSessionReusedAcrossRequests(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "")
	sid := resp.Header.Get(mcp.SessionHeader)

	resp2, _ := f.post(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, sid)
	if got := resp2.Header.Get(mcp.SessionHeader); got != sid {
		t.Errorf("session header = %q, want %q", got, sid)
	}
	if f.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", f.sessions.Len())
	}
}

func TestParseErrorOmitsSessionHeader(t *testing.T) {
	f := newFixture(t)

	resp, env := f.post(t, `{not json`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get(mcp.SessionHeader); got != "" {
		t.Errorf("session header = %q, want empty", got)
	}
	if env.Error == nil || env.Error.Code != mcp.ParseError {
		t.Fatalf("error = %+v, want code %d", env.Error, mcp.ParseError)
	}
	if f.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.Len())
	}
}

func TestInitializeNegotiation(t *testing.T) {
	f := newFixture(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`
	_, env := f.post(t, body, "")
	if env.Error != nil {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ProtocolVersion != "2025-03-26" {
		t.Errorf("protocolVersion = %q, want 2025-03-26", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "flapi" || result.ServerInfo.Version != "1.2.3" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	for _, name := range []string{"tools", "resources", "prompts", "logging"} {
		if _, ok := result.Capabilities[name]; !ok {
			t.Errorf("capabilities missing %q", name)
		}
	}
}

func TestDeleteClosesSession(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "")
	sid := resp.Header.Get(mcp.SessionHeader)

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/mcp/jsonrpc", nil)
	req.Header.Set(mcp.SessionHeader, sid)
	dresp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer dresp.Body.Close()

	var env rpcEnvelope
	if err := json.NewDecoder(dresp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var result struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.SessionID != sid || result.Status != "closed" {
		t.Errorf("result = %+v, want session_id=%s status=closed", result, sid)
	}
	if f.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.Len())
	}

	// A closed session id on the next request yields a fresh session.
	resp2, _ := f.post(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, sid)
	if got := resp2.Header.Get(mcp.SessionHeader); got == sid || !sessionIDPattern.MatchString(got) {
		t.Errorf("session header = %q, want a fresh id", got)
	}
}

func TestDeleteWithoutSessionHeader(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/mcp/jsonrpc", nil)
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error == nil || env.Error.Code != mcp.SessionError {
		t.Fatalf("error = %+v, want code %d", env.Error, mcp.SessionError)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/mcp/jsonrpc", nil)
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != "POST, DELETE" {
		t.Errorf("Allow = %q, want POST, DELETE", got)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/mcp/jsonrpc", bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("X-Request-ID", "corr-42")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "corr-42" {
		t.Errorf("X-Request-ID = %q, want corr-42", got)
	}
}

func TestRESTEndpointQuery(t *testing.T) {
	f := newFixture(t)

	resp, err := f.srv.Client().Get(f.srv.URL + "/api/customers?region=eu&limit=10")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0]["id"] != "c1" {
		t.Errorf("data = %+v", body.Data)
	}
	if got := f.exec.gotParams["region"]; got != "eu" {
		t.Errorf("region param = %v, want eu", got)
	}
	if got := f.exec.gotParams["limit"]; got != "10" {
		t.Errorf("limit param = %v, want 10", got)
	}
}

func TestRESTValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown endpoint", path: "/api/nope", want: http.StatusNotFound},
		{name: "missing required param", path: "/api/customers", want: http.StatusBadRequest},
		{name: "enum rejects value", path: "/api/customers?region=mars", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.srv.Client().Get(f.srv.URL + tt.path)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRESTEndpointAuth(t *testing.T) {
	f := newFixture(t)

	// No credentials.
	resp, err := f.srv.Client().Get(f.srv.URL + "/api/reports")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.HasPrefix(got, "Basic") {
		t.Errorf("WWW-Authenticate = %q, want Basic challenge", got)
	}

	// Valid credentials.
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/reports", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:secret")))
	resp2, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp2.StatusCode)
	}

	// Wrong password.
	req3, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/reports", nil)
	req3.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:wrong")))
	resp3, err := f.srv.Client().Do(req3)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp3.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	// One live session should show up in the payload.
	f.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "")

	resp, err := f.srv.Client().Get(f.srv.URL + "/mcp/health")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || !health.MCPAvailable {
		t.Errorf("status = %+v", health)
	}
	if health.ServerName != "flapi" || health.ServerVersion != "1.2.3" {
		t.Errorf("server identity = %s %s", health.ServerName, health.ServerVersion)
	}
	if health.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Errorf("protocolVersion = %q, want %q", health.ProtocolVersion, mcp.LatestProtocolVersion)
	}
	if health.ToolsCount != 1 {
		t.Errorf("tools_count = %d, want 1", health.ToolsCount)
	}
	if health.ActiveSessions != 1 {
		t.Errorf("active_sessions = %d, want 1", health.ActiveSessions)
	}
}
