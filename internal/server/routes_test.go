package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/content"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/ledger/memory"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/testutils"
)

var alice = domain.Identity{ID: "u-alice", Username: "alice", Email: "alice@example.com"}

type stubProvider struct{}

func (stubProvider) VerifyExternalIdentity(_ context.Context, raw string) (domain.Identity, error) {
	if raw != "good-google-token" {
		return domain.Identity{}, domain.ErrExternalTokenInvalid
	}
	return alice, nil
}

type testApp struct {
	server *server.Server
	creds  *auth.Credentials
	hub    *hub.Hub
}

func newTestApp(t *testing.T, vars map[string]string) *testApp {
	t.Helper()

	cfg := testutils.Config(t, vars)
	creds := testutils.Credentials(t, cfg)
	service := auth.NewService(stubProvider{}, creds, nil)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	l := memory.New(nil)
	h := hub.New(service, l, content.NewNormalizer(cfg.MaxMessageLength), nil, nil, hub.Config{SendBuffer: cfg.WSSendBuffer})

	s := server.New(server.Dependencies{
		Config:   cfg,
		Login:    service,
		Recorder: collector,
		Sessions: service,
		History:  l,
		Hub:      h,
		Registry: reg,
	})
	s.RegisterRoutes()
	return &testApp{server: s, creds: creds, hub: h}
}

// serve runs the hub and exposes the router on an httptest server.
func (a *testApp) serve(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.hub.Run(ctx) }()
	ts := httptest.NewServer(a.server.E)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.server.E.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestLoginThenHistory(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"token":"good-google-token"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := app.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login struct {
		Token string          `json:"token"`
		User  domain.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "alice", login.User.Username)

	req = httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = app.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLogin_InvalidGoogleToken(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"token":"forged"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := app.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.CodeExternalTokenInvalid)
}

func TestLogin_RateLimited(t *testing.T) {
	app := newTestApp(t, map[string]string{"LOGIN_RATE_PER_MINUTE": "2"})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"token":"forged"}`))
		req.Header.Set("Content-Type", "application/json")
		last = app.do(req).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestProtectedRoutes(t *testing.T) {
	app := newTestApp(t, nil)
	token := testutils.Token(t, app.creds, alice)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "history without credential", path: "/messages", status: http.StatusUnauthorized},
		{name: "history with garbage", path: "/messages", header: "Bearer nope", status: http.StatusForbidden},
		{name: "history ok", path: "/messages", header: "Bearer " + token, status: http.StatusOK},
		{name: "connections without credential", path: "/connections", status: http.StatusUnauthorized},
		{name: "connections ok", path: "/connections", header: "Bearer " + token, status: http.StatusOK},
		{name: "negative limit", path: "/messages?limit=-1", header: "Bearer " + token, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.status, app.do(req).Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://chat.example"})

	req := httptest.NewRequest(http.MethodOptions, "/messages", nil)
	req.Header.Set("Origin", "https://chat.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := app.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chat.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"token":"good-google-token"}`))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, app.do(req).Code)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `relay_logins_total{result="success"} 1`)
	assert.Contains(t, body, "relay_http_requests_total")
}

func TestWebsocketEndToEnd(t *testing.T) {
	app := newTestApp(t, nil)
	ts := app.serve(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, gorilla.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	token := testutils.Token(t, app.creds, alice)
	conn, resp, err := gorilla.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	resp.Body.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"content": "hello"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame struct {
		Type    string `json:"type"`
		Payload struct {
			Username string `json:"username"`
			Content  string `json:"content"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "chatMessage", frame.Type)
	assert.Equal(t, "alice", frame.Payload.Username)
	assert.Equal(t, "hello", frame.Payload.Content)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var history []map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0]["content"])
}

func TestStart_ServesUntilCanceled(t *testing.T) {
	app := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.server.Start(ctx) }()

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = app.server.E.ListenerAddr()
		return addr != nil
	}, 5*time.Second, 10*time.Millisecond)

	res, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
