package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/content"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/ledger/memory"
	"github.com/nfrund/relay/internal/websocket"
)

var (
	alice = domain.Identity{ID: "u-alice", Username: "alice", Email: "alice@example.com"}
	bob   = domain.Identity{ID: "u-bob", Username: "bob", Email: "bob@example.com"}
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type fixture struct {
	server *httptest.Server
	creds  *auth.Credentials
	hub    *hub.Hub
	ledger ledger.Ledger
}

func newFixture(t *testing.T, cfg websocket.Config, ttl time.Duration) *fixture {
	t.Helper()

	creds, err := auth.NewCredentials(auth.CredentialConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "relay-test",
		TTL:    ttl,
	})
	require.NoError(t, err)

	l := memory.New(nil)
	h := hub.New(creds, l, content.NewNormalizer(200), nil, nil, hub.Config{SendBuffer: 32})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	e := echo.New()
	e.GET("/ws", websocket.NewHandler(h, cfg, nil).Serve)
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &fixture{server: server, creds: creds, hub: h, ledger: l}
}

func (f *fixture) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func (f *fixture) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, _, err := f.creds.Issue(id)
	require.NoError(t, err)
	return token
}

// dial connects with the credential in the query string.
func (f *fixture) dial(t *testing.T, id domain.Identity) *gorilla.Conn {
	t.Helper()
	conn, resp, err := gorilla.DefaultDialer.Dial(f.url()+"?token="+f.token(t, id), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return f.hub.Count() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *gorilla.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readChat(t *testing.T, conn *gorilla.Conn) chatPayload {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, websocket.TypeChatMessage, f.Type)
	var p chatPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p
}

func readError(t *testing.T, conn *gorilla.Conn) websocket.ErrorPayload {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, websocket.TypeError, f.Type)
	var p websocket.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p
}

func TestHandshakeRejection(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)

	expired, err := auth.NewCredentials(auth.CredentialConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "relay-test",
		Now:    func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	require.NoError(t, err)
	expiredToken, _, err := expired.Issue(alice)
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{name: "missing", query: "", status: http.StatusUnauthorized, code: domain.CodeCredentialMissing},
		{name: "garbage", query: "?token=not-a-jwt", status: http.StatusForbidden, code: domain.CodeCredentialInvalid},
		{name: "expired", query: "?token=" + expiredToken, status: http.StatusForbidden, code: domain.CodeCredentialExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := gorilla.DefaultDialer.Dial(f.url()+tt.query, nil)
			require.ErrorIs(t, err, gorilla.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
	assert.Zero(t, f.hub.Count())
}

func TestBearerHeaderHandshake(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)

	header := http.Header{"Authorization": []string{"Bearer " + f.token(t, bob)}}
	conn, resp, err := gorilla.DefaultDialer.Dial(f.url(), header)
	require.NoError(t, err)
	defer conn.Close()
	if resp.Body != nil {
		resp.Body.Close()
	}
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesEveryoneIncludingSender(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)

	a := f.dial(t, alice)
	b := f.dial(t, bob)
	require.Eventually(t, func() bool { return f.hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]string{"content": "hi"}))

	fromA := readChat(t, a)
	fromB := readChat(t, b)
	assert.Equal(t, fromA, fromB)
	assert.Equal(t, "alice", fromA.Username)
	assert.Equal(t, "hi", fromA.Content)

	ts, err := time.Parse(domain.TimestampLayout, fromA.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)

	history, err := f.ledger.Recent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestBareStringFrame(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)
	a := f.dial(t, alice)

	require.NoError(t, a.WriteMessage(gorilla.TextMessage, []byte(`"plain"`)))
	assert.Equal(t, "plain", readChat(t, a).Content)
}

func TestMalformedGoesOnlyToSender(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)

	a := f.dial(t, alice)
	b := f.dial(t, bob)
	require.Eventually(t, func() bool { return f.hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]string{"content": "   "}))
	assert.Equal(t, domain.CodeMalformedMessage, readError(t, a).Code)

	require.NoError(t, a.WriteMessage(gorilla.TextMessage, []byte("{not json")))
	assert.Equal(t, domain.CodeMalformedMessage, readError(t, a).Code)

	// The connection stays usable and bob only sees the valid message.
	require.NoError(t, a.WriteJSON(map[string]string{"content": "ok"}))
	assert.Equal(t, "ok", readChat(t, a).Content)
	assert.Equal(t, "ok", readChat(t, b).Content)
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t, websocket.Config{MessageRate: 0.001, MessageBurst: 1}, 0)
	a := f.dial(t, alice)

	require.NoError(t, a.WriteJSON(map[string]string{"content": "first"}))
	assert.Equal(t, "first", readChat(t, a).Content)

	require.NoError(t, a.WriteJSON(map[string]string{"content": "second"}))
	assert.Equal(t, domain.CodeRateLimited, readError(t, a).Code)
}

func TestClientCloseDisconnects(t *testing.T) {
	f := newFixture(t, websocket.Config{}, 0)
	a := f.dial(t, alice)
	b := f.dial(t, bob)
	require.Eventually(t, func() bool { return f.hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.WriteJSON(map[string]string{"content": "still here"}))
	assert.Equal(t, "still here", readChat(t, b).Content)
}

func TestSessionExpiryClosesConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real credential expiry")
	}
	f := newFixture(t, websocket.Config{}, time.Second)
	a := f.dial(t, alice)

	assert.Equal(t, websocket.TypeSessionExpired, readFrame(t, a).Type)

	_, _, err := a.ReadMessage()
	require.Error(t, err)
	assert.True(t, gorilla.IsCloseError(err, gorilla.ClosePolicyViolation), "unexpected error: %v", err)
	require.Eventually(t, func() bool { return f.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubShutdownClosesSockets(t *testing.T) {
	creds, err := auth.NewCredentials(auth.CredentialConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "relay-test",
	})
	require.NoError(t, err)
	h := hub.New(creds, memory.New(nil), content.NewNormalizer(200), nil, nil, hub.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = h.Run(ctx)
	}()

	e := echo.New()
	e.GET("/ws", websocket.NewHandler(h, websocket.Config{}, nil).Serve)
	server := httptest.NewServer(e)
	defer server.Close()

	token, _, err := creds.Issue(alice)
	require.NoError(t, err)
	conn, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp.Body != nil {
		resp.Body.Close()
	}
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "unexpected error: %v", err)
}
