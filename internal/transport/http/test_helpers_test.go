package http

import (
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/auth"
	"github.com/andriik/webchat-server/internal/config"
	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/store"
	"github.com/andriik/webchat-server/internal/store/sqlite"
)

type testEnv struct {
	store   store.Store
	auth    *auth.Service
	hub     *core.Hub
	handler stdhttp.Handler
	ts      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})

	hub := core.NewHub(st, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	// Low enough to exercise the limiter without hundreds of sends.
	cfg.MessageRateLimit = 5

	server := NewServer(hub, authService, st, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		store:   st,
		auth:    authService,
		hub:     hub,
		handler: server.Handler,
		ts:      ts,
	}
}

// register creates a user through the auth service and returns their token.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, username+"@example.com", "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return token
}

func (e *testEnv) userID(t *testing.T, username string) int64 {
	t.Helper()

	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup user %s: %v", username, err)
	}
	return user.ID
}

// do performs a request against the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.handler.ServeHTTP(resp, req)
	return resp
}

// wsURL is the WebSocket endpoint of the test server, with optional token.
func (e *testEnv) wsURL(token string) string {
	url := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}
