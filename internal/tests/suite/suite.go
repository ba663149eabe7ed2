package suite

import (
	"bytes"
	"campusgate/internal/app"
	"campusgate/internal/config"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Account is a user the fake backend knows about.
type Account struct {
	Password string
	Token    string
	User     map[string]any
}

// Backend stands in for the REST backend: /auth/login, /auth/me,
// /auth/logout, /users/me and /users/me/avatar.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]Account
	revoked  map[string]bool
	logouts  int
}

func newBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		accounts: make(map[string]Account),
		revoked:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", b.handleLogin)
	mux.HandleFunc("GET /api/auth/me", b.handleMe)
	mux.HandleFunc("POST /api/auth/logout", b.handleLogout)
	mux.HandleFunc("PATCH /api/users/me", b.handleUpdateMe)
	mux.HandleFunc("POST /api/users/me/avatar", b.handleAvatar)

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) AddAccount(email string, acc Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[email] = acc
}

// Revoke makes every later request with token answer 401.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

func (b *Backend) Logouts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logouts
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[in.Email]
	b.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "user not found", http.StatusNotFound)
	case acc.Password != in.Password:
		http.Error(w, "wrong password", http.StatusUnauthorized)
	default:
		writeJSON(w, map[string]any{"token": acc.Token, "user": acc.User})
	}
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := b.byBearer(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"user": acc.User})
}

func (b *Backend) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := b.byBearer(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"user": b.update(acc, fields)})
}

func (b *Backend) handleAvatar(w http.ResponseWriter, r *http.Request) {
	acc, ok := b.byBearer(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	_, header, err := r.FormFile("avatar")
	if err != nil {
		http.Error(w, "avatar required", http.StatusBadRequest)
		return
	}
	user := b.update(acc, map[string]any{"avatar": "/uploads/" + header.Filename})
	writeJSON(w, map[string]any{"user": user})
}

func (b *Backend) update(acc Account, fields map[string]any) map[string]any {
	updated := make(map[string]any, len(acc.User)+len(fields))
	for k, v := range acc.User {
		updated[k] = v
	}
	for k, v := range fields {
		updated[k] = v
	}

	b.mu.Lock()
	for email, stored := range b.accounts {
		if stored.Token == acc.Token {
			stored.User = updated
			b.accounts[email] = stored
		}
	}
	b.mu.Unlock()

	return updated
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.byBearer(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	b.logouts++
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) byBearer(r *http.Request) (Account, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	defer b.mu.Unlock()
	if token == "" || b.revoked[token] {
		return Account{}, false
	}
	for _, acc := range b.accounts {
		if acc.Token == token {
			return acc, true
		}
	}
	return Account{}, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Suite runs the whole application against the fake backend with memory
// storage and exposes its control API.
type Suite struct {
	*testing.T

	App     *app.App
	Backend *Backend
	Control *httptest.Server
}

func New(t *testing.T) *Suite {
	t.Helper()

	backend := newBackend(t)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := config.Config{
		Env:     "local",
		Backend: config.BackendConfig{BaseURL: backend.URL + "/api", Timeout: 5 * time.Second},
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Routes:  config.RoutesConfig{Entry: "/", Login: "/login"},
	}

	ctx, cancel := context.WithCancel(context.Background())

	application, err := app.New(ctx, cfg, log)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := application.Run(ctx); err != nil {
			t.Logf("gatekeeper error: %v", err)
		}
	}()

	control := httptest.NewServer(application.Handler)

	s := &Suite{
		T:       t,
		App:     application,
		Backend: backend,
		Control: control,
	}

	require.Eventually(t, func() bool {
		return !application.Store.Snapshot().Loading
	}, 2*time.Second, 10*time.Millisecond, "session never finished loading")

	t.Cleanup(func() {
		control.Close()
		cancel()
		<-done
		application.Close()
	})

	return s
}

// Call sends a JSON request to the control API and decodes a JSON reply.
func (s *Suite) Call(method, path string, body any) (int, map[string]any) {
	s.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.Control.URL+path, reader)
	require.NoError(s.T, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.T, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.T, err)

	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(s.T, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

// Path is the screen the application is currently showing.
func (s *Suite) Path() string {
	return s.App.Navigator.Location().Path()
}

// WaitForPath waits for the gatekeeper to settle on path.
func (s *Suite) WaitForPath(path string) {
	s.Helper()
	require.Eventually(s.T, func() bool {
		return s.Path() == path
	}, 2*time.Second, 10*time.Millisecond, "expected screen %s, still on %s", path, s.Path())
}
