package http

import (
	"bytes"
	"campusgate/internal/api"
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"campusgate/internal/provider"
	"campusgate/internal/servises/account"
	"campusgate/internal/session"
	"campusgate/internal/storage"
	"campusgate/internal/tests/mock"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv     *httptest.Server
	handler http.Handler
	auth    *mock.MockAuthenticator
	store   *session.Store
	nav     *navigation.Router
}

// newHarness serves the control API over a memory session. profiles may be
// nil to run without a profile endpoint.
func newHarness(t *testing.T, profiles account.ProfileSource) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := session.New(storage.NewMemory(), log)
	store.Hydrate(context.Background())
	nav, err := navigation.NewRouter("/", log)
	require.NoError(t, err)

	auth := mock.NewMockAuthenticator()
	acc := account.NewService(auth, profiles, store, log)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "control_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	handler := NewServer(acc, store, nav, reg, log).Router()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { auth.AssertExpectations(t) })

	return &harness{srv: srv, handler: handler, auth: auth, store: store, nav: nav}
}

func avatarForm(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// upload goes through the handler directly so an oversized body is answered
// without racing the client's write.
func (h *harness) upload(t *testing.T, body *bytes.Buffer, contentType string, contentLength int64) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/session/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = contentLength
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "control_test_total 1")
}

func TestLogin_Flow(t *testing.T) {
	h := newHarness(t, nil)

	h.auth.On("Login", testifymock.Anything, "head@school.edu", "Password123").
		Return(&model.Credentials{Token: "tok", User: model.User{"_id": "9", "role": "school"}}, nil).
		Once()

	resp, body := h.do(t, http.MethodPost, "/session/login", `{"email":"head@school.edu","password":"Password123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "school", user["role"])

	resp, body = h.do(t, http.MethodGet, "/session", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, false, body["loading"])
	assert.Equal(t, "school", body["role"])
	assert.NotContains(t, body, "token")
}

func TestLogin_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad password", err: provider.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "unknown user", err: provider.ErrUserNotFound, want: http.StatusNotFound},
		{name: "backend down", err: assert.AnError, want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.auth.On("Login", testifymock.Anything, "a@gmail.com", "pw").Return(nil, tt.err).Once()

			resp, _ := h.do(t, http.MethodPost, "/session/login", `{"email":"a@gmail.com","password":"pw"}`)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.False(t, h.store.Snapshot().Authenticated())
		})
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPost, "/session/login", `{"email":"","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_credentials", body["error"])

	resp, _ = h.do(t, http.MethodPost, "/session/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, http.MethodPatch, "/session/user", `{"name":"Ada"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "shop"}))

	resp, body := h.do(t, http.MethodPatch, "/session/user", `{"name":"Ada"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "Ada", user["name"])
	assert.Equal(t, "shop", user["role"])
}

func TestPresenceAndLogout(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "student"}))

	resp, _ := h.do(t, http.MethodPost, "/session/presence", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/session/presence", `{"online":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["user"].(map[string]any)["isOnline"])

	h.auth.On("Logout", testifymock.Anything, "tok").Return(nil).Once()
	resp, _ = h.do(t, http.MethodPost, "/session/logout", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, h.store.Snapshot().Authenticated())
}

func TestNavigation(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodGet, "/navigation", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", body["path"])

	resp, body = h.do(t, http.MethodPost, "/navigation", `{"path":"/(shop)/Orders"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/(shop)/Orders", body["path"])
	assert.Equal(t, "shop", body["area"])
	assert.Equal(t, 2, h.nav.Depth())

	resp, _ = h.do(t, http.MethodPost, "/navigation", `{"path":"/login","replace":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, h.nav.Depth())
	assert.Equal(t, "/login", h.nav.Location().Path())

	resp, body = h.do(t, http.MethodPost, "/navigation", `{"path":"/../etc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_path", body["error"])
}

func TestProfileEndpoints(t *testing.T) {
	login := func(t *testing.T, h *harness) {
		require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "shop", "name": "Print Co"}))
	}

	tests := []struct {
		name     string
		profiles bool
		signedIn bool
		setup    func(p *mock.MockProfiles)
		method   string
		path     string
		body     string
		want     int
		wantErr  string
	}{
		{
			name: "refresh without profile source", signedIn: true,
			method: http.MethodPost, path: "/session/refresh",
			want: http.StatusNotImplemented, wantErr: "profile_unavailable",
		},
		{
			name: "refresh without session", profiles: true,
			method: http.MethodPost, path: "/session/refresh",
			want: http.StatusUnauthorized, wantErr: "no_session",
		},
		{
			name: "refresh rejected by backend", profiles: true, signedIn: true,
			setup: func(p *mock.MockProfiles) {
				p.On("Profile", testifymock.Anything).Return(nil, api.ErrUnauthorized).Once()
			},
			method: http.MethodPost, path: "/session/refresh",
			want: http.StatusUnauthorized, wantErr: "session_expired",
		},
		{
			name: "refresh merges profile", profiles: true, signedIn: true,
			setup: func(p *mock.MockProfiles) {
				p.On("Profile", testifymock.Anything).
					Return(model.User{"_id": "1", "role": "shop", "name": "Print Co", "avatar": "/logo.png"}, nil).
					Once()
			},
			method: http.MethodPost, path: "/session/refresh",
			want: http.StatusOK,
		},
		{
			name: "edit profile rejected", profiles: true, signedIn: true,
			setup: func(p *mock.MockProfiles) {
				p.On("UpdateProfile", testifymock.Anything, model.User{"name": ""}).
					Return(nil, provider.ErrMissingData).
					Once()
			},
			method: http.MethodPatch, path: "/session/profile", body: `{"name":""}`,
			want: http.StatusBadRequest, wantErr: "invalid_profile",
		},
		{
			name: "edit profile empty body", profiles: true, signedIn: true,
			method: http.MethodPatch, path: "/session/profile", body: `{}`,
			want: http.StatusBadRequest, wantErr: "invalid_body",
		},
		{
			name: "edit profile saves", profiles: true, signedIn: true,
			setup: func(p *mock.MockProfiles) {
				p.On("UpdateProfile", testifymock.Anything, model.User{"avatar": "/logo.png"}).
					Return(model.User{"_id": "1", "role": "shop", "avatar": "/logo.png"}, nil).
					Once()
			},
			method: http.MethodPatch, path: "/session/profile", body: `{"avatar":"/logo.png"}`,
			want: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h *harness
			if tt.profiles {
				profiles := mock.NewMockProfiles()
				if tt.setup != nil {
					tt.setup(profiles)
				}
				t.Cleanup(func() { profiles.AssertExpectations(t) })
				h = newHarness(t, profiles)
			} else {
				h = newHarness(t, nil)
			}
			if tt.signedIn {
				login(t, h)
			}

			resp, body := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"])
				return
			}
			user := body["user"].(map[string]any)
			assert.Equal(t, "/logo.png", user["avatar"])
			assert.Equal(t, "/logo.png", h.store.Snapshot().User["avatar"])
		})
	}
}

func TestAvatarUpload(t *testing.T) {
	profiles := mock.NewMockProfiles()
	t.Cleanup(func() { profiles.AssertExpectations(t) })
	h := newHarness(t, profiles)
	require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "student"}))

	profiles.On("UploadAvatar", testifymock.Anything, "me.png", testifymock.Anything).
		Return(model.User{"_id": "1", "role": "student", "avatar": "/uploads/me.png"}, nil).
		Once()

	body, ct := avatarForm(t, "avatar", "me.png", []byte("png"))
	rec := h.upload(t, body, ct, int64(body.Len()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/uploads/me.png", h.store.Snapshot().User["avatar"])

	body, ct = avatarForm(t, "photo", "me.png", []byte("png"))
	rec = h.upload(t, body, ct, int64(body.Len()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_avatar")
}

func TestAvatarUpload_RejectsOversizedFile(t *testing.T) {
	tests := []struct {
		name          string
		contentLength func(body *bytes.Buffer) int64
	}{
		{name: "declared length", contentLength: func(b *bytes.Buffer) int64 { return int64(b.Len()) }},
		{name: "unknown length", contentLength: func(*bytes.Buffer) int64 { return -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := mock.NewMockProfiles()
			h := newHarness(t, profiles)
			require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "student"}))

			body, ct := avatarForm(t, "avatar", "huge.png", bytes.Repeat([]byte{0xff}, maxAvatarBytes+formOverhead+1))
			rec := h.upload(t, body, ct, tt.contentLength(body))

			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
			assert.Contains(t, rec.Body.String(), "avatar_too_large")
			profiles.AssertNotCalled(t, "UploadAvatar", testifymock.Anything, testifymock.Anything, testifymock.Anything)
		})
	}
}

func TestAvatarUpload_RejectsFileOverLimit(t *testing.T) {
	profiles := mock.NewMockProfiles()
	h := newHarness(t, profiles)
	require.NoError(t, h.store.Login(context.Background(), "tok", model.User{"_id": "1", "role": "student"}))

	// within the body allowance, but the file itself is over the limit
	body, ct := avatarForm(t, "avatar", "big.png", bytes.Repeat([]byte{0xff}, maxAvatarBytes+1))
	rec := h.upload(t, body, ct, int64(body.Len()))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	profiles.AssertNotCalled(t, "UploadAvatar", testifymock.Anything, testifymock.Anything, testifymock.Anything)
}
