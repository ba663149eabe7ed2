package http

import (
	"campusgate/internal/api"
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"campusgate/internal/provider"
	"campusgate/internal/servises/account"
	"campusgate/internal/session"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxAvatarBytes = 5 << 20
	// room for multipart boundaries and headers around the file
	formOverhead = 1 << 20
)

type Account interface {
	SignIn(ctx context.Context, email, password string) (model.User, error)
	SignOut(ctx context.Context) error
	SetPresence(ctx context.Context, online bool) error
	RefreshProfile(ctx context.Context) (model.User, error)
	EditProfile(ctx context.Context, fields model.User) (model.User, error)
	ChangeAvatar(ctx context.Context, filename string, photo io.Reader) (model.User, error)
}

type Sessions interface {
	Snapshot() session.Snapshot
	UpdateUser(ctx context.Context, fields model.User) error
}

type Navigator interface {
	Location() navigation.Location
	Push(path string) error
	Replace(path string) error
}

type Server struct {
	account  Account
	sessions Sessions
	nav      Navigator
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

// NewServer builds the control API. A nil gatherer serves the default
// prometheus registry.
func NewServer(account Account, sessions Sessions, nav Navigator, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		account:  account,
		sessions: sessions,
		nav:      nav,
		gatherer: gatherer,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/login", s.handleLogin)
		r.Patch("/user", s.handleUpdateUser)
		r.Post("/logout", s.handleLogout)
		r.Post("/presence", s.handlePresence)
		r.Post("/refresh", s.handleRefresh)
		r.Patch("/profile", s.handleEditProfile)
		r.Post("/avatar", s.handleAvatar)
	})

	r.Get("/navigation", s.handleGetNavigation)
	r.Post("/navigation", s.handleNavigate)

	return r
}

type sessionResponse struct {
	Loading       bool       `json:"loading"`
	Authenticated bool       `json:"authenticated"`
	Role          string     `json:"role,omitempty"`
	User          model.User `json:"user"`
}

type userResponse struct {
	User model.User `json:"user"`
}

type presenceRequest struct {
	Online *bool `json:"online"`
}

type navigateRequest struct {
	Path    string `json:"path"`
	Replace bool   `json:"replace"`
}

type locationResponse struct {
	Path string `json:"path"`
	Area string `json:"area,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	snap := s.sessions.Snapshot()
	resp := sessionResponse{
		Loading:       snap.Loading,
		Authenticated: snap.Authenticated(),
		User:          snap.User,
	}
	if snap.Authenticated() {
		resp.Role = snap.User.Role().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.account.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code := loginStatus(err)
		writeError(w, status, code)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var fields model.User
	if err := decodeJSON(r, &fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	if err := s.sessions.UpdateUser(r.Context(), fields); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: s.sessions.Snapshot().User})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.account.SignOut(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := decodeJSON(r, &req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	if err := s.account.SetPresence(r.Context(), *req.Online); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: s.sessions.Snapshot().User})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user, err := s.account.RefreshProfile(r.Context())
	s.writeProfileResult(w, user, err)
}

func (s *Server) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	var fields model.User
	if err := decodeJSON(r, &fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	user, err := s.account.EditProfile(r.Context(), fields)
	s.writeProfileResult(w, user, err)
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxAvatarBytes+formOverhead {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar_too_large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+formOverhead)

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "avatar_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_avatar")
		return
	}
	defer file.Close()
	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar_too_large")
		return
	}

	user, err := s.account.ChangeAvatar(r.Context(), header.Filename, file)
	s.writeProfileResult(w, user, err)
}

func (s *Server) writeProfileResult(w http.ResponseWriter, user model.User, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, userResponse{User: user})
	case errors.Is(err, api.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session_expired")
	case errors.Is(err, account.ErrProfileUnavailable):
		writeError(w, http.StatusNotImplemented, "profile_unavailable")
	case errors.Is(err, provider.ErrMissingData):
		writeError(w, http.StatusBadRequest, "invalid_profile")
	default:
		s.writeSessionError(w, err)
	}
}

func (s *Server) handleGetNavigation(w http.ResponseWriter, _ *http.Request) {
	loc := s.nav.Location()
	writeJSON(w, http.StatusOK, locationResponse{Path: loc.Path(), Area: loc.Area()})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	move := s.nav.Push
	if req.Replace {
		move = s.nav.Replace
	}
	if err := move(req.Path); err != nil {
		if errors.Is(err, navigation.ErrInvalidPath) {
			writeError(w, http.StatusBadRequest, "invalid_path")
			return
		}
		s.log.Error("navigation failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "navigation_failed")
		return
	}

	loc := s.nav.Location()
	writeJSON(w, http.StatusOK, locationResponse{Path: loc.Path(), Area: loc.Area()})
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var perr *session.PersistenceError
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "no_session")
	case errors.As(err, &perr):
		s.log.Error("session persistence failed", slog.String("op", perr.Op), slog.String("error", perr.Err.Error()))
		writeError(w, http.StatusInternalServerError, "storage_failed")
	default:
		s.log.Error("session operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func loginStatus(err error) (int, string) {
	var perr *session.PersistenceError
	switch {
	case errors.Is(err, provider.ErrMissingData):
		return http.StatusBadRequest, "missing_credentials"
	case errors.Is(err, provider.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, provider.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.As(err, &perr):
		return http.StatusInternalServerError, "storage_failed"
	default:
		return http.StatusBadGateway, "backend_unavailable"
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("control request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
