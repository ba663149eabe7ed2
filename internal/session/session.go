package session

import (
	"campusgate/internal/model"
	"campusgate/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Snapshot is a read-only copy of the session at one point in time.
type Snapshot struct {
	Loading bool
	Token   string
	User    model.User
}

func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

type Option func(*Store)

// WithTokenValidator makes Hydrate drop a persisted token the validator
// rejects, e.g. an expired JWT.
func WithTokenValidator(fn func(token string) error) Option {
	return func(s *Store) {
		s.validate = fn
	}
}

// Renewer trades a refresh token for a fresh access token and the refresh
// token to keep from now on.
type Renewer func(ctx context.Context, refreshToken string) (access, refresh string, err error)

// WithRenewer lets Hydrate renew a persisted token the validator rejects
// instead of dropping the session, when a refresh token was stored with it.
func WithRenewer(fn Renewer) Option {
	return func(s *Store) {
		s.renew = fn
	}
}

type LoginOption func(*loginParams)

type loginParams struct {
	refresh string
}

// WithRefreshToken persists a refresh token next to the session.
func WithRefreshToken(token string) LoginOption {
	return func(p *loginParams) {
		p.refresh = token
	}
}

var sessionKeys = []string{storage.KeyToken, storage.KeyUser, storage.KeyRefresh}

// Store is the only writer of the persisted session keys.
type Store struct {
	kv       storage.KV
	log      *slog.Logger
	validate func(string) error
	renew    Renewer

	mu       sync.Mutex
	loading  bool
	token    string
	user     model.User
	watchers map[int]chan struct{}
	nextID   int
	closed   bool
}

func New(kv storage.KV, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		log:      log,
		loading:  true,
		watchers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate restores the persisted session. It never fails: unreadable or
// half-written storage just means nobody is logged in.
func (s *Store) Hydrate(ctx context.Context) {
	const op = "session.Hydrate"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	defer s.mu.Unlock()

	token, user, refresh, err := s.read(ctx)
	if err == nil && token != "" && s.validate != nil {
		if verr := s.validate(token); verr != nil {
			token, err = s.renewLocked(ctx, refresh, verr)
		}
	}

	switch {
	case err != nil:
		log.Warn("session not restored", slog.String("error", err.Error()))
		s.token, s.user = "", nil
		if errors.Is(err, errPartial) {
			if err := s.kv.MultiRemove(ctx, sessionKeys...); err != nil {
				log.Warn("failed to drop partial session", slog.String("error", err.Error()))
			}
		}
	case token == "":
		s.token, s.user = "", nil
	default:
		s.token, s.user = token, user
		log.Debug("session restored",
			slog.String("user_id", user.ID()),
			slog.String("role", user.Role().String()))
	}

	s.loading = false
	s.notify()
}

var errPartial = errors.New("partial or malformed session in storage")

func (s *Store) read(ctx context.Context) (string, model.User, string, error) {
	token, tokenErr := s.kv.Get(ctx, storage.KeyToken)
	if tokenErr != nil && !errors.Is(tokenErr, storage.ErrNotFound) {
		return "", nil, "", fmt.Errorf("read token: %w", tokenErr)
	}
	raw, userErr := s.kv.Get(ctx, storage.KeyUser)
	if userErr != nil && !errors.Is(userErr, storage.ErrNotFound) {
		return "", nil, "", fmt.Errorf("read user: %w", userErr)
	}

	if token == "" && raw == "" {
		return "", nil, "", nil
	}
	if token == "" || raw == "" {
		return "", nil, "", errPartial
	}

	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user == nil {
		return "", nil, "", errPartial
	}

	refresh, err := s.kv.Get(ctx, storage.KeyRefresh)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", nil, "", fmt.Errorf("read refresh token: %w", err)
	}
	return token, user, refresh, nil
}

// renewLocked swaps a rejected token for a fresh one. Without a renewer or a
// refresh token, or when renewal fails, the session counts as partial and is
// dropped. Must be called with s.mu held.
func (s *Store) renewLocked(ctx context.Context, refresh string, rejected error) (string, error) {
	if s.renew == nil || refresh == "" {
		return "", fmt.Errorf("%w: %w", errPartial, rejected)
	}

	access, next, err := s.renew(ctx, refresh)
	if err != nil {
		return "", fmt.Errorf("%w: renew: %w", errPartial, err)
	}
	if access == "" {
		return "", fmt.Errorf("%w: renew returned no token", errPartial)
	}
	if next == "" {
		next = refresh
	}

	err = s.kv.MultiSet(ctx, []storage.Pair{
		{Key: storage.KeyToken, Value: access},
		{Key: storage.KeyRefresh, Value: next},
	})
	if err != nil {
		return "", fmt.Errorf("%w: persist renewed token: %w", errPartial, err)
	}

	s.log.Info("session renewed", slog.String("op", "session.Hydrate"))
	return access, nil
}

func (s *Store) Login(ctx context.Context, token string, user model.User, opts ...LoginOption) error {
	const op = "session.Login"

	if token == "" || user == nil {
		return ErrInvalidSession
	}

	var params loginParams
	for _, opt := range opts {
		opt(&params)
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("%s: encode user: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.kv.MultiSet(ctx, []storage.Pair{
		{Key: storage.KeyToken, Value: token},
		{Key: storage.KeyUser, Value: string(raw)},
		{Key: storage.KeyRefresh, Value: params.refresh},
	})
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	s.token, s.user = token, user.Clone()
	s.loading = false
	s.notify()

	s.log.Info("user logged in",
		slog.String("user_id", user.ID()),
		slog.String("role", user.Role().String()))
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, fields model.User) error {
	const op = "session.UpdateUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || s.user == nil {
		return ErrNoSession
	}

	merged := s.user.Merge(fields)
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("%s: encode user: %w", op, err)
	}

	if err := s.kv.Set(ctx, storage.KeyUser, string(raw)); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	s.user = merged
	s.notify()
	return nil
}

// Logout is a no-op when nobody is logged in.
func (s *Store) Logout(ctx context.Context) error {
	const op = "session.Logout"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" && s.user == nil {
		return nil
	}

	if err := s.kv.MultiRemove(ctx, sessionKeys...); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	userID := s.user.ID()
	s.token, s.user = "", nil
	s.notify()

	s.log.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// Expire drops the session after the backend rejected rejectedToken. A
// rejection of a token other than the current one is stale and ignored; an
// empty rejectedToken expires whatever session is active. Storage is cleared
// even when memory holds no session, since the rejected token may still be
// on disk. The clearing write outlives cancellation of ctx.
func (s *Store) Expire(ctx context.Context, rejectedToken string) {
	const op = "session.Expire"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	defer s.mu.Unlock()

	if rejectedToken != "" && s.token != "" && rejectedToken != s.token {
		log.Debug("ignoring 401 for a replaced token")
		return
	}

	if err := s.kv.MultiRemove(context.WithoutCancel(ctx), sessionKeys...); err != nil {
		log.Error("failed to clear persisted session", slog.String("error", err.Error()))
	}

	if s.token == "" && s.user == nil {
		return
	}

	log.Warn("session expired by backend", slog.String("user_id", s.user.ID()))
	s.token, s.user = "", nil
	s.notify()
}

// Token returns the bearer token to attach to the next request.
func (s *Store) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Loading: s.loading,
		Token:   s.token,
		User:    s.user.Clone(),
	}
}

// Watch returns a channel that receives a value after every state change.
// Notifications coalesce: a slow reader sees one pending signal, not one per
// change.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
}

// Close releases every watcher. The store keeps working afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

// notify must be called with s.mu held.
func (s *Store) notify() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
