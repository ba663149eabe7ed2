package account

import (
	"campusgate/internal/model"
	"campusgate/internal/session"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var ErrProfileUnavailable = errors.New("profile source not configured")

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.Credentials, error)
	Logout(ctx context.Context, token string) error
}

type ProfileSource interface {
	Profile(ctx context.Context) (model.User, error)
	UpdateProfile(ctx context.Context, fields model.User) (model.User, error)
	UploadAvatar(ctx context.Context, filename string, photo io.Reader) (model.User, error)
}

type Sessions interface {
	Login(ctx context.Context, token string, user model.User, opts ...session.LoginOption) error
	UpdateUser(ctx context.Context, fields model.User) error
	Logout(ctx context.Context) error
	Snapshot() session.Snapshot
}

type Account struct {
	auth     Authenticator
	profiles ProfileSource
	sessions Sessions
	log      *slog.Logger
}

// NewService wires the account flows. profiles may be nil when the
// authenticator has no profile endpoint.
func NewService(auth Authenticator, profiles ProfileSource, sessions Sessions, log *slog.Logger) *Account {
	return &Account{
		auth:     auth,
		profiles: profiles,
		sessions: sessions,
		log:      log,
	}
}

func (a *Account) SignIn(ctx context.Context, email, password string) (model.User, error) {
	creds, err := a.auth.Login(ctx, email, password)
	if err != nil {
		a.log.Warn("login failed", "email", email, "error", err)
		return nil, err
	}

	if err := a.sessions.Login(ctx, creds.Token, creds.User, session.WithRefreshToken(creds.RefreshToken)); err != nil {
		a.log.Error("failed to store session", "user_id", creds.User.ID(), "error", err)
		return nil, fmt.Errorf("store session: %w", err)
	}

	return creds.User.Clone(), nil
}

// SignOut always clears the local session; a failed remote logout is only
// logged.
func (a *Account) SignOut(ctx context.Context) error {
	snap := a.sessions.Snapshot()
	if snap.Token != "" {
		if err := a.auth.Logout(ctx, snap.Token); err != nil {
			a.log.Warn("remote logout failed", "user_id", snap.User.ID(), "error", err)
		}
	}

	return a.sessions.Logout(ctx)
}

func (a *Account) RefreshProfile(ctx context.Context) (model.User, error) {
	if a.profiles == nil {
		return nil, ErrProfileUnavailable
	}
	if !a.sessions.Snapshot().Authenticated() {
		return nil, session.ErrNoSession
	}

	profile, err := a.profiles.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	return a.merge(ctx, profile)
}

// EditProfile saves fields on the backend and merges what it answers into
// the session.
func (a *Account) EditProfile(ctx context.Context, fields model.User) (model.User, error) {
	if a.profiles == nil {
		return nil, ErrProfileUnavailable
	}
	if !a.sessions.Snapshot().Authenticated() {
		return nil, session.ErrNoSession
	}

	saved, err := a.profiles.UpdateProfile(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return a.merge(ctx, saved)
}

func (a *Account) ChangeAvatar(ctx context.Context, filename string, photo io.Reader) (model.User, error) {
	if a.profiles == nil {
		return nil, ErrProfileUnavailable
	}
	if !a.sessions.Snapshot().Authenticated() {
		return nil, session.ErrNoSession
	}

	saved, err := a.profiles.UploadAvatar(ctx, filename, photo)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	return a.merge(ctx, saved)
}

func (a *Account) merge(ctx context.Context, user model.User) (model.User, error) {
	if err := a.sessions.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return a.sessions.Snapshot().User, nil
}

func (a *Account) SetPresence(ctx context.Context, online bool) error {
	return a.sessions.UpdateUser(ctx, model.User{"isOnline": online})
}
