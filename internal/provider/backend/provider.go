package backend

import (
	"campusgate/internal/api"
	"campusgate/internal/model"
	"campusgate/internal/provider"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client is the slice of the shared HTTP client the provider needs.
type Client interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

type Provider struct {
	client Client
	log    *slog.Logger
}

func NewProvider(client Client, log *slog.Logger) *Provider {
	return &Provider{client: client, log: log}
}

func (p *Provider) Login(ctx context.Context, email, password string) (*model.Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, provider.ErrMissingData
	}

	p.log.Debug("calling backend login", slog.String("email", email))

	var out model.LoginResponse
	err := p.client.Post(ctx, "/auth/login", model.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, mapError(err)
	}

	if out.Token == "" || out.User == nil {
		p.log.Error("backend login returned no session",
			slog.Bool("has_token", out.Token != ""),
			slog.Bool("has_user", out.User != nil))
		return nil, provider.ErrMalformedResponse
	}

	if !out.User.Role().Valid() {
		p.log.Warn("backend returned unexpected role",
			slog.String("user_id", out.User.ID()),
			slog.String("role", out.User.Role().String()))
	}

	p.log.Debug("backend login completed", slog.String("user_id", out.User.ID()))
	return &model.Credentials{Token: out.Token, User: out.User}, nil
}

// Logout tells the backend to drop the token. The shared client attaches the
// bearer itself, so token is unused here.
func (p *Provider) Logout(ctx context.Context, _ string) error {
	if err := p.client.Post(ctx, "/auth/logout", nil, nil); err != nil {
		return mapError(err)
	}
	return nil
}

// Profile fetches the logged-in user. The backend answers either
// {"user": {...}} or the bare user object.
func (p *Provider) Profile(ctx context.Context) (model.User, error) {
	var raw model.User
	if err := p.client.Get(ctx, "/auth/me", &raw); err != nil {
		return nil, mapError(err)
	}
	return unwrapUser(raw)
}

func (p *Provider) UpdateProfile(ctx context.Context, fields model.User) (model.User, error) {
	var raw model.User
	if err := p.client.Patch(ctx, "/users/me", fields, &raw); err != nil {
		return nil, mapError(err)
	}
	return unwrapUser(raw)
}

// UploadAvatar sends a new profile photo as multipart form data and returns
// the updated user.
func (p *Provider) UploadAvatar(ctx context.Context, filename string, photo io.Reader) (model.User, error) {
	form := api.NewForm().File("avatar", filename, photo)

	var raw model.User
	if err := p.client.Post(ctx, "/users/me/avatar", form, &raw); err != nil {
		return nil, mapError(err)
	}
	return unwrapUser(raw)
}

func unwrapUser(raw model.User) (model.User, error) {
	if nested, ok := raw["user"].(map[string]any); ok {
		return model.User(nested), nil
	}
	if len(raw) == 0 {
		return nil, provider.ErrMalformedResponse
	}
	return raw, nil
}

func mapError(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
	}

	var serr *api.StatusError
	if errors.As(err, &serr) {
		switch serr.Code {
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", provider.ErrMissingData, serr.Body)
		case http.StatusNotFound:
			return provider.ErrUserNotFound
		}
	}
	return err
}
