package sso

import (
	"campusgate/internal/model"
	"campusgate/internal/provider"
	"campusgate/internal/token"
	"context"
	"fmt"
	"github.com/s10n41k/protos/gen/go/sso"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"log/slog"
	"strings"
	"time"
)

// Provider authenticates against the SSO gRPC service instead of the REST
// backend. The user record is read from the access token's claims.
type Provider struct {
	client   sso.AuthClient
	deviceID string
	timeout  time.Duration
	log      *slog.Logger
}

func NewProvider(client sso.AuthClient, deviceID string, timeout time.Duration, log *slog.Logger) *Provider {
	return &Provider{
		client:   client,
		deviceID: deviceID,
		timeout:  timeout,
		log:      log,
	}
}

func Dial(addr string) (*grpc.ClientConn, error) {
	const op = "sso.Dial"

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return conn, nil
}

func (p *Provider) Login(ctx context.Context, email, password string) (*model.Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, provider.ErrMissingData
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	p.log.Debug("sso login", slog.String("email", email), slog.String("device_id", p.deviceID))

	resp, err := p.client.Login(ctx, &sso.LoginRequest{
		Email:    email,
		Password: password,
		DeviceID: p.deviceID,
	})
	if err != nil {
		return nil, mapError(err)
	}

	access := resp.GetTokenAccess()
	if access == "" {
		p.log.Error("sso returned empty access token")
		return nil, provider.ErrMalformedResponse
	}

	claims, err := token.Inspect(access)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrMalformedResponse, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token carries no user", provider.ErrMalformedResponse)
	}

	user := claims.User()
	p.log.Info("sso login successful",
		slog.String("user_id", claims.UserID),
		slog.String("role", claims.Role))

	return &model.Credentials{Token: access, RefreshToken: resp.GetTokenRefresh(), User: user}, nil
}

// Renew trades a refresh token for a new access and refresh token pair.
func (p *Provider) Renew(ctx context.Context, refreshToken string) (string, string, error) {
	if refreshToken == "" {
		return "", "", provider.ErrMissingData
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.GetAccessToken(ctx, &sso.TokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", mapError(err)
	}
	if resp.GetAccessToken() == "" {
		p.log.Error("sso returned empty access token on renewal")
		return "", "", provider.ErrMalformedResponse
	}

	p.log.Info("sso token renewed")
	return resp.GetAccessToken(), resp.GetRefreshToken(), nil
}

func (p *Provider) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+accessToken)
	if _, err := p.client.Logout(ctx, &sso.LogoutRequest{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return provider.ErrUserNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", provider.ErrMissingData, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", provider.ErrInvalidCredentials, st.Message())
	default:
		return fmt.Errorf("sso %s: %s", st.Code(), st.Message())
	}
}
