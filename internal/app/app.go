package app

import (
	"campusgate/internal/api"
	httpapp "campusgate/internal/app/http"
	"campusgate/internal/config"
	"campusgate/internal/gatekeeper"
	controlhttp "campusgate/internal/http"
	"campusgate/internal/navigation"
	"campusgate/internal/provider/backend"
	ssoprovider "campusgate/internal/provider/sso"
	redis2 "campusgate/internal/redis"
	"campusgate/internal/servises/account"
	"campusgate/internal/session"
	"campusgate/internal/sqlite"
	"campusgate/internal/storage"
	"campusgate/internal/token"
	"campusgate/pkg/client/redis"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/s10n41k/protos/gen/go/sso"
)

const redisConnectAttempts = 5

type App struct {
	HTTPServer *httpapp.App
	Handler    http.Handler
	Store      *session.Store
	Navigator  *navigation.Router
	Gatekeeper *gatekeeper.Gatekeeper

	log     *slog.Logger
	closers []io.Closer
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{log: log}

	kv, err := a.openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	storeOpts := []session.Option{session.WithTokenValidator(token.CheckExpiry)}

	var ssoAuth *ssoprovider.Provider
	if cfg.SSO.Enabled {
		ssoAuth, err = a.ssoAuthenticator(ctx, cfg.SSO, kv)
		if err != nil {
			a.Close()
			return nil, err
		}
		storeOpts = append(storeOpts, session.WithRenewer(ssoAuth.Renew))
	}

	store := session.New(kv, log, storeOpts...)

	client, err := api.New(api.Config{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	}, store, log, api.OnUnauthorized(store.Expire))
	if err != nil {
		a.Close()
		return nil, err
	}

	backendProvider := backend.NewProvider(client, log)

	var authenticator account.Authenticator = backendProvider
	if ssoAuth != nil {
		authenticator = ssoAuth
	}

	routes := gatekeeper.DefaultRoutes().WithDashboards(cfg.Routes.Dashboards)
	if cfg.Routes.Entry != "" {
		routes.Entry = cfg.Routes.Entry
	}
	if cfg.Routes.Login != "" {
		routes.Login = cfg.Routes.Login
	}
	if err := routes.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("routes: %w", err)
	}

	nav, err := navigation.NewRouter(routes.Entry, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("navigation: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gk := gatekeeper.New(store, nav, routes, log, gatekeeper.NewMetrics(reg))

	svc := account.NewService(authenticator, backendProvider, store, log)
	server := controlhttp.NewServer(svc, store, nav, reg, log)

	a.Handler = server.Router()
	a.HTTPServer = httpapp.New(log, a.Handler, cfg.ListenConfig.BindIP, cfg.ListenConfig.Port)
	a.Store = store
	a.Navigator = nav
	a.Gatekeeper = gk
	return a, nil
}

// Run restores the persisted session, then drives the gatekeeper until ctx
// is done.
func (a *App) Run(ctx context.Context) error {
	a.Store.Hydrate(ctx)

	err := a.Gatekeeper.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}

func (a *App) openStorage(ctx context.Context, cfg config.Config) (storage.KV, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return sqlite.NewRepositorySQLite(ctx, db)

	case config.DriverRedis:
		client, err := redis.NewClient(ctx, redisConnectAttempts, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return redis2.NewRepositoryRedis(client, cfg.Storage.Namespace), nil

	case config.DriverMemory:
		a.log.Warn("memory storage selected, session will not survive a restart")
		return storage.NewMemory(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) ssoAuthenticator(ctx context.Context, cfg config.SSOConfig, kv storage.KV) (*ssoprovider.Provider, error) {
	deviceID, err := storage.DeviceID(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	conn, err := ssoprovider.Dial(cfg.Addr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn)

	a.log.Info("sso authentication enabled",
		slog.String("addr", cfg.Addr),
		slog.String("device_id", deviceID))

	return ssoprovider.NewProvider(sso.NewAuthClient(conn), deviceID, cfg.Timeout, a.log), nil
}
