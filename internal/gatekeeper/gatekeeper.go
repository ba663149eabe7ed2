package gatekeeper

import (
	"campusgate/internal/navigation"
	"campusgate/internal/session"
	"context"
	"fmt"
	"log/slog"
)

type SessionSource interface {
	Snapshot() session.Snapshot
	Watch() (<-chan struct{}, func())
}

type Navigator interface {
	Location() navigation.Location
	Replace(path string) error
	Watch() (<-chan struct{}, func())
}

type Gatekeeper struct {
	sessions SessionSource
	nav      Navigator
	routes   Routes
	log      *slog.Logger
	metrics  *Metrics
}

func New(sessions SessionSource, nav Navigator, routes Routes, log *slog.Logger, metrics *Metrics) *Gatekeeper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gatekeeper{
		sessions: sessions,
		nav:      nav,
		routes:   routes,
		log:      log,
		metrics:  metrics,
	}
}

// Run evaluates once, then again after every session or navigation change,
// until ctx is done or one of the change feeds closes.
func (g *Gatekeeper) Run(ctx context.Context) error {
	const op = "gatekeeper.Run"

	sessionCh, stopSession := g.sessions.Watch()
	defer stopSession()
	navCh, stopNav := g.nav.Watch()
	defer stopNav()

	g.log.Info("gatekeeper started", slog.String("op", op))
	g.Evaluate(ctx)

	for {
		select {
		case <-ctx.Done():
			g.log.Info("gatekeeper stopped", slog.String("op", op))
			return ctx.Err()
		case _, ok := <-sessionCh:
			if !ok {
				return fmt.Errorf("%s: session store closed", op)
			}
		case _, ok := <-navCh:
			if !ok {
				return fmt.Errorf("%s: navigator closed", op)
			}
		}
		g.Evaluate(ctx)
	}
}

// Evaluate makes one redirect decision and applies it. It reports whether the
// screen was replaced.
func (g *Gatekeeper) Evaluate(ctx context.Context) (redirected bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("gatekeeper evaluation panicked", slog.Any("panic", r))
			redirected = false
		}
	}()

	state := StateOf(g.sessions.Snapshot())
	loc := g.nav.Location()
	g.metrics.Evaluations.WithLabelValues(state.Status.String()).Inc()

	dest, ok := Decide(state, loc, g.routes)
	if !ok || normalize(dest) == loc.Path() {
		return false
	}

	if err := g.nav.Replace(dest); err != nil {
		g.log.ErrorContext(ctx, "redirect failed",
			slog.String("from", loc.Path()),
			slog.String("to", dest),
			slog.String("error", err.Error()))
		return false
	}

	g.metrics.Redirects.WithLabelValues(dest).Inc()
	g.log.InfoContext(ctx, "redirected",
		slog.String("state", state.Status.String()),
		slog.String("role", state.Role.String()),
		slog.String("from", loc.Path()),
		slog.String("to", dest))
	return true
}
