// Package app wires the relay services once at process start.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/content"
	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/server"
)

// busBufferSize is the per-subscriber buffer of the in-process event bus.
const busBufferSize = 256

// App owns the dependency container.
type App struct {
	injector do.Injector
	cfg      *config.Config
	logger   *slog.Logger

	provider auth.IdentityProvider
	ledger   ledger.Ledger

	mu      sync.Mutex
	closers []func() error
}

// Option overrides a service before it is first resolved.
type Option func(a *App)

// WithIdentityProvider replaces the Google provider, for tests and local tools.
func WithIdentityProvider(p auth.IdentityProvider) Option {
	return func(a *App) { a.provider = p }
}

// WithLedger replaces the configured ledger backend. The caller keeps
// ownership and must close it.
func WithLedger(l ledger.Ledger) Option {
	return func(a *App) { a.ledger = l }
}

// New registers every service provider. Nothing is constructed until Run or
// one of the accessors resolves it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)

	do.Provide(i, func(do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return reg, nil
	})
	do.Provide(i, func(i do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector(do.MustInvoke[*prometheus.Registry](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		bus := pubsub.NewWatermillBridge(do.MustInvoke[*slog.Logger](i), busBufferSize)
		a.onClose(bus.Close)
		return bus, nil
	})
	do.Provide(i, func(i do.Injector) (*presence.Service, error) {
		svc := presence.NewService(do.MustInvoke[*slog.Logger](i))
		a.onClose(func() error {
			svc.Shutdown()
			return nil
		})
		return svc, nil
	})
	do.Provide(i, func(i do.Injector) (ledger.Ledger, error) {
		if a.ledger != nil {
			return a.ledger, nil
		}
		l, err := OpenLedger(ctx, do.MustInvoke[*config.Config](i), do.MustInvoke[*slog.Logger](i))
		if err != nil {
			return nil, err
		}
		a.onClose(l.Close)
		return l, nil
	})
	do.Provide(i, func(i do.Injector) (*auth.Credentials, error) {
		c := do.MustInvoke[*config.Config](i)
		return auth.NewCredentials(auth.CredentialConfig{Secret: []byte(c.JWTSecret), Issuer: c.JWTIssuer})
	})
	do.Provide(i, func(i do.Injector) (auth.IdentityProvider, error) {
		if a.provider != nil {
			return a.provider, nil
		}
		c := do.MustInvoke[*config.Config](i)
		if err := c.RequireProvider(); err != nil {
			return nil, err
		}
		return auth.NewGoogleProvider(ctx, c.GoogleIssuer, c.GoogleClientID, c.ProviderTimeout)
	})
	do.Provide(i, func(i do.Injector) (*auth.Service, error) {
		provider, err := do.Invoke[auth.IdentityProvider](i)
		if err != nil {
			return nil, fmt.Errorf("identity provider: %w", err)
		}
		return auth.NewService(provider, do.MustInvoke[*auth.Credentials](i), do.MustInvoke[*slog.Logger](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*hub.Hub, error) {
		c := do.MustInvoke[*config.Config](i)
		l, err := do.Invoke[ledger.Ledger](i)
		if err != nil {
			return nil, err
		}
		return hub.New(
			do.MustInvoke[*auth.Credentials](i),
			l,
			content.NewNormalizer(c.MaxMessageLength),
			do.MustInvoke[*pubsub.WatermillBridge](i),
			do.MustInvoke[*slog.Logger](i),
			hub.Config{SendBuffer: c.WSSendBuffer},
		), nil
	})
	do.Provide(i, func(i do.Injector) (*server.Server, error) {
		service, err := do.Invoke[*auth.Service](i)
		if err != nil {
			return nil, err
		}
		h, err := do.Invoke[*hub.Hub](i)
		if err != nil {
			return nil, err
		}
		s := server.New(server.Dependencies{
			Config:   do.MustInvoke[*config.Config](i),
			Logger:   do.MustInvoke[*slog.Logger](i),
			Login:    service,
			Recorder: do.MustInvoke[*metrics.Collector](i),
			Sessions: service,
			History:  do.MustInvoke[ledger.Ledger](i),
			Hub:      h,
			Presence: do.MustInvoke[*presence.Service](i),
			Registry: do.MustInvoke[*prometheus.Registry](i),
		})
		s.RegisterRoutes()
		return s, nil
	})

	a.injector = i
	return a
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Server resolves the fully wired HTTP server.
func (a *App) Server() (*server.Server, error) {
	return do.Invoke[*server.Server](a.injector)
}

// Ledger resolves the message ledger.
func (a *App) Ledger() (ledger.Ledger, error) {
	return do.Invoke[ledger.Ledger](a.injector)
}

// Run subscribes the metrics collector and presence service to hub events
// and serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	s, err := a.Server()
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	bus := do.MustInvoke[*pubsub.WatermillBridge](a.injector)
	collector := do.MustInvoke[*metrics.Collector](a.injector)
	if err := collector.Subscribe(ctx, bus); err != nil {
		return fmt.Errorf("subscribe metrics: %w", err)
	}
	if err := do.MustInvoke[*presence.Service](a.injector).Subscribe(ctx, bus); err != nil {
		return fmt.Errorf("subscribe presence: %w", err)
	}

	a.logger.Info("Starting relay", "addr", a.cfg.Addr, "ledger", a.cfg.LedgerDriver)
	return s.Start(ctx)
}

// Close releases the resources the container opened, newest first.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	return errors.Join(errs...)
}
