// Package app wires all Sprachcoach subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP/WebSocket endpoints until cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithLiveProvider, WithAnalysisProvider, WithDeviceFactory). When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sprachcoach/internal/config"
	"github.com/MrWong99/sprachcoach/internal/controller"
	"github.com/MrWong99/sprachcoach/internal/feedback"
	"github.com/MrWong99/sprachcoach/internal/health"
	"github.com/MrWong99/sprachcoach/internal/observe"
	"github.com/MrWong99/sprachcoach/internal/turn"
	"github.com/MrWong99/sprachcoach/internal/ui"
	"github.com/MrWong99/sprachcoach/pkg/audio"
	"github.com/MrWong99/sprachcoach/pkg/audio/malgodev"
	"github.com/MrWong99/sprachcoach/pkg/provider/live"
	livegemini "github.com/MrWong99/sprachcoach/pkg/provider/live/gemini"
	"github.com/MrWong99/sprachcoach/pkg/provider/llm"
	"github.com/MrWong99/sprachcoach/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/sprachcoach/pkg/provider/llm/openai"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	liveProvider live.Provider
	analysis     llm.Provider
	devices      controller.DeviceFactory

	store      *turn.Store
	dispatcher *feedback.Dispatcher
	controller *controller.Controller
	bridge     *ui.Bridge
	metrics    *observe.Metrics

	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLiveProvider injects a live session provider instead of creating the
// Gemini one from config.
func WithLiveProvider(p live.Provider) Option {
	return func(a *App) { a.liveProvider = p }
}

// WithAnalysisProvider injects an analysis LLM provider instead of creating
// one from config.
func WithAnalysisProvider(p llm.Provider) Option {
	return func(a *App) { a.analysis = p }
}

// WithDeviceFactory injects a capture device factory instead of using the
// system microphone.
func WithDeviceFactory(f controller.DeviceFactory) Option {
	return func(a *App) { a.devices = f }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCloser registers fn to run during Shutdown, after the session is torn
// down and in-flight analyses have drained. Closers run in registration
// order; the entry point uses this to flush telemetry.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: providers, the turn
// store, the feedback dispatcher, the controller, and the UI bridge.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 2. Capture device factory ────────────────────────────────────────
	a.initDevices()

	// ── 3. Turn store + dispatcher ───────────────────────────────────────
	a.store = turn.NewStore()
	a.dispatcher = feedback.NewDispatcher(a.analysis, a.store, slog.Default())

	// ── 4. Controller ────────────────────────────────────────────────────
	analyzer := audio.NewAnalyzer(cfg.Audio.BlockSize*2, cfg.Audio.SampleRate)
	a.controller = controller.New(
		a.liveProvider,
		a.devices,
		a.store,
		a.dispatcher,
		analyzer,
		controller.Config{
			SampleRate:    cfg.Audio.SampleRate,
			SilenceWindow: cfg.Live.SilenceWindow,
		},
		slog.Default(),
		controller.WithMetrics(a.metrics),
		controller.WithCredentialCheck(func() error {
			if cfg.Live.APIKey == "" {
				return fmt.Errorf("live.api_key is not configured")
			}
			return nil
		}),
	)

	// ── 5. UI bridge + HTTP server ───────────────────────────────────────
	a.bridge = ui.New(a.controller, a.metrics, slog.Default())
	a.initServer()

	return a, nil
}

// initProviders creates the live and analysis providers from config unless
// test doubles were injected.
func (a *App) initProviders() error {
	if a.liveProvider == nil {
		var liveOpts []livegemini.Option
		if a.cfg.Live.Model != "" {
			liveOpts = append(liveOpts, livegemini.WithModel(a.cfg.Live.Model))
		}
		if a.cfg.Live.BaseURL != "" {
			liveOpts = append(liveOpts, livegemini.WithBaseURL(a.cfg.Live.BaseURL))
		}
		a.liveProvider = livegemini.New(a.cfg.Live.APIKey, liveOpts...)
	}

	if a.analysis == nil {
		p, err := buildAnalysisProvider(a.cfg.Analysis)
		if err != nil {
			return err
		}
		a.analysis = p
	}
	return nil
}

// buildAnalysisProvider selects the analysis backend. "openai" uses the
// native client; every other name is routed through the multi-provider
// client.
func buildAnalysisProvider(cfg config.AnalysisConfig) (llm.Provider, error) {
	if cfg.Provider == "openai" {
		var opts []llmopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
		}
		return llmopenai.New(cfg.APIKey, cfg.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// initDevices installs the system microphone factory unless one was injected.
func (a *App) initDevices() {
	if a.devices != nil {
		return
	}
	cfg := a.cfg.Audio
	a.devices = func(onBlock audio.BlockFunc) (audio.CaptureDevice, error) {
		return malgodev.Open(malgodev.Config{
			SampleRate: cfg.SampleRate,
			BlockSize:  cfg.BlockSize,
		}, onBlock)
	}
}

// initServer builds the HTTP mux: UI bridge, metrics, and health endpoints.
func (a *App) initServer() {
	mux := http.NewServeMux()
	a.bridge.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(health.Checker{
		Name: "credentials",
		Check: func(context.Context) error {
			if a.cfg.Live.APIKey == "" {
				return fmt.Errorf("live api key missing")
			}
			return nil
		},
	})
	h.Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown must stop the server even when Run's context is never
	// cancelled; a second close after Run's own shutdown is a no-op.
	a.closers = append(a.closers, a.server.Close)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and the spectrum broadcast loop until ctx is cancelled,
// then shuts the server down gracefully. Returns the first non-cancellation
// error encountered.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := a.bridge.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Controller exposes the connection controller, mainly for tests and the
// command-line entry point.
func (a *App) Controller() *controller.Controller { return a.controller }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects the session, waits for in-flight analyses, and runs
// all registered closers in order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.controller.Disconnect()
		a.dispatcher.Wait()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
