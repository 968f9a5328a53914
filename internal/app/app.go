// Package app wires the dialcore subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects the
// subsystems, Run serves media legs until the context is cancelled, and
// Shutdown tears everything down in order. Inject test doubles through the
// functional options; anything not injected is built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/dialverse/dialcore/internal/bridge"
	"github.com/dialverse/dialcore/internal/call"
	"github.com/dialverse/dialcore/internal/callstore"
	"github.com/dialverse/dialcore/internal/channel"
	"github.com/dialverse/dialcore/internal/config"
	"github.com/dialverse/dialcore/internal/event"
	"github.com/dialverse/dialcore/internal/health"
	"github.com/dialverse/dialcore/internal/interrupt"
	"github.com/dialverse/dialcore/internal/language"
	"github.com/dialverse/dialcore/internal/observe"
	"github.com/dialverse/dialcore/internal/synth"
	"github.com/dialverse/dialcore/pkg/provider/dialog"
	"github.com/dialverse/dialcore/pkg/provider/stt"
	"github.com/dialverse/dialcore/pkg/provider/tts"
	"github.com/dialverse/dialcore/pkg/provider/vad"
)

// Providers holds the vendor-facing collaborators, populated by main from
// the config registry. TTS maps provider name to synthesizer; Order lists
// the names in configured preference order.
type Providers struct {
	STT    stt.Provider
	Dialog dialog.Generator
	VAD    vad.Engine
	TTS    map[string]tts.Synthesizer
	Order  []string
}

func (p *Providers) validate() error {
	var errs []error
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.Dialog == nil {
		errs = append(errs, errors.New("dialog provider is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if len(p.TTS) == 0 {
		errs = append(errs, errors.New("at least one tts provider is required"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	bus        *event.Bus
	metrics    *observe.Metrics
	store      callstore.Store
	recorder   *callstore.Recorder
	dispatcher *synth.Dispatcher
	bridge     *bridge.Server
	registry   *channel.Registry
	httpSrv    *http.Server

	telemetry bool

	// closers run in order during Shutdown.
	closers []func(context.Context) error

	mu     sync.Mutex
	active map[string]struct{}
	calls  sync.WaitGroup

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a call event store instead of building one from config.
func WithStore(s callstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithBus injects an event bus, letting tests subscribe before any events
// flow.
func WithBus(b *event.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithoutTelemetry skips OTel SDK initialisation. Metric calls fall through
// to the global no-op providers.
func WithoutTelemetry() Option {
	return func(a *App) { a.telemetry = false }
}

// New wires the pipeline together: telemetry, the event store and recorder,
// the synthesis dispatcher, the media bridge, the channel registry, and the
// HTTP surface.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		telemetry: true,
		active:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.bus == nil {
		a.bus = event.NewBus()
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initDispatcher(); err != nil {
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}
	a.initTransport()
	a.initHTTP()

	return a, nil
}

// Bus exposes the event bus, mainly for tests and auxiliary consumers.
func (a *App) Bus() *event.Bus { return a.bus }

// Registry exposes the channel registry.
func (a *App) Registry() *channel.Registry { return a.registry }

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initTelemetry(ctx context.Context) error {
	if a.telemetry {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: "dialcore",
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, shutdown)
	}

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = metrics
	a.bus.Subscribe(observe.EventHandler(metrics))
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Store.PostgresDSN; dsn != "" {
			store, err := callstore.NewPostgresStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.store = store
		} else {
			slog.Warn("no postgres_dsn configured, call events stay in process memory")
			a.store = callstore.NewMemoryStore()
		}
	}

	a.recorder = callstore.NewRecorder(a.store)
	a.bus.Subscribe(func(ev event.Event) {
		a.recorder.Handle(callstore.FromEvent(ev))
	})

	a.closers = append(a.closers, func(context.Context) error {
		a.recorder.Close()
		a.store.Close()
		return nil
	})
	return nil
}

func (a *App) initDispatcher() error {
	var chains map[synth.Category][]string
	if len(a.cfg.Providers.FallbackChains) > 0 {
		chains = make(map[synth.Category][]string, len(synth.Categories))
		for _, cat := range synth.Categories {
			if chain, ok := a.cfg.Providers.FallbackChains[string(cat)]; ok {
				chains[cat] = chain
			} else {
				chains[cat] = a.providers.Order
			}
		}
	}

	dispatcher, err := synth.NewDispatcher(synth.DispatcherConfig{
		Providers:       a.providers.TTS,
		Order:           a.providers.Order,
		Chains:          chains,
		ProviderTimeout: a.cfg.Pipeline.PerProviderTimeout(),
		OnFallback: func(callID, provider string, cat synth.Category) {
			a.bus.Publish(event.Event{
				Type:          event.TypeSynthesisFallbackUsed,
				CallID:        callID,
				Provider:      provider,
				ErrorCategory: string(cat),
			})
		},
	})
	if err != nil {
		return err
	}
	a.dispatcher = dispatcher
	return nil
}

func (a *App) initTransport() {
	a.bridge = bridge.NewServer()
	a.registry = channel.NewRegistry(channel.Config{
		ChunkSize:            a.cfg.Pipeline.ChunkSizeBytes,
		ChunkInterval:        a.cfg.Pipeline.ChunkInterval(),
		MaxReconnectAttempts: a.cfg.Pipeline.MaxReconnectAttempts,
		IdleTimeout:          a.cfg.Pipeline.IdleTimeout(),
	}, a.bridge, a.bus, nil)
}

func (a *App) initHTTP() {
	mediaPath := a.cfg.Server.MediaPath
	if mediaPath == "" {
		mediaPath = "/media"
	}

	checkers := []health.Checker{
		health.SynthesisChecker(a.dispatcher, a.providers.Order),
	}
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{
			Name:  "callstore",
			Check: pinger.Ping,
		})
	}

	mux := http.NewServeMux()
	mux.Handle(mediaPath, a.bridge)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP surface and spawns a call session for every new media
// leg. It blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.bridge.OnNewCall = func(callID string) {
		a.startCall(ctx, callID)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server listening",
		"addr", a.cfg.Server.ListenAddr,
		"media_path", a.cfg.Server.MediaPath,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// startCall opens the channel for a freshly connected media leg and runs its
// session. Legs for calls that already have a live session are reconnects:
// the channel's own recovery claims them, so nothing to do here.
func (a *App) startCall(ctx context.Context, callID string) {
	a.mu.Lock()
	if _, ok := a.active[callID]; ok {
		a.mu.Unlock()
		slog.Debug("media leg for live call, leaving it to reconnect", "call_id", callID)
		return
	}
	a.active[callID] = struct{}{}
	a.calls.Add(1)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.active, callID)
		a.mu.Unlock()
		a.calls.Done()
	}()

	// The media leg is already parked in the bridge, so the dial should
	// rendezvous immediately; the timeout guards a leg dropped in between.
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ch, err := a.registry.GetOrCreate(openCtx, callID)
	cancel()
	if err != nil {
		slog.Error("failed to open call channel", "call_id", callID, "error", err)
		return
	}
	defer func() { _ = a.registry.Remove(callID) }()

	a.metrics.ActiveChannels.Add(ctx, 1)
	defer a.metrics.ActiveChannels.Add(context.Background(), -1)

	session, err := call.NewSession(callID, ch, a.bus, call.Collaborators{
		VAD:    a.providers.VAD,
		STT:    a.providers.STT,
		Dialog: a.providers.Dialog,
		Synth:  a.dispatcher,
	}, a.sessionConfig())
	if err != nil {
		slog.Error("failed to build call session", "call_id", callID, "error", err)
		return
	}

	slog.Info("call started", "call_id", callID)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("call session ended with error", "call_id", callID, "error", err)
	}
	slog.Info("call ended", "call_id", callID)
}

// sessionConfig maps the pipeline config onto a per-call session config.
func (a *App) sessionConfig() call.Config {
	p := a.cfg.Pipeline
	return call.Config{
		SampleRate: 8000,
		VAD:        vad.Config{SampleRate: 8000},
		Interrupt: interrupt.Config{
			Sensitivity: p.Sensitivity,
			Window:      p.DetectionWindow(),
			Cooldown:    p.Cooldown(),
		},
		Language: language.Config{
			Initial:            language.Language(p.InitialLanguage),
			ImmediateThreshold: p.ImmediateThreshold,
			DelayedThreshold:   p.DelayedThreshold,
			MinimumThreshold:   p.MinimumThreshold,
			MinSwitchSpacing:   p.MinSwitchSpacing(),
		},
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting new legs, closes live channels, waits for call
// sessions to drain, and runs the closers in order. Respects ctx's deadline:
// remaining closers are skipped when it expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_calls", a.registry.Len())

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "error", err)
		}

		a.registry.Close()

		drained := make(chan struct{})
		go func() {
			a.calls.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for call sessions")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
