// Package app wires the sibyl subsystems into a running server process.
//
// New builds the full pipeline from a validated configuration and a set of
// providers: stores, tool registry, prompt assembler, conversation engine
// and the three server surfaces (voice TCP, chat HTTP, admin HTTP). Run
// serves all three until the context is cancelled, then shuts them down
// gracefully.
//
// The provider backends come from main via [DefaultRegistry] and
// [BuildProviders]; tests inject mocks through the same [Providers] struct.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/voxhollow/sibyl/internal/admin"
	"github.com/voxhollow/sibyl/internal/chat"
	"github.com/voxhollow/sibyl/internal/config"
	"github.com/voxhollow/sibyl/internal/engine"
	"github.com/voxhollow/sibyl/internal/health"
	"github.com/voxhollow/sibyl/internal/homeauto"
	"github.com/voxhollow/sibyl/internal/observe"
	"github.com/voxhollow/sibyl/internal/prompt"
	"github.com/voxhollow/sibyl/internal/search"
	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/internal/store"
	"github.com/voxhollow/sibyl/internal/tools"
	"github.com/voxhollow/sibyl/internal/voice"
	"github.com/voxhollow/sibyl/internal/weather"
	"github.com/voxhollow/sibyl/internal/webtext"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
)

// shutdownTimeout bounds the graceful drain of the HTTP servers and the
// telemetry flush.
const shutdownTimeout = 15 * time.Second

// Providers holds one backend per pipeline slot. All four are required;
// main populates them via [BuildProviders], tests inject mocks directly.
type Providers struct {
	Model       llm.Provider
	Transcriber stt.Provider
	Synthesizer tts.Provider
	VAD         vad.Engine
}

// App owns the subsystem lifetimes. Build with [New], serve with [App.Run],
// flush telemetry with [App.Shutdown].
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	level      *slog.LevelVar
	metrics    *observe.Metrics
	configPath string

	eng      *engine.Engine
	voiceSrv *voice.Server
	chatSrv  *http.Server
	adminSrv *http.Server

	watcher      *config.Watcher
	shutdownOTel func(context.Context) error
	stopOnce     sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithLogger sets the process logger. Defaults to a logger built from the
// configuration's logging section.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLevelVar hands the app the level behind an injected logger so the
// config watcher can retune verbosity live.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics injects pre-built instruments and skips global telemetry
// initialisation. Tests use this to stay off the global Prometheus
// registry.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigPath enables the configuration watcher on path. Log level
// changes apply live; anything else logs a restart notice.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// NewLogger builds a slog.Logger from the logging configuration. The
// returned LevelVar lets the watcher retune verbosity without a restart.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == config.LogJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), level
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New wires the application from a validated config and its providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Model == nil || providers.Transcriber == nil ||
		providers.Synthesizer == nil || providers.VAD == nil {
		return nil, errors.New("app: model, transcriber, synthesizer and vad providers are all required")
	}

	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger, a.level = NewLogger(cfg.Logging)
	}

	// Telemetry first so every later instrument lands on the right
	// provider.
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: cfg.Observe.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.shutdownOTel = shutdown

		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: create instruments: %w", err)
		}
		a.metrics = m
	}

	if err := a.build(providers); err != nil {
		return nil, err
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

// build assembles stores, tools, prompt, engine and the server surfaces.
func (a *App) build(providers *Providers) error {
	cfg := a.cfg

	knowledge := store.NewKnowledgeStore(cfg.Prompt.KnowledgePath)
	if err := knowledge.EnsureDefault(); err != nil {
		return fmt.Errorf("app: seed knowledge store: %w", err)
	}
	behaviors := store.NewBehaviorStore(cfg.Prompt.BehaviorPath)

	deps, digest := a.buildToolDeps(behaviors)
	toolReg := tools.NewRegistry(deps)

	tmpl, err := prompt.ByName(cfg.Providers.Model.Template)
	if err != nil {
		return fmt.Errorf("app: select template: %w", err)
	}
	promptOpts := []prompt.Option{
		prompt.WithInstructionFiles(cfg.Prompt.BaseInstructionsPath, cfg.Prompt.VoiceInstructionsPath),
		prompt.WithLogger(a.logger),
	}
	if digest != nil {
		promptOpts = append(promptOpts, prompt.WithDigest(digest))
	}
	assembler := prompt.New(tmpl, knowledge, behaviors, promptOpts...)

	a.eng = engine.New(session.NewStore(), assembler, providers.Model, toolReg,
		engine.WithOptions(llm.Options{Temperature: cfg.Providers.Model.Temperature}),
		engine.WithMaxToolIterations(cfg.Tools.MaxToolIterations),
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.metrics),
	)

	a.voiceSrv, err = voice.NewServer(voice.Config{
		Addr:         cfg.Server.VoiceListen,
		Engine:       a.eng,
		STT:          providers.Transcriber,
		TTS:          providers.Synthesizer,
		VAD:          providers.VAD,
		VADThreshold: cfg.Providers.VAD.Threshold,
		VADTimeout:   cfg.Audio.VADTimeout,
		Greeting:     cfg.Audio.Greeting,
		Voice:        cfg.Providers.Synthesizer.Voice,
		ClosePhrase:  cfg.Audio.ClosePhrase,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: build voice server: %w", err)
	}

	chatMux := http.NewServeMux()
	chat.NewServer(a.eng, chat.WithLogger(a.logger)).Register(chatMux)
	a.chatSrv = &http.Server{
		Addr:              cfg.Server.ChatListen,
		Handler:           observe.Middleware(a.metrics, "chat")(chatMux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	adminSrv, err := a.buildAdmin(knowledge)
	if err != nil {
		return err
	}
	a.adminSrv = adminSrv
	return nil
}

// buildToolDeps assembles the external service clients behind the tool set.
// Missing credentials disable the dependent tools rather than failing
// startup; the digest is returned separately for the prompt assembler.
func (a *App) buildToolDeps(behaviors *store.BehaviorStore) (tools.Deps, *homeauto.DigestCache) {
	cfg := a.cfg

	deps := tools.Deps{
		Search: search.NewClient(search.WithUserAgent(cfg.Tools.Search.UserAgent)),
		Web:    webtext.NewFetcher(webtext.WithUserAgent(cfg.Tools.Search.UserAgent)),

		Behaviors:       behaviors,
		DefaultLocation: cfg.Tools.Weather.DefaultLocation,
		Logger:          a.logger,
	}

	var digest *homeauto.DigestCache
	if cfg.Tools.HomeAssistant.BaseURL != "" {
		token, err := config.ReadSecret(cfg.Tools.HomeAssistant.TokenFile)
		if err != nil {
			a.logger.Warn("app: home assistant token unreadable, home tools will fail", "err", err)
		}
		deps.Home = homeauto.NewClient(cfg.Tools.HomeAssistant.BaseURL, token)
		digest = homeauto.NewDigestCache(deps.Home, a.logger)
	}

	if cfg.Tools.Weather.APIKeyFile != "" {
		key, err := config.ReadSecret(cfg.Tools.Weather.APIKeyFile)
		if err != nil {
			a.logger.Warn("app: weather key unreadable, weather tool disabled", "err", err)
		} else {
			deps.Weather = weather.NewClient(key)
		}
	}

	return deps, digest
}

// buildAdmin assembles the admin HTTP server: health probes, Prometheus
// metrics and the token-gated knowledge endpoints.
func (a *App) buildAdmin(knowledge *store.KnowledgeStore) (*http.Server, error) {
	token, err := config.ReadSecret(a.cfg.Server.AdminTokenFile)
	if err != nil {
		return nil, fmt.Errorf("app: read admin token: %w", err)
	}

	checks := health.New(health.Checker{
		Name: "knowledge",
		Check: func(context.Context) error {
			_, _, err := knowledge.Message()
			return err
		},
	})

	mux := http.NewServeMux()
	admin.NewServer(knowledge,
		admin.WithToken(token),
		admin.WithHealth(checks),
		admin.WithMetrics(promhttp.Handler()),
		admin.WithLogger(a.logger),
	).Register(mux)

	return &http.Server{
		Addr:              a.cfg.Server.AdminListen,
		Handler:           observe.Middleware(a.metrics, "admin")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Engine exposes the conversation engine, mainly for tests.
func (a *App) Engine() *engine.Engine { return a.eng }

// onConfigChange reacts to a reloaded configuration file. Only the log
// level applies live; everything else needs a restart.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		a.logger.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartNeeded) > 0 {
		a.logger.Warn("app: config sections changed, restart to apply", "sections", d.RestartNeeded)
	}
}

// Run serves the voice, chat and admin surfaces until ctx is cancelled,
// then drains them. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.voiceSrv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		return a.serveHTTP(ctx, a.chatSrv, "chat")
	})
	g.Go(func() error {
		return a.serveHTTP(ctx, a.adminSrv, "admin")
	})

	a.logger.Info("app: running",
		"voice", a.cfg.Server.VoiceListen,
		"chat", a.cfg.Server.ChatListen,
		"admin", a.cfg.Server.AdminListen)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveHTTP runs one HTTP server and drains it when ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context, srv *http.Server, name string) error {
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("app: listening", "surface", name, "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("app: %s server: %w", name, err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		a.logger.Warn("app: server drain incomplete", "surface", name, "err", err)
	}
	return ctx.Err()
}

// Shutdown stops the config watcher and flushes telemetry. Call it once
// Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.shutdownOTel != nil {
			err = a.shutdownOTel(ctx)
		}
	})
	return err
}
