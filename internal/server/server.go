// Package server wires the bizdna components together and manages the HTTP
// server lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scrypster/bizdna/internal/assistant"
	"github.com/scrypster/bizdna/internal/config"
	"github.com/scrypster/bizdna/internal/llm"
	"github.com/scrypster/bizdna/internal/memory"
	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/notify"
	"github.com/scrypster/bizdna/internal/profile"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/internal/storage/postgres"
	rediscache "github.com/scrypster/bizdna/internal/storage/redis"
	"github.com/scrypster/bizdna/internal/storage/sqlite"
	"github.com/scrypster/bizdna/pkg/types"
	"github.com/scrypster/bizdna/web/handlers"
)

// App holds the wired components of one bizdna instance.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Store     storage.Store
	Profiles  *profile.Service
	Memories  *memory.Store
	Gateway   *llm.Gateway
	Assistant *assistant.Orchestrator
	Scheduler *profile.Scheduler // nil when disabled
	Hub       *handlers.WebSocketHub

	detached bool
	watcher  *notify.Watcher
	cache    *rediscache.ProfileCache
	purger   storage.DataPurger
	mu       sync.Mutex
	httpSrv  *http.Server
	shutdown bool
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// SQLitePath is the database file used by the sqlite engine.
func SQLitePath(cfg config.StorageConfig) string {
	return filepath.Join(cfg.DataPath, "bizdna.db")
}

// OpenStore opens the storage engine selected by cfg and applies migrations.
func OpenStore(cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Engine {
	case "postgres":
		return postgres.NewStore(cfg.PostgresDSN, logger)
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.NewStore(SQLitePath(cfg), logger)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

// Option configures New.
type Option func(*App)

// Detached marks an App that never serves HTTP, such as a CLI or MCP
// process. Its profile events are written to the shared event directory,
// where a serving App picks them up.
func Detached() Option {
	return func(a *App) { a.detached = true }
}

// New builds an App over an open store. App.Shutdown closes the store.
func New(cfg *config.Config, store storage.Store, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New("bizdna", nil)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Store:   store,
		purger:  store,
	}
	for _, opt := range opts {
		opt(a)
	}

	var profiles storage.ProfileRepository = store
	if cfg.Storage.RedisURL != "" {
		cache, err := rediscache.NewProfileCacheFromURL(cfg.Storage.RedisURL, store, cfg.Storage.CacheTTL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect profile cache: %w", err)
		}
		a.cache = cache
		a.purger = cache
		profiles = cache
	}

	a.Hub = handlers.NewWebSocketHub(originPatterns(cfg.Server), logger, m)
	var listener profile.Listener = a.Hub
	if a.detached {
		listener = notify.NewWriter(cfg.Storage.DataPath, logger)
	}

	a.Profiles = profile.NewService(store, profiles, profile.Config{
		StaleAfter:    cfg.Profile.StaleAfter,
		FeedbackLimit: cfg.Profile.FeedbackLimit,
		PostLimit:     cfg.Profile.PostLimit,
		QuestionLimit: cfg.Profile.QuestionLimit,
		BuildTimeout:  cfg.Profile.BuildTimeout,
	},
		profile.WithLogger(logger),
		profile.WithMetrics(m),
		profile.WithListener(listener),
	)

	a.Memories = memory.NewStore(store, logger)

	a.Gateway = llm.NewDefaultGateway(llm.Config{
		OpenAI:    llm.BackendConfig{DefaultModel: cfg.Model("openai")},
		Anthropic: llm.BackendConfig{DefaultModel: cfg.Model("anthropic")},
		Gemini:    llm.BackendConfig{DefaultModel: cfg.Model("gemini")},
		Ollama:    llm.BackendConfig{BaseURL: cfg.LLM.OllamaURL, DefaultModel: cfg.Model("ollama")},
	}, llm.StaticCredentials(cfg.Credentials()), logger, m)

	a.Assistant = assistant.New(a.Gateway, a.Profiles, a.Memories, store, assistant.Config{
		HistoryLimit:    cfg.Conversation.HistoryLimit,
		MemoryK:         cfg.Conversation.MemoryTopK,
		ProviderTimeout: cfg.LLM.ProviderTimeout,
		DefaultProvider: providerConfig(cfg, cfg.LLM.DefaultProvider),
	},
		assistant.WithLogger(logger),
		assistant.WithMetrics(m),
		assistant.WithObserver(a.Hub),
	)

	if cfg.Profile.SchedulerEnabled {
		sched, err := profile.NewScheduler(a.Profiles, store, profile.SchedulerConfig{
			Spec:         cfg.Profile.ScheduleSpec,
			ActiveWindow: cfg.Profile.ActiveWindow,
			Concurrency:  cfg.Profile.SchedulerConcurrency,
		}, logger, m)
		if err != nil {
			_ = a.closeCache()
			return nil, err
		}
		a.Scheduler = sched
	}

	return a, nil
}

// DeleteOperatorData removes everything stored for operatorID, including
// profiles held in the shared cache.
func (a *App) DeleteOperatorData(ctx context.Context, operatorID string) error {
	if err := a.purger.DeleteOperatorData(ctx, operatorID); err != nil {
		return err
	}
	a.Logger.Info("operator data purged", zap.String("operator", operatorID))
	return nil
}

func providerConfig(cfg *config.Config, name string) types.ProviderConfig {
	return types.ProviderConfig{Provider: name, Model: cfg.Model(name)}
}

// fallbackChain is the default provider followed by the configured
// fallbacks, or nil when no fallback is configured.
func fallbackChain(cfg *config.Config) []types.ProviderConfig {
	if len(cfg.LLM.Fallback) == 0 {
		return nil
	}
	chain := []types.ProviderConfig{providerConfig(cfg, cfg.LLM.DefaultProvider)}
	for _, name := range cfg.LLM.Fallback {
		if name != cfg.LLM.DefaultProvider {
			chain = append(chain, providerConfig(cfg, name))
		}
	}
	return chain
}

func originPatterns(s config.ServerConfig) []string {
	port := strconv.Itoa(s.Port)
	return []string{"localhost:" + port, "127.0.0.1:" + port, net.JoinHostPort(s.Host, port)}
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the full HTTP handler: API routes behind auth, health,
// metrics and the WebSocket endpoint, all rate limited.
func (a *App) Handler() http.Handler {
	api := handlers.NewAPIHandlers(a.Assistant, a.Profiles, a.Memories, a.Store, fallbackChain(a.Config), a.Logger)
	apiMux := http.NewServeMux()
	api.Register(apiMux, a.Metrics)

	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.RequireAuth(apiMux, a.Config.Server.APIToken))
	mux.Handle("/healthz", apiMux)
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.Handle("/ws", a.Hub)

	rl := handlers.NewRateLimiter(a.Config.Server.RateLimit, a.Config.Server.RateBurst)
	return securityHeadersMiddleware(handlers.RateLimitMiddleware(mux, rl))
}

// Start begins serving HTTP, the event hub and the scheduler. It returns the
// actual listen address, which differs from the configured one when the
// port is 0.
func (a *App) Start(ctx context.Context) (string, error) {
	addr := net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpSrv != nil {
		return "", errors.New("server already started")
	}

	if a.detached {
		_ = ln.Close()
		return "", errors.New("detached app cannot serve")
	}

	go a.Hub.Run()
	a.watcher = notify.NewWatcher(a.Config.Storage.DataPath, a.Hub.Relay, a.Logger)
	if err := a.watcher.Start(); err != nil {
		// Live events from other processes are lost; the API still works.
		a.Logger.Warn("cross-process events disabled", zap.Error(err))
		a.watcher = nil
	}
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			_ = ln.Close()
			return "", err
		}
	}

	a.httpSrv = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.Config.LLM.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("http server error", zap.Error(err))
		}
	}()

	actual := ln.Addr().String()
	a.Logger.Info("bizdna listening", zap.String("addr", actual))
	return actual, nil
}

// Shutdown stops the scheduler, drains HTTP, stops the hub and closes the
// cache and store. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	var errs []error
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.Hub.Stop()
	if err := a.closeCache(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeCache() error {
	if a.cache == nil {
		return nil
	}
	if err := a.cache.Close(); err != nil {
		return fmt.Errorf("close profile cache: %w", err)
	}
	return nil
}
