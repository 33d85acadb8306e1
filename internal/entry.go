// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesrag/internal/api"
	"github.com/starford/notesrag/internal/inbox"
	"github.com/starford/notesrag/internal/index"
	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/llm"
	"github.com/starford/notesrag/internal/noteservice"
	"github.com/starford/notesrag/internal/rag"
	"github.com/starford/notesrag/internal/sse"
	"github.com/starford/notesrag/internal/storage"
	"github.com/starford/notesrag/internal/tenant"
)

const progressThrottle = 250 * time.Millisecond

// App holds the wired components shared by every command.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	DB       *index.DB
	Pipeline *ingest.Pipeline
	Broker   *sse.Broker
	Service  *noteservice.Service
}

// NewApp opens storage and wires ingestion, answering and events. Callers
// must Close the returned App.
func NewApp(opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	c, err := cfg.Chunking.Chunker()
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	logger.Info("chunking policy",
		slog.Int("max_len", c.MaxLen()),
		slog.Int("overlap", c.Overlap()))

	embedder, generator := a.embedder, a.generator
	if embedder == nil || generator == nil {
		if cfg.OpenAI.APIKey == "" {
			logger.Warn("openai: api_key is empty; requests will be sent unauthenticated")
		}
		client := llm.New(cfg.OpenAI.Client(), logger)
		if embedder == nil {
			embedder = client
		}
		if generator == nil {
			generator = client
		}
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	broker := sse.NewBroker(progressThrottle, logger)
	pipeline := ingest.NewPipeline(c, embedder, db, cfg.Ingest.Pipeline(), logger)
	jobs := ingest.NewJobs(pipeline, broker, logger)
	answers := rag.NewOrchestrator(embedder, db, generator, cfg.Retrieval.Rag(), logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Pipeline: pipeline,
		Broker:   broker,
		Service:  noteservice.NewService(db, pipeline, jobs, answers),
	}, nil
}

// Close stops the event broker and closes storage.
func (app *App) Close() error {
	app.Broker.Close()
	return app.DB.Close()
}

// Handler builds the HTTP handler: health checks plus the API under /api.
func (app *App) Handler() http.Handler {
	cfg := app.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// unauthenticated
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Service.Ready(r.Context()); err != nil {
			app.Logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(app.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, app.Broker))
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// Run starts the HTTP server (and the inbox watcher when enabled) and blocks
// until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		slog.String("chat_model", cfg.OpenAI.ChatModel),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		w, err := app.newInbox()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

func (app *App) newInbox() (*inbox.Watcher, error) {
	cfg := app.Config
	if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Inbox.Path, cfg.Inbox.Extensions)
	if err != nil {
		return nil, fmt.Errorf("init inbox storage: %w", err)
	}
	key, err := tenant.DeriveKey(cfg.Identity.Seed)
	if err != nil {
		return nil, fmt.Errorf("inbox identity: %w", err)
	}
	return inbox.New(store.Root(), store, app.Pipeline, key, app.Logger, func(path string, res ingest.Result) {
		app.Broker.Publish(sse.Event{Type: sse.TypeDocumentIngested, Data: map[string]any{
			"path":   path,
			"result": res,
		}})
	}), nil
}
