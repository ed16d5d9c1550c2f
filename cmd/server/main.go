package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-academy/internal/academy"
	"github.com/p-n-ai/pai-academy/internal/ai"
	"github.com/p-n-ai/pai-academy/internal/api"
	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/certificate"
	"github.com/p-n-ai/pai-academy/internal/chat"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/forum"
	"github.com/p-n-ai/pai-academy/internal/payment"
	"github.com/p-n-ai/pai-academy/internal/platform/cache"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
	"github.com/p-n-ai/pai-academy/internal/platform/metrics"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

const readyTimeout = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// stores are the persistence backends selected by configuration.
type stores struct {
	ledger        enrollment.Ledger
	certificates  certificate.Store
	conversations assistant.ConversationStore
	events        academy.EventLogger
	forum         forum.Store
}

func run(ctx context.Context, cfg *config.Config) error {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	slog.Info("catalog loaded", "courses", len(cat.Courses()), "path", cfg.Catalog.Path)

	var checks []readinessCheck

	st := stores{
		ledger:        enrollment.NewMemoryLedger(),
		certificates:  certificate.NewMemoryStore(),
		conversations: assistant.NewMemoryStore(),
		events:        academy.NopEventLogger{},
		forum:         forum.NewMemoryStore(),
	}
	if cfg.Store.Backend == "postgres" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		if st, err = postgresStores(db); err != nil {
			return err
		}
		checks = append(checks, readinessCheck{name: "database", check: db.HealthCheck})
		slog.Info("using postgres store")
	}

	var (
		unlocks progress.UnlockStore = progress.NewMemoryUnlocks()
		budget  ai.BudgetChecker     = ai.NewInMemoryBudget(cfg.Assistant.DailyTokenBudget)
	)
	kv, err := cache.Optional(ctx, cfg.Cache.URL)
	if err != nil {
		return err
	}
	if kv != nil {
		defer kv.Close()
		unlocks = progress.NewRedisUnlocks(kv.Client)
		budget = ai.NewRedisBudget(kv.Client, cfg.Assistant.DailyTokenBudget)
		checks = append(checks, readinessCheck{name: "cache", check: kv.HealthCheck})
		slog.Info("using cache for unlocks and token budgets")
	}

	router := ai.NewRouter()
	if cfg.HasAIProvider() {
		router.Register("google", ai.NewGoogleProvider(cfg.AI.Google.APIKey, ai.WithGoogleModel(cfg.AI.Google.Model)))
	} else {
		slog.Warn("no AI provider configured, assistant replies will use fallbacks")
	}
	gen := ai.NewGenerator(router, cfg.AI.FallbackText)

	m := metrics.New()
	clk := clock.Real{}
	app, err := academy.New(academy.Config{
		Catalog:   cat,
		Ledger:    st.ledger,
		Unlocks:   unlocks,
		Issuer:    certificate.NewIssuer(st.certificates),
		Payments:  payment.NewProcessor(clk, cfg.Payment.Delay),
		Explainer: assistant.NewExplainer(gen),
		Events:    st.events,
		Metrics:   m,
		Clock:     clk,
		LabDelay:  cfg.Assessment.LabDelay,
	})
	if err != nil {
		return err
	}
	if err := app.SeedEnrollments(ctx); err != nil {
		return err
	}

	board := forum.NewBoard(st.forum, clk)
	if err := board.Seed(ctx); err != nil {
		return err
	}

	quizzes := quiz.NewService(cat, clk, cfg.Quiz.TimeLimit, cfg.Quiz.Threshold)
	quizzes.OnSubmit(app.QuizSubmitted)
	defer quizzes.Close()

	feed := assistant.NewFeed(gen)
	if cfg.Assistant.NewsSchedule != "" {
		scheduler, err := feed.Schedule(cfg.Assistant.NewsSchedule)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	apiServer, err := api.New(api.Config{
		App:     app,
		Ledger:  st.ledger,
		Quizzes: quizzes,
		Chat: assistant.NewChat(assistant.ChatConfig{
			Generator: gen,
			Store:     st.conversations,
			Budget:    budget,
		}),
		Roadmaps: assistant.NewRoadmaps(gen),
		News:     feed,
		Forum:    board,
		Metrics:  m,
		Clock:    clk,
		Debounce: cfg.Search.Debounce,
		ChatOptions: []chat.Option{
			chat.WithRateLimit(rate.Limit(cfg.Assistant.ChatRate), cfg.Assistant.ChatBurst),
			chat.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		},
	})
	if err != nil {
		return err
	}
	defer apiServer.Close()

	mux := newMux(checks...)
	mux.Handle("GET /metrics", m.Handler())
	apiServer.Register(mux)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      m.Middleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func postgresStores(db *database.DB) (stores, error) {
	ledger, err := enrollment.NewPostgresLedger(db.Pool)
	if err != nil {
		return stores{}, err
	}
	certs, err := certificate.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, err
	}
	conversations, err := assistant.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, err
	}
	posts, err := forum.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, err
	}
	return stores{
		ledger:        ledger,
		certificates:  certs,
		conversations: conversations,
		events:        academy.NewPostgresEventLogger(db.Pool),
		forum:         posts,
	}, nil
}

// readinessCheck is a dependency that must answer before traffic is served.
type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", readyzHandler(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				failed[c.name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
