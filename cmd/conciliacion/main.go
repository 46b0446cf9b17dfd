package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	auditpg "adva/ms_conciliacion_core/internal/adapters/audit/postgres"
	"adva/ms_conciliacion_core/internal/adapters/drive"
	"adva/ms_conciliacion_core/internal/adapters/gemini"
	"adva/ms_conciliacion_core/internal/adapters/gsheets"
	rateshttp "adva/ms_conciliacion_core/internal/adapters/rates/http"
	statepg "adva/ms_conciliacion_core/internal/adapters/state/postgres"
	"adva/ms_conciliacion_core/internal/application/pipeline"
	"adva/ms_conciliacion_core/internal/application/reconcile"
	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/audit"
	"adva/ms_conciliacion_core/internal/infrastructure/cache"
	"adva/ms_conciliacion_core/internal/infrastructure/config"
	ctxutil "adva/ms_conciliacion_core/internal/infrastructure/context"
	"adva/ms_conciliacion_core/internal/infrastructure/database"
	httpinfra "adva/ms_conciliacion_core/internal/infrastructure/http"
	"adva/ms_conciliacion_core/internal/infrastructure/http/middleware"
	"adva/ms_conciliacion_core/internal/infrastructure/http/server"
	"adva/ms_conciliacion_core/internal/infrastructure/logger"
	"adva/ms_conciliacion_core/internal/infrastructure/queue"
	"adva/ms_conciliacion_core/internal/infrastructure/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "service stopped: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.Log.Level, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		auditRepo = auditpg.NewRepository(pool, log)
		log.Info("LLM audit trail enabled", "max_body_size", cfg.Audit.MaxBodySize)
	} else {
		log.Info("LLM audit trail disabled")
	}

	// One traced client for the model gateway; every call lands in the audit
	// trail with its file id and attempt number.
	llmHTTP := httpinfra.NewTracedClient(&httpinfra.TracedClientConfig{
		Timeout:         cfg.Gemini.APITimeout,
		AuditEnabled:    cfg.Audit.Enabled && auditRepo != nil,
		LogRequestBody:  cfg.Audit.LogRequestBody,
		LogResponseBody: cfg.Audit.LogResponseBody,
		MaxBodySize:     cfg.Audit.MaxBodySize,
		MaxConnsPerHost: cfg.Pipeline.Parallelism,
	}, log, auditRepo, "gemini")

	limiter := ratelimit.NewSlidingWindow(cfg.Gemini.RPMLimit, time.Minute)
	llm := gemini.New(gemini.Config{
		BaseURL:     cfg.Gemini.BaseURL,
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		MaxRetries:  cfg.Gemini.MaxRetries,
		BackoffBase: cfg.Gemini.BackoffBase,
		BackoffCap:  cfg.Gemini.BackoffCap,
	}, llmHTTP, limiter, log)

	ratesClient := rateshttp.NewClient(
		cfg.Rates.BaseURL,
		httpinfra.NewClient(&httpinfra.ClientConfig{Timeout: cfg.Rates.APITimeout}),
		cache.NewRateCache(cfg.Rates.CacheTTL),
		log,
	)

	tokens := drive.StaticToken(cfg.Drive.AccessToken)
	storeHTTP := httpinfra.NewClient(&httpinfra.ClientConfig{Timeout: cfg.Pipeline.StoreTimeout})
	docs := drive.NewClient("", storeHTTP, tokens, log)
	tab := gsheets.NewClient("", storeHTTP, tokens, log)

	ledgers := sheets.NewManager(tab, docs, cfg.Drive.LedgerSheetID, cfg.Drive.RootFolderID, cache.NewFolderCache(), log)
	registry := statepg.NewRepository(pool, log)

	q := queue.New(ctx, cfg.Pipeline.Parallelism)
	defer q.Close()

	pipe := pipeline.New(docs, ledgers, llm, registry, q, cfg.Drive.RootFolderID, log)
	orch := reconcile.New(ledgers, ratesClient, reconcile.Config{
		DaysBefore:             cfg.Matching.MatchDaysBefore,
		DaysAfter:              cfg.Matching.MatchDaysAfter,
		TolerancePercent:       cfg.Matching.USDARSTolerancePercent,
		KeywordDirectDebitOnly: cfg.Matching.KeywordDirectDebitOnly,
		MaxCascadeDepth:        cfg.Matching.MaxCascadeDepth,
		CascadeTimeout:         cfg.Matching.CascadeTimeout,
	}, log)

	var auth *middleware.JWTAuthenticator
	if cfg.Auth.Enabled {
		auth, err = middleware.NewJWTAuthenticator(cfg.Auth, log)
		if err != nil {
			return fmt.Errorf("configure auth: %w", err)
		}
	}

	srv, err := server.New(server.Options{
		Addr:            cfg.HTTP.Address(),
		Logger:          log,
		Runner:          &runner{pipe: pipe, q: q, orch: orch, log: log},
		Auth:            auth,
		DB:              pool,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	log.Info("Starting HTTP server", "port", cfg.HTTP.Port, "parallelism", cfg.Pipeline.Parallelism)
	return srv.Run(ctx)
}

// runner adapts the pipeline and orchestrator to the server's scan endpoint:
// each scan queues the unseen files, and once the queue drains, one
// reconciliation pass runs over the updated ledgers.
type runner struct {
	pipe        *pipeline.Pipeline
	q           *queue.Queue
	orch        *reconcile.Orchestrator
	log         *slog.Logger
	reconciling atomic.Bool

	mu   sync.Mutex
	last reconcile.Summary
}

func (r *runner) Scan(ctx context.Context) (int, error) {
	n, err := r.pipe.Scan(ctx)
	if err != nil {
		return n, err
	}
	go r.reconcileWhenIdle()
	return n, nil
}

func (r *runner) Stats() server.Stats {
	s := r.pipe.Stats()
	added := make(map[string]int, len(s.Added))
	for t, n := range s.Added {
		added[string(t)] = n
	}
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	return server.Stats{
		Pending:          s.Pending,
		Running:          s.Running,
		Completed:        s.Completed,
		Failed:           s.Failed,
		Added:            added,
		Errors:           s.Errors,
		PaymentsMatched:  last.PaymentsMatched,
		ReceiptsMatched:  last.ReceiptsMatched,
		MovementsMatched: last.MovementsMatched,
		Displacements:    last.Displacements,
	}
}

func (r *runner) reconcileWhenIdle() {
	if !r.reconciling.CompareAndSwap(false, true) {
		return
	}
	defer r.reconciling.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = ctxutil.WithCorrelationID(ctx, ctxutil.NewCorrelationID())

	if err := r.q.OnIdle(ctx); err != nil {
		r.log.Warn("queue never went idle, skipping reconciliation", "error", err)
		return
	}
	sum, err := r.orch.Run(ctx)
	if err != nil {
		r.log.Error("reconciliation failed", "error", err)
		return
	}
	r.mu.Lock()
	r.last = sum
	r.mu.Unlock()
}
