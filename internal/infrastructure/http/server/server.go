package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	httperrors "adva/ms_conciliacion_core/internal/infrastructure/http"
	"adva/ms_conciliacion_core/internal/infrastructure/http/middleware"
)

// Stats is the processing snapshot exposed on /stats.
type Stats struct {
	Pending   int            `json:"pending"`
	Running   int            `json:"running"`
	Completed int64          `json:"completed"`
	Failed    int64          `json:"failed"`
	Added     map[string]int `json:"added,omitempty"`
	Errors    int            `json:"errors"`

	// Counters of the last finished reconciliation pass.
	PaymentsMatched  int `json:"payments_matched"`
	ReceiptsMatched  int `json:"receipts_matched"`
	MovementsMatched int `json:"movements_matched"`
	Displacements    int `json:"displacements"`
}

// Runner is the processing engine behind the scan endpoints.
type Runner interface {
	// Scan enqueues every unseen document and returns how many were queued.
	Scan(ctx context.Context) (int, error)
	Stats() Stats
}

// Server exposes the reconciliation service endpoints.
type Server struct {
	log        *slog.Logger
	httpServer *http.Server
	auth       *middleware.JWTAuthenticator
	shutdown   time.Duration
}

// Options de construcción.
type Options struct {
	Addr            string
	Logger          *slog.Logger
	Runner          Runner
	Auth            *middleware.JWTAuthenticator
	DB              *pgxpool.Pool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ScanTimeout     time.Duration
}

// New crea el servidor con los endpoints del servicio.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 5 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Logger))
	if opts.Auth != nil {
		r.Use(opts.Auth.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.DB != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
			defer cancel()
			if err := opts.DB.Ping(ctx); err != nil {
				opts.Logger.Error("health check failed", "error", err)
				httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio no disponible", []string{"base de datos inaccesible"}, opts.Logger)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, opts.Runner.Stats())
	})

	// Barrido manual: encola todos los documentos no procesados.
	r.With(middleware.ExtendedTimeout(opts.ScanTimeout)).Post("/scan", func(w http.ResponseWriter, req *http.Request) {
		queued, err := opts.Runner.Scan(req.Context())
		if err != nil {
			opts.Logger.Error("scan failed", "error", err)
			httperrors.WriteError(w, http.StatusInternalServerError, "Error al escanear documentos", []string{err.Error()}, opts.Logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queued": queued})
	})

	// Notificaciones push de Drive. La notificación no dice qué cambió, solo
	// que algo cambió; la respuesta es inmediata y el barrido corre aparte.
	r.Post("/webhook/drive", func(w http.ResponseWriter, req *http.Request) {
		state := req.Header.Get("X-Goog-Resource-State")
		if state == "sync" {
			w.WriteHeader(http.StatusOK)
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), opts.ScanTimeout)
			defer cancel()
			if _, err := opts.Runner.Scan(ctx); err != nil {
				opts.Logger.Error("webhook-triggered scan failed", "error", err, "resource_state", state)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	})

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return &Server{
		log:        opts.Logger,
		httpServer: srv,
		auth:       opts.Auth,
		shutdown:   opts.ShutdownTimeout,
	}, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run arranca el servidor hasta que el contexto se cancele.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close cierra recursos asociados.
func (s *Server) Close() {
	if s.auth != nil {
		s.auth.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
