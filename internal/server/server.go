package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/ledger-import/internal/importer"
	"github.com/zombor/ledger-import/internal/ledger"
)

// Importer runs uploaded documents through the import pipeline
type Importer interface {
	Import(ctx context.Context, ownerID string, doc importer.Document, mode importer.Mode) (*importer.Result, error)
	MaxDocumentBytes() int64
}

// Ledger serves transaction entry and reporting
type Ledger interface {
	Create(ctx context.Context, ownerID string, in ledger.CreateInput) (*ledger.Transaction, error)
	List(ctx context.Context, ownerID string, q ledger.ListQuery) (*ledger.ListResult, error)
	Summary(ctx context.Context, ownerID string, from, to *time.Time) (*ledger.Summary, error)
	Trends(ctx context.Context, ownerID string, from, to *time.Time) ([]ledger.MonthTrend, error)
	Stats(ctx context.Context, ownerID string) (*ledger.Stats, error)
}

// Instrumenter wraps handlers with request metrics and exposes them
type Instrumenter interface {
	Instrument(route string, next http.HandlerFunc) http.HandlerFunc
	Handler() http.Handler
}

// Config holds server options
type Config struct {
	Auth          Auth
	ImportTimeout time.Duration
}

// Server handles HTTP requests for imports and transactions
type Server struct {
	importer Importer
	ledger   Ledger
	metrics  Instrumenter
	config   Config
	mux      *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(imp Importer, led Ledger, metrics Instrumenter, config Config) *Server {
	return NewServerWithMux(imp, led, metrics, config, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(imp Importer, led Ledger, metrics Instrumenter, config Config, mux *http.ServeMux) *Server {
	if config.ImportTimeout <= 0 {
		config.ImportTimeout = 2 * time.Minute
	}
	s := &Server{
		importer: imp,
		ledger:   led,
		metrics:  metrics,
		config:   config,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return s.metrics.Instrument(name, h)
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/imports/receipt", s.route("import_receipt", s.requireAuth(s.handleImport(importer.Receipt))))
	s.mux.HandleFunc("POST /api/imports/statement", s.route("import_statement", s.requireAuth(s.handleImport(importer.Statement))))

	s.mux.HandleFunc("GET /api/transactions/summary", s.route("summary", s.requireAuth(s.handleSummary)))
	s.mux.HandleFunc("GET /api/transactions/trends", s.route("trends", s.requireAuth(s.handleTrends)))
	s.mux.HandleFunc("GET /api/transactions/stats", s.route("stats", s.requireAuth(s.handleStats)))
	s.mux.HandleFunc("GET /api/transactions", s.route("list", s.requireAuth(s.handleListTransactions)))
	s.mux.HandleFunc("POST /api/transactions", s.route("create", s.requireAuth(s.handleCreateTransaction)))

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the full handler chain
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server and stops it when ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error shutting down server", "error", err)
		}
	}()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
