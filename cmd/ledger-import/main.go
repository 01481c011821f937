package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ledger-import/internal/extract"
	"github.com/zombor/ledger-import/internal/importer"
	"github.com/zombor/ledger-import/internal/ledger"
	"github.com/zombor/ledger-import/internal/metrics"
	"github.com/zombor/ledger-import/internal/parse"
	"github.com/zombor/ledger-import/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ledger-import")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		storeType     = fs.StringLong("store", "bolt", "Transaction store: 'bolt' or 'postgres'")
		dbPath        = fs.StringLong("db", "ledger-import.db", "Bolt database file path")
		postgresDSN   = fs.StringLong("postgres-dsn", "", "PostgreSQL connection string (store=postgres)")
		ocrType       = fs.StringLong("ocr", "gemini", "OCR engine: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl, llama3.2-vision)")
		ocrLanguage   = fs.StringLong("ocr-language", "eng", "Expected document language passed to the OCR engine")
		pdfType       = fs.StringLong("pdf", "fitz", "PDF text engine: 'fitz' (MuPDF) or 'plain' (pure Go)")
		maxUploadMB   = fs.IntLong("max-upload-mb", 10, "Largest accepted document in MiB")
		importTimeout = fs.IntLong("import-timeout-seconds", 120, "Time limit for one import")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username, also used as the owner (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		jwtSecret     = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens; the subject is the owner (optional)")
		defaultOwner  = fs.StringLong("default-owner", "local", "Owner used when no authentication is configured")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGER_IMPORT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize transaction store
	var store ledger.Store
	switch *storeType {
	case "bolt":
		slog.Info("Initializing bolt store...", "path", *dbPath)
		bolt, err := ledger.NewBoltStore(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize bolt store", "error", err)
			os.Exit(1)
		}
		store = bolt
	case "postgres":
		if *postgresDSN == "" {
			slog.Error("PostgreSQL DSN is required. Set --postgres-dsn flag or LEDGER_IMPORT_POSTGRES_DSN environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing postgres store...")
		pg, err := ledger.NewPostgresStore(ctx, *postgresDSN)
		if err != nil {
			slog.Error("Failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("Failed to migrate postgres schema", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "bolt or postgres")
		os.Exit(1)
	}
	defer store.Close()

	// Initialize OCR engine
	var recognizer extract.Recognizer
	switch *ocrType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini OCR...", "model", *geminiModel)
		gemini, err := extract.NewGeminiOCR(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		recognizer = gemini
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer = extract.NewOllamaOCR(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid OCR type", "type", *ocrType, "valid", "gemini or ollama")
		os.Exit(1)
	}

	// Initialize PDF engine
	var pdfReader extract.PDFReader
	switch *pdfType {
	case "fitz":
		pdfReader = extract.FitzPDF{}
	case "plain":
		pdfReader = extract.PlainPDF{}
	default:
		slog.Error("Invalid PDF engine", "type", *pdfType, "valid", "fitz or plain")
		os.Exit(1)
	}

	// Initialize services
	m := metrics.New()
	importService := importer.NewServiceWithDeps(
		extract.NewPipeline(recognizer, pdfReader, *ocrLanguage),
		parse.New(parse.DefaultTaxonomy()),
		store,
		importer.Config{MaxDocumentBytes: int64(*maxUploadMB) << 20},
		ledger.SystemClock(),
		m,
	)
	ledgerService := ledger.NewService(store)

	// Initialize server
	srv := server.NewServer(importService, ledgerService, m, server.Config{
		Auth: server.Auth{
			Username:     *authUser,
			Password:     *authPass,
			JWTSecret:    *jwtSecret,
			DefaultOwner: *defaultOwner,
		},
		ImportTimeout: time.Duration(*importTimeout) * time.Second,
	})

	switch {
	case *jwtSecret != "":
		slog.Info("Bearer token auth enabled")
	case *authUser != "" || *authPass != "":
		slog.Info("Basic auth enabled", "user", *authUser)
	default:
		slog.Warn("No authentication configured, every request acts as the default owner", "owner", *defaultOwner)
	}

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server starting", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := srv.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
