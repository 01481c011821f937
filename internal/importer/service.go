package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/ledger-import/internal/extract"
	"github.com/zombor/ledger-import/internal/ledger"
	"github.com/zombor/ledger-import/internal/parse"
)

// DefaultMaxDocumentBytes is the largest document accepted when Config leaves it unset
const DefaultMaxDocumentBytes = 10 << 20

// Mode selects how extracted text is parsed
type Mode string

const (
	Receipt   Mode = "RECEIPT"
	Statement Mode = "STATEMENT"
)

// ParseMode reads a mode name case-insensitively
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case Receipt, Statement:
		return m, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// Document is an uploaded file
type Document struct {
	Data      []byte
	MediaType string
	Filename  string
}

// Result describes a finished import
type Result struct {
	Imported      int                   `json:"imported"`
	Items         []*ledger.Transaction `json:"items"`
	ExtractedText string                `json:"extractedText,omitempty"`
}

// Outcome is the terminal state of one import
type Outcome string

const (
	OutcomeImported    Outcome = "imported"
	OutcomeEmpty       Outcome = "empty"
	OutcomeRejected    Outcome = "rejected"
	OutcomeExtraction  Outcome = "extraction_failed"
	OutcomePersistence Outcome = "persistence_failed"
)

// Observer is told about every finished import
type Observer interface {
	ImportFinished(mode Mode, outcome Outcome, imported int, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ImportFinished(Mode, Outcome, int, time.Duration) {}

// Batcher stores a set of transactions atomically
type Batcher interface {
	CreateBatch(ctx context.Context, ts []ledger.Transaction) ([]*ledger.Transaction, error)
}

// Config holds import limits
type Config struct {
	MaxDocumentBytes int64
}

// Service runs documents through extraction, parsing and storage
type Service struct {
	extractor extract.Extractor
	parser    *parse.Parser
	store     Batcher
	config    Config
	clock     ledger.TimeSource
	observer  Observer
}

// NewService creates a new Service with the system clock and no observer
func NewService(extractor extract.Extractor, parser *parse.Parser, store Batcher, config Config) *Service {
	return NewServiceWithDeps(extractor, parser, store, config, ledger.SystemClock(), nil)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor extract.Extractor, parser *parse.Parser, store Batcher, config Config, clock ledger.TimeSource, observer Observer) *Service {
	if config.MaxDocumentBytes <= 0 {
		config.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{
		extractor: extractor,
		parser:    parser,
		store:     store,
		config:    config,
		clock:     clock,
		observer:  observer,
	}
}

// MaxDocumentBytes returns the configured upload limit
func (s *Service) MaxDocumentBytes() int64 {
	return s.config.MaxDocumentBytes
}

// Import extracts, parses and stores the transactions in doc for ownerID.
// A document with no recognizable transactions is not an error.
func (s *Service) Import(ctx context.Context, ownerID string, doc Document, mode Mode) (*Result, error) {
	start := s.clock.Now()
	result, outcome, err := s.run(ctx, ownerID, doc, mode)
	elapsed := s.clock.Now().Sub(start)
	s.observer.ImportFinished(mode, outcome, result.Imported, elapsed)

	if err != nil {
		slog.Error("Import failed",
			"owner", ownerID,
			"mode", mode,
			"filename", doc.Filename,
			"media_type", doc.MediaType,
			"outcome", outcome,
			"error", err)
		return nil, err
	}

	slog.Info("Import finished",
		"owner", ownerID,
		"mode", mode,
		"filename", doc.Filename,
		"imported", result.Imported,
		"duration", elapsed)
	return result, nil
}

func (s *Service) run(ctx context.Context, ownerID string, doc Document, mode Mode) (*Result, Outcome, error) {
	empty := &Result{Items: []*ledger.Transaction{}}

	if err := s.validate(doc, mode); err != nil {
		return empty, OutcomeRejected, err
	}

	text, err := s.extractor.Extract(ctx, doc.Data, doc.MediaType)
	if err != nil {
		var extractErr *extract.Error
		if !errors.As(err, &extractErr) {
			err = &extract.Error{Kind: extract.BackendFailure, Backend: "unknown", Err: err}
		}
		return empty, OutcomeExtraction, err
	}

	var candidates []parse.Candidate
	switch mode {
	case Statement:
		candidates = s.parser.Statement(text)
	default:
		candidates = s.parser.Receipt(text, s.clock.Now())
	}

	if len(candidates) == 0 {
		slog.Warn("No transactions found in document", "filename", doc.Filename, "mode", mode, "text_length", len(text))
		empty.ExtractedText = text
		return empty, OutcomeEmpty, nil
	}

	records := make([]ledger.Transaction, len(candidates))
	for i, c := range candidates {
		records[i] = ledger.Transaction{
			OwnerID:     ownerID,
			Type:        c.Type,
			Amount:      c.Amount,
			Category:    c.Category,
			Description: c.Description,
			Date:        c.Date,
		}
	}

	created, err := s.store.CreateBatch(ctx, records)
	if err != nil {
		return empty, OutcomePersistence, &PersistenceError{Err: err}
	}
	return &Result{Imported: len(created), Items: created}, OutcomeImported, nil
}

func (s *Service) validate(doc Document, mode Mode) error {
	if len(doc.Data) == 0 {
		return &ValidationError{Kind: NoFile, Message: "no file was uploaded"}
	}
	if int64(len(doc.Data)) > s.config.MaxDocumentBytes {
		return &ValidationError{
			Kind:    PayloadTooLarge,
			Message: fmt.Sprintf("file is too large, maximum size is %d bytes", s.config.MaxDocumentBytes),
		}
	}
	if mode == Statement && !extract.IsPDF(doc.MediaType) {
		return &ValidationError{Kind: WrongMediaType, Message: "statements must be uploaded as PDF"}
	}
	return nil
}
