package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ledger-import/internal/extract"
	"github.com/zombor/ledger-import/internal/importer"
	"github.com/zombor/ledger-import/internal/ledger"
)

// Error stages reported to clients
const (
	stageUpload      = "upload"
	stageExtraction  = "extraction"
	stagePersistence = "persistence"
)

// multipartOverhead is allowed on top of the document limit for form boundaries and headers
const multipartOverhead = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport accepts a multipart upload in field "file" and imports it in mode
func (s *Server) handleImport(mode importer.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := OwnerFrom(r.Context())
		limit := s.importer.MaxDocumentBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

		doc, err := readDocument(r, limit)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
					Error: fmt.Sprintf("File is too large. Maximum size is %d MB.", limit>>20),
					Stage: stageUpload,
				})
				return
			}
			slog.Error("Error reading upload", "error", err)
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Error parsing form", Stage: stageUpload})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.ImportTimeout)
		defer cancel()

		result, err := s.importer.Import(ctx, owner, doc, mode)
		if err != nil {
			code, body := importFailure(err)
			writeJSON(w, code, body)
			return
		}

		code := http.StatusOK
		if result.Imported > 0 {
			code = http.StatusCreated
		}
		writeJSON(w, code, result)
	}
}

// readDocument pulls the "file" part out of the request. A missing part yields an empty document.
func readDocument(r *http.Request, limit int64) (importer.Document, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return importer.Document{}, err
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return importer.Document{}, nil
	}
	if err != nil {
		return importer.Document{}, err
	}
	defer f.Close()

	// Read one byte past the limit so the importer can reject oversized documents
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return importer.Document{}, err
	}

	return importer.Document{
		Data:      data,
		MediaType: mediaTypeOf(header),
		Filename:  header.Filename,
	}, nil
}

// mediaTypeOf trusts the part header unless it is missing or generic, then falls back to the extension
func mediaTypeOf(header *multipart.FileHeader) string {
	ct := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
		return mt
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func importFailure(err error) (int, errorBody) {
	var (
		validation  *importer.ValidationError
		extraction  *extract.Error
		persistence *importer.PersistenceError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "Import timed out", Stage: stageExtraction}
	case errors.As(err, &validation):
		code := http.StatusBadRequest
		if validation.Kind == importer.PayloadTooLarge {
			code = http.StatusRequestEntityTooLarge
		}
		return code, errorBody{Error: validation.Message, Stage: stageUpload}
	case errors.As(err, &extraction):
		if extraction.Kind == extract.EmptyOutput {
			return http.StatusBadRequest, errorBody{Error: "No text could be extracted from the file", Stage: stageExtraction}
		}
		return http.StatusUnprocessableEntity, errorBody{Error: "Failed to read the document", Stage: stageExtraction}
	case errors.As(err, &persistence):
		return http.StatusInternalServerError, errorBody{Error: "Failed to save transactions", Stage: stagePersistence}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}

type createTransactionRequest struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}

	date, err := parseQueryDate(req.Date)
	if err != nil || date == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "date must be YYYY-MM-DD or RFC 3339"})
		return
	}

	tx, err := s.ledger.Create(r.Context(), OwnerFrom(r.Context()), ledger.CreateInput{
		Type:        ledger.Type(req.Type),
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		Date:        *date,
	})
	if err != nil {
		s.ledgerFailure(w, "creating transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	query := ledger.ListQuery{From: from, To: to, Category: q.Get("category")}
	if t := q.Get("type"); t != "" {
		typ, ok := ledger.ParseType(t)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "type must be INCOME or EXPENSE"})
			return
		}
		query.Type = typ
	}
	if query.Page, err = optionalInt(q.Get("page")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "page must be a number"})
		return
	}
	if query.PageSize, err = optionalInt(q.Get("pageSize")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "pageSize must be a number"})
		return
	}

	result, err := s.ledger.List(r.Context(), OwnerFrom(r.Context()), query)
	if err != nil {
		s.ledgerFailure(w, "listing transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	summary, err := s.ledger.Summary(r.Context(), OwnerFrom(r.Context()), from, to)
	if err != nil {
		s.ledgerFailure(w, "summarizing transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	trends, err := s.ledger.Trends(r.Context(), OwnerFrom(r.Context()), from, to)
	if err != nil {
		s.ledgerFailure(w, "computing trends", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monthlyTrends": trends})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.ledgerFailure(w, "computing stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) ledgerFailure(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, ledger.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	slog.Error("Error "+action, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
}

func dateRange(from, to string) (*time.Time, *time.Time, error) {
	f, err := parseQueryDate(from)
	if err != nil {
		return nil, nil, fmt.Errorf("from: %w", err)
	}
	t, err := parseQueryDate(to)
	if err != nil {
		return nil, nil, fmt.Errorf("to: %w", err)
	}
	return f, t, nil
}

// parseQueryDate accepts RFC 3339 or a bare date. Empty input yields nil.
func parseQueryDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
