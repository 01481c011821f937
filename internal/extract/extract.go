package extract

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
)

// Kind classifies an extraction failure
type Kind int

const (
	// BackendFailure means the engine could not read the document
	BackendFailure Kind = iota + 1
	// EmptyOutput means the engine ran but produced no text
	EmptyOutput
)

func (k Kind) String() string {
	switch k {
	case BackendFailure:
		return "backend_failure"
	case EmptyOutput:
		return "empty_output"
	default:
		return "unknown"
	}
}

// Error is returned by Extract for every failure
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == EmptyOutput {
		return fmt.Sprintf("%s extraction produced no text", e.Backend)
	}
	return fmt.Sprintf("%s extraction failed: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor converts document bytes into plain text
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

// Recognizer performs OCR on a PNG image
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mediaType, language string) (string, error)
}

// PDFReader extracts the text layer of a PDF document
type PDFReader interface {
	ReadText(ctx context.Context, pdf []byte) (string, error)
}

// IsPDF reports whether mediaType names a PDF document. Parameters are ignored.
func IsPDF(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt == "application/pdf" || mt == "application/x-pdf"
}

type backend interface {
	name() string
	run(ctx context.Context, data []byte, mediaType string) (string, error)
}

type pdfBackend struct {
	reader PDFReader
}

func (b pdfBackend) name() string { return "pdf" }

func (b pdfBackend) run(ctx context.Context, data []byte, _ string) (string, error) {
	return b.reader.ReadText(ctx, data)
}

type ocrBackend struct {
	recognizer Recognizer
	language   string
}

func (b ocrBackend) name() string { return "ocr" }

func (b ocrBackend) run(ctx context.Context, data []byte, mediaType string) (string, error) {
	png, err := toPNG(data, mediaType)
	if err != nil {
		return "", err
	}
	return b.recognizer.Recognize(ctx, png, "image/png", b.language)
}

// Pipeline routes PDFs to a PDFReader and everything else to a Recognizer
type Pipeline struct {
	pdf backend
	ocr backend
}

// NewPipeline creates a new Pipeline. language is handed to the recognizer on every call.
func NewPipeline(ocr Recognizer, pdf PDFReader, language string) *Pipeline {
	return &Pipeline{
		pdf: pdfBackend{reader: pdf},
		ocr: ocrBackend{recognizer: ocr, language: language},
	}
}

// Extract returns the document text verbatim. Failures are always *Error.
func (p *Pipeline) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	b := p.ocr
	if IsPDF(mediaType) {
		b = p.pdf
	}

	text, err := guard(ctx, b, data, mediaType)
	if err != nil {
		slog.Warn("extraction failed", "backend", b.name(), "media_type", mediaType, "error", err)
		return "", &Error{Kind: BackendFailure, Backend: b.name(), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: EmptyOutput, Backend: b.name()}
	}
	return text, nil
}

// guard turns a panicking engine into an ordinary error
func guard(ctx context.Context, b backend, data []byte, mediaType string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s backend panicked: %v", b.name(), r)
		}
	}()
	return b.run(ctx, data, mediaType)
}
