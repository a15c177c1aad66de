// Package ingest turns the configured PDF into indexed chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/transport/pdf"
)

// Status values reported in Result.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DefaultPDFPath is the document ingested when no path is configured.
const DefaultPDFPath = "./pdfs/monopoly.pdf"

// Result is the in-band outcome of an ingestion. Failures are reported here,
// not as errors: the upload endpoint answers 200 with status=failed.
type Result struct {
	Status      string
	ChunksAdded int
	Message     string
	Error       string
}

// Service runs the extract, split and reindex sequence.
type Service struct {
	index    Indexer
	splitter Splitter
	extract  Extractor
	path     string
	logger   *zap.Logger
}

// New creates a Service reading the PDF at path.
func New(index Indexer, splitter Splitter, path string, logger *zap.Logger) *Service {
	if path == "" {
		path = DefaultPDFPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:    index,
		splitter: splitter,
		extract:  pdf.ExtractFile,
		path:     path,
		logger:   logger,
	}
}

// WithExtractor replaces the PDF extractor.
func (s *Service) WithExtractor(e Extractor) *Service {
	s.extract = e
	return s
}

// Path returns the configured document path.
func (s *Service) Path() string { return s.path }

// IngestFile extracts, chunks and indexes the configured document.
func (s *Service) IngestFile(ctx context.Context) Result {
	if !s.index.Initialized() {
		return s.fail("index", domain.ErrUnavailable,
			"Vector database initialization failed at startup.")
	}

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.fail("open", err, fmt.Sprintf(
				"PDF file not found at specified path: %s. Please create the 'pdfs' folder and add the file.", s.path))
		}
		return s.fail("open", err, fmt.Sprintf("An error occurred during processing: %v", err))
	}

	text, err := s.extract(s.path)
	if err != nil && !errors.Is(err, pdf.ErrNoText) {
		return s.fail("extract", err, fmt.Sprintf("An error occurred during processing: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		if err == nil {
			err = pdf.ErrNoText
		}
		return s.fail("extract", err, "PDF file was empty or text extraction failed.")
	}

	chunks := s.splitter.Texts(text)

	n, err := s.index.Reindex(ctx, chunks)
	if err != nil {
		return s.fail("index", err, fmt.Sprintf("An error occurred during processing: %v", err))
	}

	s.logger.Info("document ingested",
		zap.String("path", s.path),
		zap.Int("characters", len([]rune(text))),
		zap.Int("chunks", n),
	)
	return Result{
		Status:      StatusSuccess,
		ChunksAdded: n,
		Message:     "PDF processed, chunked, and embeddings stored successfully",
	}
}

func (s *Service) fail(stage string, err error, message string) Result {
	s.logger.Warn("ingestion failed",
		zap.String("path", s.path),
		zap.Error(domain.NewIngestionError(stage, err)),
	)
	return Result{Status: StatusFailed, Error: message}
}
