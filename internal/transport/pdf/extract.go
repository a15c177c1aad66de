// Package pdf extracts plain text from PDF documents.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when no page yields any text.
var ErrNoText = errors.New("no extractable text")

// PageSeparator is placed between the texts of consecutive pages.
const PageSeparator = "\n\n"

// ExtractFile reads the PDF at path and returns its text.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return Extract(bytes.NewReader(data), int64(len(data)))
}

// Extract returns the text of every non-empty page. Line breaks inside a
// page become spaces and pages are joined by PageSeparator.
func Extract(r io.ReaderAt, size int64) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pt, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pt = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(pt)
		if strings.TrimSpace(pt) == "" {
			continue
		}
		pages = append(pages, pt)
	}

	text = strings.Join(pages, PageSeparator)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
