package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Converter extracts plain or markdown text from a stored document file.
type Converter interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// ErrUnsupportedConverter is returned when a document's converter selector
// matches no registered variant.
var ErrUnsupportedConverter = errors.New("unsupported converter")

// ExtractionError wraps a failure of the underlying extraction tool (corrupt
// file, unreadable pages). It is never retried at this layer.
type ExtractionError struct {
	Converter string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("converter %s: extraction failed: %v", e.Converter, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Registry holds the known converter variants, keyed by the selector a
// document carries in its markdown_converter field.
type Registry struct {
	byName map[string]Converter
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		byName: make(map[string]Converter),
		logger: logger,
	}
	r.Register(NewPDFTextConverter(logger))
	r.Register(NewOCRConverter(logger))
	r.Register(NewHTMLConverter(logger))
	return r
}

func (r *Registry) Register(c Converter) {
	r.byName[c.Name()] = c
}

// For resolves the converter for a selector. An empty selector falls back to
// a choice based on the filename extension.
func (r *Registry) For(selector, filename string) (Converter, error) {
	if selector == "" {
		selector = defaultSelector(filename)
	}
	c, ok := r.byName[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedConverter, selector)
	}
	return c, nil
}

func defaultSelector(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ConverterPDFText
	case ".html", ".htm":
		return ConverterHTML
	default:
		return ConverterOCR
	}
}
