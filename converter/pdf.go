package converter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ConverterPDFText selects layout-aware text extraction from born-digital PDFs.
const ConverterPDFText = "pdf-text"

type PDFTextConverter struct {
	logger *slog.Logger
}

func NewPDFTextConverter(logger *slog.Logger) *PDFTextConverter {
	return &PDFTextConverter{logger: logger}
}

func (c *PDFTextConverter) Name() string { return ConverterPDFText }

func (c *PDFTextConverter) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Converter: c.Name(), Err: err}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		c.logger.Error("Failed to create PDF reader",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return "", &ExtractionError{Converter: c.Name(), Err: err}
	}

	totalPage := reader.NumPage()
	var fullText strings.Builder
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			c.logger.Warn("Null page encountered",
				slog.String("path", path),
				slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{
				Converter: c.Name(),
				Err:       fmt.Errorf("page %d: %w", pageIndex, err),
			}
		}
		fullText.WriteString(text)
	}

	if fullText.Len() == 0 {
		return "", &ExtractionError{
			Converter: c.Name(),
			Err:       fmt.Errorf("no text content extracted from %d pages", totalPage),
		}
	}

	c.logger.Debug("Extracted text from PDF",
		slog.String("path", path),
		slog.Int("total_pages", totalPage),
		slog.Int("text_length", fullText.Len()))

	return fullText.String(), nil
}
