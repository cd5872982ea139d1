package converter

import (
	"context"
	"fmt"
	"log/slog"

	"code.sajari.com/docconv/v2"
)

// ConverterOCR selects docconv-backed conversion, which falls back to OCR for
// image-only content and handles office formats (.doc, .docx, .rtf, ...).
const ConverterOCR = "ocr"

type OCRConverter struct {
	logger *slog.Logger
}

func NewOCRConverter(logger *slog.Logger) *OCRConverter {
	return &OCRConverter{logger: logger}
}

func (c *OCRConverter) Name() string { return ConverterOCR }

func (c *OCRConverter) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.ConvertPath(path)
	if err != nil {
		c.logger.Error("Failed to convert document",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return "", &ExtractionError{Converter: c.Name(), Err: err}
	}

	if len(res.Body) == 0 {
		return "", &ExtractionError{
			Converter: c.Name(),
			Err:       fmt.Errorf("no text content extracted"),
		}
	}

	c.logger.Debug("Converted document",
		slog.String("path", path),
		slog.Int("text_length", len(res.Body)))

	return res.Body, nil
}
