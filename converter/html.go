package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ConverterHTML selects text extraction from HTML files.
const ConverterHTML = "html"

type HTMLConverter struct {
	logger *slog.Logger
}

func NewHTMLConverter(logger *slog.Logger) *HTMLConverter {
	return &HTMLConverter{logger: logger}
}

func (c *HTMLConverter) Name() string { return ConverterHTML }

func (c *HTMLConverter) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Converter: c.Name(), Err: err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", &ExtractionError{Converter: c.Name(), Err: err}
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})

	text := normalizeWhitespace(b.String())
	if text == "" {
		return "", &ExtractionError{
			Converter: c.Name(),
			Err:       fmt.Errorf("no text content extracted"),
		}
	}

	c.logger.Debug("Extracted text from HTML",
		slog.String("path", path),
		slog.Int("text_length", len(text)))

	return text, nil
}

// normalizeWhitespace collapses runs of blank lines and trims each line, so
// rendered HTML indentation does not leak into chunk content.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
