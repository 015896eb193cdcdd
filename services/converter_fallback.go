package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"standards-archive/internal/logger"
	"standards-archive/models"
)

// maxFallbackFileSize caps in-memory extraction to avoid OOM on huge scans.
const maxFallbackFileSize = 200 << 20

// FallbackConverter is the lightweight degraded converter: plain-text
// extraction with no layout, tables or images. Extraction problems degrade
// to placeholder text rather than failing, so a missing primary converter
// never strands a document.
type FallbackConverter struct{}

func NewFallbackConverter() *FallbackConverter {
	return &FallbackConverter{}
}

func (f *FallbackConverter) Name() string { return "fallback" }

func (f *FallbackConverter) Convert(ctx context.Context, sourcePath string, meta models.DocumentMeta) (*ConversionResult, error) {
	stat, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file: %w", err)
	}
	if stat.Size() > maxFallbackFileSize {
		return nil, fmt.Errorf("source file too large for in-memory extraction (%d bytes)", stat.Size())
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	text := f.extractPlainText(content)
	if strings.TrimSpace(text) == "" {
		logger.Warn("Fallback extraction produced no text, emitting placeholder body",
			"source", sourcePath)
		text = "No machine-readable text could be extracted from this document. " +
			"Reprocess it with the full converter for searchable content."
	}

	markdown := "_Converted with the degraded text extractor; formatting, tables and images were not preserved._\n\n" + text
	return &ConversionResult{Markdown: markdown}, nil
}

// extractPlainText pulls raw text per page; unreadable pages are skipped.
// The reader panics on some malformed files, so the whole pass is guarded.
func (f *FallbackConverter) extractPlainText(content []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("PDF reader panicked during fallback extraction", "panic", r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n\n")
	}
	return builder.String()
}
