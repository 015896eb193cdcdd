package services

import (
	"context"

	"standards-archive/models"
)

// ConversionResult is what a converter produces for one source file:
// markdown text plus any embedded images extracted alongside it.
type ConversionResult struct {
	Markdown string
	Images   map[string][]byte
}

// Converter turns a source PDF into markdown. The conversion algorithm is
// opaque to the pipeline; implementations may crash or hang, which is why
// every job runs in its own worker process under a watchdog.
type Converter interface {
	Name() string
	Convert(ctx context.Context, sourcePath string, meta models.DocumentMeta) (*ConversionResult, error)
}

// ProbedConverter is a converter whose runtime dependency may be missing;
// Available is the probe that decides whether it can be used at all.
type ProbedConverter interface {
	Converter
	Available(ctx context.Context) bool
}
