package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackConverterUnreadablePDF(t *testing.T) {
	// A scanned or damaged file with no extractable text still converts:
	// the result is a placeholder body, never an error, so the fallback
	// can't strand a document that the primary converter already failed.
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 garbage without text objects"), 0644))

	result, err := NewFallbackConverter().Convert(context.Background(), path, testMeta())
	require.NoError(t, err)

	assert.Contains(t, result.Markdown, "degraded text extractor")
	assert.Contains(t, result.Markdown, "No machine-readable text")
	assert.Empty(t, result.Images)
}

func TestFallbackConverterMissingFile(t *testing.T) {
	_, err := NewFallbackConverter().Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), testMeta())
	assert.Error(t, err)
}
