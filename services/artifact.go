package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"standards-archive/models"
)

// ContentFileName is the fixed artifact name under each document's
// directory.
const ContentFileName = "content.md"

// interruptedNote is the body substituted when the watchdog aborts a
// conversion; together with the metadata header it forms the degraded
// placeholder artifact.
const interruptedNote = "> Processing was interrupted after exceeding the conversion time budget. " +
	"Only the document metadata above is available. Retry the document to attempt a full conversion."

// ArtifactWriter persists converted content under a path derived from the
// document identity: <root>/<id>/content.md plus an optional images/
// sibling directory.
type ArtifactWriter struct {
	root string
}

func NewArtifactWriter(root string) *ArtifactWriter {
	return &ArtifactWriter{root: root}
}

// RenderContent builds the full artifact text: the fixed metadata header
// block followed by the converted body. This same text is what gets
// indexed, so titles and categories are searchable too.
func RenderContent(meta models.DocumentMeta, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	fmt.Fprintf(&b, "- Standard: %s\n", meta.StandardNumber)
	fmt.Fprintf(&b, "- Organization: %s\n", meta.Organization)
	fmt.Fprintf(&b, "- Year: %d\n", meta.Year)
	if len(meta.Categories) > 0 {
		fmt.Fprintf(&b, "- Categories: %s\n", strings.Join(meta.Categories, ", "))
	}
	b.WriteString("\n---\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// PlaceholderContent renders the degraded artifact written when the
// watchdog fires: metadata header plus the interruption note.
func PlaceholderContent(meta models.DocumentMeta) string {
	return RenderContent(meta, interruptedNote)
}

// Write persists the artifact atomically and returns the content path
// relative to the artifact root. Embedded images land next to the content
// file under images/.
func (w *ArtifactWriter) Write(documentID, content string, images map[string][]byte) (string, error) {
	dir := filepath.Join(w.root, documentID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	finalPath := filepath.Join(dir, ContentFileName)

	// Write to a temp file first so a crash never leaves a truncated
	// artifact behind a completed status.
	tempPath := filepath.Join(dir, uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	if len(images) > 0 {
		imageDir := filepath.Join(dir, "images")
		if err := os.MkdirAll(imageDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create image directory: %w", err)
		}
		for name, data := range images {
			target := filepath.Join(imageDir, filepath.Base(name))
			if err := os.WriteFile(target, data, 0644); err != nil {
				return "", fmt.Errorf("failed to write image %s: %w", name, err)
			}
		}
	}

	return filepath.Join(documentID, ContentFileName), nil
}
