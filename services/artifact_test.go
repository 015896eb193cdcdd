package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standards-archive/models"
)

func testMeta() models.DocumentMeta {
	return models.DocumentMeta{
		Title:          "Electrical installations of buildings",
		StandardNumber: "NBR 5410",
		Organization:   "ABNT",
		Year:           2004,
		Categories:     []string{"Elétrica", "Baixa Tensão"},
	}
}

func TestRenderContent(t *testing.T) {
	content := RenderContent(testMeta(), "Body text here")

	assert.Contains(t, content, "# Electrical installations of buildings\n")
	assert.Contains(t, content, "- Standard: NBR 5410\n")
	assert.Contains(t, content, "- Organization: ABNT\n")
	assert.Contains(t, content, "- Year: 2004\n")
	assert.Contains(t, content, "- Categories: Elétrica, Baixa Tensão\n")
	assert.Contains(t, content, "\n---\n\nBody text here\n")
}

func TestRenderContentNoCategories(t *testing.T) {
	meta := testMeta()
	meta.Categories = nil

	content := RenderContent(meta, "body")
	assert.NotContains(t, content, "- Categories:")
}

func TestPlaceholderContent(t *testing.T) {
	content := PlaceholderContent(testMeta())

	// The degraded artifact still carries the full metadata header.
	assert.Contains(t, content, "# Electrical installations of buildings")
	assert.Contains(t, content, "Processing was interrupted")
}

func TestArtifactWriterWrite(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root)

	contentPath, err := w.Write("abnt_nbr_5410", "# hello\n", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("abnt_nbr_5410", ContentFileName), contentPath)

	data, err := os.ReadFile(filepath.Join(root, contentPath))
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(root, "abnt_nbr_5410"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArtifactWriterOverwrites(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root)

	_, err := w.Write("doc", "first\n", nil)
	require.NoError(t, err)
	contentPath, err := w.Write("doc", "second\n", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, contentPath))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
}

func TestArtifactWriterImages(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root)

	images := map[string][]byte{
		"figure_1.png":        {0x89, 0x50},
		"../escape/sneak.png": {0x01},
	}
	_, err := w.Write("doc", "body\n", images)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "doc", "images", "figure_1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50}, data)

	// Image names are flattened to their base name; path traversal in a
	// converter response must not escape the image directory.
	_, err = os.Stat(filepath.Join(root, "doc", "images", "sneak.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "escape"))
	assert.True(t, os.IsNotExist(err))
}
