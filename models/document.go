package models

import (
	"regexp"
	"strings"
	"time"
)

// Document processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Document represents one technical standard tracked by the archive.
// The identity is derived from organization + standard number and is
// immutable once created; ContentPath is only set by a successful
// conversion and ErrorMessage only while Status is "error".
type Document struct {
	ID             string    `bson:"_id" json:"id"`
	Title          string    `bson:"title" json:"title"`
	StandardNumber string    `bson:"standard_number" json:"standard_number"`
	Organization   string    `bson:"organization" json:"organization"`
	Year           int       `bson:"year" json:"year"`
	Categories     []string  `bson:"categories,omitempty" json:"categories,omitempty"`
	ContentPath    string    `bson:"content_path,omitempty" json:"content_path,omitempty"`
	Status         string    `bson:"status" json:"status"`
	ErrorMessage   string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
	LastUpdated    time.Time `bson:"last_updated" json:"last_updated"`
}

// IndexEntry is the searchable text representation of a converted document.
// There is at most one entry per document identity; re-indexing replaces it.
type IndexEntry struct {
	ID        string    `bson:"_id" json:"id"`
	Content   string    `bson:"content" json:"content"`
	IndexedAt time.Time `bson:"indexed_at" json:"indexed_at"`
}

// DocumentMeta is the metadata object handed to a conversion worker
// process and rendered into the artifact header.
type DocumentMeta struct {
	Title          string   `json:"title"`
	StandardNumber string   `json:"standard_number"`
	Organization   string   `json:"organization"`
	Year           int      `json:"year"`
	Categories     []string `json:"categories"`
}

// Meta extracts the worker-facing metadata from a document record.
func (d *Document) Meta() DocumentMeta {
	return DocumentMeta{
		Title:          d.Title,
		StandardNumber: d.StandardNumber,
		Organization:   d.Organization,
		Year:           d.Year,
		Categories:     d.Categories,
	}
}

// SearchResult is one ranked hit returned by the search index engine.
type SearchResult struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	StandardNumber string  `json:"standard_number"`
	Organization   string  `json:"organization"`
	Snippet        string  `json:"snippet"`
	Score          float64 `json:"score"`
}

var idSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID derives the stable identity for a standard: organization and
// standard number lowercased, with every run of non-alphanumeric characters
// collapsed into a single underscore.
func DocumentID(organization, standardNumber string) string {
	raw := strings.ToLower(organization + " " + standardNumber)
	return strings.Trim(idSeparators.ReplaceAllString(raw, "_"), "_")
}

// ValidStatus reports whether s is one of the lifecycle states.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}
