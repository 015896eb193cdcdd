package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"standards-archive/internal/config"
	"standards-archive/internal/telemetry"
	"standards-archive/models"
)

// SearchIndexService maintains and queries the full-text index. There is
// never more than one index entry per document identity, and search only
// surfaces documents whose record is currently completed.
type SearchIndexService struct {
	documents *mongo.Collection
	index     *mongo.Collection
	metrics   *telemetry.PipelineMetrics
}

func NewSearchIndexService(db *mongo.Database, metrics *telemetry.PipelineMetrics) *SearchIndexService {
	return &SearchIndexService{
		documents: db.Collection(config.DocumentsCollection),
		index:     db.Collection(config.SearchIndexCollection),
		metrics:   metrics,
	}
}

// Index stores the searchable content for a document, replacing any prior
// entry wholesale. Indexing is idempotent.
func (s *SearchIndexService) Index(ctx context.Context, id, content string) error {
	entry := models.IndexEntry{
		ID:        id,
		Content:   content,
		IndexedAt: time.Now(),
	}
	_, err := s.index.ReplaceOne(ctx, bson.M{"_id": id}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	return nil
}

// Drop removes a document's index entry. Dropping a missing entry is not
// an error.
func (s *SearchIndexService) Drop(ctx context.Context, id string) error {
	_, err := s.index.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to drop index entry for %s: %w", id, err)
	}
	return nil
}

// scoredEntry is the projection decoded from a $text query.
type scoredEntry struct {
	ID      string  `bson:"_id"`
	Content string  `bson:"content"`
	Score   float64 `bson:"score"`
}

// Search runs a stemmed full-text query and returns up to limit ranked
// results, each with a bounded highlighted snippet. Ties in text score are
// broken by document identity. The engine has no minimum query length; the
// HTTP boundary enforces that floor.
func (s *SearchIndexService) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	s.metrics.RecordSearch(ctx)

	// Overfetch candidates: some will be excluded because their document
	// is not currently completed.
	findOpts := options.Find().
		SetProjection(bson.M{"content": 1, "score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{
			{Key: "score", Value: bson.M{"$meta": "textScore"}},
			{Key: "_id", Value: 1},
		}).
		SetLimit(int64(limit * 3))

	cursor, err := s.index.Find(ctx, bson.M{"$text": bson.M{"$search": query}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []scoredEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode search candidates: %w", err)
	}
	if len(entries) == 0 {
		return []models.SearchResult{}, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	completed, err := s.completedDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, limit)
	for _, e := range entries {
		doc, ok := completed[e.ID]
		if !ok {
			continue
		}
		results = append(results, models.SearchResult{
			ID:             doc.ID,
			Title:          doc.Title,
			StandardNumber: doc.StandardNumber,
			Organization:   doc.Organization,
			Snippet:        buildSnippet(e.Content, query, snippetWindow),
			Score:          e.Score,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// completedDocuments loads the candidate documents that are currently in
// completed status, keyed by identity.
func (s *SearchIndexService) completedDocuments(ctx context.Context, ids []string) (map[string]models.Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{
		"_id":    bson.M{"$in": ids},
		"status": models.StatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode candidate documents: %w", err)
	}

	byID := make(map[string]models.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}
