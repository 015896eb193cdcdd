package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"standards-archive/internal/config"
	"standards-archive/models"
)

// DocumentRepository owns DocumentRecord and IndexEntry lifetimes in the
// store. All status transitions are single atomic statements; partially
// applied states (status flipped but error message left behind) are never
// observable.
type DocumentRepository struct {
	documents *mongo.Collection
	index     *mongo.Collection
}

func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{
		documents: db.Collection(config.DocumentsCollection),
		index:     db.Collection(config.SearchIndexCollection),
	}
}

// Upsert writes a document record wholesale, stamping last_updated.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *models.Document) error {
	doc.LastUpdated = time.Now()
	_, err := r.documents.ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// Get loads one document record by identity.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

// List returns document records, optionally filtered by status, in stable
// identity order.
func (r *DocumentRepository) List(ctx context.Context, status string) ([]models.Document, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	cursor, err := r.documents.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// UpdateMetadata mutates the descriptive fields of an existing record.
// The identity never changes, even if organization or standard number do.
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, id string, meta models.DocumentMeta) error {
	res, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"title":           meta.Title,
			"standard_number": meta.StandardNumber,
			"organization":    meta.Organization,
			"year":            meta.Year,
			"categories":      meta.Categories,
			"last_updated":    time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update metadata for %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns the sorted distinct category labels across all
// documents.
func (r *DocumentRepository) ListCategories(ctx context.Context) ([]string, error) {
	values, err := r.documents.Distinct(ctx, "categories", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			categories = append(categories, s)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// FilterByCategory returns documents whose category set truly contains the
// given label. Matching an array element in Mongo is exact membership, not
// a substring test against any serialized form.
func (r *DocumentRepository) FilterByCategory(ctx context.Context, category string) ([]models.Document, error) {
	cursor, err := r.documents.Find(ctx, bson.M{"categories": category},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to filter by category %q: %w", category, err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// Delete removes a record and its index entry from any state. The index
// entry goes first so an interruption can only leave a document without an
// entry, never an entry without its owning document.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.index.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to drop index entry for %s: %w", id, err)
	}

	res, err := r.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing is the authoritative admission check: one atomic
// conditional update flips pending or error to processing and clears any
// stale error message. There is no window between check and write.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	res := r.documents.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []string{models.StatusPending, models.StatusError}}},
		bson.M{
			"$set":   bson.M{"status": models.StatusProcessing, "last_updated": time.Now()},
			"$unset": bson.M{"error_message": ""},
		},
	)
	if res.Err() == nil {
		return nil
	}
	if res.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to admit document %s: %w", id, res.Err())
	}

	// The swap missed: classify why for the caller.
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	switch doc.Status {
	case models.StatusProcessing:
		return ErrAlreadyProcessing
	case models.StatusCompleted:
		return ErrAlreadyCompleted
	default:
		return ErrAlreadyProcessing
	}
}

// Retry flips an error or completed document back to pending, clearing the
// error message. Content path and index entry are left untouched until the
// next successful conversion overwrites them.
func (r *DocumentRepository) Retry(ctx context.Context, id string) error {
	res := r.documents.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []string{models.StatusError, models.StatusCompleted}}},
		bson.M{
			"$set":   bson.M{"status": models.StatusPending, "last_updated": time.Now()},
			"$unset": bson.M{"error_message": ""},
		},
	)
	if res.Err() == nil {
		return nil
	}
	if res.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to retry document %s: %w", id, res.Err())
	}

	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == models.StatusProcessing {
		return ErrAlreadyProcessing
	}
	// Already pending: nothing to do.
	return nil
}

// MarkCompleted records the successful terminal outcome of a conversion.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, contentPath string) error {
	res, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"content_path": contentPath,
			"last_updated": time.Now(),
		},
		"$unset": bson.M{"error_message": ""},
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s completed: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkError records the failed terminal outcome of a conversion. Content
// path and index entry keep whatever a previous successful run left.
func (r *DocumentRepository) MarkError(ctx context.Context, id, message string) error {
	res, err := r.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        models.StatusError,
			"error_message": message,
			"last_updated":  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s errored: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
