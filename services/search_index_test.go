package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"standards-archive/internal/config"
)

// testSearch builds a search service over the throwaway test database and
// creates the text index the production bootstrap would.
func testSearch(t *testing.T) (*SearchIndexService, *DocumentRepository, *mongo.Database) {
	t.Helper()

	repo, db := testRepo(t)

	ctx := context.Background()
	_, err := db.Collection(config.SearchIndexCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "content", Value: "text"}},
		Options: options.Index().SetName("content_text"),
	})
	require.NoError(t, err)

	return NewSearchIndexService(db, nil), repo, db
}

func completedDoc(t *testing.T, repo *DocumentRepository, search *SearchIndexService, id, content string) {
	t.Helper()
	ctx := context.Background()

	doc := testDocument(id)
	require.NoError(t, repo.Upsert(ctx, doc))
	require.NoError(t, repo.MarkProcessing(ctx, id))
	require.NoError(t, repo.MarkCompleted(ctx, id, id+"/content.md"))
	require.NoError(t, search.Index(ctx, id, content))
}

func TestSearchRankedResults(t *testing.T) {
	search, repo, _ := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_a", "grounding conductor sizing and grounding electrodes for grounding systems")
	completedDoc(t, repo, search, "doc_b", "lightning protection with a single grounding reference")

	results, err := search.Search(ctx, "grounding", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The document where the term dominates ranks first.
	assert.Equal(t, "doc_a", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.Contains(t, results[0].Snippet, "**grounding")
	assert.Equal(t, "ABNT", results[0].Organization)
}

func TestSearchExcludesNonCompleted(t *testing.T) {
	search, repo, _ := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_done", "dielectric strength of insulation oil")

	// An indexed document whose record slipped back out of completed must
	// not surface, even though its index entry still exists.
	completedDoc(t, repo, search, "doc_retry", "dielectric testing procedures")
	require.NoError(t, repo.Retry(ctx, "doc_retry"))

	results, err := search.Search(ctx, "dielectric", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc_done", results[0].ID)
}

func TestSearchLimit(t *testing.T) {
	search, repo, _ := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_a", "voltage regulation apparatus")
	completedDoc(t, repo, search, "doc_b", "voltage transformer testing")
	completedDoc(t, repo, search, "doc_c", "voltage drop calculation")

	results, err := search.Search(ctx, "voltage", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchNoMatches(t *testing.T) {
	search, repo, _ := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_a", "voltage regulation apparatus")

	results, err := search.Search(ctx, "hydraulics", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexIsIdempotent(t *testing.T) {
	search, repo, db := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_a", "first version of the content")
	require.NoError(t, search.Index(ctx, "doc_a", "second version of the content"))

	// Still exactly one entry, holding the latest content.
	count, err := db.Collection(config.SearchIndexCollection).CountDocuments(ctx, bson.M{"_id": "doc_a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	results, err := search.Search(ctx, "second", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "**second**")
}

func TestDropIndexEntry(t *testing.T) {
	search, repo, _ := testSearch(t)
	ctx := context.Background()

	completedDoc(t, repo, search, "doc_a", "transformer oil sampling")
	require.NoError(t, search.Drop(ctx, "doc_a"))
	require.NoError(t, search.Drop(ctx, "doc_a")) // idempotent

	results, err := search.Search(ctx, "transformer", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
