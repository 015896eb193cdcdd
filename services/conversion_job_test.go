package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standards-archive/internal/lease"
	"standards-archive/models"
)

type fakeRecorder struct {
	completedID   string
	completedPath string
	erroredID     string
	erroredMsg    string
	completeErr   error
	errorErr      error
}

func (f *fakeRecorder) MarkCompleted(ctx context.Context, id, contentPath string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedID = id
	f.completedPath = contentPath
	return nil
}

func (f *fakeRecorder) MarkError(ctx context.Context, id, message string) error {
	if f.errorErr != nil {
		return f.errorErr
	}
	f.erroredID = id
	f.erroredMsg = message
	return nil
}

type fakeIndexer struct {
	id      string
	content string
	err     error
}

func (f *fakeIndexer) Index(ctx context.Context, id, content string) error {
	if f.err != nil {
		return f.err
	}
	f.id = id
	f.content = content
	return nil
}

type stubConverter struct {
	name   string
	result *ConversionResult
	err    error
	delay  time.Duration
}

func (s *stubConverter) Name() string { return s.name }

func (s *stubConverter) Convert(ctx context.Context, sourcePath string, meta models.DocumentMeta) (*ConversionResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

// newTestJob stages a leased working file the way the supervisor would and
// wires fakes around it.
func newTestJob(t *testing.T, conv Converter) (*ConversionJob, *fakeRecorder, *fakeIndexer, string) {
	t.Helper()

	workingDir := t.TempDir()
	artifactDir := t.TempDir()

	workingFile := lease.WorkingFileName(workingDir, "abnt_nbr_5410", ".pdf")
	require.NoError(t, os.WriteFile(workingFile, []byte("%PDF-1.4"), 0644))
	acquired, err := lease.TryAcquire(workingFile)
	require.NoError(t, err)
	require.True(t, acquired)

	recorder := &fakeRecorder{}
	indexer := &fakeIndexer{}

	job := &ConversionJob{
		DocumentID:     "abnt_nbr_5410",
		WorkingFile:    workingFile,
		Meta:           testMeta(),
		Budget:         time.Second,
		TimeoutOutcome: models.StatusCompleted,
		Fallback:       conv,
		Records:        recorder,
		Index:          indexer,
		Artifacts:      NewArtifactWriter(artifactDir),
	}
	return job, recorder, indexer, artifactDir
}

func TestConversionJobSuccess(t *testing.T) {
	conv := &stubConverter{
		name:   "stub",
		result: &ConversionResult{Markdown: "Converted body"},
	}
	job, recorder, indexer, artifactDir := newTestJob(t, conv)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, "abnt_nbr_5410", recorder.completedID)
	assert.Equal(t, filepath.Join("abnt_nbr_5410", ContentFileName), recorder.completedPath)
	assert.Empty(t, recorder.erroredID)

	// The indexed text is the full artifact: header plus body.
	assert.Equal(t, "abnt_nbr_5410", indexer.id)
	assert.Contains(t, indexer.content, "# Electrical installations of buildings")
	assert.Contains(t, indexer.content, "Converted body")

	data, err := os.ReadFile(filepath.Join(artifactDir, recorder.completedPath))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Converted body")

	assertCleanedUp(t, job)
}

func TestConversionJobConverterError(t *testing.T) {
	conv := &stubConverter{name: "stub", err: errors.New("corrupt xref table")}
	job, recorder, indexer, _ := newTestJob(t, conv)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, "abnt_nbr_5410", recorder.erroredID)
	assert.Equal(t, "corrupt xref table", recorder.erroredMsg)
	assert.Empty(t, recorder.completedID)
	assert.Empty(t, indexer.id)

	assertCleanedUp(t, job)
}

func TestConversionJobTimeoutIsDegradedSuccess(t *testing.T) {
	conv := &stubConverter{
		name:   "stub",
		delay:  500 * time.Millisecond,
		result: &ConversionResult{Markdown: "never delivered"},
	}
	job, recorder, indexer, artifactDir := newTestJob(t, conv)
	job.Budget = 50 * time.Millisecond

	require.NoError(t, job.Run(context.Background()))

	// Default timeout policy: placeholder artifact, completed status.
	assert.Equal(t, "abnt_nbr_5410", recorder.completedID)
	assert.Empty(t, recorder.erroredID)

	data, err := os.ReadFile(filepath.Join(artifactDir, recorder.completedPath))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Processing was interrupted")
	assert.NotContains(t, string(data), "never delivered")

	assert.Contains(t, indexer.content, "Processing was interrupted")

	assertCleanedUp(t, job)
}

func TestConversionJobTimeoutErrorPolicy(t *testing.T) {
	conv := &stubConverter{
		name:  "stub",
		delay: 500 * time.Millisecond,
	}
	job, recorder, _, _ := newTestJob(t, conv)
	job.Budget = 50 * time.Millisecond
	job.TimeoutOutcome = models.StatusError

	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, recorder.completedID)
	assert.Equal(t, "abnt_nbr_5410", recorder.erroredID)
	assert.Contains(t, recorder.erroredMsg, "timed out")

	assertCleanedUp(t, job)
}

func TestConversionJobCompletionRecordFailure(t *testing.T) {
	conv := &stubConverter{
		name:   "stub",
		result: &ConversionResult{Markdown: "body"},
	}
	job, recorder, _, _ := newTestJob(t, conv)
	recorder.completeErr = errors.New("store unavailable")

	// No terminal status could be recorded: the worker must exit non-zero.
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestConversionJobIndexFailureStillCompletes(t *testing.T) {
	conv := &stubConverter{
		name:   "stub",
		result: &ConversionResult{Markdown: "body"},
	}
	job, recorder, indexer, _ := newTestJob(t, conv)
	indexer.err = errors.New("index down")

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "abnt_nbr_5410", recorder.completedID)
}

func TestConversionJobUsesFallbackWhenForced(t *testing.T) {
	primary := &stubConverter{name: "primary", result: &ConversionResult{Markdown: "rich"}}
	fallback := &stubConverter{name: "fallback", result: &ConversionResult{Markdown: "plain"}}

	job, _, indexer, _ := newTestJob(t, fallback)
	job.Primary = &alwaysAvailable{primary}
	job.ForceFallback = true

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, indexer.content, "plain")
	assert.NotContains(t, indexer.content, "rich")
}

func TestConversionJobDegradesWhenPrimaryUnavailable(t *testing.T) {
	primary := &stubConverter{name: "primary", result: &ConversionResult{Markdown: "rich"}}
	fallback := &stubConverter{name: "fallback", result: &ConversionResult{Markdown: "plain"}}

	job, _, indexer, _ := newTestJob(t, fallback)
	job.Primary = &neverAvailable{primary}

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, indexer.content, "plain")
}

type alwaysAvailable struct{ Converter }

func (a *alwaysAvailable) Available(ctx context.Context) bool { return true }

type neverAvailable struct{ Converter }

func (n *neverAvailable) Available(ctx context.Context) bool { return false }

func assertCleanedUp(t *testing.T, job *ConversionJob) {
	t.Helper()
	_, err := os.Stat(job.WorkingFile)
	assert.True(t, os.IsNotExist(err), "working file should be removed")
	_, err = os.Stat(lease.PathFor(job.WorkingFile))
	assert.True(t, os.IsNotExist(err), "lease should be released")
}
