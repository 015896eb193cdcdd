package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"standards-archive/internal/lease"
	"standards-archive/internal/logger"
	"standards-archive/internal/telemetry"
	"standards-archive/models"
)

// DefaultConvertBudget is the watchdog's wall-clock budget when none is
// configured.
const DefaultConvertBudget = 300 * time.Second

// TerminalRecorder is the slice of the document repository a conversion
// job needs: recording exactly one terminal outcome.
type TerminalRecorder interface {
	MarkCompleted(ctx context.Context, id, contentPath string) error
	MarkError(ctx context.Context, id, message string) error
}

// ContentIndexer is the slice of the search index engine a conversion job
// needs.
type ContentIndexer interface {
	Index(ctx context.Context, id, content string) error
}

// ConversionJob is the body of one worker process: it selects a converter,
// runs it under the timeout watchdog, persists the outcome, and cleans up
// its working file and lease. Run reports an error only when no terminal
// status could be recorded, which the worker surfaces as a non-zero exit.
type ConversionJob struct {
	DocumentID    string
	WorkingFile   string
	Meta          models.DocumentMeta
	ForceFallback bool

	// Budget is the watchdog's wall-clock allowance for the conversion.
	Budget time.Duration

	// TimeoutOutcome is the status recorded when the watchdog fires:
	// completed (degraded success, the default) or error.
	TimeoutOutcome string

	Primary   ProbedConverter // nil when the sidecar is disabled
	Fallback  Converter
	Records   TerminalRecorder
	Index     ContentIndexer
	Artifacts *ArtifactWriter
	Metrics   *telemetry.PipelineMetrics
}

func (j *ConversionJob) Run(ctx context.Context) error {
	start := time.Now()
	defer j.cleanup()

	conv := j.selectConverter(ctx)
	logger.Info("Starting conversion",
		"document", j.DocumentID,
		"working_file", j.WorkingFile,
		"converter", conv.Name())

	result, timedOut, err := j.convertWithWatchdog(ctx, conv)
	switch {
	case timedOut:
		return j.finishTimedOut(ctx, start)
	case err != nil:
		return j.finishFailed(ctx, start, conv, err)
	default:
		return j.finishConverted(ctx, start, result)
	}
}

// selectConverter picks the primary converter unless the caller forced the
// fallback or the primary's runtime dependency is missing.
func (j *ConversionJob) selectConverter(ctx context.Context) Converter {
	if j.ForceFallback || j.Primary == nil {
		return j.Fallback
	}
	if !j.Primary.Available(ctx) {
		logger.Warn("Primary converter unavailable, degrading to fallback",
			"document", j.DocumentID, "error", ErrConverterUnavailable)
		return j.Fallback
	}
	return j.Primary
}

// convertWithWatchdog races the conversion against the wall-clock budget.
// On expiry the in-flight conversion is abandoned; the leaked goroutine is
// bounded by the worker process's own lifetime.
func (j *ConversionJob) convertWithWatchdog(ctx context.Context, conv Converter) (*ConversionResult, bool, error) {
	budget := j.Budget
	if budget <= 0 {
		budget = DefaultConvertBudget
	}

	watchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		result *ConversionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := conv.Convert(watchCtx, j.WorkingFile, j.Meta)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(watchCtx.Err(), context.DeadlineExceeded) {
			// The converter surfaced the watchdog's own cancellation.
			return nil, true, nil
		}
		return o.result, false, o.err
	case <-watchCtx.Done():
		if errors.Is(watchCtx.Err(), context.DeadlineExceeded) {
			return nil, true, nil
		}
		return nil, false, watchCtx.Err()
	}
}

// finishTimedOut applies the timeout policy: by default a degraded
// success, persisting a placeholder artifact and marking the document
// completed.
func (j *ConversionJob) finishTimedOut(ctx context.Context, start time.Time) error {
	if j.TimeoutOutcome == models.StatusError {
		msg := fmt.Sprintf("conversion timed out after %s", j.Budget)
		if err := j.Records.MarkError(ctx, j.DocumentID, msg); err != nil {
			return fmt.Errorf("failed to record timeout for %s: %w", j.DocumentID, err)
		}
		logger.Warn("Conversion timed out", "document", j.DocumentID, "outcome", models.StatusError)
		j.Metrics.RecordFinish(ctx, "error", time.Since(start))
		return nil
	}

	logger.Warn("Conversion timed out, substituting degraded placeholder",
		"document", j.DocumentID, "budget", j.Budget.String())
	content := PlaceholderContent(j.Meta)
	if err := j.persistSuccess(ctx, content, nil); err != nil {
		return err
	}
	j.Metrics.RecordFinish(ctx, "degraded", time.Since(start))
	return nil
}

// finishFailed records the error terminal state; prior content and index
// entries are left exactly as they were before this attempt.
func (j *ConversionJob) finishFailed(ctx context.Context, start time.Time, conv Converter, convErr error) error {
	logger.Error("Conversion failed",
		"document", j.DocumentID,
		"working_file", j.WorkingFile,
		"converter", conv.Name(),
		"error", convErr)

	if err := j.Records.MarkError(ctx, j.DocumentID, convErr.Error()); err != nil {
		return fmt.Errorf("failed to record conversion error for %s: %w", j.DocumentID, err)
	}
	j.Metrics.RecordFinish(ctx, "error", time.Since(start))
	return nil
}

func (j *ConversionJob) finishConverted(ctx context.Context, start time.Time, result *ConversionResult) error {
	content := RenderContent(j.Meta, result.Markdown)
	if err := j.persistSuccess(ctx, content, result.Images); err != nil {
		return err
	}
	j.Metrics.RecordFinish(ctx, "completed", time.Since(start))
	logger.Info("Conversion completed", "document", j.DocumentID, "elapsed", time.Since(start).String())
	return nil
}

// persistSuccess writes the artifact, marks the record completed and
// reindexes the content, in that order.
func (j *ConversionJob) persistSuccess(ctx context.Context, content string, images map[string][]byte) error {
	contentPath, err := j.Artifacts.Write(j.DocumentID, content, images)
	if err != nil {
		// The conversion itself succeeded but nothing durable exists;
		// record the failure so the document is not stuck in processing.
		if markErr := j.Records.MarkError(ctx, j.DocumentID, fmt.Sprintf("failed to persist converted content: %v", err)); markErr != nil {
			return fmt.Errorf("failed to record persistence failure for %s: %w", j.DocumentID, markErr)
		}
		logger.Error("Failed to persist artifact", "document", j.DocumentID, "error", err)
		return nil
	}

	if err := j.Records.MarkCompleted(ctx, j.DocumentID, contentPath); err != nil {
		return fmt.Errorf("failed to mark %s completed: %w", j.DocumentID, err)
	}

	if err := j.Index.Index(ctx, j.DocumentID, content); err != nil {
		// The document is completed but unsearchable until re-indexed;
		// loud log, not a job failure.
		logger.Error("Failed to index converted content",
			"document", j.DocumentID, "content_path", contentPath, "error", err)
	}
	return nil
}

// cleanup releases the lease, deletes the working file, and reclaims any
// stale leases or abandoned working files for the same document identity.
func (j *ConversionJob) cleanup() {
	if err := lease.Release(j.WorkingFile); err != nil {
		logger.Warn("Failed to release lease", "working_file", j.WorkingFile, "error", err)
	}
	if err := os.Remove(j.WorkingFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove working file", "working_file", j.WorkingFile, "error", err)
	}
	j.sweepSiblings()
}

func (j *ConversionJob) sweepSiblings() {
	dir := filepath.Dir(j.WorkingFile)
	matches, err := filepath.Glob(filepath.Join(dir, j.DocumentID+"_*"))
	if err != nil {
		return
	}

	for _, m := range matches {
		if m == j.WorkingFile || m == lease.PathFor(j.WorkingFile) {
			continue
		}
		if strings.HasSuffix(m, lease.Extension) {
			workingFile := strings.TrimSuffix(m, lease.Extension)
			if _, err := os.Stat(workingFile); errors.Is(err, fs.ErrNotExist) {
				os.Remove(m)
			}
			continue
		}
		// A working file with no lease was abandoned by an earlier job.
		if _, err := os.Stat(lease.PathFor(m)); errors.Is(err, fs.ErrNotExist) {
			os.Remove(m)
		}
	}
}
