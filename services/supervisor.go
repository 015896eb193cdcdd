package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/hibiken/asynq"

	"standards-archive/internal/config"
	"standards-archive/internal/lease"
	"standards-archive/internal/logger"
	"standards-archive/internal/queue"
	"standards-archive/internal/telemetry"
	"standards-archive/models"
)

// maxStageAttempts bounds the retry loop when a freshly derived working
// file name collides with an existing lease.
const maxStageAttempts = 5

// SupervisorStore is the slice of the document repository the supervisor
// needs for admission and rollback.
type SupervisorStore interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
}

// ConvertEnqueuer submits staged conversion jobs to the worker daemon.
type ConvertEnqueuer interface {
	EnqueueConvert(ctx context.Context, payload queue.ConvertPayload) error
}

// Supervisor owns the conversion lifecycle around the worker process: it
// admits documents into processing, stages leased working copies, hands
// jobs to the queue, and on the worker side spawns and reaps the isolated
// conversion process.
type Supervisor struct {
	cfg     *config.Config
	store   SupervisorStore
	queue   ConvertEnqueuer
	metrics *telemetry.PipelineMetrics
}

func NewSupervisor(cfg *config.Config, store SupervisorStore, q ConvertEnqueuer, metrics *telemetry.PipelineMetrics) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		store:   store,
		queue:   q,
		metrics: metrics,
	}
}

// SourcePath is the canonical location of a document's uploaded PDF.
func (s *Supervisor) SourcePath(documentID string) string {
	return filepath.Join(s.cfg.UploadDir(), documentID+".pdf")
}

// Dispatch admits a document into processing and queues its conversion.
// Admission is the status compare-and-swap: only pending or error
// documents pass, so two concurrent dispatches for the same identity
// cannot both win. After a successful enqueue the document's fate belongs
// to the worker; dispatch does not wait for it.
func (s *Supervisor) Dispatch(ctx context.Context, id string, meta models.DocumentMeta, forceFallback bool) error {
	if err := s.store.MarkProcessing(ctx, id); err != nil {
		return err
	}

	workingFile, err := s.stage(id)
	if err != nil {
		return s.rollback(ctx, id, "", fmt.Errorf("failed to stage working copy: %w", err))
	}

	payload := queue.ConvertPayload{
		DocumentID:  id,
		WorkingFile: workingFile,
		Meta:        meta,
		Fallback:    forceFallback,
	}
	if err := s.queue.EnqueueConvert(ctx, payload); err != nil {
		return s.rollback(ctx, id, workingFile, fmt.Errorf("failed to enqueue conversion: %w", err))
	}

	s.metrics.RecordStart(ctx)
	logger.Info("Dispatched conversion",
		"document", id,
		"working_file", workingFile,
		"fallback", forceFallback)
	return nil
}

// stage copies the canonical source into a fresh leased working file. Each
// attempt derives a new timestamped name, so a lease collision just means
// trying again.
func (s *Supervisor) stage(documentID string) (string, error) {
	sourcePath := s.SourcePath(documentID)

	for attempt := 0; attempt < maxStageAttempts; attempt++ {
		workingFile := lease.WorkingFileName(s.cfg.WorkingDir(), documentID, ".pdf")

		acquired, err := lease.TryAcquire(workingFile)
		if err != nil {
			return "", err
		}
		if !acquired {
			continue
		}

		if err := copyFile(sourcePath, workingFile); err != nil {
			lease.Release(workingFile)
			return "", err
		}
		return workingFile, nil
	}
	return "", fmt.Errorf("could not acquire a working-file lease for %s after %d attempts", documentID, maxStageAttempts)
}

// rollback undoes a partial dispatch so the document can be retried: the
// staged copy and lease are reclaimed and the record moves to error with
// the dispatch failure as its message.
func (s *Supervisor) rollback(ctx context.Context, id, workingFile string, cause error) error {
	if workingFile != "" {
		if err := lease.Release(workingFile); err != nil {
			logger.Warn("Failed to release lease during rollback", "working_file", workingFile, "error", err)
		}
		if err := os.Remove(workingFile); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove working file during rollback", "working_file", workingFile, "error", err)
		}
	}

	if markErr := s.store.MarkError(ctx, id, cause.Error()); markErr != nil {
		logger.Error("Failed to record dispatch failure", "document", id, "error", markErr)
	}
	return cause
}

// HandleConvert is the worker daemon's task handler: it runs one
// conversion in an isolated child process so a crashing or hanging
// converter can never take the daemon down. The child owns the terminal
// status transition; a non-zero exit means the document may be stuck in
// processing and needs manual intervention.
func (s *Supervisor) HandleConvert(ctx context.Context, task *asynq.Task) error {
	var payload queue.ConvertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to decode conversion payload: %w", err)
	}

	metaJSON, err := json.Marshal(payload.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode worker metadata: %w", err)
	}

	args := []string{
		"-id", payload.DocumentID,
		"-source", payload.WorkingFile,
		"-meta", string(metaJSON),
		"-out", s.cfg.ArtifactDir(),
	}
	if payload.Fallback {
		args = append(args, "-fallback")
	}

	cmd := exec.CommandContext(ctx, s.cfg.WorkerBin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		// The worker never ran, so the child could not record an outcome;
		// resolve the document here.
		logger.Error("Failed to start conversion worker",
			"document", payload.DocumentID, "worker", s.cfg.WorkerBin, "error", err)
		if markErr := s.store.MarkError(ctx, payload.DocumentID, fmt.Sprintf("failed to start conversion worker: %v", err)); markErr != nil {
			logger.Error("Failed to record worker start failure", "document", payload.DocumentID, "error", markErr)
		}
		s.reclaimWorkingFile(payload.WorkingFile)
		return nil
	}

	if err := lease.AppendPID(payload.WorkingFile, cmd.Process.Pid); err != nil {
		logger.Warn("Failed to record worker pid on lease",
			"working_file", payload.WorkingFile, "pid", cmd.Process.Pid, "error", err)
	}

	logger.Info("Conversion worker started",
		"document", payload.DocumentID,
		"pid", strconv.Itoa(cmd.Process.Pid),
		"working_file", payload.WorkingFile)

	if err := cmd.Wait(); err != nil {
		logger.Error("Conversion worker exited without recording an outcome, manual intervention required",
			"document", payload.DocumentID,
			"working_file", payload.WorkingFile,
			"error", err)
		return nil
	}

	logger.Info("Conversion worker finished", "document", payload.DocumentID)
	return nil
}

// reclaimWorkingFile cleans up a staged copy the worker never touched.
func (s *Supervisor) reclaimWorkingFile(workingFile string) {
	if err := lease.Release(workingFile); err != nil {
		logger.Warn("Failed to release lease", "working_file", workingFile, "error", err)
	}
	if err := os.Remove(workingFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove working file", "working_file", workingFile, "error", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Sync()
}
