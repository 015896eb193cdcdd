// standards-convert runs exactly one document conversion in an isolated
// process. It is spawned by the worker daemon per job so a crashing or
// hanging converter never takes the daemon down. Exit code 0 means a
// terminal status (completed or error) was recorded for the document;
// anything else means the document may be stuck in processing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"standards-archive/internal/config"
	"standards-archive/internal/logger"
	"standards-archive/internal/telemetry"
	"standards-archive/models"
	"standards-archive/services"
)

func main() {
	var (
		id       = flag.String("id", "", "document identity")
		source   = flag.String("source", "", "staged working copy of the source PDF")
		metaJSON = flag.String("meta", "", "document metadata as JSON")
		out      = flag.String("out", "", "artifact root directory (defaults to the configured one)")
		fallback = flag.Bool("fallback", false, "skip the primary converter")
	)
	flag.Parse()

	if err := run(*id, *source, *metaJSON, *out, *fallback); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(id, source, metaJSON, out string, fallback bool) error {
	if id == "" || source == "" || metaJSON == "" {
		return fmt.Errorf("usage: standards-convert -id <id> -source <file> -meta <json> [-out <dir>] [-fallback]")
	}

	var meta models.DocumentMeta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return fmt.Errorf("invalid -meta payload: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitLogger(cfg)

	if out == "" {
		out = cfg.ArtifactDir()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	db := mongoClient.Database(cfg.DBName)
	repo := services.NewDocumentRepository(db)
	search := services.NewSearchIndexService(db, metrics)

	var primary services.ProbedConverter
	if cfg.ConverterEnabled {
		primary = services.NewConverterClient(cfg)
	}

	job := services.ConversionJob{
		DocumentID:     id,
		WorkingFile:    source,
		Meta:           meta,
		ForceFallback:  fallback,
		Budget:         cfg.ConvertBudget(),
		TimeoutOutcome: cfg.TimeoutOutcome,
		Primary:        primary,
		Fallback:       services.NewFallbackConverter(),
		Records:        repo,
		Index:          search,
		Artifacts:      services.NewArtifactWriter(out),
		Metrics:        metrics,
	}

	// The watchdog lives inside the job; this outer bound only covers the
	// persistence grace after it fires.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.TaskTimeout())
	defer cancel()

	return job.Run(ctx)
}
