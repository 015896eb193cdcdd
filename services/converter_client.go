package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"standards-archive/internal/config"
	"standards-archive/internal/logger"
	"standards-archive/models"
)

// ConverterClient is the primary converter: a client for the full-fidelity
// conversion sidecar that produces structured markdown and embedded
// images. The sidecar is unstable under arbitrary scanned PDFs, so calls
// go through a circuit breaker and a request rate limiter.
type ConverterClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// convertResponse is the sidecar's reply to a conversion request.
type convertResponse struct {
	Success  bool              `json:"success"`
	Markdown string            `json:"markdown"`
	Images   map[string]string `json:"images,omitempty"` // name -> base64
	Pages    int               `json:"pages"`
	Error    string            `json:"error,omitempty"`
}

// converterHealth is the sidecar's health check reply.
type converterHealth struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func NewConverterClient(cfg *config.Config) *ConverterClient {
	rpm := cfg.ConverterRPM
	if rpm <= 0 {
		rpm = 6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ConverterSidecar",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &ConverterClient{
		httpClient: &http.Client{
			Timeout: cfg.ConvertBudget() + time.Minute,
		},
		baseURL: cfg.ConverterServiceURL,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (c *ConverterClient) Name() string { return "primary" }

// Available probes whether the sidecar is reachable and ready. An open
// circuit breaker counts as unavailable so jobs fall back instead of
// queueing behind a dead service.
func (c *ConverterClient) Available(ctx context.Context) bool {
	if c.breaker.State() == gobreaker.StateOpen {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health converterHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

// Convert uploads the source file with its metadata and returns the
// sidecar's markdown plus decoded embedded images.
func (c *ConverterClient) Convert(ctx context.Context, sourcePath string, meta models.DocumentMeta) (*ConversionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.convert(ctx, sourcePath, meta)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ConversionResult), nil
}

func (c *ConverterClient) convert(ctx context.Context, sourcePath string, meta models.DocumentMeta) (*ConversionResult, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(sourcePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	writer.WriteField("metadata", string(metaJSON))
	writer.WriteField("extract_images", "true")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("conversion request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var convResp convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&convResp); err != nil {
		return nil, fmt.Errorf("failed to decode conversion response: %w", err)
	}
	if !convResp.Success {
		return nil, fmt.Errorf("conversion failed: %s", convResp.Error)
	}

	images := make(map[string][]byte, len(convResp.Images))
	for name, encoded := range convResp.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			logger.Warn("Skipping undecodable embedded image", "image", name, "error", err)
			continue
		}
		images[filepath.Base(name)] = data
	}

	return &ConversionResult{
		Markdown: convResp.Markdown,
		Images:   images,
	}, nil
}
