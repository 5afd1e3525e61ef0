// Package extraction implements the remote extraction pipeline client.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jobrunner/mapcore/internal/adapters/tracing"
	"github.com/jobrunner/mapcore/internal/domain"
)

const maxErrorBody = 512

// Config holds extraction client configuration.
type Config struct {
	BaseURL   string
	Token     string // bearer token, optional
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 means unlimited
}

// Client calls the extraction pipeline over HTTP.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates an extraction client.
func New(cfg Config, tp trace.TracerProvider, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		tracer:  tracing.Tracer(tp),
		logger:  logger,
	}
}

type request struct {
	FunctionType      string             `json:"function_type"`
	Geometry          *geojson.Geometry  `json:"geometry"`
	AggregationMethod string             `json:"aggregation_method,omitempty"`
	DateRanges        []domain.DateRange `json:"date_ranges,omitempty"`
	TemporaryAsset    string             `json:"temporary_asset,omitempty"`
}

// Extract implements output.Extractor.
func (c *Client) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	if req.Geometry == nil {
		return nil, domain.ErrInvalidGeometry
	}

	ctx, span := c.tracer.Start(ctx, "extraction.extract", trace.WithAttributes(
		attribute.String(tracing.AttrService, "extraction"),
		attribute.String(tracing.AttrFunctionType, req.FunctionType),
		attribute.String(tracing.AttrGeometryKind, req.Geometry.GeoJSONType()),
	))
	defer span.End()

	result, err := c.extract(ctx, req)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return result, nil
}

func (c *Client) extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(request{
		FunctionType:      req.FunctionType,
		Geometry:          geojson.NewGeometry(req.Geometry),
		AggregationMethod: req.AggregationMethod,
		DateRanges:        req.DateRanges,
		TemporaryAsset:    req.TemporaryAssetRef,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/extract"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling extraction pipeline: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrHTTPStatus, resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("extraction pipeline returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result domain.ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding extraction result: %w", err)
	}

	c.logger.Debug("extraction completed",
		"function_type", req.FunctionType,
		"duration", time.Since(start),
		"empty", result.IsEmpty())
	return &result, nil
}
