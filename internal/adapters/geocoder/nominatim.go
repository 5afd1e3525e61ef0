// Package geocoder implements address lookup against a Nominatim endpoint.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jobrunner/mapcore/internal/adapters/tracing"
	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Config holds Nominatim client configuration.
type Config struct {
	BaseURL   string
	UserAgent string
	Email     string  // sent as the email parameter, recommended for bulk use
	RateLimit float64 // requests per second
	Burst     int
	CacheSize int // resolved queries kept in memory; 0 disables caching
	Timeout   time.Duration
}

// Nominatim resolves addresses with the Nominatim search API.
type Nominatim struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, orb.Point]
	tracer  trace.Tracer
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// New creates a Nominatim geocoder.
func New(cfg Config, tp trace.TracerProvider, metrics output.MetricsCollector, logger *slog.Logger) (*Nominatim, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mapcore"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	g := &Nominatim{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		tracer:  tracing.Tracer(tp),
		metrics: metrics,
		logger:  logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, orb.Point](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating geocode cache: %w", err)
		}
		g.cache = cache
	}
	return g, nil
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements output.Geocoder. It returns the best match for query.
func (g *Nominatim) Geocode(ctx context.Context, query string) (orb.Point, error) {
	key := normalize(query)
	if key == "" {
		return orb.Point{}, fmt.Errorf("empty address: %w", domain.ErrInvalidInput)
	}

	ctx, span := g.tracer.Start(ctx, "geocoder.search",
		trace.WithAttributes(attribute.String(tracing.AttrService, "nominatim")))
	defer span.End()

	if g.cache != nil {
		if p, ok := g.cache.Get(key); ok {
			tracing.CacheHit(span, true)
			g.metrics.IncGeocodeCount(true)
			return p, nil
		}
		tracing.CacheHit(span, false)
	}

	p, err := g.search(ctx, query)
	g.metrics.IncGeocodeCount(err == nil)
	if err != nil {
		tracing.Fail(span, err)
		return orb.Point{}, err
	}
	if g.cache != nil {
		g.cache.Add(key, p)
	}
	return p, nil
}

func (g *Nominatim) search(ctx context.Context, query string) (orb.Point, error) {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return orb.Point{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64(tracing.AttrRateWaitMs, time.Since(start).Milliseconds()))

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	if g.cfg.Email != "" {
		params.Set("email", g.cfg.Email)
	}
	endpoint := strings.TrimSuffix(g.cfg.BaseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", domain.ErrGeocoderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrHTTPStatus, resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return orb.Point{}, fmt.Errorf("%w: status %d", domain.ErrGeocoderUnavailable, resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return orb.Point{}, fmt.Errorf("%w: decoding response: %v", domain.ErrGeocoderUnavailable, err)
	}
	if len(places) == 0 {
		return orb.Point{}, fmt.Errorf("address %q: %w", query, domain.ErrNotFound)
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return orb.Point{}, fmt.Errorf("%w: malformed coordinates %q,%q",
			domain.ErrGeocoderUnavailable, places[0].Lat, places[0].Lon)
	}

	g.logger.Debug("geocoded address", "query", query, "match", places[0].DisplayName)
	return orb.Point{lon, lat}, nil
}

func normalize(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
