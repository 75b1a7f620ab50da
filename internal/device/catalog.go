package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/homegate/internal/infrastructure/config"
)

const (
	catalogPath         = "/config/devices"
	maxCatalogBodyBytes = 4 << 20
)

// catalogResponse is the body served by the orchestration service.
type catalogResponse struct {
	Success *bool          `json:"success,omitempty"`
	Devices []CatalogEntry `json:"devices"`
}

// CatalogMetrics counts failed fetch attempts.
type CatalogMetrics interface {
	CatalogFetchFailed()
}

// CatalogLoader fetches the device catalog over HTTP.
type CatalogLoader struct {
	baseURL    string
	httpClient *http.Client

	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration

	logger  Logger
	metrics CatalogMetrics
}

// NewCatalogLoader builds a loader from the catalog config section.
func NewCatalogLoader(cfg config.CatalogConfig) *CatalogLoader {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CatalogLoader{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		httpClient:      &http.Client{Timeout: timeout},
		initialInterval: secondsOr(cfg.InitialInterval, time.Second),
		maxInterval:     secondsOr(cfg.MaxInterval, 30*time.Second),
		maxElapsed:      secondsOr(cfg.MaxElapsed, 5*time.Minute),
		logger:          noopLogger{},
	}
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// SetLogger sets the logger for the loader.
func (l *CatalogLoader) SetLogger(logger Logger) {
	l.logger = logger
}

// SetMetrics sets the metrics sink for the loader.
func (l *CatalogLoader) SetMetrics(m CatalogMetrics) {
	l.metrics = m
}

// Fetch performs one GET {url}/config/devices.
func (l *CatalogLoader) Fetch(ctx context.Context) ([]CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+catalogPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	}

	var body catalogResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogMalformed, err)
	}
	if body.Success != nil && !*body.Success {
		return nil, fmt.Errorf("%w: service reported success=false", ErrCatalogUnavailable)
	}
	return body.Devices, nil
}

// LoadWithRetry fetches the catalog with exponential backoff and loads it
// into registry. It gives up when ctx is done or max_elapsed has passed. A
// malformed catalog is not retried.
func (l *CatalogLoader) LoadWithRetry(ctx context.Context, registry *Registry) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialInterval
	b.MaxInterval = l.maxInterval

	entries, err := backoff.Retry(ctx,
		func() ([]CatalogEntry, error) {
			entries, err := l.Fetch(ctx)
			if err != nil {
				if l.metrics != nil {
					l.metrics.CatalogFetchFailed()
				}
				if errors.Is(err, ErrCatalogMalformed) {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return entries, nil
		},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(l.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.Warn("device catalog not available, retrying",
				"url", l.baseURL+catalogPath,
				"error", err,
				"retry_in", next,
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}

	registry.Load(entries)
	return nil
}
