// Package fetcher retrieves box tariffs for a date from the Wildberries
// tariff API and normalizes them into model.TariffItem values.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/internal/resilience"
)

// DefaultBaseURL is the box tariff endpoint.
const DefaultBaseURL = "https://common-api.wildberries.ru/api/v1/tariffs/box"

// maxBodyBytes bounds the response body read.
const maxBodyBytes = 32 << 20

// Fetcher retrieves normalized tariffs for one date.
type Fetcher interface {
	Fetch(ctx context.Context, date string) ([]model.TariffItem, error)
}

// Options configures the HTTP fetcher.
type Options struct {
	BaseURL     string
	APIKey      string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	// BackoffStep is the linear backoff unit: attempt n waits n*BackoffStep.
	BackoffStep time.Duration
	RateLimit   rate.Limit
	RateBurst   int
	HTTPClient  *http.Client
}

// HTTPFetcher implements Fetcher against the tariff REST API.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling zero options with defaults.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "tariff-sync/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffStep == 0 {
		opts.BackoffStep = time.Second
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 1
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = opts.MaxAttempts
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &HTTPFetcher{
		client:  client,
		opts:    opts,
		limiter: NewAdaptiveLimiter(opts.RateLimit, opts.RateBurst),
	}
}

// Fetch validates date, then calls the API with linear-backoff retries.
// Credential rejections are not retried. Every failure is classified:
// InvalidInput, Configuration or Fetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, date string) ([]model.TariffItem, error) {
	if err := model.ValidateDate(date); err != nil {
		return nil, err
	}
	if f.opts.APIKey == "" {
		return nil, model.Errorf(model.KindConfiguration, "wb: fetch", "WB_API_KEY is required but not set")
	}

	log := zap.L().With(zap.String("component", "wb"), zap.String("date", date))

	attempt := 0
	cfg := resilience.RetryConfig{
		MaxAttempts: f.opts.MaxAttempts,
		Backoff:     resilience.LinearBackoff(f.opts.BackoffStep),
		ShouldRetry: resilience.RetryUnlessPermanent,
		OnRetry:     resilience.RetryLogger("wb", "fetch_tariffs"),
	}

	items, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.TariffItem, error) {
		attempt++
		log.Info("fetching WB tariffs", zap.Int("attempt", attempt), zap.Int("total", f.opts.MaxAttempts))

		items, err := f.fetchOnce(ctx, date)
		switch {
		case err == nil:
			metrics.FetchAttempts.WithLabelValues("ok").Inc()
		case resilience.IsPermanent(err):
			metrics.FetchAttempts.WithLabelValues("permanent").Inc()
		default:
			metrics.FetchAttempts.WithLabelValues("error").Inc()
		}
		if err != nil {
			log.Warn("fetch attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return items, err
	})
	if err != nil {
		log.Error("failed to fetch WB tariffs", zap.Int("attempts", attempt), zap.Error(err))
		return nil, model.NewError(model.KindFetch, "wb: fetch", err)
	}
	return items, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, date string) ([]model.TariffItem, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wb: rate limiter wait")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	u, err := url.Parse(f.opts.BaseURL)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "wb: parse base url"), 0)
	}
	q := u.Query()
	q.Set("date", date)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wb: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.opts.APIKey)
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wb: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "wb: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("wb: http %d: %s", resp.StatusCode, truncate(body, 300))
		switch {
		case resilience.IsAuthHTTPStatus(resp.StatusCode):
			return nil, resilience.NewPermanentError(statusErr, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			f.limiter.OnRateLimit()
		}
		return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
	}

	items, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	f.limiter.OnSuccess()
	return items, nil
}
