// Package fetcher issues pinned HTTPS requests with a bounded retry budget.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// TransportFactory returns the round tripper used for one attempt against target.
type TransportFactory func(target models.HostTarget) http.RoundTripper

// SleepFunc pauses between attempts. It returns early with ctx's error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the default pinned transport.
func WithTransport(factory TransportFactory) Option {
	return func(f *Fetcher) {
		f.newTransport = factory
	}
}

// WithSleep replaces the pause between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithMetrics records attempts on m instead of a fresh registry.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.Metrics = m
	}
}

// Fetcher opens a fresh connection per attempt and retries transient failures.
type Fetcher struct {
	cfg          *config.Config
	newTransport TransportFactory
	sleep        SleepFunc
	Metrics      *Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	requestCount int64
	retryCount   int64
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:      cfg,
		sleep:    sleepContext,
		Metrics:  NewMetrics(),
		limiters: make(map[string]*rate.Limiter),
	}
	f.newTransport = func(target models.HostTarget) http.RoundTripper {
		return NewPinnedTransport(target, cfg.Timeout)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues req, retrying transient failures up to the configured number
// of attempts. Non-2xx responses are results, not errors, and redirects are
// returned to the caller unfollowed.
func (f *Fetcher) Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	maxAttempts := f.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := f.limiterFor(req.Target).Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", req.Target.VHost, err)
		}

		slog.Debug("requesting",
			slog.String("method", req.Method),
			slog.String("host", req.Target.VHost),
			slog.String("path", req.Path),
		)

		result, err := f.attempt(req)
		if err == nil {
			return result, nil
		}

		classified, transient := classifyError(err)
		lastErr = classified
		f.Metrics.IncError(errorTypeLabel(classified))
		if !transient {
			return nil, &NetworkFatalError{Attempts: attempt, Err: classified}
		}
		if attempt == maxAttempts {
			break
		}

		slog.Error("request failed, retrying",
			slog.String("url", req.URL()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", f.cfg.RetryDelay),
			slog.Any("error", classified),
		)
		atomic.AddInt64(&f.retryCount, 1)
		f.Metrics.IncRetries()
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}

	return nil, &NetworkFatalError{Attempts: maxAttempts, Err: lastErr}
}

// Requests returns the number of attempts issued so far.
func (f *Fetcher) Requests() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// Retries returns the number of retries scheduled so far.
func (f *Fetcher) Retries() int {
	return int(atomic.LoadInt64(&f.retryCount))
}

func (f *Fetcher) attempt(req models.FetchRequest) (*models.FetchResult, error) {
	transport := f.newTransport(req.Target)
	defer closeTransport(transport)

	collector := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(transport)
	collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	var result *models.FetchResult
	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		result = &models.FetchResult{
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       r.Body,
		}
	})

	atomic.AddInt64(&f.requestCount, 1)
	f.Metrics.IncRequest(req.Target.VHost)
	start := time.Now()
	err := collector.Request(req.Method, req.URL(), nil, nil, nil)
	f.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", req.URL())
	}
	return result, nil
}

func (f *Fetcher) limiterFor(target models.HostTarget) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters[target.VHost]
	if !ok {
		limit := rate.Inf
		if f.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(f.cfg.RequestsPerSecond)
		}
		limiter = rate.NewLimiter(limit, 1)
		f.limiters[target.VHost] = limiter
	}
	return limiter
}

type idleCloser interface {
	CloseIdleConnections()
}

func closeTransport(rt http.RoundTripper) {
	if c, ok := rt.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
