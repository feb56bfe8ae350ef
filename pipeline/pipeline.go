// Package pipeline runs a search, resolves every bulletin found and reports
// the download links.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/aluiziolira/go-msu-finder/resolver"
	"github.com/aluiziolira/go-msu-finder/search"
)

// Outcome labels recorded per bulletin.
const (
	OutcomeResolved          = "resolved"
	OutcomeInvalidIdentifier = "invalid_identifier"
	OutcomeAdvisoryNotFound  = "advisory_not_found"
	OutcomeNoLinks           = "no_links"
	OutcomeFetchFailed       = "fetch_failed"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(links []models.DownloadLink) error
	Close() error
	Validate() error
}

// LinkResolver resolves one bulletin identifier into download links.
type LinkResolver interface {
	Resolve(ctx context.Context, raw string, filter *regexp.Regexp) ([]models.DownloadLink, error)
}

// Pipeline coordinates search, resolution and output writing.
type Pipeline struct {
	searcher search.Searcher
	resolver LinkResolver
	writer   OutputWriter
	cfg      *config.Config

	metrics metrics
}

// New builds a pipeline for cfg's keyword.
func New(searcher search.Searcher, resolver LinkResolver, writer OutputWriter, cfg *config.Config) *Pipeline {
	return &Pipeline{
		searcher: searcher,
		resolver: resolver,
		writer:   writer,
		cfg:      cfg,
		metrics:  newMetrics(),
	}
}

// Run searches for the configured keyword and, unless this is a dry run,
// resolves every bulletin in order. Per-bulletin failures are logged and
// counted; only search-phase network failures, write failures and
// cancellation end the run early.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime: time.Now(),
		DryRun:    p.cfg.DryRun,
	}
	defer func() {
		result.EndTime = time.Now()
		result.Outcomes = p.metrics.snapshot()
	}()

	filter, err := p.cfg.Filter()
	if err != nil {
		return result, err
	}

	slog.Debug(fmt.Sprintf("searching advisories that include %s via %s", p.cfg.Keyword, p.cfg.SearchEngine))
	ids, err := p.searcher.FindIdentifiers(ctx, p.cfg.Keyword)
	if err != nil {
		var apiErr *search.UpstreamAPIError
		if !errors.As(err, &apiErr) {
			return result, fmt.Errorf("search advisories: %w", err)
		}
		slog.Error(apiErr.Error())
	}
	result.Bulletins = ids

	if len(ids) > 0 {
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, id.String())
		}
		slog.Debug(fmt.Sprintf("advisories found (%d): %s", len(ids), strings.Join(names, ", ")))
	}

	if p.cfg.DryRun {
		return result, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		slog.Debug(fmt.Sprintf("finding download links for %s", id))
		links, err := p.resolver.Resolve(ctx, id.String(), filter)
		if err != nil && errors.Is(err, context.Canceled) {
			return result, err
		}
		if err != nil {
			p.recordFailure(result, id.String(), err)
			continue
		}
		p.metrics.add(OutcomeResolved)
		result.Links = append(result.Links, links...)
	}

	if len(result.Links) == 0 {
		return result, nil
	}

	slog.Info("found these links:")
	if err := p.writer.Write(result.Links); err != nil {
		return result, fmt.Errorf("write links: %w", err)
	}
	slog.Info(fmt.Sprintf("total downloadable updates found: %d", len(result.Links)))

	return result, nil
}

// GetMetrics returns a snapshot of the per-outcome counters.
func (p *Pipeline) GetMetrics() map[string]int {
	return p.metrics.snapshot()
}

func (p *Pipeline) recordFailure(result *models.RunResult, id string, err error) {
	result.FailedBulletins = append(result.FailedBulletins, id)

	switch {
	case errors.Is(err, models.ErrInvalidBulletinID):
		p.metrics.add(OutcomeInvalidIdentifier)
		slog.Error("not a valid MSB format", slog.String("bulletin", id))
		slog.Error("example of a correct one: ms15-100")
	case errors.Is(err, resolver.ErrAdvisoryNotFound):
		p.metrics.add(OutcomeAdvisoryNotFound)
		slog.Error(err.Error(), slog.String("bulletin", id))
	case errors.Is(err, resolver.ErrNoLinksFound):
		p.metrics.add(OutcomeNoLinks)
		slog.Error(err.Error(), slog.String("bulletin", id))
	default:
		p.metrics.add(OutcomeFetchFailed)
		slog.Error("unable to resolve advisory", slog.String("bulletin", id), slog.Any("error", err))
	}
}

type metrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func newMetrics() metrics {
	return metrics{
		outcomes: make(map[string]int),
	}
}

func (m *metrics) add(kind string) {
	m.mu.Lock()
	m.outcomes[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyOutcomes := make(map[string]int, len(m.outcomes))
	for k, v := range m.outcomes {
		copyOutcomes[k] = v
	}
	return copyOutcomes
}
