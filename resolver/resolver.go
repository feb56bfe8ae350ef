// Package resolver turns a bulletin identifier into the download links of
// the patches it ships.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/aluiziolira/go-msu-finder/parser"
)

const (
	notFoundPhrase   = "We are sorry. The page you requested cannot be found"
	confirmationBase = "https://www.microsoft.com/en-us/download/"
)

var (
	// ErrAdvisoryNotFound is returned when the advisory page does not exist.
	ErrAdvisoryNotFound = errors.New("the advisory cannot be found")
	// ErrNoLinksFound is returned when an advisory names no product family pages.
	ErrNoLinksFound = errors.New("unable to find download.microsoft.com links, please manually navigate to the page")
	// ErrNoConfirmationLink is reported when a download page has no confirmation link.
	ErrNoConfirmationLink = errors.New("no confirmation link on download page")
)

// Fetcher issues a single logical request.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchResult, error)
}

// Resolver walks advisory, download and confirmation pages. It keeps no
// state between identifiers.
type Resolver struct {
	fetcher   Fetcher
	technet   models.HostTarget
	microsoft models.HostTarget
	rules     []parser.Rule
}

// New builds a resolver that reads advisories from the Technet host and
// download pages from the Microsoft host.
func New(f Fetcher, hosts config.Hosts) *Resolver {
	return &Resolver{
		fetcher:   f,
		technet:   hosts.Technet,
		microsoft: hosts.Microsoft,
		rules:     parser.AdvisoryRules,
	}
}

// Resolve returns the distinct download links of the bulletin named by raw,
// keeping only those matching filter when it is non-nil. Family pages that
// fail to load or carry no confirmation link are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, raw string, filter *regexp.Regexp) ([]models.DownloadLink, error) {
	id, err := models.ParseBulletinID(raw)
	if err != nil {
		return nil, err
	}

	advisory, err := r.fetcher.Fetch(ctx, models.FetchRequest{
		Target: r.technet,
		Method: http.MethodGet,
		Path:   "/en-us/library/security/" + id.String() + ".aspx",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch advisory %s: %w", id, err)
	}
	if strings.Contains(string(advisory.Body), notFoundPhrase) {
		return nil, ErrAdvisoryNotFound
	}

	families, err := r.familyLinks(advisory.Body)
	if err != nil {
		return nil, err
	}
	if len(families) == 0 {
		return nil, ErrNoLinksFound
	}
	slog.Debug(fmt.Sprintf("found %d affected products for this advisory", len(families)))

	var links []models.DownloadLink
	seen := make(map[string]struct{})
	for _, family := range families {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		hrefs, err := r.downloadHrefs(ctx, family)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return links, err
			}
			slog.Error("unable to collect links from download page",
				slog.String("bulletin", id.String()),
				slog.String("url", family.String()),
				slog.Any("error", err),
			)
			continue
		}

		for _, href := range hrefs {
			link, err := models.ParseDownloadLink(id, href)
			if err != nil {
				slog.Debug("ignoring download link", slog.String("href", href), slog.Any("error", err))
				continue
			}
			if _, ok := seen[link.URL]; ok {
				continue
			}
			seen[link.URL] = struct{}{}
			if filter != nil && !filter.MatchString(link.URL) {
				continue
			}
			links = append(links, link)
		}
	}

	return links, nil
}

func (r *Resolver) familyLinks(body []byte) ([]*url.URL, error) {
	doc, err := parser.ParseDocument(body)
	if err != nil {
		return nil, err
	}
	rule, ok := parser.SelectRule(doc, r.rules)
	if !ok {
		return nil, nil
	}
	slog.Debug("matched advisory layout", slog.String("era", rule.Era.String()))
	return parser.FamilyLinks(parser.Apply(doc, rule)), nil
}

// downloadHrefs follows a family link through its download page to the
// confirmation page and returns the binary links listed there.
func (r *Resolver) downloadHrefs(ctx context.Context, family *url.URL) ([]string, error) {
	page, err := r.fetcher.Fetch(ctx, models.FetchRequest{
		Target: r.microsoft,
		Method: http.MethodGet,
		Path:   family.RequestURI(),
	})
	if err != nil {
		return nil, err
	}

	// A single redirect hop, always on the same host.
	if location := page.Location(); location != "" {
		next, err := requestURI(location)
		if err != nil {
			return nil, fmt.Errorf("follow redirect: %w", err)
		}
		page, err = r.fetcher.Fetch(ctx, models.FetchRequest{
			Target: r.microsoft,
			Method: http.MethodGet,
			Path:   next,
		})
		if err != nil {
			return nil, err
		}
	}

	href, ok, err := parser.ConfirmationHref(page.Body)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoConfirmationLink
	}

	confirmation, err := requestURI(confirmationBase + href)
	if err != nil {
		return nil, fmt.Errorf("build confirmation url: %w", err)
	}
	res, err := r.fetcher.Fetch(ctx, models.FetchRequest{
		Target: r.microsoft,
		Method: http.MethodGet,
		Path:   confirmation,
	})
	if err != nil {
		return nil, err
	}
	return parser.DownloadHrefs(res.Body)
}

// requestURI returns the path and query of raw, which may be relative.
func requestURI(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return u.RequestURI(), nil
}
