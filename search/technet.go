package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/aluiziolira/go-msu-finder/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	landingPath   = "/en-us/security/bulletin/dn602597.aspx"
	bulletinsPath = "/security/bulletin/services/GetBulletins"

	defaultMemoSize = 256
)

// TechnetOption configures a TechnetSearch.
type TechnetOption func(*TechnetSearch)

// WithMemoSize bounds the number of remembered catalog queries.
func WithMemoSize(size int) TechnetOption {
	return func(s *TechnetSearch) {
		s.memoSize = size
	}
}

// TechnetSearch resolves keywords through the bulletin catalog's product
// dropdown, falling back to a free-text catalog query.
type TechnetSearch struct {
	fetcher  Fetcher
	host     models.HostTarget
	memoSize int

	mu      sync.Mutex
	catalog []models.CatalogEntry
	loaded  bool
	memo    *lru.Cache[string, []string]
}

// NewTechnetSearch builds a catalog search session. Nothing is fetched until
// the first lookup.
func NewTechnetSearch(f Fetcher, hosts config.Hosts, opts ...TechnetOption) *TechnetSearch {
	s := &TechnetSearch{
		fetcher:  f,
		host:     hosts.Technet,
		memoSize: defaultMemoSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.memoSize > 0 {
		memo, err := lru.New[string, []string](s.memoSize)
		if err == nil {
			s.memo = memo
		}
	}
	return s
}

// Catalog returns the product dropdown of the landing page, loading it once
// per session. A failed load is retried on the next call.
func (s *TechnetSearch) Catalog(ctx context.Context) ([]models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.catalog, nil
	}

	res, err := s.fetcher.Fetch(ctx, models.FetchRequest{
		Target: s.host,
		Method: http.MethodGet,
		Path:   landingPath,
	})
	if err != nil {
		return nil, fmt.Errorf("load product catalog: %w", err)
	}
	entries, err := parser.CatalogEntries(res.Body)
	if err != nil {
		return nil, err
	}

	s.catalog = entries
	s.loaded = true
	return entries, nil
}

// FindIdentifiers returns the bulletins of every catalog product whose label
// matches keyword, in catalog order. Keywords that match no product are sent
// to the catalog as free text.
func (s *TechnetSearch) FindIdentifiers(ctx context.Context, keyword string) ([]models.BulletinID, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	pattern := compileKeyword(keyword)
	var matches []models.CatalogEntry
	for _, entry := range catalog {
		if pattern.MatchString(entry.Label) {
			matches = append(matches, entry)
		}
	}

	if len(matches) == 0 {
		slog.Debug("did not find a match from the product list, attempting a generic search")
		raw, err := s.query(ctx, keyword)
		if err != nil {
			return nil, err
		}
		return parseIDs(raw), nil
	}

	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		labels = append(labels, m.Label)
	}
	slog.Debug(fmt.Sprintf("matches from the product list (%d): %s", len(matches), strings.Join(labels, ", ")))

	var raw []string
	for _, m := range matches {
		found, err := s.query(ctx, m.Value)
		if err != nil {
			return nil, err
		}
		raw = append(raw, found...)
	}
	return parseIDs(raw), nil
}

type bulletinsResponse struct {
	B []struct {
		ID string `json:"Id"`
	} `json:"b"`
}

// query runs one catalog search and returns the lowercased ids.
func (s *TechnetSearch) query(ctx context.Context, searchText string) ([]string, error) {
	if s.memo != nil {
		if ids, ok := s.memo.Get(searchText); ok {
			return ids, nil
		}
	}

	res, err := s.fetcher.Fetch(ctx, models.FetchRequest{
		Target: s.host,
		Method: http.MethodGet,
		Path:   bulletinsPath,
		Query: url.Values{
			"searchText":       {searchText},
			"sortField":        {"0"},
			"sortOrder":        {"1"},
			"currentPage":      {"1"},
			"bulletinsPerPage": {"9999"},
			"locale":           {"en-us"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query catalog for %q: %w", searchText, err)
	}

	var decoded bulletinsResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		slog.Debug("malformed catalog response", slog.String("search_text", searchText), slog.Any("error", err))
		return nil, nil
	}

	ids := make([]string, 0, len(decoded.B))
	for _, b := range decoded.B {
		ids = append(ids, strings.ToLower(b.ID))
	}
	if s.memo != nil {
		s.memo.Add(searchText, ids)
	}
	return ids, nil
}

// compileKeyword treats keyword as a regular expression, or as literal text
// when it does not compile.
func compileKeyword(keyword string) *regexp.Regexp {
	if re, err := regexp.Compile(keyword); err == nil {
		return re
	}
	return regexp.MustCompile(regexp.QuoteMeta(keyword))
}
