package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
)

const (
	customSearchPath = "/customsearch/v1"

	// PageSize is the largest page the API serves.
	PageSize = 10
	// MaxResults is the deepest offset the API will return results for.
	MaxResults = 100
)

var bulletinTitlePattern = regexp.MustCompile(`Microsoft Security Bulletin (MS\d\d-\d\d\d)`)

// WebSearch finds bulletins through a programmable web search engine,
// restricted to bulletin titles.
type WebSearch struct {
	fetcher  Fetcher
	host     models.HostTarget
	apiKey   string
	engineID string
}

// NewWebSearch builds a web search backend using the given credentials.
func NewWebSearch(f Fetcher, hosts config.Hosts, apiKey, engineID string) *WebSearch {
	return &WebSearch{
		fetcher:  f,
		host:     hosts.GoogleAPIs,
		apiKey:   apiKey,
		engineID: engineID,
	}
}

type searchPage struct {
	Items []struct {
		Title string `json:"title"`
	} `json:"items"`
	Queries struct {
		Request []struct {
			TotalResults string `json:"totalResults"`
		} `json:"request"`
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
	Error *struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// FindIdentifiers pages through the results for keyword and returns the
// distinct bulletins named in result titles, in first-seen order. When the
// API reports an error the identifiers gathered so far are returned along
// with an *UpstreamAPIError.
func (w *WebSearch) FindIdentifiers(ctx context.Context, keyword string) ([]models.BulletinID, error) {
	var raw []string
	seen := make(map[string]struct{})

	start := 1
	for {
		page, err := w.page(ctx, keyword, start)
		if err != nil {
			return parseIDs(raw), err
		}
		if page == nil {
			break
		}

		for _, item := range page.Items {
			m := bulletinTitlePattern.FindStringSubmatch(item.Title)
			if m == nil {
				continue
			}
			id := strings.ToLower(m[1])
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			raw = append(raw, id)
		}

		if len(page.Queries.NextPage) == 0 {
			break
		}
		next := page.Queries.NextPage[0].StartIndex
		if next > MaxResults || next <= start {
			break
		}
		start = next
	}

	return parseIDs(raw), nil
}

// page fetches one result page. A nil page with a nil error means the body
// could not be decoded.
func (w *WebSearch) page(ctx context.Context, keyword string, start int) (*searchPage, error) {
	q := strings.Join([]string{
		keyword,
		`intitle:"Microsoft Security Bulletin"`,
		`-"Microsoft Security Bulletin Summary"`,
	}, " ")

	res, err := w.fetcher.Fetch(ctx, models.FetchRequest{
		Target: w.host,
		Method: http.MethodGet,
		Path:   customSearchPath,
		Query: url.Values{
			"key":    {w.apiKey},
			"cx":     {w.engineID},
			"q":      {q},
			"start":  {strconv.Itoa(start)},
			"num":    {strconv.Itoa(PageSize)},
			"c2coff": {"1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("web search at offset %d: %w", start, err)
	}

	var page searchPage
	if err := json.Unmarshal(res.Body, &page); err != nil {
		slog.Debug("malformed search response", slog.Int("start", start), slog.Any("error", err))
		return nil, nil
	}

	if page.Error != nil {
		apiErr := &UpstreamAPIError{Message: page.Error.Message}
		if len(page.Error.Errors) > 0 {
			apiErr.Message = page.Error.Errors[0].Message
			apiErr.Reason = page.Error.Errors[0].Reason
		}
		return nil, apiErr
	}

	if start == 1 {
		total := ""
		if len(page.Queries.Request) > 0 {
			total = page.Queries.Request[0].TotalResults
		}
		slog.Debug(fmt.Sprintf("number of search results: %s", total))
	}
	return &page, nil
}
