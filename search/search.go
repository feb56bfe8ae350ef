// Package search finds security bulletin identifiers for a keyword.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-msu-finder/models"
)

// Fetcher issues a single logical request.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchResult, error)
}

// Searcher maps a keyword to the bulletin identifiers it covers.
type Searcher interface {
	FindIdentifiers(ctx context.Context, keyword string) ([]models.BulletinID, error)
}

// UpstreamAPIError reports an error object returned by the search API.
type UpstreamAPIError struct {
	Message string
	Reason  string
}

func (e *UpstreamAPIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("web search failed: %s", e.Message)
	}
	return fmt.Sprintf("web search failed: %s (%s)", e.Message, e.Reason)
}

// parseIDs converts raw identifiers, dropping and logging the malformed ones.
func parseIDs(raw []string) []models.BulletinID {
	ids := make([]models.BulletinID, 0, len(raw))
	for _, r := range raw {
		id, err := models.ParseBulletinID(r)
		if err != nil {
			slog.Debug("ignoring malformed bulletin id", slog.String("id", r))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
