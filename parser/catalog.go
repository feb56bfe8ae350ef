package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-msu-finder/models"
)

// allProductsValue is the dropdown option that selects every product.
const allProductsValue = "-1"

// CatalogEntries reads the product dropdown of the bulletin search landing page.
func CatalogEntries(body []byte) ([]models.CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse landing page: %w", err)
	}

	var entries []models.CatalogEntry
	doc.Find(`div.sb-search select#productDropdown option`).Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr("value")
		if !ok || value == allProductsValue {
			return
		}
		entries = append(entries, models.CatalogEntry{
			Value: value,
			Label: strings.TrimSpace(s.Text()),
		})
	})
	return entries, nil
}
