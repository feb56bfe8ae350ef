package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	confirmationMarker = "confirmation.aspx?id="
	downloadHostPrefix = "http://download.microsoft.com/download/"
)

var familyLinkPattern = regexp.MustCompile(`(?i)https://www\.microsoft\.com/downloads/details\.aspx\?familyid=`)

// FamilyLinks keeps the anchors that point at a product family download
// details page. Anchors whose href does not parse are logged and skipped.
func FamilyLinks(anchors []*html.Node) []*url.URL {
	var links []*url.URL
	for _, anchor := range anchors {
		href := Href(anchor)
		if !familyLinkPattern.MatchString(href) {
			continue
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			slog.Error("unable to parse URI", slog.String("href", href), slog.Any("error", err))
			continue
		}
		links = append(links, link)
	}
	return links
}

// ConfirmationHref returns the href of the first anchor pointing at a
// confirmation page.
func ConfirmationHref(body []byte) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parse download page: %w", err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, confirmationMarker) {
			found = href
			return false
		}
		return true
	})
	return found, found != "", nil
}

// DownloadHrefs returns the distinct download host hrefs of a confirmation
// page in document order.
func DownloadHrefs(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse confirmation page: %w", err)
	}

	var hrefs []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, downloadHostPrefix) {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		hrefs = append(hrefs, href)
	})
	return hrefs, nil
}
