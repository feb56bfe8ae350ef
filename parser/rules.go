// Package parser extracts links from advisory, download details and
// confirmation pages.
package parser

import (
	"bytes"
	"fmt"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Era identifies the advisory page layout a rule was written for.
type Era int

const (
	// EraModern covers MS14-001 onward.
	EraModern Era = iota
	// EraDownloadUpdate covers MS03-040 until MS07-029.
	EraDownloadUpdate
	// EraDownloadLocations covers the oldest advisories up to MS03-039.
	EraDownloadLocations
	// EraAffectedSoftware covers MS07-030 until MS13-106.
	EraAffectedSoftware
)

func (e Era) String() string {
	switch e {
	case EraModern:
		return "modern"
	case EraDownloadUpdate:
		return "download-update"
	case EraDownloadLocations:
		return "download-locations"
	case EraAffectedSoftware:
		return "affected-software"
	default:
		return fmt.Sprintf("era(%d)", int(e))
	}
}

// Rule pairs a layout predicate with the expression that extracts the
// product family anchors from pages of that layout.
type Rule struct {
	Era     Era
	Check   *xpath.Expr
	Extract *xpath.Expr
}

// AdvisoryRules is evaluated top to bottom and the first matching check wins.
// The affected-software check is short enough to match pages of other eras,
// so it stays last. New layouts go in at the position of their era.
var AdvisoryRules = []Rule{
	{
		Era:     EraModern,
		Check:   xpath.MustCompile(`//div[@id="mainBody"]//div//h2//div//span[contains(text(), "Affected Software")]`),
		Extract: xpath.MustCompile(`//div[@id="mainBody"]//div//div[@class="sectionblock"]//table//a`),
	},
	{
		Era:     EraDownloadUpdate,
		Check:   xpath.MustCompile(`//div[@id="mainBody"]//ul//li//a[contains(text(), "Download the update")]`),
		Extract: xpath.MustCompile(`//div[@id="mainBody"]//ul//li//a[contains(text(), "Download the update")]`),
	},
	{
		Era:     EraDownloadLocations,
		Check:   xpath.MustCompile(`//div[@id="mainBody"]//div//div[@class="sectionblock"]//p//strong[contains(text(), "Download locations")]`),
		Extract: xpath.MustCompile(`//div[@id="mainBody"]//div//div[@class="sectionblock"]//ul//li//a`),
	},
	{
		Era:     EraAffectedSoftware,
		Check:   xpath.MustCompile(`//div[@id="mainBody"]//p//strong[contains(text(), "Affected Software")]`),
		Extract: xpath.MustCompile(`//div[@id="mainBody"]//table//a`),
	},
}

// ParseDocument parses an HTML body into a node tree.
func ParseDocument(body []byte) (*html.Node, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// SelectRule returns the first rule whose check matches a node of doc.
func SelectRule(doc *html.Node, rules []Rule) (Rule, bool) {
	if doc == nil {
		return Rule{}, false
	}
	for _, rule := range rules {
		if htmlquery.QuerySelector(doc, rule.Check) != nil {
			return rule, true
		}
	}
	return Rule{}, false
}

// Apply returns the elements matched by the rule's extract expression.
func Apply(doc *html.Node, rule Rule) []*html.Node {
	if doc == nil || rule.Extract == nil {
		return nil
	}
	return htmlquery.QuerySelectorAll(doc, rule.Extract)
}

// Href returns the href attribute of n, or "" when absent.
func Href(n *html.Node) string {
	return htmlquery.SelectAttr(n, "href")
}
