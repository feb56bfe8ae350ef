package parser

import (
	"strings"
	"testing"
)

const modernAdvisory = `<html><body><div id="mainBody">
<div><h2><div><span>Affected Software</span></div></h2></div>
<div><div class="sectionblock"><table>
<tr><td><a href="https://www.microsoft.com/downloads/details.aspx?familyid=AAA">Windows 7</a></td></tr>
<tr><td><a href="https://technet.microsoft.com/library/security/ms15-099">Replaced</a></td></tr>
</table></div></div>
<p><strong>Affected Software</strong></p>
<table><tr><td><a href="https://www.microsoft.com/downloads/details.aspx?familyid=LOOSE">Loose</a></td></tr></table>
</div></body></html>`

const downloadUpdateAdvisory = `<html><body><div id="mainBody"><ul>
<li><a href="https://www.microsoft.com/downloads/details.aspx?FamilyId=BBB">Download the update</a></li>
<li><a href="https://www.microsoft.com/other">Other</a></li>
</ul></div></body></html>`

const downloadLocationsAdvisory = `<html><body><div id="mainBody"><div><div class="sectionblock">
<p><strong>Download locations for this patch</strong></p>
<ul><li><a href="https://www.microsoft.com/downloads/details.aspx?familyid=CCC">Windows 2000</a></li></ul>
</div></div></div></body></html>`

const affectedSoftwareAdvisory = `<html><body><div id="mainBody">
<p><strong>Affected Software:</strong></p>
<table><tr><td><a href="https://www.microsoft.com/downloads/details.aspx?familyid=DDD">Vista</a></td></tr></table>
</div></body></html>`

func TestSelectRuleByEra(t *testing.T) {
	tests := []struct {
		name string
		page string
		want Era
	}{
		{name: "modern", page: modernAdvisory, want: EraModern},
		{name: "download update", page: downloadUpdateAdvisory, want: EraDownloadUpdate},
		{name: "download locations", page: downloadLocationsAdvisory, want: EraDownloadLocations},
		{name: "affected software", page: affectedSoftwareAdvisory, want: EraAffectedSoftware},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.page))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			rule, ok := SelectRule(doc, AdvisoryRules)
			if !ok {
				t.Fatalf("expected a rule to match")
			}
			if rule.Era != tt.want {
				t.Fatalf("era = %v, want %v", rule.Era, tt.want)
			}
		})
	}
}

func TestSelectRulePrefersEarlierRule(t *testing.T) {
	// modernAdvisory also satisfies the affected-software check.
	doc, err := ParseDocument([]byte(modernAdvisory))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := SelectRule(doc, AdvisoryRules[3:]); !ok {
		t.Fatalf("fixture should match the last rule on its own")
	}

	rule, _ := SelectRule(doc, AdvisoryRules)
	links := FamilyLinks(Apply(doc, rule))
	if len(links) != 1 {
		t.Fatalf("family links = %d, want 1", len(links))
	}
	if got := links[0].Query().Get("familyid"); got != "AAA" {
		t.Fatalf("familyid = %q, want AAA", got)
	}
}

func TestSelectRuleNoMatch(t *testing.T) {
	doc, err := ParseDocument([]byte(`<html><body><p>We are sorry.</p></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rule, ok := SelectRule(doc, AdvisoryRules); ok {
		t.Fatalf("unexpected rule %v", rule.Era)
	}
	if nodes := Apply(doc, Rule{}); nodes != nil {
		t.Fatalf("zero rule should extract nothing, got %d nodes", len(nodes))
	}
}

func TestFamilyLinksFiltersShape(t *testing.T) {
	doc, err := ParseDocument([]byte(downloadUpdateAdvisory))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rule, _ := SelectRule(doc, AdvisoryRules)
	anchors := Apply(doc, rule)
	if len(anchors) != 1 {
		t.Fatalf("anchors = %d, want 1", len(anchors))
	}
	links := FamilyLinks(anchors)
	if len(links) != 1 || links[0].RequestURI() != "/downloads/details.aspx?FamilyId=BBB" {
		t.Fatalf("unexpected links %v", links)
	}
}

func TestFamilyLinksSkipsUnparseable(t *testing.T) {
	page := "<div id=\"mainBody\"><ul><li><a href=\"https://www.microsoft.com/downloads/details.aspx?familyid=A\tB\">Download the update</a></li></ul></div>"
	doc, err := ParseDocument([]byte(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rule, _ := SelectRule(doc, AdvisoryRules)
	if links := FamilyLinks(Apply(doc, rule)); len(links) != 0 {
		t.Fatalf("expected unparseable link to be dropped, got %v", links)
	}
}

func TestConfirmationHref(t *testing.T) {
	page := `<a href="/en-us/download/details.aspx">Details</a>
<a href="confirmation.aspx?id=48687">Download</a>
<a href="confirmation.aspx?id=99999">Download again</a>`
	href, ok, err := ConfirmationHref([]byte(page))
	if err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	if !ok || href != "confirmation.aspx?id=48687" {
		t.Fatalf("href = %q (%v), want first confirmation link", href, ok)
	}

	if _, ok, _ := ConfirmationHref([]byte(`<a href="/nothing">x</a>`)); ok {
		t.Fatalf("expected no confirmation link")
	}
}

func TestDownloadHrefsDedupes(t *testing.T) {
	page := `<a href="http://download.microsoft.com/download/1/2/3/a.msu">a</a>
<a href="http://download.microsoft.com/download/1/2/3/b.msu">b</a>
<a href="http://download.microsoft.com/download/1/2/3/a.msu">a again</a>
<a href="https://www.microsoft.com/en-us/download/details.aspx">other</a>`
	hrefs, err := DownloadHrefs([]byte(page))
	if err != nil {
		t.Fatalf("download hrefs: %v", err)
	}
	want := []string{
		"http://download.microsoft.com/download/1/2/3/a.msu",
		"http://download.microsoft.com/download/1/2/3/b.msu",
	}
	if strings.Join(hrefs, ",") != strings.Join(want, ",") {
		t.Fatalf("hrefs = %v, want %v", hrefs, want)
	}
}

func TestCatalogEntriesSkipsAllProducts(t *testing.T) {
	page := `<div class="sb-search"><select id="productDropdown">
<option value="-1">All</option>
<option value="10047">Internet Explorer 11</option>
<option value="10401"> Windows 7 </option>
</select></div>
<select id="other"><option value="1">Ignored</option></select>`
	entries, err := CatalogEntries([]byte(page))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Value != "10047" || entries[0].Label != "Internet Explorer 11" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Label != "Windows 7" {
		t.Fatalf("second label = %q", entries[1].Label)
	}
}
