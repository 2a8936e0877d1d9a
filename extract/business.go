package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var businessFields = []field{
	{"company_name", companyName},
	{"description", description},
	{"contact_email", contactEmail},
	{"phone", phone},
	{"address", address},
}

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`(?:\+|00)?\d[\d\s().-]{6,18}\d`)

	// titleSeparators split "Acme | Home" style titles.
	titleSeparators = regexp.MustCompile(`\s+[|\-–—:·]\s+`)
)

// Addresses containing these are placeholders or automated senders.
var ignoredEmailParts = []string{"noreply", "no-reply", "example", "test", "sentry", "wixpress", "domain.com"}

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

func companyName(d *document) any {
	for _, obj := range jsonLD(d) {
		if isOrganization(obj) {
			if name, ok := obj["name"].(string); ok && strings.TrimSpace(name) != "" {
				return name
			}
		}
	}
	if og := openGraph(d); og != nil && og.SiteName != "" {
		return og.SiteName
	}
	title := strings.TrimSpace(d.doc.Find("title").First().Text())
	if title == "" {
		return nil
	}
	return strings.TrimSpace(titleSeparators.Split(title, 2)[0])
}

func description(d *document) any {
	if v := d.meta("description"); v != "" {
		return v
	}
	if og := openGraph(d); og != nil && og.Description != "" {
		return og.Description
	}
	for _, obj := range jsonLD(d) {
		if isOrganization(obj) {
			if desc, ok := obj["description"].(string); ok {
				return desc
			}
		}
	}
	return nil
}

// contactEmail prefers mailto links, then addresses in visible text,
// across the main page and any subpages.
func contactEmail(d *document) any {
	for _, doc := range d.allDocs() {
		var found string
		doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			addr := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			if usableEmail(addr) {
				found = addr
				return false
			}
			return true
		})
		if found != "" {
			return strings.ToLower(found)
		}
	}
	for _, text := range allVisibleText(d) {
		for _, m := range emailRe.FindAllString(text, -1) {
			if usableEmail(m) {
				return strings.ToLower(m)
			}
		}
	}
	return nil
}

func usableEmail(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !emailRe.MatchString(addr) {
		return false
	}
	for _, part := range ignoredEmailParts {
		if strings.Contains(addr, part) {
			return false
		}
	}
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(addr, suffix) {
			return false
		}
	}
	return true
}

// phone prefers tel: links, then JSON-LD telephone, then a digit run of
// plausible length in visible text.
func phone(d *document) any {
	for _, doc := range d.allDocs() {
		if href, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
			if num := strings.TrimSpace(strings.TrimPrefix(href, "tel:")); num != "" {
				return num
			}
		}
	}
	for _, obj := range jsonLD(d) {
		if tel, ok := obj["telephone"].(string); ok && tel != "" {
			return tel
		}
	}
	for _, text := range allVisibleText(d) {
		for _, m := range phoneRe.FindAllString(text, -1) {
			if n := countDigits(m); n >= 8 && n <= 15 {
				return strings.TrimSpace(m)
			}
		}
	}
	return nil
}

func address(d *document) any {
	for _, obj := range jsonLD(d) {
		switch a := obj["address"].(type) {
		case string:
			return a
		case map[string]any:
			var parts []string
			for _, k := range []string{"streetAddress", "postalCode", "addressLocality", "addressRegion", "addressCountry"} {
				if s, ok := a[k].(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	for _, doc := range d.allDocs() {
		if text := collapseSpace(doc.Find("address").First().Text()); text != "" {
			return text
		}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// jsonLD decodes every application/ld+json block into flat objects,
// expanding top-level arrays and @graph lists. Broken blocks are skipped.
func jsonLD(d *document) []map[string]any {
	return memo(d, "jsonld", func() []map[string]any {
		var out []map[string]any
		d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
			var raw any
			if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
				return
			}
			out = append(out, flattenLD(raw)...)
		})
		return out
	})
}

func flattenLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flattenLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		return out
	}
	return nil
}

var organizationTypes = []string{"Organization", "LocalBusiness", "Corporation", "Store", "Restaurant", "ProfessionalService", "WebSite"}

func isOrganization(obj map[string]any) bool {
	var types []string
	switch t := obj["@type"].(type) {
	case string:
		types = []string{t}
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, t := range types {
		for _, org := range organizationTypes {
			if t == org {
				return true
			}
		}
	}
	return false
}
