package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var structureFields = []field{
	{"navigation_sections", navigationSections},
	{"navigation_depth", navigationDepth},
	{"internal_links", internalLinks},
	{"internal_link_count", internalLinkCount},
	{"external_links", externalLinks},
	{"seo_errors", seoErrors},
	{"cta_buttons", ctaButtons},
	{"main_objective", mainObjective},
	{"funnel_phase", funnelPhase},
	{"implicit_funnel", implicitFunnel},
	{"perceived_style", perceivedStyle},
	{"perceived_design", perceivedDesign},
}

const (
	maxListedLinks    = 10
	depthSampleLinks  = 20
	maxNavDepth       = 5
	maxTitleRunes     = 60
	maxCTATextRunes   = 40
	maxListedSections = 10
)

// issueList is a finished check: an empty list means nothing was wrong,
// so it survives normalise as a found value.
type issueList []string

type pageLink struct {
	url      *url.URL
	text     string
	internal bool
}

// links lists every http(s) anchor of the main page, resolved against the
// final URL.
func links(d *document) []pageLink {
	return memo(d, "links", func() []pageLink {
		base, err := url.Parse(d.page.FinalURL)
		if err != nil {
			return nil
		}
		var out []pageLink
		d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			u, err := base.Parse(strings.TrimSpace(href))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return
			}
			u.Fragment = ""
			out = append(out, pageLink{
				url:      u,
				text:     collapseSpace(s.Text()),
				internal: strings.EqualFold(u.Hostname(), base.Hostname()),
			})
		})
		return out
	})
}

func internalOnly(d *document) []pageLink {
	var out []pageLink
	for _, l := range links(d) {
		if l.internal {
			out = append(out, l)
		}
	}
	return out
}

const navContainers = "nav, #menu, .menu, #navigation, .navigation"

func navigationSections(d *document) any {
	seen := map[string]struct{}{}
	var out []string
	d.doc.Find(navContainers).Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := collapseSpace(s.Text())
		if t == "" {
			return true
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			out = append(out, t)
		}
		return len(out) < maxListedSections
	})
	return out
}

// navigationDepth is the deepest path among the first internal links,
// capped at maxNavDepth.
func navigationDepth(d *document) any {
	internal := internalOnly(d)
	if len(internal) == 0 {
		return nil
	}
	if len(internal) > depthSampleLinks {
		internal = internal[:depthSampleLinks]
	}
	depth := 1
	for _, l := range internal {
		segs := 0
		for _, p := range strings.Split(strings.Trim(l.url.Path, "/"), "/") {
			if p != "" {
				segs++
			}
		}
		depth = max(depth, segs)
	}
	return int64(min(depth, maxNavDepth))
}

func internalLinks(d *document) any {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range internalOnly(d) {
		ref := l.url.EscapedPath()
		if ref == "" {
			ref = "/"
		}
		if l.url.RawQuery != "" {
			ref += "?" + l.url.RawQuery
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
		if len(out) == maxListedLinks {
			break
		}
	}
	return out
}

func internalLinkCount(d *document) any {
	return int64(len(internalOnly(d)))
}

// externalLinks reports whether the page links off-site; nil for a page
// without links.
func externalLinks(d *document) any {
	all := links(d)
	if len(all) == 0 {
		return nil
	}
	for _, l := range all {
		if !l.internal {
			return true
		}
	}
	return false
}

func seoErrors(d *document) any {
	issues := issueList{}
	switch title := collapseSpace(d.doc.Find("title").First().Text()); {
	case title == "":
		issues = append(issues, "missing_title")
	case utf8.RuneCountInString(title) > maxTitleRunes:
		issues = append(issues, "title_too_long")
	}
	if d.meta("description") == "" {
		issues = append(issues, "missing_meta_description")
	}
	switch n := d.doc.Find("h1").Length(); {
	case n == 0:
		issues = append(issues, "missing_h1")
	case n > 1:
		issues = append(issues, "multiple_h1")
	}
	return issues
}

var ctaPattern = regexp.MustCompile(`(?i)\b(buy|purchase|shop|add to cart|checkout|subscribe|sign up|register|download|get started|contact|learn more|try|demo|acquista|carrello|iscriviti|scarica|contattaci|prenota)\b`)

// ctas lists the distinct short button and link labels that read as a
// call to action.
func ctas(d *document) []string {
	return memo(d, "ctas", func() []string {
		seen := map[string]struct{}{}
		var out []string
		d.doc.Find("button, a").Each(func(_ int, s *goquery.Selection) {
			t := collapseSpace(s.Text())
			if t == "" || utf8.RuneCountInString(t) > maxCTATextRunes || !ctaPattern.MatchString(t) {
				return
			}
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			out = append(out, t)
		})
		return out
	})
}

func ctaButtons(d *document) any {
	out := ctas(d)
	if len(out) > maxListedLinks {
		out = out[:maxListedLinks]
	}
	return out
}

var (
	salesCTA         = regexp.MustCompile(`(?i)\b(buy|purchase|cart|checkout|acquista|carrello)\b`)
	considerationCTA = regexp.MustCompile(`(?i)\b(subscribe|newsletter|download|iscriviti|scarica)\b`)
)

// objective derives the site goal and funnel phase from its calls to action.
func objective(d *document) (goal, phase string) {
	text := strings.Join(ctas(d), " ")
	switch {
	case salesCTA.MatchString(text):
		return "sales", "conversion"
	case considerationCTA.MatchString(text):
		return "positioning", "consideration"
	default:
		return "positioning", "awareness"
	}
}

func mainObjective(d *document) any {
	goal, _ := objective(d)
	return goal
}

func funnelPhase(d *document) any {
	_, phase := objective(d)
	return phase
}

var funnels = []struct {
	cta  *regexp.Regexp
	path string
}{
	{regexp.MustCompile(`(?i)\b(cart|checkout|carrello)\b`), "homepage > product catalog > product detail > cart > checkout"},
	{regexp.MustCompile(`(?i)\b(contact|contattaci)\b`), "homepage > services > about us > contact"},
	{regexp.MustCompile(`(?i)\b(download|scarica)\b`), "homepage > resources > download"},
}

func implicitFunnel(d *document) any {
	text := strings.Join(ctas(d), " ")
	for _, f := range funnels {
		if f.cta.MatchString(text) {
			return f.path
		}
	}
	return "homepage > content browsing > final action"
}

var styleWords = []struct {
	style string
	words map[string]struct{}
}{
	{"premium", toSet("premium luxury exclusive elegant refined esclusivo elegante raffinato lusso")},
	{"professional", toSet("professional reliable expertise professionale affidabile competenza esperienza")},
	{"casual", toSet("simple easy quick practical semplice facile veloce pratico")},
}

// perceivedStyle picks the first style whose vocabulary the page uses.
func perceivedStyle(d *document) any {
	words := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(pageText(d)), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		words[w] = struct{}{}
	}
	for _, s := range styleWords {
		for w := range s.words {
			if _, ok := words[w]; ok {
				return s.style
			}
		}
	}
	return "minimal"
}

// perceivedDesign reads a responsive viewport and imagery as signs of a
// current layout.
func perceivedDesign(d *document) any {
	responsive := d.doc.Find(`meta[name="viewport"]`).Length() > 0
	switch {
	case responsive && d.doc.Find("img").Length() > 0:
		return "modern"
	case responsive:
		return "minimal"
	default:
		return "classic"
	}
}
