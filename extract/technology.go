package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var technologyFields = []field{
	{"frontend_frameworks", techCategory("Frontend Framework")},
	{"javascript_libraries", techCategory("JavaScript Library")},
	{"css_frameworks", cssFrameworks},
	{"cms", techCategory("CMS")},
	{"ecommerce_platform", techCategory("E-commerce")},
	{"analytics", analytics},
	{"requires_javascript", requiresJavaScript},
}

type technology struct {
	name     string
	category string
	patterns []*regexp.Regexp
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// technologies are matched against the raw page source. A technology is
// reported when any one of its patterns matches.
var technologies = []technology{
	{"React", "Frontend Framework", patterns(`react(?:\.production)?\.min\.js`, `_app/static/chunks/framework`, `__NEXT_DATA__`, `React\.createElement`)},
	{"Vue.js", "Frontend Framework", patterns(`vue(?:\.min)?\.js`, `Vue\.config`, `\bv-(?:if|for|model)=`, `Vue\.component`)},
	{"Angular", "Frontend Framework", patterns(`angular(?:\.min)?\.js`, `\bng-app\b`, `@angular/core`, `\bng-controller\b`)},
	{"Next.js", "Frontend Framework", patterns(`__NEXT_DATA__`, `_next/static`, `next/router`)},
	{"Nuxt.js", "Frontend Framework", patterns(`__NUXT__`, `/_nuxt/`, `nuxt-link`)},
	{"jQuery", "JavaScript Library", patterns(`jquery(?:-[\d.]+)?(?:\.min)?\.js`, `jQuery\(`)},
	{"WordPress", "CMS", patterns(`/wp-content/`, `/wp-includes/`, `wp-json`)},
	{"Drupal", "CMS", patterns(`Drupal\.settings`, `/sites/default/files`, `drupal\.js`)},
	{"Shopify", "E-commerce", patterns(`\.myshopify\.com`, `Shopify\.theme`, `shopify-section`)},
	{"Magento", "E-commerce", patterns(`var FORM_KEY`, `/skin/frontend/`, `Mage\.Cookies`)},
}

var cssTechnologies = []technology{
	{"Bootstrap", "CSS Framework", patterns(`bootstrap(?:\.min)?\.(?:css|js)`, `\bcol-(?:xs|sm|md|lg)-\d`)},
	{"Tailwind CSS", "CSS Framework", patterns(`tailwindcss`, `\b(?:bg|text)-(?:blue|gray|red|green)-\d00\b`)},
	{"Foundation", "CSS Framework", patterns(`foundation(?:\.min)?\.css`, `\b(?:small|medium)-\d+\b`)},
	{"Bulma", "CSS Framework", patterns(`bulma(?:\.min)?\.css`, `\bis-primary\b`)},
	{"Semantic UI", "CSS Framework", patterns(`semantic(?:\.min)?\.css`, `\bui (?:container|button)\b`)},
}

// detected matches every technology once per document.
func detected(d *document) map[string][]string {
	return memo(d, "tech", func() map[string][]string {
		out := map[string][]string{}
		for _, set := range [][]technology{technologies, cssTechnologies} {
			for _, tech := range set {
				for _, re := range tech.patterns {
					if re.MatchString(d.page.Body) {
						out[tech.category] = append(out[tech.category], tech.name)
						break
					}
				}
			}
		}
		return out
	})
}

func techCategory(category string) func(*document) any {
	return func(d *document) any {
		return detected(d)[category]
	}
}

func cssFrameworks(d *document) any {
	return detected(d)["CSS Framework"]
}

var analyticsProviders = []struct {
	name   string
	marker string
}{
	{"Google Analytics", "google-analytics.com"},
	{"Google Analytics", "googletagmanager.com/gtag"},
	{"Google Tag Manager", "googletagmanager.com/gtm"},
	{"Matomo", "matomo"},
	{"Plausible", "plausible.io"},
	{"Hotjar", "hotjar"},
	{"Facebook Pixel", "connect.facebook.net"},
}

// analytics inspects script sources and inline scripts for known trackers.
func analytics(d *document) any {
	seen := map[string]struct{}{}
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		haystack := strings.ToLower(src + " " + s.Text())
		for _, p := range analyticsProviders {
			if strings.Contains(haystack, p.marker) {
				seen[p.name] = struct{}{}
			}
		}
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func requiresJavaScript(d *document) any {
	return needsJavaScript(d.page.Body, pageText(d))
}
