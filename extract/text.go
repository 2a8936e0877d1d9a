package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dyatlov/go-opengraph/opengraph"
	"golang.org/x/net/html"
)

// visibleText extracts the text inside <body>, skipping script, style,
// noscript and template content.
func visibleText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript", "template":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}

// pageText is the visible text of the main page, computed once.
func pageText(d *document) string {
	return memo(d, "text", func() string { return visibleText(d.page.Body) })
}

// allVisibleText returns the visible text of the main page and subpages.
func allVisibleText(d *document) []string {
	return memo(d, "alltext", func() []string {
		out := []string{pageText(d)}
		for _, sp := range d.page.Subpages {
			out = append(out, visibleText(sp.Body))
		}
		return out
	})
}

// openGraph parses Open Graph tags once; nil when the page has none.
func openGraph(d *document) *opengraph.OpenGraph {
	return memo(d, "og", func() *opengraph.OpenGraph {
		og := opengraph.NewOpenGraph()
		if err := og.ProcessHTML(strings.NewReader(d.page.Body)); err != nil {
			return nil
		}
		if og.Title == "" && og.SiteName == "" && og.Description == "" && len(og.Images) == 0 {
			return nil
		}
		return og
	})
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// stopWords covers English and Italian function words plus web chrome.
var stopWords = toSet(`the and for are but not you all any can had her was one our out day get has him his how man new now old see two way who boy did its let put say she too use
that with have this will your from they know want been good much some time very when come here just like long make many more only over such take than them well were what
about after again also back because before being between both could does down each even every first into most must other same should since still their there these those
through under until where which while would yours home page menu cookie cookies privacy policy click read more
della delle degli dello dalla dalle nella nelle sono come anche questo questa quello quella perché però tutti tutte nostro nostra nostri nostre vostro essere hanno
alla alle agli allo sulla sulle sono più fino dopo prima ogni altro altri altra altre loro cosa quando dove mentre`)

func toSet(words string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// topKeywords returns the n most frequent words of at least four letters,
// ignoring stop words. Ties break alphabetically.
func topKeywords(text string, n int) []string {
	counts := map[string]int{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// needsJavaScript guesses whether the page only renders with JS: an SPA
// shell, a noscript warning, or many scripts around very little text.
func needsJavaScript(rawHTML, bodyText string) bool {
	if len(bodyText) < 200 {
		return true
	}
	lower := strings.ToLower(rawHTML)
	for _, shell := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, shell) {
			return true
		}
	}
	if reNoscript.MatchString(lower) {
		return true
	}
	return strings.Count(lower, "<script") > 10 && len(bodyText) < 500
}
