package extract

import (
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minArticleLength is the TextContent length below which readability is
// assumed to have missed the main content.
const minArticleLength = 50

// article runs readability once per document. ok is false when the page
// has no usable main content.
func article(d *document) (readability.Article, bool) {
	type result struct {
		art readability.Article
		ok  bool
	}
	r := memo(d, "article", func() result {
		u, err := nurl.Parse(d.page.FinalURL)
		if err != nil {
			return result{}
		}
		art, err := readability.FromReader(strings.NewReader(d.page.Body), u)
		if err != nil {
			d.pipeline.logger.Debug("readability failed", "url", d.page.FinalURL, "error", err)
			return result{}
		}
		if len(strings.TrimSpace(art.TextContent)) < minArticleLength {
			return result{}
		}
		return result{art: art, ok: true}
	})
	return r.art, r.ok
}
