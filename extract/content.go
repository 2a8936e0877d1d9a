package extract

import (
	"strings"

	"github.com/use-agent/siteprobe/engine"
)

var contentFields = []field{
	{"word_count", wordCount},
	{"language", language},
	{"key_topics", keyTopics},
	{"excerpt", excerpt},
	{"byline", byline},
	{"summary_markdown", summaryMarkdown},
}

func wordCount(d *document) any {
	return int64(len(strings.Fields(pageText(d))))
}

// language reads <html lang>, then Content-Language, then readability's guess.
func language(d *document) any {
	if lang, ok := d.doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		return strings.TrimSpace(lang)
	}
	if v, ok := d.doc.Find(`meta[http-equiv="content-language" i]`).First().Attr("content"); ok && v != "" {
		return v
	}
	if og := openGraph(d); og != nil && og.Locale != "" {
		return og.Locale
	}
	if art, ok := article(d); ok {
		return art.Language
	}
	return nil
}

func keyTopics(d *document) any {
	return topKeywords(strings.Join(allVisibleText(d), " "), 10)
}

func excerpt(d *document) any {
	if art, ok := article(d); ok {
		return collapseSpace(art.Excerpt)
	}
	return nil
}

func byline(d *document) any {
	if art, ok := article(d); ok {
		return collapseSpace(art.Byline)
	}
	if v := d.meta("author"); v != "" {
		return v
	}
	return nil
}

// summaryMarkdown renders the readable main content as Markdown.
func summaryMarkdown(d *document) any {
	art, ok := article(d)
	if !ok {
		return nil
	}
	root, _ := engine.SiteRoot(d.page.FinalURL)
	md, err := d.pipeline.toMarkdown(art.Content, root)
	if err != nil {
		return nil
	}
	return truncateRunes(strings.TrimSpace(md), maxSummaryRunes)
}
