package extract

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/siteprobe/models"
)

// Pipeline turns fetched pages into typed records. Every field lookup is
// independent: a field that is missing, or whose lookup panics, becomes nil
// and lowers the confidence score instead of failing the extraction.
//
// The Markdown converter is created once and shared (goroutine-safe).
type Pipeline struct {
	mdConverter *converter.Converter
	robotsAgent string
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. robotsAgent is the user agent that
// robots.txt rules are evaluated for; empty means "*".
func NewPipeline(robotsAgent string) *Pipeline {
	if robotsAgent == "" {
		robotsAgent = "*"
	}
	return &Pipeline{
		mdConverter: newMarkdownConverter(),
		robotsAgent: robotsAgent,
		logger:      slog.With("component", "extract"),
	}
}

// Extract builds the record for shape from page. The confidence score is
// found/expected over the shape's field set, clamped to [0,1] and rounded
// to two decimals. Unknown shapes yield an empty record and 0.
func (p *Pipeline) Extract(page *models.Page, shape models.ShapeName, opts models.Options) (models.Record, float64) {
	rec := models.Record{Shape: shape, Fields: map[string]any{}}
	fields := p.fieldsFor(shape, opts)
	if len(fields) == 0 || page == nil {
		return rec, 0
	}

	d := newDocument(page, opts, p)

	found := 0
	for _, f := range fields {
		v := p.lookup(d, f)
		rec.Fields[f.name] = v
		if v != nil {
			found++
		}
	}
	return rec, Confidence(found, len(fields))
}

// FieldNames lists the fields shape produces under opts.
func (p *Pipeline) FieldNames(shape models.ShapeName, opts models.Options) []string {
	fields := p.fieldsFor(shape, opts)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Confidence returns found/expected clamped to [0,1], two decimals.
func Confidence(found, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	c := float64(found) / float64(expected)
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}

// lookup runs one field extractor behind a recover guard.
func (p *Pipeline) lookup(d *document, f field) (v any) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("field lookup panicked", "field", f.name, "url", d.page.FinalURL, "panic", fmt.Sprint(r))
			v = nil
		}
	}()
	return normalise(f.find(d))
}

// normalise maps "nothing there" values to nil: empty or blank strings and
// empty lists. Zero numbers and false are real measurements and stay.
// Integers always come out as int64.
func normalise(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil
		}
		return t
	case []string:
		if len(t) == 0 {
			return nil
		}
		return t
	case issueList:
		return []string(t)
	case *int64:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	default:
		return v
	}
}

// field is one named, independent lookup.
type field struct {
	name string
	find func(d *document) any
}

// document caches parsed views of a page shared by field lookups.
type document struct {
	page     *models.Page
	opts     models.Options
	pipeline *Pipeline
	doc      *goquery.Document
	subdocs  []*goquery.Document

	cache map[string]any
}

func newDocument(page *models.Page, opts models.Options, p *Pipeline) *document {
	d := &document{page: page, opts: opts, pipeline: p, cache: map[string]any{}}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	}
	d.doc = doc
	for _, sp := range page.Subpages {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(sp.Body)); err == nil {
			d.subdocs = append(d.subdocs, doc)
		}
	}
	return d
}

// memo computes a value once per document.
func memo[T any](d *document, key string, fn func() T) T {
	if v, ok := d.cache[key]; ok {
		return v.(T)
	}
	v := fn()
	d.cache[key] = v
	return v
}

// meta returns the content of the first <meta name=key> or
// <meta property=key>.
func (d *document) meta(key string) string {
	sel := d.doc.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, key, key)).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

// allDocs returns the main page followed by its subpages.
func (d *document) allDocs() []*goquery.Document {
	return append([]*goquery.Document{d.doc}, d.subdocs...)
}
