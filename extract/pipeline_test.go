package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/siteprobe/models"
)

func page(url, body string) *models.Page {
	return &models.Page{
		RequestedURL: url,
		FinalURL:     url,
		StatusCode:   200,
		ContentType:  "text/html",
		Body:         body,
		Elapsed:      120 * time.Millisecond,
		Engine:       "http",
	}
}

func TestExtract_BusinessPartialRecord(t *testing.T) {
	p := NewPipeline("")
	body := `<html><head><title>Acme Srl | Home</title>
		<meta name="description" content="Rockets and more"></head>
		<body><a href="mailto:hello@acme.it?subject=hi">Write us</a></body></html>`

	rec, conf := p.Extract(page("https://acme.example/", body), models.ShapeBusiness, models.Options{})

	assert.Equal(t, 0.6, conf)
	assert.Equal(t, "Acme Srl", rec.Fields["company_name"])
	assert.Equal(t, "Rockets and more", rec.Fields["description"])
	assert.Equal(t, "hello@acme.it", rec.Fields["contact_email"])

	// Missing fields are present with a nil value.
	require.Contains(t, rec.Fields, "phone")
	require.Contains(t, rec.Fields, "address")
	assert.Nil(t, rec.Fields["phone"])
	assert.Nil(t, rec.Fields["address"])
}

func TestExtract_BusinessFromJSONLDAndSubpages(t *testing.T) {
	p := NewPipeline("")
	body := `<html><head><title>Welcome</title>
		<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
			{"@type":"LocalBusiness","name":"Pizzeria Da Gino","telephone":"+39 06 1234 5678",
			 "address":{"streetAddress":"Via Roma 1","postalCode":"00100","addressLocality":"Roma"}}]}</script>
		</head><body><p>Buona pizza</p></body></html>`
	pg := page("https://gino.example/", body)
	pg.Subpages = []models.Page{*page("https://gino.example/contatti", `<html><body><p>Scrivi a info@gino.it</p></body></html>`)}

	rec, conf := p.Extract(pg, models.ShapeBusiness, models.Options{})

	assert.Equal(t, 0.8, conf)
	assert.Equal(t, "Pizzeria Da Gino", rec.Fields["company_name"])
	assert.Equal(t, "+39 06 1234 5678", rec.Fields["phone"])
	assert.Equal(t, "Via Roma 1, 00100, Roma", rec.Fields["address"])
	assert.Equal(t, "info@gino.it", rec.Fields["contact_email"])
	assert.Nil(t, rec.Fields["description"])
}

func TestExtract_UnknownShape(t *testing.T) {
	rec, conf := NewPipeline("").Extract(page("https://acme.example/", "<html></html>"), "nope", models.Options{})
	assert.Empty(t, rec.Fields)
	assert.Zero(t, conf)
}

func TestLookup_RecoversPanic(t *testing.T) {
	p := NewPipeline("")
	d := newDocument(page("https://acme.example/", "<html></html>"), models.Options{}, p)

	v := p.lookup(d, field{"boom", func(*document) any { panic("kaboom") }})
	assert.Nil(t, v)

	var nilSlice []string
	assert.Nil(t, p.lookup(d, field{"empty", func(*document) any { return nilSlice }}))
	assert.Equal(t, 0, p.lookup(d, field{"zero", func(*document) any { return 0 }}))
	assert.Equal(t, false, p.lookup(d, field{"no", func(*document) any { return false }}))
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		found, expected int
		want            float64
	}{
		{0, 5, 0},
		{3, 5, 0.6},
		{5, 5, 1},
		{1, 3, 0.33},
		{2, 3, 0.67},
		{7, 5, 1},
		{1, 0, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Confidence(tc.found, tc.expected), "%d/%d", tc.found, tc.expected)
	}
}

func TestExtract_Technology(t *testing.T) {
	body := `<html><head>
		<link rel="stylesheet" href="/wp-content/themes/acme/bootstrap.min.css">
		<script src="/wp-includes/js/jquery/jquery-3.6.0.min.js"></script>
		<script async src="https://www.googletagmanager.com/gtag/js?id=G-XYZ"></script>
		</head><body><div id="root"></div></body></html>`

	rec, conf := NewPipeline("").Extract(page("https://acme.example/", body), models.ShapeTechnology, models.Options{})

	assert.Equal(t, []string{"WordPress"}, rec.Fields["cms"])
	assert.Equal(t, []string{"jQuery"}, rec.Fields["javascript_libraries"])
	assert.Equal(t, []string{"Bootstrap"}, rec.Fields["css_frameworks"])
	assert.Equal(t, []string{"Google Analytics"}, rec.Fields["analytics"])
	assert.Equal(t, true, rec.Fields["requires_javascript"])
	assert.Nil(t, rec.Fields["frontend_frameworks"])
	assert.Nil(t, rec.Fields["ecommerce_platform"])
	assert.Equal(t, Confidence(5, 7), conf)
}

func TestExtract_SEOWithSubresources(t *testing.T) {
	body := `<html lang="it"><head><title>Acme</title>
		<meta name="keywords" content="razzi, spazio, ">
		<link rel="canonical" href="/home">
		<meta property="og:title" content="Acme Rockets">
		<meta property="og:image" content="/img/cover.png">
		</head><body><h1>Benvenuti</h1><h1> </h1></body></html>`
	pg := page("https://acme.example/", body)
	pg.Subresources = map[string]models.Subresource{
		models.RobotsPath: {
			URL:        "https://acme.example/robots.txt",
			StatusCode: 200,
			Body:       "User-agent: *\nDisallow: /private\nSitemap: https://acme.example/sitemap_index.xml\n",
		},
		models.SitemapPath: {URL: "https://acme.example/sitemap.xml", StatusCode: 404},
	}
	p := NewPipeline("siteprobe")

	withSub := models.Options{IncludeSubresources: true}
	rec, _ := p.Extract(pg, models.ShapeSEO, withSub)

	assert.Len(t, p.FieldNames(models.ShapeSEO, withSub), 13)
	assert.Len(t, p.FieldNames(models.ShapeSEO, models.Options{}), 9)

	assert.Equal(t, "Acme", rec.Fields["title_tag"])
	assert.Nil(t, rec.Fields["meta_description"])
	assert.Equal(t, []string{"Benvenuti"}, rec.Fields["h1_tags"])
	assert.Equal(t, []string{"razzi", "spazio"}, rec.Fields["meta_keywords"])
	assert.Equal(t, "https://acme.example/home", rec.Fields["canonical_url"])
	assert.Equal(t, "Acme Rockets", rec.Fields["og_title"])
	assert.Equal(t, "https://acme.example/img/cover.png", rec.Fields["og_image"])
	assert.Equal(t, true, rec.Fields["ssl_enabled"])
	assert.Equal(t, "it", rec.Fields["language"])
	assert.Equal(t, true, rec.Fields["robots_txt_exists"])
	assert.Equal(t, false, rec.Fields["sitemap_exists"])
	assert.Equal(t, []string{"https://acme.example/sitemap_index.xml"}, rec.Fields["sitemap_urls"])
	assert.Equal(t, true, rec.Fields["crawl_allowed"])
}

func TestExtract_Performance(t *testing.T) {
	body := `<html><head><script src="/a.js"></script><script>inline()</script>
		<link rel="stylesheet" href="/a.css"></head><body></body></html>`
	pg := page("https://acme.example/", body)
	pg.Subpages = []models.Page{*page("https://acme.example/about", "<html></html>")}

	rec, conf := NewPipeline("").Extract(pg, models.ShapePerformance, models.Options{})

	assert.Equal(t, 1.0, conf)
	assert.Equal(t, int64(200), rec.Fields["status_code"])
	assert.Equal(t, int64(len(body)), rec.Fields["page_size_bytes"])
	assert.Equal(t, int64(120), rec.Fields["response_time_ms"])
	assert.Equal(t, int64(1), rec.Fields["script_count"])
	assert.Equal(t, int64(1), rec.Fields["stylesheet_count"])
	assert.Equal(t, int64(0), rec.Fields["image_count"])
	assert.Equal(t, int64(2), rec.Fields["pages_analyzed"])
}

func TestExtract_Content(t *testing.T) {
	para := strings.Repeat("Rocket engines burn propellant to produce thrust for launch vehicles. ", 8)
	body := `<html lang="en"><head><title>Rockets</title><meta name="author" content="Jane Roe"></head><body>
		<article><h1>Rockets</h1><p>` + para + `</p><p>` + para + `</p><p>` + para + `</p></article>
		</body></html>`

	rec, _ := NewPipeline("").Extract(page("https://acme.example/rockets", body), models.ShapeContent, models.Options{})

	assert.Equal(t, "en", rec.Fields["language"])
	assert.Greater(t, rec.Fields["word_count"], int64(200))
	topics, ok := rec.Fields["key_topics"].([]string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(topics), 10)
	assert.Contains(t, topics, "rocket")
	assert.NotContains(t, topics, "the")
	assert.NotNil(t, rec.Fields["summary_markdown"])
}

func TestExtract_WebsiteIsUnionOfShapes(t *testing.T) {
	p := NewPipeline("")
	names := p.FieldNames(models.ShapeWebsite, models.Options{})
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate field %s", n)
		seen[n] = true
	}
	for _, shape := range []models.ShapeName{models.ShapeBusiness, models.ShapeTechnology, models.ShapeSEO, models.ShapePerformance, models.ShapeContent, models.ShapeStructure} {
		for _, n := range p.FieldNames(shape, models.Options{}) {
			assert.True(t, seen[n], "%s missing from website shape", n)
		}
	}
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports(models.KindWebsite, models.ShapeSEO))
	assert.True(t, Supports(models.KindChannel, models.ShapeChannel))
	assert.True(t, Supports(models.KindWebsite, models.ShapeStructure))
	assert.False(t, Supports(models.KindChannel, models.ShapeStructure))
	assert.False(t, Supports(models.KindChannel, models.ShapeSEO))
	assert.False(t, Supports(models.KindWebsite, models.ShapeChannel))
}

func TestTopKeywords(t *testing.T) {
	got := topKeywords("Pizza pizza PIZZA forno forno, the and with vino da ok", 2)
	assert.Equal(t, []string{"pizza", "forno"}, got)
}
