package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"github.com/use-agent/siteprobe/models"
)

var pageSEOFields = []field{
	{"title_tag", titleTag},
	{"meta_description", func(d *document) any { return d.meta("description") }},
	{"h1_tags", h1Tags},
	{"meta_keywords", metaKeywords},
	{"canonical_url", canonicalURL},
	{"og_title", ogTitle},
	{"og_image", ogImage},
	{"ssl_enabled", sslEnabled},
	{"language", language},
}

var subresourceSEOFields = []field{
	{"robots_txt_exists", subresourceExists(models.RobotsPath)},
	{"sitemap_exists", subresourceExists(models.SitemapPath)},
	{"sitemap_urls", sitemapURLs},
	{"crawl_allowed", crawlAllowed},
}

// seoFields depends on opts: the robots and sitemap fields are only
// expected when subresources were fetched.
func seoFields(opts models.Options) []field {
	if !opts.IncludeSubresources {
		return pageSEOFields
	}
	return union(pageSEOFields, subresourceSEOFields)
}

func titleTag(d *document) any {
	return collapseSpace(d.doc.Find("title").First().Text())
}

func h1Tags(d *document) any {
	var out []string
	d.doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func metaKeywords(d *document) any {
	var out []string
	for _, k := range strings.Split(d.meta("keywords"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func canonicalURL(d *document) any {
	href, ok := d.doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	return resolve(d.page.FinalURL, strings.TrimSpace(href))
}

func ogTitle(d *document) any {
	if og := openGraph(d); og != nil {
		return og.Title
	}
	return nil
}

func ogImage(d *document) any {
	if og := openGraph(d); og != nil && len(og.Images) > 0 {
		return resolve(d.page.FinalURL, og.Images[0].URL)
	}
	return nil
}

func sslEnabled(d *document) any {
	u, err := url.Parse(d.page.FinalURL)
	if err != nil || u.Scheme == "" {
		return nil
	}
	return u.Scheme == "https"
}

// subresourceExists is nil when the subresource could not be fetched at
// all, and otherwise reports whether it answered 2xx.
func subresourceExists(path string) func(*document) any {
	return func(d *document) any {
		sr, ok := d.page.Subresources[path]
		if !ok {
			return nil
		}
		return sr.Found()
	}
}

func robots(d *document) *robotstxt.RobotsData {
	return memo(d, "robots", func() *robotstxt.RobotsData {
		sr, ok := d.page.Subresources[models.RobotsPath]
		if !ok {
			return nil
		}
		data, err := robotstxt.FromStatusAndBytes(sr.StatusCode, []byte(sr.Body))
		if err != nil {
			return nil
		}
		return data
	})
}

// sitemapURLs lists sitemaps declared in robots.txt plus /sitemap.xml when
// it exists, deduplicated.
func sitemapURLs(d *document) any {
	var out []string
	seen := map[string]struct{}{}
	add := func(u string) {
		if _, dup := seen[u]; dup || u == "" {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if data := robots(d); data != nil {
		for _, s := range data.Sitemaps {
			add(resolve(d.page.FinalURL, strings.TrimSpace(s)))
		}
	}
	if sr, ok := d.page.Subresources[models.SitemapPath]; ok && sr.Found() {
		add(sr.URL)
	}
	return out
}

// crawlAllowed evaluates robots.txt for the final page path.
func crawlAllowed(d *document) any {
	data := robots(d)
	if data == nil {
		return nil
	}
	path := "/"
	if u, err := url.Parse(d.page.FinalURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return data.FindGroup(d.pipeline.robotsAgent).Test(path)
}

// resolve makes ref absolute against base; ref is returned as-is when
// either fails to parse.
func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
