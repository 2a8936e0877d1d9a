package extract

var performanceFields = []field{
	{"status_code", func(d *document) any { return int64(d.page.StatusCode) }},
	{"page_size_bytes", func(d *document) any { return int64(len(d.page.Body)) }},
	{"response_time_ms", func(d *document) any { return d.page.Elapsed.Milliseconds() }},
	{"script_count", countOf("script[src]")},
	{"stylesheet_count", countOf(`link[rel="stylesheet"]`)},
	{"image_count", countOf("img")},
	{"pages_analyzed", func(d *document) any { return int64(1 + len(d.page.Subpages)) }},
}

func countOf(selector string) func(*document) any {
	return func(d *document) any {
		return int64(d.doc.Find(selector).Length())
	}
}
