package models

// RequestKind selects the fetch capability for a request. It is fixed per
// request type: channel pages always need the scripted browser because their
// content loads dynamically, generic sites use the plain fetch.
type RequestKind string

const (
	KindWebsite RequestKind = "website"
	KindChannel RequestKind = "channel"
)

// ShapeName names the record shape the extraction pipeline produces.
type ShapeName string

const (
	ShapeWebsite     ShapeName = "website"
	ShapeBusiness    ShapeName = "business"
	ShapeTechnology  ShapeName = "technology"
	ShapeSEO         ShapeName = "seo"
	ShapePerformance ShapeName = "performance"
	ShapeContent     ShapeName = "content"
	ShapeStructure   ShapeName = "structure"
	ShapeChannel     ShapeName = "channel"
)

// Options tune how deep a single scrape goes.
type Options struct {
	// MaxPagesToAnalyze bounds how many same-site pages are fetched,
	// the target page included. Default: 1. Max: 10.
	MaxPagesToAnalyze int `json:"max_pages_to_analyze,omitempty" binding:"omitempty,min=1,max=10"`

	// IncludeSubresources fetches robots.txt and sitemap.xml alongside the
	// page and lets the browser load images, fonts and media.
	IncludeSubresources bool `json:"include_subresources,omitempty"`
}

// ScrapeRequest is the input to the scrape core. It is built per call and
// never mutated once handed over.
type ScrapeRequest struct {
	Target  string      `json:"target"`
	Kind    RequestKind `json:"kind"`
	Shape   ShapeName   `json:"shape,omitempty"`
	Options Options     `json:"options"`
}

// WithDefaults returns a copy with unset fields filled in.
func (r ScrapeRequest) WithDefaults() ScrapeRequest {
	if r.Shape == "" {
		switch r.Kind {
		case KindChannel:
			r.Shape = ShapeChannel
		default:
			r.Shape = ShapeWebsite
		}
	}
	if r.Options.MaxPagesToAnalyze <= 0 {
		r.Options.MaxPagesToAnalyze = 1
	}
	if r.Options.MaxPagesToAnalyze > MaxPagesLimit {
		r.Options.MaxPagesToAnalyze = MaxPagesLimit
	}
	return r
}

// MaxPagesLimit caps Options.MaxPagesToAnalyze.
const MaxPagesLimit = 10

// ScrapeBody is the JSON payload for POST /api/v1/scrape/{website,channel}.
// The kind comes from the route.
type ScrapeBody struct {
	// Target is a URL for websites, or a URL / @handle for channels. Required.
	Target string `json:"target" binding:"required"`

	// Shape picks the record shape. Default: "website" or "channel".
	Shape ShapeName `json:"shape,omitempty"`

	Options Options `json:"options"`
}

// ToRequest binds the payload to a capability.
func (b ScrapeBody) ToRequest(kind RequestKind) ScrapeRequest {
	return ScrapeRequest{
		Target:  b.Target,
		Kind:    kind,
		Shape:   b.Shape,
		Options: b.Options,
	}
}
