package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var channelFields = []field{
	{"channel_name", channelName},
	{"channel_handle", func(d *document) any { return channelMeta(d).handle }},
	{"subscribers", func(d *document) any { return channelMeta(d).subscribers }},
	{"subscriber_count", func(d *document) any { return parseCount(channelMeta(d).subscribers) }},
	{"video_count", func(d *document) any { return parseCount(channelMeta(d).videos) }},
	{"description", channelDescription},
	{"recent_videos", recentVideos},
}

const maxRecentVideos = 10

func channelName(d *document) any {
	if name := collapseSpace(d.doc.Find(`h1[class*="dynamic-text-view-model"] span`).First().Text()); name != "" {
		return name
	}
	if og := openGraph(d); og != nil {
		return og.Title
	}
	return nil
}

type channelHeader struct {
	handle, subscribers, videos string
}

// channelMeta reads the header metadata row. Each span is recognised by
// its content; anything unrecognised fills the remaining slots in the
// page's usual order (handle, subscribers, videos).
func channelMeta(d *document) channelHeader {
	return memo(d, "channelmeta", func() channelHeader {
		var h channelHeader
		var rest []string
		d.doc.Find(`yt-content-metadata-view-model span[role="text"]`).Each(func(_ int, s *goquery.Selection) {
			text := collapseSpace(s.Text())
			lower := strings.ToLower(text)
			switch {
			case text == "":
			case strings.HasPrefix(text, "@") && h.handle == "":
				h.handle = text
			case (strings.Contains(lower, "subscriber") || strings.Contains(lower, "iscritt")) && h.subscribers == "":
				h.subscribers = text
			case strings.Contains(lower, "video") && h.videos == "":
				h.videos = text
			default:
				rest = append(rest, text)
			}
		})
		for _, slot := range []*string{&h.handle, &h.subscribers, &h.videos} {
			if *slot == "" && len(rest) > 0 {
				*slot, rest = rest[0], rest[1:]
			}
		}
		return h
	})
}

func channelDescription(d *document) any {
	var desc string
	d.doc.Find(`yt-description-preview-view-model span[role="text"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.ParentsFiltered("button").Length() > 0 {
			return true
		}
		desc = collapseSpace(s.Text())
		return desc == ""
	})
	if desc != "" {
		return desc
	}
	return d.meta("description")
}

// recentVideos returns the first distinct watch links in document order.
func recentVideos(d *document) any {
	var out []string
	seen := map[string]struct{}{}
	d.doc.Find(`a[href*="watch?v="]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link := resolve(d.page.FinalURL, href)
		if _, dup := seen[link]; !dup {
			seen[link] = struct{}{}
			out = append(out, link)
		}
		return len(out) < maxRecentVideos
	})
	return out
}

var countRe = regexp.MustCompile(`(\d[\d.,\s]*)\s*([KkMmBb])?`)

var countMultipliers = map[string]float64{"k": 1e3, "m": 1e6, "b": 1e9}

// parseCount turns "1.2M subscribers", "12,5K iscritti" or "1,234 videos"
// into a number. It returns nil when s holds no number.
func parseCount(s string) *int64 {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	digits := strings.Join(strings.Fields(m[1]), "")
	digits = strings.TrimRight(digits, ".,")

	if suffix := strings.ToLower(m[2]); suffix != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", "."), 64)
		if err != nil {
			return nil
		}
		n := int64(math.Round(f * countMultipliers[suffix]))
		return &n
	}

	digits = strings.NewReplacer(",", "", ".", "").Replace(digits)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
