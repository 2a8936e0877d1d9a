package engine

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/siteprobe/models"
)

// ValidateURL checks that target is an absolute http(s) URL and returns its
// normalised form. Failures carry KindInvalidInput so no network attempt is
// ever made for them.
func ValidateURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", invalidTarget("empty target", nil)
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", invalidTarget("unparseable target", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalidTarget("unsupported scheme "+u.Scheme, nil)
	}
	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " _") || (!strings.Contains(host, ".") && host != "localhost") {
		return "", invalidTarget("invalid host "+host, nil)
	}
	u.Fragment = ""
	return u.String(), nil
}

// SiteRoot returns scheme://host of a page URL.
func SiteRoot(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", pageURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func invalidTarget(msg string, err error) error {
	cause := models.ErrInvalidTarget
	if err != nil {
		cause = fmt.Errorf("%w: %w", models.ErrInvalidTarget, err)
	}
	return &models.FetchError{Kind: models.KindInvalidInput, Message: msg, Err: cause}
}

// subpageHints rank internal links that usually carry business details.
var subpageHints = []string{
	"contact", "contatti", "kontakt", "about", "chi-siamo", "chisiamo",
	"azienda", "company", "team", "impressum", "services", "servizi",
}

var skipExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".zip": {}, ".mp4": {}, ".mp3": {}, ".css": {}, ".js": {},
	".xml": {}, ".doc": {}, ".docx": {},
}

// PickSubpages returns up to limit distinct same-host page links from
// rawHTML, contact/about style pages first, document order otherwise.
func PickSubpages(rawHTML, pageURL string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	type candidate struct {
		url   string
		score int
		order int
	}
	var cands []candidate
	seen := map[string]struct{}{stripFragment(base): {}}

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			return
		}
		if _, skip := skipExtensions[strings.ToLower(path.Ext(resolved.Path))]; skip {
			return
		}
		abs := stripFragment(resolved)
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		haystack := strings.ToLower(resolved.Path + " " + s.Text())
		score := 0
		for _, hint := range subpageHints {
			if strings.Contains(haystack, hint) {
				score++
			}
		}
		cands = append(cands, candidate{url: abs, score: score, order: i})
	})

	sort.SliceStable(cands, func(a, b int) bool {
		return cands[a].score > cands[b].score
	})

	out := make([]string, 0, limit)
	for _, c := range cands {
		if len(out) == limit {
			break
		}
		out = append(out, c.url)
	}
	return out
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

var channelHandleRe = regexp.MustCompile(`^@?[A-Za-z0-9._-]{3,30}$`)

// NormalizeChannel turns a channel handle ("@name", "name") or a channel URL
// on host into the canonical channel page URL.
func NormalizeChannel(target, host string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", invalidTarget("empty channel target", nil)
	}

	if !strings.Contains(target, "/") {
		if !channelHandleRe.MatchString(target) {
			return "", invalidTarget("invalid channel handle "+target, nil)
		}
		return "https://" + host + "/@" + strings.TrimPrefix(target, "@"), nil
	}

	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", invalidTarget("unparseable channel url", err)
	}
	if !sameSite(u.Hostname(), host) {
		return "", invalidTarget("channel url must be on "+host, nil)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) >= 1 && strings.HasPrefix(segments[0], "@") && channelHandleRe.MatchString(segments[0]):
		return "https://" + host + "/" + segments[0], nil
	case len(segments) >= 2 && (segments[0] == "channel" || segments[0] == "c" || segments[0] == "user") && segments[1] != "":
		return "https://" + host + "/" + segments[0] + "/" + segments[1], nil
	default:
		return "", invalidTarget("not a channel url: "+u.Path, nil)
	}
}

// sameSite treats "youtube.com", "www.youtube.com" and "m.youtube.com" alike.
func sameSite(a, b string) bool {
	trim := func(h string) string {
		h = strings.ToLower(h)
		for _, p := range []string{"www.", "m."} {
			h = strings.TrimPrefix(h, p)
		}
		return h
	}
	return trim(a) == trim(b)
}
