package engine

import (
	"strings"

	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/simhash"
	"golang.org/x/net/html"
)

// Interstitial detection. Titles and challenge-only markup always match.
// Captcha widgets match only on pages with almost no text around them, so
// an ordinary contact form with a reCAPTCHA widget still passes.
var (
	blockedTitles = []string{
		"just a moment...",
		"attention required! | cloudflare",
		"access denied",
		"are you a robot",
		"captcha",
		"security check",
		"pardon our interruption",
	}
	blockedMarkers = []string{
		"cf-challenge-running",
		"cf_chl_opt",
		"captcha-delivery.com",
		"px-captcha",
		"id=\"challenge-form\"",
	}
	captchaWidgets = []string{
		"g-recaptcha",
		"h-captcha",
		"cf-turnstile",
	}
	throttleMarkers = []string{
		"our systems have detected unusual traffic",
		"unusual traffic from your computer network",
		"you are being rate limited",
	}
)

// DetectInterstitial inspects a 2xx body for anti-bot or throttling pages
// and returns the matching failure, or nil for real content.
func DetectInterstitial(body string) *models.FetchError {
	lower := strings.ToLower(body)
	for _, m := range throttleMarkers {
		if strings.Contains(lower, m) {
			return models.NewFetchError(models.KindRateLimited, "throttling page: "+m, nil)
		}
	}

	title := strings.ToLower(extractTitle(body))
	for _, t := range blockedTitles {
		if strings.Contains(title, t) {
			return models.NewFetchError(models.KindBlocked, "interstitial page: "+title, nil)
		}
	}
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return models.NewFetchError(models.KindBlocked, "challenge markup: "+m, nil)
		}
	}
	for _, m := range captchaWidgets {
		if strings.Contains(lower, m) && isThinPage(body) {
			return models.NewFetchError(models.KindBlocked, "captcha-only page: "+m, nil)
		}
	}
	return nil
}

// captchaPageMaxWords is the most visible text a page may carry and still
// count as a bare captcha prompt.
const captchaPageMaxWords = 40

func isThinPage(body string) bool {
	return len(strings.Fields(simhash.Text(body))) <= captchaPageMaxWords
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
