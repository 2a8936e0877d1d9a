package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// FingerprintHTML fingerprints the text of an HTML document. Markup,
// scripts and styles are ignored, so the same copy in a different template
// fingerprints the same.
func FingerprintHTML(htmlStr string) uint64 {
	return Fingerprint(Text(htmlStr))
}

// Text returns the text content of an HTML document, the input
// FingerprintHTML hashes.
func Text(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var buf strings.Builder
	skip := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			if tn, _ := tokenizer.TagName(); isRawText(tn) {
				skip++
			}
		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); isRawText(tn) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(tokenizer.Text())
				buf.WriteByte(' ')
			}
		}
	}
}

func isRawText(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}
