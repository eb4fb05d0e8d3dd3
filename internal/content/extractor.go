// Package content turns raw page HTML into the cleaned visible text and
// bounded image list the match pipeline consumes, and detects JS-heavy pages
// that need render escalation.
package content

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonContentSelectors lists elements stripped before extracting visible text.
const nonContentSelectors = "script, style, nav, header, footer"

// jsFrameworkMarkers are substrings whose presence marks a client-rendered
// page. Checked on lowercased HTML.
var jsFrameworkMarkers = []string{
	"__next_data__", "id=\"__next\"", "data-reactroot", "ng-version",
	"vite", "webpackjsonp", "window.__apollo_state__", "nuxt",
	"id=\"root\"", "id=\"app\"", "astro-island", "svelte",
}

// PageContent is the extracted view of one page.
type PageContent struct {
	// Text is the visible body text with non-content elements removed.
	Text string
	// Images holds absolute image URLs, bounded by the extractor's MaxImages.
	Images []string
	// FrameworkMarkers is true when the raw HTML carries a known JS
	// framework marker.
	FrameworkMarkers bool
}

// Extractor parses HTML with goquery. Safe for concurrent use.
type Extractor struct {
	maxImages int
}

// NewExtractor creates an extractor that enumerates at most maxImages image
// references per page.
func NewExtractor(maxImages int) *Extractor {
	if maxImages <= 0 {
		maxImages = 8
	}
	return &Extractor{maxImages: maxImages}
}

// Extract parses html and returns the page's visible text and image URLs.
// Relative image sources are resolved against pageURL.
func (e *Extractor) Extract(pageURL, html string) (*PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	content := &PageContent{
		Text:             extractBodyText(doc),
		Images:           e.extractImages(doc, pageURL),
		FrameworkMarkers: hasFrameworkMarker(html),
	}
	return content, nil
}

// extractBodyText returns the visible body text with script/style/nav/
// header/footer removed.
func extractBodyText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find(nonContentSelectors).Remove()
	return strings.TrimSpace(body.Text())
}

func (e *Extractor) extractImages(doc *goquery.Document, pageURL string) []string {
	base, baseErr := url.Parse(pageURL)

	var images []string
	seen := make(map[string]struct{})

	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return true
		}

		abs := src
		if baseErr == nil {
			if ref, err := url.Parse(src); err == nil {
				abs = base.ResolveReference(ref).String()
			}
		}
		if !strings.HasPrefix(abs, "http://") && !strings.HasPrefix(abs, "https://") {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		images = append(images, abs)

		return len(images) < e.maxImages
	})

	return images
}

// hasFrameworkMarker reports whether the raw HTML carries a known JS
// framework marker.
func hasFrameworkMarker(html string) bool {
	low := strings.ToLower(html)
	for _, marker := range jsFrameworkMarkers {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}
