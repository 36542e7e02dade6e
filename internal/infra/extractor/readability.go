// Package extractor extracts the main article text from downloaded HTML.
// It uses the Mozilla Readability algorithm (go-shiori/go-readability)
// for boilerplate removal — anchor-density scoring, paragraph and
// blockquote recovery — the same pass the parse stage's heuristics call
// for.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrNoTextExtracted indicates the page yielded no readable content: the
// body holds nothing outside navigation and page chrome, or the extracted
// text is empty. Never retried: the same bytes produce the same emptiness.
var ErrNoTextExtracted = errors.New("no text extracted")

// ErrUnreadableHTML indicates the HTML could not be parsed.
var ErrUnreadableHTML = errors.New("unreadable HTML")

// Result is one extraction outcome.
type Result struct {
	// Text is the extracted plain text.
	Text string

	// Title is the title readability recovered, which may be better than
	// the feed-provided one.
	Title string

	// ImageCount is the number of inline images that survived content
	// extraction (images inside the main article block, not page chrome).
	ImageCount int
}

// Extract pulls the main article text out of html. pageURL (may be
// empty) helps readability resolve relative references.
//
// Extraction is deterministic: the same bytes always produce the same
// text, which is what makes parse-stage re-runs safe.
func Extract(html []byte, pageURL string) (*Result, error) {
	var u *url.URL
	if pageURL != "" {
		if parsed, err := url.Parse(pageURL); err == nil {
			u = parsed
		}
	}

	// A body with no text outside navigation and page chrome has no
	// article to extract.
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		body := doc.Find("body").Clone()
		body.Find("nav, header, footer, aside, script, style, noscript").Remove()
		if strings.TrimSpace(body.Text()) == "" {
			return nil, ErrNoTextExtracted
		}
	}

	article, err := readability.FromReader(bytes.NewReader(html), u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableHTML, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, ErrNoTextExtracted
	}

	return &Result{
		Text:       text,
		Title:      article.Title,
		ImageCount: countContentImages(article.Content),
	}, nil
}

// countContentImages counts <img> tags in the extracted content fragment.
// Parsed with goquery rather than the download stage's regex: the
// fragment is readability output, already well-formed.
func countContentImages(contentHTML string) int {
	if contentHTML == "" {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return 0
	}
	return doc.Find("img").Length()
}
