// Package fixtures provides reusable test data generators for pipeline
// tests. This package eliminates test data duplication and ensures
// consistent article content across different test suites.
package fixtures

import (
	"fmt"
	"strings"
)

// ArticleHTMLOptions configures the generated article page.
type ArticleHTMLOptions struct {
	// Title is the page and article title.
	Title string

	// Paragraphs is the number of body paragraphs (default 5).
	Paragraphs int

	// ImageURLs are inline image references placed between paragraphs.
	ImageURLs []string

	// IncludeBoilerplate adds the navigation, sidebar and footer chrome a
	// real article page carries, which extraction must strip.
	IncludeBoilerplate bool
}

const paragraphText = "The migration to the new ingestion pipeline finished ahead of schedule. " +
	"Throughput doubled once the download workers stopped re-fetching pages that were already on disk, " +
	"and the nightly reconciliation job has not found an orphaned artifact since the rollout. " +
	"Operators now watch a single queue-depth dashboard instead of tailing three sets of logs."

// GenerateArticleHTML renders a complete article page. The body text is
// long and repetitive enough that readability-style extractors reliably
// identify it as the main content block.
//
// Example:
//
//	html := fixtures.GenerateArticleHTML(fixtures.ArticleHTMLOptions{
//	    Title:              "Pipeline rollout",
//	    Paragraphs:         6,
//	    IncludeBoilerplate: true,
//	})
func GenerateArticleHTML(opts ArticleHTMLOptions) string {
	if opts.Title == "" {
		opts.Title = "Untitled article"
	}
	if opts.Paragraphs <= 0 {
		opts.Paragraphs = 5
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<meta charset=\"utf-8\">\n<title>%s</title>\n", opts.Title)
	b.WriteString("</head>\n<body>\n")

	if opts.IncludeBoilerplate {
		b.WriteString(`<nav class="site-nav"><ul>
<li><a href="/">Home</a></li>
<li><a href="/tech">Tech</a></li>
<li><a href="/archive">Archive</a></li>
<li><a href="/about">About</a></li>
</ul></nav>
<aside class="sidebar">
<h3>Trending</h3>
<ul>
<li><a href="/a/1">Why queues beat cron chains</a></li>
<li><a href="/a/2">Ten dashboards nobody reads</a></li>
<li><a href="/a/3">Postgres for everything</a></li>
</ul>
</aside>
`)
	}

	b.WriteString("<article>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", opts.Title)
	for i := 0; i < opts.Paragraphs; i++ {
		fmt.Fprintf(&b, "<p>%s (section %d)</p>\n", paragraphText, i+1)
		if i < len(opts.ImageURLs) {
			fmt.Fprintf(&b, "<img src=\"%s\" alt=\"figure %d\">\n", opts.ImageURLs[i], i+1)
		}
	}
	b.WriteString("<blockquote>Ship the reconciliation job before you need it.</blockquote>\n")
	b.WriteString("</article>\n")

	if opts.IncludeBoilerplate {
		b.WriteString(`<footer class="site-footer">
<p><a href="/terms">Terms</a> · <a href="/privacy">Privacy</a> · © 2026 Example Media</p>
</footer>
`)
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// GenerateShortArticleHTML returns a minimal article page with three
// paragraphs and no chrome.
func GenerateShortArticleHTML() string {
	return GenerateArticleHTML(ArticleHTMLOptions{
		Title:      "Short article",
		Paragraphs: 3,
	})
}

// GenerateArticleWithImagesHTML returns an article page referencing the
// given image URLs, with full page chrome.
func GenerateArticleWithImagesHTML(imageURLs ...string) string {
	return GenerateArticleHTML(ArticleHTMLOptions{
		Title:              "Illustrated article",
		Paragraphs:         len(imageURLs) + 2,
		ImageURLs:          imageURLs,
		IncludeBoilerplate: true,
	})
}

// EmptyPageHTML is a structurally valid page with no article content,
// for exercising the no-text-extracted path.
const EmptyPageHTML = `<!DOCTYPE html>
<html><head><title>nothing here</title></head>
<body><nav><a href="/">Home</a></nav></body></html>`
