package fixtures_test

import (
	"strings"
	"testing"

	"genesis-connector/tests/fixtures"
)

func TestGenerateArticleHTML_Defaults(t *testing.T) {
	html := fixtures.GenerateArticleHTML(fixtures.ArticleHTMLOptions{})
	if !strings.Contains(html, "<article>") {
		t.Error("missing article element")
	}
	if got := strings.Count(html, "<p>"); got < 5 {
		t.Errorf("paragraph count = %d, want >= 5", got)
	}
	if strings.Contains(html, "site-nav") {
		t.Error("boilerplate present without IncludeBoilerplate")
	}
}

func TestGenerateArticleHTML_Boilerplate(t *testing.T) {
	html := fixtures.GenerateArticleHTML(fixtures.ArticleHTMLOptions{
		Title:              "with chrome",
		IncludeBoilerplate: true,
	})
	for _, want := range []string{"site-nav", "sidebar", "site-footer", "with chrome"} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestGenerateArticleWithImagesHTML(t *testing.T) {
	html := fixtures.GenerateArticleWithImagesHTML(
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.jpg",
	)
	if got := strings.Count(html, "<img "); got != 2 {
		t.Errorf("image count = %d, want 2", got)
	}
}

func TestGenerateArticleHTML_Deterministic(t *testing.T) {
	opts := fixtures.ArticleHTMLOptions{Title: "same", Paragraphs: 4}
	if fixtures.GenerateArticleHTML(opts) != fixtures.GenerateArticleHTML(opts) {
		t.Error("same options must render identical pages")
	}
}
