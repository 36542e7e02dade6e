package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-connector/internal/infra/extractor"
	"genesis-connector/tests/fixtures"
)

func TestExtract_StripsBoilerplate(t *testing.T) {
	html := fixtures.GenerateArticleHTML(fixtures.ArticleHTMLOptions{
		Title:              "Pipeline rollout",
		Paragraphs:         6,
		IncludeBoilerplate: true,
	})

	result, err := extractor.Extract([]byte(html), "https://example.com/a1")
	require.NoError(t, err)

	assert.Contains(t, result.Text, "ingestion pipeline")
	assert.Contains(t, result.Text, "reconciliation job")
	assert.NotContains(t, result.Text, "Ten dashboards nobody reads", "sidebar must be stripped")
	assert.NotContains(t, result.Text, "Privacy", "footer must be stripped")
}

func TestExtract_Deterministic(t *testing.T) {
	html := []byte(fixtures.GenerateShortArticleHTML())

	first, err := extractor.Extract(html, "https://example.com/a")
	require.NoError(t, err)
	second, err := extractor.Extract(html, "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text, "same bytes must yield identical text")
}

func TestExtract_CountsContentImages(t *testing.T) {
	html := fixtures.GenerateArticleWithImagesHTML(
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.jpg",
	)

	result, err := extractor.Extract([]byte(html), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImageCount)
}

func TestExtract_EmptyPage(t *testing.T) {
	_, err := extractor.Extract([]byte(fixtures.EmptyPageHTML), "https://example.com/a")
	assert.ErrorIs(t, err, extractor.ErrNoTextExtracted)
}

func TestExtract_EmptyURL(t *testing.T) {
	html := []byte(fixtures.GenerateShortArticleHTML())
	result, err := extractor.Extract(html, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)
}
