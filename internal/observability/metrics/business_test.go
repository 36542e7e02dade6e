package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDiscoveryOutcomes(t *testing.T) {
	before := testutil.ToFloat64(ArticlesDiscoveredTotal.WithLabelValues("new"))
	RecordDiscoveryOutcomes(3, 2, 1)

	assert.Equal(t, before+3, testutil.ToFloat64(ArticlesDiscoveredTotal.WithLabelValues("new")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ArticlesDiscoveredTotal.WithLabelValues("duplicate")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(ArticlesDiscoveredTotal.WithLabelValues("error")), 1.0)
}

func TestRecordArticleDownloaded(t *testing.T) {
	before := testutil.ToFloat64(ArticlesDownloadedTotal)
	RecordArticleDownloaded(2, 1)

	assert.Equal(t, before+1, testutil.ToFloat64(ArticlesDownloadedTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ImagesDownloadedTotal.WithLabelValues("success")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(ImagesDownloadedTotal.WithLabelValues("failure")), 1.0)
}

func TestRecordArticleParsed(t *testing.T) {
	before := testutil.ToFloat64(ArticlesParsedTotal)
	RecordArticleParsed(4096)
	assert.Equal(t, before+1, testutil.ToFloat64(ArticlesParsedTotal))
}

func TestRecordPipelineFailure(t *testing.T) {
	before := testutil.ToFloat64(PipelineFailuresTotal.WithLabelValues("download", "permanent_network"))
	RecordPipelineFailure("download", "permanent_network")
	assert.Equal(t, before+1, testutil.ToFloat64(PipelineFailuresTotal.WithLabelValues("download", "permanent_network")))
}
