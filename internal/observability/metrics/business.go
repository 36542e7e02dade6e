package metrics

// RecordDiscoveryOutcomes adds one discovery run's outcome counts.
func RecordDiscoveryOutcomes(newArticles, duplicates, errors int) {
	if newArticles > 0 {
		ArticlesDiscoveredTotal.WithLabelValues("new").Add(float64(newArticles))
	}
	if duplicates > 0 {
		ArticlesDiscoveredTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	}
	if errors > 0 {
		ArticlesDiscoveredTotal.WithLabelValues("error").Add(float64(errors))
	}
}

// RecordArticleDownloaded records one completed HTML download and its
// image fetch results.
func RecordArticleDownloaded(imagesFetched, imagesFailed int) {
	ArticlesDownloadedTotal.Inc()
	if imagesFetched > 0 {
		ImagesDownloadedTotal.WithLabelValues("success").Add(float64(imagesFetched))
	}
	if imagesFailed > 0 {
		ImagesDownloadedTotal.WithLabelValues("failure").Add(float64(imagesFailed))
	}
}

// RecordArticleParsed records one completed extraction.
func RecordArticleParsed(textBytes int) {
	ArticlesParsedTotal.Inc()
	ExtractedTextBytes.Observe(float64(textBytes))
}

// RecordPipelineFailure records one terminal task failure.
func RecordPipelineFailure(stage, kind string) {
	PipelineFailuresTotal.WithLabelValues(stage, kind).Inc()
}
