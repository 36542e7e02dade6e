package download

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-connector/internal/domain/entity"
	"genesis-connector/internal/infra/fetcher"
	"genesis-connector/internal/infra/storage"
	"genesis-connector/internal/pipeline"
	"genesis-connector/internal/queue"
	"genesis-connector/internal/resilience/retry"
	"genesis-connector/tests/fixtures"
)

type fakeFetcher struct {
	pages    map[string]*fetcher.HTMLResult
	errs     map[string]error
	imageErr string // image URL that should fail
}

func (f *fakeFetcher) FetchHTML(ctx context.Context, url string) (*fetcher.HTMLResult, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return nil, errors.New("unexpected url " + url)
}

func (f *fakeFetcher) DownloadImages(ctx context.Context, urls []string, destDir string) ([]fetcher.ImageResult, []fetcher.ImageFailure) {
	var results []fetcher.ImageResult
	var failures []fetcher.ImageFailure
	for i, u := range urls {
		if u == f.imageErr {
			failures = append(failures, fetcher.ImageFailure{URL: u, Error: "HTTP 404"})
			continue
		}
		name := "image_0" + string(rune('1'+i)) + ".jpg"
		path := filepath.Join(destDir, name)
		_ = os.WriteFile(path, []byte("img"), 0o644)
		results = append(results, fetcher.ImageResult{URL: u, FilePath: path, Filename: name, Size: 3})
	}
	return results, failures
}

type testEnv struct {
	engine    *Engine
	substrate *queue.Substrate
	articles  *fixtures.MemArticleRepo
	layout    *storage.Layout
}

func newTestEnv(t *testing.T, pageFetcher PageFetcher) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	substrate := queue.New(client)

	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)

	articles := fixtures.NewMemArticleRepo()
	logger := slog.New(slog.DiscardHandler)
	engine := NewEngine(substrate, pageFetcher, layout, articles, fixtures.NewMemStatsRepo(), 3, 10, logger)

	old := popTimeout
	popTimeout = 50 * time.Millisecond
	t.Cleanup(func() { popTimeout = old })

	return &testEnv{engine: engine, substrate: substrate, articles: articles, layout: layout}
}

func seedTask(t *testing.T, env *testEnv, id, url string) pipeline.Task {
	t.Helper()
	env.articles.Seed(&entity.Article{
		ID: id, URL: url,
		DiscoveryStatus: entity.StatusCompleted,
		DownloadStatus:  entity.StatusPending,
		ParseStatus:     entity.StatusPending,
		StorageStatus:   entity.StatusPending,
		PublishTime:     1750000000,
	})
	task := pipeline.NewDiscoveryTask(id, url, "title "+id, "Tech Daily", "mp-1", 0, time.Now())
	require.NoError(t, env.substrate.Push(context.Background(), queue.DownloadTasks, task,
		queue.ScoreForNewTask(0, time.Now())))
	return task
}

func TestEngine_RunBatch_HappyPath(t *testing.T) {
	html := fixtures.GenerateArticleWithImagesHTML("https://cdn.example.com/a.png")
	pageFetcher := &fakeFetcher{pages: map[string]*fetcher.HTMLResult{
		"https://example.com/a1": {HTML: html, Encoding: "utf-8", Size: len(html)},
	}}
	env := newTestEnv(t, pageFetcher)
	seedTask(t, env, "A1", "https://example.com/a1")

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)

	// HTML artifact exists and matches.
	data, err := os.ReadFile(env.layout.HTMLPath("A1"))
	require.NoError(t, err)
	assert.Equal(t, html, string(data))

	// Image was "downloaded" into the per-article directory.
	assert.FileExists(t, filepath.Join(env.layout.ImagesDir("A1"), "image_01.jpg"))

	// Metadata manifest carries the schema fields.
	metaRaw, err := os.ReadFile(env.layout.MetadataPath("A1"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.Equal(t, "A1", meta["article_id"])
	info := meta["download_info"].(map[string]any)
	assert.Equal(t, "utf-8", info["html_encoding"])
	assert.Equal(t, float64(1), info["image_count"])
	assert.Equal(t, float64(1750000000), meta["publish_time"])

	// Row advanced and carries paths.
	row, _ := env.articles.Get(context.Background(), "A1")
	assert.Equal(t, entity.StatusCompleted, row.DownloadStatus)
	assert.NotNil(t, row.DownloadedAt)
	assert.Equal(t, env.layout.HTMLPath("A1"), row.HTMLFilePath)

	// Parse task enqueued with the HTML path.
	parseTask, err := env.substrate.PopMin(context.Background(), queue.ParseTasks, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, parseTask)
	assert.Equal(t, "A1", parseTask.ID)
	assert.Equal(t, env.layout.HTMLPath("A1"), parseTask.HTMLFilePath)
	assert.Equal(t, pipeline.SourceDownload, parseTask.Source)
}

func TestEngine_RunBatch_EmptyQueue(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{})

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestEngine_RunBatch_TransientErrorRequeuesWithBackoff(t *testing.T) {
	pageFetcher := &fakeFetcher{errs: map[string]error{
		"https://example.com/a1": &retry.HTTPError{StatusCode: 503, Message: "unavailable"},
	}}
	env := newTestEnv(t, pageFetcher)
	seedTask(t, env, "A1", "https://example.com/a1")

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Equal(t, 0, result.Failed)

	// The task is back in the queue with a future score and a bumped count.
	sample, err := env.substrate.Sample(context.Background(), queue.DownloadTasks, 1)
	require.NoError(t, err)
	require.Len(t, sample, 1)
	assert.Equal(t, 1, sample[0].RetryCount)
	assert.Contains(t, sample[0].ErrorMessage, "503")

	// It is not immediately eligible again.
	popped, err := env.substrate.PopMin(context.Background(), queue.DownloadTasks, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, popped)

	// The row recorded the retry.
	row, _ := env.articles.Get(context.Background(), "A1")
	assert.Equal(t, 1, row.RetryCount)
	assert.NotNil(t, row.LastRetryAt)
}

func TestEngine_RunBatch_ExhaustedRetriesDeadletter(t *testing.T) {
	pageFetcher := &fakeFetcher{errs: map[string]error{
		"https://example.com/a1": &retry.HTTPError{StatusCode: 404, Message: "not found"},
	}}
	env := newTestEnv(t, pageFetcher)
	task := seedTask(t, env, "A1", "https://example.com/a1")

	// Simulate a task that has already burned its retries.
	require.NoError(t, env.substrate.Remove(context.Background(), queue.DownloadTasks, task))
	task.RetryCount = 3
	require.NoError(t, env.substrate.Push(context.Background(), queue.DownloadTasks, task,
		queue.ScoreForNewTask(0, time.Now())))

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	deadletter, err := env.substrate.Sample(context.Background(), queue.FailedTasks, 1)
	require.NoError(t, err)
	require.Len(t, deadletter, 1)
	assert.Contains(t, deadletter[0].ErrorMessage, "404")

	row, _ := env.articles.Get(context.Background(), "A1")
	assert.Equal(t, entity.StatusFailed, row.DownloadStatus)
	assert.Contains(t, row.ErrorMessage, "404")
}

func TestEngine_RunBatch_InvalidTaskNoRetry(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{})
	task := pipeline.Task{ID: "A1", Source: pipeline.SourceDiscovery} // no url
	require.NoError(t, env.substrate.Push(context.Background(), queue.DownloadTasks, task,
		queue.ScoreForNewTask(0, time.Now())))

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Retried)

	size, _ := env.substrate.Size(context.Background(), queue.DownloadTasks)
	assert.Equal(t, int64(0), size, "invalid task must not be re-queued")
	dlq, _ := env.substrate.Size(context.Background(), queue.FailedTasks)
	assert.Equal(t, int64(1), dlq)
}

func TestEngine_RunBatch_ReprocessOverwritesArtifacts(t *testing.T) {
	html := fixtures.GenerateShortArticleHTML()
	pageFetcher := &fakeFetcher{pages: map[string]*fetcher.HTMLResult{
		"https://example.com/a1": {HTML: html, Encoding: "utf-8", Size: len(html)},
	}}
	env := newTestEnv(t, pageFetcher)

	seedTask(t, env, "A1", "https://example.com/a1")
	_, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)

	// Same id arrives again (the parse stage tolerates the duplicate).
	seedTask(t, env, "A1", "https://example.com/a1")
	_, err = env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)

	data, err := os.ReadFile(env.layout.HTMLPath("A1"))
	require.NoError(t, err)
	assert.Equal(t, html, string(data))

	entries, err := os.ReadDir(env.layout.HTMLDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "re-processing must not leave temp files")

	parseDepth, _ := env.substrate.Size(context.Background(), queue.ParseTasks)
	assert.Equal(t, int64(2), parseDepth, "parse push is not deduplicated by the engine")
}

func TestEngine_RunBatch_ImageFailureIsNonFatal(t *testing.T) {
	html := fixtures.GenerateArticleWithImagesHTML(
		"https://cdn.example.com/ok.png",
		"https://cdn.example.com/broken.png",
	)
	pageFetcher := &fakeFetcher{
		pages: map[string]*fetcher.HTMLResult{
			"https://example.com/a1": {HTML: html, Encoding: "utf-8", Size: len(html)},
		},
		imageErr: "https://cdn.example.com/broken.png",
	}
	env := newTestEnv(t, pageFetcher)
	seedTask(t, env, "A1", "https://example.com/a1")

	result, err := env.engine.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	metaRaw, err := os.ReadFile(env.layout.MetadataPath("A1"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	failed := meta["failed_images"].([]any)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://cdn.example.com/broken.png", failed[0].(map[string]any)["url"])
}

func TestClassifyFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pipeline.ErrorKind
	}{
		{"503", &retry.HTTPError{StatusCode: 503}, pipeline.KindTransientNetwork},
		{"429", &retry.HTTPError{StatusCode: 429}, pipeline.KindTransientNetwork},
		{"408", &retry.HTTPError{StatusCode: 408}, pipeline.KindTransientNetwork},
		{"404", &retry.HTTPError{StatusCode: 404}, pipeline.KindPermanentNetwork},
		{"403", &retry.HTTPError{StatusCode: 403}, pipeline.KindPermanentNetwork},
		{"invalid url", fetcher.ErrInvalidURL, pipeline.KindInvalidTask},
		{"timeout", fetcher.ErrTimeout, pipeline.KindTransientNetwork},
		{"oversized", fetcher.ErrBodyTooLarge, pipeline.KindParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.KindOf(classifyFetchError(tt.err)))
		})
	}
}
