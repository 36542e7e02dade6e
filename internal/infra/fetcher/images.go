package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// imgSrcPattern pulls src attributes out of <img> tags. A tolerant regex,
// not a DOM walk: it keeps working on the malformed HTML article hosts
// actually serve, at the cost of missing srcset and script-inserted
// images. Known limitation.
var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']?([^"'\s>]+)`)

// ExtractImageURLs returns up to max normalized image URLs referenced by
// the page, in document order, deduplicated.
//
// Normalization rules:
//   - protocol-relative (//host/...) URLs are promoted to https:
//   - root-relative (/...) and schemeless references are skipped; without
//     a reliable base they mostly resolve to chrome, not content
//   - data: URIs and other non-http schemes are skipped
func ExtractImageURLs(html string, max int) []string {
	matches := imgSrcPattern.FindAllStringSubmatch(html, -1)

	urls := make([]string, 0, max)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if len(urls) >= max {
			break
		}
		src := strings.TrimSpace(m[1])
		switch {
		case strings.HasPrefix(src, "//"):
			src = "https:" + src
		case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
			// keep as-is
		default:
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	}
	return urls
}

// ImageResult describes one successfully downloaded image.
type ImageResult struct {
	URL      string `json:"url"`
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ImageFailure records one image that could not be fetched. Image
// failures are never fatal to the surrounding download.
type ImageFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// DownloadImages fetches the given image URLs into destDir as
// image_NN.<ext>, numbered by position in urls. Downloads run with
// bounded parallelism; each failure is recorded and the rest continue.
func (f *HTMLFetcher) DownloadImages(ctx context.Context, urls []string, destDir string) ([]ImageResult, []ImageFailure) {
	if len(urls) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		results  []ImageResult
		failures []ImageFailure
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.ImageParallelism)
	for i, imageURL := range urls {
		g.Go(func() error {
			filename := fmt.Sprintf("image_%02d%s", i+1, imageExtension(imageURL))
			result, err := f.downloadImage(ctx, imageURL, filepath.Join(destDir, filename))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, ImageFailure{URL: imageURL, Error: err.Error()})
				return nil
			}
			result.Filename = filename
			results = append(results, *result)
			return nil
		})
	}
	_ = g.Wait()

	return results, failures
}

func (f *HTMLFetcher) downloadImage(ctx context.Context, imageURL, destPath string) (*ImageResult, error) {
	if err := validateURL(imageURL, f.config.DenyPrivateIPs); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", browserHeaders["User-Agent"])
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Err != nil {
			return nil, urlErr.Err
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	// Write to a temp file in the same directory and rename, so a killed
	// worker never leaves a half-written image under its final name.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".img-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, io.LimitReader(resp.Body, f.config.MaxBodySize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return nil, err
	}

	return &ImageResult{
		URL:      imageURL,
		FilePath: destPath,
		Size:     size,
	}, nil
}

// imageExtension infers a file extension from the URL path, defaulting
// to .jpg when the path carries none.
func imageExtension(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg":
		return ext
	}
	return ".jpg"
}
