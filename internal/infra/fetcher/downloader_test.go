package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-connector/internal/resilience/retry"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false // httptest listens on loopback
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestHTMLFetcher_FetchHTML_Success(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>hello 世界</p></body></html>"))
	}))
	defer server.Close()

	f := NewHTMLFetcher(testConfig())
	result, err := f.FetchHTML(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, result.HTML, "hello 世界")
	assert.Equal(t, "utf-8", result.Encoding)
	assert.Contains(t, gotUA, "Chrome/91.0.4472.124")
	assert.Equal(t, "zh-CN,zh;q=0.9,en;q=0.8", gotLang)
}

func TestHTMLFetcher_FetchHTML_GzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("<html><body>compressed content</body></html>"))
		_ = gz.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	f := NewHTMLFetcher(testConfig())
	result, err := f.FetchHTML(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "compressed content")
}

func TestHTMLFetcher_FetchHTML_DeclaredLatin1ForcedToUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Misdeclared: the bytes are UTF-8 but the header claims latin-1.
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body>中文内容</body></html>"))
	}))
	defer server.Close()

	f := NewHTMLFetcher(testConfig())
	result, err := f.FetchHTML(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "中文内容")
	assert.Equal(t, "utf-8", result.Encoding)
}

func TestHTMLFetcher_FetchHTML_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewHTMLFetcher(testConfig())
	_, err := f.FetchHTML(context.Background(), server.URL)
	require.Error(t, err)

	var httpErr *retry.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestHTMLFetcher_FetchHTML_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodySize = 1024
	f := NewHTMLFetcher(cfg)
	_, err := f.FetchHTML(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestHTMLFetcher_FetchHTML_InvalidScheme(t *testing.T) {
	f := NewHTMLFetcher(testConfig())
	_, err := f.FetchHTML(context.Background(), "ftp://example.com/a")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestDecodeHTML_GBK(t *testing.T) {
	// "中文" in GBK bytes.
	gbk := []byte{0xd6, 0xd0, 0xce, 0xc4}
	body := append([]byte("<html><body>"), gbk...)
	body = append(body, []byte("</body></html>")...)

	html, encoding := decodeHTML(body, "text/html; charset=gbk")
	assert.Equal(t, "gbk", encoding)
	assert.Contains(t, html, "中文")
}

func TestDecodeHTML_InvalidBytesReplaced(t *testing.T) {
	body := []byte{'<', 'p', '>', 0xff, 0xfe, 0xff, '<', '/', 'p', '>'}
	html, encoding := decodeHTML(body, "text/html; charset=utf-8")
	assert.Equal(t, "utf-8", encoding)
	assert.NotContains(t, html, string([]byte{0xff}))
}
