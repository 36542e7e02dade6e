// Package fetcher downloads article HTML and inline images with the
// request profile, decoding rules and safety limits the download stage
// requires.
package fetcher

import "errors"

// Sentinel errors for fetch operations.
var (
	// ErrInvalidURL indicates the URL is malformed or points somewhere
	// fetching is not allowed to go.
	ErrInvalidURL = errors.New("invalid fetch URL")

	// ErrTimeout indicates the request exceeded its configured timeout.
	ErrTimeout = errors.New("fetch timed out")

	// ErrBodyTooLarge indicates the response exceeded the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrTooManyRedirects indicates the redirect chain exceeded the limit.
	ErrTooManyRedirects = errors.New("too many redirects")
)
