// Package webclient fetches post pages and inference responses. Two backends
// are registered: plain net/http, and headless Chrome for platforms that build
// the post markup client-side.
package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrNilRequest        = errors.New("webclient: nil request")
	ErrTooManyRedirects  = errors.New("webclient: too many redirects")
	ErrUnsupportedScheme = errors.New("webclient: only http and https urls can be fetched")
)

// WebClient fetches a single URL.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}

// checkScheme rejects anything a submitted link could smuggle in that is not
// a web page, e.g. file:// or javascript: urls.
func checkScheme(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webclient: parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return nil
}
