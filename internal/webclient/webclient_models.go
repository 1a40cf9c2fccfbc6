package webclient

import (
	"mime"
	"net/http"
	"time"
)

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	// FinalURL is the URL after redirects; share links often bounce through a shortener.
	FinalURL string
	// Truncated is set when the body hit Config.MaxBodyBytes.
	Truncated bool
	FetchedAt time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// MediaType is the Content-Type without parameters, lower-cased.
func (r *Response) MediaType() string {
	if r == nil {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.Headers.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// IsHTML reports whether the body is a page worth extracting. A missing
// Content-Type counts as HTML since some CDNs strip it.
func (r *Response) IsHTML() bool {
	switch r.MediaType() {
	case "", "text/html", "application/xhtml+xml":
		return true
	}
	return false
}
