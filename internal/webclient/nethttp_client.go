package webclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prempunmagar/trustcard/internal/logging"
)

// NetHTTPClient fetches with net/http. It does not run scripts, so pages that
// render client-side come back as a shell with only their meta tags.
type NetHTTPClient struct {
	client    *http.Client
	logger    logging.Logger
	userAgent string
	maxBody   int64
}

// NewNetHTTPClient wraps httpClient, or a fresh client when nil. A client
// without a redirect policy gets one bounded by cfg.MaxRedirects; the caller's
// client is copied, not modified.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: string(ClientNetHTTP)})

	var c http.Client
	if httpClient != nil {
		c = *httpClient
	} else {
		c.Timeout = cfg.Timeout
	}
	if c.CheckRedirect == nil {
		c.CheckRedirect = limitRedirects(cfg.MaxRedirects)
	}

	componentLogger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: c.Timeout.String()},
		logging.Field{Key: "max_redirects", Value: cfg.MaxRedirects})

	return &NetHTTPClient{
		client:    &c,
		logger:    componentLogger,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}, nil
}

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
		}
		if s := req.URL.Scheme; s != "http" && s != "https" {
			return fmt.Errorf("%w: redirect to %q", ErrUnsupportedScheme, s)
		}
		return nil
	}
}

// Do sends req. Non-2xx statuses are returned as responses, not errors.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := checkScheme(req.URL); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	setDefault(httpReq.Header, "User-Agent", nhc.userAgent)
	setDefault(httpReq.Header, "Accept", defaultAccept)
	setDefault(httpReq.Header, "Accept-Language", defaultAcceptLanguage)

	start := time.Now()
	resp, err := nhc.client.Do(httpReq)
	if err != nil {
		nhc.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	// One extra byte tells a body that exactly fits from one that was cut.
	body, err := io.ReadAll(io.LimitReader(resp.Body, nhc.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > nhc.maxBody
	if truncated {
		body = body[:nhc.maxBody]
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	nhc.logger.Debug("http response",
		logging.Field{Key: "url", Value: final},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "bytes", Value: len(body)},
		logging.Field{Key: "truncated", Value: truncated},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})

	return &Response{
		Request:    req,
		Body:       body,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		FinalURL:   final,
		Truncated:  truncated,
		FetchedAt:  time.Now(),
	}, nil
}

func (nhc *NetHTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	return nhc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

func (nhc *NetHTTPClient) Close() error {
	nhc.client.CloseIdleConnections()
	return nil
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}
