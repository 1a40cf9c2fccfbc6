// Package inference talks to the media-analysis service that hosts the
// synthetic-image, OCR and manipulation models.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

const (
	PathAuthenticity = "/v1/authenticity"
	PathOCR          = "/v1/ocr"
	PathManipulation = "/v1/manipulation"

	headerRetryAfter   = "Retry-After"
	defaultRetryAfter  = 5 * time.Second
	maxErrorBodyLength = 256
)

var ErrNoBaseURL = errors.New("inference: base url is required")

// RateLimitError is returned when the service answered 429.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("inference rate limited until %s", e.RetryAt.Format(time.RFC3339))
}

// StatusError is a non-2xx, non-429 response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
}

// Client implements the authenticity, text-extraction and manipulation
// analyzers against the inference service.
type Client struct {
	cfg     Config
	wc      webclient.WebClient
	limiter *rate.Limiter
	logger  logging.Logger
	now     func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	if wc == nil {
		return nil, errors.New("inference: nil webclient")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		cfg:     cfg,
		wc:      wc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger.With(logging.Field{Key: "component", Value: "inference"}),
		now:     time.Now,
	}, nil
}

var (
	_ analyzer.AuthenticityDetector = (*Client)(nil)
	_ analyzer.TextExtractor        = (*Client)(nil)
	_ analyzer.ManipulationDetector = (*Client)(nil)
)

func (c *Client) DetectSynthetic(ctx context.Context, in analyzer.AuthenticityInput) (*model.AuthenticityPayload, error) {
	if len(in.ImageURLs) == 0 {
		return nil, analyzer.Skip(analyzer.ReasonNoImages)
	}
	var out model.AuthenticityPayload
	if err := c.post(ctx, PathAuthenticity, in, &out); err != nil {
		return nil, err
	}
	if out.ImagesAnalyzed == 0 {
		out.ImagesAnalyzed = len(in.ImageURLs)
	}
	return &out, nil
}

// OCRImage is the per-image OCR result.
type OCRImage struct {
	URL        string  `json:"url"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type ocrResponse struct {
	Images []OCRImage `json:"images"`
}

// ExtractText runs OCR on the post images and merges the result with the
// caption. A post without images yields a caption-only result.
func (c *Client) ExtractText(ctx context.Context, in analyzer.TextInput) (*model.TextExtractionPayload, error) {
	var results []OCRImage
	if len(in.ImageURLs) > 0 {
		var resp ocrResponse
		if err := c.post(ctx, PathOCR, in, &resp); err != nil {
			return nil, err
		}
		results = resp.Images
	}
	return CombineText(in.Caption, results, len(in.ImageURLs)), nil
}

// CombineText joins caption and per-image OCR text into the payload the
// claim analyzer reads.
func CombineText(caption string, images []OCRImage, totalImages int) *model.TextExtractionPayload {
	var texts []string
	var confSum float64
	words := 0
	for _, img := range images {
		confSum += img.Confidence
		t := strings.TrimSpace(img.Text)
		if t == "" {
			continue
		}
		texts = append(texts, t)
		words += len(strings.Fields(t))
	}
	ocr := strings.Join(texts, "\n\n")

	var parts []string
	if strings.TrimSpace(caption) != "" {
		parts = append(parts, caption)
	}
	if ocr != "" {
		parts = append(parts, "Text in Images:\n"+ocr)
	}

	out := &model.TextExtractionPayload{
		CombinedText:   strings.Join(parts, "\n\n---\n\n"),
		Caption:        caption,
		OCRText:        ocr,
		ImagesWithText: len(texts),
		TotalImages:    totalImages,
		WordsExtracted: words,
		HasText:        ocr != "",
	}
	if len(images) > 0 {
		out.AvgConfidence = confSum / float64(len(images))
	}
	return out
}

func (c *Client) DetectManipulation(ctx context.Context, in analyzer.ManipulationInput) (*model.ManipulationPayload, error) {
	if len(in.ImageURLs) == 0 && len(in.VideoURLs) == 0 {
		return nil, analyzer.Skip(analyzer.ReasonNoMedia)
	}
	var out model.ManipulationPayload
	if err := c.post(ctx, PathManipulation, in, &out); err != nil {
		return nil, err
	}
	if out.MediaAnalyzed == 0 {
		out.MediaAnalyzed = len(in.ImageURLs) + len(in.VideoURLs)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.wc.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("inference %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAt := c.now().Add(retryAfter(resp.Headers.Get(headerRetryAfter), c.now()))
		c.mu.Lock()
		if retryAt.After(c.blockedUntil) {
			c.blockedUntil = retryAt
		}
		c.mu.Unlock()
		c.logger.Warn("inference rate limited",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "retry_at", Value: retryAt.Format(time.RFC3339)})
		return &RateLimitError{RetryAt: retryAt}
	case !resp.OK():
		msg := strings.TrimSpace(string(resp.Body))
		if len(msg) > maxErrorBodyLength {
			msg = msg[:maxErrorBodyLength]
		}
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: msg}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// wait honors a server-imposed backoff, then the local token bucket.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	until := c.blockedUntil
	c.mu.Unlock()

	if d := until.Sub(c.now()); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return c.limiter.Wait(ctx)
}

// retryAfter parses delta-seconds or an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
