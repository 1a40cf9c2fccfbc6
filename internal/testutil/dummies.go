// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
// The zero value is ready to use.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnMessages returns a copy of the recorded warnings.
func (l *DummyLogger) WarnMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Warns...)
}

func (l *DummyLogger) ErrorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Errors...)
}

func (l *DummyLogger) InfoMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Infos...)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Pages maps a URL to the body served for it; other URLs answer 404.
// Set FailURLs[url] = true to force an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	body, ok := d.Pages[req.URL]
	status := http.StatusOK
	if !ok {
		status, body = http.StatusNotFound, "not found"
	}
	return &webclient.Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
		StatusCode: status,
		FinalURL:   req.URL,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests were made.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Analyzers ─────────────────────────────────────────────────────────

// FakeStage scripts one analyzer. In order of precedence a call panics with
// Panic, skips with SkipReason, fails with Err, blocks until released or the
// context ends, or returns Result. Fn, when set, replaces all of that.
type FakeStage[P any] struct {
	Result     P
	Err        error
	SkipReason string
	Panic      string
	Block      bool
	Delay      time.Duration
	Fn         func(ctx context.Context, in any) (P, error)

	mu      sync.Mutex
	calls   int
	inputs  []any
	release chan struct{}
	once    sync.Once
}

func (f *FakeStage[P]) invoke(ctx context.Context, in any) (P, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.release == nil {
		f.release = make(chan struct{})
	}
	release := f.release
	f.mu.Unlock()

	var zero P
	if f.Fn != nil {
		return f.Fn(ctx, in)
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	switch {
	case f.Panic != "":
		panic(f.Panic)
	case f.SkipReason != "":
		return zero, analyzer.Skip(f.SkipReason)
	case f.Err != nil:
		return zero, f.Err
	case f.Block:
		select {
		case <-release:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return f.Result, nil
}

// Calls returns how many times the analyzer ran.
func (f *FakeStage[P]) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastInput returns the input of the most recent call, or nil.
func (f *FakeStage[P]) LastInput() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}

// Unblock releases every blocked and future call.
func (f *FakeStage[P]) Unblock() {
	f.mu.Lock()
	if f.release == nil {
		f.release = make(chan struct{})
	}
	release := f.release
	f.mu.Unlock()
	f.once.Do(func() { close(release) })
}

// FakeExtractor implements analyzer.Extractor. ContentID is the last path
// segment of the URL.
type FakeExtractor struct {
	FakeStage[*model.ExtractionPayload]
}

func (f *FakeExtractor) ContentID(url string) (string, error) {
	url = strings.TrimRight(url, "/")
	if url == "" {
		return "", &errString{"empty url"}
	}
	return url[strings.LastIndex(url, "/")+1:], nil
}

func (f *FakeExtractor) Extract(ctx context.Context, url string) (*model.ExtractionPayload, error) {
	return f.invoke(ctx, url)
}

type FakeAuthenticity struct {
	FakeStage[*model.AuthenticityPayload]
}

func (f *FakeAuthenticity) DetectSynthetic(ctx context.Context, in analyzer.AuthenticityInput) (*model.AuthenticityPayload, error) {
	return f.invoke(ctx, in)
}

type FakeTextExtractor struct {
	FakeStage[*model.TextExtractionPayload]
}

func (f *FakeTextExtractor) ExtractText(ctx context.Context, in analyzer.TextInput) (*model.TextExtractionPayload, error) {
	return f.invoke(ctx, in)
}

type FakeManipulation struct {
	FakeStage[*model.ManipulationPayload]
}

func (f *FakeManipulation) DetectManipulation(ctx context.Context, in analyzer.ManipulationInput) (*model.ManipulationPayload, error) {
	return f.invoke(ctx, in)
}

type FakeClaims struct {
	FakeStage[*model.ClaimAnalysisPayload]
}

func (f *FakeClaims) AnalyzeClaims(ctx context.Context, in analyzer.ClaimInput) (*model.ClaimAnalysisPayload, error) {
	return f.invoke(ctx, in)
}

type FakeReputation struct {
	FakeStage[*model.ReputationPayload]
}

func (f *FakeReputation) CheckReputation(ctx context.Context, in analyzer.ReputationInput) (*model.ReputationPayload, error) {
	return f.invoke(ctx, in)
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
