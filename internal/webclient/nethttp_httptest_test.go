package webclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

const postPage = `<html><head>
<meta property="og:title" content="desk on Instagram">
<meta property="og:description" content="Bridge reopened on Monday">
</head><body></body></html>`

func newNetHTTP(t *testing.T, cfg webclient.Config, hc *http.Client) *webclient.NetHTTPClient {
	t.Helper()
	client, err := webclient.NewNetHTTPClient(cfg, logging.Nop(), hc)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNetHTTPClient_Get_FetchesPostPage(t *testing.T) {
	t.Parallel()
	got := make(chan *http.Request, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, postPage)
	}))
	defer ts.Close()

	client := newNetHTTP(t, webclient.Config{}, ts.Client())
	before := time.Now()
	resp, err := client.Get(context.Background(), ts.URL+"/p/C1abc/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	r := <-got
	if r.Method != http.MethodGet || r.URL.Path != "/p/C1abc/" {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}
	if !resp.OK() || !resp.IsHTML() {
		t.Fatalf("expected an html 2xx page, got %d %q", resp.StatusCode, resp.MediaType())
	}
	if !strings.Contains(string(resp.Body), `og:description`) {
		t.Errorf("expected meta tags in body, got %q", resp.Body)
	}
	if resp.Request == nil || resp.Request.URL != ts.URL+"/p/C1abc/" {
		t.Errorf("expected the request echoed on the response, got %+v", resp.Request)
	}
	if resp.FetchedAt.Before(before) {
		t.Errorf("FetchedAt %s predates the call", resp.FetchedAt)
	}
}

func TestNetHTTPClient_Do_PostsInferencePayload(t *testing.T) {
	t.Parallel()
	type claimsRequest struct {
		Text string `json:"text"`
	}
	got := make(chan http.Header, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/claims" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		got <- r.Header.Clone()
		var in claimsRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"credibility_score": 80, "echo": in.Text})
	}))
	defer ts.Close()

	client := newNetHTTP(t, webclient.Config{}, ts.Client())
	body, _ := json.Marshal(claimsRequest{Text: "Bridge reopened on Monday"})
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	headers.Set("Authorization", "Bearer sk-test")

	resp, err := client.Do(context.Background(), &webclient.Request{
		Method:  "post",
		URL:     ts.URL + "/v1/claims",
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	h := <-got
	if a := h.Get("Accept"); a != "application/json" {
		t.Errorf("expected the caller's Accept to replace the page default, got %q", a)
	}
	if h.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("expected bearer token forwarded, got %q", h.Get("Authorization"))
	}
	if h.Get("User-Agent") != webclient.DefaultUserAgent {
		t.Errorf("expected default user agent on api calls, got %q", h.Get("User-Agent"))
	}
	if resp.MediaType() != "application/json" || resp.IsHTML() {
		t.Errorf("expected a json response, got %q", resp.MediaType())
	}
	var out struct {
		CredibilityScore float64 `json:"credibility_score"`
		Echo             string  `json:"echo"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CredibilityScore != 80 || out.Echo != "Bridge reopened on Monday" {
		t.Errorf("unexpected payload %+v", out)
	}
}

func TestNetHTTPClient_Do_ErrorStatusesAreResponses(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		header string
	}{
		{"deleted post", http.StatusNotFound, ""},
		{"login wall", http.StatusForbidden, ""},
		{"rate limited", http.StatusTooManyRequests, "30"},
		{"model loading", http.StatusServiceUnavailable, "5"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.header != "" {
					w.Header().Set("Retry-After", tc.header)
				}
				http.Error(w, tc.name, tc.status)
			}))
			defer ts.Close()

			client := newNetHTTP(t, webclient.Config{}, ts.Client())
			resp, err := client.Do(context.Background(), &webclient.Request{URL: ts.URL + "/v1/authenticity"})
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if resp.StatusCode != tc.status || resp.OK() {
				t.Errorf("expected non-OK %d, got %d", tc.status, resp.StatusCode)
			}
			if resp.Headers.Get("Retry-After") != tc.header {
				t.Errorf("expected Retry-After %q, got %q", tc.header, resp.Headers.Get("Retry-After"))
			}
			if strings.TrimSpace(string(resp.Body)) != tc.name {
				t.Errorf("expected error body kept for diagnostics, got %q", resp.Body)
			}
		})
	}
}

func TestNetHTTPClient_Do_TransportErrors(t *testing.T) {
	t.Parallel()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	client := newNetHTTP(t, webclient.Config{Timeout: time.Second}, nil)

	if _, err := client.Do(context.Background(), nil); !errors.Is(err, webclient.ErrNilRequest) {
		t.Errorf("nil request: expected ErrNilRequest, got %v", err)
	}
	if _, err := client.Get(context.Background(), "http://127.0.0.1:1/v1/claims"); err == nil {
		t.Error("unreachable inference host: expected an error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Get(ctx, slow.URL); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled job: expected context.Canceled, got %v", err)
	}
}

func TestNetHTTPClient_Do_TruncatesAtMaxBody(t *testing.T) {
	t.Parallel()
	largeBody := strings.Repeat("X", 1<<20) // 1 MiB
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, largeBody)
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 1024}, logging.Nop(), ts.Client())
	defer client.Close()

	resp, err := client.Do(context.Background(), &webclient.Request{Method: "GET", URL: ts.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != 1024 {
		t.Errorf("expected body capped at 1024 bytes, got %d", len(resp.Body))
	}
	if !resp.Truncated {
		t.Error("expected Truncated to be set")
	}
}

func TestNetHTTPClient_Do_ExactFitIsNotTruncated(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("X", 1024))
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 1024}, logging.Nop(), ts.Client())
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(resp.Body) != 1024 || resp.Truncated {
		t.Errorf("expected whole 1024 byte body, got %d truncated=%v", len(resp.Body), resp.Truncated)
	}
}

func TestNetHTTPClient_Do_SetsDefaultUserAgent(t *testing.T) {
	t.Parallel()
	got := make(chan string, 2)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.UserAgent()
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	defer client.Close()

	if _, err := client.Get(context.Background(), ts.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ua := <-got; ua != webclient.DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", ua)
	}

	_, err := client.Do(context.Background(), &webclient.Request{
		URL:     ts.URL,
		Headers: http.Header{"User-Agent": []string{"custom/1.0"}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if ua := <-got; ua != "custom/1.0" {
		t.Errorf("expected caller user agent to win, got %q", ua)
	}
}

func TestNetHTTPClient_Do_SendsBrowserAcceptHeaders(t *testing.T) {
	t.Parallel()
	got := make(chan http.Header, 2)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	defer client.Close()

	if _, err := client.Get(context.Background(), ts.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	h := <-got
	if !strings.HasPrefix(h.Get("Accept"), "text/html") {
		t.Errorf("expected html accept header, got %q", h.Get("Accept"))
	}
	if h.Get("Accept-Language") == "" {
		t.Error("expected an Accept-Language header")
	}

	_, err := client.Do(context.Background(), &webclient.Request{
		URL:     ts.URL,
		Headers: http.Header{"Accept": []string{"application/json"}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if a := (<-got).Get("Accept"); a != "application/json" {
		t.Errorf("expected caller accept header to win, got %q", a)
	}
}

func TestNetHTTPClient_Do_ReportsFinalURL(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/s/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/p/XYZ", http.StatusFound)
	})
	mux.HandleFunc("/p/XYZ", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "post")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL+"/s/abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("expected 2xx, got %d", resp.StatusCode)
	}
	if resp.FinalURL != ts.URL+"/p/XYZ" {
		t.Errorf("expected redirect target as final url, got %q", resp.FinalURL)
	}
}

func TestNetHTTPClient_Do_StopsLongRedirectChains(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{MaxRedirects: 3}, logging.Nop(), ts.Client())
	defer client.Close()

	_, err := client.Get(context.Background(), ts.URL+"/loop")
	if !errors.Is(err, webclient.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestNetHTTPClient_Do_RejectsNonWebScheme(t *testing.T) {
	t.Parallel()
	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), nil)
	defer client.Close()

	_, err := client.Get(context.Background(), "file:///etc/passwd")
	if !errors.Is(err, webclient.ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestResponse_IsHTML(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"":                         true,
		"text/html; charset=utf-8": true,
		"application/xhtml+xml":    true,
		"application/json":         false,
		"image/jpeg":               false,
	}
	for ct, want := range cases {
		resp := &webclient.Response{Headers: http.Header{}}
		if ct != "" {
			resp.Headers.Set("Content-Type", ct)
		}
		if got := resp.IsHTML(); got != want {
			t.Errorf("IsHTML(%q) = %v, want %v", ct, got, want)
		}
	}
}
