package utils_test

import (
	"reflect"
	"testing"

	"github.com/prempunmagar/trustcard/internal/utils"
)

// ─── Canonicalize ──────────────────────────────────────────────────────

func TestCanonicalize_DefaultScheme(t *testing.T) {
	t.Parallel()
	opts := utils.CanonicalizeOptions{DefaultScheme: "https"}
	got, err := utils.Canonicalize("example.com/page", opts)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got != "https://example.com/page" {
		t.Errorf("expected https://example.com/page, got %q", got)
	}
}

func TestCanonicalize_StripTrailingSlash(t *testing.T) {
	t.Parallel()
	opts := utils.CanonicalizeOptions{StripTrailingSlash: true}
	got, err := utils.Canonicalize("https://example.com/path/", opts)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got != "https://example.com/path" {
		t.Errorf("expected trailing slash stripped, got %q", got)
	}
}

func TestCanonicalize_SortQueryParams(t *testing.T) {
	t.Parallel()
	got, err := utils.Canonicalize("https://example.com?z=1&a=2", utils.CanonicalizeOptions{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	// path.Clean("") → "/", so canonical URL always has a root path
	if got != "https://example.com/?a=2&z=1" {
		t.Errorf("expected sorted params, got %q", got)
	}
}

func TestCanonicalize_StripWWW(t *testing.T) {
	t.Parallel()
	got, err := utils.Canonicalize("https://WWW.Facebook.com/post/1", utils.CanonicalizeOptions{StripWWW: true})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got != "https://facebook.com/post/1" {
		t.Errorf("expected www stripped, got %q", got)
	}
}

func TestCanonicalize_NonDefaultPortPreserved(t *testing.T) {
	t.Parallel()
	got, err := utils.Canonicalize("https://example.com:8443/page", utils.CanonicalizeOptions{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got != "https://example.com:8443/page" {
		t.Errorf("expected port preserved, got %q", got)
	}
}

// ─── ExtractURLs ───────────────────────────────────────────────────────

func TestExtractURLs(t *testing.T) {
	t.Parallel()
	text := "Read https://www.reuters.com/world/x. Also (see http://infowars.com/a) " +
		"and again https://www.reuters.com/world/x, done"
	got := utils.ExtractURLs(text)
	want := []string{"https://www.reuters.com/world/x", "http://infowars.com/a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractURLs = %v, want %v", got, want)
	}
}

func TestExtractURLs_NoneFound(t *testing.T) {
	t.Parallel()
	if got := utils.ExtractURLs("no links here, www.example.com is not a url"); len(got) != 0 {
		t.Errorf("expected no urls, got %v", got)
	}
	if got := utils.ExtractURLs(""); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
}

// ─── RegistrableDomain ─────────────────────────────────────────────────

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://www.reuters.com/world/x": "reuters.com",
		"https://news.bbc.co.uk/story":    "bbc.co.uk",
		"https://m.facebook.com/p/1":      "facebook.com",
		"https://mobile.twitter.com/a":    "twitter.com",
		"https://vm.tiktok.com/abc":       "tiktok.com",
		"www.theonion.com":                "theonion.com",
		"example.org:8080":                "example.org",
		"http://127.0.0.1/x":              "127.0.0.1",
	}
	for in, want := range cases {
		got, err := utils.RegistrableDomain(in)
		if err != nil {
			t.Errorf("RegistrableDomain(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistrableDomain_Empty(t *testing.T) {
	t.Parallel()
	if _, err := utils.RegistrableDomain(" "); err == nil {
		t.Fatal("expected error for empty input")
	}
}
