package utils

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		opts CanonicalizeOptions
		want string
	}{
		{
			in:   "HTTP://Example.COM:80/foo/../bar/?b=2&a=1#frag",
			opts: CanonicalizeOptions{},
			want: "http://example.com/bar/?a=1&b=2",
		},
		{
			in:   "https://www.instagram.com:443/p/C1xyz/?igsh=abc&utm_source=ig_web_copy_link",
			opts: IdentityOptions,
			want: "https://instagram.com/p/C1xyz",
		},
		{
			in:   "instagram.com/reel/R9?img_index=2",
			opts: IdentityOptions,
			want: "https://instagram.com/reel/R9",
		},
		{
			in:   "https://例え.テスト/a",
			opts: CanonicalizeOptions{},
			// punycode-encoded host
			want: "https://xn--r8jz45g.xn--zckzah/a",
		},
		{
			in:   "https://user:pw@example.com/x?keep=1&fbclid=9",
			opts: CanonicalizeOptions{DropTrackingParams: true},
			want: "https://example.com/x?keep=1",
		},
		{
			in:   "https://example.com/x?a=1&b=2&c=3",
			opts: CanonicalizeOptions{TrackingParamAllowlist: []string{"b"}},
			want: "https://example.com/x?b=2",
		},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.in, tt.opts)
		if err != nil {
			t.Fatalf("canonicalize(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_Rejects(t *testing.T) {
	cases := map[string]error{
		"":                       ErrEmptyURL,
		"   ":                    ErrEmptyURL,
		"ftp://example.com/file": ErrBadScheme,
		"https:///nohost":        ErrMissingHost,
	}
	for in, want := range cases {
		_, err := Canonicalize(in, CanonicalizeOptions{})
		if !errors.Is(err, want) {
			t.Errorf("canonicalize(%q) err = %v, want %v", in, err, want)
		}
	}
}

func TestContentIdentity_ShareLinksCollapse(t *testing.T) {
	a, err := ContentIdentity("https://www.instagram.com/p/ABC/?igsh=1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ContentIdentity("instagram.com/p/ABC")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("identities differ: %q vs %q", a, b)
	}
}
