package utils

import (
	"errors"
	"net"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	DropTrackingParams     bool     // remove share/tracking params (utm_*, igsh, fbclid, ...)
	StripTrailingSlash     bool     // treat /p/x and /p/x/ the same (root "/" is kept)
	StripWWW               bool     // www.instagram.com and instagram.com are the same content
	DefaultScheme          string   // if empty, require scheme in input; otherwise assume it for schemeless URLs
	TrackingParamAllowlist []string // optional allowlist for query params (if non-empty, only these survive)
}

// IdentityOptions is the policy used for content identity: two submissions of
// the same post through different share links map to one cache key.
var IdentityOptions = CanonicalizeOptions{
	DropTrackingParams: true,
	StripTrailingSlash: true,
	StripWWW:           true,
	DefaultScheme:      "https",
}

var defaultTrackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
	"igsh": {}, "igshid": {}, "img_index": {}, "si": {}, "s": {}, "t": {}, "ref": {}, "ref_src": {},
	"feature": {}, "share_id": {}, "mibextid": {},
}

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("missing host")
	ErrBadScheme   = errors.New("unsupported scheme")
)

// Canonicalize returns a deterministic canonical URL string or an error.
// Query params are sorted; fragment and credentials are dropped.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrEmptyURL}
	}

	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrBadScheme}
	}
	if u.Host == "" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrMissingHost}
	}

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	if opts.StripWWW {
		host = strings.TrimPrefix(host, "www.")
	}

	port := u.Port()
	switch {
	case (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443"), port == "":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	cleanPath := path.Clean("/" + u.Path)
	if opts.StripTrailingSlash && len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
	} else if strings.HasSuffix(u.Path, "/") && cleanPath != "/" {
		cleanPath += "/"
	}
	u.Path = cleanPath
	u.RawPath = ""

	q := u.Query()
	if opts.DropTrackingParams {
		for k := range q {
			if contains(opts.TrackingParamAllowlist, k) {
				continue
			}
			lk := strings.ToLower(k)
			if _, ok := defaultTrackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
				q.Del(k)
			}
		}
	}
	if len(opts.TrackingParamAllowlist) > 0 {
		for k := range q {
			if !contains(opts.TrackingParamAllowlist, k) {
				q.Del(k)
			}
		}
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()

	return u.String(), nil
}

// ContentIdentity canonicalizes a submitted content URL with IdentityOptions.
func ContentIdentity(raw string) (string, error) {
	return Canonicalize(raw, IdentityOptions)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60\)\]\}]+`)

// ExtractURLs finds http(s) URLs in free text, deduplicated in order of
// first appearance. Trailing sentence punctuation is not part of the URL.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// platformDomains collapse any subdomain (m.facebook.com, mobile.twitter.com)
// onto the platform.
var platformDomains = []string{
	"instagram.com", "facebook.com", "twitter.com", "x.com",
	"youtube.com", "reddit.com", "tiktok.com",
}

// RegistrableDomain reduces a URL or bare host to its registrable domain
// (eTLD+1), e.g. "https://news.bbc.co.uk/x" -> "bbc.co.uk".
func RegistrableDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", ErrMissingHost
	}
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	for _, p := range platformDomains {
		if host == p || strings.HasSuffix(host, "."+p) {
			return p, nil
		}
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www."), nil
	}
	return d, nil
}
