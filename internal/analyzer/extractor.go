package analyzer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/utils"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

var ErrNoContent = errors.New("page has no extractable content")

// shortcodeSegments precede the post id in Instagram-style paths.
var shortcodeSegments = map[string]bool{"p": true, "reel": true, "reels": true, "tv": true}

var (
	// "1,234 likes, 56 comments - someuser on March 3, 2024: "caption text"."
	igDescription = regexp.MustCompile(`(?s)^([\d.,]+[KkMm]?) likes?, ([\d.,]+[KkMm]?) comments? - ([\w.]+) on [^:]+: "(.*)"\.?$`)
	// "Full Name (@user) • Instagram photos and videos" / "Full Name (@user) on Instagram: ..."
	titleHandle = regexp.MustCompile(`^(.*?)\s*\(@([\w.]+)\)`)
)

// PageExtractor scrapes a post's public page metadata (OpenGraph, Twitter
// cards, Instagram description lines).
type PageExtractor struct {
	client webclient.WebClient
	logger logging.Logger
	now    func() time.Time
}

func NewPageExtractor(client webclient.WebClient, logger logging.Logger) *PageExtractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PageExtractor{
		client: client,
		logger: logger.With(logging.Field{Key: "component", Value: "extractor"}),
		now:    time.Now,
	}
}

// ContentID returns the platform shortcode when the path carries one, else a
// stable hash of the canonical URL.
func (e *PageExtractor) ContentID(raw string) (string, error) {
	canonical, err := utils.ContentIdentity(raw)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", err
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segs); i++ {
		if shortcodeSegments[strings.ToLower(segs[i])] && segs[i+1] != "" {
			return segs[i+1], nil
		}
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16], nil
}

func (e *PageExtractor) Extract(ctx context.Context, raw string) (*model.ExtractionPayload, error) {
	canonical, err := utils.ContentIdentity(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	id, err := e.ContentID(canonical)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Get(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", canonical, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch %s: status %d", canonical, resp.StatusCode)
	}
	if !resp.IsHTML() {
		return nil, fmt.Errorf("%w: %s served %s", ErrNoContent, canonical, resp.MediaType())
	}
	if resp.Truncated {
		e.logger.Warn("page body truncated, metadata may be incomplete",
			logging.Field{Key: "url", Value: canonical},
			logging.Field{Key: "bytes", Value: len(resp.Body)})
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", canonical, err)
	}

	p := &model.ExtractionPayload{
		ContentID:    id,
		URL:          raw,
		CanonicalURL: canonical,
		Title:        metaContent(doc, "og:title", "twitter:title"),
		Caption:      metaContent(doc, "og:description", "twitter:description", "description"),
		ImageURLs:    metaContents(doc, "og:image", "og:image:secure_url", "twitter:image"),
		VideoURLs:    metaContents(doc, "og:video", "og:video:secure_url", "og:video:url", "twitter:player:stream"),
		FetchedAt:    e.now().UTC(),
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	p.Platform = platformOf(canonical, metaContent(doc, "og:site_name"))

	if m := igDescription.FindStringSubmatch(p.Caption); m != nil {
		p.Likes = parseCount(m[1])
		p.Comments = parseCount(m[2])
		p.Author.Username = m[3]
		p.Caption = strings.TrimSpace(m[4])
	}
	if m := titleHandle.FindStringSubmatch(p.Title); m != nil {
		p.Author.FullName = strings.TrimSpace(m[1])
		if p.Author.Username == "" {
			p.Author.Username = m[2]
		}
	}
	if p.Author.Username == "" {
		p.Author.Username = strings.TrimPrefix(metaContent(doc, "twitter:creator", "article:author", "author"), "@")
	}

	p.Type = postType(p, metaContent(doc, "og:type"))

	if p.Caption == "" && p.Title == "" && !p.HasMedia() {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, canonical)
	}

	e.logger.Debug("extracted content",
		logging.Field{Key: "content_id", Value: id},
		logging.Field{Key: "platform", Value: p.Platform},
		logging.Field{Key: "images", Value: len(p.ImageURLs)},
		logging.Field{Key: "videos", Value: len(p.VideoURLs)})
	return p, nil
}

// metaContent returns the first non-empty content among meta tags matched by
// property or name, in key order.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, k := range keys {
		sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, k, k)
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v := strings.TrimSpace(s.AttrOr("content", "")); v != "" {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// metaContents collects every distinct content value for the keys, in document order per key.
func metaContents(doc *goquery.Document, keys ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, k, k)
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v := strings.TrimSpace(s.AttrOr("content", ""))
			if v == "" || seen[v] {
				return
			}
			seen[v] = true
			out = append(out, v)
		})
	}
	return out
}

func platformOf(canonical, siteName string) string {
	if d, err := utils.RegistrableDomain(canonical); err == nil {
		switch d {
		case "instagram.com", "facebook.com", "twitter.com", "youtube.com", "reddit.com", "tiktok.com":
			return strings.TrimSuffix(d, ".com")
		case "x.com":
			return "twitter"
		}
		if siteName == "" {
			return d
		}
	}
	return strings.ToLower(siteName)
}

func postType(p *model.ExtractionPayload, ogType string) model.PostType {
	switch {
	case len(p.VideoURLs) > 0, strings.HasPrefix(ogType, "video"):
		return model.PostVideo
	case len(p.ImageURLs) > 1:
		return model.PostCarousel
	case len(p.ImageURLs) == 1:
		return model.PostPhoto
	}
	return model.PostText
}

// parseCount reads "1,234", "12.5K" or "3M".
func parseCount(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1e3, s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult, s = 1e6, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * mult)
}
