package webclient

import "time"

// Client names a registered backend.
type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultIdleAfter    = 2 * time.Second
	DefaultMaxBody      = 8 << 20
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "Mozilla/5.0 (compatible; TrustCardBot/1.0; +https://trustcard.app/bot)"

	defaultAccept         = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.8"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client    Client
	Timeout   time.Duration
	UserAgent string
	// MaxBodyBytes caps how much of a response body is read (nethttp only).
	MaxBodyBytes int64
	// MaxRedirects bounds shortener chains (nethttp only).
	MaxRedirects int
	// IdleAfter is how long the network must stay quiet before a rendered page is captured (chromedp only).
	IdleAfter time.Duration
	Headless  bool
}

func (c Config) withDefaults() Config {
	if c.Client == "" {
		c.Client = ClientNetHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBody
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	return c
}
