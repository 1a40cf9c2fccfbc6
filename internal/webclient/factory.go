package webclient

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/prempunmagar/trustcard/internal/logging"
)

// Constructor builds a backend from an already defaulted Config.
type Constructor func(cfg Config, logger logging.Logger) (WebClient, error)

var (
	mu       sync.RWMutex
	backends = map[Client]Constructor{}
)

func init() {
	Register(ClientNetHTTP, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewNetHTTPClient(cfg, logger, nil)
	})
	Register(ClientChromedp, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromedpClient(cfg, logger)
	})
}

// Register makes a backend selectable by name, replacing any previous
// constructor for it. Tests use it to plug in fakes.
func Register(c Client, ctor Constructor) {
	c = normalize(c)
	if c == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	backends[c] = ctor
}

// NewWebClient constructs the backend named by cfg.Client, nethttp when empty.
func NewWebClient(cfg Config, logger logging.Logger) (WebClient, error) {
	cfg.Client = normalize(cfg.Client)
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	mu.RLock()
	ctor, ok := backends[cfg.Client]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("webclient backend %q not registered (have %v)", cfg.Client, Backends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("webclient backend %q: %w", cfg.Client, err)
	}
	if wc == nil {
		return nil, fmt.Errorf("webclient backend %q returned no client", cfg.Client)
	}
	return wc, nil
}

// Backends lists the registered backend names, sorted.
func Backends() []Client {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Client, 0, len(backends))
	for c := range backends {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func normalize(c Client) Client {
	return Client(strings.ToLower(strings.TrimSpace(string(c))))
}
