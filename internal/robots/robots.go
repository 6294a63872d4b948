package robots

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/dgnsrekt/docweave/internal/frontier"
)

// Verdict is the outcome of a robots.txt check for a single URL.
type Verdict struct {
	Allowed bool
	// CrawlDelay is the effective per-request delay the origin asks for,
	// combining Crawl-delay and Request-rate directives. Zero when the
	// origin sets neither.
	CrawlDelay time.Duration
}

type originEntry struct {
	once  sync.Once
	group *robotstxt.Group
	delay time.Duration
}

// Manager fetches robots.txt once per origin and answers allow/delay
// queries from the cached result. Unreachable or missing robots files
// default to allow-all, matching common crawler behavior.
type Manager struct {
	userAgent string
	client    *http.Client
	log       *slog.Logger

	mu      sync.Mutex
	origins map[string]*originEntry
}

func NewManager(userAgent string, timeout time.Duration, log *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Manager{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		log:       log,
		origins:   make(map[string]*originEntry),
	}
}

// Allowed reports whether the crawler may fetch pageURL and what delay the
// origin requests. The origin's robots.txt is fetched at most once.
func (m *Manager) Allowed(pageURL string) Verdict {
	origin := frontier.DomainKey(pageURL)
	if origin == "" {
		return Verdict{Allowed: true}
	}

	m.mu.Lock()
	entry, ok := m.origins[origin]
	if !ok {
		entry = &originEntry{}
		m.origins[origin] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.group, entry.delay = m.fetch(origin)
	})

	if entry.group == nil {
		return Verdict{Allowed: true}
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return Verdict{Allowed: true, CrawlDelay: entry.delay}
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return Verdict{Allowed: entry.group.Test(target), CrawlDelay: entry.delay}
}

func (m *Manager) fetch(origin string) (*robotstxt.Group, time.Duration) {
	robotsURL := origin + "/robots.txt"
	resp, err := m.client.Get(robotsURL)
	if err != nil {
		m.log.Debug("robots fetch failed, defaulting to allow", "url", robotsURL, "error", err)
		return nil, 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		m.log.Debug("robots read failed, defaulting to allow", "url", robotsURL, "error", err)
		return nil, 0
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		m.log.Debug("robots parse failed, defaulting to allow", "url", robotsURL, "error", err)
		return nil, 0
	}

	group := data.FindGroup(m.userAgent)
	if group == nil {
		return nil, 0
	}
	m.log.Debug("robots cached", "origin", origin, "crawl_delay", group.CrawlDelay.String())
	return group, group.CrawlDelay
}

// CachedOrigins reports how many origins have a cached robots decision.
func (m *Manager) CachedOrigins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.origins)
}
