package crawler

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the crawl counters.
type Snapshot struct {
	Attempted       int64     `json:"attempted"`
	Saved           int64     `json:"saved"`
	SkippedByRobots int64     `json:"skipped_by_robots"`
	Failures        int64     `json:"failures"`
	TabsActivated   int64     `json:"tabs_activated"`
	TabsFailed      int64     `json:"tabs_failed"`
	QueuePending    int       `json:"queue_pending"`
	StartedAt       time.Time `json:"started_at"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

// PageRecord describes one finished page for the status API.
type PageRecord struct {
	URL           string    `json:"url"`
	Path          string    `json:"path,omitempty"`
	Status        string    `json:"status"`
	TabGroups     int       `json:"tab_groups"`
	TabsActivated int       `json:"tabs_activated"`
	TabsFailed    int       `json:"tabs_failed"`
	FinishedAt    time.Time `json:"finished_at"`
}

const recentPageCap = 100

// stats tracks crawl counters and a bounded ring of recent pages.
type stats struct {
	mu              sync.Mutex
	attempted       int64
	saved           int64
	skippedByRobots int64
	failures        int64
	tabsActivated   int64
	tabsFailed      int64
	startedAt       time.Time
	recent          []PageRecord
}

func newStats() *stats {
	return &stats{startedAt: time.Now()}
}

func (s *stats) pageAttempted() {
	s.mu.Lock()
	s.attempted++
	s.mu.Unlock()
}

func (s *stats) pageFinished(rec PageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch rec.Status {
	case pageStatusSaved:
		s.saved++
	case pageStatusRobots:
		s.skippedByRobots++
	default:
		s.failures++
	}
	s.tabsActivated += int64(rec.TabsActivated)
	s.tabsFailed += int64(rec.TabsFailed)
	s.recent = append(s.recent, rec)
	if len(s.recent) > recentPageCap {
		s.recent = s.recent[len(s.recent)-recentPageCap:]
	}
}

func (s *stats) snapshot(queuePending int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Attempted:       s.attempted,
		Saved:           s.saved,
		SkippedByRobots: s.skippedByRobots,
		Failures:        s.failures,
		TabsActivated:   s.tabsActivated,
		TabsFailed:      s.tabsFailed,
		QueuePending:    queuePending,
		StartedAt:       s.startedAt,
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
	}
}

func (s *stats) recentPages(limit int) []PageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]PageRecord, limit)
	// Newest first.
	for i := 0; i < limit; i++ {
		out[i] = s.recent[len(s.recent)-1-i]
	}
	return out
}
