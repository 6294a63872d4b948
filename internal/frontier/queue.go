package frontier

import "sync"

// Queue is a FIFO of pending page URLs with deduplication and scope
// enforcement. A URL is admitted at most once across the whole crawl, even
// after it has been handed out.
type Queue struct {
	mu       sync.Mutex
	scopeURL string
	pending  []string
	queued   map[string]struct{}
	seen     map[string]struct{}
}

// NewQueue builds a queue constrained to the subtree rooted at scopeURL.
// Pass "" to crawl without a scope constraint.
func NewQueue(scopeURL string) *Queue {
	return &Queue{
		scopeURL: scopeURL,
		queued:   make(map[string]struct{}),
		seen:     make(map[string]struct{}),
	}
}

// Add normalizes the URL (resolving against base when relative) and enqueues
// it unless it is out of scope or already known. Returns true when enqueued.
func (q *Queue) Add(rawURL, base string) bool {
	normalized := Normalize(rawURL, base)
	if normalized == "" {
		return false
	}
	if !InScope(normalized, q.scopeURL) {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[normalized]; ok {
		return false
	}
	if _, ok := q.seen[normalized]; ok {
		return false
	}
	q.pending = append(q.pending, normalized)
	q.queued[normalized] = struct{}{}
	return true
}

// AddAll enqueues every admissible URL and returns how many were accepted.
func (q *Queue) AddAll(urls []string, base string) int {
	added := 0
	for _, u := range urls {
		if q.Add(u, base) {
			added++
		}
	}
	return added
}

// NextBatch removes and returns up to size pending URLs in FIFO order.
// Returned URLs are marked seen and will never be enqueued again.
func (q *Queue) NextBatch(size int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if size > len(q.pending) {
		size = len(q.pending)
	}
	if size <= 0 {
		return nil
	}
	batch := make([]string, size)
	copy(batch, q.pending[:size])
	q.pending = q.pending[size:]
	for _, u := range batch {
		delete(q.queued, u)
		q.seen[u] = struct{}{}
	}
	return batch
}

// Pending reports how many URLs are waiting.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Scheduled reports how many URLs have been handed out so far.
func (q *Queue) Scheduled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seen)
}
