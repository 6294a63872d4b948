package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/docweave/internal/config"
	"github.com/dgnsrekt/docweave/internal/convert"
	"github.com/dgnsrekt/docweave/internal/frontier"
	"github.com/dgnsrekt/docweave/internal/robots"
	"github.com/dgnsrekt/docweave/internal/tabs"
)

const (
	pageStatusSaved  = "saved"
	pageStatusRobots = "skipped_robots"
	pageStatusFailed = "failed"
)

// PageSession is the per-tab browser surface the runner drives.
type PageSession interface {
	ID() string
	URL() string
	Navigate(url string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Eval(ctx context.Context, script string, out any) error
	Poll(ctx context.Context, expr string, timeout time.Duration) error
	Close()
}

// SessionOpener opens a fresh page session per crawled URL.
type SessionOpener interface {
	NewSession(ctx context.Context, id string) (PageSession, error)
}

// RobotsPolicy answers allow/delay queries per URL.
type RobotsPolicy interface {
	Allowed(pageURL string) robots.Verdict
}

// Throttle paces requests per domain.
type Throttle interface {
	Wait(ctx context.Context, pageURL string, robotsDelay time.Duration) (time.Duration, error)
}

// DocumentWriter persists one merged document and returns where it landed.
type DocumentWriter interface {
	Save(pageURL, document string) (string, error)
}

// ReportSink receives one traversal record per finished page.
type ReportSink interface {
	Write(record any) error
}

// traversalRecord is the JSONL shape written per page.
type traversalRecord struct {
	URL        string      `json:"url"`
	Status     string      `json:"status"`
	Path       string      `json:"path,omitempty"`
	Report     tabs.Report `json:"report"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Runner drains the frontier with bounded concurrency, pushing every page
// through robots, throttling, navigation, tab traversal, and persistence.
type Runner struct {
	cfg       *config.Config
	opener    SessionOpener
	robots    RobotsPolicy
	throttle  Throttle
	conv      *convert.Converter
	traverser *tabs.Traverser
	writer    DocumentWriter
	reports   ReportSink
	queue     *frontier.Queue
	log       *slog.Logger
	stats     *stats
}

func NewRunner(
	cfg *config.Config,
	opener SessionOpener,
	robotsPolicy RobotsPolicy,
	throttle Throttle,
	writer DocumentWriter,
	reports ReportSink,
	log *slog.Logger,
) *Runner {
	if log == nil {
		log = slog.Default()
	}
	conv := &convert.Converter{UseReadability: cfg.Tabs.ReadabilityIsolation}

	traverser := tabs.NewTraverser(tabOptions(cfg), conv, log)
	if !cfg.Tabs.HeuristicFallback {
		traverser.Fallback = tabs.NoFallback{}
	}

	return &Runner{
		cfg:       cfg,
		opener:    opener,
		robots:    robotsPolicy,
		throttle:  throttle,
		conv:      conv,
		traverser: traverser,
		writer:    writer,
		reports:   reports,
		queue:     frontier.NewQueue(cfg.ScopeURL()),
		log:       log,
		stats:     newStats(),
	}
}

func tabOptions(cfg *config.Config) tabs.Options {
	opts := tabs.DefaultOptions()
	opts.MaxGroupsPerPage = cfg.Tabs.MaxGroups
	opts.MaxTabsPerGroup = cfg.Tabs.MaxTabsPerGroup
	opts.MaxTotalTabs = cfg.Tabs.MaxTotalTabs
	opts.ActivationTimeout = time.Duration(cfg.Tabs.WaitForActivationMS) * time.Millisecond
	opts.ContentChangeTimeout = time.Duration(cfg.Tabs.ContentChangeWaitMS) * time.Millisecond
	opts.ExtractionStrategy = tabs.Strategy(cfg.Tabs.ExtractionStrategy)
	opts.HeadingTemplate = cfg.Tabs.HeadingTemplate
	return opts
}

// Run drains the frontier starting from the seed URL until the queue is
// empty, the page budget is spent, or ctx is cancelled. It returns the
// final counter snapshot.
func (r *Runner) Run(ctx context.Context) Snapshot {
	seed := frontier.Normalize(r.cfg.Crawl.SeedURL, "")
	if !r.queue.Add(seed, "") {
		r.log.Error("seed URL rejected by frontier", "seed", r.cfg.Crawl.SeedURL)
		return r.stats.snapshot(0)
	}

	processed := 0
	for processed < r.cfg.Crawl.MaxPages && ctx.Err() == nil {
		batchSize := r.cfg.Crawl.Concurrency
		if remaining := r.cfg.Crawl.MaxPages - processed; remaining < batchSize {
			batchSize = remaining
		}
		batch := r.queue.NextBatch(batchSize)
		if len(batch) == 0 {
			break
		}
		processed += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Crawl.Concurrency)
		for _, pageURL := range batch {
			g.Go(func() error {
				r.processPage(gctx, pageURL)
				return nil
			})
		}
		g.Wait()
	}

	return r.stats.snapshot(r.queue.Pending())
}

func (r *Runner) processPage(ctx context.Context, pageURL string) {
	r.stats.pageAttempted()
	rec := PageRecord{URL: pageURL}
	var report tabs.Report

	defer func() {
		rec.FinishedAt = time.Now()
		r.stats.pageFinished(rec)
		if r.reports != nil {
			r.reports.Write(traversalRecord{
				URL:        pageURL,
				Status:     rec.Status,
				Path:       rec.Path,
				Report:     report,
				FinishedAt: rec.FinishedAt,
			})
		}
	}()

	var robotsDelay time.Duration
	if r.cfg.Crawl.RespectRobots {
		verdict := r.robots.Allowed(pageURL)
		if !verdict.Allowed {
			rec.Status = pageStatusRobots
			r.log.Info("page skipped by robots.txt", "url", pageURL)
			return
		}
		robotsDelay = verdict.CrawlDelay
	}

	waited, err := r.throttle.Wait(ctx, pageURL, robotsDelay)
	if err != nil {
		rec.Status = pageStatusFailed
		r.log.Debug("throttle wait aborted", "url", pageURL, "error", err)
		return
	}
	if waited > 0 {
		r.log.Debug("throttled before visit", "url", pageURL, "waited_ms", waited.Milliseconds())
	}

	sess, err := r.opener.NewSession(ctx, uuid.NewString())
	if err != nil {
		rec.Status = pageStatusFailed
		r.log.Error("failed to open page session", "url", pageURL, "error", err)
		return
	}
	defer sess.Close()

	if err := sess.Navigate(pageURL, r.cfg.PageTimeout()); err != nil {
		rec.Status = pageStatusFailed
		r.log.Warn("navigation failed", "url", pageURL, "error", err)
		return
	}

	pageHTML, err := sess.HTML(ctx)
	if err != nil {
		rec.Status = pageStatusFailed
		r.log.Warn("failed to capture page HTML", "url", pageURL, "error", err)
		return
	}

	baseline, links, err := r.conv.Page(pageHTML, pageURL)
	if err != nil {
		rec.Status = pageStatusFailed
		r.log.Warn("page conversion failed", "url", pageURL, "error", err)
		return
	}

	document := baseline
	if r.cfg.Tabs.Enabled {
		document, report = r.traverser.Traverse(ctx, sess, baseline)
		rec.TabGroups = len(report.Groups)
		rec.TabsActivated = report.TabsActivated
		rec.TabsFailed = report.TabsFailed
	}

	path, err := r.writer.Save(pageURL, document)
	if err != nil {
		rec.Status = pageStatusFailed
		r.log.Error("failed to persist document", "url", pageURL, "error", err)
		return
	}
	rec.Path = path
	rec.Status = pageStatusSaved

	added := r.queue.AddAll(links, pageURL)
	added += r.queue.AddAll(report.Links, pageURL)

	r.log.Info("page saved",
		"url", pageURL,
		"path", path,
		"tab_groups", rec.TabGroups,
		"tabs_activated", rec.TabsActivated,
		"links_enqueued", added,
	)
}

// Stats returns a point-in-time copy of the crawl counters.
func (r *Runner) Stats() Snapshot {
	return r.stats.snapshot(r.queue.Pending())
}

// RecentPages lists the most recently finished pages, newest first.
func (r *Runner) RecentPages(limit int) []PageRecord {
	return r.stats.recentPages(limit)
}
