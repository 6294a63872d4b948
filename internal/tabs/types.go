package tabs

import (
	"context"
	"time"
)

// Session is the slice of the live page the engine is allowed to touch:
// an evaluate primitive returning structured results and a wait primitive.
// Activation clicks are dispatched through Eval, so discovery itself stays
// read-only and the whole engine can run against a scripted fake.
type Session interface {
	URL() string
	Eval(ctx context.Context, script string, out any) error
	Poll(ctx context.Context, expr string, timeout time.Duration) error
}

// Converter turns a captured HTML fragment into document text plus the
// hyperlinks found inside it. The same converter produces the baseline
// document and every per-tab artifact.
type Converter interface {
	Fragment(html string) (markdown string, links []string, err error)
}

// TabState tracks a tab through one page pass. Active and Failed are
// terminal; there is no per-tab retry within a pass.
type TabState int

const (
	TabInactive TabState = iota
	TabActivating
	TabActive
	TabFailed
)

func (s TabState) String() string {
	switch s {
	case TabInactive:
		return "inactive"
	case TabActivating:
		return "activating"
	case TabActive:
		return "active"
	case TabFailed:
		return "failed"
	}
	return "unknown"
}

// Tab is one selectable control and its correlated panel. Paths address the
// elements inside the current page load only.
type Tab struct {
	Label     string
	Path      string
	PanelPath string
	Selected  bool
	State     TabState
}

// TabGroup is a cluster of mutually exclusive tabs sharing one selection
// behavior. Groups always hold at least two tabs.
type TabGroup struct {
	ID     string
	Title  string
	Method string // "structural" or the fallback strategy name
	Tabs   []Tab
}

// Strategy selects how artifact content is captured.
type Strategy string

const (
	StrategyPanelScoped Strategy = "panel_scoped"
	StrategyWholePage   Strategy = "whole_page"
)

// Artifact is one immutable per-tab capture.
type Artifact struct {
	GroupID    string
	GroupTitle string
	TabLabel   string
	Ordinal    int
	Content    string
	Links      []string
	Strategy   Strategy
}

// Options carries the per-page traversal configuration. Values are passed
// in explicitly; the engine reads no ambient state.
type Options struct {
	MaxGroupsPerPage     int
	MaxTabsPerGroup      int
	MaxTotalTabs         int
	ActivationTimeout    time.Duration
	ContentChangeTimeout time.Duration
	ExtractionStrategy   Strategy
	HeadingTemplate      string
	MaxLabelLength       int
}

// DefaultOptions mirrors the defaults of the configuration layer.
func DefaultOptions() Options {
	return Options{
		MaxGroupsPerPage:     10,
		MaxTabsPerGroup:      5,
		MaxTotalTabs:         40,
		ActivationTimeout:    4 * time.Second,
		ContentChangeTimeout: 1500 * time.Millisecond,
		ExtractionStrategy:   StrategyPanelScoped,
		HeadingTemplate:      defaultHeadingTemplate,
		MaxLabelLength:       40,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxGroupsPerPage < 1 {
		o.MaxGroupsPerPage = d.MaxGroupsPerPage
	}
	if o.MaxTabsPerGroup < 1 {
		o.MaxTabsPerGroup = d.MaxTabsPerGroup
	}
	if o.MaxTotalTabs < 1 {
		o.MaxTotalTabs = d.MaxTotalTabs
	}
	if o.ActivationTimeout < 500*time.Millisecond {
		o.ActivationTimeout = 500 * time.Millisecond
	}
	if o.ContentChangeTimeout <= 0 {
		o.ContentChangeTimeout = d.ContentChangeTimeout
	}
	if o.ExtractionStrategy != StrategyWholePage {
		o.ExtractionStrategy = StrategyPanelScoped
	}
	if o.HeadingTemplate == "" {
		o.HeadingTemplate = d.HeadingTemplate
	}
	if o.MaxLabelLength < 1 {
		o.MaxLabelLength = d.MaxLabelLength
	}
	return o
}

// TabOutcome records one tab's terminal state for observability.
type TabOutcome struct {
	Label     string `json:"label"`
	State     string `json:"state"`
	Extracted bool   `json:"extracted"`
}

// GroupReport summarizes one group's traversal.
type GroupReport struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Method string       `json:"method"`
	Tabs   []TabOutcome `json:"tabs"`
}

// Report is the traversal metadata handed to the caller alongside the
// merged document.
type Report struct {
	Groups        []GroupReport `json:"groups,omitempty"`
	TabsActivated int           `json:"tabs_activated"`
	TabsFailed    int           `json:"tabs_failed"`
	Artifacts     int           `json:"artifacts"`
	Truncated     bool          `json:"truncated,omitempty"`
	SessionLost   bool          `json:"session_lost,omitempty"`

	// Links holds hyperlinks harvested from merged artifacts so callers
	// can feed panel-only links back into their crawl.
	Links []string `json:"-"`
}
