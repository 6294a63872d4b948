package tabs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/docweave/internal/browser"
)

// FallbackStrategy produces the discovery script used when the structural
// pass finds nothing. Swappable so discovery accuracy can be tuned without
// touching activation or merging.
type FallbackStrategy interface {
	Name() string
	Script(opts Options) string
}

// HeuristicClusters is the default fallback: adjacent clickable leaves with
// short, punctuation-free labels under a common parent.
type HeuristicClusters struct{}

func (HeuristicClusters) Name() string { return "heuristic" }

func (HeuristicClusters) Script(opts Options) string {
	return discoverHeuristicScript(opts.MaxLabelLength, opts.MaxTabsPerGroup)
}

// NoFallback disables the fallback pass entirely; only explicit tablist
// markup is traversed.
type NoFallback struct{}

func (NoFallback) Name() string { return "none" }

func (NoFallback) Script(Options) string {
	return browser.WrapEval("return { groups: [] };")
}

// Discoverer scans the current DOM for tab/panel groups. It never returns
// an error: malformed candidates are dropped, and a page where nothing can
// be discovered simply yields an empty list.
type Discoverer struct {
	Fallback FallbackStrategy
}

type rawTab struct {
	Label     string `json:"label"`
	Path      string `json:"path"`
	PanelPath string `json:"panel_path"`
	Selected  bool   `json:"selected"`
}

type rawGroup struct {
	Title string   `json:"title"`
	Tabs  []rawTab `json:"tabs"`
}

type discoverResult struct {
	Groups []rawGroup `json:"groups"`
}

// Discover runs the structural pass and, only when it yields zero groups,
// the fallback pass. Results are capped deterministically; truncation is
// reported so the caller can log exactly one warning.
func (d *Discoverer) Discover(ctx context.Context, sess Session, opts Options, log *slog.Logger) ([]TabGroup, bool) {
	opts = opts.normalized()

	groups, err := d.runPass(ctx, sess, discoverStructuralScript(), "structural", opts, log)
	if err != nil {
		return nil, false
	}
	if len(groups) == 0 {
		fallback := d.Fallback
		if fallback == nil {
			fallback = HeuristicClusters{}
		}
		groups, err = d.runPass(ctx, sess, fallback.Script(opts), fallback.Name(), opts, log)
		if err != nil {
			return nil, false
		}
	}

	groups, truncated := capGroups(groups, opts)
	if truncated {
		log.Warn("tab discovery truncated",
			"url", sess.URL(),
			"max_groups", opts.MaxGroupsPerPage,
			"max_tabs_per_group", opts.MaxTabsPerGroup,
		)
	}
	return groups, truncated
}

func (d *Discoverer) runPass(ctx context.Context, sess Session, script, method string, opts Options, log *slog.Logger) ([]TabGroup, error) {
	var res discoverResult
	if err := sess.Eval(ctx, script, &res); err != nil {
		if browser.IsSessionLost(err) {
			log.Warn("tab discovery aborted, session lost", "url", sess.URL(), "error", err)
			return nil, err
		}
		log.Debug("tab discovery pass failed", "url", sess.URL(), "method", method, "error", err)
		return nil, nil
	}

	groups := make([]TabGroup, 0, len(res.Groups))
	for i, rg := range res.Groups {
		group, ok := buildGroup(rg, method, fmt.Sprintf("%s-%d", method, i+1))
		if !ok {
			log.Debug("tab group candidate dropped",
				"url", sess.URL(), "method", method, "title", rg.Title)
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// buildGroup validates one raw candidate. Singletons are not groups, and a
// tab without a correlated panel or a usable label makes the structure
// untrustworthy, so the whole candidate is dropped rather than guessed at.
func buildGroup(rg rawGroup, method, id string) (TabGroup, bool) {
	if len(rg.Tabs) < 2 {
		return TabGroup{}, false
	}
	tabs := make([]Tab, 0, len(rg.Tabs))
	for _, rt := range rg.Tabs {
		if rt.Label == "" || rt.Path == "" || rt.PanelPath == "" {
			return TabGroup{}, false
		}
		state := TabInactive
		if rt.Selected {
			state = TabActive
		}
		tabs = append(tabs, Tab{
			Label:     rt.Label,
			Path:      rt.Path,
			PanelPath: rt.PanelPath,
			Selected:  rt.Selected,
			State:     state,
		})
	}
	title := rg.Title
	if title == "" {
		title = "Tabs"
	}
	return TabGroup{ID: id, Title: title, Method: method, Tabs: tabs}, true
}

// capGroups keeps the earliest-in-DOM-order members within the configured
// limits.
func capGroups(groups []TabGroup, opts Options) ([]TabGroup, bool) {
	truncated := false
	if len(groups) > opts.MaxGroupsPerPage {
		groups = groups[:opts.MaxGroupsPerPage]
		truncated = true
	}
	for i := range groups {
		if len(groups[i].Tabs) > opts.MaxTabsPerGroup {
			groups[i].Tabs = groups[i].Tabs[:opts.MaxTabsPerGroup]
			truncated = true
		}
	}
	return groups, truncated
}
