package tabs

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
)

// Traverser composes discovery, activation, extraction, and merging into
// the single per-page entry point. It owns all error containment: no
// per-tab or per-group failure escapes Traverse, and a lost session yields
// whatever was merged so far.
type Traverser struct {
	Opts Options
	Conv Converter
	Log  *slog.Logger

	// Fallback overrides the heuristic discovery strategy; nil uses
	// HeuristicClusters.
	Fallback FallbackStrategy
}

func NewTraverser(opts Options, conv Converter, log *slog.Logger) *Traverser {
	if log == nil {
		log = slog.Default()
	}
	return &Traverser{Opts: opts.normalized(), Conv: conv, Log: log}
}

// Traverse discovers every tab group on the live page, activates each
// non-default tab once, captures its content, and merges everything into
// the baseline document. It returns the final document text and the
// traversal report; it never returns an error and never panics out of the
// engine.
func (t *Traverser) Traverse(ctx context.Context, sess Session, baseline string) (string, Report) {
	opts := t.Opts.normalized()
	log := t.Log

	var report Report

	discoverer := &Discoverer{Fallback: t.Fallback}
	groups, truncated := discoverer.Discover(ctx, sess, opts, log)
	report.Truncated = truncated
	if len(groups) == 0 {
		log.Debug("no tab groups discovered", "url", sess.URL())
		return strings.TrimSpace(baseline), report
	}

	controller := &Controller{
		ActivationTimeout:    opts.ActivationTimeout,
		ContentChangeTimeout: opts.ContentChangeTimeout,
	}
	extractor := &Extractor{Strategy: opts.ExtractionStrategy, Conv: t.Conv}
	merger := &Merger{HeadingTemplate: opts.HeadingTemplate}

	var artifacts []Artifact
	seen := make(map[string]bool)
	total := 0

groups:
	for gi := range groups {
		group := &groups[gi]
		groupReport := GroupReport{ID: group.ID, Title: group.Title, Method: group.Method}

		for ti := range group.Tabs {
			tab := &group.Tabs[ti]
			if total >= opts.MaxTotalTabs {
				// Budget spent: the tab keeps its discovered state and is
				// never counted as an activation failure.
				report.Truncated = true
				groupReport.Tabs = append(groupReport.Tabs, TabOutcome{Label: tab.Label, State: tab.State.String()})
				continue
			}

			wasDefault := tab.State == TabActive
			if err := controller.Activate(ctx, sess, tab, log); err != nil {
				// Session gone: keep what we have, surface one warning.
				report.SessionLost = true
				groupReport.Tabs = append(groupReport.Tabs, TabOutcome{Label: tab.Label, State: tab.State.String()})
				report.Groups = append(report.Groups, groupReport)
				log.Warn("tab traversal aborted, session lost",
					"url", sess.URL(), "group", group.ID, "tab", tab.Label, "error", err)
				break groups
			}

			outcome := TabOutcome{Label: tab.Label, State: tab.State.String()}
			switch {
			case wasDefault:
				// Baseline already holds the default tab's content.
			case tab.State == TabActive:
				total++
				report.TabsActivated++
				artifact, err := extractor.Extract(ctx, sess, *group, *tab, ti)
				switch {
				case err == nil:
					key := dedupKey(artifact)
					if seen[key] {
						log.Debug("duplicate tab capture skipped",
							"url", sess.URL(), "group", group.ID, "tab", tab.Label)
					} else {
						seen[key] = true
						artifacts = append(artifacts, artifact)
						outcome.Extracted = true
					}
				case IsSessionLost(err):
					report.SessionLost = true
					groupReport.Tabs = append(groupReport.Tabs, outcome)
					report.Groups = append(report.Groups, groupReport)
					log.Warn("tab traversal aborted, session lost",
						"url", sess.URL(), "group", group.ID, "tab", tab.Label, "error", err)
					break groups
				case errors.Is(err, ErrEmptyArtifact):
					log.Debug("empty tab capture dropped",
						"url", sess.URL(), "group", group.ID, "tab", tab.Label)
				default:
					log.Warn("tab extraction failed",
						"url", sess.URL(), "group", group.ID, "tab", tab.Label, "error", err)
				}
			case tab.State == TabFailed:
				total++
				report.TabsFailed++
			}
			groupReport.Tabs = append(groupReport.Tabs, outcome)
		}
		report.Groups = append(report.Groups, groupReport)
	}

	report.Artifacts = len(artifacts)
	for _, a := range artifacts {
		report.Links = append(report.Links, a.Links...)
	}
	return merger.Merge(baseline, artifacts), report
}

// dedupKey identifies one exact capture: same group, label, and content.
// Only true duplicates of the same capture are suppressed, never
// overlapping prose.
func dedupKey(a Artifact) string {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(a.Content))))
	return fmt.Sprintf("%s|%s|%x", a.GroupID, a.TabLabel, h.Sum64())
}
