package tabs

import (
	"context"
	"errors"

	"github.com/dgnsrekt/docweave/internal/browser"
)

// ErrEmptyArtifact is returned when a capture converts to nothing worth
// keeping. The caller drops the artifact and moves on.
var ErrEmptyArtifact = errors.New("extracted content is empty")

// Extractor captures a content artifact for a confirmed-active tab.
type Extractor struct {
	Strategy Strategy
	Conv     Converter
}

type htmlResult struct {
	HTML string `json:"html"`
}

// Extract captures either the panel subtree (default) or the whole current
// document, converts it, and freezes the result into an Artifact.
func (e *Extractor) Extract(ctx context.Context, sess Session, group TabGroup, tab Tab, ordinal int) (Artifact, error) {
	script := panelHTMLScript(tab.PanelPath)
	if e.Strategy == StrategyWholePage {
		script = documentHTMLScript()
	}

	var res htmlResult
	if err := sess.Eval(ctx, script, &res); err != nil {
		return Artifact{}, err
	}
	if res.HTML == "" {
		return Artifact{}, ErrEmptyArtifact
	}

	markdown, links, err := e.Conv.Fragment(res.HTML)
	if err != nil {
		return Artifact{}, err
	}
	if markdown == "" && len(links) == 0 {
		return Artifact{}, ErrEmptyArtifact
	}

	return Artifact{
		GroupID:    group.ID,
		GroupTitle: group.Title,
		TabLabel:   tab.Label,
		Ordinal:    ordinal,
		Content:    markdown,
		Links:      links,
		Strategy:   e.Strategy,
	}, nil
}

// IsSessionLost reports whether an extraction error means the page is gone.
func IsSessionLost(err error) bool { return browser.IsSessionLost(err) }
