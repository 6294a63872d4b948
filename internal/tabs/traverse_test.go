package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSession scripts the evaluate/act contracts against a static fixture.
type fakeSession struct {
	url        string
	structural []rawGroup
	heuristic  []rawGroup

	panelHTML  map[string]string // panel path -> captured html
	pageHTML   string
	signatures map[string]string // panel path -> pre-activation signature
	sigChanges map[string]bool   // panel path -> signature changes after activation
	failSelect map[string]bool   // tab path -> stage-a wait times out
	lostOnPath string            // tab path whose click kills the session

	clicks []string
}

func (f *fakeSession) URL() string { return f.url }

func (f *fakeSession) respond(out any, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeSession) matchPath(script string, paths map[string]string) (string, string) {
	for path, v := range paths {
		if strings.Contains(script, path) {
			return path, v
		}
	}
	return "", ""
}

func (f *fakeSession) Eval(_ context.Context, script string, out any) error {
	switch {
	case strings.Contains(script, `[role="tablist"]`):
		return f.respond(out, discoverResult{Groups: f.structural})
	case strings.Contains(script, "_clickableLeaf"):
		return f.respond(out, discoverResult{Groups: f.heuristic})
	case strings.Contains(script, "{signature:"):
		_, sig := f.matchPath(script, f.signatures)
		return f.respond(out, signatureResult{Signature: sig})
	case strings.Contains(script, "{clicked:"):
		for _, g := range append(f.structural, f.heuristic...) {
			for _, t := range g.Tabs {
				if strings.Contains(script, t.Path) {
					if t.Path == f.lostOnPath {
						return errors.New("target closed")
					}
					f.clicks = append(f.clicks, t.Path)
					return f.respond(out, clickResult{Clicked: true})
				}
			}
		}
		return f.respond(out, clickResult{Clicked: false})
	case strings.Contains(script, "documentElement"):
		return f.respond(out, htmlResult{HTML: f.pageHTML})
	case strings.Contains(script, "{html:"):
		_, html := f.matchPath(script, f.panelHTML)
		return f.respond(out, htmlResult{HTML: html})
	}
	return errors.New("fake session: unrecognized script")
}

func (f *fakeSession) Poll(_ context.Context, expr string, _ time.Duration) error {
	if strings.Contains(expr, "_sig(panel) !==") {
		for path, changes := range f.sigChanges {
			if strings.Contains(expr, path) {
				if changes {
					return nil
				}
				return errors.New("condition not met before timeout")
			}
		}
		return errors.New("condition not met before timeout")
	}
	if strings.Contains(expr, "return _isSelected(el);") {
		for _, g := range append(f.structural, f.heuristic...) {
			for _, t := range g.Tabs {
				if strings.Contains(expr, t.Path) {
					if f.failSelect[t.Path] {
						return errors.New("condition not met before timeout")
					}
					return nil
				}
			}
		}
		return nil
	}
	return errors.New("condition not met before timeout")
}

// passthroughConverter returns fragments untouched; fixtures hold plain text.
type passthroughConverter struct{}

func (passthroughConverter) Fragment(html string) (string, []string, error) {
	return strings.TrimSpace(html), nil, nil
}

// recordHandler counts log records per level+message for warning assertions.
type recordHandler struct {
	mu       sync.Mutex
	messages []string
	levels   []slog.Level
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	h.levels = append(h.levels, r.Level)
	return nil
}
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) countWarn(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i, m := range h.messages {
		if m == msg && h.levels[i] == slog.LevelWarn {
			n++
		}
	}
	return n
}

func pipUvSession() *fakeSession {
	return &fakeSession{
		url: "https://docs.example.com/install",
		structural: []rawGroup{{
			Title: "Install",
			Tabs: []rawTab{
				{Label: "pip", Path: "/html[1]/body[1]/div[1]/button[1]", PanelPath: "/html[1]/body[1]/div[1]/div[1]", Selected: true},
				{Label: "uv", Path: "/html[1]/body[1]/div[1]/button[2]", PanelPath: "/html[1]/body[1]/div[1]/div[2]", Selected: false},
			},
		}},
		panelHTML: map[string]string{
			"/html[1]/body[1]/div[1]/div[1]": "pip install -U langchain",
			"/html[1]/body[1]/div[1]/div[2]": "uv add langchain",
		},
		signatures: map[string]string{
			"/html[1]/body[1]/div[1]/div[1]": "111:24",
			"/html[1]/body[1]/div[1]/div[2]": "222:16",
		},
		sigChanges: map[string]bool{
			"/html[1]/body[1]/div[1]/div[1]": true,
			"/html[1]/body[1]/div[1]/div[2]": true,
		},
		failSelect: map[string]bool{},
	}
}

func newTestTraverser(opts Options) (*Traverser, *recordHandler) {
	h := &recordHandler{}
	return NewTraverser(opts, passthroughConverter{}, slog.New(h)), h
}

func TestNoGroupsReturnsBaselineUnchanged(t *testing.T) {
	sess := &fakeSession{url: "https://docs.example.com/plain"}
	tr, _ := newTestTraverser(DefaultOptions())

	baseline := "# Plain page\n\nNothing tabbed here."
	doc, report := tr.Traverse(context.Background(), sess, baseline)

	if doc != baseline {
		t.Fatalf("document changed for tabless page:\n%s", doc)
	}
	if len(sess.clicks) != 0 {
		t.Fatalf("dispatched %d activation actions on a tabless page", len(sess.clicks))
	}
	if report.TabsActivated != 0 || report.TabsFailed != 0 || report.Artifacts != 0 {
		t.Fatalf("unexpected report for tabless page: %+v", report)
	}
}

func TestPipUvFixtureMergesBothTabs(t *testing.T) {
	sess := pipUvSession()
	tr, _ := newTestTraverser(DefaultOptions())

	baseline := "# Install\n\npip install -U langchain"
	doc, report := tr.Traverse(context.Background(), sess, baseline)

	if !strings.Contains(doc, "pip install -U langchain") {
		t.Fatalf("baseline pip content missing:\n%s", doc)
	}
	if !strings.Contains(doc, "uv add langchain") {
		t.Fatalf("uv tab content missing:\n%s", doc)
	}
	heading := "#### [Tab: Install - uv]"
	idx := strings.Index(doc, heading)
	if idx == -1 {
		t.Fatalf("uv heading %q missing:\n%s", heading, doc)
	}
	if strings.Index(doc, "pip install") > idx {
		t.Fatalf("baseline must precede appended tab content:\n%s", doc)
	}
	if strings.Index(doc, "uv add langchain") < idx {
		t.Fatalf("uv content must follow its heading:\n%s", doc)
	}
	if report.Artifacts != 1 || report.TabsActivated != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDefaultTabNeverReactivated(t *testing.T) {
	sess := pipUvSession()
	tr, _ := newTestTraverser(DefaultOptions())

	_, report := tr.Traverse(context.Background(), sess, "base")

	if len(sess.clicks) != 1 {
		t.Fatalf("dispatched %d clicks for a 2-tab group, want 1 (default never re-clicked)", len(sess.clicks))
	}
	if sess.clicks[0] != "/html[1]/body[1]/div[1]/button[2]" {
		t.Fatalf("clicked wrong control: %s", sess.clicks[0])
	}
	for _, g := range report.Groups {
		for _, tab := range g.Tabs {
			if tab.State != "active" && tab.State != "failed" {
				t.Fatalf("tab %q has non-terminal state %q", tab.Label, tab.State)
			}
		}
	}
}

func TestTraversalIsIdempotentAcrossRuns(t *testing.T) {
	run := func() (string, Report) {
		tr, _ := newTestTraverser(DefaultOptions())
		return tr.Traverse(context.Background(), pipUvSession(), "base")
	}
	doc1, report1 := run()
	doc2, report2 := run()

	if doc1 != doc2 {
		t.Fatalf("documents differ across runs:\n%s\n---\n%s", doc1, doc2)
	}
	if report1.TabsActivated != report2.TabsActivated || report1.TabsFailed != report2.TabsFailed {
		t.Fatalf("outcomes differ across runs: %+v vs %+v", report1, report2)
	}
}

func TestUnchangedSignatureIsNotFailure(t *testing.T) {
	sess := pipUvSession()
	sess.sigChanges["/html[1]/body[1]/div[1]/div[2]"] = false

	opts := DefaultOptions()
	opts.ActivationTimeout = 600 * time.Millisecond
	opts.ContentChangeTimeout = 100 * time.Millisecond
	tr, _ := newTestTraverser(opts)

	start := time.Now()
	doc, report := tr.Traverse(context.Background(), sess, "base")
	elapsed := time.Since(start)

	if report.TabsFailed != 0 {
		t.Fatalf("unchanged content marked a tab failed: %+v", report)
	}
	if !strings.Contains(doc, "uv add langchain") {
		t.Fatalf("artifact missing despite unchanged signature:\n%s", doc)
	}
	// Fake waits return immediately; the bound here is generous on purpose.
	bound := 2 * (opts.ActivationTimeout + opts.ContentChangeTimeout)
	if elapsed > bound {
		t.Fatalf("traversal took %v, exceeds %v bound", elapsed, bound)
	}
}

func TestActivationTimeoutMarksTabFailedAndContinues(t *testing.T) {
	sess := &fakeSession{
		url: "https://docs.example.com/multi",
		structural: []rawGroup{{
			Title: "Run",
			Tabs: []rawTab{
				{Label: "npm", Path: "/p/b[1]", PanelPath: "/p/d[1]", Selected: true},
				{Label: "yarn", Path: "/p/b[2]", PanelPath: "/p/d[2]"},
				{Label: "pnpm", Path: "/p/b[3]", PanelPath: "/p/d[3]"},
			},
		}},
		panelHTML:  map[string]string{"/p/d[2]": "yarn run build", "/p/d[3]": "pnpm run build"},
		signatures: map[string]string{"/p/d[2]": "s2", "/p/d[3]": "s3"},
		sigChanges: map[string]bool{"/p/d[2]": true, "/p/d[3]": true},
		failSelect: map[string]bool{"/p/b[2]": true},
	}
	tr, h := newTestTraverser(DefaultOptions())

	doc, report := tr.Traverse(context.Background(), sess, "base")

	if report.TabsFailed != 1 || report.TabsActivated != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if strings.Contains(doc, "yarn run build") {
		t.Fatalf("failed tab's content must be omitted entirely:\n%s", doc)
	}
	if strings.Contains(doc, "[Tab: Run - yarn]") {
		t.Fatalf("failed tab must get no heading or placeholder:\n%s", doc)
	}
	if !strings.Contains(doc, "pnpm run build") {
		t.Fatalf("traversal did not continue past the failed tab:\n%s", doc)
	}
	if h.countWarn("tab activation timed out") != 1 {
		t.Fatalf("want exactly one activation timeout warning, got %d", h.countWarn("tab activation timed out"))
	}
}

func TestTabCapKeepsEarliestAndWarnsOnce(t *testing.T) {
	group := rawGroup{Title: "Langs"}
	sess := &fakeSession{
		url:        "https://docs.example.com/langs",
		panelHTML:  map[string]string{},
		signatures: map[string]string{},
		sigChanges: map[string]bool{},
		failSelect: map[string]bool{},
	}
	for _, name := range []string{"go", "rust", "python", "ruby", "java", "zig", "c"} {
		tabPath := "/l/b[" + name + "]"
		panelPath := "/l/d[" + name + "]"
		group.Tabs = append(group.Tabs, rawTab{Label: name, Path: tabPath, PanelPath: panelPath, Selected: name == "go"})
		sess.panelHTML[panelPath] = name + " example"
		sess.signatures[panelPath] = "sig-" + name
		sess.sigChanges[panelPath] = true
	}
	sess.structural = []rawGroup{group}

	opts := DefaultOptions()
	opts.MaxTabsPerGroup = 3
	tr, h := newTestTraverser(opts)

	doc, report := tr.Traverse(context.Background(), sess, "base")

	if !report.Truncated {
		t.Fatal("truncation not reported")
	}
	if h.countWarn("tab discovery truncated") != 1 {
		t.Fatalf("want exactly one truncation warning, got %d", h.countWarn("tab discovery truncated"))
	}
	// go is default; rust and python are the only activations.
	if len(sess.clicks) != 2 {
		t.Fatalf("dispatched %d clicks, want 2", len(sess.clicks))
	}
	for _, kept := range []string{"rust example", "python example"} {
		if !strings.Contains(doc, kept) {
			t.Fatalf("capped traversal missing %q:\n%s", kept, doc)
		}
	}
	for _, dropped := range []string{"ruby example", "java example", "zig example", "c example"} {
		if strings.Contains(doc, dropped) {
			t.Fatalf("tab beyond cap leaked into document: %q", dropped)
		}
	}
}

func TestTotalTabBudgetLeavesUnvisitedTabsUntouched(t *testing.T) {
	sess := &fakeSession{
		url: "https://docs.example.com/budget",
		structural: []rawGroup{
			{
				Title: "Install",
				Tabs: []rawTab{
					{Label: "pip", Path: "/g1/b[1]", PanelPath: "/g1/d[1]", Selected: true},
					{Label: "uv", Path: "/g1/b[2]", PanelPath: "/g1/d[2]"},
				},
			},
			{
				Title: "OS",
				Tabs: []rawTab{
					{Label: "linux", Path: "/g2/b[1]", PanelPath: "/g2/d[1]", Selected: true},
					{Label: "macos", Path: "/g2/b[2]", PanelPath: "/g2/d[2]"},
				},
			},
		},
		panelHTML: map[string]string{
			"/g1/d[2]": "uv add langchain",
			"/g2/d[2]": "brew install langchain",
		},
		signatures: map[string]string{"/g1/d[2]": "s1", "/g2/d[2]": "s2"},
		sigChanges: map[string]bool{"/g1/d[2]": true, "/g2/d[2]": true},
		failSelect: map[string]bool{},
	}

	opts := DefaultOptions()
	opts.MaxTotalTabs = 1
	tr, _ := newTestTraverser(opts)

	doc, report := tr.Traverse(context.Background(), sess, "base")

	if len(sess.clicks) != 1 {
		t.Fatalf("dispatched %d clicks, want 1 with a budget of 1", len(sess.clicks))
	}
	if report.TabsActivated != 1 || report.TabsFailed != 0 {
		t.Fatalf("budget exhaustion is not a failure: %+v", report)
	}
	if !report.Truncated {
		t.Fatal("exhausted budget must be reported as truncation")
	}
	if strings.Contains(doc, "brew install langchain") {
		t.Fatalf("tab beyond budget leaked into document:\n%s", doc)
	}

	// Unvisited tabs keep their discovered state: the second group's
	// default stays active, its sibling stays inactive.
	if len(report.Groups) != 2 || len(report.Groups[1].Tabs) != 2 {
		t.Fatalf("unexpected group reports: %+v", report.Groups)
	}
	outcomes := map[string]string{}
	for _, o := range report.Groups[1].Tabs {
		outcomes[o.Label] = o.State
	}
	if outcomes["linux"] != "active" {
		t.Fatalf("never-clicked default reported %q, want active", outcomes["linux"])
	}
	if outcomes["macos"] != "inactive" {
		t.Fatalf("unvisited tab reported %q, want inactive", outcomes["macos"])
	}
}

func TestSessionLostReturnsPartialMerge(t *testing.T) {
	sess := &fakeSession{
		url: "https://docs.example.com/lossy",
		structural: []rawGroup{{
			Title: "Install",
			Tabs: []rawTab{
				{Label: "pip", Path: "/s/b[1]", PanelPath: "/s/d[1]", Selected: true},
				{Label: "uv", Path: "/s/b[2]", PanelPath: "/s/d[2]"},
				{Label: "conda", Path: "/s/b[3]", PanelPath: "/s/d[3]"},
			},
		}},
		panelHTML:  map[string]string{"/s/d[2]": "uv add langchain", "/s/d[3]": "conda install langchain"},
		signatures: map[string]string{"/s/d[2]": "s2", "/s/d[3]": "s3"},
		sigChanges: map[string]bool{"/s/d[2]": true, "/s/d[3]": true},
		failSelect: map[string]bool{},
		lostOnPath: "/s/b[3]",
	}
	tr, h := newTestTraverser(DefaultOptions())

	doc, report := tr.Traverse(context.Background(), sess, "base")

	if !report.SessionLost {
		t.Fatalf("session loss not reported: %+v", report)
	}
	if !strings.Contains(doc, "uv add langchain") {
		t.Fatalf("artifacts captured before the loss must survive:\n%s", doc)
	}
	if strings.Contains(doc, "conda install langchain") {
		t.Fatalf("content from after the loss must not appear:\n%s", doc)
	}
	if h.countWarn("tab traversal aborted, session lost") != 1 {
		t.Fatalf("want exactly one session-lost warning, got %d",
			h.countWarn("tab traversal aborted, session lost"))
	}
}

func TestHeuristicFallbackOnlyWhenStructuralEmpty(t *testing.T) {
	sess := &fakeSession{
		url: "https://docs.example.com/custom",
		heuristic: []rawGroup{{
			Title: "Shells",
			Tabs: []rawTab{
				{Label: "bash", Path: "/h/b[1]", PanelPath: "/h/d[1]", Selected: true},
				{Label: "fish", Path: "/h/b[2]", PanelPath: "/h/d[1]"},
			},
		}},
		panelHTML:  map[string]string{"/h/d[1]": "set -x PATH"},
		signatures: map[string]string{"/h/d[1]": "s1"},
		sigChanges: map[string]bool{"/h/d[1]": true},
		failSelect: map[string]bool{},
	}
	tr, _ := newTestTraverser(DefaultOptions())

	_, report := tr.Traverse(context.Background(), sess, "base")

	if len(report.Groups) != 1 || report.Groups[0].Method != "heuristic" {
		t.Fatalf("expected one heuristic group, got %+v", report.Groups)
	}

	// With structural groups present, the fallback must not run.
	sess2 := pipUvSession()
	sess2.heuristic = sess.heuristic
	tr2, _ := newTestTraverser(DefaultOptions())
	_, report2 := tr2.Traverse(context.Background(), sess2, "base")
	for _, g := range report2.Groups {
		if g.Method == "heuristic" {
			t.Fatalf("heuristic pass ran despite structural groups: %+v", report2.Groups)
		}
	}
}

func TestWholePageStrategyCapturesDocument(t *testing.T) {
	sess := pipUvSession()
	sess.pageHTML = "chrome header\nuv add langchain\nchrome footer"

	opts := DefaultOptions()
	opts.ExtractionStrategy = StrategyWholePage
	tr, _ := newTestTraverser(opts)

	doc, _ := tr.Traverse(context.Background(), sess, "base")

	if !strings.Contains(doc, "chrome header\nuv add langchain") {
		t.Fatalf("whole-page strategy did not capture the full document:\n%s", doc)
	}
}
