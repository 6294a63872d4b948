package browser

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Manager holds the shared allocator for one browser and hands out
// per-page sessions. Each session is a dedicated tab.
type Manager struct {
	cdpURL      string
	userAgent   string
	evalTimeout time.Duration

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewManager(cdpURL string, evalTimeout time.Duration) *Manager {
	if evalTimeout <= 0 {
		evalTimeout = 15 * time.Second
	}
	return &Manager{cdpURL: cdpURL, evalTimeout: evalTimeout}
}

// SetUserAgent overrides the user agent on every tab opened after the call.
func (m *Manager) SetUserAgent(ua string) {
	m.userAgent = ua
}

// Connect attaches to the browser's CDP endpoint and verifies it responds.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}
	slog.Info("browser connect start", "cdp_url", m.cdpURL)

	m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cdpURL)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

	runCtx, cancel := context.WithTimeout(m.browserCtx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx); err != nil {
		m.Close()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	slog.Info("browser connect ok", "cdp_url", m.cdpURL)
	return nil
}

func (m *Manager) Close() error {
	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
	}
	return nil
}

// Session is one browser tab bound to one page URL. The session is owned
// exclusively by its page task; nothing else may act on the tab while the
// task holds it.
type Session struct {
	id          string
	url         string
	ctx         context.Context
	cancel      context.CancelFunc
	evalTimeout time.Duration
	done        chan struct{}
}

// NewSession opens a fresh tab. The tab is torn down when Close is called
// or when pageCtx is cancelled, whichever comes first.
func (m *Manager) NewSession(pageCtx context.Context, id string) (*Session, error) {
	if m.browserCtx == nil {
		return nil, newError(CodeCDPUnavailable, "manager not connected", nil)
	}
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	if m.userAgent != "" {
		if err := chromedp.Run(tabCtx, emulation.SetUserAgentOverride(m.userAgent)); err != nil {
			cancel()
			return nil, newError(CodeCDPUnavailable, "user agent override failed", err)
		}
	}
	s := &Session{
		id:          id,
		ctx:         tabCtx,
		cancel:      cancel,
		evalTimeout: m.evalTimeout,
		done:        make(chan struct{}),
	}
	go func() {
		select {
		case <-pageCtx.Done():
			s.cancel()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Session) ID() string  { return s.id }
func (s *Session) URL() string { return s.url }

// Close releases the tab. Safe to call more than once.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.cancel()
}

// Navigate loads url and waits for the document body to exist.
func (s *Session) Navigate(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if IsSessionLost(err) {
			return newError(CodeSessionLost, "session lost during navigation", err)
		}
		return newError(CodeNavFailure, "navigate "+url, err)
	}
	s.url = url
	return nil
}

// Eval runs an envelope-wrapped script (see WrapEval) in the page and
// decodes its data payload into out. Script failures surface as coded errors.
func (s *Session) Eval(ctx context.Context, script string, out any) error {
	evalCtx, cancel := context.WithTimeout(s.ctx, s.evalTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-evalCtx.Done():
		}
	}()

	var raw string
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &raw)); err != nil {
		if IsSessionLost(err) {
			return newError(CodeSessionLost, "session lost during eval", err)
		}
		if evalCtx.Err() == context.DeadlineExceeded {
			return newError(CodeEvalTimeout, "eval timed out", err)
		}
		return newError(CodeEvalFailure, "eval failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "eval returned malformed envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "eval data decode failed", err)
	}
	return nil
}

// Poll suspends until the bare JS expression expr evaluates truthy or
// timeout elapses. Timeout surfaces as CodeEvalTimeout.
func (s *Session) Poll(ctx context.Context, expr string, timeout time.Duration) error {
	pollCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-pollCtx.Done():
		}
	}()

	var res bool
	err := chromedp.Run(pollCtx, chromedp.Poll(expr, &res, chromedp.WithPollingInterval(100*time.Millisecond)))
	if err == nil {
		return nil
	}
	if IsSessionLost(err) && pollCtx.Err() != context.DeadlineExceeded {
		return newError(CodeSessionLost, "session lost during wait", err)
	}
	return newError(CodeEvalTimeout, "condition not met before timeout", err)
}

// HTML returns the full serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	htmlCtx, cancel := context.WithTimeout(s.ctx, s.evalTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-htmlCtx.Done():
		}
	}()

	var html string
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		if IsSessionLost(err) {
			return "", newError(CodeSessionLost, "session lost reading document", err)
		}
		return "", newError(CodeEvalFailure, "read document failed", err)
	}
	return html, nil
}
