package tabs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/docweave/internal/browser"
)

// Controller drives tab activation. Tabs are activated strictly in DOM
// order and groups strictly sequentially: every click mutates shared page
// state, so nothing here may run concurrently for one session.
type Controller struct {
	ActivationTimeout    time.Duration
	ContentChangeTimeout time.Duration
}

type signatureResult struct {
	Signature string `json:"signature"`
}

type clickResult struct {
	Clicked bool `json:"clicked"`
}

// Activate runs the activation protocol for one tab and records its
// terminal state on the tab. A returned error means the session itself is
// gone; tab-level failures are absorbed into TabFailed.
//
// Protocol: record the panel signature, dispatch the click, wait for the
// control to report selected (stage a), then wait for the signature to
// change (stage b). Only a stage-a timeout marks the tab Failed — identical
// content across tabs is legitimate, so stage b timing out is tolerated.
func (c *Controller) Activate(ctx context.Context, sess Session, tab *Tab, log *slog.Logger) error {
	if tab.State == TabActive {
		// Default tab: already selected, never re-activated.
		return nil
	}

	var sig signatureResult
	if err := sess.Eval(ctx, signatureScript(tab.PanelPath), &sig); err != nil {
		if browser.IsSessionLost(err) {
			return err
		}
		log.Debug("panel signature read failed", "url", sess.URL(), "tab", tab.Label, "error", err)
	}

	tab.State = TabActivating

	var click clickResult
	if err := sess.Eval(ctx, clickScript(tab.Path), &click); err != nil {
		if browser.IsSessionLost(err) {
			tab.State = TabFailed
			return err
		}
		tab.State = TabFailed
		log.Warn("tab activation dispatch failed", "url", sess.URL(), "tab", tab.Label, "error", err)
		return nil
	}
	if !click.Clicked {
		tab.State = TabFailed
		log.Warn("tab control vanished before activation", "url", sess.URL(), "tab", tab.Label)
		return nil
	}

	// Stage a: the control must report the selected state in time.
	if err := sess.Poll(ctx, selectedPredicate(tab.Path), c.ActivationTimeout); err != nil {
		tab.State = TabFailed
		if browser.IsSessionLost(err) {
			return err
		}
		log.Warn("tab activation timed out", "url", sess.URL(), "tab", tab.Label,
			"timeout_ms", c.ActivationTimeout.Milliseconds())
		return nil
	}
	tab.State = TabActive

	// Stage b: wait for visible content to change. An unchanged signature is
	// not a failure; tabs can legitimately show identical content.
	if err := sess.Poll(ctx, signatureChangedPredicate(tab.PanelPath, sig.Signature), c.ContentChangeTimeout); err != nil {
		if browser.IsSessionLost(err) {
			return err
		}
		log.Debug("panel content unchanged after activation", "url", sess.URL(), "tab", tab.Label)
	}
	return nil
}
