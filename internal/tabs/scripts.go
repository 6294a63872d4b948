package tabs

import (
	"fmt"

	"github.com/dgnsrekt/docweave/internal/browser"
)

// jsPathHelpers provides _xpathFor(el) and _byPath(p) — stable element
// addressing between the read-only discovery pass and the later act/wait
// passes. Paths are absolute XPaths, valid until the page mutates its
// structure around the element.
const jsPathHelpers = `
function _xpathFor(el) {
  function idx(e) {
    var i = 1;
    for (var s = e.previousSibling; s; s = s.previousSibling) {
      if (s.nodeType === 1 && s.nodeName === e.nodeName) i++;
    }
    return i;
  }
  var seg = [];
  for (var e = el; e && e.nodeType === 1; e = e.parentNode) {
    seg.unshift(e.nodeName.toLowerCase() + "[" + idx(e) + "]");
  }
  return "/" + seg.join("/");
}
function _byPath(p) {
  try {
    return document.evaluate(p, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  } catch (_) { return null; }
}
`

const jsTextHelpers = `
function _norm(s) { return (s || "").replace(/\s+/g, " ").trim(); }
function _sig(el) {
  if (!el) return "";
  var t = _norm(el.innerText || el.textContent || "").toLowerCase();
  if (!t) return "";
  var h = 5381;
  for (var i = 0; i < t.length; i++) { h = ((h << 5) + h + t.charCodeAt(i)) | 0; }
  return String(h >>> 0) + ":" + t.length;
}
function _isSelected(el) {
  if (!el) return false;
  if (el.getAttribute("aria-selected") === "true") return true;
  if (el.dataset && el.dataset.state === "active") return true;
  return /(^|\s)(active|selected|is-active|is-selected)(\s|$)/.test(el.className || "");
}
`

// jsGroupTitle walks up from the tab list looking for an aria-label or a
// preceding section heading to name the group after.
const jsGroupTitle = `
function _groupTitle(el) {
  if (!el) return "Tabs";
  var aria = _norm(el.getAttribute("aria-label"));
  if (aria) return aria;
  var node = el;
  for (var depth = 0; depth < 4 && node; depth++) {
    var prev = node.previousElementSibling;
    if (prev && /^H[1-6]$/.test(prev.tagName)) return _norm(prev.textContent) || "Tabs";
    node = node.parentElement;
  }
  return "Tabs";
}
`

// discoverStructuralScript correlates [role=tablist]/[role=tab] controls with
// their panels: aria-controls id linkage first, aria-labelledby reverse
// lookup second, positional Nth-tab/Nth-panel pairing last. Candidates whose
// panel cannot be resolved keep an empty panel path; the Go side decides
// whether the group survives.
func discoverStructuralScript() string {
	return browser.WrapEval(jsPathHelpers + jsTextHelpers + jsGroupTitle + `
var groups = [];
var lists = document.querySelectorAll('[role="tablist"]');
for (var gi = 0; gi < lists.length; gi++) {
  var list = lists[gi];
  var tabEls = list.querySelectorAll('[role="tab"]');
  if (tabEls.length === 0) continue;
  var scope = list.parentElement || list;
  var sibPanels = scope.querySelectorAll('[role="tabpanel"]');
  var tabs = [];
  for (var ti = 0; ti < tabEls.length; ti++) {
    var tab = tabEls[ti];
    var panel = null;
    var controls = tab.getAttribute("aria-controls");
    if (controls) panel = document.getElementById(controls);
    if (!panel && tab.id) panel = document.querySelector('[role="tabpanel"][aria-labelledby="' + tab.id + '"]');
    if (!panel && sibPanels.length === tabEls.length) panel = sibPanels[ti];
    tabs.push({
      label: _norm(tab.innerText || tab.textContent),
      path: _xpathFor(tab),
      panel_path: panel ? _xpathFor(panel) : "",
      selected: _isSelected(tab)
    });
  }
  groups.push({title: _groupTitle(list), tabs: tabs});
}
return JSON.stringify({ok: true, data: {groups: groups}});
`)
}

// discoverHeuristicScript is the fallback pass: cluster adjacent clickable
// leaf elements under a common parent and keep only clusters that look like
// tab strips (short labels, no sentence punctuation, bounded size). The
// shared panel is the cluster parent's next content sibling.
func discoverHeuristicScript(maxLabelLen, maxClusterSize int) string {
	return browser.WrapEval(jsPathHelpers + jsTextHelpers + jsGroupTitle + fmt.Sprintf(`
var maxLabel = %d;
var maxCluster = %d;
function _clickableLeaf(el) {
  if (el.children.length > 1) return false;
  var tag = el.tagName;
  if (tag === "BUTTON") return true;
  if (el.getAttribute("role") === "button") return true;
  if (tag === "A" && (!el.getAttribute("href") || el.getAttribute("href").charAt(0) === "#")) return true;
  if (tag === "LI" && typeof el.onclick === "function") return true;
  return false;
}
function _tabbyLabel(t) {
  if (!t || t.length > maxLabel) return false;
  return !/[.!?]/.test(t);
}
var seenParents = [];
var groups = [];
var candidates = document.querySelectorAll("button, [role=button], a, li");
for (var i = 0; i < candidates.length; i++) {
  var el = candidates[i];
  if (!_clickableLeaf(el)) continue;
  var parent = el.parentElement;
  if (!parent || seenParents.indexOf(parent) !== -1) continue;
  seenParents.push(parent);
  var cluster = [];
  for (var c = 0; c < parent.children.length; c++) {
    var child = parent.children[c];
    if (!_clickableLeaf(child)) { cluster = []; break; }
    if (!_tabbyLabel(_norm(child.innerText || child.textContent))) { cluster = []; break; }
    cluster.push(child);
  }
  if (cluster.length < 2 || cluster.length > maxCluster) continue;
  var panel = parent.nextElementSibling;
  var panelPath = panel ? _xpathFor(panel) : "";
  var tabs = [];
  for (var m = 0; m < cluster.length; m++) {
    tabs.push({
      label: _norm(cluster[m].innerText || cluster[m].textContent),
      path: _xpathFor(cluster[m]),
      panel_path: panelPath,
      selected: _isSelected(cluster[m])
    });
  }
  groups.push({title: _groupTitle(parent), tabs: tabs});
}
return JSON.stringify({ok: true, data: {groups: groups}});
`, maxLabelLen, maxClusterSize))
}

// signatureScript fingerprints the panel's visible text.
func signatureScript(panelPath string) string {
	return browser.WrapEval(jsPathHelpers + jsTextHelpers + `
var panel = _byPath(` + browser.JSString(panelPath) + `);
return JSON.stringify({ok: true, data: {signature: _sig(panel)}});
`)
}

// clickScript dispatches the activation action on the tab control.
func clickScript(tabPath string) string {
	return browser.WrapEval(jsPathHelpers + `
var el = _byPath(` + browser.JSString(tabPath) + `);
if (!el) return JSON.stringify({ok: true, data: {clicked: false}});
try { el.scrollIntoView({block: "center"}); } catch (_) {}
el.click();
return JSON.stringify({ok: true, data: {clicked: true}});
`)
}

// selectedPredicate is a bare polling expression: true once the control
// reports the selected state.
func selectedPredicate(tabPath string) string {
	return `(function(){` + jsPathHelpers + jsTextHelpers + `
var el = _byPath(` + browser.JSString(tabPath) + `);
return _isSelected(el);
})()`
}

// signatureChangedPredicate is a bare polling expression: true once the
// panel's content signature differs from before.
func signatureChangedPredicate(panelPath, before string) string {
	return `(function(){` + jsPathHelpers + jsTextHelpers + `
var panel = _byPath(` + browser.JSString(panelPath) + `);
return _sig(panel) !== ` + browser.JSString(before) + `;
})()`
}

// panelHTMLScript captures the active panel subtree.
func panelHTMLScript(panelPath string) string {
	return browser.WrapEval(jsPathHelpers + `
var panel = _byPath(` + browser.JSString(panelPath) + `);
return JSON.stringify({ok: true, data: {html: panel ? panel.outerHTML : ""}});
`)
}

// documentHTMLScript captures the whole current document.
func documentHTMLScript() string {
	return browser.WrapEval(`
return JSON.stringify({ok: true, data: {html: document.documentElement ? document.documentElement.outerHTML : ""}});
`)
}
