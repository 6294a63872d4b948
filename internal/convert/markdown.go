package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Converter renders HTML into markdown-flavored document text. The same
// converter is used for the baseline page capture and for every per-tab
// artifact, so both sides of a merge share one rendering.
type Converter struct {
	// UseReadability isolates the main content region before converting a
	// whole page. Fragments are always converted as-is.
	UseReadability bool
}

var (
	skipTags = map[string]bool{
		"script": true, "style": true, "noscript": true, "template": true,
		"svg": true, "iframe": true, "head": true,
	}
	languageClassRe = regexp.MustCompile(`(?:language|lang)-([A-Za-z0-9_+-]+)`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// Fragment converts an HTML fragment to markdown text and returns the
// hyperlinks found inside it.
func (c *Converter) Fragment(fragment string) (string, []string, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapFragment(fragment)))
	if err != nil {
		return "", nil, fmt.Errorf("parse fragment: %w", err)
	}

	var r renderer
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", nil, nil
	}
	for _, node := range body.Nodes {
		r.walk(node)
	}
	return r.finish(), r.links, nil
}

// wrapFragment ensures bare fragments parse with a proper document shell.
func wrapFragment(fragment string) string {
	lower := strings.ToLower(fragment)
	if strings.Contains(lower, "<html") && strings.Contains(lower, "</html") {
		return fragment
	}
	return "<html><body>" + fragment + "</body></html>"
}

// renderer walks the node tree accumulating markdown blocks.
type renderer struct {
	blocks []string
	links  []string
	inline strings.Builder
}

func (r *renderer) finish() string {
	r.flushInline()
	out := strings.TrimSpace(strings.Join(r.blocks, "\n\n"))
	return blankRunRe.ReplaceAllString(out, "\n\n")
}

func (r *renderer) pushBlock(s string) {
	s = strings.TrimRight(s, " \n")
	if strings.TrimSpace(s) == "" {
		return
	}
	r.blocks = append(r.blocks, s)
}

func (r *renderer) flushInline() {
	text := collapseSpace(r.inline.String())
	r.inline.Reset()
	if text != "" {
		r.blocks = append(r.blocks, text)
	}
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.inline.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		r.walkChildren(n)
		return
	}

	tag := strings.ToLower(n.Data)
	if skipTags[tag] {
		return
	}

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.flushInline()
		level := int(tag[1] - '0')
		text := collapseSpace(nodeText(n))
		if text != "" {
			r.pushBlock(strings.Repeat("#", level) + " " + text)
		}
	case "pre":
		r.flushInline()
		code := strings.Trim(rawText(n), "\n")
		if code != "" {
			r.pushBlock("```" + codeLanguage(n) + "\n" + code + "\n```")
		}
	case "code":
		// Inline code; <pre><code> is handled by the pre branch.
		r.inline.WriteString("`" + collapseSpace(nodeText(n)) + "`")
	case "a":
		text := collapseSpace(nodeText(n))
		href := attr(n, "href")
		if keepLink(href) {
			r.links = append(r.links, href)
			if text != "" {
				r.inline.WriteString("[" + text + "](" + href + ")")
				return
			}
		}
		r.inline.WriteString(text)
	case "ul", "ol":
		r.flushInline()
		r.pushBlock(renderList(n, tag == "ol", 0, r))
	case "table":
		r.flushInline()
		r.pushBlock(renderTable(n))
	case "blockquote":
		r.flushInline()
		var inner renderer
		inner.walkChildren(n)
		quoted := inner.finish()
		if quoted != "" {
			r.pushBlock("> " + strings.ReplaceAll(quoted, "\n", "\n> "))
		}
	case "br":
		r.inline.WriteString("\n")
	case "p", "div", "section", "article", "main", "li", "tr", "header", "footer", "nav", "aside", "figure", "figcaption", "details", "summary":
		r.flushInline()
		r.walkChildren(n)
		r.flushInline()
	case "strong", "b":
		text := collapseSpace(nodeText(n))
		if text != "" {
			r.inline.WriteString("**" + text + "**")
		}
	case "em", "i":
		text := collapseSpace(nodeText(n))
		if text != "" {
			r.inline.WriteString("*" + text + "*")
		}
	default:
		r.walkChildren(n)
	}
}

func (r *renderer) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func renderList(n *html.Node, ordered bool, depth int, r *renderer) string {
	var lines []string
	index := 1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || strings.ToLower(c.Data) != "li" {
			continue
		}
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", index)
			index++
		}
		var item renderer
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			if gc.Type == html.ElementNode {
				sub := strings.ToLower(gc.Data)
				if sub == "ul" || sub == "ol" {
					continue
				}
			}
			item.walk(gc)
		}
		r.links = append(r.links, item.links...)
		text := strings.ReplaceAll(item.finish(), "\n\n", "\n")
		lines = append(lines, strings.Repeat("  ", depth)+marker+text)

		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			if gc.Type == html.ElementNode {
				sub := strings.ToLower(gc.Data)
				if sub == "ul" || sub == "ol" {
					lines = append(lines, renderList(gc, sub == "ol", depth+1, r))
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}

func renderTable(n *html.Node) string {
	var rows []string
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode && strings.ToLower(node.Data) == "tr" {
			var cells []string
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode {
					tag := strings.ToLower(c.Data)
					if tag == "td" || tag == "th" {
						cells = append(cells, collapseSpace(nodeText(c)))
					}
				}
			}
			if len(cells) > 0 {
				rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	if len(rows) == 0 {
		return ""
	}
	return strings.Join(rows, "\n")
}

func codeLanguage(n *html.Node) string {
	if m := languageClassRe.FindStringSubmatch(attr(n, "class")); m != nil {
		return m[1]
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.ToLower(c.Data) == "code" {
			if m := languageClassRe.FindStringSubmatch(attr(c, "class")); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func keepLink(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(lower, "mailto:")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// nodeText returns rendered inline text, skipping non-content subtrees.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			return
		}
		if node.Type == html.ElementNode && skipTags[strings.ToLower(node.Data)] {
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c)
	}
	return b.String()
}

// rawText preserves whitespace; used for code blocks.
func rawText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
