package convert

import (
	"strings"
	"testing"
)

func TestFragmentHeadingsAndParagraphs(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<h2>Install</h2><p>Run the command below.</p>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	want := "## Install\n\nRun the command below."
	if md != want {
		t.Fatalf("markdown mismatch:\n got %q\nwant %q", md, want)
	}
}

func TestFragmentCodeBlockKeepsLanguageAndWhitespace(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<pre><code class="language-bash">pip install -U langchain
pip install -U langchain-core</code></pre>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	want := "```bash\npip install -U langchain\npip install -U langchain-core\n```"
	if md != want {
		t.Fatalf("markdown mismatch:\n got %q\nwant %q", md, want)
	}
}

func TestFragmentHarvestsLinks(t *testing.T) {
	c := &Converter{}
	md, links, err := c.Fragment(`<p>See <a href="/docs/intro">the intro</a> or
		<a href="#local">this anchor</a> or <a href="mailto:x@y.z">mail</a>.</p>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(links) != 1 || links[0] != "/docs/intro" {
		t.Fatalf("links = %v, want exactly /docs/intro", links)
	}
	if !strings.Contains(md, "[the intro](/docs/intro)") {
		t.Fatalf("markdown missing link markup: %q", md)
	}
}

func TestFragmentListsAndNesting(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<ul><li>one</li><li>two<ul><li>nested</li></ul></li></ul>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	for _, want := range []string{"- one", "- two", "  - nested"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestFragmentOrderedList(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<ol><li>first</li><li>second</li></ol>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if !strings.Contains(md, "1. first") || !strings.Contains(md, "2. second") {
		t.Fatalf("ordered list not numbered:\n%s", md)
	}
}

func TestFragmentTableFlattensRows(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<table><tr><th>Flag</th><th>Meaning</th></tr>
		<tr><td>-U</td><td>upgrade</td></tr></table>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if !strings.Contains(md, "| Flag | Meaning |") || !strings.Contains(md, "| -U | upgrade |") {
		t.Fatalf("table rows missing:\n%s", md)
	}
}

func TestFragmentSkipsScriptAndStyle(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<p>visible</p><script>var hidden = 1;</script><style>.x{}</style>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if strings.Contains(md, "hidden") || strings.Contains(md, ".x{}") {
		t.Fatalf("non-content markup leaked into markdown: %q", md)
	}
	if md != "visible" {
		t.Fatalf("markdown = %q, want %q", md, "visible")
	}
}

func TestFragmentEmptyInput(t *testing.T) {
	c := &Converter{}
	md, links, err := c.Fragment("   ")
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if md != "" || len(links) != 0 {
		t.Fatalf("expected empty result, got %q / %v", md, links)
	}
}

func TestFragmentBlockquote(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Fragment(`<blockquote><p>noted</p></blockquote>`)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if md != "> noted" {
		t.Fatalf("markdown = %q, want %q", md, "> noted")
	}
}

func TestPageWithoutReadabilityConvertsWholeDocument(t *testing.T) {
	c := &Converter{}
	md, _, err := c.Page(`<html><body><h1>Title</h1><p>Body text.</p></body></html>`, "https://docs.example.com/intro")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !strings.Contains(md, "# Title") || !strings.Contains(md, "Body text.") {
		t.Fatalf("page conversion incomplete:\n%s", md)
	}
}

func TestFragmentIsDeterministic(t *testing.T) {
	c := &Converter{}
	in := `<h3>Setup</h3><ul><li><a href="/a">a</a></li><li>b</li></ul><pre><code>uv add langchain</code></pre>`
	first, firstLinks, err := c.Fragment(in)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, againLinks, err := c.Fragment(in)
		if err != nil {
			t.Fatalf("Fragment run %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("run %d diverged:\n%s\nvs\n%s", i, again, first)
		}
		if len(againLinks) != len(firstLinks) {
			t.Fatalf("run %d link count diverged", i)
		}
	}
}
