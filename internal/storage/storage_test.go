package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlugifySegment(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Getting Started", "getting-started"},
		{"api_v2.html", "api_v2.html"},
		{"--weird--", "weird"},
		{"", "index"},
		{"///", "index"},
	}
	for _, tc := range cases {
		if got := SlugifySegment(tc.in); got != tc.want {
			t.Errorf("SlugifySegment(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarkdownPathLayout(t *testing.T) {
	got, err := MarkdownPath("out", "https://docs.example.com/guide/Getting Started/intro")
	if err != nil {
		t.Fatalf("MarkdownPath: %v", err)
	}
	want := filepath.Join("out", "docs.example.com", "guide", "getting-started", "intro.md")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestMarkdownPathRootAndQuery(t *testing.T) {
	root, err := MarkdownPath("out", "https://docs.example.com/")
	if err != nil {
		t.Fatalf("MarkdownPath: %v", err)
	}
	if root != filepath.Join("out", "docs.example.com", "index.md") {
		t.Fatalf("root path = %q", root)
	}

	a, _ := MarkdownPath("out", "https://docs.example.com/search?q=tabs")
	b, _ := MarkdownPath("out", "https://docs.example.com/search?q=panels")
	plain, _ := MarkdownPath("out", "https://docs.example.com/search")
	if a == b {
		t.Fatalf("different queries mapped to the same file: %q", a)
	}
	if a == plain || b == plain {
		t.Fatalf("query variant collides with the bare path")
	}
	if !strings.HasSuffix(a, ".md") {
		t.Fatalf("path missing extension: %q", a)
	}
}

func TestMarkdownPathIsDeterministic(t *testing.T) {
	first, err := MarkdownPath("out", "https://docs.example.com/a/b?x=1")
	if err != nil {
		t.Fatalf("MarkdownPath: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, _ := MarkdownPath("out", "https://docs.example.com/a/b?x=1")
		if again != first {
			t.Fatalf("path diverged: %q vs %q", again, first)
		}
	}
}

func TestMarkdownWriterSave(t *testing.T) {
	dir := t.TempDir()
	w := NewMarkdownWriter(dir)

	path, err := w.Save("https://docs.example.com/guide/intro", "# Intro\n\nBody.")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Source: https://docs.example.com/guide/intro\n") {
		t.Fatalf("missing source header:\n%s", content)
	}
	if !strings.Contains(content, "# Intro") || !strings.Contains(content, "Body.") {
		t.Fatalf("document body missing:\n%s", content)
	}
}

func TestReportWriterWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	w := NewReportWriter(dir, "traversal", "testrun", 16, 10)

	type rec struct {
		URL  string `json:"url"`
		Tabs int    `json:"tabs"`
	}
	if err := w.Write(rec{URL: "https://docs.example.com/a", Tabs: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(rec{URL: "https://docs.example.com/b", Tabs: 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Writer is async; give the loop a moment before closing.
	time.Sleep(100 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, date, "traversal", "testrun.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	var first rec
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 not JSON: %v", err)
	}
	if first.URL != "https://docs.example.com/a" || first.Tabs != 2 {
		t.Fatalf("unexpected first record: %+v", first)
	}
}

func TestReportWriterRejectsAfterClose(t *testing.T) {
	w := NewReportWriter(t.TempDir(), "traversal", "run", 1, 10)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(map[string]string{"url": "x"}); err == nil {
		t.Fatalf("expected error writing to closed writer")
	}
}
