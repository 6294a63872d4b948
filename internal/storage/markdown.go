package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkdownWriter persists merged page documents under a base directory.
type MarkdownWriter struct {
	baseDir string
}

func NewMarkdownWriter(baseDir string) *MarkdownWriter {
	return &MarkdownWriter{baseDir: baseDir}
}

// Save writes the document for pageURL and returns the path it landed at.
// Every file starts with a source header so a saved document can always be
// traced back to its page.
func (w *MarkdownWriter) Save(pageURL, document string) (string, error) {
	path, err := MarkdownPath(w.baseDir, pageURL)
	if err != nil {
		return "", fmt.Errorf("derive path for %s: %w", pageURL, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Source: " + pageURL + "\n")
	b.WriteString("<!-- captured " + time.Now().UTC().Format(time.RFC3339) + " -->\n\n")
	b.WriteString(strings.TrimSpace(document))
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
