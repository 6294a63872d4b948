package storage

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// SlugifySegment transforms a URL path segment into a filesystem-safe name.
func SlugifySegment(segment string) string {
	segment = sanitizeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(segment)), "-")
	segment = strings.Trim(segment, "-._")
	if segment == "" {
		return "index"
	}
	return segment
}

// MarkdownPath maps a page URL to a deterministic markdown file path under
// baseDir: host directory, one directory per parent path segment, and a
// slugged filename. Query strings are folded into the filename as a short
// hash so variants of the same path do not collide.
func MarkdownPath(baseDir, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	segments := []string{}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		segments = []string{"index"}
	}

	dir := filepath.Join(baseDir, SlugifySegment(u.Host))
	for _, seg := range segments[:len(segments)-1] {
		dir = filepath.Join(dir, SlugifySegment(seg))
	}

	filename := SlugifySegment(segments[len(segments)-1])
	if u.RawQuery != "" {
		sum := md5.Sum([]byte(u.RawQuery))
		filename += "-" + hex.EncodeToString(sum[:])[:8]
	}
	return filepath.Join(dir, filename+".md"), nil
}
