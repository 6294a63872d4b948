package frontier

import (
	"net/url"
	"path"
	"strings"
)

// Normalize resolves rawURL against base (when relative), strips the
// fragment, lowercases scheme and host, and cleans the path. It returns
// "" for anything that is not a usable http(s) URL.
func Normalize(rawURL, base string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "" {
		if base == "" {
			return ""
		}
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = normalizePath(u.Path)
	return u.String()
}

// normalizePath cleans dot segments while keeping a trailing slash.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// ParentURL returns the directory URL containing the given page, used for
// parent-scoped crawls.
func ParentURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(normalizePath(u.Path), "/")
	parent := "/"
	if p != "" {
		parent = path.Dir(p)
		if parent != "/" {
			parent += "/"
		}
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + parent
}

// InScope reports whether candidate lives inside the subtree rooted at
// scopeURL. An empty scope admits everything.
func InScope(candidate, scopeURL string) bool {
	if scopeURL == "" {
		return true
	}
	cu, err := url.Parse(candidate)
	if err != nil || cu.Scheme == "" || cu.Host == "" {
		return false
	}
	su, err := url.Parse(scopeURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(cu.Scheme, su.Scheme) || !strings.EqualFold(cu.Host, su.Host) {
		return false
	}
	cp := normalizePath(cu.Path)
	sp := normalizePath(su.Path)
	if sp == "/" {
		return true
	}
	if strings.HasSuffix(sp, "/") {
		return strings.HasPrefix(cp, sp)
	}
	return cp == sp || strings.HasPrefix(cp, sp+"/")
}

// DomainKey collapses a URL to its scheme://host origin, the unit used for
// robots caching and per-domain throttling.
func DomainKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
