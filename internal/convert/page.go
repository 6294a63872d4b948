package convert

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// Page converts a full page capture to markdown. When UseReadability is set
// the main content region is isolated first; if isolation yields nothing the
// whole document is converted instead so sparse pages are never dropped.
func (c *Converter) Page(pageHTML, pageURL string) (string, []string, error) {
	if c.UseReadability {
		if isolated := c.isolate(pageHTML, pageURL); isolated != "" {
			md, links, err := c.Fragment(isolated)
			if err == nil && md != "" {
				return md, links, nil
			}
		}
	}
	return c.Fragment(pageHTML)
}

func (c *Converter) isolate(pageHTML, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(pageHTML), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Content)
}
