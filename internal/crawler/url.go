package crawler

import (
	"net/url"
	"strings"
)

// AbsoluteURL rewrites href against base. Empty hrefs stay empty, and
// unparsable input is returned as-is.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
