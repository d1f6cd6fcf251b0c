package source

import (
	"maps"
	"net/http"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"

var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "zh-CN,zh;q=0.9",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"User-Agent":                browserUserAgent,
}

// DefaultHeaders returns the compiled-in header set for a source. It never
// carries cookies; sessions come from configuration.
func DefaultHeaders(name string) map[string]string {
	headers := maps.Clone(browserHeaders)
	switch name {
	case Baidu:
		headers["Host"] = "www.baidu.com"
	case Sohu:
		headers["Referer"] = "https://www.sogou.com/"
	}
	return headers
}

// WithDefaults overlays configured headers on the source defaults. Names
// are canonicalized first because configuration keys arrive lowercased.
func WithDefaults(name string, configured map[string]string) map[string]string {
	headers := DefaultHeaders(name)
	for k, v := range configured {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	return headers
}
