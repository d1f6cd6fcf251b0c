// Package charset normalizes fetched HTML bodies to UTF-8. A declared charset
// is trusted unless it is missing or the low-confidence ISO-8859-1 default
// that servers and clients fall back to; in that case the encoding is
// detected from the document itself.
package charset

import (
	"mime"
	"strings"

	"github.com/saintfish/chardet"
	htmlcharset "golang.org/x/net/html/charset"
)

// lowConfidence lists declared charsets that are treated as "not declared".
var lowConfidence = map[string]struct{}{
	"":           {},
	"iso-8859-1": {},
	"latin1":     {},
	"latin-1":    {},
}

// Declared returns the lowercased charset parameter of a Content-Type value.
func Declared(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// Detect guesses the encoding of body. A BOM or <meta charset> prescan wins;
// otherwise the statistical detector decides. It returns "utf-8" when nothing
// better is known.
func Detect(body []byte) string {
	if len(body) == 0 {
		return "utf-8"
	}
	// DetermineEncoding falls back to windows-1252 when it has no signal.
	if _, name, certain := htmlcharset.DetermineEncoding(body, ""); certain || name != "windows-1252" {
		return name
	}
	result, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || result == nil || result.Charset == "" {
		return "utf-8"
	}
	return detectorName(result.Charset)
}

// detectorName maps chardet's labels onto WHATWG encoding labels.
func detectorName(label string) string {
	name := strings.ToLower(label)
	if name == "gb-18030" {
		return "gb18030"
	}
	return name
}

// Normalize decodes body to UTF-8 and reports the charset it used.
// Undecodable input is returned unchanged.
func Normalize(body []byte, contentType string) ([]byte, string) {
	name := Declared(contentType)
	if _, weak := lowConfidence[name]; weak {
		name = Detect(body)
	}
	if isUTF8(name) {
		return body, "utf-8"
	}
	enc, canonical := htmlcharset.Lookup(name)
	if enc == nil {
		return body, name
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body, name
	}
	return decoded, canonical
}

func isUTF8(name string) bool {
	switch name {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	default:
		return false
	}
}
