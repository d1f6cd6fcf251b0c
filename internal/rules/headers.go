// Package rules holds the helpers around per-site extraction rules: parsing
// operator-supplied header text, finding the rule for a listing source and
// deciding whether a healing proposal is worth persisting.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparsableHeaders is returned when no strategy can read the input.
var ErrUnparsableHeaders = errors.New("unparsable headers")

// HeaderParser is one way of reading header text. ok is false when the
// input is not in the parser's format.
type HeaderParser interface {
	Name() string
	Parse(raw string) (headers map[string]string, ok bool)
}

// DefaultHeaderParsers is the order ParseHeaders tries.
var DefaultHeaderParsers = []HeaderParser{JSONHeaders{}, ColonHeaders{}, PairHeaders{}}

// ParseHeaders reads raw with the first parser that accepts it. Blank input
// yields a nil map.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	for _, p := range DefaultHeaderParsers {
		if headers, ok := p.Parse(raw); ok {
			return headers, nil
		}
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrUnparsableHeaders, len(raw))
}

// JSONHeaders reads a JSON object. Non-string values are formatted.
type JSONHeaders struct{}

// Name implements HeaderParser.
func (JSONHeaders) Name() string { return "json" }

// Parse implements HeaderParser.
func (JSONHeaders) Parse(raw string) (map[string]string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil || obj == nil {
		return nil, false
	}
	headers := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case nil:
			headers[k] = ""
		default:
			headers[k] = fmt.Sprint(val)
		}
	}
	return headers, true
}

var headerLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_-]*)\s*:\s*(.*)$`)

// ColonHeaders reads "Key: Value" lines. Every non-blank line must match.
type ColonHeaders struct{}

// Name implements HeaderParser.
func (ColonHeaders) Name() string { return "colon" }

// Parse implements HeaderParser.
func (ColonHeaders) Parse(raw string) (map[string]string, bool) {
	lines := nonBlankLines(raw)
	if len(lines) == 0 {
		return nil, false
	}
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		headers[m[1]] = strings.TrimSpace(m[2])
	}
	return headers, true
}

// PairHeaders reads alternating name and value lines. A trailing name
// without a value is ignored, as are HTTP/2 pseudo headers.
type PairHeaders struct{}

// Name implements HeaderParser.
func (PairHeaders) Name() string { return "pairs" }

// Parse implements HeaderParser.
func (PairHeaders) Parse(raw string) (map[string]string, bool) {
	lines := nonBlankLines(raw)
	headers := make(map[string]string, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		key := strings.TrimSuffix(lines[i], ":")
		if strings.HasPrefix(key, ":") {
			continue
		}
		headers[key] = lines[i+1]
	}
	return headers, len(headers) > 0
}

func nonBlankLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
