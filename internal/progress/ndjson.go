package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
)

// ContentType is the media type of an NDJSON event stream.
const ContentType = "application/x-ndjson"

const maxLineBytes = 16 << 20

// Encoder writes events as newline-delimited JSON, flushing after each one
// when the writer supports it.
type Encoder struct {
	enc     *json.Encoder
	flusher http.Flusher
}

// NewEncoder builds an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	flusher, _ := w.(http.Flusher)
	return &Encoder{enc: enc, flusher: flusher}
}

// Encode writes one event line.
func (e *Encoder) Encode(evt Event) error {
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// WriteStream encodes seq to w as it is produced and returns the summary of
// what was written. A write error stops consumption, which stops the stream.
func WriteStream(w io.Writer, seq iter.Seq[Event]) (Outcome, error) {
	enc := NewEncoder(w)
	var out Outcome
	for evt := range seq {
		if err := enc.Encode(evt); err != nil {
			return out, err
		}
		out.add(evt)
	}
	return out, nil
}

// Decode reads NDJSON events from r. Blank lines are skipped; iteration ends
// at EOF or after the first error.
func Decode(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var evt Event
			if err := json.Unmarshal(line, &evt); err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(evt, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Event{}, fmt.Errorf("read event stream: %w", err))
		}
	}
}
