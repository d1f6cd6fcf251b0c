package progress

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Type tags the Event variant.
type Type string

// Supported event variants.
const (
	TypeProgress Type = "progress"
	TypeError    Type = "error"
	TypeResult   Type = "result"
)

// Event is one element of a scan stream. Only the fields of its variant are
// meaningful: Current/Total/Msg for progress, Msg for error, Data for result.
type Event struct {
	Type    Type
	Current int
	Total   int
	Msg     string
	Data    []crawler.CandidateItem
}

// Progress reports that page current of total is being collected.
func Progress(current, total int, msg string) Event {
	return Event{Type: TypeProgress, Current: current, Total: total, Msg: msg}
}

// Error reports a failure that ended the scan early.
func Error(msg string) Event {
	return Event{Type: TypeError, Msg: msg}
}

// Result closes a stream with the accumulated items.
func Result(items []crawler.CandidateItem) Event {
	if items == nil {
		items = []crawler.CandidateItem{}
	}
	return Event{Type: TypeResult, Data: items}
}

// Final reports whether e closes the stream.
func (e Event) Final() bool {
	return e.Type == TypeResult
}

// Validate checks the variant tag and its payload.
func (e Event) Validate() error {
	switch e.Type {
	case TypeProgress:
		if e.Current < 1 || e.Total < e.Current {
			return fmt.Errorf("progress %d/%d out of range", e.Current, e.Total)
		}
	case TypeError:
		if e.Msg == "" {
			return errors.New("error event requires msg")
		}
	case TypeResult:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

type progressWire struct {
	Type    Type   `json:"type"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Msg     string `json:"msg"`
}

type errorWire struct {
	Type Type   `json:"type"`
	Msg  string `json:"msg"`
}

type resultWire struct {
	Type Type                    `json:"type"`
	Data []crawler.CandidateItem `json:"data"`
}

type anyWire struct {
	Type    Type                    `json:"type"`
	Current int                     `json:"current"`
	Total   int                     `json:"total"`
	Msg     string                  `json:"msg"`
	Data    []crawler.CandidateItem `json:"data"`
}

// MarshalJSON writes only the fields of the event's variant.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeProgress:
		return json.Marshal(progressWire{Type: e.Type, Current: e.Current, Total: e.Total, Msg: e.Msg})
	case TypeError:
		return json.Marshal(errorWire{Type: e.Type, Msg: e.Msg})
	case TypeResult:
		data := e.Data
		if data == nil {
			data = []crawler.CandidateItem{}
		}
		return json.Marshal(resultWire{Type: e.Type, Data: data})
	default:
		return nil, fmt.Errorf("marshal event: unknown type %q", e.Type)
	}
}

// UnmarshalJSON decodes any variant and rejects unknown tags.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	evt := Event{Type: w.Type, Current: w.Current, Total: w.Total, Msg: w.Msg, Data: w.Data}
	if evt.Type == TypeResult && evt.Data == nil {
		evt.Data = []crawler.CandidateItem{}
	}
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	*e = evt
	return nil
}
