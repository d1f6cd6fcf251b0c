package progress

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Observe forwards every event of seq to emitter as a Record tagged with
// scanID and source, then yields it unchanged. Stopping the consumer stops
// the underlying stream.
func Observe(seq iter.Seq[Event], emitter Emitter, scanID uuid.UUID, source string) iter.Seq[Event] {
	if emitter == nil {
		return seq
	}
	id := UUIDToBytes(scanID)
	return func(yield func(Event) bool) {
		start := time.Now()
		for evt := range seq {
			emitter.Emit(Record{
				ScanID:  id,
				TS:      time.Now().UTC(),
				Source:  source,
				Event:   evt,
				Elapsed: time.Since(start),
			})
			if !yield(evt) {
				return
			}
		}
	}
}

// Outcome summarizes a fully consumed stream.
type Outcome struct {
	Pages int
	Err   string
	Items []crawler.CandidateItem
	// Completed is false when the stream ended without a result event.
	Completed bool
}

// Collect drains seq and summarizes it.
func Collect(seq iter.Seq[Event]) Outcome {
	var out Outcome
	for evt := range seq {
		out.add(evt)
	}
	return out
}

func (o *Outcome) add(evt Event) {
	switch evt.Type {
	case TypeProgress:
		o.Pages++
	case TypeError:
		o.Err = evt.Msg
	case TypeResult:
		o.Items = evt.Data
		o.Completed = true
	}
}
