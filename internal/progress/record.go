package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is an Event observed during a specific scan, as delivered to sinks.
type Record struct {
	// ScanID identifies one connector invocation using the 16-byte UUID form.
	ScanID [16]byte
	// TS is the UTC timestamp recorded by the observer.
	TS time.Time
	// Source is the connector name.
	Source string
	// Event is the observed stream element.
	Event Event
	// Elapsed is the time since the scan started.
	Elapsed time.Duration
}

// Validate performs coarse validation on Record payloads.
func (r Record) Validate() error {
	if r.ScanID == [16]byte{} {
		return errors.New("scan id is required")
	}
	if r.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if r.Elapsed < 0 {
		return errors.New("elapsed must be >= 0")
	}
	return r.Event.Validate()
}

// ScanUUID converts the binary scan ID to uuid.UUID.
func (r Record) ScanUUID() uuid.UUID {
	return uuid.UUID(r.ScanID)
}

// UUIDToBytes encodes a uuid.UUID into the Record form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
