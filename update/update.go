// Package update ingests a firmware image streamed in sequential chunks and
// commits it to a storage backend.
//
// A Session owns the single write in flight. Transports hand it Chunk values
// in upload order; the session resolves capacity on the first chunk, forwards
// every chunk to the Storage backend, commits on the final chunk and asks the
// RebootTrigger to restart the device when the commit succeeds. Errors are
// terminal for the session: remaining chunks are drained until a new upload
// starts at offset zero.
package update

import "time"

// ChunkSize is the largest slice of an upload handed to a Session at once.
const ChunkSize = 4096

// State is the lifecycle position of a Session.
type State uint8

const (
	Idle State = iota
	Writing
	Finalized
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Writing:
		return "writing"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// parseState converts a state name back to a State
func parseState(name string) State {
	switch name {
	case "writing":
		return Writing
	case "finalized":
		return Finalized
	case "failed":
		return Failed
	default:
		return Idle
	}
}

// Chunk is one slice of an upload. Data is only valid for the duration of
// the Consume call that receives it.
//
// Session names the write a continuation chunk belongs to, as reported in
// Status.ID after its first chunk. A chunk naming an older write is
// discarded. Empty skips the check.
type Chunk struct {
	Offset  uint32
	Data    []byte
	Final   bool
	Session string
}

// Status is a point-in-time copy of a Session.
type Status struct {
	ID           string
	State        State
	BytesWritten uint32
	Capacity     uint32
	Filename     string
	LastError    ErrorKind
	Err          error
	Started      time.Time
	Finished     time.Time
}

// Succeeded reports whether the session committed its image.
func (s Status) Succeeded() bool {
	return s.State == Finalized
}
