package update

import "fmt"

// chunkWriter forwards chunks to storage and counts what landed.
type chunkWriter struct {
	storage  Storage
	capacity uint32
	written  uint32
}

// write forwards p to storage. Anything short of a full write is an error;
// the counters only move on success.
func (w *chunkWriter) write(p []byte) (uint32, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(w.written)+uint64(len(p)) > uint64(w.capacity) {
		return 0, fmt.Errorf("%w: %d bytes at offset %d exceed capacity %d",
			ErrWriteFailed, len(p), w.written, w.capacity)
	}
	n, err := w.storage.Write(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if n != len(p) {
		return 0, fmt.Errorf("%w: short write %d of %d bytes", ErrWriteFailed, n, len(p))
	}
	w.written += uint32(n)
	return uint32(n), nil
}
