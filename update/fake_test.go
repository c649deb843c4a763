package update

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var errInjected = errors.New("injected")

// fakeStorage records calls and can be told to fail any of them.
type fakeStorage struct {
	mu sync.Mutex

	free     uint32
	freeErr  error
	beginErr error
	writeErr error
	// failAfter fails writes once this many bytes have landed, when > 0.
	failAfter int
	short     bool
	commitErr error

	begins, writes, commits, aborts int
	capacity                        uint32
	committed                       uint32
	buf                             bytes.Buffer
}

func newFakeStorage(free uint32) *fakeStorage {
	return &fakeStorage{free: free}
}

func (f *fakeStorage) FreeSpace() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free, f.freeErr
}

func (f *fakeStorage) Begin(capacity uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.beginErr != nil {
		return f.beginErr
	}
	f.capacity = capacity
	f.buf.Reset()
	return nil
}

func (f *fakeStorage) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.failAfter > 0 && f.buf.Len()+len(p) > f.failAfter {
		return 0, errInjected
	}
	if f.short && len(p) > 1 {
		return f.buf.Write(p[:len(p)-1])
	}
	return f.buf.Write(p)
}

func (f *fakeStorage) Commit(size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = size
	return nil
}

func (f *fakeStorage) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.buf.Reset()
	return nil
}

// countingScheduler counts Schedule calls.
type countingScheduler struct {
	mu    sync.Mutex
	calls int
}

func (c *countingScheduler) Schedule() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

// feed splits image into ChunkSize chunks and consumes them all.
func feed(s *Session, image []byte) Status {
	if len(image) == 0 {
		return s.Consume("fw.bin", Chunk{Final: true})
	}
	var st Status
	for off := 0; off < len(image); off += ChunkSize {
		end := min(off+ChunkSize, len(image))
		st = s.Consume("fw.bin", Chunk{
			Offset: uint32(off),
			Data:   image[off:end],
			Final:  end == len(image),
		})
	}
	return st
}
