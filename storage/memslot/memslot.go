// Package memslot is an update.Storage backend that keeps the image in
// memory. It backs the host daemon's dry-run mode and tests.
package memslot

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
)

// Errors
var (
	ErrNotWriting   = errors.New("memslot: no write in progress")
	ErrFull         = errors.New("memslot: slot full")
	ErrEmptyImage   = errors.New("memslot: empty image")
	ErrSizeMismatch = errors.New("memslot: size mismatch")
)

// Slot is a fixed-size in-memory firmware slot.
type Slot struct {
	mu       sync.Mutex
	size     uint32
	capacity uint32
	writing  bool
	buf      []byte
	image    []byte
	digest   [sha256.Size]byte
}

// New returns a slot reporting size bytes free.
func New(size uint32) *Slot {
	return &Slot{size: size}
}

// FreeSpace reports the configured slot size.
func (s *Slot) FreeSpace() (uint32, error) {
	return s.size, nil
}

// Begin starts a write of at most capacity bytes.
func (s *Slot) Begin(capacity uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if capacity > s.size {
		return fmt.Errorf("memslot: capacity %d exceeds slot size %d", capacity, s.size)
	}
	s.capacity = capacity
	s.buf = s.buf[:0]
	s.writing = true
	return nil
}

// Write appends p to the image.
func (s *Slot) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writing {
		return 0, ErrNotWriting
	}
	if uint64(len(s.buf))+uint64(len(p)) > uint64(s.capacity) {
		return 0, ErrFull
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Commit makes the written bytes the current image.
func (s *Slot) Commit(size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writing {
		return ErrNotWriting
	}
	s.writing = false
	if size == 0 {
		return ErrEmptyImage
	}
	if int(size) != len(s.buf) {
		return fmt.Errorf("%w: wrote %d, commit %d", ErrSizeMismatch, len(s.buf), size)
	}
	s.image = append(s.image[:0], s.buf...)
	s.digest = sha256.Sum256(s.image)
	return nil
}

// Abort drops a write in progress.
func (s *Slot) Abort() error {
	s.mu.Lock()
	s.writing = false
	s.buf = s.buf[:0]
	s.mu.Unlock()
	return nil
}

// Image returns a copy of the last committed image.
func (s *Slot) Image() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.image...)
}

// Digest returns the sha256 of the last committed image.
func (s *Slot) Digest() [sha256.Size]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}
