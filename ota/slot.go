package ota

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"sync"
)

// Errors
var (
	ErrConfirmFailed    = errors.New("ota: partition confirm failed")
	ErrImageTooLarge    = errors.New("ota: image too large for partition")
	ErrFlashWriteFailed = errors.New("ota: flash write failed")
	ErrFlashEraseFailed = errors.New("ota: flash erase failed")
	ErrNotWriting       = errors.New("ota: no write in progress")
	ErrEmptyImage       = errors.New("ota: empty image")
	ErrSizeMismatch     = errors.New("ota: size mismatch")
	ErrVerifyFailed     = errors.New("ota: flash readback does not match upload")
)

// Flash is raw access to the flash chip. Offsets are from the start of
// flash.
type Flash interface {
	// EraseSector erases the SectorSize block at offset.
	EraseSector(offset uint32) error
	// Program writes one PageSize-aligned page of data at offset.
	Program(offset uint32, data []byte) error
	// Read fills p from offset.
	Read(offset uint32, p []byte) error
}

// Slot streams an image into one partition. Sectors are erased as the
// write reaches them and data is programmed a page at a time.
type Slot struct {
	flash     Flash
	partition int
	base      uint32

	mu         sync.Mutex
	writing    bool
	committed  bool
	capacity   uint32
	written    uint32
	programmed uint32
	page       [PageSize]byte
	fill       int
	erased     [PartitionSize / SectorSize]bool
	hasher     hash.Hash
	digest     [sha256.Size]byte
}

// NewSlot returns a slot writing partition on flash.
func NewSlot(flash Flash, partition int) *Slot {
	return &Slot{
		flash:     flash,
		partition: partition,
		base:      PartitionOffset(partition),
	}
}

// Partition returns the partition the slot writes.
func (s *Slot) Partition() int {
	return s.partition
}

// FreeSpace reports the partition size.
func (s *Slot) FreeSpace() (uint32, error) {
	if s.flash == nil {
		return 0, errors.New("ota: no flash")
	}
	return PartitionSize, nil
}

// Begin starts a write of at most capacity bytes.
func (s *Slot) Begin(capacity uint32) error {
	if capacity > PartitionSize {
		return fmt.Errorf("%w: %d > %d", ErrImageTooLarge, capacity, PartitionSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writing = true
	s.committed = false
	s.capacity = capacity
	s.written = 0
	s.programmed = 0
	s.fill = 0
	s.erased = [len(s.erased)]bool{}
	s.hasher = sha256.New()
	return nil
}

// Write buffers p and programs every page it completes.
func (s *Slot) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writing {
		return 0, ErrNotWriting
	}
	if uint64(s.written)+uint64(len(p)) > uint64(s.capacity) {
		return 0, ErrImageTooLarge
	}
	n := 0
	for n < len(p) {
		c := copy(s.page[s.fill:], p[n:])
		s.fill += c
		if s.fill == PageSize {
			if err := s.programPage(); err != nil {
				s.hasher.Write(p[:n])
				s.written += uint32(n)
				return n, err
			}
		}
		n += c
	}
	s.hasher.Write(p)
	s.written += uint32(n)
	return n, nil
}

// programPage erases the sector under the next page if needed and programs
// the page buffer.
func (s *Slot) programPage() error {
	sector := s.programmed / SectorSize
	if !s.erased[sector] {
		if err := s.flash.EraseSector(s.base + sector*SectorSize); err != nil {
			return fmt.Errorf("%w: sector %d: %w", ErrFlashEraseFailed, sector, err)
		}
		s.erased[sector] = true
	}
	if err := s.flash.Program(s.base+s.programmed, s.page[:]); err != nil {
		return fmt.Errorf("%w: offset %#x: %w", ErrFlashWriteFailed, s.programmed, err)
	}
	s.programmed += PageSize
	s.fill = 0
	return nil
}

// Commit programs the last partial page padded with 0xFF, then reads the
// image back and compares its sha256 with the bytes received.
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
	if size != s.written {
		return fmt.Errorf("%w: wrote %d, commit %d", ErrSizeMismatch, s.written, size)
	}
	if s.fill > 0 {
		for i := s.fill; i < PageSize; i++ {
			s.page[i] = 0xFF
		}
		if err := s.programPage(); err != nil {
			return err
		}
	}

	var want [sha256.Size]byte
	s.hasher.Sum(want[:0])
	got, err := s.readbackDigest(size)
	if err != nil {
		return err
	}
	if got != want {
		return ErrVerifyFailed
	}
	s.digest = want
	s.committed = true
	return nil
}

func (s *Slot) readbackDigest(size uint32) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	h := sha256.New()
	for off := uint32(0); off < size; off += PageSize {
		n := min(size-off, PageSize)
		if err := s.flash.Read(s.base+off, s.page[:n]); err != nil {
			return sum, fmt.Errorf("ota: readback at %#x: %w", off, err)
		}
		h.Write(s.page[:n])
	}
	h.Sum(sum[:0])
	return sum, nil
}

// Abort stops the write. Erased sectors stay erased.
func (s *Slot) Abort() error {
	s.mu.Lock()
	s.writing = false
	s.fill = 0
	s.mu.Unlock()
	return nil
}

// Committed reports whether the partition holds a verified image that has
// not been booted yet.
func (s *Slot) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Digest returns the sha256 of the last committed image.
func (s *Slot) Digest() [sha256.Size]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}
