// Package fileslot is an update.Storage backend that writes the image to a
// file. The image is staged next to its destination and renamed into
// place on commit, so a failed update never replaces a good image.
package fileslot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// File names inside the slot directory.
const (
	ImageName  = "firmware.bin"
	stageName  = ImageName + ".part"
	digestName = ImageName + ".sha256"
)

// Errors
var (
	ErrNotWriting   = errors.New("fileslot: no write in progress")
	ErrFull         = errors.New("fileslot: image exceeds capacity")
	ErrEmptyImage   = errors.New("fileslot: empty image")
	ErrSizeMismatch = errors.New("fileslot: size mismatch")
)

// Option configures a Slot.
type Option func(*Slot)

// WithFreeSpace replaces the filesystem free space query.
func WithFreeSpace(fn func(dir string) (uint64, error)) Option {
	return func(s *Slot) { s.freeSpace = fn }
}

// WithLimit caps the reported free space, 0 for no cap.
func WithLimit(limit uint32) Option {
	return func(s *Slot) { s.limit = limit }
}

// Slot stores firmware images under a directory of fs.
type Slot struct {
	fs        afero.Fs
	dir       string
	freeSpace func(dir string) (uint64, error)
	limit     uint32

	mu       sync.Mutex
	f        afero.File
	capacity uint32
	written  uint32
	hasher   hash.Hash
	digest   []byte
}

// New returns a slot in dir on fs.
func New(fs afero.Fs, dir string, opts ...Option) *Slot {
	s := &Slot{
		fs:        fs,
		dir:       dir,
		freeSpace: statfsFree,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the path of the committed image.
func (s *Slot) Path() string {
	return filepath.Join(s.dir, ImageName)
}

// FreeSpace reports the bytes available to the slot directory. A directory
// that does not exist yet is measured on its nearest existing parent, since
// Begin creates it.
func (s *Slot) FreeSpace() (uint32, error) {
	dir := s.existingDir()
	free, err := s.freeSpace(dir)
	if err != nil {
		return 0, fmt.Errorf("fileslot: free space of %s: %w", dir, err)
	}
	if free > math.MaxUint32 {
		free = math.MaxUint32
	}
	if s.limit != 0 && free > uint64(s.limit) {
		free = uint64(s.limit)
	}
	return uint32(free), nil
}

func (s *Slot) existingDir() string {
	dir := filepath.Clean(s.dir)
	for {
		if _, err := s.fs.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// Begin opens a fresh staging file.
func (s *Slot) Begin(capacity uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStage()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("fileslot: %w", err)
	}
	f, err := s.fs.OpenFile(s.stagePath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fileslot: %w", err)
	}
	s.f = f
	s.capacity = capacity
	s.written = 0
	s.hasher = sha256.New()
	return nil
}

// Write appends p to the staging file.
func (s *Slot) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrNotWriting
	}
	if uint64(s.written)+uint64(len(p)) > uint64(s.capacity) {
		return 0, ErrFull
	}
	n, err := s.f.Write(p)
	s.hasher.Write(p[:n])
	s.written += uint32(n)
	return n, err
}

// Commit syncs the staging file, checks its size and renames it over the
// current image. The image digest is written alongside.
func (s *Slot) Commit(size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrNotWriting
	}
	f := s.f
	s.f = nil

	err := f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.Remove(s.stagePath())
		return fmt.Errorf("fileslot: %w", err)
	}
	if err := s.check(size); err != nil {
		s.fs.Remove(s.stagePath())
		return err
	}
	if err := s.fs.Rename(s.stagePath(), s.Path()); err != nil {
		s.fs.Remove(s.stagePath())
		return fmt.Errorf("fileslot: %w", err)
	}
	s.digest = s.hasher.Sum(nil)
	sum := hex.EncodeToString(s.digest) + "  " + ImageName + "\n"
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, digestName), []byte(sum), 0o644); err != nil {
		return fmt.Errorf("fileslot: %w", err)
	}
	return nil
}

func (s *Slot) check(size uint32) error {
	if size == 0 {
		return ErrEmptyImage
	}
	fi, err := s.fs.Stat(s.stagePath())
	if err != nil {
		return fmt.Errorf("fileslot: %w", err)
	}
	if fi.Size() != int64(size) || s.written != size {
		return fmt.Errorf("%w: staged %d, wrote %d, commit %d", ErrSizeMismatch, fi.Size(), s.written, size)
	}
	return nil
}

// Abort closes and removes the staging file.
func (s *Slot) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStage()
	return nil
}

func (s *Slot) closeStage() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	s.fs.Remove(s.stagePath())
}

// Digest returns the sha256 of the last committed image, nil before the
// first commit.
func (s *Slot) Digest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}

func (s *Slot) stagePath() string {
	return filepath.Join(s.dir, stageName)
}
