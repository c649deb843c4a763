package update

import "fmt"

// Storage is the backend-specific primitive that writes a firmware image to
// non-volatile storage. Exactly one write is in progress at a time.
type Storage interface {
	// FreeSpace reports the bytes available for a new image.
	FreeSpace() (uint32, error)
	// Begin allocates room for an image of at most capacity bytes.
	Begin(capacity uint32) error
	// Write appends p to the image.
	Write(p []byte) (int, error)
	// Commit makes the image the one to boot next. The backend checks the
	// image itself and returns an error if it is not usable.
	Commit(size uint32) error
	// Abort discards a write in progress. It is safe to call at any time.
	Abort() error
}

// Capacity rounding. The margin keeps a new image clear of the program
// region currently running.
const (
	SafetyMargin = 0x1000
	BlockSize    = 0x1000
)

// ResolveCapacity returns the largest image the backend can take: its free
// space less SafetyMargin, rounded down to a BlockSize boundary.
func ResolveCapacity(st Storage) (uint32, error) {
	if st == nil {
		return 0, ErrNoStorageBackend
	}
	free, err := st.FreeSpace()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoStorageBackend, err)
	}
	if free <= SafetyMargin {
		return 0, fmt.Errorf("%w: %d bytes free", ErrNoStorageBackend, free)
	}
	capacity := (free - SafetyMargin) &^ (BlockSize - 1)
	if capacity == 0 {
		return 0, fmt.Errorf("%w: %d bytes free", ErrNoStorageBackend, free)
	}
	return capacity, nil
}
