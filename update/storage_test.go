package update

import (
	"errors"
	"testing"
)

func TestResolveCapacity(t *testing.T) {
	tests := []struct {
		name    string
		free    uint32
		freeErr error
		want    uint32
		wantErr bool
	}{
		{"exact blocks", 0x101000, nil, 0x100000, false},
		{"rounds down", 0x101FFF, nil, 0x100000, false},
		{"one block", 0x2000, nil, 0x1000, false},
		{"below a block after margin", 0x1FFF, nil, 0, true},
		{"margin only", 0x1000, nil, 0, true},
		{"empty", 0, nil, 0, true},
		{"backend error", 0x100000, errInjected, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStorage(tc.free)
			st.freeErr = tc.freeErr
			got, err := ResolveCapacity(st)
			if tc.wantErr {
				if !errors.Is(err, ErrNoStorageBackend) {
					t.Fatalf("err = %v, want ErrNoStorageBackend", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("capacity = %#x, want %#x", got, tc.want)
			}
			if got%BlockSize != 0 {
				t.Errorf("capacity %#x not block aligned", got)
			}
		})
	}
}

func TestResolveCapacityNilStorage(t *testing.T) {
	if _, err := ResolveCapacity(nil); !errors.Is(err, ErrNoStorageBackend) {
		t.Errorf("err = %v, want ErrNoStorageBackend", err)
	}
}

func TestErrorKindErr(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want error
		name string
	}{
		{ErrNone, nil, "none"},
		{NoStorageBackend, ErrNoStorageBackend, "no-storage-backend"},
		{AllocationFailed, ErrAllocationFailed, "allocation-failed"},
		{WriteFailed, ErrWriteFailed, "write-failed"},
		{CommitFailed, ErrCommitFailed, "commit-failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.kind.Err(); got != tc.want {
				t.Errorf("Err() = %v, want %v", got, tc.want)
			}
			if got := tc.kind.String(); got != tc.name {
				t.Errorf("String() = %q, want %q", got, tc.name)
			}
		})
	}
}
