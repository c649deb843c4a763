package fileslot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"openenterprise/webota/update"
)

func fixedFree(n uint64) Option {
	return WithFreeSpace(func(string) (uint64, error) { return n, nil })
}

func TestFreeSpace(t *testing.T) {
	tests := []struct {
		name  string
		free  uint64
		limit uint32
		want  uint32
	}{
		{"small", 0x5000, 0, 0x5000},
		{"clamped to 32 bits", 1 << 40, 0, math.MaxUint32},
		{"limited", 1 << 30, 0x200000, 0x200000},
		{"limit above free", 0x1000, 0x200000, 0x1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(afero.NewMemMapFs(), "/slot", fixedFree(tc.free), WithLimit(tc.limit))
			got, err := s.FreeSpace()
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("FreeSpace() = %#x, want %#x", got, tc.want)
			}
		})
	}
}

func TestFreeSpaceError(t *testing.T) {
	boom := errors.New("boom")
	s := New(afero.NewMemMapFs(), "/slot", WithFreeSpace(func(string) (uint64, error) { return 0, boom }))
	if _, err := s.FreeSpace(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/slot/firmware.bin", []byte("old image"), 0o644)
	s := New(fs, "/slot", fixedFree(0x10000))

	image := bytes.Repeat([]byte("new"), 1000)
	if err := s.Begin(0x8000); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(image[:1000]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(image[1000:]); err != nil {
		t.Fatal(err)
	}

	// Current image untouched until commit.
	if got, _ := afero.ReadFile(fs, "/slot/firmware.bin"); string(got) != "old image" {
		t.Fatalf("image replaced before commit: %q", got)
	}

	if err := s.Commit(uint32(len(image))); err != nil {
		t.Fatal(err)
	}
	got, err := afero.ReadFile(fs, s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, image) {
		t.Error("committed image differs")
	}
	if ok, _ := afero.Exists(fs, "/slot/firmware.bin.part"); ok {
		t.Error("staging file left behind")
	}

	sum := sha256.Sum256(image)
	if !bytes.Equal(s.Digest(), sum[:]) {
		t.Error("digest mismatch")
	}
	side, _ := afero.ReadFile(fs, "/slot/firmware.bin.sha256")
	if !strings.HasPrefix(string(side), hex.EncodeToString(sum[:])) {
		t.Errorf("digest file = %q", side)
	}
}

func TestCommitFailures(t *testing.T) {
	tests := []struct {
		name    string
		write   []byte
		size    uint32
		wantErr error
	}{
		{"empty", nil, 0, ErrEmptyImage},
		{"size mismatch", []byte("abc"), 4, ErrSizeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			afero.WriteFile(fs, "/slot/firmware.bin", []byte("old"), 0o644)
			s := New(fs, "/slot", fixedFree(0x10000))
			s.Begin(0x1000)
			s.Write(tc.write)

			if err := s.Commit(tc.size); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got, _ := afero.ReadFile(fs, "/slot/firmware.bin"); string(got) != "old" {
				t.Errorf("image replaced by failed commit: %q", got)
			}
			if ok, _ := afero.Exists(fs, "/slot/firmware.bin.part"); ok {
				t.Error("staging file left behind")
			}
		})
	}
}

func TestWriteErrors(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/slot", fixedFree(0x10000))
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrNotWriting) {
		t.Errorf("write before begin: %v", err)
	}
	s.Begin(4)
	if _, err := s.Write([]byte("12345")); !errors.Is(err, ErrFull) {
		t.Errorf("overflow: %v", err)
	}
	s.Abort()
	if _, err := s.Write([]byte("1")); !errors.Is(err, ErrNotWriting) {
		t.Errorf("write after abort: %v", err)
	}
	if err := s.Commit(1); !errors.Is(err, ErrNotWriting) {
		t.Errorf("commit after abort: %v", err)
	}
}

func TestSessionOnFileSlot(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/var/lib/webota", fixedFree(0x40000))
	sess := update.NewSession(s, nil, nil)

	image := bytes.Repeat([]byte{0x5A}, 2*update.ChunkSize+100)
	for off := 0; off < len(image); off += update.ChunkSize {
		end := min(off+update.ChunkSize, len(image))
		sess.Consume("fw.bin", update.Chunk{Offset: uint32(off), Data: image[off:end], Final: end == len(image)})
	}

	if st := sess.Snapshot(); st.State != update.Finalized {
		t.Fatalf("state = %v (%v)", st.State, st.Err)
	}
	if got, _ := afero.ReadFile(fs, s.Path()); !bytes.Equal(got, image) {
		t.Error("committed image differs")
	}
}

func TestFreeSpaceMissingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/var", 0o755); err != nil {
		t.Fatal(err)
	}
	var asked []string
	s := New(fs, "/var/lib/webota", WithFreeSpace(func(dir string) (uint64, error) {
		asked = append(asked, dir)
		return 0x1000, nil
	}))

	if _, err := s.FreeSpace(); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin(0x10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FreeSpace(); err != nil {
		t.Fatal(err)
	}
	want := []string{"/var", "/var/lib/webota"}
	if diff := cmp.Diff(want, asked); diff != "" {
		t.Errorf("queried dirs (-want +got):\n%s", diff)
	}
}

func TestSessionOnFreshOsDir(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("no free space query on " + runtime.GOOS)
	}
	dir := filepath.Join(t.TempDir(), "not-yet", "slot")
	s := New(afero.NewOsFs(), dir, WithLimit(0x40000))
	sess := update.NewSession(s, nil, nil)

	image := bytes.Repeat([]byte{0xA5}, update.ChunkSize+7)
	ok, err := update.Stream(sess, "fw.bin", bytes.NewReader(image))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		st := sess.Snapshot()
		t.Fatalf("state = %v (%v: %v)", st.State, st.LastError, st.Err)
	}
	if got, _ := afero.ReadFile(afero.NewOsFs(), s.Path()); !bytes.Equal(got, image) {
		t.Error("committed image differs")
	}
}
