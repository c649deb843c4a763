package update

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
)

// FormField is the multipart field carrying the firmware image.
const FormField = "update"

// ErrNoFirmwarePart is returned when a form has no FormField part.
var ErrNoFirmwarePart = errors.New("update: no firmware part in form")

// Receive reads a multipart/form-data body and streams the firmware part
// into s. Other parts are skipped. It reports whether this upload, and not
// one that preempted it, ended with a committed image.
func Receive(s *Session, body io.Reader, boundary string) (bool, error) {
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return false, ErrNoFirmwarePart
		}
		if err != nil {
			return false, fmt.Errorf("update: reading form: %w", err)
		}
		if part.FormName() != FormField {
			part.Close()
			continue
		}
		ok, err := Stream(s, part.FileName(), part)
		part.Close()
		return ok, err
	}
}

// Stream cuts r into ChunkSize chunks and feeds them to s in order. The
// last chunk carries Final. An empty r delivers a single empty final chunk.
//
// A transport error stops the stream without committing; the session stays
// in Writing until the next upload preempts it or it is reset. Once the session
// has failed the remainder of r is still read so the client sees a response
// rather than a reset connection.
func Stream(s *Session, filename string, r io.Reader) (bool, error) {
	cur := make([]byte, ChunkSize)
	next := make([]byte, ChunkSize)

	n, err := readChunk(r, cur)
	if err != nil {
		return false, err
	}
	var (
		offset  uint32
		id      string
		started bool
	)
	for {
		m := 0
		final := n < ChunkSize
		if !final {
			m, err = readChunk(r, next)
			if err != nil {
				return false, err
			}
			final = m == 0
		}
		st := s.Consume(filename, Chunk{Offset: offset, Data: cur[:n], Final: final, Session: id})
		if !started {
			id, started = st.ID, true
		}
		if final {
			return st.State == Finalized && st.ID == id, nil
		}
		offset += uint32(n)
		cur, next = next, cur
		n = m
	}
}

func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		return n, nil
	}
	return n, fmt.Errorf("update: reading upload: %w", err)
}
