package console

import (
	"errors"
	"io"
)

// MaxLineLen is the longest command line accepted.
const MaxLineLen = 256

// ErrLineTooLong is returned once for a line that overflowed; the rest of
// that line is discarded.
var ErrLineTooLong = errors.New("console: line too long")

// Telnet protocol bytes
const (
	telnetIAC  = 0xFF
	telnetSB   = 0xFA
	telnetSE   = 0xF0
	telnetWILL = 0xFB
	telnetDONT = 0xFE
	telnetEcho = 0x01
)

// Telnet echo control
var (
	telnetWillEcho = []byte{telnetIAC, telnetWILL, telnetEcho} // server echoes, client stops
	telnetWontEcho = []byte{telnetIAC, 0xFC, telnetEcho}       // client resumes echo
)

type iacState uint8

const (
	iacNone iacState = iota
	iacCommand
	iacOption
	iacSub
	iacSubIAC
)

// LineBuffer assembles command lines from raw telnet bytes. Negotiation
// sequences are dropped, as is anything outside printable ASCII. A CR LF pair
// (or any run of line endings) ends a single line.
type LineBuffer struct {
	buf      [MaxLineLen]byte
	n        int
	iac      iacState
	eol      bool
	overflow bool
}

// Push consumes one byte. ok reports that b completed a line, which may be
// empty.
func (lb *LineBuffer) Push(b byte) (line string, ok bool, err error) {
	switch lb.iac {
	case iacCommand:
		switch {
		case b == telnetSB:
			lb.iac = iacSub
		case b >= telnetWILL && b <= telnetDONT:
			lb.iac = iacOption
		default:
			lb.iac = iacNone
		}
		return "", false, nil
	case iacOption:
		lb.iac = iacNone
		return "", false, nil
	case iacSub:
		if b == telnetIAC {
			lb.iac = iacSubIAC
		}
		return "", false, nil
	case iacSubIAC:
		if b == telnetSE {
			lb.iac = iacNone
		} else {
			lb.iac = iacSub
		}
		return "", false, nil
	}

	switch {
	case b == telnetIAC:
		lb.iac = iacCommand
	case b == '\r' || b == '\n':
		if lb.eol {
			return "", false, nil
		}
		lb.eol = true
		if lb.overflow {
			lb.overflow = false
			lb.n = 0
			return "", false, nil
		}
		line = string(lb.buf[:lb.n])
		lb.n = 0
		return line, true, nil
	case b >= 32 && b < 127:
		lb.eol = false
		if lb.overflow {
			return "", false, nil
		}
		if lb.n == len(lb.buf) {
			lb.overflow = true
			lb.n = 0
			return "", false, ErrLineTooLong
		}
		lb.buf[lb.n] = b
		lb.n++
	}
	return "", false, nil
}

// Reset discards any partial line.
func (lb *LineBuffer) Reset() {
	*lb = LineBuffer{}
}

// lineReader pulls lines out of a byte stream.
type lineReader struct {
	r    io.Reader
	lb   LineBuffer
	buf  [64]byte
	pos  int
	fill int
}

func (lr *lineReader) next() (string, error) {
	for {
		for lr.pos < lr.fill {
			b := lr.buf[lr.pos]
			lr.pos++
			line, ok, err := lr.lb.Push(b)
			if err != nil {
				return "", err
			}
			if ok {
				return line, nil
			}
		}
		n, err := lr.r.Read(lr.buf[:])
		lr.pos, lr.fill = 0, n
		if n > 0 {
			continue
		}
		if err != nil {
			return "", err
		}
	}
}
