package httpwire

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ErrBadChunk is returned for a malformed chunked body.
var ErrBadChunk = errors.New("httpwire: malformed chunked body")

// chunkedReader decodes a Transfer-Encoding: chunked body. Chunk
// extensions and trailer fields are read and ignored.
type chunkedReader struct {
	r    *bufio.Reader
	left int64 // bytes remaining in the current chunk
	done bool
	err  error
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	if c.left == 0 {
		if c.err = c.nextChunk(); c.err != nil {
			return 0, c.err
		}
		if c.done {
			return 0, io.EOF
		}
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err == nil && c.left == 0 {
		err = c.crlf()
	}
	c.err = err
	return n, err
}

// nextChunk reads a size line. A zero size consumes the trailer.
func (c *chunkedReader) nextChunk() error {
	line, err := readLine(c.r)
	if err != nil {
		return unexpected(err)
	}
	size, _, _ := strings.Cut(line, ";")
	n, err := strconv.ParseInt(strings.TrimSpace(size), 16, 64)
	if err != nil || n < 0 {
		return ErrBadChunk
	}
	if n > 0 {
		c.left = n
		return nil
	}
	for {
		line, err := readLine(c.r)
		if err != nil {
			return unexpected(err)
		}
		if line == "" {
			c.done = true
			return nil
		}
	}
}

func (c *chunkedReader) crlf() error {
	line, err := readLine(c.r)
	if err != nil {
		return unexpected(err)
	}
	if line != "" {
		return ErrBadChunk
	}
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
