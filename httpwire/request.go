// Package httpwire speaks just enough HTTP/1.1 to serve the device panel
// over a raw TCP connection: one request per connection, responses sent
// with Connection: close.
package httpwire

import (
	"bufio"
	"errors"
	"io"
	"mime"
	"strconv"
	"strings"
)

// Limits on the request head.
const (
	MaxLineLen = 1024
	MaxHeaders = 32
)

// Errors
var (
	ErrMalformed     = errors.New("httpwire: malformed request")
	ErrLineTooLong   = errors.New("httpwire: request line too long")
	ErrTooManyFields = errors.New("httpwire: too many header fields")
	ErrNotMultipart  = errors.New("httpwire: not a multipart form")
)

// Request is a parsed request head.
type Request struct {
	Method        string
	Path          string
	Query         string
	Proto         string
	ContentType   string
	ContentLength int64
	Chunked       bool
	Host          string
}

// ReadRequest reads the request line and header fields from r. The body is
// left unread in r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, ErrMalformed
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/1.") || !strings.HasPrefix(target, "/") {
		return nil, ErrMalformed
	}
	req := &Request{Method: method, Proto: proto, ContentLength: -1}
	req.Path, req.Query, _ = strings.Cut(target, "?")

	for n := 0; ; n++ {
		line, err := readLine(r)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if n >= MaxHeaders {
			return nil, ErrTooManyFields
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, ErrMalformed
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "content-type":
			req.ContentType = value
		case "content-length":
			cl, err := strconv.ParseInt(value, 10, 64)
			if err != nil || cl < 0 {
				return nil, ErrMalformed
			}
			req.ContentLength = cl
		case "transfer-encoding":
			req.Chunked = strings.EqualFold(value, "chunked")
		case "host":
			req.Host = value
		}
	}
	return req, nil
}

// Body returns a reader over the request body that follows r.
func (req *Request) Body(r *bufio.Reader) io.Reader {
	switch {
	case req.Chunked:
		return &chunkedReader{r: r}
	case req.ContentLength >= 0:
		return io.LimitReader(r, req.ContentLength)
	default:
		return strings.NewReader("")
	}
}

// Boundary returns the multipart boundary from the request content type.
func (req *Request) Boundary() (string, error) {
	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return "", ErrNotMultipart
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return "", ErrNotMultipart
	}
	return params["boundary"], nil
}

func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, isPrefix, err := r.ReadLine()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		line = append(line, frag...)
		if len(line) > MaxLineLen {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}
