package httpwire

import (
	"bufio"
	"io"
	"strconv"
)

// Content types
const (
	ContentHTML  = "text/html; charset=utf-8"
	ContentJSON  = "application/json"
	ContentPlain = "text/plain; charset=utf-8"
)

// StatusText returns the reason phrase for the status codes the panel uses.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 413:
		return "Payload Too Large"
	case 500:
		return "Internal Server Error"
	default:
		return "Status"
	}
}

// WriteResponse writes a complete response with a fixed-length body.
func WriteResponse(w io.Writer, code int, contentType string, body []byte) error {
	bw := bufio.NewWriterSize(w, 256)
	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(code))
	bw.WriteByte(' ')
	bw.WriteString(StatusText(code))
	bw.WriteString("\r\nContent-Type: ")
	bw.WriteString(contentType)
	bw.WriteString("\r\nContent-Length: ")
	bw.WriteString(strconv.Itoa(len(body)))
	bw.WriteString("\r\nCache-Control: no-store\r\nConnection: close\r\n\r\n")
	bw.Write(body)
	return bw.Flush()
}
