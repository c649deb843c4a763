package httpwire

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"time"

	"openenterprise/webota/panel"
	"openenterprise/webota/update"
)

// Upload outcome bodies.
var (
	bodyOK   = []byte("OK")
	bodyFail = []byte("FAIL")
)

// Handler serves the panel routes for one request at a time.
type Handler struct {
	Panel   *panel.Panel
	Session *update.Session
	Logger  *slog.Logger

	buf []byte
}

// NewHandler returns a handler for p and s.
func NewHandler(p *panel.Panel, s *update.Session, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Panel:   p,
		Session: s,
		Logger:  logger,
		buf:     make([]byte, 0, 2048),
	}
}

// Serve reads one request from rw and writes the response.
func (h *Handler) Serve(rw io.ReadWriter) error {
	br := bufio.NewReaderSize(rw, 1024)
	req, err := ReadRequest(br)
	if err != nil {
		if err != io.EOF {
			h.Logger.Warn("http:bad-request", slog.String("err", err.Error()))
			WriteResponse(rw, 400, ContentPlain, []byte("bad request"))
		}
		return err
	}
	start := time.Now()
	code, err := h.route(rw, br, req)
	h.Logger.Info("http:request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", code),
		slog.Duration("took", time.Since(start)),
	)
	return err
}

func (h *Handler) route(w io.Writer, br *bufio.Reader, req *Request) (int, error) {
	switch req.Path {
	case "/":
		if req.Method != "GET" {
			return h.reply(w, 405, ContentPlain, []byte("method not allowed"))
		}
		h.buf = h.Panel.AppendPage(h.buf[:0])
		return h.reply(w, 200, ContentHTML, h.buf)

	case "/readout":
		if req.Method != "GET" {
			return h.reply(w, 405, ContentPlain, []byte("method not allowed"))
		}
		h.buf = h.Panel.AppendJSON(h.buf[:0])
		return h.reply(w, 200, ContentJSON, h.buf)

	case "/update":
		if req.Method != "POST" {
			return h.reply(w, 405, ContentPlain, []byte("method not allowed"))
		}
		return h.upload(w, br, req)
	}

	id := strings.TrimPrefix(req.Path, "/")
	if req.Method != "GET" || !h.Panel.Press(id) {
		return h.reply(w, 404, ContentPlain, []byte("not found"))
	}
	h.buf = append(append(h.buf[:0], id...), " pressed"...)
	return h.reply(w, 200, ContentPlain, h.buf)
}

// upload streams the request body into the session. The body is read to
// the end before the response goes out.
func (h *Handler) upload(w io.Writer, br *bufio.Reader, req *Request) (int, error) {
	body := req.Body(br)
	ok := false
	if boundary, err := req.Boundary(); err != nil {
		h.Logger.Warn("ota:bad-upload", slog.String("err", err.Error()))
	} else if ok, err = update.Receive(h.Session, body, boundary); err != nil {
		h.Logger.Warn("ota:upload-error", slog.String("err", err.Error()))
	}
	io.Copy(io.Discard, body)

	if !ok {
		return h.reply(w, 200, ContentPlain, bodyFail)
	}
	return h.reply(w, 200, ContentPlain, bodyOK)
}

func (h *Handler) reply(w io.Writer, code int, contentType string, body []byte) (int, error) {
	return code, WriteResponse(w, code, contentType, body)
}
