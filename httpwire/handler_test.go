package httpwire

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"openenterprise/webota/panel"
	"openenterprise/webota/storage/memslot"
	"openenterprise/webota/update"
)

// conn joins a scripted request with a captured response.
type conn struct {
	io.Reader
	out bytes.Buffer
}

func (c *conn) Write(p []byte) (int, error) { return c.out.Write(p) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h *Handler, raw string) *http.Response {
	t.Helper()
	c := &conn{Reader: strings.NewReader(raw)}
	if err := h.Serve(c); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(&c.out), nil)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func uploadRequest(t *testing.T, image []byte) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(update.FormField, "fw.bin")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(image)
	mw.Close()
	return "POST /update HTTP/1.1\r\n" +
		"Content-Type: " + mw.FormDataContentType() + "\r\n" +
		"Content-Length: " + strconv.Itoa(body.Len()) + "\r\n\r\n" + body.String()
}

func newHandler(slotSize uint32) (*Handler, *panel.Panel, *memslot.Slot, *update.Session) {
	p := panel.New("bench")
	slot := memslot.New(slotSize)
	s := update.NewSession(slot, nil, discardLogger())
	return NewHandler(p, s, discardLogger()), p, slot, s
}

func TestHandlerPage(t *testing.T) {
	h, _, _, _ := newHandler(0x10000)
	resp := serve(t, h, "GET / HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if body := readBody(t, resp); !strings.Contains(body, "<title>bench</title>") {
		t.Errorf("page missing title: %s", body)
	}
}

func TestHandlerReadout(t *testing.T) {
	h, p, _, _ := newHandler(0x10000)
	temp := 21.5
	p.AddReadout("temp", panel.Float(&temp, "C"))

	resp := serve(t, h, "GET /readout HTTP/1.1\r\n\r\n")
	if ct := resp.Header.Get("Content-Type"); ct != ContentJSON {
		t.Errorf("content type = %q", ct)
	}
	if body := readBody(t, resp); body != `{"temp":"21.5C"}` {
		t.Errorf("body = %s", body)
	}
}

func TestHandlerButton(t *testing.T) {
	h, p, _, _ := newHandler(0x10000)
	var calls int
	p.AddButton("relay1", "Relay", func() { calls++ })

	resp := serve(t, h, "GET /relay1 HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "relay1 pressed" {
		t.Errorf("body = %q", body)
	}
	if calls != 1 {
		t.Errorf("action ran %d times, want 1", calls)
	}
}

func TestHandlerNotFound(t *testing.T) {
	tests := []struct {
		raw  string
		code int
	}{
		{"GET /nope HTTP/1.1\r\n\r\n", 404},
		{"POST /relay1 HTTP/1.1\r\nContent-Length: 0\r\n\r\n", 404},
		{"GET /update HTTP/1.1\r\n\r\n", 405},
		{"POST /readout HTTP/1.1\r\nContent-Length: 0\r\n\r\n", 405},
		{"DELETE / HTTP/1.1\r\n\r\n", 405},
	}
	for _, tc := range tests {
		t.Run(strings.Fields(tc.raw)[0]+" "+strings.Fields(tc.raw)[1], func(t *testing.T) {
			h, p, _, _ := newHandler(0x10000)
			p.AddButton("relay1", "Relay", func() {})
			if resp := serve(t, h, tc.raw); resp.StatusCode != tc.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.code)
			}
		})
	}
}

func TestHandlerUpload(t *testing.T) {
	h, _, slot, s := newHandler(0x10000)
	image := bytes.Repeat([]byte("firmware"), 2000)

	resp := serve(t, h, uploadRequest(t, image))

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "OK" {
		t.Fatalf("body = %q, want OK (session %+v)", body, s.Snapshot())
	}
	if !bytes.Equal(slot.Image(), image) {
		t.Error("slot image differs from upload")
	}
}

func TestHandlerUploadFailures(t *testing.T) {
	tests := []struct {
		name     string
		slotSize uint32
		raw      func(t *testing.T) string
	}{
		{"too large", 0x2000, func(t *testing.T) string {
			return uploadRequest(t, make([]byte, 0x1001))
		}},
		{"empty image", 0x10000, func(t *testing.T) string {
			return uploadRequest(t, nil)
		}},
		{"not multipart", 0x10000, func(t *testing.T) string {
			return "POST /update HTTP/1.1\r\nContent-Type: application/octet-stream\r\nContent-Length: 4\r\n\r\nabcd"
		}},
		{"no storage", 0, func(t *testing.T) string {
			return uploadRequest(t, []byte("fw"))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _, _ := newHandler(tc.slotSize)
			resp := serve(t, h, tc.raw(t))
			if resp.StatusCode != 200 {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if body := readBody(t, resp); body != "FAIL" {
				t.Errorf("body = %q, want FAIL", body)
			}
		})
	}
}

func TestHandlerBadRequest(t *testing.T) {
	h, _, _, _ := newHandler(0x10000)
	c := &conn{Reader: strings.NewReader("garbage\r\n\r\n")}
	if err := h.Serve(c); err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(c.out.String(), "HTTP/1.1 400 ") {
		t.Errorf("response = %q", c.out.String())
	}
}
