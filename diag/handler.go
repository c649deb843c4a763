package diag

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// Compacted message limits.
const (
	maxMessageLen = 128
	maxAttrs      = 4
)

// Handler writes records through a text handler and copies INFO and above
// into a Ring.
type Handler struct {
	text  slog.Handler
	ring  *Ring
	attrs []slog.Attr
	group string
}

// NewHandler returns a handler writing text to w and recent records to
// ring.
func NewHandler(w io.Writer, ring *Ring, opts *slog.HandlerOptions) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		text: slog.NewTextHandler(w, opts),
		ring: ring,
	}
}

// Enabled reports whether the text handler takes level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

// Handle writes r and, from INFO up, records it in the ring.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)
	if h.ring != nil && r.Level >= slog.LevelInfo {
		t := r.Time
		if t.IsZero() {
			t = time.Now()
		}
		h.ring.Add(Entry{Time: t, Level: r.Level, Message: h.compact(r)})
	}
	return err
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{
		text:  h.text.WithAttrs(attrs),
		ring:  h.ring,
		attrs: merged,
		group: h.group,
	}
}

// WithGroup returns a handler that prefixes messages with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		text:  h.text.WithGroup(name),
		ring:  h.ring,
		attrs: h.attrs,
		group: group,
	}
}

// compact renders "group:msg k=v ..." with at most maxAttrs attributes,
// truncated to maxMessageLen bytes.
func (h *Handler) compact(r slog.Record) string {
	buf := make([]byte, 0, maxMessageLen)
	if h.group != "" {
		buf = append(buf, h.group...)
		buf = append(buf, ':')
	}
	buf = append(buf, r.Message...)

	n := 0
	add := func(a slog.Attr) bool {
		if n >= maxAttrs || len(buf) >= maxMessageLen-10 {
			return false
		}
		buf = append(buf, ' ')
		buf = append(buf, a.Key...)
		buf = append(buf, '=')
		buf = appendValue(buf, a.Value)
		n++
		return true
	}
	for _, a := range h.attrs {
		if !add(a) {
			break
		}
	}
	r.Attrs(add)

	if len(buf) > maxMessageLen {
		buf = buf[:maxMessageLen]
	}
	return string(buf)
}

func appendValue(buf []byte, v slog.Value) []byte {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return append(buf, v.String()...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', 4, 64)
	default:
		return append(buf, '?')
	}
}
