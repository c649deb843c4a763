package diag

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRingWraps(t *testing.T) {
	var r Ring
	for i := 0; i < RingSize+5; i++ {
		r.Add(Entry{Message: fmt.Sprint(i)})
	}
	got := r.Recent()
	if len(got) != RingSize {
		t.Fatalf("len = %d, want %d", len(got), RingSize)
	}
	if got[0].Message != "5" {
		t.Errorf("oldest = %q, want 5", got[0].Message)
	}
	if got[RingSize-1].Message != fmt.Sprint(RingSize+4) {
		t.Errorf("newest = %q", got[RingSize-1].Message)
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after reset = %d", r.Len())
	}
}

func TestHandler(t *testing.T) {
	var out bytes.Buffer
	var ring Ring
	logger := slog.New(NewHandler(&out, &ring, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Debug("ota:drain", slog.Int("len", 10))
	logger.Info("ota:begin", slog.String("file", "fw.bin"), slog.Uint64("bytes", 42))
	logger.With(slog.String("conn", "7")).Warn("http:slow", slog.Duration("took", 1500*time.Millisecond))
	logger.WithGroup("mqtt").Error("connect-failed", slog.Bool("retry", true))

	if !strings.Contains(out.String(), "ota:drain") {
		t.Error("debug record missing from text output")
	}

	tests := []struct {
		level slog.Level
		msg   string
	}{
		{slog.LevelInfo, "ota:begin file=fw.bin bytes=42"},
		{slog.LevelWarn, "http:slow conn=7 took=1.5s"},
		{slog.LevelError, "mqtt:connect-failed retry=true"},
	}
	got := ring.Recent()
	if len(got) != len(tests) {
		t.Fatalf("ring holds %d entries, want %d", len(got), len(tests))
	}
	for i, tc := range tests {
		if got[i].Level != tc.level || got[i].Message != tc.msg {
			t.Errorf("entry %d = %v %q, want %v %q", i, got[i].Level, got[i].Message, tc.level, tc.msg)
		}
		if got[i].Time.IsZero() {
			t.Errorf("entry %d has no time", i)
		}
	}
}

func TestHandlerTruncates(t *testing.T) {
	var ring Ring
	logger := slog.New(NewHandler(&bytes.Buffer{}, &ring, nil))
	logger.Info(strings.Repeat("x", 200), slog.String("a", "1"), slog.String("b", "2"),
		slog.String("c", "3"), slog.String("d", "4"), slog.String("e", "5"))

	msg := ring.Recent()[0].Message
	if len(msg) != maxMessageLen {
		t.Errorf("len = %d, want %d", len(msg), maxMessageLen)
	}

	ring.Reset()
	logger.Info("m", slog.Int("a", 1), slog.Int("b", 2), slog.Int("c", 3), slog.Int("d", 4), slog.Int("e", 5))
	if got := ring.Recent()[0].Message; got != "m a=1 b=2 c=3 d=4" {
		t.Errorf("message = %q", got)
	}
}
