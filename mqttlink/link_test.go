package mqttlink

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"openenterprise/webota/panel"
	"openenterprise/webota/storage/memslot"
	"openenterprise/webota/update"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPanel(t *testing.T) (*panel.Panel, *int) {
	t.Helper()
	temp := 21.5
	p := panel.New("bench")
	p.AddReadout("temp", panel.Float(&temp, "C"))
	presses := 0
	if err := p.AddButton("relay1", "Relay", func() { presses++ }); err != nil {
		t.Fatal(err)
	}
	return p, &presses
}

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		readout  string
		press    string
		interval time.Duration
	}{
		{"zero", Config{}, "webota/readout", "webota/press", DefaultInterval},
		{"prefix", Config{Prefix: "lab/bench1", Interval: time.Minute}, "lab/bench1/readout", "lab/bench1/press", time.Minute},
		{"trailing slash", Config{Prefix: "lab/"}, "lab/readout", "lab/press", DefaultInterval},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New(nil, nil, tc.cfg, discardLogger())
			if string(l.topicReadout) != tc.readout {
				t.Errorf("readout topic = %s, want %s", l.topicReadout, tc.readout)
			}
			if string(l.topicPress) != tc.press {
				t.Errorf("press topic = %s, want %s", l.topicPress, tc.press)
			}
			if l.cfg.Interval != tc.interval {
				t.Errorf("interval = %v, want %v", l.cfg.Interval, tc.interval)
			}
			if l.Connected() {
				t.Error("new link should not be connected")
			}
		})
	}
}

func TestKeepAlive(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     uint16
	}{
		{time.Second, 60},
		{30 * time.Second, 60},
		{time.Minute, 120},
		{10 * time.Minute, 1200},
		{48 * time.Hour, 0xFFFF},
	}
	for _, tc := range tests {
		if got := keepAlive(tc.interval); got != tc.want {
			t.Errorf("keepAlive(%v) = %d, want %d", tc.interval, got, tc.want)
		}
	}
}

func TestAppendStatusJSON(t *testing.T) {
	tests := []struct {
		name string
		st   update.Status
		want string
	}{
		{
			name: "idle",
			st:   update.Status{},
			want: `{"state":"idle","id":"","file":"","bytes":0,"capacity":0,"error":"none"}`,
		},
		{
			name: "writing",
			st: update.Status{
				ID:           "abc",
				State:        update.Writing,
				BytesWritten: 8192,
				Capacity:     0x1EF000,
				Filename:     `fw "v2".bin`,
			},
			want: `{"state":"writing","id":"abc","file":"fw \"v2\".bin","bytes":8192,"capacity":2027520,"error":"none"}`,
		},
		{
			name: "failed",
			st:   update.Status{State: update.Failed, LastError: update.CommitFailed},
			want: `{"state":"failed","id":"","file":"","bytes":0,"capacity":0,"error":"commit-failed"}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(AppendStatusJSON(nil, tc.st)); got != tc.want {
				t.Errorf("json = %s\nwant   %s", got, tc.want)
			}
		})
	}
}

func TestOnPublishPress(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    int
	}{
		{"press", "webota/press", "relay1", 1},
		{"whitespace", "webota/press", " relay1\n", 1},
		{"other topic", "webota/readout", "relay1", 0},
		{"unknown id", "webota/press", "relay9", 0},
		{"empty", "webota/press", "", 0},
		{"oversized", "webota/press", strings.Repeat("r", 200), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, presses := newPanel(t)
			l := New(p, nil, Config{}, discardLogger())

			r := strings.NewReader(tc.payload)
			err := l.onPublish(mqtt.Header{}, mqtt.VariablesPublish{TopicName: []byte(tc.topic)}, r)
			if err != nil {
				t.Fatalf("onPublish: %v", err)
			}
			if *presses != tc.want {
				t.Errorf("presses = %d, want %d", *presses, tc.want)
			}
			if tc.topic == "webota/press" && r.Len() != 0 {
				t.Errorf("%d payload bytes left unread", r.Len())
			}
		})
	}
}

func TestQueueStatus(t *testing.T) {
	s := update.NewSession(memslot.New(0x10000), nil, discardLogger())
	l := New(nil, s, Config{}, discardLogger())

	if l.pending {
		t.Fatal("nothing should be pending before a change")
	}
	update.Stream(s, "fw.bin", strings.NewReader("image"))

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		t.Fatal("session change should be pending")
	}
	if l.status.State != update.Finalized || l.status.Filename != "fw.bin" {
		t.Errorf("queued status = %+v", l.status)
	}
}

// packet is one MQTT control packet seen by the fake broker.
type packet struct {
	kind byte
	body []byte
}

// broker is a minimal MQTT server: it acknowledges CONNECT and SUBSCRIBE
// and records every packet the client sends.
type broker struct {
	conn    net.Conn
	packets chan packet
	out     chan []byte
}

func newBroker(conn net.Conn) *broker {
	b := &broker{conn: conn, packets: make(chan packet, 16), out: make(chan []byte, 16)}
	go b.readLoop()
	go b.writeLoop()
	return b
}

func (b *broker) readLoop() {
	defer close(b.packets)
	r := bufio.NewReader(b.conn)
	for {
		first, err := r.ReadByte()
		if err != nil {
			return
		}
		length, mult := 0, 1
		for {
			c, err := r.ReadByte()
			if err != nil {
				return
			}
			length += int(c&0x7F) * mult
			mult *= 128
			if c&0x80 == 0 {
				break
			}
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return
		}
		switch kind := first >> 4; kind {
		case 1: // CONNECT
			b.out <- []byte{0x20, 0x02, 0x00, 0x00}
		case 8: // SUBSCRIBE
			b.out <- []byte{0x90, 0x03, body[0], body[1], 0x00}
		}
		b.packets <- packet{kind: first >> 4, body: body}
	}
}

func (b *broker) writeLoop() {
	for p := range b.out {
		if _, err := b.conn.Write(p); err != nil {
			return
		}
	}
}

// publish sends a QoS0 PUBLISH to the client.
func (b *broker) publish(topic, payload string) {
	body := []byte{byte(len(topic) >> 8), byte(len(topic))}
	body = append(body, topic...)
	body = append(body, payload...)
	b.out <- append([]byte{0x30, byte(len(body))}, body...)
}

// next returns the next packet of the given kind, skipping others.
func (b *broker) next(t *testing.T, kind byte) packet {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-b.packets:
			if !ok {
				t.Fatalf("connection closed waiting for packet type %d", kind)
			}
			if p.kind == kind {
				return p
			}
		case <-timeout:
			t.Fatalf("timed out waiting for packet type %d", kind)
		}
	}
}

// splitPublish returns the topic and payload of a QoS0 PUBLISH body.
func splitPublish(body []byte) (string, string) {
	n := int(body[0])<<8 | int(body[1])
	return string(body[2 : 2+n]), string(body[2+n:])
}

func TestLinkWithBroker(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	b := newBroker(server)
	defer close(b.out)

	p, presses := newPanel(t)
	s := update.NewSession(memslot.New(0x10000), nil, discardLogger())
	l := New(p, s, Config{ClientID: "bench", Interval: time.Hour}, discardLogger())
	defer l.Close()

	if err := l.Connect(client); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !l.Connected() {
		t.Fatal("link should be connected")
	}

	sub := b.next(t, 8)
	if !strings.Contains(string(sub.body), "webota/press") {
		t.Errorf("subscribe body %q missing press topic", sub.body)
	}

	topic, payload := splitPublish(b.next(t, 3).body)
	if topic != "webota/readout" || payload != `{"temp":"21.5C"}` {
		t.Errorf("first publish = %s %s", topic, payload)
	}
	topic, payload = splitPublish(b.next(t, 3).body)
	if topic != "webota/ota" || !strings.HasPrefix(payload, `{"state":"idle"`) {
		t.Errorf("second publish = %s %s", topic, payload)
	}

	b.publish("webota/press", "relay1")
	for i := 0; i < 5 && *presses == 0; i++ {
		if err := l.Poll(time.Now()); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if *presses != 1 {
		t.Errorf("presses = %d, want 1", *presses)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dials := 0
	dialErr := errors.New("broker unreachable")

	l := New(nil, nil, Config{}, discardLogger())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(context.Context) (io.ReadWriteCloser, error) {
			dials++
			if dials == 1 {
				cancel()
			}
			return nil, dialErr
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}
