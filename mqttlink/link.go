// Package mqttlink mirrors a panel over MQTT. Readouts are published as
// JSON on <prefix>/readout every interval, update session changes on
// <prefix>/ota, and a button id published to <prefix>/press presses it.
package mqttlink

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mqtt "github.com/soypat/natiu-mqtt"

	"openenterprise/webota/panel"
	"openenterprise/webota/update"
)

const (
	// DefaultInterval is the readout publish period.
	DefaultInterval = 30 * time.Second
	// DefaultPrefix is the topic prefix.
	DefaultPrefix = "webota"

	connectTimeout = 10 * time.Second
	pollTimeout    = 500 * time.Millisecond
	mqttBufSize    = 512
	maxPressLen    = 64
)

// Topic suffixes
const (
	TopicReadout = "readout"
	TopicOTA     = "ota"
	TopicPress   = "press"
)

var (
	ErrConnectTimeout = errors.New("mqttlink: connect timeout")
	ErrDisconnected   = errors.New("mqttlink: disconnected")
)

// MQTT publish flags (QoS0, not retained, not dup)
var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// Config selects the broker session parameters.
type Config struct {
	// ClientID is suffixed with a random tag so parallel units don't collide.
	ClientID string
	Prefix   string
	Interval time.Duration
}

// Link owns one MQTT client. It is driven from a single goroutine through
// Connect and Poll; status changes from other goroutines are queued.
type Link struct {
	cfg     Config
	panel   *panel.Panel
	logger  *slog.Logger
	client  *mqtt.Client
	conn    io.ReadWriteCloser
	userBuf [mqttBufSize]byte
	payload []byte
	pid     uint16

	topicReadout []byte
	topicOTA     []byte
	topicPress   []byte

	lastReadout time.Time

	mu      sync.Mutex
	tracked bool
	status  update.Status
	pending bool
}

// New returns a link for p. When s is non-nil every state change of the
// session is published.
func New(p *panel.Panel, s *update.Session, cfg Config, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultPrefix
	}

	l := &Link{
		cfg:          cfg,
		panel:        p,
		logger:       logger,
		topicReadout: []byte(cfg.Prefix + "/" + TopicReadout),
		topicOTA:     []byte(cfg.Prefix + "/" + TopicOTA),
		topicPress:   []byte(cfg.Prefix + "/" + TopicPress),
	}
	if s != nil {
		l.tracked = true
		l.status = s.Snapshot()
		s.OnChange(l.queueStatus)
	}
	return l
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Connect performs the MQTT handshake over conn, subscribes to the press
// topic and publishes the current readouts and session status.
func (l *Link) Connect(conn io.ReadWriteCloser) error {
	l.conn = conn
	l.client = mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: l.userBuf[:]},
		OnPub:   l.onPublish,
	})

	var varconn mqtt.VariablesConnect
	clientID := l.cfg.ClientID + "-" + uuid.New().String()[:4]
	varconn.SetDefaultMQTT([]byte(clientID))
	varconn.KeepAlive = keepAlive(l.cfg.Interval)

	l.logger.Info("mqtt:connecting", slog.String("clientid", clientID))
	l.setDeadline(time.Now().Add(connectTimeout))
	if err := l.client.StartConnect(conn, &varconn); err != nil {
		l.logger.Error("mqtt:start-connect-failed", slog.String("err", err.Error()))
		return err
	}

	deadline := time.Now().Add(connectTimeout)
	for !l.client.IsConnected() && time.Now().Before(deadline) {
		l.setDeadline(time.Now().Add(pollTimeout))
		if err := l.client.HandleNext(); err != nil && !isTimeout(err) {
			l.logger.Warn("mqtt:handle-next", slog.String("err", err.Error()))
		}
	}
	if !l.client.IsConnected() {
		l.logger.Error("mqtt:connect-timeout")
		return ErrConnectTimeout
	}
	l.logger.Info("mqtt:connected")

	l.setDeadline(time.Now().Add(connectTimeout))
	sub := mqtt.VariablesSubscribe{
		PacketIdentifier: l.nextPID(),
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: l.topicPress, QoS: mqtt.QoS0},
		},
	}
	if err := l.client.StartSubscribe(sub); err != nil {
		l.logger.Error("mqtt:subscribe-failed", slog.String("err", err.Error()))
		return err
	}
	l.logger.Info("mqtt:subscribed", slog.String("topic", string(l.topicPress)))

	if err := l.publishReadouts(); err != nil {
		return err
	}
	l.lastReadout = time.Now()

	l.mu.Lock()
	l.pending = l.tracked
	l.mu.Unlock()
	return l.publishStatus()
}

// Poll handles incoming packets for up to the poll timeout and publishes
// whatever is due. It returns an error once the session is lost.
func (l *Link) Poll(now time.Time) error {
	if !l.Connected() {
		return ErrDisconnected
	}
	l.setDeadline(now.Add(pollTimeout))
	if err := l.client.HandleNext(); err != nil && !isTimeout(err) {
		l.logger.Warn("mqtt:handle-next", slog.String("err", err.Error()))
		if !l.client.IsConnected() {
			return err
		}
	}
	if !l.client.IsConnected() {
		return ErrDisconnected
	}

	if now.Sub(l.lastReadout) >= l.cfg.Interval {
		l.lastReadout = now
		if err := l.publishReadouts(); err != nil {
			return err
		}
	}
	return l.publishStatus()
}

// Close disconnects from the broker and closes the transport.
func (l *Link) Close() error {
	if l.Connected() {
		l.setDeadline(time.Now().Add(pollTimeout))
		l.client.Disconnect(errors.New("link closed"))
	}
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

// Connected reports whether the broker session is up.
func (l *Link) Connected() bool {
	return l.client != nil && l.client.IsConnected()
}

func (l *Link) publishReadouts() error {
	if l.panel == nil {
		return nil
	}
	l.payload = l.panel.AppendJSON(l.payload[:0])
	return l.publish(l.topicReadout, l.payload)
}

func (l *Link) publishStatus() error {
	l.mu.Lock()
	if !l.pending {
		l.mu.Unlock()
		return nil
	}
	st := l.status
	l.pending = false
	l.mu.Unlock()

	l.payload = AppendStatusJSON(l.payload[:0], st)
	return l.publish(l.topicOTA, l.payload)
}

func (l *Link) publish(topic, payload []byte) error {
	l.setDeadline(time.Now().Add(connectTimeout))
	pubVar := mqtt.VariablesPublish{
		TopicName:        topic,
		PacketIdentifier: l.nextPID(),
	}
	if err := l.client.PublishPayload(pubFlags, pubVar, payload); err != nil {
		l.logger.Error("mqtt:publish-failed",
			slog.String("topic", string(topic)),
			slog.String("err", err.Error()),
		)
		return err
	}
	l.logger.Debug("mqtt:published",
		slog.String("topic", string(topic)),
		slog.Int("bytes", len(payload)),
	)
	return nil
}

// queueStatus records st for the next poll. It may run on any goroutine.
func (l *Link) queueStatus(st update.Status) {
	l.mu.Lock()
	l.status = st
	l.pending = true
	l.mu.Unlock()
}

// onPublish handles messages on the press topic.
func (l *Link) onPublish(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	if string(varPub.TopicName) != string(l.topicPress) {
		return nil
	}
	var buf [maxPressLen]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	// Drain anything past the id limit so the decoder stays in sync.
	io.Copy(io.Discard, r)

	id := strings.TrimSpace(string(buf[:n]))
	if id == "" || l.panel == nil {
		return nil
	}
	if !l.panel.Press(id) {
		l.logger.Warn("mqtt:unknown-button", slog.String("id", id))
		return nil
	}
	l.logger.Info("mqtt:press", slog.String("id", id))
	return nil
}

func (l *Link) nextPID() uint16 {
	l.pid++
	if l.pid == 0 {
		l.pid = 1
	}
	return l.pid
}

func (l *Link) setDeadline(t time.Time) {
	if d, ok := l.conn.(deadliner); ok {
		d.SetDeadline(t)
	}
}

// keepAlive is twice the publish interval in seconds, at least one minute.
func keepAlive(interval time.Duration) uint16 {
	secs := 2 * interval / time.Second
	switch {
	case secs < 60:
		return 60
	case secs > 0xFFFF:
		return 0xFFFF
	default:
		return uint16(secs)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// AppendStatusJSON appends st as a JSON object to dst.
func AppendStatusJSON(dst []byte, st update.Status) []byte {
	dst = append(dst, `{"state":`...)
	dst = panel.AppendString(dst, st.State.String())
	dst = append(dst, `,"id":`...)
	dst = panel.AppendString(dst, st.ID)
	dst = append(dst, `,"file":`...)
	dst = panel.AppendString(dst, st.Filename)
	dst = append(dst, `,"bytes":`...)
	dst = strconv.AppendUint(dst, uint64(st.BytesWritten), 10)
	dst = append(dst, `,"capacity":`...)
	dst = strconv.AppendUint(dst, uint64(st.Capacity), 10)
	dst = append(dst, `,"error":`...)
	dst = panel.AppendString(dst, st.LastError.String())
	return append(dst, '}')
}
