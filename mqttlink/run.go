package mqttlink

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
)

// Dialer opens a transport to the broker.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Run keeps the link connected until ctx is done, redialing with
// exponential backoff after every failure.
func (l *Link) Run(ctx context.Context, dial Dialer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0

	for {
		connected, err := l.serve(ctx, dial)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		l.logger.Warn("mqtt:reconnect",
			slog.Duration("in", wait),
			slog.String("err", errString(err)),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// serve runs one broker session. connected reports whether the handshake
// completed.
func (l *Link) serve(ctx context.Context, dial Dialer) (connected bool, err error) {
	conn, err := dial(ctx)
	if err != nil {
		l.logger.Error("mqtt:dial-failed", slog.String("err", err.Error()))
		return false, err
	}
	defer l.Close()

	if err := l.Connect(conn); err != nil {
		return false, err
	}
	for ctx.Err() == nil {
		if err := l.Poll(time.Now()); err != nil {
			return true, err
		}
	}
	return true, nil
}

func errString(err error) string {
	if err == nil {
		return "session ended"
	}
	return err.Error()
}
