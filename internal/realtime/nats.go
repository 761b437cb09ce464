package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBackend publishes on a core NATS subject named after the channel
type NATSBackend struct {
	URL           string
	Token         string
	ClientName    string
	ReconnectWait time.Duration
}

func (b *NATSBackend) Name() string { return "nats" }

func (b *NATSBackend) Configured() bool { return b.URL != "" }

func (b *NATSBackend) Open(ctx context.Context, channel string, h Handlers) (Session, error) {
	wait := b.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name(b.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		// our own updates must not come back to us
		nats.NoEcho(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if h.OnDisconnect != nil {
				h.OnDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if h.OnReconnect != nil {
				h.OnReconnect()
			}
		}),
	}
	if b.Token != "" {
		opts = append(opts, nats.Token(b.Token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(b.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	sub, err := nc.Subscribe(channel, func(m *nats.Msg) {
		if h.OnMessage != nil {
			h.OnMessage(m.Data)
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	// the subscription is live on the server once the flush round-trips
	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flush subscription %s: %w", channel, err)
	}
	return &natsSession{nc: nc, sub: sub, subject: channel}, nil
}

type natsSession struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

func (s *natsSession) Publish(_ context.Context, data []byte) error {
	return s.nc.Publish(s.subject, data)
}

func (s *natsSession) Close() error {
	err := s.sub.Unsubscribe()
	s.nc.Close()
	if err == nats.ErrConnectionClosed {
		return nil
	}
	return err
}
