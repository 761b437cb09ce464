package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend uses Redis PUBLISH/SUBSCRIBE on a channel of the same name
type RedisBackend struct {
	Addr     string
	Password string
	DB       int
	// HealthInterval is how often a live session pings the server to
	// notice a lost connection
	HealthInterval time.Duration
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Configured() bool { return b.Addr != "" }

func (b *RedisBackend) Open(ctx context.Context, channel string, h Handlers) (Session, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         b.Addr,
		Password:     b.Password,
		DB:           b.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", b.Addr, err)
	}

	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	interval := b.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &redisSession{
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		done:    make(chan struct{}),
	}
	s.wg.Add(2)
	go s.receive(h)
	go s.watch(h, interval)
	return s, nil
}

type redisSession struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *redisSession) receive(h Handlers) {
	defer s.wg.Done()
	for msg := range s.pubsub.Channel() {
		if h.OnMessage != nil {
			h.OnMessage([]byte(msg.Payload))
		}
	}
}

// watch pings on an interval and reports transitions between reachable
// and unreachable. The pubsub channel reconnects on its own.
func (s *redisSession) watch(h Handlers, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := s.client.Ping(ctx).Err()
		cancel()

		switch {
		case err != nil && healthy:
			healthy = false
			if h.OnDisconnect != nil {
				h.OnDisconnect(err)
			}
		case err == nil && !healthy:
			healthy = true
			if h.OnReconnect != nil {
				h.OnReconnect()
			}
		}
	}
}

func (s *redisSession) Publish(ctx context.Context, data []byte) error {
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *redisSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
		s.wg.Wait()
	})
	return err
}
