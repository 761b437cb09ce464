// Package realtime mirrors rally snapshots between instances over a
// pub/sub channel. A channel key "{tag}-{id}" selects the backend by tag
// and the channel by id; NATS and Redis are interchangeable behind the
// Backend interface.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/models"
)

// DefaultConnectTimeout bounds how long Connect waits for the backend
const DefaultConnectTimeout = 10 * time.Second

// EventUpdate names a snapshot message on the channel
const EventUpdate = "update"

// Handlers are the callbacks a Backend reports through. Backends may call
// them from their own goroutines.
type Handlers struct {
	// OnMessage receives every raw message body on the channel
	OnMessage func(data []byte)
	// OnDisconnect is called when the backend loses its connection after
	// Open succeeded
	OnDisconnect func(err error)
	// OnReconnect is called when a lost connection comes back
	OnReconnect func()
}

// Session is one live subscription
type Session interface {
	Publish(ctx context.Context, data []byte) error
	Close() error
}

// Backend is a pub/sub service
type Backend interface {
	// Name is used in logs and status reports
	Name() string
	// Configured reports whether the backend has the address and
	// credentials it needs
	Configured() bool
	// Open connects and subscribes to channel. It must honour ctx.
	Open(ctx context.Context, channel string, h Handlers) (Session, error)
}

// MessageHandler receives the snapshot carried by an update message
type MessageHandler func(data json.RawMessage)

// StatusHandler receives every status transition. err is nil except for
// SyncError and backend-initiated disconnects.
type StatusHandler func(status models.SyncStatus, err error)

// envelope is the wire form of every message
type envelope struct {
	Event     string          `json:"event"`
	Source    string          `json:"source"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Options configure a Provider
type Options struct {
	Logger         logger.Logger
	Clock          clockwork.Clock
	ConnectTimeout time.Duration
	Backends       map[string]Backend
}

// Provider owns at most one live channel connection
type Provider struct {
	log      logger.Logger
	clock    clockwork.Clock
	timeout  time.Duration
	backends map[string]Backend
	source   string

	mu        sync.Mutex
	session   Session
	key       ChannelKey
	status    models.SyncStatus
	lastErr   error
	gen       uint64
	onMessage MessageHandler
	onStatus  StatusHandler
}

// NewProvider creates a disconnected provider
func NewProvider(opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	backends := make(map[string]Backend, len(opts.Backends))
	for tag, b := range opts.Backends {
		backends[tag] = b
	}
	return &Provider{
		log:      opts.Logger.With("component", "realtime"),
		clock:    opts.Clock,
		timeout:  opts.ConnectTimeout,
		backends: backends,
		source:   uuid.NewString(),
		status:   models.SyncDisconnected,
	}
}

// Backend returns the backend registered for tag
func (p *Provider) Backend(tag string) (Backend, bool) {
	b, ok := p.backends[tag]
	return b, ok
}

// resolve validates key and finds a usable backend for it
func (p *Provider) resolve(key string) (ChannelKey, Backend, error) {
	ck, err := ParseChannelKey(key)
	if err != nil {
		return ChannelKey{}, nil, err
	}
	b, ok := p.backends[ck.Tag]
	if !ok {
		return ChannelKey{}, nil, fmt.Errorf("%w: tag %q", ErrUnknownProvider, ck.Tag)
	}
	if !b.Configured() {
		return ChannelKey{}, nil, fmt.Errorf("%w: %s", ErrMissingCredentials, b.Name())
	}
	return ck, b, nil
}

// Connect subscribes to the channel named by key, replacing any existing
// connection. Key and configuration problems fail before any network
// traffic and leave a live connection untouched and unreported. The
// handshake is abandoned after the connect timeout.
func (p *Provider) Connect(ctx context.Context, key string, onMessage MessageHandler, onStatus StatusHandler) error {
	ck, backend, err := p.resolve(key)
	if err != nil {
		p.log.Warn("Rejected sync key", "key", key, "error", err)
		if onStatus != nil && !p.IsActive() {
			onStatus(models.SyncError, err)
		}
		return err
	}

	p.Disconnect()

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.key = ck
	p.onMessage = onMessage
	p.onStatus = onStatus
	p.mu.Unlock()
	p.setStatus(gen, models.SyncConnecting, nil)

	p.log.Info("Connecting sync channel", "provider", backend.Name(), "channel", ck.Channel())

	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan openResult, 1)
	go func() {
		s, err := backend.Open(openCtx, ck.Channel(), p.handlers(gen))
		done <- openResult{s, err}
	}()

	var res openResult
	select {
	case res = <-done:
	case <-p.clock.After(p.timeout):
		res.err = fmt.Errorf("%w after %s", ErrConnectTimeout, p.timeout)
		go closeLate(done)
	case <-ctx.Done():
		res.err = ctx.Err()
		go closeLate(done)
	}

	if res.err != nil {
		p.log.Error("Sync connect failed", "provider", backend.Name(), "error", res.err)
		p.setStatus(gen, models.SyncError, res.err)
		return res.err
	}

	p.mu.Lock()
	if gen != p.gen {
		// Disconnect or another Connect won while we were opening
		p.mu.Unlock()
		res.session.Close()
		return ErrNotConnected
	}
	p.session = res.session
	p.mu.Unlock()

	p.setStatus(gen, models.SyncConnected, nil)
	p.log.Info("Sync channel connected", "provider", backend.Name(), "channel", ck.Channel())
	return nil
}

type openResult struct {
	session Session
	err     error
}

// closeLate disposes of a session whose Open finished after Connect gave up
func closeLate(done <-chan openResult) {
	if r := <-done; r.session != nil {
		r.session.Close()
	}
}

// handlers binds backend callbacks to connection generation gen so a
// stale connection can never touch current state.
func (p *Provider) handlers(gen uint64) Handlers {
	return Handlers{
		OnMessage: func(data []byte) {
			p.receive(gen, data)
		},
		OnDisconnect: func(err error) {
			if err == nil {
				err = errors.New("connection lost")
			}
			p.log.Warn("Sync channel lost", "error", err)
			p.setStatus(gen, models.SyncError, err)
		},
		OnReconnect: func() {
			p.log.Info("Sync channel restored")
			p.setStatus(gen, models.SyncConnected, nil)
		},
	}
}

func (p *Provider) receive(gen uint64, data []byte) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	handler := p.onMessage
	p.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		p.log.Warn("Dropped malformed sync message", "error", err)
		return
	}
	if env.Event != EventUpdate || env.Source == p.source || len(env.Data) == 0 {
		return
	}
	if handler != nil {
		handler(env.Data)
	}
}

// setStatus records a transition for connection gen and reports it
func (p *Provider) setStatus(gen uint64, status models.SyncStatus, err error) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.status = status
	p.lastErr = err
	cb := p.onStatus
	p.mu.Unlock()

	if cb != nil {
		cb(status, err)
	}
}

// Publish sends snapshot as an update message. It reports false, and logs
// why, when not connected or when the send fails.
func (p *Provider) Publish(ctx context.Context, snapshot any) bool {
	p.mu.Lock()
	session := p.session
	connected := p.status == models.SyncConnected
	p.mu.Unlock()
	if session == nil || !connected {
		return false
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		p.log.Error("Failed to encode sync snapshot", "error", err)
		return false
	}
	msg, err := json.Marshal(envelope{
		Event:     EventUpdate,
		Source:    p.source,
		Timestamp: p.clock.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		p.log.Error("Failed to encode sync message", "error", err)
		return false
	}
	if err := session.Publish(ctx, msg); err != nil {
		p.log.Error("Sync publish failed", "error", err)
		return false
	}
	return true
}

// Disconnect closes the connection, if any, and reports disconnected.
// Callbacks from the closed connection are ignored from here on.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	session := p.session
	wasIdle := session == nil && p.status == models.SyncDisconnected
	cb := p.onStatus
	p.gen++
	p.session = nil
	p.key = ChannelKey{}
	p.status = models.SyncDisconnected
	p.lastErr = nil
	p.onMessage = nil
	p.onStatus = nil
	p.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			p.log.Warn("Error closing sync session", "error", err)
		}
		p.log.Info("Sync channel disconnected")
	}
	if !wasIdle && cb != nil {
		cb(models.SyncDisconnected, nil)
	}
}

// Status returns the current connection status
func (p *Provider) Status() models.SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// IsActive reports whether the provider is connected or connecting
func (p *Provider) IsActive() bool {
	s := p.Status()
	return s == models.SyncConnected || s == models.SyncConnecting
}

// State describes the connection for status endpoints
func (p *Provider) State() models.SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := models.SyncState{Status: p.status}
	if p.key.ID != "" {
		st.Key = p.key.String()
		if b, ok := p.backends[p.key.Tag]; ok {
			st.Provider = b.Name()
		}
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

var (
	defaultMu       sync.Mutex
	defaultProvider *Provider
)

// Default returns the process-wide provider, creating it from opts on the
// first call. Later calls return the same provider and ignore opts.
func Default(opts Options) *Provider {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultProvider == nil {
		defaultProvider = NewProvider(opts)
	}
	return defaultProvider
}

// ResetDefault disconnects and discards the process-wide provider
func ResetDefault() {
	defaultMu.Lock()
	p := defaultProvider
	defaultProvider = nil
	defaultMu.Unlock()
	if p != nil {
		p.Disconnect()
	}
}
