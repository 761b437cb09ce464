// Package syncer keeps a store consistent with its peers. While the
// realtime channel is up, local changes are pushed to it and remote
// snapshots are applied. While it is down, a heartbeat polls shared
// storage for writes made by another instance. Exactly one of the two
// strategies is active at a time.
package syncer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/metrics"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/realtime"
	"github.com/abrezinsky/rallyoverlay/internal/repository"
	"github.com/abrezinsky/rallyoverlay/internal/store"
)

// DefaultHeartbeat is the storage poll interval while disconnected
const DefaultHeartbeat = 2 * time.Second

// Settings keys
const (
	SettingEnabled = "sync_enabled"
	SettingKey     = "sync_key"
)

// StateStore is the part of the store the coordinator drives
type StateStore interface {
	Subscribe(store.Listener) func()
	Snapshot() models.Snapshot
	ApplyRemote(ctx context.Context, data []byte) error
	CheckExternalChange(ctx context.Context) (bool, error)
	IsApplyingRemote() bool
}

// Transport is the realtime channel
type Transport interface {
	Connect(ctx context.Context, key string, onMessage realtime.MessageHandler, onStatus realtime.StatusHandler) error
	Publish(ctx context.Context, snapshot any) bool
	Disconnect()
	State() models.SyncState
	IsActive() bool
}

// StatusListener is told about every sync state change
type StatusListener func(models.SyncState)

// Options configure a Coordinator
type Options struct {
	Logger    logger.Logger
	Store     StateStore
	Transport Transport
	Settings  repository.SettingsRepository
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
	Heartbeat time.Duration
}

// Coordinator switches between push sync and heartbeat polling
type Coordinator struct {
	log       logger.Logger
	store     StateStore
	transport Transport
	settings  repository.SettingsRepository
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	heartbeat time.Duration

	// pending holds at most one queued publish; newer changes coalesce
	pending chan struct{}

	// connMu serializes connects so AutoConnect's check and connect are
	// one step
	connMu sync.Mutex

	mu        sync.Mutex
	runCtx    context.Context
	hbCancel  context.CancelFunc
	hbDone    chan struct{}
	listeners []StatusListener
}

// New creates a coordinator. Nothing runs until Run is called.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Coordinator{
		log:       opts.Logger.With("component", "syncer"),
		store:     opts.Store,
		transport: opts.Transport,
		settings:  opts.Settings,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		heartbeat: opts.Heartbeat,
		pending:   make(chan struct{}, 1),
	}
}

// OnStatus registers l for sync state changes
func (c *Coordinator) OnStatus(l StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Run starts the heartbeat, reconnects a previously enabled channel and
// publishes local changes until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	unsubscribe := c.store.Subscribe(c.onChange)
	defer unsubscribe()

	if !c.transport.IsActive() {
		c.startHeartbeat()
	}
	c.restore(ctx)

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.runCtx = nil
			c.mu.Unlock()
			c.stopHeartbeat()
			c.transport.Disconnect()
			c.log.Info("Sync coordinator stopped")
			return nil
		case <-c.pending:
			c.publish(ctx)
		}
	}
}

// restore reconnects the channel that was enabled when the process last ran
func (c *Coordinator) restore(ctx context.Context) {
	enabled, key := c.storedSettings(ctx)
	if !enabled || key == "" {
		return
	}
	c.log.Info("Restoring sync channel", "key", key)
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.connect(ctx, key); err != nil {
		c.log.Warn("Could not restore sync channel", "key", key, "error", err)
	}
}

func (c *Coordinator) storedSettings(ctx context.Context) (bool, string) {
	enabled, err := c.settings.GetSetting(ctx, SettingEnabled)
	if err != nil && err != repository.ErrNotFound {
		c.log.Warn("Could not read sync settings", "error", err)
	}
	key, err := c.settings.GetSetting(ctx, SettingKey)
	if err != nil && err != repository.ErrNotFound {
		c.log.Warn("Could not read sync key", "error", err)
	}
	return enabled == "true", key
}

// Connect joins the channel named by key and remembers it for restarts
func (c *Coordinator) Connect(ctx context.Context, key string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connectAndSave(ctx, key)
}

func (c *Coordinator) connectAndSave(ctx context.Context, key string) error {
	if err := c.connect(ctx, key); err != nil {
		return classify(err)
	}
	if err := c.settings.SetSetting(ctx, SettingKey, key); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "save sync key")
	}
	if err := c.settings.SetSetting(ctx, SettingEnabled, "true"); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "save sync flag")
	}
	return nil
}

// AutoConnect joins key unless a connection is already up or under way.
// Concurrent calls wait for the first one and then find it active.
func (c *Coordinator) AutoConnect(ctx context.Context, key string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.transport.IsActive() {
		return nil
	}
	return c.connectAndSave(ctx, key)
}

// classify maps transport errors to application kinds: a bad key or an
// unconfigured provider is the caller's problem, anything else is the
// backend's.
func classify(err error) error {
	switch {
	case stderrors.Is(err, realtime.ErrInvalidChannelKey),
		stderrors.Is(err, realtime.ErrUnknownProvider),
		stderrors.Is(err, realtime.ErrMissingCredentials):
		return errors.InvalidInputWrap(err, "cannot connect sync channel")
	default:
		return errors.Unavailable(err, "sync channel unavailable")
	}
}

func (c *Coordinator) connect(ctx context.Context, key string) error {
	return c.transport.Connect(ctx, key, c.onRemote, c.onStatus)
}

// Disconnect leaves the channel. The key is kept so it can be shown and
// reused, but it will not be rejoined at startup.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.transport.Disconnect()
	if err := c.settings.SetSetting(ctx, SettingEnabled, "false"); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "save sync flag")
	}
	return nil
}

// GenerateKey creates and stores a fresh channel key for provider tag
func (c *Coordinator) GenerateKey(ctx context.Context, tag string) (string, error) {
	key, err := realtime.GenerateChannelKey(tag)
	if err != nil {
		return "", errors.InvalidInputWrap(err, "cannot generate channel key")
	}
	if err := c.settings.SetSetting(ctx, SettingKey, key); err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "save sync key")
	}
	return key, nil
}

// State is the transport state plus the persisted preference
func (c *Coordinator) State(ctx context.Context) models.SyncState {
	st := c.transport.State()
	enabled, key := c.storedSettings(ctx)
	st.Enabled = enabled
	if st.Key == "" {
		st.Key = key
	}
	return st
}

// onChange queues a publish for local changes. Remote applies and
// reloads are never sent back out.
func (c *Coordinator) onChange(ch store.Change) {
	c.metrics.ObserveMutation(ch.Origin.String(), ch.Version)
	if ch.Origin != store.OriginLocal {
		return
	}
	if c.store.IsApplyingRemote() {
		c.metrics.ObservePublish("suppressed")
		return
	}
	if c.transport.State().Status != models.SyncConnected {
		return
	}
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// publish sends the current state. Coalesced changes all go out in one
// message because the snapshot is taken at send time.
func (c *Coordinator) publish(ctx context.Context) {
	if c.store.IsApplyingRemote() {
		c.metrics.ObservePublish("suppressed")
		return
	}
	payload := models.SyncPayload{
		ExportDocument: models.NewExportDocument(c.store.Snapshot()),
		Timestamp:      c.clock.Now().UnixMilli(),
	}
	if c.transport.Publish(ctx, payload) {
		c.metrics.ObservePublish("ok")
	} else {
		c.metrics.ObservePublish("failed")
	}
}

func (c *Coordinator) onRemote(data json.RawMessage) {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.store.ApplyRemote(ctx, data); err != nil {
		c.log.Warn("Remote snapshot rejected", "error", err)
		c.metrics.ObserveRemoteApply("rejected")
		return
	}
	c.metrics.ObserveRemoteApply("ok")
}

// onStatus swaps strategies: the heartbeat runs only while the channel is
// neither connected nor connecting.
func (c *Coordinator) onStatus(status models.SyncStatus, err error) {
	c.metrics.SetSyncStatus(status)
	if status == models.SyncConnected || status == models.SyncConnecting {
		c.stopHeartbeat()
	} else {
		c.startHeartbeat()
	}

	st := c.transport.State()
	st.Status = status
	if err != nil {
		st.LastError = err.Error()
	}
	c.mu.Lock()
	listeners := append([]StatusListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(st)
	}
}

// HeartbeatRunning reports whether the storage poll is active
func (c *Coordinator) HeartbeatRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hbCancel != nil
}

func (c *Coordinator) startHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hbCancel != nil || c.runCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	done := make(chan struct{})
	c.hbCancel = cancel
	c.hbDone = done
	ticker := c.clock.NewTicker(c.heartbeat)
	go c.poll(ctx, ticker, done)
	c.log.Debug("Heartbeat started", "interval", c.heartbeat)
}

func (c *Coordinator) stopHeartbeat() {
	c.mu.Lock()
	cancel, done := c.hbCancel, c.hbDone
	c.hbCancel, c.hbDone = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Debug("Heartbeat stopped")
}

func (c *Coordinator) poll(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		reloaded, err := c.store.CheckExternalChange(ctx)
		if err != nil {
			c.log.Warn("Heartbeat check failed", "error", err)
			continue
		}
		if reloaded {
			c.metrics.ObserveHeartbeatReload()
			c.log.Info("Heartbeat picked up an external change")
		}
	}
}
