// Package store is the single source of truth for rally state. Every
// mutation is applied to a private copy, written through to durable storage
// together with a bumped data version, and only then made visible and
// announced to subscribers.
package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/repository"
)

// EchoWindow is how long outbound publishing stays suppressed after a
// remote snapshot is applied.
const EchoWindow = 100 * time.Millisecond

// Origin says where a change came from
type Origin int

const (
	// OriginLocal is a mutation made through this store's API
	OriginLocal Origin = iota
	// OriginRemote is a snapshot received from the sync channel
	OriginRemote
	// OriginReload is state re-read from storage after an out-of-band write
	OriginReload
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginReload:
		return "reload"
	default:
		return "local"
	}
}

// Change is delivered to subscribers after state has changed
type Change struct {
	Origin  Origin
	Version int64
	Slices  []Slice
}

// Listener receives changes. Listeners run synchronously after the store
// lock is released, so they may read the store but should not block.
type Listener func(Change)

// Store owns all rally entities
type Store struct {
	log   logger.Logger
	repo  repository.FullRepository
	clock clockwork.Clock

	mu    sync.RWMutex
	state models.Snapshot

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int

	applyingRemote atomic.Bool
	latchMu        sync.Mutex
	latchTimer     clockwork.Timer
	latchGen       uint64
}

// New creates a store and loads its state from repo
func New(ctx context.Context, log logger.Logger, repo repository.FullRepository, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{
		log:       log.With("component", "store"),
		repo:      repo,
		clock:     clock,
		state:     defaultSnapshot(),
		listeners: make(map[int]Listener),
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads every slice from storage. Missing slices take their default;
// a corrupt slice is logged and also takes its default.
func (s *Store) Load(ctx context.Context) error {
	next, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

func (s *Store) read(ctx context.Context) (models.Snapshot, error) {
	stored, err := s.repo.LoadSlices(ctx)
	if err != nil {
		return models.Snapshot{}, errors.Wrap(err, errors.ErrInternal, "load state")
	}

	next := defaultSnapshot()
	for _, d := range sliceDefs {
		raw, ok := stored[string(d.name)]
		if !ok {
			continue
		}
		if err := d.decode(&next, []byte(raw)); err != nil {
			s.log.Warn("Corrupt stored slice, using default", "slice", d.name, "error", err)
			d.reset(&next)
		}
	}
	if raw, ok := stored[string(SliceDataVersion)]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			next.DataVersion = v
		} else {
			s.log.Warn("Corrupt stored data version", "value", raw)
		}
	}
	return clone(next), nil
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// Version returns the current data version
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.DataVersion
}

// Subscribe registers l for every future change and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(c Change) {
	s.listenerMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l(c)
	}
}

// mutation edits next in place and returns the slices it touched.
// Returning no slices means nothing changed.
type mutation func(next *models.Snapshot) ([]Slice, error)

// mutate is the single write path: copy, edit, persist, swap, announce.
func (s *Store) mutate(ctx context.Context, origin Origin, fn mutation) error {
	s.mu.Lock()
	next := clone(s.state)
	dirty, err := fn(&next)
	if err != nil || len(dirty) == 0 {
		s.mu.Unlock()
		return err
	}

	next.DataVersion = s.nextVersion(s.state.DataVersion)
	payload, err := encodeSlices(&next, dirty)
	if err != nil {
		s.mu.Unlock()
		return errors.Internal(err)
	}
	if err := s.repo.SaveSlices(ctx, payload); err != nil {
		s.mu.Unlock()
		s.log.Error("Failed to persist state", "slices", dirty, "error", err)
		return errors.Wrap(err, errors.ErrInternal, "persist state")
	}
	s.state = next
	version := next.DataVersion
	s.mu.Unlock()

	s.log.Debug("State changed", "origin", origin.String(), "version", version, "slices", dirty)
	s.notify(Change{Origin: origin, Version: version, Slices: dirty})
	return nil
}

// nextVersion is wall-clock milliseconds, forced strictly forward
func (s *Store) nextVersion(prev int64) int64 {
	v := s.clock.Now().UnixMilli()
	if v <= prev {
		v = prev + 1
	}
	return v
}

func encodeSlices(snap *models.Snapshot, dirty []Slice) (map[string]string, error) {
	out := make(map[string]string, len(dirty)+1)
	for _, name := range dirty {
		d, ok := lookupSlice(name)
		if !ok {
			continue
		}
		data, err := d.encode(snap)
		if err != nil {
			return nil, err
		}
		out[string(name)] = string(data)
	}
	out[string(SliceDataVersion)] = strconv.FormatInt(snap.DataVersion, 10)
	return out, nil
}

// Reload re-reads all state from storage and announces it. Used when
// another process has written the shared storage.
func (s *Store) Reload(ctx context.Context) error {
	next, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.log.Info("State reloaded from storage", "version", next.DataVersion)
	s.notify(Change{Origin: OriginReload, Version: next.DataVersion, Slices: append(syncedSlices(), SliceLanguage)})
	return nil
}

// CheckExternalChange compares the stored data version with the in-memory
// one and reloads when they differ. It reports whether a reload happened.
func (s *Store) CheckExternalChange(ctx context.Context) (bool, error) {
	raw, err := s.repo.GetSlice(ctx, string(SliceDataVersion))
	if err == repository.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrInternal, "read data version")
	}
	stored, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || stored == s.Version() {
		return false, nil
	}
	return true, s.Reload(ctx)
}

// IsApplyingRemote reports whether a remote snapshot was applied within
// the last EchoWindow. Publishers must not echo while this is true.
func (s *Store) IsApplyingRemote() bool {
	return s.applyingRemote.Load()
}

// holdLatch sets the remote-apply latch and (re)arms its release timer
func (s *Store) holdLatch() {
	s.latchMu.Lock()
	defer s.latchMu.Unlock()
	s.applyingRemote.Store(true)
	if s.latchTimer != nil {
		s.latchTimer.Stop()
	}
	s.latchGen++
	gen := s.latchGen
	s.latchTimer = s.clock.AfterFunc(EchoWindow, func() {
		s.latchMu.Lock()
		defer s.latchMu.Unlock()
		// a newer apply re-armed the latch
		if gen == s.latchGen {
			s.applyingRemote.Store(false)
		}
	})
}
