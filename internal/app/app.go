package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/abrezinsky/rallyoverlay/internal/config"
	"github.com/abrezinsky/rallyoverlay/internal/handlers"
	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/metrics"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/realtime"
	"github.com/abrezinsky/rallyoverlay/internal/repository"
	"github.com/abrezinsky/rallyoverlay/internal/standings"
	"github.com/abrezinsky/rallyoverlay/internal/store"
	"github.com/abrezinsky/rallyoverlay/internal/syncer"
	"github.com/abrezinsky/rallyoverlay/internal/websocket"
)

// SettingBaseURL is where the detected LAN address is remembered
const SettingBaseURL = "base_url"

const shutdownTimeout = 10 * time.Second

// Options configure New. Backends and Clock are for tests; by default the
// provider gets NATS and Redis backends built from Config.
type Options struct {
	Config    config.Config
	Log       logger.Logger
	Templates fs.FS
	Static    fs.FS
	Clock     clockwork.Clock
	Backends  map[string]realtime.Backend
}

// App holds all application dependencies
type App struct {
	cfg      config.Config
	log      logger.Logger
	repo     *repository.Repository
	store    *store.Store
	provider *realtime.Provider
	sync     *syncer.Coordinator
	hub      *websocket.Hub
	metrics  *metrics.Metrics
	handlers *handlers.Handlers
	router   chi.Router
	net      networkProvider

	mu      sync.RWMutex
	baseURL string
}

// New creates and initializes a new application instance
func New(opts Options) (*App, error) {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	cfg := opts.Config
	log := opts.Log

	repo, err := repository.New(cfg.DB)
	if err != nil {
		return nil, err
	}

	st, err := store.New(context.Background(), log, repo, opts.Clock)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to load rally state: %w", err)
	}

	backends := opts.Backends
	if backends == nil {
		backends = map[string]realtime.Backend{
			realtime.TagNATS: &realtime.NATSBackend{
				URL:        cfg.NATS.URL,
				Token:      cfg.NATS.Token,
				ClientName: "rallyoverlay",
			},
			realtime.TagRedis: &realtime.RedisBackend{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		}
	}
	provider := realtime.Default(realtime.Options{
		Logger:         log,
		Clock:          opts.Clock,
		ConnectTimeout: cfg.ConnectTimeout,
		Backends:       backends,
	})

	m := metrics.New()
	coordinator := syncer.New(syncer.Options{
		Logger:    log,
		Store:     st,
		Transport: provider,
		Settings:  repo,
		Clock:     opts.Clock,
		Metrics:   m,
		Heartbeat: cfg.Heartbeat,
	})

	a := &App{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		store:    st,
		provider: provider,
		sync:     coordinator,
		metrics:  m,
		net:      realNetworkProvider{},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
	}

	a.hub = websocket.New(log, m, a.greeting)
	coordinator.OnStatus(a.hub.BroadcastSyncStatus)

	h, err := handlers.New(handlers.Deps{
		Store:     st,
		Standings: standings.NewEngine(opts.Clock),
		Sync:      coordinator,
		Hub:       a.hub,
		Metrics:   m,
		Log:       log,
		Templates: opts.Templates,
		Static:    opts.Static,
		BaseURL:   a.BaseURL,
		Ping:      repo.Ping,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.handlers = h
	a.router = h.Router()
	return a, nil
}

// greeting is what a new overlay client receives before any broadcast
func (a *App) greeting() []models.WSMessage {
	return []models.WSMessage{
		{Type: websocket.TypeSnapshot, Payload: a.store.Snapshot()},
		{Type: websocket.TypeSyncStatus, Payload: a.sync.State(context.Background())},
	}
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.router
}

// Store exposes the rally store
func (a *App) Store() *store.Store {
	return a.store
}

// BaseURL is the address overlay links and QR codes point at
func (a *App) BaseURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseURL
}

// SetupURL is the operator page
func (a *App) SetupURL() string {
	return a.BaseURL() + "/"
}

// OverlayURL is the overlay page, joined to the current channel if any
func (a *App) OverlayURL() string {
	return handlers.OverlayURL(a.BaseURL(), a.sync.State(context.Background()).Key)
}

// Close releases the database. Call it after Run has returned.
func (a *App) Close() error {
	return a.repo.Close()
}

// Run listens on the configured port and serves until ctx is done
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the websocket hub and the
// sync coordinator. Any of them failing stops the others.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	port := a.cfg.Port
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	a.resolveBaseURL(ctx, port)

	g, ctx := errgroup.WithContext(ctx)

	// broadcasts are only wired while the hub is running
	unsubscribe := a.store.Subscribe(func(store.Change) {
		a.hub.BroadcastSnapshot(a.store.Snapshot())
	})
	defer unsubscribe()

	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error { return a.sync.Run(ctx) })

	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.log.Info("Server starting", "url", a.BaseURL())
		a.log.Info("Overlay URL", "url", a.OverlayURL())
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// resolveBaseURL picks the configured base URL, else the remembered one,
// else the detected LAN address
func (a *App) resolveBaseURL(ctx context.Context, port int) {
	if a.cfg.BaseURL != "" {
		return
	}
	detected := fmt.Sprintf("http://%s:%d", getPreferredIP(a.net), port)
	a.setDefaultBaseURL(ctx, detected)

	url := detected
	if stored, err := a.repo.GetSetting(ctx, SettingBaseURL); err == nil && stored != "" {
		url = stored
	}
	a.mu.Lock()
	a.baseURL = strings.TrimRight(url, "/")
	a.mu.Unlock()
}

// setDefaultBaseURL sets the base URL setting if not already configured
// or if current value uses localhost (which isn't useful for QR codes)
func (a *App) setDefaultBaseURL(ctx context.Context, baseURL string) {
	existing, _ := a.repo.GetSetting(ctx, SettingBaseURL)

	needsUpdate := existing == "" || strings.Contains(existing, "localhost")
	if needsUpdate {
		if err := a.repo.SetSetting(ctx, SettingBaseURL, baseURL); err != nil {
			a.log.Warn("Failed to set default base_url", "error", err)
		} else {
			a.log.Info("Default base URL set", "url", baseURL)
		}
	}
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

// realInterface wraps a real net.Interface
type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

// realNetworkProvider implements networkProvider using actual net package
type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IP address for LAN access, so a second
// machine running the streaming software can open the overlay.
// Prefers private network addresses (192.168.x.x, 10.x.x.x, 172.16-31.x.x).
// Falls back to localhost if no suitable address is found.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}
