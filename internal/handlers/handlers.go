package handlers

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/internal/metrics"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/standings"
	"github.com/abrezinsky/rallyoverlay/internal/store"
)

// NewStaticServer creates a static file server from an fs.FS
func NewStaticServer(staticFS fs.FS) http.Handler {
	return http.FileServer(http.FS(staticFS))
}

// SyncController is the sync surface the API drives
type SyncController interface {
	Connect(ctx context.Context, key string) error
	AutoConnect(ctx context.Context, key string) error
	Disconnect(ctx context.Context) error
	GenerateKey(ctx context.Context, tag string) (string, error)
	State(ctx context.Context) models.SyncState
}

// Templates holds all parsed HTML templates
type Templates struct {
	Setup   *template.Template
	Overlay *template.Template
}

// Deps are the collaborators of the HTTP layer. Hub, Metrics, Templates
// and Static may be nil in tests.
type Deps struct {
	Store     *store.Store
	Standings *standings.Engine
	Sync      SyncController
	Hub       http.Handler
	Metrics   *metrics.Metrics
	Log       logger.Logger
	Templates fs.FS
	Static    fs.FS
	// BaseURL is used for overlay links and QR codes
	BaseURL func() string
	// Ping reports whether storage is reachable; nil means always healthy
	Ping func(ctx context.Context) error

	RateLimit rate.Limit
	RateBurst int
	CacheTTL  time.Duration
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Store     *store.Store
	Standings *standings.Engine
	Sync      SyncController
	Hub       http.Handler
	Metrics   *metrics.Metrics
	Log       logger.Logger

	baseURL      func() string
	ping         func(ctx context.Context) error
	templates    *Templates
	staticServer http.Handler
	limiter      *clientLimiter
	cache        *cache.Cache
	cacheTTL     time.Duration
}

// Defaults for the mutating-route limiter and the standings cache
const (
	DefaultRateLimit = rate.Limit(20)
	DefaultRateBurst = 40
	DefaultCacheTTL  = time.Second
)

// New creates a new Handlers instance with all dependencies
func New(d Deps) (*Handlers, error) {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Standings == nil {
		d.Standings = standings.NewEngine(nil)
	}
	if d.RateLimit == 0 {
		d.RateLimit = DefaultRateLimit
	}
	if d.RateBurst == 0 {
		d.RateBurst = DefaultRateBurst
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = DefaultCacheTTL
	}
	if d.BaseURL == nil {
		d.BaseURL = func() string { return "" }
	}

	h := &Handlers{
		Store:     d.Store,
		Standings: d.Standings,
		Sync:      d.Sync,
		Hub:       d.Hub,
		Metrics:   d.Metrics,
		Log:       d.Log.With("component", "http"),
		baseURL:   d.BaseURL,
		ping:      d.Ping,
		limiter:   newClientLimiter(d.RateLimit, d.RateBurst),
		cache:     cache.New(d.CacheTTL, 10*d.CacheTTL),
		cacheTTL:  d.CacheTTL,
	}

	if d.Templates != nil {
		templates, err := loadTemplates(d.Templates)
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
		h.templates = templates
	}
	if d.Static != nil {
		h.staticServer = NewStaticServer(d.Static)
	}
	return h, nil
}

// loadTemplates parses all templates once at startup
func loadTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{}
	var err error

	if t.Setup, err = template.ParseFS(templatesFS, "setup.html"); err != nil {
		return nil, fmt.Errorf("setup template: %w", err)
	}
	if t.Overlay, err = template.ParseFS(templatesFS, "overlay.html"); err != nil {
		return nil, fmt.Errorf("overlay template: %w", err)
	}
	return t, nil
}
