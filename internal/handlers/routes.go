package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(h.Metrics.Middleware)
	// overlay pages are captured by streaming software from other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	if h.staticServer != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", h.staticServer))
	}

	// Pages
	r.Get("/", h.handleSetupPage)
	r.Get("/overlay", h.handleOverlayPage)

	// Feeds
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeHTTP)
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/state", h.handleGetState)
		r.Get("/version", h.handleGetVersion)
		r.Get("/clock", h.handleGetClock)
		r.Get("/pilots", h.handleGetPilots)
		r.Get("/categories", h.handleGetCategories)
		r.Get("/stages", h.handleGetStages)
		r.Get("/times/{pilotID}/{stageID}", h.handleGetTimes)
		r.Get("/streams/{id}/audio", h.handleGetEffectiveAudio)
		r.Get("/export", h.handleExport)

		// Standings
		r.Get("/standings/{stageID}", h.handleGetStandings)
		r.Get("/overall", h.handleGetOverall)
		r.Get("/splits/{stageID}", h.handleGetSplits)
		r.Get("/laps/{stageID}/breakdown", h.handleGetLapBreakdown)

		// Sync
		r.Get("/sync/status", h.handleGetSyncStatus)
		r.Get("/sync/qr", h.handleGetSyncQR)

		// Mutators
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)

			// Pilots
			r.Post("/pilots", h.handleCreatePilot)
			r.Put("/pilots/{id}", h.handleUpdatePilot)
			r.Delete("/pilots/{id}", h.handleDeletePilot)
			r.Post("/pilots/{id}/toggle-active", h.handleTogglePilotActive)

			// Categories
			r.Post("/categories", h.handleCreateCategory)
			r.Put("/categories/{id}", h.handleUpdateCategory)
			r.Delete("/categories/{id}", h.handleDeleteCategory)

			// Stages
			r.Post("/stages", h.handleCreateStage)
			r.Put("/stages/{id}", h.handleUpdateStage)
			r.Delete("/stages/{id}", h.handleDeleteStage)
			r.Put("/stages/{id}/pilots", h.handleSetStagePilots)
			r.Post("/stages/{id}/pilots/{pilotID}/toggle", h.handleToggleStagePilot)

			// Timing
			r.Put("/times/{pilotID}/{stageID}", h.handleSetTimes)
			r.Put("/laps/{pilotID}/{stageID}/{lap}", h.handleSetLap)

			// Audio and display
			r.Put("/streams/{id}", h.handleSetStreamConfig)
			r.Post("/streams/{id}/solo", h.handleToggleSolo)
			r.Put("/audio", h.handleSetGlobalAudio)
			r.Put("/display", h.handleSetDisplay)
			r.Put("/language", h.handleSetLanguage)

			// Data
			r.Post("/import", h.handleImport)
			r.Post("/reset", h.handleReset)

			// Sync control
			r.Post("/sync/key", h.handleGenerateSyncKey)
			r.Post("/sync/connect", h.handleSyncConnect)
			r.Post("/sync/disconnect", h.handleSyncDisconnect)
		})
	})

	return r
}
