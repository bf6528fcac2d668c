package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Device-facing endpoint outside the /api tree; the module firmware
	// posts its samples here and expects a decision back.
	r.Post("/adjust", s.handleAdjust)

	r.Route("/api", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Account endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Device-authenticated endpoints. Modules identify themselves with
		// headers, never with JWTs.
		r.Post("/modules/connect", s.handleConnectModule)
		r.Get("/modules/status", s.handleModuleStatus)
		r.Put("/modules/{id}/sensor-values", s.handleSensorValues)

		// Readable by the device (identity headers) or the owning user (JWT);
		// the handler picks the scheme from the request.
		r.Get("/modules/{id}/settings", s.handleGetModuleSettings)

		// User-authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/user", s.handleCurrentUser)
			r.Get("/user/favorite-greenhouse", s.handleGetFavoriteGreenhouse)
			r.Put("/user/favorite-greenhouse", s.handleSetFavoriteGreenhouse)
			r.Get("/user/activity", s.handleUserActivity)

			r.Get("/modules/available", s.handleListAvailableModules)
			r.Get("/modules/user", s.handleListUserModules)
			r.Put("/modules/{id}/claim", s.handleClaimModule)
			r.Put("/modules/{id}/unclaim", s.handleUnclaimModule)
			r.Put("/modules/{id}/settings", s.handleUpdateModuleSettings)
			r.Put("/modules/{id}/status", s.handleSetModuleActive)
			r.Put("/modules/{id}/name", s.handleRenameModule)
			r.Get("/modules/{id}/history-24h", s.handleModuleHistory)

			r.Route("/greenhouses", func(r chi.Router) {
				r.Post("/", s.handleCreateGreenhouse)
				r.Get("/user", s.handleListUserGreenhouses)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGreenhouse)
					r.Delete("/", s.handleDeleteGreenhouse)
					r.Put("/main-module", s.handleSetMainModule)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
