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

	// Push channel (token checked in the handler, before the upgrade)
	r.Get(pathOr(s.wsCfg.Path, "/ws"), s.handleWebSocket)

	// Camera board link (unauthenticated device endpoint)
	if s.cameraCfg.Enabled && s.camera != nil {
		r.Get(pathOr(s.cameraCfg.Path, "/camera"), s.handleCameraLink)
	}

	// Prometheus exposition
	if s.metricsCfg.Enabled && s.metricsHandle != nil {
		r.Handle(pathOr(s.metricsCfg.Path, "/metrics"), s.metricsHandle)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/system", s.handleSystem)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/switch", s.handleGetSwitch)
					r.Post("/switch/toggle", s.handleToggleSwitch)
					r.Post("/power", s.handleSetPower)
					r.Post("/color", s.handleSetColor)
					r.Post("/query", s.handleQueryDevice)

					if s.cronos != nil {
						r.Get("/crono", s.handleGetCrono)
						r.Post("/crono", s.handleStartCrono)
						r.Delete("/crono", s.handleCancelCrono)
					}
				})
			})

			if s.schedules != nil {
				r.Route("/schedules", func(r chi.Router) {
					r.Get("/", s.handleListSchedules)
					r.Get("/{id}", s.handleGetSchedule)
					r.Put("/{id}", s.handlePutSchedule)
					r.Post("/{id}", s.handlePutSchedule)
					r.Delete("/{id}", s.handleDeleteSchedule)
				})
			}

			r.Route("/sessions", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListSessions)
				r.Post("/force-logout", s.handleForceLogout)
			})

			if s.audit != nil {
				r.With(s.requireAdmin).Get("/audit", s.handleListAudit)
			}
		})
	})

	return r
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
