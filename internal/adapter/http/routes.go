package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the session API, the WebSocket stream and the health check.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Get("/health", h.Health)
	r.Get("/ws", ws)

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Post("/", h.StartSession)
		r.Get("/", h.GetSession)
		r.Delete("/", h.EndSession)

		r.Post("/refresh", h.RefreshSession)
		r.Post("/switch", h.SwitchTenant)
		r.Get("/switches", h.ListSwitches)

		r.Post("/tenants", h.CreateTenant)
		r.Put("/tenant", h.UpdateTenant)
		r.Post("/invitations", h.InviteMember)
	})
}
