package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all account routes
func (h *AccountHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleListAccounts)
		r.Post("/link", h.HandleLinkAccount)

		r.Route("/{accountID}", func(r chi.Router) {
			r.Delete("/", h.HandleUnlinkAccount)
			r.Post("/activate", h.HandleActivateAccount)
			r.Post("/deactivate", h.HandleDeactivateAccount)
			r.Post("/auth-code", h.HandleSubmitAuthCode)
			r.Get("/handshake", h.HandleHandshakeStatus)
			r.Delete("/handshake", h.HandleCancelHandshake)
		})
	})
}
