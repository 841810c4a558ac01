package accounts

import (
	"github.com/go-chi/chi/v5"
	"github.com/tendant/account-provisioner/internal/http/middleware"
)

// RegisterRoutes registers account routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/accounts/signup", h.SignUp)
	r.Post("/v1/accounts/signin", h.SignIn)
	r.Post("/v1/accounts/password/reset-request", h.RequestPasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Post("/v1/accounts/signout", h.SignOut)
		r.Put("/v1/accounts/password", h.UpdatePassword)
		r.Get("/v1/accounts/me", h.Me)
	})
}
