// Package password serves the reset-link redemption endpoint of the local
// identity provider. Hosted providers redeem their links themselves.
package password

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// Resetter redeems password reset tokens.
type Resetter interface {
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

// Handler handles password reset completion.
type Handler struct {
	logger   *slog.Logger
	resetter Resetter
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, resetter Resetter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, resetter: resetter}
}

// ResetRequest represents a reset-link redemption.
type ResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// RegisterRoutes registers password routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/accounts/password/reset", h.ResetPassword)
}

// ResetPassword sets a new password using a mailed reset token.
// POST /v1/accounts/password/reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BodyError(w, err)
		return
	}

	if req.Token == "" || req.NewPassword == "" {
		httputil.DomainError(w, domain.NewError(domain.KindInvalidInput, "token and new_password are required"))
		return
	}

	if err := h.resetter.CompletePasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		e := domain.AsError(err)
		if e.Kind == domain.KindUnavailable || e.Kind == domain.KindInternal {
			h.logger.Error("password reset failed", "error", err)
		}
		httputil.DomainError(w, e)
		return
	}

	h.logger.Info("password reset completed")
	httputil.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
