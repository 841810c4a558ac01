package accounts

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tendant/account-provisioner/internal/http/middleware"
	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/pkg/auth"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// MaxDisplayNameLength bounds the display name accepted at sign-up.
const MaxDisplayNameLength = 100

// Service is the provisioning service as seen by the HTTP layer.
type Service interface {
	CreateAccount(ctx context.Context, email, password, displayName string) domain.AccountResult
	Authenticate(ctx context.Context, email, password string) domain.AccountResult
	SignOut(ctx context.Context, session *domain.Session) domain.ActionResult
	RequestPasswordReset(ctx context.Context, email string) domain.ActionResult
	UpdatePassword(ctx context.Context, session *domain.Session, newPassword string) domain.ActionResult
	GetCurrentUser(ctx context.Context, session *domain.Session) domain.AccountResult
}

// Handler handles account endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new accounts handler.
func NewHandler(logger *slog.Logger, service Service, cookieConfig httputil.CookieConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		service:      service,
		cookieConfig: cookieConfig,
	}
}

// SignUpRequest represents a sign-up request.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// SignInRequest represents a sign-in request.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetRequest represents a password reset request.
type ResetRequest struct {
	Email string `json:"email"`
}

// UpdatePasswordRequest represents a password change for the signed-in user.
type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

// AccountResponse is the success body of account operations. Session is
// only filled for mobile clients; web clients get cookies instead.
type AccountResponse struct {
	User    *domain.Account `json:"user"`
	Session *domain.Session `json:"session,omitempty"`
}

// SuccessResponse is the success body of operations without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SignUp creates an account.
// POST /v1/accounts/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BodyError(w, err)
		return
	}

	name := auth.SanitizeName(req.DisplayName)
	if err := auth.ValidateStringLength("display_name", name, 0, MaxDisplayNameLength); err != nil {
		httputil.DomainError(w, domain.NewError(domain.KindInvalidInput, err.Error()))
		return
	}

	result := h.service.CreateAccount(r.Context(), req.Email, req.Password, name)
	if result.Err != nil {
		httputil.DomainError(w, result.Err)
		return
	}

	h.writeAccount(w, r, http.StatusCreated, result)
}

// SignIn authenticates with email and password.
// POST /v1/accounts/signin
//
// For web clients: sets HttpOnly cookies.
// For mobile clients (X-Client-Type: mobile): returns the session in the body.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BodyError(w, err)
		return
	}

	result := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if result.Err != nil {
		httputil.DomainError(w, result.Err)
		return
	}

	h.writeAccount(w, r, http.StatusOK, result)
}

// SignOut ends the caller's session.
// POST /v1/accounts/signout
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	result := h.service.SignOut(r.Context(), session)

	if !httputil.IsMobileClient(r) {
		httputil.ClearSessionCookies(w, h.cookieConfig)
	}
	h.writeAction(w, result)
}

// RequestPasswordReset asks the provider to mail a reset link. The reply
// does not reveal whether the address is registered.
// POST /v1/accounts/password/reset-request
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BodyError(w, err)
		return
	}

	h.writeAction(w, h.service.RequestPasswordReset(r.Context(), req.Email))
}

// UpdatePassword changes the signed-in user's password.
// PUT /v1/accounts/password
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BodyError(w, err)
		return
	}

	session, _ := middleware.GetSession(r.Context())
	h.writeAction(w, h.service.UpdatePassword(r.Context(), session, req.Password))
}

// Me returns the signed-in user.
// GET /v1/accounts/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	result := h.service.GetCurrentUser(r.Context(), session)
	if result.Err != nil {
		httputil.DomainError(w, result.Err)
		return
	}
	httputil.JSON(w, http.StatusOK, AccountResponse{User: result.User})
}

func (h *Handler) writeAccount(w http.ResponseWriter, r *http.Request, status int, result domain.AccountResult) {
	resp := AccountResponse{User: result.User}

	if !result.Session.IsZero() {
		if httputil.IsMobileClient(r) {
			resp.Session = result.Session
		} else {
			httputil.SetSessionCookies(w, result.Session, h.cookieConfig)
		}
	}

	httputil.JSON(w, status, resp)
}

func (h *Handler) writeAction(w http.ResponseWriter, result domain.ActionResult) {
	if result.Err != nil {
		httputil.DomainError(w, result.Err)
		return
	}
	httputil.JSON(w, http.StatusOK, SuccessResponse{Success: true})
}
