package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	h "youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/delivery/http/middleware"
	"youthexchange/internal/domain"
)

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate implements Validator.
func (l LoginRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(l.Email) == "" {
		errs = append(errs, "email is required")
	}
	if l.Password == "" {
		errs = append(errs, "password is required")
	}
	return errs
}

// LoginResponse is the response body for POST /auth/login
type LoginResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"token_type"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Principal *domain.Principal `json:"principal"`
}

func newLoginResponse(s *domain.Session) LoginResponse {
	return LoginResponse{Token: s.Token, TokenType: "Bearer", ExpiresAt: s.ExpiresAt, Principal: s.Principal}
}

type AuthController struct {
	Logger   *slog.Logger
	Identity domain.IdentityProvider
}

func NewAuthController(logger *slog.Logger, identity domain.IdentityProvider) *AuthController {
	return &AuthController{
		Logger:   logger,
		Identity: identity,
	}
}

// Login godoc
// @Summary Log in
// @Description Authenticate with email and password. Returns a JWT carrying the principal id, email and roles.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Login credentials"
// @Success 200 {object} helpers.APIResponse "data contains token, token_type, expiresAt and principal"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /auth/login [post]
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	session, err := c.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.WriteError(w, r, c.Logger, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, newLoginResponse(session))
}

// Logout godoc
// @Summary Log out
// @Description Revokes the bearer token used for this request for the rest of its lifetime.
// @Tags auth
// @Security BearerAuth
// @Success 204 "session revoked"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: service_unavailable"
// @Router /auth/logout [post]
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Identity.SignOut(r.Context(), token); err != nil {
		h.WriteError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
