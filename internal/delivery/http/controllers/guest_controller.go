package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	h "youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/delivery/http/middleware"
	"youthexchange/internal/domain"
)

// GuardianSignUpRequest is the request body for POST /guest/invites/{token}/register. Name and
// email default to the ones on the invite.
type GuardianSignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate implements Validator.
func (g GuardianSignUpRequest) Validate() []string {
	var errs []string
	if email := strings.TrimSpace(g.Email); email != "" && !domain.ValidEmail(strings.ToLower(email)) {
		errs = append(errs, "invalid email format")
	}
	if g.Password == "" {
		errs = append(errs, "password is required")
	} else if len(g.Password) < 8 {
		errs = append(errs, "password must be at least 8 characters")
	}
	return errs
}

// GuardianSessionResponse is returned after a guardian signs up or in with an invite.
type GuardianSessionResponse struct {
	Session LoginResponse  `json:"session"`
	Invite  *domain.Invite `json:"invite"`
}

// GuestController serves the guardian-facing invite flow. Every error it returns is reduced to a
// safe message.
type GuestController struct {
	Logger        *slog.Logger
	Invitations   domain.InvitationService
	Registrations domain.RegistrationService
}

func NewGuestController(logger *slog.Logger, invitations domain.InvitationService, registrations domain.RegistrationService) *GuestController {
	return &GuestController{Logger: logger, Invitations: invitations, Registrations: registrations}
}

// LookupInvite godoc
// @Summary Look up an invite
// @Description Public view of an invite: guardian name and e-mail, event title and status. Unknown and revoked tokens are rejected.
// @Tags guest
// @Produce json
// @Param token path string true "Invite token"
// @Success 200 {object} helpers.APIResponse "data contains the public invite view"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 410 {object} helpers.APIResponse "error.code: revoked"
// @Router /guest/invites/{token} [get]
func (c *GuestController) LookupInvite(w http.ResponseWriter, r *http.Request) {
	view, err := c.Invitations.Lookup(r.Context(), r.PathValue("token"))
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, view)
}

func (c *GuestController) writeAccepted(w http.ResponseWriter, status int, accepted *domain.AcceptedInvite) {
	h.WriteJSONSuccess(w, status, GuardianSessionResponse{
		Session: newLoginResponse(accepted.Session),
		Invite:  accepted.Invite,
	})
}

// RegisterGuardian godoc
// @Summary Create a guardian account with an invite
// @Description Signs the guardian up and claims the invite for the new account.
// @Tags guest
// @Accept json
// @Produce json
// @Param token path string true "Invite token"
// @Param body body GuardianSignUpRequest true "Account data"
// @Success 201 {object} helpers.APIResponse "data contains session and invite"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 409 {object} helpers.APIResponse "error.code: already_claimed"
// @Failure 410 {object} helpers.APIResponse "error.code: revoked"
// @Router /guest/invites/{token}/register [post]
func (c *GuestController) RegisterGuardian(w http.ResponseWriter, r *http.Request) {
	var req GuardianSignUpRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	accepted, err := c.Invitations.RegisterGuardian(r.Context(), r.PathValue("token"), domain.GuardianCredentials{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	c.writeAccepted(w, http.StatusCreated, accepted)
}

// SignInGuardian godoc
// @Summary Sign in with an invite
// @Description Signs an existing guardian in and claims the invite, or confirms their existing claim.
// @Tags guest
// @Accept json
// @Produce json
// @Param token path string true "Invite token"
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} helpers.APIResponse "data contains session and invite"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 409 {object} helpers.APIResponse "error.code: already_claimed"
// @Failure 410 {object} helpers.APIResponse "error.code: revoked"
// @Router /guest/invites/{token}/login [post]
func (c *GuestController) SignInGuardian(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	accepted, err := c.Invitations.SignInGuardian(r.Context(), r.PathValue("token"), domain.GuardianCredentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	c.writeAccepted(w, http.StatusOK, accepted)
}

// ClaimInvite godoc
// @Summary Claim an invite
// @Description Binds the invite to the signed-in guardian. Claiming again with the same account is a no-op.
// @Tags guest
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invite token"
// @Success 200 {object} helpers.APIResponse "data contains the invite"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 409 {object} helpers.APIResponse "error.code: already_claimed"
// @Failure 410 {object} helpers.APIResponse "error.code: revoked"
// @Router /guest/invites/{token}/claim [post]
func (c *GuestController) ClaimInvite(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.WriteGuestError(w, r, c.Logger, domain.ErrUnauthorized)
		return
	}
	inv, err := c.Invitations.Claim(r.Context(), r.PathValue("token"), principalID)
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, inv)
}

// SubmitForm godoc
// @Summary Submit the registrant form
// @Description Merges the form into the registrant, creates or updates the registration with status pending, and marks the invite submitted. May be repeated.
// @Tags guest
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invite token"
// @Param body body RegistrantRequest true "Form data"
// @Success 200 {object} helpers.APIResponse "data contains invite, registration and registrant"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: not_owner"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 410 {object} helpers.APIResponse "error.code: revoked"
// @Router /guest/invites/{token}/form [put]
func (c *GuestController) SubmitForm(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.WriteGuestError(w, r, c.Logger, domain.ErrUnauthorized)
		return
	}
	var req RegistrantRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := c.Invitations.Submit(r.Context(), r.PathValue("token"), principalID, req.patch())
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, result)
}

// ListMyRegistrations godoc
// @Summary List my registrations
// @Description Registrations owned by the signed-in guardian, most recently updated first.
// @Tags guest
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the registrations"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /guest/registrations [get]
func (c *GuestController) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.WriteGuestError(w, r, c.Logger, domain.ErrUnauthorized)
		return
	}
	list, err := c.Registrations.ListOwnedRegistrations(r.Context(), principalID)
	if err != nil {
		h.WriteGuestError(w, r, c.Logger, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, list)
}
