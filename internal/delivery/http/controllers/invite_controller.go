package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

// IssueInviteRequest is the request body for POST /admin/invites.
type IssueInviteRequest struct {
	GuardianName  string `json:"guardianName"`
	GuardianEmail string `json:"guardianEmail"`
	EventRef      string `json:"eventRef"`
	Note          string `json:"note"`
}

// IssueInviteResponse carries the new invite and the link sent to the guardian.
type IssueInviteResponse struct {
	Invite *domain.Invite `json:"invite"`
	Link   string         `json:"link"`
}

type InviteController struct {
	Logger  *slog.Logger
	Service domain.InvitationService
	Metrics *metrics.Metrics
}

func NewInviteController(logger *slog.Logger, svc domain.InvitationService, m *metrics.Metrics) *InviteController {
	return &InviteController{Logger: logger, Service: svc, Metrics: m}
}

// IssueInvite godoc
// @Summary Issue a guardian invite
// @Description Creates a pending invite with a fresh unguessable token and e-mails the guardian a link. A failed e-mail does not fail the request.
// @Tags invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body IssueInviteRequest true "Invite data"
// @Success 201 {object} helpers.APIResponse "data contains invite and link"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (event)"
// @Router /admin/invites [post]
func (c *InviteController) IssueInvite(w http.ResponseWriter, r *http.Request) {
	var req IssueInviteRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	eventRef, err := parseRefParam(req.EventRef, domain.CollectionEvents)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	inv, err := c.Service.Issue(r.Context(), domain.IssueInviteInput{
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		EventRef:      eventRef,
		Note:          req.Note,
	})
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, IssueInviteResponse{Invite: inv, Link: c.Service.InviteLink(inv.Token)})
}

// ListInvites godoc
// @Summary List invites
// @Description Invites newest first.
// @Tags invites
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Router /admin/invites [get]
func (c *InviteController) ListInvites(w http.ResponseWriter, r *http.Request) {
	list, err := c.Service.ListInvites(r.Context())
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, helpers.Paginate(list, helpers.ParsePagination(r)))
}

// GetInvite godoc
// @Summary Get an invite
// @Tags invites
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invite token"
// @Success 200 {object} helpers.APIResponse "data contains the invite"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/invites/{token} [get]
func (c *InviteController) GetInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := c.Service.GetInvite(r.Context(), r.PathValue("token"))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}

// SetInviteStatus godoc
// @Summary Override an invite's status
// @Description Administrative override: any of pending, registered, submitted or revoked may be set from any state.
// @Tags invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invite token"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} helpers.APIResponse "data contains the invite"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/invites/{token}/status [patch]
func (c *InviteController) SetInviteStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	inv, err := c.Service.SetStatus(r.Context(), r.PathValue("token"), domain.InviteStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}

// StreamInvites godoc
// @Summary Stream invites
// @Description Server-Sent Events. Each "snapshot" event carries every invite, sent on connect and after every change.
// @Tags invites
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {array} domain.Invite "snapshot event payload"
// @Router /admin/invites/stream [get]
func (c *InviteController) StreamInvites(w http.ResponseWriter, r *http.Request) {
	streamSnapshots(w, r, c.Logger, c.Metrics, "invites", c.Service.WatchInvites)
}
