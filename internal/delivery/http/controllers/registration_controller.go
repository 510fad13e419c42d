package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

// parseRefParam accepts "<collection>/<id>" or a bare id, which is taken to live in collection.
func parseRefParam(s, collection string) (domain.Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Ref{}, nil
	}
	if !strings.Contains(s, "/") {
		return domain.NewRef(collection, s), nil
	}
	return domain.ParseRef(s)
}

func registrationFilter(r *http.Request) (domain.RegistrationFilter, error) {
	q := r.URL.Query()
	eventRef, err := parseRefParam(q.Get("eventId"), domain.CollectionEvents)
	if err != nil {
		return domain.RegistrationFilter{}, err
	}
	status := domain.RegistrationStatus(strings.TrimSpace(q.Get("status")))
	if status != "" && !status.Valid() {
		return domain.RegistrationFilter{}, domain.Invalid("status", "unknown registration status %q", status)
	}
	return domain.RegistrationFilter{EventRef: eventRef, Status: status}, nil
}

// CreateRegistrationRequest is the request body for POST /admin/registrations. References may
// be given as "events/<id>" or as a bare id.
type CreateRegistrationRequest struct {
	EventRef      string `json:"eventRef"`
	RegistrantRef string `json:"registrantRef"`
	Role          string `json:"role"`
	Status        string `json:"status"`
}

// Validate implements Validator.
func (c CreateRegistrationRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.EventRef) == "" {
		errs = append(errs, "eventRef is required")
	}
	if strings.TrimSpace(c.RegistrantRef) == "" {
		errs = append(errs, "registrantRef is required")
	}
	return errs
}

// StatusRequest is the request body for status changes.
type StatusRequest struct {
	Status string `json:"status"`
}

// Validate implements Validator.
func (s StatusRequest) Validate() []string {
	if strings.TrimSpace(s.Status) == "" {
		return []string{"status is required"}
	}
	return nil
}

type RegistrationController struct {
	Logger  *slog.Logger
	Service domain.RegistrationService
	Metrics *metrics.Metrics
}

func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService, m *metrics.Metrics) *RegistrationController {
	return &RegistrationController{Logger: logger, Service: svc, Metrics: m}
}

// CreateRegistration godoc
// @Summary Create a registration
// @Description Links an existing registrant to an existing event. Role defaults to participant and status to applied.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateRegistrationRequest true "Registration data"
// @Success 201 {object} helpers.APIResponse "data contains the registration"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (event or registrant)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/registrations [post]
func (c *RegistrationController) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistrationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	eventRef, err := parseRefParam(req.EventRef, domain.CollectionEvents)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	registrantRef, err := parseRefParam(req.RegistrantRef, domain.CollectionRegistrants)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	reg, err := c.Service.CreateRegistration(r.Context(), domain.CreateRegistrationInput{
		EventRef:      eventRef,
		RegistrantRef: registrantRef,
		Role:          domain.Role(strings.TrimSpace(req.Role)),
		Status:        domain.RegistrationStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, reg)
}

// ListRegistrations godoc
// @Summary List registrations
// @Description Registrations newest first, optionally filtered by event and status.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventId query string false "Event id or events/<id>"
// @Param status query string false "pending, applied, approved, waitlist, rejected, canceled or completed"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Router /admin/registrations [get]
func (c *RegistrationController) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	filter, err := registrationFilter(r)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	list, err := c.Service.ListRegistrations(r.Context(), filter)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, helpers.Paginate(list, helpers.ParsePagination(r)))
}

// ListRegistrationViews godoc
// @Summary List registrations with event and registrant names
// @Description Same ordering and filters as the plain list. Dangling references fall back to the raw id and set eventMissing or registrantMissing.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventId query string false "Event id or events/<id>"
// @Param status query string false "Registration status"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Router /admin/registrations/views [get]
func (c *RegistrationController) ListRegistrationViews(w http.ResponseWriter, r *http.Request) {
	filter, err := registrationFilter(r)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	views, err := c.Service.ListRegistrationViews(r.Context(), filter)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, helpers.Paginate(views, helpers.ParsePagination(r)))
}

// GetRegistration godoc
// @Summary Get a registration
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} helpers.APIResponse "data contains the registration"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/registrations/{registrationID} [get]
func (c *RegistrationController) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := c.Service.GetRegistration(r.Context(), r.PathValue("registrationID"))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// UpdateStatus godoc
// @Summary Change a registration's status
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} helpers.APIResponse "data contains the registration"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: illegal_transition"
// @Router /admin/registrations/{registrationID}/status [patch]
func (c *RegistrationController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	reg, err := c.Service.UpdateStatus(r.Context(), r.PathValue("registrationID"), domain.RegistrationStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// DeleteRegistration godoc
// @Summary Delete a registration
// @Description Removes the registration only; the registrant and any invite are kept.
// @Tags registrations
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Success 204 "deleted"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/registrations/{registrationID} [delete]
func (c *RegistrationController) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DeleteRegistration(r.Context(), r.PathValue("registrationID")); err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamRegistrations godoc
// @Summary Stream registrations
// @Description Server-Sent Events. Each "snapshot" event carries the full filtered list, sent on connect and after every change.
// @Tags registrations
// @Produce text/event-stream
// @Security BearerAuth
// @Param eventId query string false "Event id or events/<id>"
// @Param status query string false "Registration status"
// @Success 200 {array} domain.Registration "snapshot event payload"
// @Router /admin/registrations/stream [get]
func (c *RegistrationController) StreamRegistrations(w http.ResponseWriter, r *http.Request) {
	filter, err := registrationFilter(r)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	streamSnapshots(w, r, c.Logger, c.Metrics, "registrations", func(fn func([]*domain.Registration)) (domain.Subscription, error) {
		return c.Service.WatchRegistrations(filter, fn)
	})
}
