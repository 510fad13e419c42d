package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
	"youthexchange/internal/pricing"
)

// EventRequest is the request body for POST /admin/events and PUT /admin/events/{eventID}.
// Omitted type and status default to "other" and "draft".
type EventRequest struct {
	Title            string       `json:"title"`
	Type             string       `json:"type"`
	Status           string       `json:"status"`
	StartDate        string       `json:"startDate"`
	EndDate          string       `json:"endDate"`
	Location         string       `json:"location"`
	Description      string       `json:"description"`
	RegistrationLots []domain.Lot `json:"registrationLots"`
}

// Validate implements Validator. Field formats are checked by the service.
func (e EventRequest) Validate() []string {
	if strings.TrimSpace(e.Title) == "" {
		return []string{"title is required"}
	}
	return nil
}

func (e EventRequest) toEvent(id string) *domain.Event {
	return &domain.Event{
		ID:          id,
		Title:       e.Title,
		Type:        domain.EventType(strings.ToLower(strings.TrimSpace(e.Type))),
		Status:      domain.EventStatus(strings.ToLower(strings.TrimSpace(e.Status))),
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Location:    e.Location,
		Description: e.Description,
		Lots:        e.RegistrationLots,
	}
}

// EventSuccessResponse is the success response envelope for single event endpoints.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// PricingSuccessResponse is the success response envelope for GET /admin/events/{eventID}/pricing.
type PricingSuccessResponse struct {
	Data  *domain.PricingState `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
	Now     func() time.Time
}

func NewEventController(logger *slog.Logger, svc domain.EventService) *EventController {
	return &EventController{
		Logger:  logger,
		Service: svc,
		Now:     time.Now,
	}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Creates an event with its registration lots. id and timestamps are server-generated.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body EventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	event := req.toEvent("")
	if err := c.Service.CreateEvent(r.Context(), event); err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// ListEvents godoc
// @Summary List events
// @Description Returns all events ordered by start date.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the events"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := c.Service.ListEvents(r.Context())
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, events)
}

// GetEvent godoc
// @Summary Get an event by ID
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := c.Service.GetEvent(r.Context(), r.PathValue("eventID"))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// UpdateEvent godoc
// @Summary Replace an event
// @Description Replaces the event's editable fields, lots included.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param event body EventRequest true "Event data"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the updated event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events/{eventID} [put]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	event := req.toEvent(r.PathValue("eventID"))
	if err := c.Service.UpdateEvent(r.Context(), event); err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event only. Registrations referencing it are kept and show the raw reference.
// @Tags events
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DeleteEvent(r.Context(), r.PathValue("eventID")); err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPricing godoc
// @Summary Resolve event pricing
// @Description Returns whether lots are configured, the lot covering the given day, and otherwise the next lot to open.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param date query string false "Day to resolve (YYYY-MM-DD), defaults to today"
// @Success 200 {object} controllers.PricingSuccessResponse "data contains configured, current and next"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/events/{eventID}/pricing [get]
func (c *EventController) GetPricing(w http.ResponseWriter, r *http.Request) {
	today := c.Now()
	if s := r.URL.Query().Get("date"); s != "" {
		day, ok := pricing.ParseDay(s)
		if !ok {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		today = day
	}
	state, err := c.Service.GetPricing(r.Context(), r.PathValue("eventID"), today)
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, state)
}
