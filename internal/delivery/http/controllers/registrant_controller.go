package controllers

import (
	"log/slog"
	"net/http"

	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
)

// RegistrantRequest is the request body for creating or patching a registrant. Only the keys
// present are written.
type RegistrantRequest struct {
	Basic         map[string]any `json:"basic"`
	Questionnaire map[string]any `json:"questionnaire"`
}

func (r RegistrantRequest) patch() domain.RegistrantPatch {
	return domain.RegistrantPatch{Basic: r.Basic, Questionnaire: r.Questionnaire}
}

type RegistrantController struct {
	Logger  *slog.Logger
	Service domain.RegistrantService
}

func NewRegistrantController(logger *slog.Logger, svc domain.RegistrantService) *RegistrantController {
	return &RegistrantController{Logger: logger, Service: svc}
}

// CreateRegistrant godoc
// @Summary Create a registrant
// @Tags registrants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body RegistrantRequest true "Basic data and questionnaire answers"
// @Success 201 {object} helpers.APIResponse "data contains the registrant"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/registrants [post]
func (c *RegistrantController) CreateRegistrant(w http.ResponseWriter, r *http.Request) {
	var req RegistrantRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	registrant, err := c.Service.CreateRegistrant(r.Context(), req.patch())
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, registrant)
}

// ListRegistrants godoc
// @Summary List registrants
// @Description Registrants ordered by last name, then first name.
// @Tags registrants
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/registrants [get]
func (c *RegistrantController) ListRegistrants(w http.ResponseWriter, r *http.Request) {
	list, err := c.Service.ListRegistrants(r.Context())
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, helpers.Paginate(list, helpers.ParsePagination(r)))
}

// GetRegistrant godoc
// @Summary Get a registrant
// @Tags registrants
// @Produce json
// @Security BearerAuth
// @Param registrantID path string true "Registrant ID"
// @Success 200 {object} helpers.APIResponse "data contains the registrant"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/registrants/{registrantID} [get]
func (c *RegistrantController) GetRegistrant(w http.ResponseWriter, r *http.Request) {
	registrant, err := c.Service.GetRegistrant(r.Context(), r.PathValue("registrantID"))
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, registrant)
}

// UpdateRegistrant godoc
// @Summary Patch a registrant
// @Description Merges the given basic fields and questionnaire answers; everything else is kept.
// @Tags registrants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param registrantID path string true "Registrant ID"
// @Param body body RegistrantRequest true "Fields to merge"
// @Success 200 {object} helpers.APIResponse "data contains the registrant"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /admin/registrants/{registrantID} [patch]
func (c *RegistrantController) UpdateRegistrant(w http.ResponseWriter, r *http.Request) {
	var req RegistrantRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	registrant, err := c.Service.UpdateRegistrant(r.Context(), r.PathValue("registrantID"), req.patch())
	if err != nil {
		helpers.WriteError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, registrant)
}
