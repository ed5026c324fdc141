package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/middleware"
	"github.com/noah-isme/sma-conduct-api/internal/models"
	"github.com/noah-isme/sma-conduct-api/internal/service"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
	"github.com/noah-isme/sma-conduct-api/pkg/response"
)

type conductService interface {
	Today() time.Time
	ProjectAt(ctx context.Context, studentID string, asOf time.Time, freeze bool) (*models.ConductState, bool, error)
	RegisterIncidentDelta(ctx context.Context, studentID string, req dto.RegisterIncidentRequest) (*dto.IncidentDeltaResponse, error)
	ListEvents(ctx context.Context, studentID string, query dto.ConductEventsQuery) ([]dto.ConductEventResponse, *models.Pagination, error)
}

// ConductHandler exposes the per-student scoring endpoints.
type ConductHandler struct {
	service conductService
}

// NewConductHandler builds a new handler.
func NewConductHandler(service conductService) *ConductHandler {
	return &ConductHandler{service: service}
}

// State godoc
// @Summary Project a student's conduct score
// @Tags Conduct
// @Produce json
// @Param id path string true "Student ID"
// @Param asOf query string false "Projection date (YYYY-MM-DD, defaults to today)"
// @Param freeze query bool false "Write the projection into the period snapshot"
// @Success 200 {object} response.Envelope{data=dto.ConductStateResponse}
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/conduct [get]
func (h *ConductHandler) State(c *gin.Context) {
	var query dto.ConductStateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conduct query"))
		return
	}
	asOf := h.service.Today()
	if query.AsOf != "" {
		parsed, err := time.Parse(dto.DateLayout, query.AsOf)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "asOf must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	state, cached, err := h.service.ProjectAt(c.Request.Context(), c.Param("id"), asOf, query.Freeze)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, service.ToStateResponse(state, cached), nil, middleware.ExtractMeta(c))
}

// Events godoc
// @Summary List a student's conduct ledger
// @Tags Conduct
// @Produce json
// @Param id path string true "Student ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param type query []string false "Event types" collectionFormat(multi)
// @Param from query string false "From date"
// @Param to query string false "To date"
// @Success 200 {object} response.Envelope{data=[]dto.ConductEventResponse}
// @Router /students/{id}/conduct/events [get]
func (h *ConductHandler) Events(c *gin.Context) {
	var query dto.ConductEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event query"))
		return
	}
	items, pagination, err := h.service.ListEvents(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// RegisterIncident godoc
// @Summary Record the measure applied to a treated incident
// @Tags Conduct
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.RegisterIncidentRequest true "Measure payload"
// @Success 201 {object} response.Envelope{data=dto.IncidentDeltaResponse}
// @Success 200 {object} response.Envelope{data=dto.IncidentDeltaResponse}
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/conduct/incidents [post]
func (h *ConductHandler) RegisterIncident(c *gin.Context) {
	var req dto.RegisterIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}
	resp, err := h.service.RegisterIncidentDelta(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !resp.Applied {
		middleware.SetWarning(c, "measure not recognised; no points recorded")
		response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
		return
	}
	response.Created(c, resp)
}
