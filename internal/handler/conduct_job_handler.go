package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
	"github.com/noah-isme/sma-conduct-api/pkg/response"
)

type conductJobService interface {
	EnqueueDailyBonus(req dto.DailyBonusRequest) (*dto.JobAcceptedResponse, error)
	EnqueuePeriodBonus(req dto.PeriodBonusRequest) (*dto.JobAcceptedResponse, error)
	EnqueueRollover(req dto.RolloverRequest) (*dto.JobAcceptedResponse, error)
}

// ConductJobHandler queues the batch runs.
type ConductJobHandler struct {
	jobs conductJobService
}

// NewConductJobHandler builds a new handler.
func NewConductJobHandler(jobs conductJobService) *ConductJobHandler {
	return &ConductJobHandler{jobs: jobs}
}

// DailyBonus godoc
// @Summary Queue the no-loss daily bonus
// @Tags Conduct Jobs
// @Accept json
// @Produce json
// @Param payload body dto.DailyBonusRequest true "Date range"
// @Success 202 {object} response.Envelope{data=dto.JobAcceptedResponse}
// @Failure 409 {object} response.Envelope
// @Router /conduct/bonuses/daily [post]
func (h *ConductJobHandler) DailyBonus(c *gin.Context) {
	var req dto.DailyBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid daily bonus payload"))
		return
	}
	accepted, err := h.jobs.EnqueueDailyBonus(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, accepted)
}

// PeriodBonus godoc
// @Summary Queue the period-average bonus
// @Tags Conduct Jobs
// @Accept json
// @Produce json
// @Param payload body dto.PeriodBonusRequest true "Period"
// @Success 202 {object} response.Envelope{data=dto.JobAcceptedResponse}
// @Router /conduct/bonuses/period [post]
func (h *ConductJobHandler) PeriodBonus(c *gin.Context) {
	var req dto.PeriodBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period bonus payload"))
		return
	}
	accepted, err := h.jobs.EnqueuePeriodBonus(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, accepted)
}

// Rollover godoc
// @Summary Queue the year-end carryover
// @Tags Conduct Jobs
// @Accept json
// @Produce json
// @Param payload body dto.RolloverRequest true "Closing year"
// @Success 202 {object} response.Envelope{data=dto.JobAcceptedResponse}
// @Router /conduct/rollover [post]
func (h *ConductJobHandler) Rollover(c *gin.Context) {
	var req dto.RolloverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rollover payload"))
		return
	}
	accepted, err := h.jobs.EnqueueRollover(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, accepted)
}
