package handlers

import (
	"github.com/gin-gonic/gin"

	"theralink-server/internal/middleware"
	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// SummaryHandler serves the adherence summary and the dosing schedule.
type SummaryHandler struct {
	Service *service.Service
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(svc *service.Service) *SummaryHandler {
	return &SummaryHandler{Service: svc}
}

// GetSummary handles GET /api/summary/:id?date=YYYY-MM-DD.
func (h *SummaryHandler) GetSummary(c *gin.Context) {
	h.summary(c, c.Param("id"))
}

// GetSchedule handles GET /api/schedule/:id?date=&horizon=.
func (h *SummaryHandler) GetSchedule(c *gin.Context) {
	h.schedule(c, c.Param("id"))
}

func (h *SummaryHandler) summary(c *gin.Context, patientID string) {
	date, ok := dateQuery(c)
	if !ok {
		return
	}
	summary, err := h.Service.GetSummary(c.Request.Context(), patientID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "Summary retrieved successfully", summary)
}

func (h *SummaryHandler) schedule(c *gin.Context, patientID string) {
	date, ok := dateQuery(c)
	if !ok {
		return
	}
	horizon, ok := horizonQuery(c, h.Service.HorizonDays())
	if !ok {
		return
	}
	items, err := h.Service.GetSchedule(c.Request.Context(), patientID, date, horizon)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "Schedule retrieved successfully", items)
}

// GetSharedSummary serves the summary of the patient a share token names.
func (h *SummaryHandler) GetSharedSummary(c *gin.Context) {
	patientID, ok := middleware.GetSharedPatientID(c)
	if !ok {
		utils.Unauthorized(c, "Share token required")
		return
	}
	h.summary(c, patientID)
}

// GetSharedSchedule serves the schedule of the patient a share token names.
func (h *SummaryHandler) GetSharedSchedule(c *gin.Context) {
	patientID, ok := middleware.GetSharedPatientID(c)
	if !ok {
		utils.Unauthorized(c, "Share token required")
		return
	}
	h.schedule(c, patientID)
}
