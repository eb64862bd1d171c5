package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// DoseHandler handles the dose ledger.
type DoseHandler struct {
	Service *service.Service
}

// NewDoseHandler creates a new DoseHandler.
func NewDoseHandler(svc *service.Service) *DoseHandler {
	return &DoseHandler{Service: svc}
}

// LogDoseRequest represents the request body for logging a dose. Timestamp
// is RFC 3339 and defaults to the time of the request.
type LogDoseRequest struct {
	PatientID  string     `json:"patient_id" binding:"required"`
	Medication string     `json:"medication" binding:"required"`
	Status     string     `json:"status" binding:"required"`
	Timestamp  *time.Time `json:"timestamp"`
}

// LogDose handles appending a dose event and returns the refreshed summary.
func (h *DoseHandler) LogDose(c *gin.Context) {
	var req LogDoseRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	result, err := h.Service.LogDose(c.Request.Context(), service.LogDoseInput{
		PatientID:  req.PatientID,
		Medication: req.Medication,
		Status:     req.Status,
		Timestamp:  req.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Created(c, "Dose logged successfully", result)
}

// GetDoseLogsForPatient handles listing a patient's ledger entries.
func (h *DoseHandler) GetDoseLogsForPatient(c *gin.Context) {
	logs, err := h.Service.GetDoseLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "Dose logs retrieved successfully", logs)
}
