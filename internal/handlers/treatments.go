package handlers

import (
	"github.com/gin-gonic/gin"

	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// TreatmentHandler handles prescription lines.
type TreatmentHandler struct {
	Service *service.Service
}

// NewTreatmentHandler creates a new TreatmentHandler.
func NewTreatmentHandler(svc *service.Service) *TreatmentHandler {
	return &TreatmentHandler{Service: svc}
}

// CreateTreatmentRequest represents the request body for adding a treatment.
// An empty schedule_days means every day.
type CreateTreatmentRequest struct {
	PatientID    string   `json:"patient_id" binding:"required"`
	Medication   string   `json:"medication" binding:"required"`
	Dosage       string   `json:"dosage" binding:"required"`
	Frequency    string   `json:"frequency" binding:"required"`
	StartDate    string   `json:"start_date" binding:"required"`
	ScheduleDays []string `json:"schedule_days"`
}

// CreateTreatment handles adding a treatment to an existing patient.
func (h *TreatmentHandler) CreateTreatment(c *gin.Context) {
	var req CreateTreatmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	treatment, err := h.Service.RegisterTreatment(c.Request.Context(), service.RegisterTreatmentInput{
		PatientID:    req.PatientID,
		Medication:   req.Medication,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		StartDate:    req.StartDate,
		ScheduleDays: req.ScheduleDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Created(c, "Treatment added successfully", treatment)
}
