package handlers

import (
	"github.com/gin-gonic/gin"

	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// PatientHandler handles patient registration and lookup.
type PatientHandler struct {
	Service *service.Service
}

// NewPatientHandler creates a new PatientHandler.
func NewPatientHandler(svc *service.Service) *PatientHandler {
	return &PatientHandler{Service: svc}
}

// CreatePatientRequest represents the request body for registering a patient.
type CreatePatientRequest struct {
	Name      string `json:"name" binding:"required"`
	Age       int    `json:"age" binding:"required"`
	Gender    string `json:"gender" binding:"required"`
	Condition string `json:"condition" binding:"required"`
}

// CreatePatient handles registering a new patient.
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req CreatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patient, err := h.Service.RegisterPatient(c.Request.Context(), service.RegisterPatientInput{
		Name:      req.Name,
		Age:       req.Age,
		Gender:    req.Gender,
		Condition: req.Condition,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Created(c, "Patient registered successfully", patient)
}

// GetPatients handles listing all patients.
func (h *PatientHandler) GetPatients(c *gin.Context) {
	patients, err := h.Service.ListPatients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "Patients retrieved successfully", patients)
}

// GetPatientByID handles fetching a patient with their treatments.
func (h *PatientHandler) GetPatientByID(c *gin.Context) {
	patient, err := h.Service.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "Patient retrieved successfully", patient)
}
