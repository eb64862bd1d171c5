package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// ShareHandler issues read-only share links for a patient, meant to be
// written to an NFC tag.
type ShareHandler struct {
	Service *service.Service
	Secret  string
	TTL     time.Duration
	AppURL  string
}

// NewShareHandler creates a new ShareHandler.
func NewShareHandler(svc *service.Service, secret string, ttl time.Duration, appURL string) *ShareHandler {
	return &ShareHandler{Service: svc, Secret: secret, TTL: ttl, AppURL: appURL}
}

// ShareLinkResponse is returned when a share link is issued.
type ShareLinkResponse struct {
	PatientID   string    `json:"patient_id"`
	Token       string    `json:"token"`
	SummaryURL  string    `json:"summary_url"`
	ScheduleURL string    `json:"schedule_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateShareLink handles POST /api/patient/:id/share.
func (h *ShareHandler) CreateShareLink(c *gin.Context) {
	patient, err := h.Service.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	token, expiresAt, err := utils.GenerateShareToken(patient.ID, h.Secret, h.TTL, time.Now())
	if err != nil {
		utils.InternalServerError(c, "Failed to issue share link")
		return
	}
	base := h.AppURL + "/api/share/" + token
	utils.Created(c, "Share link created successfully", ShareLinkResponse{
		PatientID:   patient.ID,
		Token:       token,
		SummaryURL:  base + "/summary",
		ScheduleURL: base + "/schedule",
		ExpiresAt:   expiresAt,
	})
}
