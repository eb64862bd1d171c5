package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// SystemHandler reports service health.
type SystemHandler struct {
	Service *service.Service
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(svc *service.Service) *SystemHandler {
	return &SystemHandler{Service: svc}
}

// Health reports that the process is up.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// Check pings storage and the feedback provider. A degraded
// feedback provider still answers 200 since summaries fall back to rules.
func (h *SystemHandler) Check(c *gin.Context) {
	report := h.Service.Check(c.Request.Context())
	if report.Storage != "OK" {
		c.JSON(http.StatusServiceUnavailable, utils.ResponseData{
			Success: false,
			Status:  http.StatusServiceUnavailable,
			Message: "Storage unavailable",
			Data:    report,
			Error:   report.Storage,
		})
		return
	}
	utils.Success(c, "All systems operational", report)
}
