package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/config"
	"theralink-server/internal/handlers"
	"theralink-server/internal/middleware"
	"theralink-server/internal/service"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, svc *service.Service, cfg *config.Config) {
	patientHandler := handlers.NewPatientHandler(svc)
	treatmentHandler := handlers.NewTreatmentHandler(svc)
	doseHandler := handlers.NewDoseHandler(svc)
	summaryHandler := handlers.NewSummaryHandler(svc)
	shareHandler := handlers.NewShareHandler(svc, cfg.Share.Secret, time.Duration(cfg.Share.ExpiryHours)*time.Hour, cfg.AppURL)
	systemHandler := handlers.NewSystemHandler(svc)

	api := router.Group("/api")
	{
		patientRoutes := api.Group("/patient")
		{
			patientRoutes.POST("/new", patientHandler.CreatePatient)
			patientRoutes.GET("/all", patientHandler.GetPatients)
			patientRoutes.GET("/:id", patientHandler.GetPatientByID)
			patientRoutes.POST("/:id/share", shareHandler.CreateShareLink)
		}

		api.POST("/treatment/new", treatmentHandler.CreateTreatment)
		api.POST("/log_dose", doseHandler.LogDose)
		api.GET("/dose_logs/patient/:id", doseHandler.GetDoseLogsForPatient)
		api.GET("/summary/:id", summaryHandler.GetSummary)
		api.GET("/schedule/:id", summaryHandler.GetSchedule)

		// Read-only access through an NFC share link
		shareRoutes := api.Group("/share/:token")
		shareRoutes.Use(middleware.ShareTokenMiddleware(cfg.Share.Secret))
		{
			shareRoutes.GET("/summary", summaryHandler.GetSharedSummary)
			shareRoutes.GET("/schedule", summaryHandler.GetSharedSchedule)
		}
	}

	router.GET("/health", systemHandler.Health)
	router.GET("/test", systemHandler.Check)
}
