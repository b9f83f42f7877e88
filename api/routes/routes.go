package routes

import (
	"sync"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/handlers"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/middleware"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var registerValidator sync.Once

// SetupRoutes sets up all the routes for the server. otaRequestsPerMinute
// bounds OTA calls per device_uuid.
func SetupRoutes(r *gin.Engine, svc service.Service, db handlers.Pinger, tokens middleware.TokenValidator, otaRequestsPerMinute int, log *logrus.Logger) {
	registerValidator.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			service.RegisterJSONFieldNames(v)
		}
	})

	// Health check
	r.GET("/health", handlers.HealthCheck(db))

	api := r.Group("/api/v1")
	operatorAuth := middleware.OperatorAuth(tokens, log)

	// Device-facing routes
	telemetryHandler := handlers.NewTelemetryHandler(svc, log)
	commandHandler := handlers.NewCommandHandler(svc, log)
	otaHandler := handlers.NewOTAHandler(svc, log)
	api.POST("/telemetry", telemetryHandler.Ingest)
	api.POST("/commands/ack", commandHandler.Acknowledge)

	otaLimiter := middleware.NewDeviceRateLimiter(otaRequestsPerMinute)
	ota := api.Group("/ota", middleware.RequireDeviceSignature(), middleware.DeviceRateLimit(otaLimiter, log))
	{
		ota.POST("/check", otaHandler.CheckForUpdate)
		ota.POST("/jobs/:id/progress", otaHandler.ReportProgress)
	}

	// Operator routes
	pairingHandler := handlers.NewPairingHandler(svc, log)
	api.POST("/commands", operatorAuth, commandHandler.Issue)

	devices := api.Group("/devices", operatorAuth)
	{
		devices.POST("/pair", pairingHandler.Pair)
		devices.DELETE("/:device_id/pairing", pairingHandler.Unpair)
		devices.GET("/:device_id/commands", commandHandler.List)
	}
}
