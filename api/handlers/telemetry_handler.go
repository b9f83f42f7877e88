package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/middleware"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TelemetryHandler handles device telemetry reports
type TelemetryHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewTelemetryHandler creates a new TelemetryHandler instance
func NewTelemetryHandler(svc service.Service, log *logrus.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		service: svc,
		log:     log,
	}
}

type telemetryRequest struct {
	DeviceID  string          `json:"device_id" binding:"required,max=64"`
	DataType  string          `json:"data_type" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp *time.Time      `json:"timestamp"`
}

// Ingest stores a telemetry report and returns pending commands
func (h *TelemetryHandler) Ingest(c *gin.Context) {
	var request telemetryRequest
	if !bindJSON(c, h.log, &request) {
		return
	}
	c.Set(middleware.DeviceIDKey, request.DeviceID)

	result, err := h.service.IngestTelemetry(c.Request.Context(), service.IngestRequest{
		DeviceID:  request.DeviceID,
		DataType:  models.TelemetryDataType(request.DataType),
		Payload:   request.Payload,
		Timestamp: request.Timestamp,
		APIKey:    c.GetHeader(middleware.APIKeyHeader),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"telemetry_id": result.SampleID,
		"status":       result.Status,
		"commands":     commandViews(result.Commands),
	})
}

// commandView is the device-facing shape of a piggybacked command
type commandView struct {
	ID          string             `json:"id"`
	CommandType models.CommandType `json:"command_type"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	Priority    int                `json:"priority"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

func commandViews(commands []*models.Command) []commandView {
	views := make([]commandView, 0, len(commands))
	for _, cmd := range commands {
		views = append(views, commandView{
			ID:          cmd.ID.String(),
			CommandType: cmd.CommandType,
			Payload:     json.RawMessage(cmd.Payload),
			Priority:    cmd.Priority,
			ExpiresAt:   cmd.ExpiresAt,
		})
	}
	return views
}
