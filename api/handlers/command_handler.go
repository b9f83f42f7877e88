package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/middleware"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CommandHandler handles command issue, acknowledgement and listing
type CommandHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(svc service.Service, log *logrus.Logger) *CommandHandler {
	return &CommandHandler{
		service: svc,
		log:     log,
	}
}

type issueCommandRequest struct {
	DeviceID    string          `json:"device_id" binding:"required,max=64"`
	CommandType string          `json:"command_type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	Priority    *int            `json:"priority"`
	ExpiresIn   *int            `json:"expires_in"`
}

type acknowledgeRequest struct {
	CommandID string          `json:"command_id" binding:"required"`
	Status    string          `json:"status" binding:"required"`
	Result    json.RawMessage `json:"result"`
}

// Issue queues a command for a device
func (h *CommandHandler) Issue(c *gin.Context) {
	op, ok := operator(c, h.log)
	if !ok {
		return
	}

	var request issueCommandRequest
	if !bindJSON(c, h.log, &request) {
		return
	}
	c.Set(middleware.DeviceIDKey, request.DeviceID)

	command, err := h.service.IssueCommand(c.Request.Context(), op, service.IssueCommandRequest{
		DeviceID:    request.DeviceID,
		CommandType: models.CommandType(request.CommandType),
		Payload:     request.Payload,
		Priority:    request.Priority,
		ExpiresIn:   request.ExpiresIn,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"command_id": command.ID,
		"expires_at": command.ExpiresAt,
		"message":    "Command queued for delivery on the device's next report",
	})
}

// Acknowledge records a device-reported command outcome
func (h *CommandHandler) Acknowledge(c *gin.Context) {
	var request acknowledgeRequest
	if !bindJSON(c, h.log, &request) {
		return
	}

	err := h.service.AcknowledgeCommand(c.Request.Context(), service.AcknowledgeRequest{
		CommandID: request.CommandID,
		Status:    models.CommandStatus(request.Status),
		Result:    request.Result,
		APIKey:    c.GetHeader(middleware.APIKeyHeader),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List returns the recent commands of a device
func (h *CommandHandler) List(c *gin.Context) {
	op, ok := operator(c, h.log)
	if !ok {
		return
	}

	deviceID := c.Param("device_id")
	c.Set(middleware.DeviceIDKey, deviceID)

	commands, err := h.service.ListDeviceCommands(c.Request.Context(), op, deviceID, models.CommandStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"commands": commands,
	})
}
