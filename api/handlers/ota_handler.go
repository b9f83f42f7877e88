package handlers

import (
	"net/http"
	"strconv"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OTAHandler handles over-the-air update checks and progress reports
type OTAHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewOTAHandler creates a new OTAHandler instance
func NewOTAHandler(svc service.Service, log *logrus.Logger) *OTAHandler {
	return &OTAHandler{
		service: svc,
		log:     log,
	}
}

type updateCheckRequest struct {
	DeviceUUID     string `json:"device_uuid" binding:"required"`
	CurrentVersion string `json:"current_version" binding:"required,max=32"`
	DeviceType     string `json:"device_type"`
	BatteryLevel   *int   `json:"battery_level" binding:"required,min=0,max=100"`
}

type progressRequest struct {
	DeviceUUID   string `json:"device_uuid" binding:"required"`
	Status       string `json:"status" binding:"required,oneof=downloading verifying applied failed rolled_back"`
	ErrorMessage string `json:"error_message" binding:"max=1024"`
}

// CheckForUpdate tells a device whether it should download new firmware
func (h *OTAHandler) CheckForUpdate(c *gin.Context) {
	var request updateCheckRequest
	if !bindJSON(c, h.log, &request) {
		return
	}

	result, err := h.service.CheckForUpdate(c.Request.Context(), service.UpdateCheckRequest{
		DeviceUUID:     request.DeviceUUID,
		CurrentVersion: request.CurrentVersion,
		DeviceType:     request.DeviceType,
		BatteryLevel:   *request.BatteryLevel,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if !result.UpdateAvailable {
		c.JSON(http.StatusOK, gin.H{
			"update_available": false,
			"current_version":  request.CurrentVersion,
		})
		return
	}

	if result.UpdateBlocked {
		c.JSON(http.StatusOK, gin.H{
			"update_available": true,
			"update_blocked":   true,
			"reason":           result.Reason,
			"latest_version":   result.Firmware.Version,
			"required_battery": result.RequiredBattery,
			"current_battery":  result.CurrentBattery,
		})
		return
	}

	fw := result.Firmware
	c.JSON(http.StatusOK, gin.H{
		"update_available": true,
		"update_blocked":   false,
		"job_id":           result.Job.ID,
		"latest_version":   fw.Version,
		"build_number":     fw.BuildNumber,
		"file_url":         fw.FileURL,
		"file_hash":        fw.FileHash,
		"file_size":        fw.FileSizeBytes,
		"signature":        fw.Signature,
		"is_mandatory":     fw.IsMandatory,
		"requires_backup":  fw.RequiresBackup,
		"rollback_version": fw.RollbackVersion,
		"changelog":        fw.Changelog,
	})
}

// ReportProgress advances an update job
func (h *OTAHandler) ReportProgress(c *gin.Context) {
	jobID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, h.log, service.NewValidationError(service.FieldError{
			Field:      "id",
			Constraint: "numeric",
			Message:    "must be a job id",
		}))
		return
	}

	var request progressRequest
	if !bindJSON(c, h.log, &request) {
		return
	}

	job, err := h.service.ReportOTAProgress(c.Request.Context(), service.OTAProgressRequest{
		DeviceUUID:   request.DeviceUUID,
		JobID:        uint(jobID),
		Status:       models.OTAJobStatus(request.Status),
		ErrorMessage: request.ErrorMessage,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  job.ID,
		"status":  job.Status,
	})
}
