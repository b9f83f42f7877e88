package handlers

import (
	"net/http"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/api/middleware"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PairingHandler handles device pairing
type PairingHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewPairingHandler creates a new PairingHandler instance
func NewPairingHandler(svc service.Service, log *logrus.Logger) *PairingHandler {
	return &PairingHandler{
		service: svc,
		log:     log,
	}
}

type pairRequest struct {
	DeviceID     string                 `json:"device_id" binding:"required,max=64"`
	DeviceType   string                 `json:"device_type" binding:"required"`
	Name         *string                `json:"name" binding:"omitempty,max=128"`
	MacAddress   *string                `json:"mac_address" binding:"omitempty,mac"`
	SerialNumber *string                `json:"serial_number" binding:"omitempty,max=64"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Pair binds a device to the operator's organization
func (h *PairingHandler) Pair(c *gin.Context) {
	op, ok := operator(c, h.log)
	if !ok {
		return
	}

	var request pairRequest
	if !bindJSON(c, h.log, &request) {
		return
	}
	c.Set(middleware.DeviceIDKey, request.DeviceID)

	result, err := h.service.PairDevice(c.Request.Context(), op, service.PairRequest{
		DeviceID:     request.DeviceID,
		DeviceType:   models.DeviceCategory(request.DeviceType),
		Name:         request.Name,
		MacAddress:   request.MacAddress,
		SerialNumber: request.SerialNumber,
		Metadata:     request.Metadata,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"success":     true,
		"device":      result.Device,
		"device_uuid": result.DeviceUUID,
	})
}

// Unpair releases a device from its organization
func (h *PairingHandler) Unpair(c *gin.Context) {
	op, ok := operator(c, h.log)
	if !ok {
		return
	}

	deviceID := c.Param("device_id")
	c.Set(middleware.DeviceIDKey, deviceID)

	if err := h.service.UnpairDevice(c.Request.Context(), op, deviceID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
