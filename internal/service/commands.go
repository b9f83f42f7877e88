package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	minCommandPriority = 0
	maxCommandPriority = 10
	commandListLimit   = 100
)

// IssueCommandRequest is an operator request to queue work for a device
type IssueCommandRequest struct {
	DeviceID    string
	CommandType models.CommandType
	Payload     json.RawMessage
	Priority    *int
	// ExpiresIn is the requested lifetime in seconds
	ExpiresIn *int
}

// AcknowledgeRequest is a device-reported command outcome
type AcknowledgeRequest struct {
	CommandID string
	Status    models.CommandStatus
	Result    json.RawMessage
	APIKey    string
}

// IssueCommand authorizes the operator against the device's organization and
// queues a pending command. It returns as soon as the command is stored.
func (s *FleetService) IssueCommand(ctx context.Context, op Operator, req IssueCommandRequest) (*models.Command, error) {
	if req.DeviceID == "" {
		return nil, NewValidationError(FieldError{Field: "device_id", Constraint: "required", Message: "is required"})
	}
	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
		if priority < minCommandPriority || priority > maxCommandPriority {
			return nil, NewValidationError(FieldError{
				Field:      "priority",
				Constraint: "min=0,max=10",
				Message:    "must be between 0 and 10",
			})
		}
	}
	if _, err := DecodeCommandPayload(req.CommandType, req.Payload); err != nil {
		return nil, err
	}

	device, err := s.findDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.OrganizationID == nil {
		return nil, NewAuthorizationError("device is not paired to an organization")
	}
	role, err := s.operatorRole(ctx, op, *device.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !role.CanOperateDevices() {
		return nil, NewAuthorizationError("role may not issue commands")
	}

	now := s.now()
	command := &models.Command{
		DeviceID:    device.ID,
		CommandType: req.CommandType,
		Payload:     normalizeJSON(req.Payload),
		Priority:    priority,
		IssuedBy:    op.UserID,
		ExpiresAt:   now.Add(s.protocol.CommandExpiry(req.ExpiresIn)),
		Status:      models.CommandPending,
		CreatedAt:   now,
	}
	if err := s.repo.CreateCommand(ctx, command); err != nil {
		return nil, NewInternalError("failed to queue command", err)
	}

	s.log.WithFields(logrus.Fields{
		"command_id":   command.ID,
		"device_id":    device.DeviceID,
		"command_type": command.CommandType,
		"priority":     command.Priority,
		"issued_by":    op.UserID,
	}).Info("Command queued")

	s.publish(ctx, messaging.EventCommandIssued, device.DeviceID, command)
	return command, nil
}

// AcknowledgeCommand records a device-reported outcome. The caller must hold
// the shared secret of the device the command targets.
func (s *FleetService) AcknowledgeCommand(ctx context.Context, req AcknowledgeRequest) error {
	id, err := uuid.Parse(req.CommandID)
	if err != nil {
		return NewValidationError(FieldError{Field: "command_id", Constraint: "uuid", Message: "must be a UUID"})
	}
	if !req.Status.IsAcknowledgement() {
		return NewValidationError(FieldError{
			Field:      "status",
			Constraint: "oneof=sent completed failed",
			Message:    "must be one of: sent completed failed",
		})
	}
	if req.APIKey == "" {
		return NewAuthenticationError("missing device API key")
	}

	command, err := s.repo.FindCommandByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFoundError("command")
		}
		return NewInternalError("failed to load command", err)
	}

	device, err := s.repo.FindDeviceByID(ctx, command.DeviceID)
	if err != nil {
		return NewInternalError("failed to load command device", err)
	}
	if err := s.auth.VerifyAPIKey(ctx, device, req.APIKey); err != nil {
		return err
	}

	if command.Status == req.Status {
		// retried acknowledgement
		return nil
	}
	if command.Status.IsFinal() {
		return NewConflictError("command already "+string(command.Status), nil)
	}

	now := s.now()
	err = s.repo.AcknowledgeCommand(ctx, id, command.Status, req.Status, now, normalizeJSON(req.Result))
	if err != nil {
		if errors.Is(err, repository.ErrStaleUpdate) {
			return NewConflictError("command changed concurrently", err)
		}
		return NewInternalError("failed to acknowledge command", err)
	}

	s.log.WithFields(logrus.Fields{
		"command_id": id,
		"device_id":  device.DeviceID,
		"status":     req.Status,
	}).Info("Command acknowledged")

	s.publish(ctx, messaging.EventCommandAcknowledged, device.DeviceID, map[string]interface{}{
		"command_id": id,
		"status":     req.Status,
	})
	return nil
}

// ListDeviceCommands lists a device's recent commands for any member of its organization
func (s *FleetService) ListDeviceCommands(ctx context.Context, op Operator, deviceID string, status models.CommandStatus) ([]*models.Command, error) {
	switch status {
	case "", models.CommandPending, models.CommandSent, models.CommandCompleted, models.CommandFailed:
	default:
		return nil, NewValidationError(FieldError{
			Field:      "status",
			Constraint: "oneof=pending sent completed failed",
			Message:    "must be one of: pending sent completed failed",
		})
	}

	device, err := s.findDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.OrganizationID == nil {
		return nil, NewAuthorizationError("device is not paired to an organization")
	}
	if _, err := s.operatorRole(ctx, op, *device.OrganizationID); err != nil {
		return nil, err
	}

	commands, err := s.repo.ListDeviceCommands(ctx, device.ID, status, commandListLimit)
	if err != nil {
		return nil, NewInternalError("failed to list commands", err)
	}
	return commands, nil
}

// normalizeJSON maps absent and null documents to SQL NULL
func normalizeJSON(raw json.RawMessage) datatypes.JSON {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return datatypes.JSON(trimmed)
}
