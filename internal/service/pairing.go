package service

import (
	"context"
	"errors"
	"strings"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// PairRequest binds a device identity to the operator's organization
type PairRequest struct {
	DeviceID     string
	DeviceType   models.DeviceCategory
	Name         *string
	MacAddress   *string
	SerialNumber *string
	Metadata     map[string]interface{}
}

// PairResult is the paired device and its signed-identity handle
type PairResult struct {
	Device     *models.Device
	DeviceUUID string
	Created    bool
}

// PairDevice registers a device to the operator's organization. Re-pairing
// into the same organization updates the existing row; a device owned by
// another organization is never re-owned.
func (s *FleetService) PairDevice(ctx context.Context, op Operator, req PairRequest) (*PairResult, error) {
	if fields := validatePairRequest(req); len(fields) > 0 {
		return nil, NewValidationError(fields...)
	}

	role, err := s.operatorRole(ctx, op, op.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !role.CanOperateDevices() {
		return nil, NewAuthorizationError("role may not pair devices")
	}

	deviceType, err := s.repo.FindDeviceTypeByCategory(ctx, req.DeviceType, s.protocol.Manufacturer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("device type")
		}
		return nil, NewInternalError("failed to load device type", err)
	}

	result, err := s.pairOnce(ctx, op, req, deviceType)
	if errors.Is(err, repository.ErrDuplicateKey) {
		// a concurrent first pairing inserted the row; the retry takes the update path
		result, err = s.pairOnce(ctx, op, req, deviceType)
	}
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, svcErr
		}
		return nil, NewInternalError("failed to pair device", err)
	}

	s.devices.Invalidate(ctx, req.DeviceID)

	s.log.WithFields(logrus.Fields{
		"device_id":       result.Device.DeviceID,
		"organization_id": op.OrganizationID,
		"paired_by":       op.UserID,
		"created":         result.Created,
	}).Info("Device paired")

	s.publish(ctx, messaging.EventDevicePaired, result.Device.DeviceID, map[string]interface{}{
		"organization_id": op.OrganizationID,
		"device_type":     deviceType.Category,
		"created":         result.Created,
	})
	return result, nil
}

func (s *FleetService) pairOnce(ctx context.Context, op Operator, req PairRequest, deviceType *models.DeviceType) (*PairResult, error) {
	result := &PairResult{}
	now := s.now()
	orgID := op.OrganizationID
	pairedBy := op.UserID

	err := s.repo.WithTransaction(ctx, func(ctx context.Context, tx repository.Repository) error {
		device, err := tx.LockDeviceByDeviceID(ctx, req.DeviceID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			device = &models.Device{
				DeviceID:        req.DeviceID,
				FirmwareVersion: s.protocol.DefaultFirmwareVersion,
			}
			result.Created = true
		case err != nil:
			return err
		case device.OrganizationID != nil && *device.OrganizationID != orgID:
			return NewConflictError("device is paired to another organization", nil)
		}

		device.DeviceTypeID = deviceType.ID
		device.OrganizationID = &orgID
		device.Status = models.DeviceStatusOnline
		device.PairedAt = &now
		device.PairedBy = &pairedBy
		if req.Name != nil {
			device.Name = *req.Name
		}
		if req.MacAddress != nil {
			device.MacAddress = req.MacAddress
		}
		if req.SerialNumber != nil {
			device.SerialNumber = req.SerialNumber
		}
		device.Metadata = mergeMetadata(device.Metadata, req.Metadata)

		if result.Created {
			if err := tx.CreateDevice(ctx, device); err != nil {
				return err
			}
		} else if err := tx.UpdateDevicePairing(ctx, device); err != nil {
			return err
		}

		auth, err := tx.FindDeviceAuthByDeviceID(ctx, device.ID)
		if errors.Is(err, repository.ErrNotFound) {
			auth = &models.DeviceAuth{DeviceID: device.ID, DeviceUUID: uuid.NewString()}
			err = tx.CreateDeviceAuth(ctx, auth)
		}
		if err != nil {
			return err
		}

		device.DeviceType = deviceType
		result.Device = device
		result.DeviceUUID = auth.DeviceUUID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UnpairDevice releases a device from its organization. The row is kept.
func (s *FleetService) UnpairDevice(ctx context.Context, op Operator, deviceID string) error {
	device, err := s.findDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.OrganizationID == nil {
		return NewConflictError("device is not paired", nil)
	}
	role, err := s.operatorRole(ctx, op, *device.OrganizationID)
	if err != nil {
		return err
	}
	if !role.CanUnpairDevices() {
		return NewAuthorizationError("role may not unpair devices")
	}

	if err := s.repo.ClearDeviceOrganization(ctx, device.ID); err != nil {
		return NewInternalError("failed to unpair device", err)
	}
	s.devices.Invalidate(ctx, deviceID)

	s.log.WithFields(logrus.Fields{
		"device_id":       deviceID,
		"organization_id": *device.OrganizationID,
		"unpaired_by":     op.UserID,
	}).Info("Device unpaired")

	s.publish(ctx, messaging.EventDeviceUnpaired, deviceID, map[string]interface{}{
		"organization_id": *device.OrganizationID,
	})
	return nil
}

func validatePairRequest(req PairRequest) []FieldError {
	var fields []FieldError
	if strings.TrimSpace(req.DeviceID) == "" {
		fields = append(fields, FieldError{Field: "device_id", Constraint: "required", Message: "is required"})
	} else if len(req.DeviceID) > 64 {
		fields = append(fields, FieldError{Field: "device_id", Constraint: "max=64", Message: "must be at most 64 characters"})
	}
	// unknown categories are resolved against the device type table
	if strings.TrimSpace(string(req.DeviceType)) == "" {
		fields = append(fields, FieldError{Field: "device_type", Constraint: "required", Message: "is required"})
	}
	return fields
}

// mergeMetadata overlays supplied keys on the stored metadata and makes sure
// the device ends up with an api_key.
func mergeMetadata(stored datatypes.JSONMap, supplied map[string]interface{}) datatypes.JSONMap {
	merged := datatypes.JSONMap{}
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range supplied {
		merged[k] = v
	}
	if key, _ := merged[models.MetadataAPIKey].(string); key == "" {
		merged[models.MetadataAPIKey] = newAPIKey()
	}
	return merged
}

func newAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
