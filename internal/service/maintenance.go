package service

import (
	"context"
	"errors"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/signing"

	"github.com/sirupsen/logrus"
)

// PublishFirmwareRequest describes a signed build to add to the catalog
type PublishFirmwareRequest struct {
	DeviceType      models.DeviceCategory
	Version         string
	FileURL         string
	Signature       *signing.FileSignature
	MinBatteryLevel *int
	RollbackVersion *string
	IsMandatory     bool
	RequiresBackup  bool
	Changelog       string
}

// SweepOfflineDevices marks devices not seen for olderThan as offline
func (s *FleetService) SweepOfflineDevices(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	count, err := s.repo.MarkDevicesOffline(ctx, cutoff)
	if err != nil {
		return 0, NewInternalError("failed to sweep offline devices", err)
	}
	if count > 0 {
		s.log.WithFields(logrus.Fields{
			"count":  count,
			"cutoff": cutoff,
		}).Info("Marked silent devices offline")
	}
	return count, nil
}

// SetDeviceLock flips the kill switch of a device credential
func (s *FleetService) SetDeviceLock(ctx context.Context, deviceUUID string, locked bool, reason string) error {
	if err := s.repo.SetDeviceAuthLock(ctx, deviceUUID, locked, reason, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFoundError("device credential")
		}
		return NewInternalError("failed to update device lock", err)
	}
	s.log.WithFields(logrus.Fields{
		"device_uuid": deviceUUID,
		"locked":      locked,
		"reason":      reason,
	}).Warn("Device lock changed")
	return nil
}

// AddMember grants a user a role inside an organization
func (s *FleetService) AddMember(ctx context.Context, organizationID uint, userID string, role models.MemberRole) error {
	if userID == "" {
		return NewValidationError(FieldError{Field: "user_id", Constraint: "required", Message: "is required"})
	}
	if !role.IsValid() {
		return NewValidationError(FieldError{
			Field:      "role",
			Constraint: "oneof=owner admin manager viewer",
			Message:    "must be one of: owner admin manager viewer",
		})
	}
	member := &models.OrganizationMember{OrganizationID: organizationID, UserID: userID, Role: role}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return NewInternalError("failed to save membership", err)
	}
	return nil
}

// PublishFirmware inserts an immutable build with the next build number of
// its device type on the configured release channel.
func (s *FleetService) PublishFirmware(ctx context.Context, req PublishFirmwareRequest) (*models.FirmwareVersion, error) {
	var fields []FieldError
	if req.Version == "" {
		fields = append(fields, FieldError{Field: "version", Constraint: "required", Message: "is required"})
	}
	if req.FileURL == "" {
		fields = append(fields, FieldError{Field: "file_url", Constraint: "required", Message: "is required"})
	}
	if req.Signature == nil {
		fields = append(fields, FieldError{Field: "signature", Constraint: "required", Message: "is required"})
	}
	if req.MinBatteryLevel != nil && (*req.MinBatteryLevel < 0 || *req.MinBatteryLevel > 100) {
		fields = append(fields, FieldError{Field: "min_battery_level", Constraint: "min=0,max=100", Message: "must be between 0 and 100"})
	}
	if len(fields) > 0 {
		return nil, NewValidationError(fields...)
	}

	deviceType, err := s.repo.FindDeviceTypeByCategory(ctx, req.DeviceType, s.protocol.Manufacturer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("device type")
		}
		return nil, NewInternalError("failed to load device type", err)
	}

	var firmware *models.FirmwareVersion
	err = s.repo.WithTransaction(ctx, func(ctx context.Context, tx repository.Repository) error {
		build, err := tx.MaxBuildNumber(ctx, deviceType.ID, s.protocol.ReleaseChannel)
		if err != nil {
			return err
		}
		firmware = &models.FirmwareVersion{
			DeviceTypeID:    deviceType.ID,
			Version:         req.Version,
			BuildNumber:     build + 1,
			ReleaseChannel:  s.protocol.ReleaseChannel,
			FileURL:         req.FileURL,
			FileHash:        req.Signature.Hash,
			FileSizeBytes:   req.Signature.SizeBytes,
			Signature:       req.Signature.Signature,
			IsMandatory:     req.IsMandatory,
			RequiresBackup:  req.RequiresBackup,
			RollbackVersion: req.RollbackVersion,
			MinBatteryLevel: req.MinBatteryLevel,
			Changelog:       req.Changelog,
			PublishedAt:     s.now(),
		}
		return tx.CreateFirmwareVersion(ctx, firmware)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, NewConflictError("a build was published concurrently", err)
		}
		return nil, NewInternalError("failed to publish firmware", err)
	}

	s.log.WithFields(logrus.Fields{
		"device_type":  deviceType.Category,
		"version":      firmware.Version,
		"build_number": firmware.BuildNumber,
	}).Info("Firmware published")
	return firmware, nil
}
