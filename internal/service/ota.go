package service

import (
	"context"
	"errors"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/ota"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/sirupsen/logrus"
)

// BlockReasonLowBattery is reported when the battery gate holds an update back
const BlockReasonLowBattery = "low_battery"

// UpdateCheckRequest is a device asking whether newer firmware exists
type UpdateCheckRequest struct {
	DeviceUUID     string
	CurrentVersion string
	DeviceType     string
	BatteryLevel   int
}

// UpdateCheckResult is the orchestrator's decision
type UpdateCheckResult struct {
	UpdateAvailable bool
	UpdateBlocked   bool
	Reason          string
	RequiredBattery int
	CurrentBattery  int
	Firmware        *models.FirmwareVersion
	Job             *models.OTAUpdateJob
	// JobCreated is false when an existing active job was reused
	JobCreated bool
}

// OTAProgressRequest is a device-reported stage change of an update job
type OTAProgressRequest struct {
	DeviceUUID   string
	JobID        uint
	Status       models.OTAJobStatus
	ErrorMessage string
}

// CheckForUpdate compares the device's firmware to the newest stable build of
// its type and, when the battery allows, ensures a single active update job.
func (s *FleetService) CheckForUpdate(ctx context.Context, req UpdateCheckRequest) (*UpdateCheckResult, error) {
	device, err := s.auth.AuthenticateDeviceUUID(ctx, req.DeviceUUID)
	if err != nil {
		return nil, err
	}

	logger := s.log.WithFields(logrus.Fields{
		"device_id":       device.DeviceID,
		"current_version": req.CurrentVersion,
	})
	if device.DeviceType != nil && req.DeviceType != "" && string(device.DeviceType.Category) != req.DeviceType {
		logger.WithField("reported_type", req.DeviceType).Warn("Device reported a type different from its record")
	}

	latest, err := s.repo.FindLatestFirmware(ctx, device.DeviceTypeID, s.protocol.ReleaseChannel)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &UpdateCheckResult{UpdateAvailable: false}, nil
		}
		return nil, NewInternalError("failed to load firmware catalog", err)
	}

	if latest.Version == req.CurrentVersion {
		return &UpdateCheckResult{UpdateAvailable: false, Firmware: latest}, nil
	}

	required := s.protocol.OTAMinBattery(latest.MinBatteryLevel)
	if req.BatteryLevel < required {
		logger.WithFields(logrus.Fields{
			"target_version":   latest.Version,
			"battery_level":    req.BatteryLevel,
			"required_battery": required,
		}).Info("Update held back by battery gate")
		return &UpdateCheckResult{
			UpdateAvailable: true,
			UpdateBlocked:   true,
			Reason:          BlockReasonLowBattery,
			RequiredBattery: required,
			CurrentBattery:  req.BatteryLevel,
			Firmware:        latest,
		}, nil
	}

	job, created, err := s.ensureUpdateJob(ctx, device, latest)
	if err != nil {
		return nil, err
	}
	if created {
		logger.WithFields(logrus.Fields{
			"job_id":         job.ID,
			"target_version": latest.Version,
		}).Info("OTA update job created")
		s.publish(ctx, messaging.EventOTAJobCreated, device.DeviceID, job)
	}

	return &UpdateCheckResult{
		UpdateAvailable: true,
		CurrentBattery:  req.BatteryLevel,
		RequiredBattery: required,
		Firmware:        latest,
		Job:             job,
		JobCreated:      created,
	}, nil
}

// ensureUpdateJob returns the active job for (device, firmware), creating a
// pending one when none exists. The device row lock serializes concurrent
// checks; the partial unique index catches any race the lock does not.
func (s *FleetService) ensureUpdateJob(ctx context.Context, device *models.Device, firmware *models.FirmwareVersion) (*models.OTAUpdateJob, bool, error) {
	var job *models.OTAUpdateJob
	created := false

	err := s.repo.WithTransaction(ctx, func(ctx context.Context, tx repository.Repository) error {
		if _, err := tx.LockDeviceByID(ctx, device.ID); err != nil {
			return err
		}

		existing, err := tx.FindActiveOTAJob(ctx, device.ID, firmware.ID)
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		job = &models.OTAUpdateJob{
			DeviceID:          device.ID,
			FirmwareVersionID: firmware.ID,
			Status:            models.OTAJobPending,
			ScheduledAt:       s.now(),
		}
		if err := tx.CreateOTAJob(ctx, job); err != nil {
			return err
		}
		created = true
		return nil
	})

	if errors.Is(err, repository.ErrDuplicateKey) {
		existing, findErr := s.repo.FindActiveOTAJob(ctx, device.ID, firmware.ID)
		if findErr != nil {
			return nil, false, NewInternalError("failed to load concurrent update job", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, NewInternalError("failed to create update job", err)
	}
	return job, created, nil
}

// ReportOTAProgress advances an update job through its state machine on
// behalf of the device it targets. An applied job moves the device's
// firmware_version to the job's build.
func (s *FleetService) ReportOTAProgress(ctx context.Context, req OTAProgressRequest) (*models.OTAUpdateJob, error) {
	device, err := s.auth.AuthenticateDeviceUUID(ctx, req.DeviceUUID)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.FindOTAJobByID(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("update job")
		}
		return nil, NewInternalError("failed to load update job", err)
	}
	if job.DeviceID != device.ID {
		return nil, NewNotFoundError("update job")
	}

	from := job.Status
	now := s.now()
	if err := ota.Advance(job, req.Status, now, req.ErrorMessage); err != nil {
		if errors.Is(err, ota.ErrInvalidTransition) {
			return nil, NewConflictError("job cannot move from "+string(from)+" to "+string(req.Status), err)
		}
		return nil, NewInternalError("failed to advance update job", err)
	}

	if err := s.repo.UpdateOTAJobStage(ctx, job, from); err != nil {
		if errors.Is(err, repository.ErrStaleUpdate) {
			return nil, NewConflictError("update job changed concurrently", err)
		}
		return nil, NewInternalError("failed to save update job", err)
	}

	logger := s.log.WithFields(logrus.Fields{
		"device_id": device.DeviceID,
		"job_id":    job.ID,
		"from":      from,
		"to":        job.Status,
	})
	logger.Info("OTA job advanced")

	if job.Status == models.OTAJobApplied && job.FirmwareVersion != nil {
		if err := s.repo.UpdateDeviceFirmwareVersion(ctx, device.ID, job.FirmwareVersion.Version); err != nil {
			logger.WithError(err).Error("Failed to record applied firmware version")
		}
	}
	if job.Status == models.OTAJobRolledBack && job.FirmwareVersion != nil && job.FirmwareVersion.RollbackVersion != nil {
		if err := s.repo.UpdateDeviceFirmwareVersion(ctx, device.ID, *job.FirmwareVersion.RollbackVersion); err != nil {
			logger.WithError(err).Error("Failed to record rollback firmware version")
		}
	}

	s.publish(ctx, messaging.EventOTAJobProgress, device.DeviceID, map[string]interface{}{
		"job_id": job.ID,
		"from":   from,
		"to":     job.Status,
	})
	return job, nil
}

// StaleOTAJobs lists active jobs that have not advanced since the cutoff
func (s *FleetService) StaleOTAJobs(ctx context.Context, olderThan time.Duration) ([]*models.OTAUpdateJob, error) {
	jobs, err := s.repo.ListStaleOTAJobs(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, NewInternalError("failed to list stale update jobs", err)
	}
	return jobs, nil
}
