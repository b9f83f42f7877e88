package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// IngestRequest is a telemetry report from a device
type IngestRequest struct {
	DeviceID  string
	DataType  models.TelemetryDataType
	Payload   json.RawMessage
	Timestamp *time.Time
	APIKey    string
}

// IngestResult is the response to a telemetry report
type IngestResult struct {
	SampleID uint
	Status   models.DeviceStatus
	// Commands are pending work for the device. They stay pending until
	// acknowledged, so a device may receive the same command on several
	// reports and must dedupe by command id.
	Commands []*models.Command
}

// IngestTelemetry validates, authenticates and stores a telemetry report,
// refreshes the device's live status and piggybacks pending commands.
func (s *FleetService) IngestTelemetry(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.DeviceID == "" {
		return nil, NewValidationError(FieldError{Field: "device_id", Constraint: "required", Message: "is required"})
	}

	report, err := DecodeTelemetry(req.DataType, req.Payload)
	if err != nil {
		return nil, err
	}

	device, err := s.auth.AuthenticateAPIKey(ctx, req.DeviceID, req.APIKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reportedAt := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		reportedAt = req.Timestamp.UTC()
	}

	sample := &models.TelemetrySample{
		DeviceID:  device.ID,
		DataType:  req.DataType,
		Payload:   datatypes.JSON(req.Payload),
		Timestamp: reportedAt,
	}
	if err := s.repo.CreateTelemetrySample(ctx, sample); err != nil {
		return nil, NewInternalError("failed to store telemetry", err)
	}

	logger := s.log.WithFields(logrus.Fields{
		"device_id": device.DeviceID,
		"sample_id": sample.ID,
		"data_type": req.DataType,
	})

	// The sample is durable from here on; a failed status refresh is
	// corrected by the next report.
	snapshot := s.snapshotFrom(report.Values(), now, reportedAt)
	if err := s.repo.UpdateDeviceTelemetry(ctx, device.ID, snapshot); err != nil {
		logger.WithError(err).Error("Failed to refresh device status")
	}

	if err := s.indexer.IndexSample(ctx, device.DeviceID, sample); err != nil {
		logger.WithError(err).Warn("Failed to index telemetry sample")
	}

	// An empty list would read as "nothing queued", so a failed lookup is
	// reported even though the sample is already stored.
	commands, err := s.repo.ListDeliverableCommands(ctx, device.ID, now, s.protocol.MaxPiggybackCommands)
	if err != nil {
		logger.WithError(err).Error("Failed to load pending commands")
		return nil, NewInternalError("failed to load pending commands", err)
	}
	if commands == nil {
		commands = []*models.Command{}
	}

	logger.WithFields(logrus.Fields{
		"status":   snapshot.Status,
		"commands": len(commands),
	}).Debug("Telemetry ingested")

	return &IngestResult{
		SampleID: sample.ID,
		Status:   snapshot.Status,
		Commands: commands,
	}, nil
}

// snapshotFrom derives the telemetry-owned device columns from a report.
// Location only changes when the report carries a gps fix.
func (s *FleetService) snapshotFrom(r *models.Readings, now, reportedAt time.Time) models.TelemetrySnapshot {
	snapshot := models.TelemetrySnapshot{
		Status:         models.DeviceStatusOnline,
		LastSeen:       now,
		BatteryLevel:   r.Battery,
		SignalStrength: r.RSSI,
	}
	if s.protocol.IsLowBattery(r.Battery) {
		snapshot.Status = models.DeviceStatusLowBattery
	}
	if r.GPS != nil {
		snapshot.Location = &models.Location{
			Latitude:  *r.GPS.Lat,
			Longitude: *r.GPS.Lng,
			Accuracy:  r.GPS.Accuracy,
			At:        reportedAt,
		}
	}
	return snapshot
}
