package repository

import (
	"context"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
)

// Firmware operations implementation

func (r *repo) CreateFirmwareVersion(ctx context.Context, firmware *models.FirmwareVersion) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(firmware).Error)
}

// FindLatestFirmware returns the highest build published on the channel.
func (r *repo) FindLatestFirmware(ctx context.Context, deviceTypeID uint, channel string) (*models.FirmwareVersion, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var firmware models.FirmwareVersion
	err = gormDB.
		Where("device_type_id = ? AND release_channel = ?", deviceTypeID, channel).
		Order("build_number DESC").
		First(&firmware).Error
	if err != nil {
		return nil, translate(err)
	}

	return &firmware, nil
}

func (r *repo) MaxBuildNumber(ctx context.Context, deviceTypeID uint, channel string) (int, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	var maxBuild int
	err = gormDB.Model(&models.FirmwareVersion{}).
		Where("device_type_id = ? AND release_channel = ?", deviceTypeID, channel).
		Select("COALESCE(MAX(build_number), 0)").
		Scan(&maxBuild).Error
	return maxBuild, translate(err)
}

// OTA job operations implementation

func (r *repo) CreateOTAJob(ctx context.Context, job *models.OTAUpdateJob) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(job).Error)
}

func (r *repo) FindOTAJobByID(ctx context.Context, id uint) (*models.OTAUpdateJob, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var job models.OTAUpdateJob
	if err := gormDB.Preload("FirmwareVersion").First(&job, id).Error; err != nil {
		return nil, translate(err)
	}

	return &job, nil
}

// FindActiveOTAJob returns the non-terminal job for the pair, if any.
func (r *repo) FindActiveOTAJob(ctx context.Context, deviceID, firmwareVersionID uint) (*models.OTAUpdateJob, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var job models.OTAUpdateJob
	err = gormDB.
		Where("device_id = ? AND firmware_version_id = ? AND status IN ?",
			deviceID, firmwareVersionID, models.ActiveOTAJobStatuses).
		Order("id ASC").
		First(&job).Error
	if err != nil {
		return nil, translate(err)
	}

	return &job, nil
}

// UpdateOTAJobStage persists a stage change made by the job state machine.
// It only applies while the stored status still equals from.
func (r *repo) UpdateOTAJobStage(ctx context.Context, job *models.OTAUpdateJob, from models.OTAJobStatus) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	res := gormDB.Model(&models.OTAUpdateJob{}).
		Where("id = ? AND status = ?", job.ID, from).
		Updates(map[string]interface{}{
			"status":        job.Status,
			"started_at":    job.StartedAt,
			"completed_at":  job.CompletedAt,
			"error_message": job.ErrorMessage,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleUpdate
	}
	return nil
}

// ListStaleOTAJobs returns non-terminal jobs untouched since the cutoff
func (r *repo) ListStaleOTAJobs(ctx context.Context, updatedBefore time.Time) ([]*models.OTAUpdateJob, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []*models.OTAUpdateJob
	err = gormDB.
		Where("status IN ? AND updated_at < ?", models.ActiveOTAJobStatuses, updatedBefore).
		Order("updated_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, translate(err)
	}

	return jobs, nil
}
