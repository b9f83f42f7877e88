package repository

import (
	"context"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

func (r *repo) CreateCommand(ctx context.Context, command *models.Command) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(command).Error)
}

func (r *repo) FindCommandByID(ctx context.Context, id uuid.UUID) (*models.Command, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var command models.Command
	if err := gormDB.Where("id = ?", id).First(&command).Error; err != nil {
		return nil, translate(err)
	}

	return &command, nil
}

// ListDeliverableCommands returns pending, unexpired commands for a device,
// highest priority first and oldest first within a priority.
func (r *repo) ListDeliverableCommands(ctx context.Context, deviceID uint, now time.Time, limit int) ([]*models.Command, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var commands []*models.Command
	err = gormDB.
		Where("device_id = ? AND status = ? AND expires_at > ?", deviceID, models.CommandPending, now).
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&commands).Error
	if err != nil {
		return nil, translate(err)
	}

	return commands, nil
}

// ListDeviceCommands lists a device's commands, newest first. An empty status
// lists every status.
func (r *repo) ListDeviceCommands(ctx context.Context, deviceID uint, status models.CommandStatus, limit int) ([]*models.Command, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := gormDB.Where("device_id = ?", deviceID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var commands []*models.Command
	if err := query.Order("created_at DESC").Limit(limit).Find(&commands).Error; err != nil {
		return nil, translate(err)
	}

	return commands, nil
}

// AcknowledgeCommand records a device-reported outcome. The update only
// applies while the command is still in the expected status.
func (r *repo) AcknowledgeCommand(ctx context.Context, id uuid.UUID, expected, status models.CommandStatus, at time.Time, result datatypes.JSON) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	res := gormDB.Model(&models.Command{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{
			"status":          status,
			"acknowledged_at": at,
			"result":          result,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleUpdate
	}
	return nil
}
