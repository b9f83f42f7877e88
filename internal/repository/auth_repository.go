package repository

import (
	"context"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"gorm.io/gorm/clause"
)

func (r *repo) CreateDeviceAuth(ctx context.Context, auth *models.DeviceAuth) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(auth).Error)
}

func (r *repo) FindDeviceAuthByUUID(ctx context.Context, deviceUUID string) (*models.DeviceAuth, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var auth models.DeviceAuth
	if err := gormDB.Where("device_uuid = ?", deviceUUID).First(&auth).Error; err != nil {
		return nil, translate(err)
	}

	return &auth, nil
}

func (r *repo) FindDeviceAuthByDeviceID(ctx context.Context, deviceID uint) (*models.DeviceAuth, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var auth models.DeviceAuth
	if err := gormDB.Where("device_id = ?", deviceID).First(&auth).Error; err != nil {
		return nil, translate(err)
	}

	return &auth, nil
}

// SetDeviceAuthLock flips the kill switch of a device credential
func (r *repo) SetDeviceAuthLock(ctx context.Context, deviceUUID string, locked bool, reason string, at time.Time) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	columns := map[string]interface{}{
		"is_locked":   locked,
		"lock_reason": reason,
		"locked_at":   nil,
	}
	if locked {
		columns["locked_at"] = at
	}

	result := gormDB.Model(&models.DeviceAuth{}).Where("device_uuid = ?", deviceUUID).Updates(columns)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) FindMemberRole(ctx context.Context, organizationID uint, userID string) (models.MemberRole, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return "", err
	}

	var member models.OrganizationMember
	err = gormDB.Where("organization_id = ? AND user_id = ?", organizationID, userID).First(&member).Error
	if err != nil {
		return "", translate(err)
	}

	return member.Role, nil
}

// UpsertMember creates a membership or updates the role of an existing one
func (r *repo) UpsertMember(ctx context.Context, member *models.OrganizationMember) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(member).Error)
}
