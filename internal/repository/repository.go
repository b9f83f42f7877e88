package repository

import (
	"context"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/database"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides data access methods
type Repository interface {
	// Transaction support
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error

	// Device operations
	CreateDevice(ctx context.Context, device *models.Device) error
	FindDeviceByID(ctx context.Context, id uint) (*models.Device, error)
	FindDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
	LockDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
	LockDeviceByID(ctx context.Context, id uint) (*models.Device, error)
	UpdateDeviceTelemetry(ctx context.Context, id uint, snapshot models.TelemetrySnapshot) error
	UpdateDevicePairing(ctx context.Context, device *models.Device) error
	UpdateDeviceFirmwareVersion(ctx context.Context, id uint, version string) error
	ClearDeviceOrganization(ctx context.Context, id uint) error
	MarkDevicesOffline(ctx context.Context, lastSeenBefore time.Time) (int64, error)

	// DeviceType operations
	FindDeviceTypeByCategory(ctx context.Context, category models.DeviceCategory, manufacturer string) (*models.DeviceType, error)

	// DeviceAuth operations
	CreateDeviceAuth(ctx context.Context, auth *models.DeviceAuth) error
	FindDeviceAuthByUUID(ctx context.Context, deviceUUID string) (*models.DeviceAuth, error)
	FindDeviceAuthByDeviceID(ctx context.Context, deviceID uint) (*models.DeviceAuth, error)
	SetDeviceAuthLock(ctx context.Context, deviceUUID string, locked bool, reason string, at time.Time) error

	// Organization membership
	FindMemberRole(ctx context.Context, organizationID uint, userID string) (models.MemberRole, error)
	UpsertMember(ctx context.Context, member *models.OrganizationMember) error

	// Telemetry operations
	CreateTelemetrySample(ctx context.Context, sample *models.TelemetrySample) error

	// Command operations
	CreateCommand(ctx context.Context, command *models.Command) error
	FindCommandByID(ctx context.Context, id uuid.UUID) (*models.Command, error)
	ListDeliverableCommands(ctx context.Context, deviceID uint, now time.Time, limit int) ([]*models.Command, error)
	ListDeviceCommands(ctx context.Context, deviceID uint, status models.CommandStatus, limit int) ([]*models.Command, error)
	AcknowledgeCommand(ctx context.Context, id uuid.UUID, expected, status models.CommandStatus, at time.Time, result datatypes.JSON) error

	// Firmware operations
	CreateFirmwareVersion(ctx context.Context, firmware *models.FirmwareVersion) error
	FindLatestFirmware(ctx context.Context, deviceTypeID uint, channel string) (*models.FirmwareVersion, error)
	MaxBuildNumber(ctx context.Context, deviceTypeID uint, channel string) (int, error)

	// OTA job operations
	CreateOTAJob(ctx context.Context, job *models.OTAUpdateJob) error
	FindOTAJobByID(ctx context.Context, id uint) (*models.OTAUpdateJob, error)
	FindActiveOTAJob(ctx context.Context, deviceID, firmwareVersionID uint) (*models.OTAUpdateJob, error)
	UpdateOTAJobStage(ctx context.Context, job *models.OTAUpdateJob, from models.OTAJobStatus) error
	ListStaleOTAJobs(ctx context.Context, updatedBefore time.Time) ([]*models.OTAUpdateJob, error)
}

// repo is an implementation of the Repository interface
type repo struct {
	db database.DB
}

// Helper type for transaction support
type dbWrapper struct {
	db *gorm.DB
}

func (w *dbWrapper) DB() (*gorm.DB, error) {
	return w.db, nil
}

func (w *dbWrapper) Ping() error {
	return nil
}

func (w *dbWrapper) Close() error {
	return nil
}

// NewRepository creates a new repository instance
func NewRepository(db database.DB) Repository {
	return &repo{
		db: db,
	}
}

// conn returns the gorm handle bound to ctx
func (r *repo) conn(ctx context.Context) (*gorm.DB, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	return gormDB.WithContext(ctx), nil
}

// WithTransaction executes the given function within a database transaction
func (r *repo) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return gormDB.Transaction(func(tx *gorm.DB) error {
		txRepo := &repo{
			db: &dbWrapper{db: tx},
		}
		return fn(ctx, txRepo)
	})
}

// Device operations implementation

func (r *repo) CreateDevice(ctx context.Context, device *models.Device) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(device).Error)
}

func (r *repo) FindDeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Preload("DeviceType").First(&device, id).Error; err != nil {
		return nil, translate(err)
	}

	return &device, nil
}

func (r *repo) FindDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Preload("DeviceType").Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		return nil, translate(err)
	}

	return &device, nil
}

// LockDeviceByDeviceID reads a device row with a row lock held until the
// surrounding transaction ends.
func (r *repo) LockDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var device models.Device
	err = gormDB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("device_id = ?", deviceID).
		First(&device).Error
	if err != nil {
		return nil, translate(err)
	}

	return &device, nil
}

func (r *repo) LockDeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&device, id).Error; err != nil {
		return nil, translate(err)
	}

	return &device, nil
}

// UpdateDeviceTelemetry writes only the telemetry-owned columns. Nil snapshot
// fields keep their stored values.
func (r *repo) UpdateDeviceTelemetry(ctx context.Context, id uint, snapshot models.TelemetrySnapshot) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	columns := map[string]interface{}{
		"status":    snapshot.Status,
		"last_seen": snapshot.LastSeen,
	}
	if snapshot.BatteryLevel != nil {
		columns["battery_level"] = *snapshot.BatteryLevel
	}
	if snapshot.SignalStrength != nil {
		columns["signal_strength"] = *snapshot.SignalStrength
	}
	if loc := snapshot.Location; loc != nil {
		columns["location_lat"] = loc.Latitude
		columns["location_lng"] = loc.Longitude
		columns["location_accuracy"] = loc.Accuracy
		columns["location_at"] = loc.At
	}

	result := gormDB.Model(&models.Device{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// pairingColumns are the device columns owned by pairing
var pairingColumns = []string{
	"device_type_id", "organization_id", "name", "mac_address", "serial_number",
	"metadata", "status", "paired_at", "paired_by",
}

func (r *repo) UpdateDevicePairing(ctx context.Context, device *models.Device) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Model(device).Select(pairingColumns).Updates(device).Error)
}

func (r *repo) UpdateDeviceFirmwareVersion(ctx context.Context, id uint, version string) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Model(&models.Device{}).Where("id = ?", id).Update("firmware_version", version).Error)
}

func (r *repo) ClearDeviceOrganization(ctx context.Context, id uint) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Model(&models.Device{}).Where("id = ?", id).Update("organization_id", nil).Error)
}

// MarkDevicesOffline moves online and low_battery devices not seen since the
// cutoff to offline. Devices in error keep their status.
func (r *repo) MarkDevicesOffline(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	result := gormDB.Model(&models.Device{}).
		Where("status IN ? AND last_seen < ?",
			[]models.DeviceStatus{models.DeviceStatusOnline, models.DeviceStatusLowBattery},
			lastSeenBefore).
		Update("status", models.DeviceStatusOffline)
	return result.RowsAffected, translate(result.Error)
}

// DeviceType operations

func (r *repo) FindDeviceTypeByCategory(ctx context.Context, category models.DeviceCategory, manufacturer string) (*models.DeviceType, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var deviceType models.DeviceType
	err = gormDB.Where("category = ? AND manufacturer = ?", category, manufacturer).First(&deviceType).Error
	if err != nil {
		return nil, translate(err)
	}

	return &deviceType, nil
}

// Telemetry operations

func (r *repo) CreateTelemetrySample(ctx context.Context, sample *models.TelemetrySample) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(sample).Error)
}
