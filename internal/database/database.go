package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is an interface for database operations
type DB interface {
	DB() (*gorm.DB, error)
	Ping() error
	Close() error
}

// GormDatabase implements the DB interface for GORM
type GormDatabase struct {
	db *gorm.DB
}

// Connect establishes a connection to the postgres database
func Connect(cfg config.DatabaseConfig) (DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := Open(postgres.Open(dsn), parseLogLevel(cfg.LogLevel))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Open opens a database for any gorm dialector. Driver errors are translated
// so that unique violations surface as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*GormDatabase, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(level),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &GormDatabase{db: db}, nil
}

// DB returns the underlying gorm.DB instance
func (d *GormDatabase) DB() (*gorm.DB, error) {
	return d.db, nil
}

// Ping checks the database is reachable
func (d *GormDatabase) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (d *GormDatabase) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// activeJobIndex keeps at most one non-terminal OTA job per (device, firmware version).
var activeJobIndex = fmt.Sprintf(
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_ota_jobs_active ON ota_update_jobs (device_id, firmware_version_id) "+
		"WHERE status IN ('%s', '%s', '%s') AND deleted_at IS NULL",
	models.OTAJobPending, models.OTAJobDownloading, models.OTAJobVerifying,
)

// AutoMigrate creates or updates the schema
func AutoMigrate(db DB) error {
	gormDB, err := db.DB()
	if err != nil {
		return err
	}

	err = gormDB.AutoMigrate(
		&models.DeviceType{},
		&models.Device{},
		&models.DeviceAuth{},
		&models.OrganizationMember{},
		&models.TelemetrySample{},
		&models.Command{},
		&models.FirmwareVersion{},
		&models.OTAUpdateJob{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate table structures: %w", err)
	}

	if err := gormDB.Exec(activeJobIndex).Error; err != nil {
		return fmt.Errorf("failed to create active OTA job index: %w", err)
	}

	return nil
}

// SeedDeviceTypes ensures the tag and gateway catalog entries exist for the manufacturer
func SeedDeviceTypes(db DB, manufacturer string) error {
	gormDB, err := db.DB()
	if err != nil {
		return err
	}

	catalog := []models.DeviceType{
		{Category: models.CategoryTag, Manufacturer: manufacturer, ModelName: "IT-100", Name: "Inventory Tag"},
		{Category: models.CategoryGateway, Manufacturer: manufacturer, ModelName: "GW-200", Name: "Gateway Hub"},
	}
	for _, entry := range catalog {
		var existing models.DeviceType
		err := gormDB.
			Where(models.DeviceType{Category: entry.Category, Manufacturer: entry.Manufacturer}).
			Attrs(models.DeviceType{ModelName: entry.ModelName, Name: entry.Name}).
			FirstOrCreate(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to seed device type %s: %w", entry.Category, err)
		}
	}
	return nil
}
