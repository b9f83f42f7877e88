package models

import (
	"time"
)

// ReleaseChannelStable is the channel devices are offered updates from.
const ReleaseChannelStable = "stable"

// FirmwareVersion is an immutable published build for a device type.
// BuildNumber is the ordering key; Version is free text.
type FirmwareVersion struct {
	Model
	DeviceTypeID    uint        `json:"device_type_id" gorm:"Column:device_type_id;uniqueIndex:idx_firmware_build;not null"`
	DeviceType      *DeviceType `json:"-" gorm:"foreignKey:DeviceTypeID"`
	Version         string      `json:"version" gorm:"Column:version;size:32;not null"`
	BuildNumber     int         `json:"build_number" gorm:"Column:build_number;uniqueIndex:idx_firmware_build;not null"`
	ReleaseChannel  string      `json:"release_channel" gorm:"Column:release_channel;size:16;uniqueIndex:idx_firmware_build;not null"`
	FileURL         string      `json:"file_url" gorm:"Column:file_url;not null"`
	FileHash        string      `json:"file_hash" gorm:"Column:file_hash;size:128"`
	FileSizeBytes   int64       `json:"file_size_bytes" gorm:"Column:file_size_bytes"`
	Signature       string      `json:"signature" gorm:"Column:signature;type:text"`
	IsMandatory     bool        `json:"is_mandatory" gorm:"Column:is_mandatory;not null;default:false"`
	RequiresBackup  bool        `json:"requires_backup" gorm:"Column:requires_backup;not null;default:false"`
	RollbackVersion *string     `json:"rollback_version" gorm:"Column:rollback_version;size:32"`
	MinBatteryLevel *int        `json:"min_battery_level" gorm:"Column:min_battery_level"`
	Changelog       string      `json:"changelog" gorm:"Column:changelog;type:text"`
	PublishedAt     time.Time   `json:"published_at" gorm:"Column:published_at"`
}

// OTAJobStatus is the stage of an OTA update job
type OTAJobStatus string

const (
	OTAJobPending     OTAJobStatus = "pending"
	OTAJobDownloading OTAJobStatus = "downloading"
	OTAJobVerifying   OTAJobStatus = "verifying"
	OTAJobApplied     OTAJobStatus = "applied"
	OTAJobFailed      OTAJobStatus = "failed"
	OTAJobRolledBack  OTAJobStatus = "rolled_back"
)

// ActiveOTAJobStatuses are the non-terminal stages. At most one job per
// (device, firmware version) may be in one of them.
var ActiveOTAJobStatuses = []OTAJobStatus{OTAJobPending, OTAJobDownloading, OTAJobVerifying}

// IsActive reports whether s is a non-terminal stage.
func (s OTAJobStatus) IsActive() bool {
	for _, active := range ActiveOTAJobStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// OTAUpdateJob is one attempt to move one device to one firmware version.
type OTAUpdateJob struct {
	Model
	DeviceID          uint             `json:"device_id" gorm:"Column:device_id;index;not null"`
	FirmwareVersionID uint             `json:"firmware_version_id" gorm:"Column:firmware_version_id;index;not null"`
	FirmwareVersion   *FirmwareVersion `json:"firmware_version,omitempty" gorm:"foreignKey:FirmwareVersionID"`
	Status            OTAJobStatus     `json:"status" gorm:"Column:status;size:16;index;not null"`
	ScheduledAt       time.Time        `json:"scheduled_at" gorm:"Column:scheduled_at"`
	StartedAt         *time.Time       `json:"started_at" gorm:"Column:started_at"`
	CompletedAt       *time.Time       `json:"completed_at" gorm:"Column:completed_at"`
	ErrorMessage      string           `json:"error_message,omitempty" gorm:"Column:error_message;type:text"`
}

// TableName pins the table name used by the active-job index
func (OTAUpdateJob) TableName() string {
	return "ota_update_jobs"
}
