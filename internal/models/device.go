package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceStatus is the live status snapshot of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "online"
	DeviceStatusOffline    DeviceStatus = "offline"
	DeviceStatusLowBattery DeviceStatus = "low_battery"
	DeviceStatusError      DeviceStatus = "error"
)

// DeviceCategory is the catalog category of a device type
type DeviceCategory string

const (
	CategoryTag     DeviceCategory = "tag"
	CategoryGateway DeviceCategory = "gateway"
)

// MetadataAPIKey is the metadata key holding the per-device shared secret.
const MetadataAPIKey = "api_key"

// DeviceType is platform reference data describing a kind of hardware.
type DeviceType struct {
	Model
	Category     DeviceCategory `json:"category" gorm:"Column:category;size:16;uniqueIndex:idx_device_type_category;not null"`
	Manufacturer string         `json:"manufacturer" gorm:"Column:manufacturer;size:64;uniqueIndex:idx_device_type_category;not null"`
	ModelName    string         `json:"model" gorm:"Column:model;size:64"`
	Name         string         `json:"name" gorm:"Column:name;size:128"`
}

// Device model represents a physical device in the fleet
type Device struct {
	Model
	DeviceID         string            `json:"device_id" gorm:"Column:device_id;uniqueIndex;size:64;not null"`
	DeviceTypeID     uint              `json:"device_type_id" gorm:"Column:device_type_id;index"`
	DeviceType       *DeviceType       `json:"device_type,omitempty" gorm:"foreignKey:DeviceTypeID"`
	OrganizationID   *uint             `json:"organization_id" gorm:"Column:organization_id;index"`
	Name             string            `json:"name" gorm:"Column:name;size:128"`
	MacAddress       *string           `json:"mac_address" gorm:"Column:mac_address;size:32"`
	SerialNumber     *string           `json:"serial_number" gorm:"Column:serial_number;size:64"`
	FirmwareVersion  string            `json:"firmware_version" gorm:"Column:firmware_version;size:32"`
	Status           DeviceStatus      `json:"status" gorm:"Column:status;size:16;index"`
	BatteryLevel     *int              `json:"battery_level" gorm:"Column:battery_level"`
	SignalStrength   *int              `json:"signal_strength" gorm:"Column:signal_strength"`
	LocationLat      *float64          `json:"location_lat" gorm:"Column:location_lat"`
	LocationLng      *float64          `json:"location_lng" gorm:"Column:location_lng"`
	LocationAccuracy *float64          `json:"location_accuracy" gorm:"Column:location_accuracy"`
	LocationAt       *time.Time        `json:"location_at" gorm:"Column:location_at"`
	LastSeen         *time.Time        `json:"last_seen" gorm:"Column:last_seen;index"`
	PairedAt         *time.Time        `json:"paired_at" gorm:"Column:paired_at"`
	PairedBy         *string           `json:"paired_by" gorm:"Column:paired_by;size:64"`
	Metadata         datatypes.JSONMap `json:"metadata" gorm:"Column:metadata"`
}

// APIKey returns the per-device secret stored in metadata, if any.
func (d *Device) APIKey() string {
	if d.Metadata == nil {
		return ""
	}
	key, _ := d.Metadata[MetadataAPIKey].(string)
	return key
}

// BelongsTo reports whether the device is paired to the organization.
func (d *Device) BelongsTo(orgID uint) bool {
	return d.OrganizationID != nil && *d.OrganizationID == orgID
}

// Location is a point-in-time GPS fix recorded on the device row.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	At        time.Time
}

// TelemetrySnapshot holds the device columns written by telemetry ingestion.
// Nil fields are left untouched.
type TelemetrySnapshot struct {
	Status         DeviceStatus
	LastSeen       time.Time
	BatteryLevel   *int
	SignalStrength *int
	Location       *Location
}

// DeviceAuth is the signed-identity credential record of a device.
type DeviceAuth struct {
	Model
	DeviceID   uint       `json:"device_id" gorm:"Column:device_id;uniqueIndex;not null"`
	DeviceUUID string     `json:"device_uuid" gorm:"Column:device_uuid;uniqueIndex;size:64;not null"`
	IsLocked   bool       `json:"is_locked" gorm:"Column:is_locked;not null;default:false"`
	LockedAt   *time.Time `json:"locked_at" gorm:"Column:locked_at"`
	LockReason string     `json:"lock_reason" gorm:"Column:lock_reason;size:255"`
}

// TableName pins the table name
func (DeviceAuth) TableName() string {
	return "device_auth"
}
