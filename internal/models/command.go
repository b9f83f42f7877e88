package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CommandType is the kind of work requested from a device
type CommandType string

const (
	CommandLocate         CommandType = "locate"
	CommandIdentify       CommandType = "identify"
	CommandFirmwareUpdate CommandType = "firmware_update"
	CommandReset          CommandType = "reset"
	CommandConfigure      CommandType = "configure"
)

// CommandStatus tracks a command through delivery and acknowledgement
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandSent      CommandStatus = "sent"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
)

// IsFinal reports whether the device has reported an outcome.
func (s CommandStatus) IsFinal() bool {
	return s == CommandCompleted || s == CommandFailed
}

// IsAcknowledgement reports whether s may be reported by a device.
func (s CommandStatus) IsAcknowledgement() bool {
	return s == CommandSent || s == CommandCompleted || s == CommandFailed
}

// ErrUnknownCommandType is returned for command types outside the catalog.
var ErrUnknownCommandType = errors.New("unknown command type")

// Command is a unit of work directed at one device.
type Command struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	DeviceID       uint           `json:"-" gorm:"Column:device_id;index:idx_command_delivery;not null"`
	CommandType    CommandType    `json:"command_type" gorm:"Column:command_type;size:32;not null"`
	Payload        datatypes.JSON `json:"payload,omitempty" gorm:"Column:payload"`
	Priority       int            `json:"priority" gorm:"Column:priority;not null;default:0"`
	IssuedBy       string         `json:"issued_by" gorm:"Column:issued_by;size:64"`
	ExpiresAt      time.Time      `json:"expires_at" gorm:"Column:expires_at;not null"`
	Status         CommandStatus  `json:"status" gorm:"Column:status;size:16;index:idx_command_delivery;not null"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty" gorm:"Column:acknowledged_at"`
	Result         datatypes.JSON `json:"result,omitempty" gorm:"Column:result"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BeforeCreate assigns the command id
func (c *Command) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the command can no longer be delivered at now.
func (c *Command) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CommandPayload is the typed form of a command payload, one variant per command type.
type CommandPayload interface {
	CommandType() CommandType
}

// LocatePayload asks a tag to make itself findable.
type LocatePayload struct {
	DurationSeconds int  `json:"duration_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
	Sound           bool `json:"sound,omitempty"`
	Light           bool `json:"light,omitempty"`
}

// IdentifyPayload asks a device to blink or beep a pattern.
type IdentifyPayload struct {
	Pattern         string `json:"pattern,omitempty" validate:"omitempty,max=32"`
	DurationSeconds int    `json:"duration_seconds,omitempty" validate:"omitempty,min=1,max=600"`
}

// FirmwareUpdatePayload nudges a device to run an OTA check.
type FirmwareUpdatePayload struct {
	Version string `json:"version,omitempty" validate:"omitempty,max=32"`
	Force   bool   `json:"force,omitempty"`
}

// ResetPayload restarts a device.
type ResetPayload struct {
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=soft hard factory"`
}

// ConfigurePayload carries opaque device settings.
type ConfigurePayload struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
}

func (LocatePayload) CommandType() CommandType         { return CommandLocate }
func (IdentifyPayload) CommandType() CommandType       { return CommandIdentify }
func (FirmwareUpdatePayload) CommandType() CommandType { return CommandFirmwareUpdate }
func (ResetPayload) CommandType() CommandType          { return CommandReset }
func (ConfigurePayload) CommandType() CommandType      { return CommandConfigure }

// DecodeCommandPayload decodes a raw payload into its command type variant.
// An absent payload decodes to the zero variant.
func DecodeCommandPayload(commandType CommandType, raw json.RawMessage) (CommandPayload, error) {
	var payload CommandPayload
	switch commandType {
	case CommandLocate:
		payload = &LocatePayload{}
	case CommandIdentify:
		payload = &IdentifyPayload{}
	case CommandFirmwareUpdate:
		payload = &FirmwareUpdatePayload{}
	case CommandReset:
		payload = &ResetPayload{}
	case CommandConfigure:
		payload = &ConfigurePayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommandType, commandType)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return payload, nil
	}
	if err := json.Unmarshal(trimmed, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
