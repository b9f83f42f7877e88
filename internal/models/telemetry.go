package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// TelemetryDataType discriminates telemetry reports
type TelemetryDataType string

const (
	DataTypeSensor    TelemetryDataType = "sensor"
	DataTypeLocation  TelemetryDataType = "location"
	DataTypeStatus    TelemetryDataType = "status"
	DataTypeHeartbeat TelemetryDataType = "heartbeat"
)

// ErrUnknownDataType is returned when a report carries an unsupported data_type.
var ErrUnknownDataType = errors.New("unknown telemetry data type")

// TelemetrySample is an append-only telemetry fact.
type TelemetrySample struct {
	ID        uint              `json:"id" gorm:"primarykey"`
	DeviceID  uint              `json:"device_id" gorm:"Column:device_id;index:idx_telemetry_device_time;not null"`
	DataType  TelemetryDataType `json:"data_type" gorm:"Column:data_type;size:16;not null"`
	Payload   datatypes.JSON    `json:"payload" gorm:"Column:payload"`
	Timestamp time.Time         `json:"timestamp" gorm:"Column:timestamp;index:idx_telemetry_device_time"`
	CreatedAt time.Time         `json:"created_at"`
}

// GPSFix is the gps block of a telemetry payload.
type GPSFix struct {
	Lat      *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng      *float64 `json:"lng" validate:"required,min=-180,max=180"`
	Accuracy *float64 `json:"accuracy,omitempty" validate:"omitempty,min=0,max=1000"`
	Altitude *float64 `json:"altitude,omitempty" validate:"omitempty,min=-500,max=9000"`
	Speed    *float64 `json:"speed,omitempty" validate:"omitempty,min=0,max=500"`
}

// Readings are the sub-fields a telemetry payload may carry. All are optional.
type Readings struct {
	Battery     *int     `json:"battery,omitempty" validate:"omitempty,min=0,max=100"`
	RSSI        *int     `json:"rssi,omitempty" validate:"omitempty,min=-120,max=0"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=-40,max=85"`
	GPS         *GPSFix  `json:"gps,omitempty" validate:"omitempty"`
}

// TelemetryReport is a decoded telemetry payload, one variant per data type.
type TelemetryReport interface {
	DataType() TelemetryDataType
	Values() *Readings
}

type (
	SensorReport    Readings
	LocationReport  Readings
	StatusReport    Readings
	HeartbeatReport Readings
)

func (r *SensorReport) DataType() TelemetryDataType    { return DataTypeSensor }
func (r *LocationReport) DataType() TelemetryDataType  { return DataTypeLocation }
func (r *StatusReport) DataType() TelemetryDataType    { return DataTypeStatus }
func (r *HeartbeatReport) DataType() TelemetryDataType { return DataTypeHeartbeat }

func (r *SensorReport) Values() *Readings    { return (*Readings)(r) }
func (r *LocationReport) Values() *Readings  { return (*Readings)(r) }
func (r *StatusReport) Values() *Readings    { return (*Readings)(r) }
func (r *HeartbeatReport) Values() *Readings { return (*Readings)(r) }

// NewTelemetryReport returns an empty report for the data type.
func NewTelemetryReport(dataType TelemetryDataType) (TelemetryReport, error) {
	switch dataType {
	case DataTypeSensor:
		return &SensorReport{}, nil
	case DataTypeLocation:
		return &LocationReport{}, nil
	case DataTypeStatus:
		return &StatusReport{}, nil
	case DataTypeHeartbeat:
		return &HeartbeatReport{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}
}

// DecodeTelemetryReport decodes a raw payload into its data type variant.
// Type mismatches surface as *json.UnmarshalTypeError; nothing is coerced.
func DecodeTelemetryReport(dataType TelemetryDataType, raw json.RawMessage) (TelemetryReport, error) {
	report, err := NewTelemetryReport(dataType)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return report, nil
	}
	if err := json.Unmarshal(raw, report); err != nil {
		return nil, err
	}
	return report, nil
}
