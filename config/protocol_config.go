package config

import (
	"errors"
	"time"
)

// ProtocolConfig holds the device protocol tunables
type ProtocolConfig struct {
	MaxPiggybackCommands   int           // Commands returned per telemetry response
	DefaultCommandExpiry   time.Duration // Used when a command carries no expires_in
	MinCommandExpiry       time.Duration
	MaxCommandExpiry       time.Duration
	LowBatteryThreshold    int // Battery below this marks a device low_battery
	DefaultOTAMinBattery   int // Used when a firmware build sets no min_battery_level
	ReleaseChannel         string
	DefaultFirmwareVersion string // Assigned to newly paired devices
	Manufacturer           string // Device type catalog lookup key for pairing
	FallbackAPIKey         string // Platform-wide device secret; empty disables it
}

// DefaultProtocolConfig returns the protocol defaults
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		MaxPiggybackCommands:   5,
		DefaultCommandExpiry:   300 * time.Second,
		MinCommandExpiry:       60 * time.Second,
		MaxCommandExpiry:       86400 * time.Second,
		LowBatteryThreshold:    20,
		DefaultOTAMinBattery:   30,
		ReleaseChannel:         "stable",
		DefaultFirmwareVersion: "1.0.0",
		Manufacturer:           "Invepin",
	}
}

// Validate checks the tunables are coherent
func (c *ProtocolConfig) Validate() error {
	if c.MaxPiggybackCommands <= 0 {
		return errors.New("max piggyback commands must be positive")
	}
	if c.MinCommandExpiry <= 0 || c.MaxCommandExpiry < c.MinCommandExpiry {
		return errors.New("command expiry bounds are inconsistent")
	}
	if c.DefaultCommandExpiry < c.MinCommandExpiry || c.DefaultCommandExpiry > c.MaxCommandExpiry {
		return errors.New("default command expiry is outside the allowed bounds")
	}
	if c.ReleaseChannel == "" {
		return errors.New("release channel is required")
	}
	return nil
}

// CommandExpiry converts a requested expires_in (seconds) into a lifetime,
// clamped to the configured bounds. Nil selects the default.
func (c *ProtocolConfig) CommandExpiry(expiresIn *int) time.Duration {
	if expiresIn == nil {
		return c.DefaultCommandExpiry
	}
	// clamp in seconds so huge requests cannot overflow the Duration
	lower := int(c.MinCommandExpiry / time.Second)
	upper := int(c.MaxCommandExpiry / time.Second)
	return time.Duration(max(lower, min(*expiresIn, upper))) * time.Second
}

// OTAMinBattery returns the battery gate for a build.
func (c *ProtocolConfig) OTAMinBattery(buildMin *int) int {
	if buildMin == nil {
		return c.DefaultOTAMinBattery
	}
	return *buildMin
}

// IsLowBattery reports whether a reported battery level marks the device low_battery.
func (c *ProtocolConfig) IsLowBattery(battery *int) bool {
	return battery != nil && *battery < c.LowBatteryThreshold
}
