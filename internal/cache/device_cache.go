package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/sirupsen/logrus"
)

// DeviceCache is a read-through cache of device identity records keyed by
// device_id. Cache failures never fail the caller.
type DeviceCache struct {
	client RedisClient
	ttl    time.Duration
	log    *logrus.Logger
}

// NewDeviceCache wraps a Redis client
func NewDeviceCache(client RedisClient, ttl time.Duration, log *logrus.Logger) *DeviceCache {
	if client == nil {
		client = NewNoopClient()
	}
	return &DeviceCache{client: client, ttl: ttl, log: log}
}

func deviceKey(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

// Get returns the cached device, or false on a miss
func (c *DeviceCache) Get(ctx context.Context, deviceID string) (*models.Device, bool) {
	raw, err := c.client.Get(ctx, deviceKey(deviceID))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.WithError(err).WithField("device_id", deviceID).Warn("Device cache read failed")
		}
		return nil, false
	}

	var device models.Device
	if err := json.Unmarshal([]byte(raw), &device); err != nil {
		c.log.WithError(err).WithField("device_id", deviceID).Warn("Discarding undecodable cached device")
		_ = c.client.Delete(ctx, deviceKey(deviceID))
		return nil, false
	}
	return &device, true
}

// Set caches the device record
func (c *DeviceCache) Set(ctx context.Context, device *models.Device) {
	data, err := json.Marshal(device)
	if err != nil {
		c.log.WithError(err).Warn("Failed to encode device for cache")
		return
	}
	if err := c.client.Set(ctx, deviceKey(device.DeviceID), string(data), c.ttl); err != nil {
		c.log.WithError(err).WithField("device_id", device.DeviceID).Warn("Device cache write failed")
	}
}

// Invalidate drops the cached record
func (c *DeviceCache) Invalidate(ctx context.Context, deviceID string) {
	if err := c.client.Delete(ctx, deviceKey(deviceID)); err != nil {
		c.log.WithError(err).WithField("device_id", deviceID).Warn("Device cache invalidation failed")
	}
}
