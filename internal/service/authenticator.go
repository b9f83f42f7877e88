package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/cache"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/sirupsen/logrus"
)

// Authenticator validates device credentials. It has no side effects beyond
// warming the device cache.
type Authenticator struct {
	repo        repository.Repository
	devices     *cache.DeviceCache
	fallbackKey string
	log         *logrus.Logger
}

// NewAuthenticator creates a device authenticator. An empty fallbackKey
// disables the platform-wide secret.
func NewAuthenticator(repo repository.Repository, devices *cache.DeviceCache, fallbackKey string, log *logrus.Logger) *Authenticator {
	return &Authenticator{repo: repo, devices: devices, fallbackKey: fallbackKey, log: log}
}

// AuthenticateAPIKey runs the shared-secret scheme: the presented key must
// equal the device's metadata api_key or the platform fallback secret.
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, deviceID, presented string) (*models.Device, error) {
	device, err := a.lookupDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := a.VerifyAPIKey(ctx, device, presented); err != nil {
		return nil, err
	}
	return device, nil
}

// VerifyAPIKey checks a presented key against an already resolved device
func (a *Authenticator) VerifyAPIKey(ctx context.Context, device *models.Device, presented string) error {
	if presented == "" {
		return NewAuthenticationError("missing device API key")
	}
	if !keyMatches(device.APIKey(), presented) && !keyMatches(a.fallbackKey, presented) {
		a.log.WithField("device_id", device.DeviceID).Warn("Device API key mismatch")
		return NewAuthenticationError("invalid device API key")
	}
	return a.checkNotLocked(ctx, device)
}

// AuthenticateDeviceUUID runs the signed-identity scheme. Signature
// verification belongs to the caller; this enforces presence and lock state.
func (a *Authenticator) AuthenticateDeviceUUID(ctx context.Context, deviceUUID string) (*models.Device, error) {
	if deviceUUID == "" {
		return nil, NewAuthenticationError("missing device identity")
	}

	auth, err := a.repo.FindDeviceAuthByUUID(ctx, deviceUUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewAuthenticationError("unknown device identity")
		}
		return nil, NewInternalError("failed to resolve device identity", err)
	}
	if auth.IsLocked {
		a.log.WithField("device_uuid", deviceUUID).Warn("Rejected locked device")
		return nil, NewAuthenticationError("device is locked")
	}

	device, err := a.repo.FindDeviceByID(ctx, auth.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewAuthenticationError("unknown device identity")
		}
		return nil, NewInternalError("failed to resolve device", err)
	}
	return device, nil
}

// lookupDevice resolves a device by its human-readable id, read through the cache
func (a *Authenticator) lookupDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if device, ok := a.devices.Get(ctx, deviceID); ok {
		return device, nil
	}

	device, err := a.repo.FindDeviceByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("device")
		}
		return nil, NewInternalError("failed to load device", err)
	}
	a.devices.Set(ctx, device)
	return device, nil
}

// checkNotLocked enforces the kill switch. Lock state is never cached.
func (a *Authenticator) checkNotLocked(ctx context.Context, device *models.Device) error {
	auth, err := a.repo.FindDeviceAuthByDeviceID(ctx, device.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return NewInternalError("failed to load device credential", err)
	case auth.IsLocked:
		a.log.WithField("device_id", device.DeviceID).Warn("Rejected locked device")
		return NewAuthenticationError("device is locked")
	default:
		return nil
	}
}

func keyMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
