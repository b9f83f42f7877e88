package service

import (
	"context"
	"testing"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairDevice_CreatesDeviceAndCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.PairDevice(ctx, owner(), PairRequest{
		DeviceID:   "TAG-0001",
		DeviceType: models.CategoryTag,
		Name:       strPtr("Pallet tracker"),
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotEmpty(t, result.DeviceUUID)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-0001")
	require.NoError(t, err)
	assert.Equal(t, "Pallet tracker", device.Name)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.Equal(t, "1.0.0", device.FirmwareVersion)
	require.NotNil(t, device.OrganizationID)
	assert.Equal(t, testOrg, *device.OrganizationID)
	require.NotNil(t, device.PairedBy)
	assert.Equal(t, testOperator, *device.PairedBy)
	assert.NotEmpty(t, device.APIKey(), "pairing generates an api_key")
	require.NotNil(t, device.DeviceType)
	assert.Equal(t, models.CategoryTag, device.DeviceType.Category)

	auth, err := f.repo.FindDeviceAuthByUUID(ctx, result.DeviceUUID)
	require.NoError(t, err)
	assert.Equal(t, device.ID, auth.DeviceID)

	assert.Contains(t, f.publisher.published(), messaging.EventDevicePaired)
}

func TestPairDevice_IsIdempotentWithinOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PairDevice(ctx, owner(), PairRequest{
		DeviceID:   "TAG-0002",
		DeviceType: models.CategoryTag,
		Name:       strPtr("first"),
		Metadata:   map[string]interface{}{models.MetadataAPIKey: "secret"},
	})
	require.NoError(t, err)

	second, err := f.svc.PairDevice(ctx, owner(), PairRequest{
		DeviceID:     "TAG-0002",
		DeviceType:   models.CategoryGateway,
		Name:         strPtr("second"),
		SerialNumber: strPtr("SN-9"),
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Device.ID, second.Device.ID)
	assert.Equal(t, first.DeviceUUID, second.DeviceUUID)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-0002")
	require.NoError(t, err)
	assert.Equal(t, "second", device.Name)
	require.NotNil(t, device.SerialNumber)
	assert.Equal(t, "SN-9", *device.SerialNumber)
	assert.Equal(t, models.CategoryGateway, device.DeviceType.Category)
	assert.Equal(t, "secret", device.APIKey(), "existing api_key survives re-pairing")
}

func TestPairDevice_RejectsForeignOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-0003")

	before, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-0003")
	require.NoError(t, err)

	_, err = f.svc.PairDevice(ctx, Operator{UserID: "user-other", OrganizationID: otherOrg}, PairRequest{
		DeviceID:   "TAG-0003",
		DeviceType: models.CategoryTag,
		Name:       strPtr("stolen"),
	})
	requireKind(t, err, KindConflict)

	after, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-0003")
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, *before.OrganizationID, *after.OrganizationID)
}

func TestPairDevice_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PairDevice(context.Background(), owner(), PairRequest{DeviceType: "  "})
	svcErr := requireKind(t, err, KindValidation)

	fields := map[string]string{}
	for _, fe := range svcErr.Fields {
		fields[fe.Field] = fe.Constraint
	}
	assert.Equal(t, "required", fields["device_id"])
	assert.Equal(t, "required", fields["device_type"])
}

func TestPairDevice_UnknownDeviceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PairDevice(ctx, owner(), PairRequest{DeviceID: "SNS-0001", DeviceType: "sensor"})
	requireKind(t, err, KindNotFound)

	_, err = f.repo.FindDeviceByDeviceID(ctx, "SNS-0001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPairDevice_RequiresOperatingRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PairDevice(ctx, Operator{UserID: "user-viewer", OrganizationID: testOrg}, PairRequest{
		DeviceID:   "TAG-0004",
		DeviceType: models.CategoryTag,
	})
	requireKind(t, err, KindAuthorization)

	_, err = f.svc.PairDevice(ctx, Operator{UserID: "stranger", OrganizationID: testOrg}, PairRequest{
		DeviceID:   "TAG-0004",
		DeviceType: models.CategoryTag,
	})
	requireKind(t, err, KindAuthorization)
}

func TestPairDevice_UnknownManufacturer(t *testing.T) {
	f := newFixture(t)
	f.svc.protocol.Manufacturer = "Nobody"

	_, err := f.svc.PairDevice(context.Background(), owner(), PairRequest{
		DeviceID:   "TAG-0005",
		DeviceType: models.CategoryTag,
	})
	requireKind(t, err, KindNotFound)
}

func TestUnpairDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-0006")

	err := f.svc.UnpairDevice(ctx, Operator{UserID: "user-manager", OrganizationID: testOrg}, "TAG-0006")
	requireKind(t, err, KindAuthorization)

	require.NoError(t, f.svc.UnpairDevice(ctx, owner(), "TAG-0006"))

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-0006")
	require.NoError(t, err, "unpairing keeps the row")
	assert.Nil(t, device.OrganizationID)

	err = f.svc.UnpairDevice(ctx, owner(), "TAG-0006")
	requireKind(t, err, KindConflict)

	// an unowned device can be claimed by another organization
	_, err = f.svc.PairDevice(ctx, Operator{UserID: "user-other", OrganizationID: otherOrg}, PairRequest{
		DeviceID:   "TAG-0006",
		DeviceType: models.CategoryTag,
	})
	require.NoError(t, err)
}

func strPtr(s string) *string {
	return &s
}
