package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingest(deviceID string, dataType models.TelemetryDataType, payload string) IngestRequest {
	return IngestRequest{
		DeviceID: deviceID,
		DataType: dataType,
		Payload:  json.RawMessage(payload),
		APIKey:   deviceID + "-key",
	}
}

func TestIngestTelemetry_StoresSampleAndRefreshesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1000")

	result, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1000", models.DataTypeSensor, `{"battery":87,"rssi":-61,"temperature":21.5}`))
	require.NoError(t, err)
	assert.NotZero(t, result.SampleID)
	assert.Equal(t, models.DeviceStatusOnline, result.Status)
	assert.Empty(t, result.Commands)
	assert.NotNil(t, result.Commands, "commands is always a list")

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-1000")
	require.NoError(t, err)
	require.NotNil(t, device.BatteryLevel)
	assert.Equal(t, 87, *device.BatteryLevel)
	require.NotNil(t, device.SignalStrength)
	assert.Equal(t, -61, *device.SignalStrength)
	assert.NotNil(t, device.LastSeen)
	assert.Nil(t, device.LocationLat)
}

func TestIngestTelemetry_LowBattery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1001")

	result, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1001", models.DataTypeStatus, `{"battery":15}`))
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusLowBattery, result.Status)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-1001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusLowBattery, device.Status)

	result, err = f.svc.IngestTelemetry(ctx, ingest("TAG-1001", models.DataTypeStatus, `{"battery":20}`))
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, result.Status)
}

func TestIngestTelemetry_RecordsLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1002")

	reportedAt := time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC)
	req := ingest("TAG-1002", models.DataTypeLocation, `{"gps":{"lat":-1.2921,"lng":36.8219,"accuracy":4.5}}`)
	req.Timestamp = &reportedAt

	_, err := f.svc.IngestTelemetry(ctx, req)
	require.NoError(t, err)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-1002")
	require.NoError(t, err)
	require.NotNil(t, device.LocationLat)
	assert.InDelta(t, -1.2921, *device.LocationLat, 1e-9)
	assert.InDelta(t, 36.8219, *device.LocationLng, 1e-9)
	require.NotNil(t, device.LocationAt)
	assert.True(t, reportedAt.Equal(*device.LocationAt))
}

func TestIngestTelemetry_Validation(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "TAG-1003")

	tests := []struct {
		name       string
		dataType   models.TelemetryDataType
		payload    string
		field      string
		constraint string
	}{
		{"battery above range", models.DataTypeSensor, `{"battery":101}`, "payload.battery", "max=100"},
		{"rssi above zero", models.DataTypeHeartbeat, `{"rssi":5}`, "payload.rssi", "max=0"},
		{"latitude out of range", models.DataTypeLocation, `{"gps":{"lat":91,"lng":0}}`, "payload.gps.lat", "max=90"},
		{"location without gps", models.DataTypeLocation, `{"battery":50}`, "payload.gps", "required"},
		{"battery as string", models.DataTypeSensor, `{"battery":"full"}`, "payload.battery", "type"},
		{"unknown data type", "vibration", `{}`, "data_type", "oneof=sensor location status heartbeat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IngestTelemetry(context.Background(), ingest("TAG-1003", tt.dataType, tt.payload))
			svcErr := requireKind(t, err, KindValidation)
			require.Len(t, svcErr.Fields, 1)
			assert.Equal(t, tt.field, svcErr.Fields[0].Field)
			assert.Equal(t, tt.constraint, svcErr.Fields[0].Constraint)
		})
	}
}

func TestIngestTelemetry_Authentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1004")

	req := ingest("TAG-1004", models.DataTypeHeartbeat, `{}`)
	req.APIKey = "wrong"
	_, err := f.svc.IngestTelemetry(ctx, req)
	requireKind(t, err, KindAuthentication)

	req.APIKey = ""
	_, err = f.svc.IngestTelemetry(ctx, req)
	requireKind(t, err, KindAuthentication)

	_, err = f.svc.IngestTelemetry(ctx, ingest("TAG-UNKNOWN", models.DataTypeHeartbeat, `{}`))
	requireKind(t, err, KindNotFound)
}

func TestIngestTelemetry_FallbackKey(t *testing.T) {
	f := newFixture(t)
	f.pair(t, "TAG-1005")
	f.svc.auth.fallbackKey = "platform-secret"

	req := ingest("TAG-1005", models.DataTypeHeartbeat, `{}`)
	req.APIKey = "platform-secret"
	_, err := f.svc.IngestTelemetry(context.Background(), req)
	require.NoError(t, err)
}

func TestIngestTelemetry_RejectsLockedDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-1006")

	_, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1006", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)

	require.NoError(t, f.svc.SetDeviceLock(ctx, paired.DeviceUUID, true, "reported stolen"))
	_, err = f.svc.IngestTelemetry(ctx, ingest("TAG-1006", models.DataTypeHeartbeat, `{}`))
	requireKind(t, err, KindAuthentication)

	require.NoError(t, f.svc.SetDeviceLock(ctx, paired.DeviceUUID, false, ""))
	_, err = f.svc.IngestTelemetry(ctx, ingest("TAG-1006", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)
}

func TestIngestTelemetry_PiggybacksCommandsByPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1007")

	issue := func(priority int, expiresIn *int) *models.Command {
		cmd, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{
			DeviceID:    "TAG-1007",
			CommandType: models.CommandLocate,
			Priority:    intPtr(priority),
			ExpiresIn:   expiresIn,
		})
		require.NoError(t, err)
		return cmd
	}

	c1 := issue(5, nil)
	c2 := issue(9, nil)
	c3 := issue(5, nil)
	issue(10, intPtr(60)) // expires before the report

	f.clock.Advance(2 * time.Minute)

	result, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1007", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)
	require.Len(t, result.Commands, 3)
	assert.Equal(t, c2.ID, result.Commands[0].ID)
	assert.Equal(t, c1.ID, result.Commands[1].ID)
	assert.Equal(t, c3.ID, result.Commands[2].ID)

	// delivery does not change status; commands stay pending until acknowledged
	again, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1007", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)
	assert.Len(t, again.Commands, 3)
	for _, cmd := range again.Commands {
		assert.Equal(t, models.CommandPending, cmd.Status)
	}
}

func TestIngestTelemetry_CapsPiggybackedCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1008")

	for i := 0; i < 7; i++ {
		_, err := f.svc.IssueCommand(ctx, owner(), IssueCommandRequest{
			DeviceID:    "TAG-1008",
			CommandType: models.CommandIdentify,
		})
		require.NoError(t, err)
	}

	result, err := f.svc.IngestTelemetry(ctx, ingest("TAG-1008", models.DataTypeHeartbeat, `{}`))
	require.NoError(t, err)
	assert.Len(t, result.Commands, 5)
}

// commandOutageRepo stores telemetry but cannot read the command queue
type commandOutageRepo struct {
	repository.Repository
	samples []*models.TelemetrySample
}

func (r *commandOutageRepo) CreateTelemetrySample(ctx context.Context, sample *models.TelemetrySample) error {
	if err := r.Repository.CreateTelemetrySample(ctx, sample); err != nil {
		return err
	}
	r.samples = append(r.samples, sample)
	return nil
}

func (r *commandOutageRepo) ListDeliverableCommands(context.Context, uint, time.Time, int) ([]*models.Command, error) {
	return nil, errors.New("connection reset")
}

func TestIngestTelemetry_CommandLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pair(t, "TAG-1090")

	repo := &commandOutageRepo{Repository: f.repo}
	logger, hook := test.NewNullLogger()
	svc, err := NewService(ServiceConfig{
		Repository: repo,
		Logger:     logger,
		Protocol:   config.DefaultProtocolConfig(),
		CacheTTL:   time.Minute,
		Clock:      f.clock.Now,
	})
	require.NoError(t, err)

	result, err := svc.IngestTelemetry(ctx, ingest("TAG-1090", models.DataTypeStatus, `{"battery":70}`))
	requireKind(t, err, KindInternal)
	assert.Nil(t, result)

	// the sample and status refresh are kept
	require.Len(t, repo.samples, 1)
	assert.NotZero(t, repo.samples[0].ID)
	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-1090")
	require.NoError(t, err)
	require.NotNil(t, device.BatteryLevel)
	assert.Equal(t, 70, *device.BatteryLevel)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Failed to load pending commands", hook.LastEntry().Message)
}
