package service

import (
	"context"
	"sync"
	"testing"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/signing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) publish(t *testing.T, version string, minBattery *int) *models.FirmwareVersion {
	t.Helper()
	firmware, err := f.svc.PublishFirmware(context.Background(), PublishFirmwareRequest{
		DeviceType:      models.CategoryTag,
		Version:         version,
		FileURL:         "https://firmware.example.test/tag/" + version + ".bin",
		Signature:       &signing.FileSignature{Hash: "deadbeef", SizeBytes: 1024, Signature: "c2ln"},
		MinBatteryLevel: minBattery,
	})
	require.NoError(t, err)
	return firmware
}

func TestPublishFirmware_AssignsBuildNumbers(t *testing.T) {
	f := newFixture(t)

	first := f.publish(t, "1.1.0", nil)
	second := f.publish(t, "1.2.0", nil)
	assert.Equal(t, 1, first.BuildNumber)
	assert.Equal(t, 2, second.BuildNumber)
	assert.Equal(t, models.ReleaseChannelStable, second.ReleaseChannel)

	_, err := f.svc.PublishFirmware(context.Background(), PublishFirmwareRequest{DeviceType: models.CategoryTag})
	requireKind(t, err, KindValidation)
}

func TestCheckForUpdate_NoCatalog(t *testing.T) {
	f := newFixture(t)
	paired := f.pair(t, "TAG-3000")

	result, err := f.svc.CheckForUpdate(context.Background(), UpdateCheckRequest{
		DeviceUUID:     paired.DeviceUUID,
		CurrentVersion: "1.0.0",
		BatteryLevel:   90,
	})
	require.NoError(t, err)
	assert.False(t, result.UpdateAvailable)
}

func TestCheckForUpdate_UpToDate(t *testing.T) {
	f := newFixture(t)
	paired := f.pair(t, "TAG-3001")
	f.publish(t, "1.1.0", nil)
	f.publish(t, "1.2.0", nil)

	result, err := f.svc.CheckForUpdate(context.Background(), UpdateCheckRequest{
		DeviceUUID:     paired.DeviceUUID,
		CurrentVersion: "1.2.0",
		BatteryLevel:   90,
	})
	require.NoError(t, err)
	assert.False(t, result.UpdateAvailable)
	assert.Nil(t, result.Job)
}

func TestCheckForUpdate_BatteryGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3002")
	firmware := f.publish(t, "1.1.0", intPtr(50))

	result, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{
		DeviceUUID:     paired.DeviceUUID,
		CurrentVersion: "1.0.0",
		BatteryLevel:   40,
	})
	require.NoError(t, err)
	assert.True(t, result.UpdateAvailable)
	assert.True(t, result.UpdateBlocked)
	assert.Equal(t, BlockReasonLowBattery, result.Reason)
	assert.Equal(t, 50, result.RequiredBattery)
	assert.Equal(t, 40, result.CurrentBattery)
	assert.Nil(t, result.Job)

	_, err = f.repo.FindActiveOTAJob(ctx, paired.Device.ID, firmware.ID)
	assert.Error(t, err, "no job is created while blocked")
}

func TestCheckForUpdate_DefaultBatteryGate(t *testing.T) {
	f := newFixture(t)
	paired := f.pair(t, "TAG-3003")
	f.publish(t, "1.1.0", nil)

	result, err := f.svc.CheckForUpdate(context.Background(), UpdateCheckRequest{
		DeviceUUID:     paired.DeviceUUID,
		CurrentVersion: "1.0.0",
		BatteryLevel:   29,
	})
	require.NoError(t, err)
	assert.True(t, result.UpdateBlocked)
	assert.Equal(t, 30, result.RequiredBattery)
}

func TestCheckForUpdate_CreatesSingleJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3004")
	firmware := f.publish(t, "1.1.0", nil)

	req := UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80}

	first, err := f.svc.CheckForUpdate(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.UpdateAvailable)
	assert.False(t, first.UpdateBlocked)
	require.NotNil(t, first.Job)
	assert.True(t, first.JobCreated)
	assert.Equal(t, models.OTAJobPending, first.Job.Status)
	assert.Equal(t, firmware.ID, first.Job.FirmwareVersionID)

	second, err := f.svc.CheckForUpdate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, second.Job)
	assert.False(t, second.JobCreated)
	assert.Equal(t, first.Job.ID, second.Job.ID)
}

func TestCheckForUpdate_ConcurrentChecksCreateOneJob(t *testing.T) {
	f := newFixture(t)
	paired := f.pair(t, "TAG-3005")
	f.publish(t, "1.1.0", nil)

	const callers = 8
	req := UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80}

	var wg sync.WaitGroup
	results := make([]*UpdateCheckResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CheckForUpdate(context.Background(), req)
		}(i)
	}
	wg.Wait()

	created := 0
	jobIDs := map[uint]bool{}
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Job)
		jobIDs[results[i].Job.ID] = true
		if results[i].JobCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, jobIDs, 1)
}

func TestCheckForUpdate_CarriesRequiresBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3011")

	published, err := f.svc.PublishFirmware(ctx, PublishFirmwareRequest{
		DeviceType:     models.CategoryTag,
		Version:        "2.0.0",
		FileURL:        "https://firmware.example.test/tag/2.0.0.bin",
		Signature:      &signing.FileSignature{Hash: "deadbeef", SizeBytes: 2048, Signature: "c2ln"},
		RequiresBackup: true,
	})
	require.NoError(t, err)
	assert.True(t, published.RequiresBackup)

	result, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 90})
	require.NoError(t, err)
	require.True(t, result.UpdateAvailable)
	assert.True(t, result.Firmware.RequiresBackup)

	// builds default to no backup
	plain := f.publish(t, "2.1.0", nil)
	assert.False(t, plain.RequiresBackup)
}

func TestCheckForUpdate_Authentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3006")
	f.publish(t, "1.1.0", nil)

	_, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: "unknown", CurrentVersion: "1.0.0", BatteryLevel: 80})
	requireKind(t, err, KindAuthentication)

	_, err = f.svc.CheckForUpdate(ctx, UpdateCheckRequest{CurrentVersion: "1.0.0", BatteryLevel: 80})
	requireKind(t, err, KindAuthentication)

	req := UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80}
	result, err := f.svc.CheckForUpdate(ctx, req)
	require.NoError(t, err, "unlocked credential is accepted")
	assert.True(t, result.UpdateAvailable)

	require.NoError(t, f.svc.SetDeviceLock(ctx, paired.DeviceUUID, true, "tamper"))
	_, err = f.svc.CheckForUpdate(ctx, req)
	requireKind(t, err, KindAuthentication)

	require.NoError(t, f.svc.SetDeviceLock(ctx, paired.DeviceUUID, false, ""))
	_, err = f.svc.CheckForUpdate(ctx, req)
	require.NoError(t, err)
}

func TestAuthenticateDeviceUUID_ResolvesPairedDevice(t *testing.T) {
	f := newFixture(t)
	paired := f.pair(t, "TAG-3010")

	device, err := f.svc.Authenticator().AuthenticateDeviceUUID(context.Background(), paired.DeviceUUID)
	require.NoError(t, err)
	assert.Equal(t, paired.Device.ID, device.ID)
	assert.Equal(t, "TAG-3010", device.DeviceID)
	require.NotNil(t, device.DeviceType)
	assert.Equal(t, models.CategoryTag, device.DeviceType.Category)
}

func TestReportOTAProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3007")
	f.publish(t, "1.1.0", nil)

	check, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80})
	require.NoError(t, err)
	jobID := check.Job.ID

	report := func(status models.OTAJobStatus) (*models.OTAUpdateJob, error) {
		return f.svc.ReportOTAProgress(ctx, OTAProgressRequest{DeviceUUID: paired.DeviceUUID, JobID: jobID, Status: status})
	}

	_, err = report(models.OTAJobApplied)
	requireKind(t, err, KindConflict)

	job, err := report(models.OTAJobDownloading)
	require.NoError(t, err)
	assert.NotNil(t, job.StartedAt)

	_, err = report(models.OTAJobVerifying)
	require.NoError(t, err)

	job, err = report(models.OTAJobApplied)
	require.NoError(t, err)
	assert.NotNil(t, job.CompletedAt)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-3007")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", device.FirmwareVersion)

	// a terminal job frees the pair for a fresh attempt
	again, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80})
	require.NoError(t, err)
	assert.True(t, again.JobCreated)
	assert.NotEqual(t, jobID, again.Job.ID)
}

func TestReportOTAProgress_Failure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paired := f.pair(t, "TAG-3008")
	f.publish(t, "1.1.0", nil)

	check, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: paired.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80})
	require.NoError(t, err)

	job, err := f.svc.ReportOTAProgress(ctx, OTAProgressRequest{
		DeviceUUID:   paired.DeviceUUID,
		JobID:        check.Job.ID,
		Status:       models.OTAJobFailed,
		ErrorMessage: "checksum mismatch",
	})
	require.NoError(t, err)
	assert.Equal(t, "checksum mismatch", job.ErrorMessage)

	device, err := f.repo.FindDeviceByDeviceID(ctx, "TAG-3008")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", device.FirmwareVersion)
}

func TestReportOTAProgress_ForeignJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.pair(t, "TAG-3009")
	intruder := f.pair(t, "TAG-3010")
	f.publish(t, "1.1.0", nil)

	check, err := f.svc.CheckForUpdate(ctx, UpdateCheckRequest{DeviceUUID: target.DeviceUUID, CurrentVersion: "1.0.0", BatteryLevel: 80})
	require.NoError(t, err)

	_, err = f.svc.ReportOTAProgress(ctx, OTAProgressRequest{
		DeviceUUID: intruder.DeviceUUID,
		JobID:      check.Job.ID,
		Status:     models.OTAJobDownloading,
	})
	requireKind(t, err, KindNotFound)
}
