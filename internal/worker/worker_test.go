package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMaintainer struct {
	mock.Mock
}

func (m *MockMaintainer) SweepOfflineDevices(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMaintainer) StaleOTAJobs(ctx context.Context, olderThan time.Duration) ([]*models.OTAUpdateJob, error) {
	args := m.Called(ctx, olderThan)
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*models.OTAUpdateJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func testConfig() config.WorkerConfig {
	return config.WorkerConfig{
		OfflineSweepInterval: time.Hour,
		OfflineAfter:         15 * time.Minute,
		StaleJobInterval:     time.Hour,
		StaleJobAfter:        2 * time.Hour,
	}
}

func TestSweepOffline_UsesConfiguredThreshold(t *testing.T) {
	svc := new(MockMaintainer)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	w := New(svc, testConfig(), logger)

	svc.On("SweepOfflineDevices", mock.Anything, 15*time.Minute).Return(int64(3), nil).Once()
	w.sweepOffline(context.Background())

	svc.AssertExpectations(t)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, int64(3), hook.LastEntry().Data["count"])
}

func TestSweepOffline_LogsFailure(t *testing.T) {
	svc := new(MockMaintainer)
	logger, hook := test.NewNullLogger()
	w := New(svc, testConfig(), logger)

	svc.On("SweepOfflineDevices", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))
	w.sweepOffline(context.Background())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestReportStaleJobs_WarnsPerJob(t *testing.T) {
	svc := new(MockMaintainer)
	logger, hook := test.NewNullLogger()
	w := New(svc, testConfig(), logger)

	jobs := []*models.OTAUpdateJob{
		{Model: models.Model{ID: 1}, DeviceID: 10, Status: models.OTAJobDownloading},
		{Model: models.Model{ID: 2}, DeviceID: 11, Status: models.OTAJobPending},
	}
	svc.On("StaleOTAJobs", mock.Anything, 2*time.Hour).Return(jobs, nil)
	w.reportStaleJobs(context.Background())

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	for i, entry := range entries {
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, jobs[i].ID, entry.Data["job_id"])
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	svc := new(MockMaintainer)
	logger, _ := test.NewNullLogger()
	w := New(svc, testConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_RejectsInvalidInterval(t *testing.T) {
	cfg := testConfig()
	cfg.OfflineSweepInterval = 0
	logger, _ := test.NewNullLogger()

	err := New(new(MockMaintainer), cfg, logger).Run(context.Background())
	assert.Error(t, err)
}
