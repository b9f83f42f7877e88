package worker

import (
	"context"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Maintainer is the slice of the fleet service the scheduled jobs drive
type Maintainer interface {
	SweepOfflineDevices(ctx context.Context, olderThan time.Duration) (int64, error)
	StaleOTAJobs(ctx context.Context, olderThan time.Duration) ([]*models.OTAUpdateJob, error)
}

// Worker runs the periodic fleet maintenance jobs
type Worker struct {
	svc Maintainer
	cfg config.WorkerConfig
	log *logrus.Logger
}

// New creates a worker
func New(svc Maintainer, cfg config.WorkerConfig, log *logrus.Logger) *Worker {
	return &Worker{svc: svc, cfg: cfg, log: log}
}

// Run schedules the jobs and blocks until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.cfg.OfflineSweepInterval),
		gocron.NewTask(func() { w.sweepOffline(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("offline-sweep"),
	)
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.cfg.StaleJobInterval),
		gocron.NewTask(func() { w.reportStaleJobs(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("stale-ota-jobs"),
	)
	if err != nil {
		return err
	}

	w.log.WithFields(logrus.Fields{
		"offline_sweep_interval": w.cfg.OfflineSweepInterval.String(),
		"stale_job_interval":     w.cfg.StaleJobInterval.String(),
	}).Info("Starting maintenance scheduler")
	scheduler.Start()

	<-ctx.Done()

	w.log.Info("Stopping maintenance scheduler")
	return scheduler.Shutdown()
}

func (w *Worker) sweepOffline(ctx context.Context) {
	count, err := w.svc.SweepOfflineDevices(ctx, w.cfg.OfflineAfter)
	if err != nil {
		w.log.WithError(err).Error("Offline sweep failed")
		return
	}
	w.log.WithField("count", count).Debug("Offline sweep finished")
}

// reportStaleJobs only logs; a stuck job is released by the device reporting failure
func (w *Worker) reportStaleJobs(ctx context.Context) {
	jobs, err := w.svc.StaleOTAJobs(ctx, w.cfg.StaleJobAfter)
	if err != nil {
		w.log.WithError(err).Error("Stale update job scan failed")
		return
	}
	for _, job := range jobs {
		w.log.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"device_id":  job.DeviceID,
			"status":     job.Status,
			"updated_at": job.UpdatedAt,
		}).Warn("Update job has not progressed")
	}
}
