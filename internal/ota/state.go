// Package ota holds the OTA update job state machine.
//
//	pending -> downloading -> verifying -> applied -> rolled_back
//	pending | downloading | verifying -> failed
package ota

import (
	"errors"
	"fmt"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
)

// ErrInvalidTransition is returned for a stage change the machine does not allow.
var ErrInvalidTransition = errors.New("invalid OTA job transition")

var transitions = map[models.OTAJobStatus][]models.OTAJobStatus{
	models.OTAJobPending:     {models.OTAJobDownloading, models.OTAJobFailed},
	models.OTAJobDownloading: {models.OTAJobVerifying, models.OTAJobFailed},
	models.OTAJobVerifying:   {models.OTAJobApplied, models.OTAJobFailed},
	models.OTAJobApplied:     {models.OTAJobRolledBack},
}

// CanTransition reports whether a job may move from one stage to another.
func CanTransition(from, to models.OTAJobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further stage is reachable from s.
func IsTerminal(s models.OTAJobStatus) bool {
	return len(transitions[s]) == 0
}

// Advance moves the job to the next stage and stamps its timestamps. The job
// is left untouched when the transition is not allowed.
func Advance(job *models.OTAUpdateJob, to models.OTAJobStatus, at time.Time, errorMessage string) error {
	from := job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	job.Status = to
	switch to {
	case models.OTAJobDownloading:
		job.StartedAt = &at
	case models.OTAJobApplied, models.OTAJobRolledBack:
		job.CompletedAt = &at
	case models.OTAJobFailed:
		job.CompletedAt = &at
		job.ErrorMessage = errorMessage
	}
	if to == models.OTAJobRolledBack && errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	return nil
}
