package coordinator

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning  = errors.New("a job is already running")
	ErrNothingToCancel = errors.New("no active job to cancel")
	ErrUnknownJob      = errors.New("not a job managed by this panel")
	ErrPodTimeout      = errors.New("timed out waiting for the job's pod")
	ErrPodFailed       = errors.New("the job's pod failed")
	ErrSlotTaken       = errors.New("another job took the slot while this one was being created")
)

/**
ConfigurationError means the cronjob template cannot be turned into a job; retrying won't help
*/
type ConfigurationError struct {
	CronJobName string
	Reason      string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cronjob %s: %s", e.CronJobName, e.Reason)
}
