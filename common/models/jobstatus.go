package models

import (
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

/**
JobStatus is derived from a Job's counters, it is never stored
*/
type JobStatus string

const (
	JOB_PENDING   JobStatus = "Pending"
	JOB_RUNNING   JobStatus = "Running"
	JOB_SUCCEEDED JobStatus = "Succeeded"
	JOB_FAILED    JobStatus = "Failed"
	JOB_UNKNOWN   JobStatus = "Unknown"
)

/**
EventStatus is the vocabulary of the `status` field of a status_update event
*/
type EventStatus string

const (
	EVENT_STARTING  EventStatus = "Starting"
	EVENT_RUNNING   EventStatus = "Running"
	EVENT_PENDING   EventStatus = "Pending"
	EVENT_SUCCEEDED EventStatus = "Succeeded"
	EVENT_FAILED    EventStatus = "Failed"
	EVENT_STOPPING  EventStatus = "Stopping"
	EVENT_CANCELED  EventStatus = "Canceled"
	EVENT_ERROR     EventStatus = "Error"
	EVENT_IDLE      EventStatus = "Idle"
	EVENT_UNKNOWN   EventStatus = "Unknown"
)

/**
maps a pod phase string onto the event vocabulary. Anything we don't recognise becomes Unknown.
*/
func EventStatusForPhase(phase string) EventStatus {
	switch phase {
	case "Pending":
		return EVENT_PENDING
	case "Running":
		return EVENT_RUNNING
	case "Succeeded":
		return EVENT_SUCCEEDED
	case "Failed":
		return EVENT_FAILED
	default:
		return EVENT_UNKNOWN
	}
}

/**
derives the status of a job from its counters.
active beats succeeded beats failed; a job with a status block but no counters is Pending.
*/
func StatusForJob(job *batchv1.Job) JobStatus {
	if job == nil {
		return JOB_UNKNOWN
	}
	status := job.Status
	if isEmptyStatus(&status) {
		return JOB_UNKNOWN
	}
	if status.Active > 0 {
		return JOB_RUNNING
	}
	if status.Succeeded > 0 {
		return JOB_SUCCEEDED
	}
	if status.Failed > 0 {
		return JOB_FAILED
	}
	return JOB_PENDING
}

/**
the api server always fills in a status block once the job controller has seen the job;
a completely zero value is how "no status block" shows up on the Go side.
*/
func isEmptyStatus(status *batchv1.JobStatus) bool {
	return status.StartTime == nil &&
		status.CompletionTime == nil &&
		status.Active == 0 &&
		status.Succeeded == 0 &&
		status.Failed == 0 &&
		status.Ready == nil &&
		status.Terminating == nil &&
		len(status.Conditions) == 0 &&
		status.UncountedTerminatedPods == nil
}

func (s JobStatus) IsTerminal() bool {
	return s == JOB_SUCCEEDED || s == JOB_FAILED
}

/**
true if the job will make no further progress
*/
func IsJobFinished(job *batchv1.Job) bool {
	return StatusForJob(job).IsTerminal()
}

func IsJobTerminating(job *batchv1.Job) bool {
	return job != nil && job.DeletionTimestamp != nil
}

/**
JobSummary is the serialisable form of a Job that the api hands to the UI
*/
type JobSummary struct {
	Name           string     `json:"name"`
	Status         JobStatus  `json:"status"`
	StartTime      *time.Time `json:"startTime"`
	CompletionTime *time.Time `json:"completionTime"`
	IsTerminating  bool       `json:"isTerminating"`
}

func optionalTime(t *metav1.Time) *time.Time {
	if t == nil {
		return nil
	}
	rtn := t.Time.UTC()
	return &rtn
}

func SummaryForJob(job *batchv1.Job) JobSummary {
	return JobSummary{
		Name:           job.Name,
		Status:         StatusForJob(job),
		StartTime:      optionalTime(job.Status.StartTime),
		CompletionTime: optionalTime(job.Status.CompletionTime),
		IsTerminating:  IsJobTerminating(job),
	}
}
