package models

import (
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestStatusForJob(t *testing.T) {
	startTime := metav1.NewTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		status   batchv1.JobStatus
		expected JobStatus
	}{
		{"no status block", batchv1.JobStatus{}, JOB_UNKNOWN},
		{"started but no counters", batchv1.JobStatus{StartTime: &startTime}, JOB_PENDING},
		{"active", batchv1.JobStatus{StartTime: &startTime, Active: 1}, JOB_RUNNING},
		{"active beats failed", batchv1.JobStatus{StartTime: &startTime, Active: 1, Failed: 2}, JOB_RUNNING},
		{"succeeded", batchv1.JobStatus{StartTime: &startTime, Succeeded: 1}, JOB_SUCCEEDED},
		{"succeeded beats failed", batchv1.JobStatus{StartTime: &startTime, Succeeded: 1, Failed: 1}, JOB_SUCCEEDED},
		{"failed", batchv1.JobStatus{StartTime: &startTime, Failed: 1}, JOB_FAILED},
	}

	for _, test := range tests {
		job := &batchv1.Job{Status: test.status}
		result := StatusForJob(job)
		if result != test.expected {
			t.Errorf("%s: expected %s got %s", test.name, test.expected, result)
		}
	}

	if StatusForJob(nil) != JOB_UNKNOWN {
		t.Error("a nil job should be Unknown")
	}
}

func TestIsJobFinished(t *testing.T) {
	if IsJobFinished(&batchv1.Job{Status: batchv1.JobStatus{Active: 1, Failed: 1}}) {
		t.Error("a job that is still active should not be finished")
	}
	if !IsJobFinished(&batchv1.Job{Status: batchv1.JobStatus{Failed: 1}}) {
		t.Error("a failed job should be finished")
	}
	if IsJobFinished(&batchv1.Job{}) {
		t.Error("a job with no status should not be finished")
	}
}

func TestSummaryForJob(t *testing.T) {
	startTime := metav1.NewTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	deletedAt := metav1.NewTime(time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC))

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "demo-1000", DeletionTimestamp: &deletedAt},
		Status:     batchv1.JobStatus{StartTime: &startTime, Active: 1},
	}

	summary := SummaryForJob(job)
	if summary.Name != "demo-1000" {
		t.Errorf("wrong name %s", summary.Name)
	}
	if summary.Status != JOB_RUNNING {
		t.Errorf("wrong status %s", summary.Status)
	}
	if summary.StartTime == nil || !summary.StartTime.Equal(startTime.Time) {
		t.Errorf("wrong start time %v", summary.StartTime)
	}
	if summary.CompletionTime != nil {
		t.Errorf("completion time should be nil, got %v", summary.CompletionTime)
	}
	if !summary.IsTerminating {
		t.Error("job with a deletion timestamp should be terminating")
	}
}

func TestEventStatusForPhase(t *testing.T) {
	if EventStatusForPhase("Running") != EVENT_RUNNING {
		t.Error("Running phase mapped incorrectly")
	}
	if EventStatusForPhase("Evicted") != EVENT_UNKNOWN {
		t.Error("unrecognised phase should map to Unknown")
	}
}
