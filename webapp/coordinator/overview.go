package coordinator

import (
	"context"
	"fmt"
	"log"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
)

const noPodLogs = "(no pod found for job)"

/**
Overview is the dashboard view of the namespace. The active fields are null when nothing is running;
ActiveJob falls back to the slot, e.g. for a job that has been created but not yet listed.
*/
type Overview struct {
	Namespace            string              `json:"namespace"`
	CronJobName          string              `json:"cronjobName"`
	ActiveJob            *string             `json:"activeJob"`
	ActiveJobStatus      *models.JobStatus   `json:"activeJobStatus"`
	ActiveJobTerminating *bool               `json:"activeJobTerminating"`
	Jobs                 []models.JobSummary `json:"jobs"`
}

type JobLogs struct {
	Job    string  `json:"job"`
	Pod    *string `json:"pod"`
	Status string  `json:"status"`
	Logs   string  `json:"logs"`
}

func (c *Coordinator) Overview(ctx context.Context) (*Overview, error) {
	snapshot, err := c.reconciler.Snapshot(ctx)
	if err != nil {
		log.Printf("ERROR Coordinator.Overview could not list jobs: %s", err)
		return nil, fmt.Errorf("could not list jobs: %w", err)
	}

	rtn := &Overview{
		Namespace:   c.gateway.Namespace(),
		CronJobName: c.policy.Template,
		Jobs:        make([]models.JobSummary, 0, len(snapshot.Jobs)),
	}
	for i := range snapshot.Jobs {
		rtn.Jobs = append(rtn.Jobs, models.SummaryForJob(&snapshot.Jobs[i]))
	}

	if snapshot.Active != nil {
		name := snapshot.Active.Name
		status := snapshot.Active.Status
		terminating := snapshot.Active.IsTerminating
		rtn.ActiveJob = &name
		rtn.ActiveJobStatus = &status
		rtn.ActiveJobTerminating = &terminating
		return rtn, nil
	}

	if _, repairErr := c.reconciler.RepairSlot(ctx, c.slot); repairErr != nil {
		log.Printf("ERROR Coordinator.Overview could not re-check remembered job: %s", repairErr)
		return nil, fmt.Errorf("could not re-check remembered job: %w", repairErr)
	}
	if remembered := c.slot.Get(); remembered != "" {
		rtn.ActiveJob = &remembered
	}
	return rtn, nil
}

/**
JobLogs reads the logs of the job's first pod. tailLines may be nil for the whole log.
*/
func (c *Coordinator) JobLogs(ctx context.Context, jobName string, tailLines *int64) (*JobLogs, error) {
	if !c.policy.IsManaged(jobName) {
		return nil, ErrUnknownJob
	}

	pods, listErr := c.gateway.ListPodsByLabel(ctx, cluster.JobPodSelector(jobName))
	if listErr != nil {
		log.Printf("ERROR Coordinator.JobLogs could not list pods for %s: %s", jobName, listErr)
		return nil, fmt.Errorf("could not list pods for %s: %w", jobName, listErr)
	}
	if len(pods) == 0 {
		return &JobLogs{Job: jobName, Logs: noPodLogs, Status: string(models.JOB_UNKNOWN)}, nil
	}

	pod := pods[0]
	status := string(pod.Status.Phase)
	if status == "" {
		status = string(models.JOB_UNKNOWN)
	}

	content, readErr := c.gateway.ReadPodLog(ctx, pod.Name, cluster.LogOptions{TailLines: tailLines, Timestamps: true})
	if readErr != nil {
		log.Printf("ERROR Coordinator.JobLogs could not read logs for %s: %s", pod.Name, readErr)
		return nil, fmt.Errorf("could not read logs for pod %s: %w", pod.Name, readErr)
	}

	podName := pod.Name
	return &JobLogs{Job: jobName, Pod: &podName, Status: status, Logs: content}, nil
}
