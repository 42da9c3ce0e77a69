package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/jobslot"
	"github.com/guardian/jobpanel/webapp/metrics"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

/**
StartJob creates a new job from the cronjob template unless one is already active, then waits
for its pod and starts the log stream once it is running.
Every outcome is reported to clients as a status event; the returned error is for the caller's logging.
*/
func (c *Coordinator) StartJob(ctx context.Context) error {
	active, findErr := c.reconciler.FindActiveManagedJob(ctx)
	if findErr != nil {
		log.Printf("ERROR Coordinator.StartJob could not check for active jobs: %s", findErr)
		c.emitStatus(fmt.Sprintf("API error while checking for active jobs: %s", findErr), models.EVENT_ERROR)
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_API_ERROR).Inc()
		return fmt.Errorf("could not check for active jobs: %w", findErr)
	}
	if active != nil {
		c.slot.Adopt(active.Name)
		if active.IsTerminating {
			c.emitStatus(fmt.Sprintf("Job %s is still terminating. Please wait.", active.Name), models.EVENT_STOPPING)
		} else {
			c.emitStatus(fmt.Sprintf("Job %s is already running.", active.Name), models.EventStatus(active.Status))
		}
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_BLOCKED).Inc()
		return ErrAlreadyRunning
	}

	remembered, repairErr := c.reconciler.RepairSlot(ctx, c.slot)
	if repairErr != nil {
		log.Printf("ERROR Coordinator.StartJob could not re-check job %s: %s", c.slot.Get(), repairErr)
		c.emitStatus(fmt.Sprintf("API error while checking job %s: %s", c.slot.Get(), repairErr), models.EVENT_ERROR)
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_API_ERROR).Inc()
		return fmt.Errorf("could not re-check remembered job: %w", repairErr)
	}
	if remembered != nil {
		c.emitStatus(fmt.Sprintf("Job %s is already running.", remembered.Name), models.EventStatus(remembered.Status))
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_BLOCKED).Inc()
		return ErrAlreadyRunning
	}

	jobName := c.policy.DeriveName()
	reserved, current := c.slot.TryReserve(jobName)
	if !reserved {
		log.Printf("INFO Coordinator.StartJob lost the race to %s", current)
		c.emitStatus(fmt.Sprintf("Job %s is already running.", current), models.EVENT_RUNNING)
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_BLOCKED).Inc()
		return ErrAlreadyRunning
	}

	if createErr := c.createFromTemplate(ctx, jobName); createErr != nil {
		c.slot.ReleaseIf(jobName)
		return createErr
	}
	metrics.JobStarts.WithLabelValues(metrics.OUTCOME_CREATED).Inc()

	switch c.slot.MarkCreated(jobName) {
	case jobslot.RESERVATION_CANCELLED:
		log.Printf("INFO Coordinator.StartJob %s was canceled while it was being created, deleting it", jobName)
		return c.deleteAndConfirm(ctx, jobName)
	case jobslot.RESERVATION_LOST:
		log.Printf("WARNING Coordinator.StartJob slot moved on to %s while %s was being created, removing %s", c.slot.Get(), jobName, jobName)
		c.removeOrphan(ctx, jobName)
		return ErrSlotTaken
	}

	c.emitStatus(fmt.Sprintf("Job %s is starting...", jobName), models.EVENT_STARTING)
	return c.waitForPod(ctx, jobName)
}

/**
deletes a job we created but no longer track, so that it cannot run unseen
*/
func (c *Coordinator) removeOrphan(ctx context.Context, jobName string) {
	deleteErr := c.gateway.DeleteJob(ctx, jobName, metav1.DeletePropagationForeground)
	if deleteErr != nil && !errors.Is(deleteErr, cluster.ErrNotFound) {
		log.Printf("ERROR Coordinator.StartJob could not remove untracked job %s: %s", jobName, deleteErr)
		c.emitStatus(fmt.Sprintf("Job %s was created but is not tracked, and could not be removed: %s", jobName, deleteErr), models.EVENT_ERROR)
	}
}

func (c *Coordinator) createFromTemplate(ctx context.Context, jobName string) error {
	cronJob, readErr := c.gateway.ReadCronJob(ctx, c.policy.Template)
	if readErr != nil {
		log.Printf("ERROR Coordinator.StartJob could not read cronjob %s: %s", c.policy.Template, readErr)
		c.emitStatus(fmt.Sprintf("API error reading CronJob %s: %s", c.policy.Template, readErr), models.EVENT_ERROR)
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_API_ERROR).Inc()
		return fmt.Errorf("could not read cronjob %s: %w", c.policy.Template, readErr)
	}

	job, buildErr := BuildJobFromCronJob(jobName, cronJob)
	if buildErr != nil {
		log.Printf("ERROR Coordinator.StartJob could not build job %s: %s", jobName, buildErr)
		var configErr *ConfigurationError
		if errors.As(buildErr, &configErr) {
			c.emitStatus(fmt.Sprintf("CronJob %s has no job template spec, cannot create a job.", c.policy.Template), models.EVENT_ERROR)
			metrics.JobStarts.WithLabelValues(metrics.OUTCOME_CONFIG_ERROR).Inc()
		} else {
			c.emitStatus(fmt.Sprintf("Could not build job %s: %s", jobName, buildErr), models.EVENT_ERROR)
			metrics.JobStarts.WithLabelValues(metrics.OUTCOME_API_ERROR).Inc()
		}
		return buildErr
	}

	if _, createErr := c.gateway.CreateJob(ctx, job); createErr != nil {
		log.Printf("ERROR Coordinator.StartJob could not create job %s: %s", jobName, createErr)
		c.emitStatus(fmt.Sprintf("API error creating job %s: %s", jobName, createErr), models.EVENT_ERROR)
		metrics.JobStarts.WithLabelValues(metrics.OUTCOME_API_ERROR).Inc()
		return fmt.Errorf("could not create job %s: %w", jobName, createErr)
	}
	log.Printf("INFO Coordinator.StartJob created job %s in %s", jobName, c.gateway.Namespace())
	return nil
}

/**
polls for the job's pod until it is running, fails, or the start timeout expires.
Gives up silently if the slot stops naming this job, since that means it was cancelled.
*/
func (c *Coordinator) waitForPod(ctx context.Context, jobName string) error {
	deadline := time.Now().Add(c.opts.StartPodTimeout)
	var lastPhase corev1.PodPhase

	for {
		if !c.slot.Is(jobName) {
			log.Printf("INFO Coordinator.StartJob no longer tracking %s, stopped waiting for its pod", jobName)
			return nil
		}

		pods, listErr := c.gateway.ListPodsByLabel(ctx, cluster.JobPodSelector(jobName))
		if listErr != nil {
			log.Printf("ERROR Coordinator.StartJob could not list pods for %s: %s", jobName, listErr)
			c.emitStatus(fmt.Sprintf("API error while waiting for the pod of job %s: %s", jobName, listErr), models.EVENT_ERROR)
			c.slot.ReleaseIf(jobName)
			return fmt.Errorf("could not list pods for %s: %w", jobName, listErr)
		}

		if len(pods) > 0 {
			phase := pods[0].Status.Phase
			if phase != lastPhase {
				lastPhase = phase
				c.emitStatus(fmt.Sprintf("Job status: %s", phase), models.EventStatusForPhase(string(phase)))
			}

			switch phase {
			case corev1.PodRunning:
				c.startBroadcaster(jobName)
				return nil
			case corev1.PodFailed:
				c.emitStatus(fmt.Sprintf("Job %s could not be started: pod %s failed.", jobName, pods[0].Name), models.EVENT_ERROR)
				c.slot.ReleaseIf(jobName)
				metrics.JobStarts.WithLabelValues(metrics.OUTCOME_POD_FAILED).Inc()
				return ErrPodFailed
			case corev1.PodSucceeded:
				//finished before we ever saw it running, there is nothing left to stream
				log.Printf("INFO Coordinator.StartJob pod for %s completed before streaming began", jobName)
				c.slot.ReleaseIf(jobName)
				return nil
			}
		}

		if time.Now().After(deadline) {
			log.Printf("ERROR Coordinator.StartJob no running pod for %s after %s", jobName, c.opts.StartPodTimeout)
			c.emitStatus(fmt.Sprintf("Timed out: no pod started within %s for job %s.", c.opts.StartPodTimeout, jobName), models.EVENT_ERROR)
			c.slot.ReleaseIf(jobName)
			metrics.JobStarts.WithLabelValues(metrics.OUTCOME_TIMEOUT).Inc()
			return ErrPodTimeout
		}

		if !sleepCtx(ctx, c.opts.PollInterval) {
			c.slot.ReleaseIf(jobName)
			return ctx.Err()
		}
	}
}
