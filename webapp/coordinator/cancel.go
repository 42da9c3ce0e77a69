package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/metrics"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

/**
CancelJob deletes the job in the slot. The log stream is stopped before the delete is issued, and
the slot stays occupied until a background waiter sees the job gone. A job that is still being
created is flagged instead, and the start deletes it as soon as the create returns.
*/
func (c *Coordinator) CancelJob(ctx context.Context) error {
	jobName := c.slot.Get()
	if jobName == "" {
		c.emitStatus("No active job found to cancel.", models.EVENT_IDLE)
		return ErrNothingToCancel
	}

	c.emitStatus(fmt.Sprintf("Job %s is being canceled...", jobName), models.EVENT_STOPPING)
	if c.slot.RequestCancel(jobName) {
		log.Printf("INFO Coordinator.CancelJob %s is still being created, it will be deleted once it exists", jobName)
		return nil
	}
	c.session.Deactivate()
	return c.deleteAndConfirm(ctx, jobName)
}

/**
issues a foreground delete for a tracked job and hands it to the termination waiter
*/
func (c *Coordinator) deleteAndConfirm(ctx context.Context, jobName string) error {
	deleteErr := c.gateway.DeleteJob(ctx, jobName, metav1.DeletePropagationForeground)
	if deleteErr != nil && !errors.Is(deleteErr, cluster.ErrNotFound) {
		log.Printf("ERROR Coordinator.CancelJob could not delete %s: %s", jobName, deleteErr)
		c.emitStatus(fmt.Sprintf("Error canceling job %s: %s", jobName, deleteErr), models.EVENT_ERROR)
		return fmt.Errorf("could not delete job %s: %w", jobName, deleteErr)
	}

	metrics.JobCancels.Inc()
	c.startTerminationWaiter(jobName)
	return nil
}

/**
DeleteJob deletes a managed job by name. A job that is gone already counts as deleted.
An incomplete or terminating job is tracked in the slot until it is confirmed gone, so that
nothing new can start in the meantime.
*/
func (c *Coordinator) DeleteJob(ctx context.Context, jobName string) error {
	if !c.policy.IsManaged(jobName) {
		return ErrUnknownJob
	}

	job, readErr := c.gateway.ReadJob(ctx, jobName)
	if readErr != nil {
		log.Printf("ERROR Coordinator.DeleteJob could not read %s: %s", jobName, readErr)
		return fmt.Errorf("could not read job %s: %w", jobName, readErr)
	}
	if job == nil {
		log.Printf("DEBUG Coordinator.DeleteJob %s does not exist, nothing to do", jobName)
		return nil
	}

	finished := models.IsJobFinished(job)
	mustConfirm := !finished || models.IsJobTerminating(job)
	propagation := metav1.DeletePropagationForeground
	if finished {
		propagation = metav1.DeletePropagationBackground
	}

	if mustConfirm {
		c.slot.Adopt(jobName)
		if c.session.JobName() == jobName {
			c.session.Deactivate()
		}
		c.emitStatus(fmt.Sprintf("Job %s is being deleted...", jobName), models.EVENT_STOPPING)
	}

	deleteErr := c.gateway.DeleteJob(ctx, jobName, propagation)
	if deleteErr != nil && !errors.Is(deleteErr, cluster.ErrNotFound) {
		log.Printf("ERROR Coordinator.DeleteJob could not delete %s: %s", jobName, deleteErr)
		if mustConfirm {
			c.slot.ReleaseIf(jobName)
			c.emitStatus(fmt.Sprintf("Error deleting job %s: %s", jobName, deleteErr), models.EVENT_ERROR)
		}
		return fmt.Errorf("could not delete job %s: %w", jobName, deleteErr)
	}

	metrics.JobCancels.Inc()
	if mustConfirm {
		c.startTerminationWaiter(jobName)
	}
	return nil
}

func (c *Coordinator) startTerminationWaiter(jobName string) {
	c.supervisor.Go("waiter:"+jobName, func(ctx context.Context) {
		c.waitForTermination(ctx, jobName)
	})
}

/**
polls the job until it is gone or terminal, then frees the slot. Gives up after the termination
timeout, in which case the slot is freed anyway and an error is reported; any later start still
re-checks the cluster and will see the job if it is really still there.
*/
func (c *Coordinator) waitForTermination(ctx context.Context, jobName string) {
	deadline := time.Now().Add(c.opts.TerminationTimeout)

	for {
		job, readErr := c.gateway.ReadJob(ctx, jobName)
		if readErr != nil {
			log.Printf("WARNING Coordinator termination waiter could not read %s: %s", jobName, readErr)
		} else if job == nil || models.IsJobFinished(job) {
			log.Printf("INFO Coordinator job %s has terminated", jobName)
			c.slot.ReleaseIf(jobName)
			c.emitStatus(fmt.Sprintf("Job %s has terminated.", jobName), models.EVENT_CANCELED)
			return
		}

		if time.Now().After(deadline) {
			log.Printf("ERROR Coordinator job %s still present after %s, giving up waiting", jobName, c.opts.TerminationTimeout)
			c.slot.ReleaseIf(jobName)
			c.emitStatus(fmt.Sprintf("Job %s did not terminate within %s.", jobName, c.opts.TerminationTimeout), models.EVENT_ERROR)
			return
		}

		if !sleepCtx(ctx, c.opts.TerminationPollInterval) {
			return
		}
	}
}
