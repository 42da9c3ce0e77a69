package reconciler

import (
	"context"
	"log"
	"sort"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/jobslot"
	"github.com/guardian/jobpanel/webapp/naming"
	batchv1 "k8s.io/api/batch/v1"
)

/**
ActiveJob describes the managed job that the cluster says is still making progress
*/
type ActiveJob struct {
	Name          string
	Status        models.JobStatus
	IsTerminating bool
}

func activeJobFor(job *batchv1.Job) *ActiveJob {
	return &ActiveJob{
		Name:          job.Name,
		Status:        models.StatusForJob(job),
		IsTerminating: models.IsJobTerminating(job),
	}
}

/**
the outcome of re-checking a remembered slot value against the cluster.
If Clear is false and Job is non-nil, the remembered job is still live.
*/
type SlotDecision struct {
	Clear bool
	Job   *ActiveJob
}

/**
Snapshot is one listing of the managed jobs, most recent first, with the active one picked out
*/
type Snapshot struct {
	Jobs   []batchv1.Job
	Active *ActiveJob
}

type Reconciler struct {
	gateway cluster.Gateway
	policy  naming.Policy
}

func NewReconciler(gateway cluster.Gateway, policy naming.Policy) *Reconciler {
	return &Reconciler{gateway: gateway, policy: policy}
}

/**
sorts jobs most recently started first. A job with no start time sorts as the least recent,
so jobs that are actually progressing are preferred over ones the controller hasn't picked up yet.
*/
func SortMostRecentFirst(jobs []batchv1.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a := jobs[i].Status.StartTime
		b := jobs[j].Status.StartTime
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return b.Time.Before(a.Time)
	})
}

/**
picks the first non-terminal job from a list that is already sorted most recent first
*/
func ActiveFrom(sortedJobs []batchv1.Job) *ActiveJob {
	for i := range sortedJobs {
		if !models.IsJobFinished(&sortedJobs[i]) {
			return activeJobFor(&sortedJobs[i])
		}
	}
	return nil
}

/**
lists the jobs in the namespace that belong to our template, most recent first
*/
func (r *Reconciler) ListManagedJobs(ctx context.Context) ([]batchv1.Job, error) {
	jobs, err := r.gateway.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	managed := make([]batchv1.Job, 0, len(jobs))
	for _, j := range jobs {
		if r.policy.IsManaged(j.Name) {
			managed = append(managed, j)
		}
	}
	SortMostRecentFirst(managed)
	return managed, nil
}

func (r *Reconciler) Snapshot(ctx context.Context) (*Snapshot, error) {
	managed, err := r.ListManagedJobs(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Jobs: managed, Active: ActiveFrom(managed)}, nil
}

/**
returns the most recent managed job that has not reached a terminal status, or nil if there is none
*/
func (r *Reconciler) FindActiveManagedJob(ctx context.Context) (*ActiveJob, error) {
	snapshot, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Active, nil
}

/**
re-reads a remembered slot value. The slot should be cleared if the name is not one of ours,
or if the job is gone or terminal.
*/
func (r *Reconciler) ReconcileStaleSlot(ctx context.Context, remembered string) (SlotDecision, error) {
	if remembered == "" {
		return SlotDecision{}, nil
	}
	if !r.policy.IsManaged(remembered) {
		log.Printf("WARNING ReconcileStaleSlot remembered job name %s is not a managed name, discarding it", remembered)
		return SlotDecision{Clear: true}, nil
	}

	job, err := r.gateway.ReadJob(ctx, remembered)
	if err != nil {
		return SlotDecision{}, err
	}
	if job == nil {
		log.Printf("DEBUG ReconcileStaleSlot job %s no longer exists", remembered)
		return SlotDecision{Clear: true}, nil
	}
	if models.IsJobFinished(job) {
		log.Printf("DEBUG ReconcileStaleSlot job %s has finished with status %s", remembered, models.StatusForJob(job))
		return SlotDecision{Clear: true}, nil
	}
	return SlotDecision{Job: activeJobFor(job)}, nil
}

/**
applies ReconcileStaleSlot to the given slot. A reservation whose job is still being created is left
alone, and the slot is only cleared if it still holds the created job that was checked.
Returns the live job the slot refers to, or nil.
*/
func (r *Reconciler) RepairSlot(ctx context.Context, slot *jobslot.Slot) (*ActiveJob, error) {
	remembered, pending := slot.Reservation()
	if pending {
		log.Printf("DEBUG RepairSlot job %s is still being created, leaving it in place", remembered)
		return nil, nil
	}
	decision, err := r.ReconcileStaleSlot(ctx, remembered)
	if err != nil {
		return nil, err
	}
	if decision.Clear {
		slot.ReleaseIfCreated(remembered)
	}
	return decision.Job, nil
}
