package coordinator

import (
	"context"
	"log"
	"time"

	"github.com/guardian/jobpanel/common/helpers"
	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/events"
	"github.com/guardian/jobpanel/webapp/jobslot"
	"github.com/guardian/jobpanel/webapp/logstream"
	"github.com/guardian/jobpanel/webapp/naming"
	"github.com/guardian/jobpanel/webapp/reconciler"
)

type Options struct {
	StartPodTimeout         time.Duration
	PollInterval            time.Duration
	TerminationTimeout      time.Duration
	TerminationPollInterval time.Duration
	LogStreamRequestTimeout time.Duration
	StreamBackoff           time.Duration
}

func OptionsFromConfig(config *helpers.Config) Options {
	return Options{
		StartPodTimeout:         config.StartPodTimeout(),
		PollInterval:            config.PollInterval(),
		TerminationTimeout:      config.TerminationTimeout(),
		TerminationPollInterval: config.TerminationPollInterval(),
		LogStreamRequestTimeout: config.LogStreamRequestTimeout(),
		StreamBackoff:           config.StreamBackoff(),
	}
}

/**
Coordinator drives the lifecycle of the single managed job: starting it from the cronjob template,
cancelling or deleting it, and reporting on it. It owns the job slot and the log stream session
and hands them to the background tasks it starts.
*/
type Coordinator struct {
	gateway     cluster.Gateway
	policy      naming.Policy
	reconciler  *reconciler.Reconciler
	emitter     events.Emitter
	slot        *jobslot.Slot
	session     *jobslot.StreamSession
	broadcaster *logstream.Broadcaster
	supervisor  *Supervisor
	opts        Options
}

/**
background tasks run under ctx; cancelling it (or calling Shutdown) stops them
*/
func NewCoordinator(ctx context.Context, gateway cluster.Gateway, policy naming.Policy, emitter events.Emitter, opts Options) *Coordinator {
	slot := &jobslot.Slot{}
	session := &jobslot.StreamSession{}
	return &Coordinator{
		gateway:     gateway,
		policy:      policy,
		reconciler:  reconciler.NewReconciler(gateway, policy),
		emitter:     emitter,
		slot:        slot,
		session:     session,
		broadcaster: logstream.NewBroadcaster(gateway, emitter, slot, session, opts.LogStreamRequestTimeout, opts.StreamBackoff),
		supervisor:  NewSupervisor(ctx),
		opts:        opts,
	}
}

func (c *Coordinator) Namespace() string {
	return c.gateway.Namespace()
}

func (c *Coordinator) CronJobName() string {
	return c.policy.Template
}

func (c *Coordinator) Slot() *jobslot.Slot {
	return c.slot
}

func (c *Coordinator) Session() *jobslot.StreamSession {
	return c.session
}

/**
true if a log stream is currently being broadcast
*/
func (c *Coordinator) StreamActive() bool {
	return c.session.Active()
}

/**
blocks until every background task started so far has finished. Intended for tests.
*/
func (c *Coordinator) WaitForBackground() {
	c.supervisor.Wait()
}

func (c *Coordinator) Shutdown() {
	log.Print("INFO Coordinator shutting down background tasks")
	c.session.Deactivate()
	c.supervisor.Shutdown()
}

func (c *Coordinator) emitStatus(message string, status models.EventStatus) {
	c.emitter.Emit(events.StatusUpdate(message, status))
}

func (c *Coordinator) startBroadcaster(jobName string) {
	ticket, activated := c.session.TryActivate(jobName)
	if !activated {
		log.Printf("DEBUG Coordinator log stream already active, not starting another for %s", jobName)
		return
	}
	started := c.supervisor.Go("broadcaster:"+jobName, func(ctx context.Context) {
		c.broadcaster.Run(ctx, ticket)
	})
	if !started {
		c.session.Release(ticket)
	}
}

/**
sleeps for the given interval. Returns false if ctx finished first.
*/
func sleepCtx(ctx context.Context, interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
