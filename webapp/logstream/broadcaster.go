package logstream

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/events"
	"github.com/guardian/jobpanel/webapp/jobslot"
	"github.com/guardian/jobpanel/webapp/metrics"
	"golang.org/x/text/encoding/unicode"
	corev1 "k8s.io/api/core/v1"
)

/**
Broadcaster follows the logs of a job's pod and fans each line out to every client.
One Run call serves one activation of the stream session.
*/
type Broadcaster struct {
	gateway        cluster.Gateway
	emitter        events.Emitter
	slot           *jobslot.Slot
	session        *jobslot.StreamSession
	requestTimeout time.Duration
	backoff        time.Duration
}

/**
requestTimeout is how long a follow may go without a line before it is abandoned and reopened;
backoff is the pause between reopening attempts. A zero requestTimeout disables the idle check.
*/
func NewBroadcaster(gateway cluster.Gateway, emitter events.Emitter, slot *jobslot.Slot, session *jobslot.StreamSession, requestTimeout time.Duration, backoff time.Duration) *Broadcaster {
	return &Broadcaster{
		gateway:        gateway,
		emitter:        emitter,
		slot:           slot,
		session:        session,
		requestTimeout: requestTimeout,
		backoff:        backoff,
	}
}

/**
streams logs for ticket.JobName until the ticket is stopped, ctx is done, the job's pod disappears
or reaches a terminal phase. Whatever the exit, the ticket is released.
*/
func (b *Broadcaster) Run(ctx context.Context, ticket *jobslot.Ticket) {
	metrics.LogStreamsActive.Inc()
	defer metrics.LogStreamsActive.Dec()
	defer b.session.Release(ticket)

	jobName := ticket.JobName
	var resumeFrom *time.Time

	log.Printf("INFO Broadcaster starting log stream for %s", jobName)
	for ticket.Active() && ctx.Err() == nil {
		pods, listErr := b.gateway.ListPodsByLabel(ctx, cluster.JobPodSelector(jobName))
		if listErr != nil {
			if !ticket.Active() || ctx.Err() != nil {
				return
			}
			log.Printf("ERROR Broadcaster could not list pods for %s: %s", jobName, listErr)
			b.emitter.Emit(events.LogUpdate(fmt.Sprintf("Error: %s", listErr)))
			b.slot.ReleaseIf(jobName)
			return
		}

		if len(pods) == 0 {
			log.Printf("INFO Broadcaster found no pods for %s, stopping", jobName)
			b.slot.ReleaseIf(jobName)
			return
		}

		pod := pods[0]
		switch pod.Status.Phase {
		case corev1.PodPending, corev1.PodRunning:
			var streamErr error
			resumeFrom, streamErr = b.follow(ctx, ticket, pod.Name, resumeFrom)
			if !ticket.Active() || ctx.Err() != nil {
				return
			}
			if streamErr != nil {
				log.Printf("WARNING Broadcaster log stream for %s interrupted: %s", pod.Name, streamErr)
				b.emitter.Emit(events.StatusUpdate(streamErr.Error(), models.EVENT_ERROR))
			}
		case corev1.PodSucceeded, corev1.PodFailed:
			phase := string(pod.Status.Phase)
			b.emitter.Emit(events.StatusUpdate(fmt.Sprintf("Pod %s status: %s", pod.Name, phase), models.EventStatusForPhase(phase)))
			b.slot.ReleaseIf(jobName)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticket.Done():
			return
		case <-time.After(b.backoff):
		}
	}
}

/**
follows the pod's log until the stream ends. Lines are requested with the kubelet's timestamps so
that a reopened stream can carry on from the last line delivered, measured on the node's clock.
Returns that timestamp, or `since` if nothing newer was delivered.
*/
func (b *Broadcaster) follow(ctx context.Context, ticket *jobslot.Ticket, podName string, since *time.Time) (*time.Time, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var idle atomic.Bool
	var idleTimer *time.Timer
	if b.requestTimeout > 0 {
		idleTimer = time.AfterFunc(b.requestTimeout, func() {
			idle.Store(true)
			cancel()
		})
		defer idleTimer.Stop()
	}

	go func() {
		select {
		case <-ticket.Done():
			cancel()
		case <-streamCtx.Done():
		}
	}()

	stream, openErr := b.gateway.StreamPodLog(streamCtx, podName, cluster.LogOptions{Timestamps: true, SinceTime: since})
	if openErr != nil {
		return since, b.describeStreamError(podName, openErr, idle.Load())
	}
	defer stream.Close()

	lines, readErrs := AsyncLineReader(stream, unicode.UTF8.NewDecoder(), 64, streamCtx.Done())

	lastLine := since
	for {
		select {
		case line := <-lines:
			if line == nil {
				return lastLine, nil
			}
			if !ticket.Active() {
				return lastLine, nil
			}
			if idleTimer != nil {
				idleTimer.Reset(b.requestTimeout)
			}
			lastLine = b.publish(*line, since, lastLine)
		case readErr := <-readErrs:
			lastLine = b.publishQueued(ticket, lines, since, lastLine)
			return lastLine, b.describeStreamError(podName, readErr, idle.Load())
		case <-streamCtx.Done():
			if idle.Load() {
				lastLine = b.publishQueued(ticket, lines, since, lastLine)
				return lastLine, b.describeStreamError(podName, streamCtx.Err(), true)
			}
			return lastLine, streamCtx.Err()
		}
	}
}

/**
the reader only reports an error once every line before it has been queued, so whatever is still
buffered is delivered before the error is acted on
*/
func (b *Broadcaster) publishQueued(ticket *jobslot.Ticket, lines chan *string, since *time.Time, lastLine *time.Time) *time.Time {
	for {
		select {
		case line := <-lines:
			if line == nil || !ticket.Active() {
				return lastLine
			}
			lastLine = b.publish(*line, since, lastLine)
		default:
			return lastLine
		}
	}
}

/**
emits one log line without its timestamp prefix and returns the new resume point.
sinceTime only has second precision, so a reopened stream replays part of a second; lines stamped
at or before `since` have been delivered already and are dropped.
*/
func (b *Broadcaster) publish(line string, since *time.Time, lastLine *time.Time) *time.Time {
	stamp, content := splitTimestamp(line)
	if stamp != nil && since != nil && !stamp.After(*since) {
		return lastLine
	}
	b.emitter.Emit(events.LogUpdate(content))
	metrics.LogLinesBroadcast.Inc()
	if stamp != nil {
		return stamp
	}
	return lastLine
}

/**
splits the RFC3339 timestamp the kubelet prefixes to each line when timestamps are requested.
A line without one is returned whole with a nil time.
*/
func splitTimestamp(line string) (*time.Time, string) {
	prefix, content, _ := strings.Cut(line, " ")
	stamp, err := time.Parse(time.RFC3339Nano, prefix)
	if err != nil {
		return nil, line
	}
	return &stamp, strings.TrimSpace(content)
}

func (b *Broadcaster) describeStreamError(podName string, err error, idle bool) error {
	if idle {
		return fmt.Errorf("log stream for pod %s timed out after %s without output", podName, b.requestTimeout)
	}
	return fmt.Errorf("log stream for pod %s failed: %w", podName, err)
}
