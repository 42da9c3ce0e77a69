package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/events"
	"github.com/guardian/jobpanel/webapp/jobslot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

type broadcasterFixture struct {
	gateway     *cluster.GatewayMock
	emitter     *events.EmitterMock
	slot        *jobslot.Slot
	session     *jobslot.StreamSession
	broadcaster *Broadcaster
}

func newBroadcasterFixture(requestTimeout time.Duration) *broadcasterFixture {
	f := &broadcasterFixture{
		gateway: cluster.NewGatewayMock("testns"),
		emitter: &events.EmitterMock{},
		slot:    &jobslot.Slot{},
		session: &jobslot.StreamSession{},
	}
	f.broadcaster = NewBroadcaster(f.gateway, f.emitter, f.slot, f.session, requestTimeout, time.Millisecond)
	return f
}

/**
activates the session for the job and runs the broadcaster in the background. The returned channel
closes when Run returns.
*/
func (f *broadcasterFixture) start(t *testing.T, jobName string) chan struct{} {
	f.slot.Adopt(jobName)
	ticket, ok := f.session.TryActivate(jobName)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		f.broadcaster.Run(context.Background(), ticket)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestBroadcaster_noPods(t *testing.T) {
	f := newBroadcasterFixture(time.Second)

	waitDone(t, f.start(t, "demo-1000"))

	assert.Equal(t, "", f.slot.Get(), "slot should be released when the pod has gone")
	assert.False(t, f.session.Active())
	assert.Empty(t, f.emitter.Events())
}

func TestBroadcaster_terminalPod(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodFailed)

	waitDone(t, f.start(t, "demo-1000"))

	assert.Equal(t, []models.EventStatus{models.EVENT_FAILED}, f.emitter.Statuses())
	assert.Equal(t, "Pod demo-1000-abcde status: Failed", f.emitter.Events()[0].Message)
	assert.Equal(t, "", f.slot.Get())
	assert.False(t, f.session.Active())
}

func TestBroadcaster_streamsLinesInOrder(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

	calls := 0
	f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
		calls += 1
		if calls == 1 {
			return ioutil.NopCloser(strings.NewReader(
				"2024-03-01T10:00:00.100000000Z line one\n" +
					"2024-03-01T10:00:00.200000000Z line two\n" +
					"2024-03-01T10:00:01.300000000Z line three\n")), nil
		}
		f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodSucceeded)
		return ioutil.NopCloser(strings.NewReader("")), nil
	}

	waitDone(t, f.start(t, "demo-1000"))

	assert.Equal(t, []string{"line one", "line two", "line three"}, f.emitter.LogLines())
	assert.Equal(t, []models.EventStatus{models.EVENT_SUCCEEDED}, f.emitter.Statuses())
	assert.Equal(t, "", f.slot.Get())

	resumed := f.gateway.LastLogOptions()
	require.NotNil(t, resumed)
	assert.True(t, resumed.Timestamps, "lines should be requested with the node's timestamps")
	require.NotNil(t, resumed.SinceTime, "a reopened stream should resume from the last line")
	assert.True(t, resumed.SinceTime.Equal(time.Date(2024, 3, 1, 10, 0, 1, 300000000, time.UTC)),
		"resume point should be the last line's own timestamp, got %s", resumed.SinceTime)
}

func TestBroadcaster_resumeSkipsReplayedLines(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

	calls := 0
	f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
		calls += 1
		switch calls {
		case 1:
			return ioutil.NopCloser(io.MultiReader(
				strings.NewReader("2024-03-01T10:00:00.100000000Z first\n2024-03-01T10:00:00.200000000Z second\n"),
				failingReader{})), nil
		case 2:
			//sinceTime is second precision so the server sends the start of that second again
			f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodSucceeded)
			return ioutil.NopCloser(strings.NewReader(
				"2024-03-01T10:00:00.100000000Z first\n" +
					"2024-03-01T10:00:00.200000000Z second\n" +
					"2024-03-01T10:00:00.300000000Z third\n")), nil
		default:
			return ioutil.NopCloser(strings.NewReader("")), nil
		}
	}

	waitDone(t, f.start(t, "demo-1000"))

	assert.Equal(t, []string{"first", "second", "third"}, f.emitter.LogLines())
}

func TestBroadcaster_linesBeforeTransportErrorAreDelivered(t *testing.T) {
	var content strings.Builder
	expected := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		line := fmt.Sprintf("line %d", i)
		expected = append(expected, line)
		content.WriteString(line + "\n")
	}

	for run := 0; run < 20; run++ {
		f := newBroadcasterFixture(time.Second)
		f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

		calls := 0
		f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
			calls += 1
			if calls == 1 {
				return ioutil.NopCloser(io.MultiReader(strings.NewReader(content.String()), failingReader{})), nil
			}
			f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodSucceeded)
			return ioutil.NopCloser(strings.NewReader("")), nil
		}

		waitDone(t, f.start(t, "demo-1000"))

		require.Equal(t, expected, f.emitter.LogLines(), "run %d: every line read before the error should be broadcast in order", run)
		assert.Equal(t, []models.EventStatus{models.EVENT_ERROR, models.EVENT_SUCCEEDED}, f.emitter.Statuses())
	}
}

func TestSplitTimestamp(t *testing.T) {
	stamp, content := splitTimestamp("2024-03-01T10:00:00.123456789Z   hello world")
	require.NotNil(t, stamp)
	assert.Equal(t, 123456789, stamp.Nanosecond())
	assert.Equal(t, "hello world", content)

	stamp, content = splitTimestamp("2024-03-01T10:00:00Z")
	assert.NotNil(t, stamp, "an empty log line still carries its timestamp")
	assert.Equal(t, "", content)

	stamp, content = splitTimestamp("no timestamp here")
	assert.Nil(t, stamp)
	assert.Equal(t, "no timestamp here", content)
}

/**
a pipe that closes with the context's error once ctx is done, like a real follow request
*/
func pipeFollowingContext(ctx context.Context) (io.ReadCloser, *io.PipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	return pr, pw
}

func TestBroadcaster_deactivationStopsPromptly(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

	var writerLock sync.Mutex
	var writer *io.PipeWriter
	f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
		reader, w := pipeFollowingContext(ctx)
		writerLock.Lock()
		writer = w
		writerLock.Unlock()
		go w.Write([]byte("first\n"))
		return reader, nil
	}

	done := f.start(t, "demo-1000")
	require.True(t, f.emitter.WaitFor(func(ev events.Event) bool {
		return ev.Name == events.LOG_UPDATE && ev.Message == "first"
	}, time.Second))

	f.session.Deactivate()
	waitDone(t, done)

	writerLock.Lock()
	writer.Write([]byte("second\n"))
	writerLock.Unlock()

	assert.Equal(t, []string{"first"}, f.emitter.LogLines())
	assert.Empty(t, f.emitter.Statuses(), "a deactivated stream should not report errors")
	assert.Equal(t, "demo-1000", f.slot.Get(), "deactivation alone does not release the slot")
}

func TestBroadcaster_transportErrorIsReportedAndRetried(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

	calls := 0
	f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
		calls += 1
		if calls == 1 {
			return nil, errors.New("connection reset by peer")
		}
		f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodSucceeded)
		return ioutil.NopCloser(strings.NewReader("")), nil
	}

	waitDone(t, f.start(t, "demo-1000"))

	assert.Equal(t, []models.EventStatus{models.EVENT_ERROR, models.EVENT_SUCCEEDED}, f.emitter.Statuses())
	assert.Contains(t, f.emitter.Events()[0].Message, "connection reset by peer")
}

func TestBroadcaster_idleTimeout(t *testing.T) {
	f := newBroadcasterFixture(20 * time.Millisecond)
	f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodRunning)

	calls := 0
	f.gateway.LogStreamer = func(ctx context.Context, podName string, opts cluster.LogOptions) (io.ReadCloser, error) {
		calls += 1
		if calls == 1 {
			reader, _ := pipeFollowingContext(ctx)
			return reader, nil
		}
		f.gateway.SetPod("demo-1000", "demo-1000-abcde", corev1.PodSucceeded)
		return ioutil.NopCloser(strings.NewReader("")), nil
	}

	waitDone(t, f.start(t, "demo-1000"))

	statuses := f.emitter.Statuses()
	require.Equal(t, []models.EventStatus{models.EVENT_ERROR, models.EVENT_SUCCEEDED}, statuses)
	assert.Contains(t, f.emitter.Events()[0].Message, "timed out")
}

func TestBroadcaster_listError(t *testing.T) {
	f := newBroadcasterFixture(time.Second)
	f.gateway.ListPodsErr = errors.New("forbidden")

	waitDone(t, f.start(t, "demo-1000"))

	require.Len(t, f.emitter.Events(), 1)
	assert.Equal(t, events.LOG_UPDATE, f.emitter.Events()[0].Name)
	assert.Equal(t, "Error: forbidden", f.emitter.Events()[0].Message)
	assert.Equal(t, "", f.slot.Get())
	assert.False(t, f.session.Active())
}
