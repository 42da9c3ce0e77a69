package cluster

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

/**
in-memory Gateway for tests. All fields may be set before use; after the mock has been handed to
code under test use the setter methods, which take the lock.
*/
type GatewayMock struct {
	mutex sync.Mutex

	Ns      string
	Jobs    map[string]*batchv1.Job
	CronJob *batchv1.CronJob
	// pods keyed by the name of the job that owns them
	Pods    map[string][]corev1.Pod
	PodLogs map[string]string
	// if set, used instead of PodLogs for following reads
	LogStreamer func(ctx context.Context, podName string, opts LogOptions) (io.ReadCloser, error)
	// if true, a deleted job is marked as terminating rather than removed
	DeleteMarksTerminating bool
	// jobs that can be read by name but are left out of listings, as when a list lags behind a create
	Unlisted map[string]bool

	ListJobsErr    error
	ReadJobErr     error
	CreateErr      error
	DeleteErr      error
	ReadCronJobErr error
	ListPodsErr    error
	ReadLogErr     error

	OnDelete func(name string)
	// called before the cronjob is read, outside the lock, so a test can hold a start mid-creation
	OnReadCronJob func(name string)

	calls       []string
	createdJobs []*batchv1.Job
	lastLogOpts *LogOptions
}

func NewGatewayMock(namespace string) *GatewayMock {
	return &GatewayMock{
		Ns:       namespace,
		Jobs:     make(map[string]*batchv1.Job),
		Pods:     make(map[string][]corev1.Pod),
		PodLogs:  make(map[string]string),
		Unlisted: make(map[string]bool),
	}
}

func (m *GatewayMock) record(call string) {
	m.calls = append(m.calls, call)
}

/**
returns a copy of every call made so far, in the form "operation:name"
*/
func (m *GatewayMock) Calls() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	rtn := make([]string, len(m.calls))
	copy(rtn, m.calls)
	return rtn
}

/**
counts the calls of the given operation, e.g. "create"
*/
func (m *GatewayMock) CallCount(operation string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	count := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, operation+":") {
			count += 1
		}
	}
	return count
}

func (m *GatewayMock) CreatedJobs() []*batchv1.Job {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	rtn := make([]*batchv1.Job, len(m.createdJobs))
	copy(rtn, m.createdJobs)
	return rtn
}

func (m *GatewayMock) LastLogOptions() *LogOptions {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lastLogOpts
}

func (m *GatewayMock) PutJob(job *batchv1.Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Jobs[job.Name] = job.DeepCopy()
}

func (m *GatewayMock) RemoveJob(name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.Jobs, name)
}

/**
replaces the pods of the given job with a single pod in the given phase
*/
func (m *GatewayMock) SetPod(jobName string, podName string, phase corev1.PodPhase) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Pods[jobName] = []corev1.Pod{
		{
			ObjectMeta: metav1.ObjectMeta{
				Name:      podName,
				Namespace: m.Ns,
				Labels:    map[string]string{"job-name": jobName},
			},
			Status: corev1.PodStatus{Phase: phase},
		},
	}
}

func (m *GatewayMock) RemovePods(jobName string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.Pods, jobName)
}

func (m *GatewayMock) Namespace() string {
	return m.Ns
}

func (m *GatewayMock) ReadJob(ctx context.Context, name string) (*batchv1.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("read:" + name)
	if m.ReadJobErr != nil {
		return nil, m.ReadJobErr
	}
	job, found := m.Jobs[name]
	if !found {
		return nil, nil
	}
	return job.DeepCopy(), nil
}

func (m *GatewayMock) ListJobs(ctx context.Context) ([]batchv1.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("list:jobs")
	if m.ListJobsErr != nil {
		return nil, m.ListJobsErr
	}
	rtn := make([]batchv1.Job, 0, len(m.Jobs))
	for name, j := range m.Jobs {
		if m.Unlisted[name] {
			continue
		}
		rtn = append(rtn, *j.DeepCopy())
	}
	return rtn, nil
}

func (m *GatewayMock) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("create:" + job.Name)
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, exists := m.Jobs[job.Name]; exists {
		return nil, fmt.Errorf("job %s already exists", job.Name)
	}
	stored := job.DeepCopy()
	stored.Namespace = m.Ns
	m.Jobs[job.Name] = stored
	m.createdJobs = append(m.createdJobs, stored.DeepCopy())
	return stored.DeepCopy(), nil
}

func (m *GatewayMock) DeleteJob(ctx context.Context, name string, propagation metav1.DeletionPropagation) error {
	m.mutex.Lock()
	m.record(fmt.Sprintf("delete:%s:%s", name, propagation))
	hook := m.OnDelete
	m.mutex.Unlock()

	if hook != nil {
		hook(name)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	job, found := m.Jobs[name]
	if !found {
		return fmt.Errorf("job %s: %w", name, ErrNotFound)
	}
	if m.DeleteMarksTerminating {
		now := metav1.Now()
		job.DeletionTimestamp = &now
	} else {
		delete(m.Jobs, name)
		delete(m.Pods, name)
	}
	return nil
}

func (m *GatewayMock) ReadCronJob(ctx context.Context, name string) (*batchv1.CronJob, error) {
	m.mutex.Lock()
	m.record("readcronjob:" + name)
	hook := m.OnReadCronJob
	m.mutex.Unlock()

	if hook != nil {
		hook(name)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.ReadCronJobErr != nil {
		return nil, m.ReadCronJobErr
	}
	if m.CronJob == nil || m.CronJob.Name != name {
		return nil, fmt.Errorf("cronjob %s: %w", name, ErrNotFound)
	}
	return m.CronJob.DeepCopy(), nil
}

func (m *GatewayMock) ListPodsByLabel(ctx context.Context, selector string) ([]corev1.Pod, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("listpods:" + selector)
	if m.ListPodsErr != nil {
		return nil, m.ListPodsErr
	}
	jobName := strings.TrimPrefix(selector, "job-name=")
	pods := m.Pods[jobName]
	rtn := make([]corev1.Pod, len(pods))
	for i, p := range pods {
		rtn[i] = *p.DeepCopy()
	}
	return rtn, nil
}

func (m *GatewayMock) ReadPodLog(ctx context.Context, podName string, opts LogOptions) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("readlog:" + podName)
	optsCopy := opts
	m.lastLogOpts = &optsCopy
	if m.ReadLogErr != nil {
		return "", m.ReadLogErr
	}
	return m.PodLogs[podName], nil
}

func (m *GatewayMock) StreamPodLog(ctx context.Context, podName string, opts LogOptions) (io.ReadCloser, error) {
	m.mutex.Lock()
	m.record("streamlog:" + podName)
	optsCopy := opts
	m.lastLogOpts = &optsCopy
	streamer := m.LogStreamer
	content := m.PodLogs[podName]
	m.mutex.Unlock()

	if streamer != nil {
		return streamer(ctx, podName, opts)
	}
	return ioutil.NopCloser(strings.NewReader(content)), nil
}
