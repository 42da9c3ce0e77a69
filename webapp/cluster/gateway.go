package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

/**
returned by operations on named objects that do not (or no longer) exist
*/
var ErrNotFound = errors.New("not found")

/**
options for reading pod logs. nil fields are left for the api server to default
*/
type LogOptions struct {
	TailLines  *int64
	Timestamps bool
	SinceTime  *time.Time
}

/**
Gateway is the narrow view of the batch and core apis that the rest of the application uses.
All operations are scoped to a single namespace.
*/
type Gateway interface {
	Namespace() string
	// ReadJob returns nil with no error if the job does not exist
	ReadJob(ctx context.Context, name string) (*batchv1.Job, error)
	ListJobs(ctx context.Context) ([]batchv1.Job, error)
	CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error)
	// DeleteJob returns ErrNotFound (wrapped) if the job does not exist
	DeleteJob(ctx context.Context, name string, propagation metav1.DeletionPropagation) error
	ReadCronJob(ctx context.Context, name string) (*batchv1.CronJob, error)
	ListPodsByLabel(ctx context.Context, selector string) ([]corev1.Pod, error)
	ReadPodLog(ctx context.Context, podName string, opts LogOptions) (string, error)
	// StreamPodLog opens a following log read. The stream ends when the container stops or ctx is done.
	StreamPodLog(ctx context.Context, podName string, opts LogOptions) (io.ReadCloser, error)
}

/**
Gateway implementation backed by client-go
*/
type K8sGateway struct {
	client    kubernetes.Interface
	namespace string
}

func NewK8sGateway(client kubernetes.Interface, namespace string) *K8sGateway {
	return &K8sGateway{client: client, namespace: namespace}
}

func (g *K8sGateway) Namespace() string {
	return g.namespace
}

func (g *K8sGateway) ReadJob(ctx context.Context, name string) (*batchv1.Job, error) {
	job, err := g.client.BatchV1().Jobs(g.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

/**
lists every job in the namespace, following continuation tokens
*/
func (g *K8sGateway) ListJobs(ctx context.Context) ([]batchv1.Job, error) {
	rtn := make([]batchv1.Job, 0)
	continueToken := ""

	for {
		result, err := g.client.BatchV1().Jobs(g.namespace).List(ctx, metav1.ListOptions{Continue: continueToken})
		if err != nil {
			log.Printf("ERROR ListJobs could not list jobs in %s: %s", g.namespace, err)
			return nil, err
		}
		rtn = append(rtn, result.Items...)
		if result.Continue == "" {
			return rtn, nil
		}
		continueToken = result.Continue
	}
}

func (g *K8sGateway) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	return g.client.BatchV1().Jobs(g.namespace).Create(ctx, job, metav1.CreateOptions{})
}

func (g *K8sGateway) DeleteJob(ctx context.Context, name string, propagation metav1.DeletionPropagation) error {
	policy := propagation
	err := g.client.BatchV1().Jobs(g.namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
	if err != nil && apierrors.IsNotFound(err) {
		return fmt.Errorf("job %s: %w", name, ErrNotFound)
	}
	return err
}

func (g *K8sGateway) ReadCronJob(ctx context.Context, name string) (*batchv1.CronJob, error) {
	cronJob, err := g.client.BatchV1().CronJobs(g.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil && apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("cronjob %s: %w", name, ErrNotFound)
	}
	return cronJob, err
}

func (g *K8sGateway) ListPodsByLabel(ctx context.Context, selector string) ([]corev1.Pod, error) {
	result, err := g.client.CoreV1().Pods(g.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func podLogOptions(opts LogOptions, follow bool) *corev1.PodLogOptions {
	rtn := &corev1.PodLogOptions{
		Follow:     follow,
		TailLines:  opts.TailLines,
		Timestamps: opts.Timestamps,
	}
	if opts.SinceTime != nil {
		since := metav1.NewTime(*opts.SinceTime)
		rtn.SinceTime = &since
	}
	return rtn
}

/**
extract the logs for the given pod and return as a string.
this kinda assumes that the logs are not huge, i.e. not tens/hundreds of megs in size; use tailLines to limit
*/
func (g *K8sGateway) ReadPodLog(ctx context.Context, podName string, opts LogOptions) (string, error) {
	req := g.client.CoreV1().Pods(g.namespace).GetLogs(podName, podLogOptions(opts, false))
	podLogStream, streamErr := req.Stream(ctx)
	if streamErr != nil {
		log.Printf("ERROR ReadPodLog could not open log stream for %s: %s", podName, streamErr)
		return "", streamErr
	}
	defer podLogStream.Close()

	buf := new(bytes.Buffer)
	_, copyErr := io.Copy(buf, podLogStream)
	if copyErr != nil {
		log.Printf("ERROR ReadPodLog could not stream log content for %s: %s", podName, copyErr)
		return "", copyErr
	}
	return buf.String(), nil
}

func (g *K8sGateway) StreamPodLog(ctx context.Context, podName string, opts LogOptions) (io.ReadCloser, error) {
	return g.client.CoreV1().Pods(g.namespace).GetLogs(podName, podLogOptions(opts, true)).Stream(ctx)
}

/**
the label the job controller puts on every pod it creates for a job
*/
func JobPodSelector(jobName string) string {
	return fmt.Sprintf("job-name=%s", jobName)
}
